package scene

// Channel identifies a texture slot of a material.
type Channel int

const (
	ChannelAlbedo Channel = iota
	ChannelNormal
	ChannelDisplacement
	ChannelMetallic
	ChannelRoughness
	numChannels
)

var channelNames = [numChannels]string{"albedo", "normal", "displacement", "metallic", "roughness"}

func (c Channel) String() string {
	if c < 0 || c >= numChannels {
		return "unknown"
	}
	return channelNames[c]
}

// Material is an immutable set of material properties. Derive changed copies
// with NewMaterialBuilder(m).
type Material struct {
	name         string
	diffuseColor [3]float32
	hasDiffuse   bool
	maps         [numChannels]string
}

// Name returns the material name.
func (m Material) Name() string { return m.name }

// DiffuseColor returns the Kd color, if set.
func (m Material) DiffuseColor() ([3]float32, bool) { return m.diffuseColor, m.hasDiffuse }

// Map returns the texture path of a channel or "" if the channel has none.
func (m Material) Map(c Channel) string { return m.maps[c] }

func (m Material) DiffuseColorMap() string { return m.maps[ChannelAlbedo] }
func (m Material) NormalMap() string       { return m.maps[ChannelNormal] }
func (m Material) DisplacementMap() string { return m.maps[ChannelDisplacement] }
func (m Material) MetallicMap() string     { return m.maps[ChannelMetallic] }
func (m Material) RoughnessMap() string    { return m.maps[ChannelRoughness] }

// MaterialBuilder accumulates changes for a new Material.
type MaterialBuilder struct {
	m Material
}

// NewMaterialBuilder starts from a copy of base.
func NewMaterialBuilder(base Material) *MaterialBuilder {
	return &MaterialBuilder{m: base}
}

func (b *MaterialBuilder) Name(name string) *MaterialBuilder {
	b.m.name = name
	return b
}

func (b *MaterialBuilder) DiffuseColor(rgb [3]float32) *MaterialBuilder {
	b.m.diffuseColor = rgb
	b.m.hasDiffuse = true
	return b
}

// Map sets the texture path of a channel.
func (b *MaterialBuilder) Map(c Channel, path string) *MaterialBuilder {
	b.m.maps[c] = path
	return b
}

func (b *MaterialBuilder) DiffuseColorMap(path string) *MaterialBuilder {
	return b.Map(ChannelAlbedo, path)
}

// Build returns the material. The builder may be reused afterwards.
func (b *MaterialBuilder) Build() Material {
	return b.m
}
