package spec

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultIslandBleed is the texel padding applied around UV islands.
	DefaultIslandBleed = 2
	// DefaultNearestCount is the number of surfels interpolated per texel.
	DefaultNearestCount = 4
)

// EffectSpec is one step of the synthesis pipeline. Exactly one field is set.
type EffectSpec struct {
	Density     *DensitySpec     `yaml:"density,omitempty"`
	Layer       *LayerSpec       `yaml:"layer,omitempty"`
	Export      *ExportSpec      `yaml:"export,omitempty"`
	DumpSurfels *DumpSurfelsSpec `yaml:"dump_surfels,omitempty"`
}

// Kind returns the YAML tag of the set variant.
func (e EffectSpec) Kind() string {
	switch {
	case e.Density != nil:
		return "density"
	case e.Layer != nil:
		return "layer"
	case e.Export != nil:
		return "export"
	case e.DumpSurfels != nil:
		return "dump_surfels"
	}
	return ""
}

func (e *EffectSpec) UnmarshalYAML(value *yaml.Node) error {
	type plain EffectSpec
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	set := 0
	for _, ok := range []bool{p.Density != nil, p.Layer != nil, p.Export != nil, p.DumpSurfels != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("line %d: effect must have exactly one of density, layer, export, dump_surfels, got %d", value.Line, set)
	}
	*e = EffectSpec(p)
	return nil
}

// DensitySpec renders per-substance concentration textures.
type DensitySpec struct {
	Width        int          `yaml:"width"`
	Height       int          `yaml:"height"`
	IslandBleed  int          `yaml:"island_bleed"`
	SurfelLookup SurfelLookup `yaml:"surfel_lookup"`
	TexPattern   string       `yaml:"tex_pattern"`
	ObjPattern   string       `yaml:"obj_pattern,omitempty"`
	MtlPattern   string       `yaml:"mtl_pattern,omitempty"`
}

func (d *DensitySpec) UnmarshalYAML(value *yaml.Node) error {
	type plain DensitySpec
	p := plain{
		IslandBleed:  DefaultIslandBleed,
		SurfelLookup: Nearest(DefaultNearestCount),
	}
	if err := value.Decode(&p); err != nil {
		return err
	}
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("line %d: density effect needs positive width and height", value.Line)
	}
	if p.TexPattern == "" {
		return fmt.Errorf("line %d: density effect needs a tex_pattern", value.Line)
	}
	*d = DensitySpec(p)
	return nil
}

// LayerSpec blends weathering textures into entity materials, guided by the
// concentration of one substance.
type LayerSpec struct {
	Materials    []string     `yaml:"materials,omitempty"`
	Substance    string       `yaml:"substance"`
	SurfelLookup SurfelLookup `yaml:"surfel_lookup"`
	IslandBleed  int          `yaml:"island_bleed"`
	Normal       *BlendSpec   `yaml:"normal,omitempty"`
	Displacement *BlendSpec   `yaml:"displacement,omitempty"`
	Albedo       *BlendSpec   `yaml:"albedo,omitempty"`
	Metallicity  *BlendSpec   `yaml:"metallicity,omitempty"`
	Roughness    *BlendSpec   `yaml:"roughness,omitempty"`
}

func (l *LayerSpec) UnmarshalYAML(value *yaml.Node) error {
	type plain LayerSpec
	p := plain{
		IslandBleed:  DefaultIslandBleed,
		SurfelLookup: Nearest(DefaultNearestCount),
	}
	if err := value.Decode(&p); err != nil {
		return err
	}
	if p.Substance == "" {
		return fmt.Errorf("line %d: layer effect needs a substance", value.Line)
	}
	*l = LayerSpec(p)
	return nil
}

// AppliesTo reports whether the layer affects entities with the given
// material. An empty list or "_" admits every material.
func (l *LayerSpec) AppliesTo(material string) bool {
	if len(l.Materials) == 0 {
		return true
	}
	for _, m := range l.Materials {
		if m == "_" || m == material {
			return true
		}
	}
	return false
}

// BlendSpec configures the guided blend for one material channel.
type BlendSpec struct {
	Stops      []StopSpec `yaml:"stops,omitempty"`
	TexPattern string     `yaml:"tex_pattern"`
	Width      *int       `yaml:"width,omitempty"`
	Height     *int       `yaml:"height,omitempty"`
	Influence  float64    `yaml:"influence"`
}

func (b *BlendSpec) UnmarshalYAML(value *yaml.Node) error {
	type plain BlendSpec
	p := plain{Influence: 1}
	if err := value.Decode(&p); err != nil {
		return err
	}
	if p.Influence < 0 || p.Influence > 1 {
		return fmt.Errorf("line %d: blend influence %v outside [0, 1]", value.Line, p.Influence)
	}
	if p.TexPattern == "" {
		return fmt.Errorf("line %d: blend needs a tex_pattern", value.Line)
	}
	*b = BlendSpec(p)
	return nil
}

// StopSpec places a sample texture at a concentration level. A stop without a
// sample uses the original channel texture of the material.
type StopSpec struct {
	Cenith float64 `yaml:"cenith"`
	Sample *string `yaml:"sample,omitempty"`
}

// ExportSpec writes the current entities as an OBJ/MTL pair.
type ExportSpec struct {
	ObjPattern string `yaml:"obj_pattern,omitempty"`
	MtlPattern string `yaml:"mtl_pattern,omitempty"`
}

// DumpSurfelsSpec writes the surfel positions as an OBJ point cloud.
type DumpSurfelsSpec struct {
	ObjPattern string `yaml:"obj_pattern"`
}

// SurfelLookup selects which surfels contribute to a texel.
type SurfelLookup struct {
	Nearest *NearestLookup `yaml:"nearest,omitempty"`
	Within  *WithinLookup  `yaml:"within,omitempty"`
}

// NearestLookup uses the Count nearest surfels.
type NearestLookup struct {
	Count int `yaml:"count"`
}

// WithinLookup uses every surfel within Radius.
type WithinLookup struct {
	Radius float64 `yaml:"radius"`
}

// Nearest returns a lookup policy for the n nearest surfels.
func Nearest(n int) SurfelLookup {
	return SurfelLookup{Nearest: &NearestLookup{Count: n}}
}

// Within returns a lookup policy for all surfels within r.
func Within(r float64) SurfelLookup {
	return SurfelLookup{Within: &WithinLookup{Radius: r}}
}

var errLookupVariant = errors.New("surfel_lookup must have exactly one of nearest, within")

func (l *SurfelLookup) UnmarshalYAML(value *yaml.Node) error {
	type plain SurfelLookup
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	if (p.Nearest == nil) == (p.Within == nil) {
		return fmt.Errorf("line %d: %w", value.Line, errLookupVariant)
	}
	if p.Nearest != nil && p.Nearest.Count <= 0 {
		return fmt.Errorf("line %d: nearest surfel count must be positive", value.Line)
	}
	if p.Within != nil && p.Within.Radius <= 0 {
		return fmt.Errorf("line %d: within radius must be positive", value.Line)
	}
	*l = SurfelLookup(p)
	return nil
}

func (l SurfelLookup) String() string {
	switch {
	case l.Nearest != nil:
		return fmt.Sprintf("nearest(%d)", l.Nearest.Count)
	case l.Within != nil:
		return fmt.Sprintf("within(%g)", l.Within.Radius)
	}
	return "unset"
}
