package tex

import (
	"cmp"
	"image"
	"image/color"
	"slices"

	"github.com/go-gl/mathgl/mgl32"
)

// BlendType selects how samples are interpolated between stops.
type BlendType int

const (
	// BlendLinear interpolates every channel including alpha.
	BlendLinear BlendType = iota
	// BlendNormal interpolates decoded tangent space normals and renormalizes.
	BlendNormal
)

func (t BlendType) String() string {
	if t == BlendNormal {
		return "normal"
	}
	return "linear"
}

// Stop places a sample texture at a guide value in [0, 1].
type Stop struct {
	Cenith float64
	Sample image.Image
}

// GuidedBlend picks, per texel, between sample textures according to a guide
// texture. Samples smaller than the output are tiled.
type GuidedBlend struct {
	typ   BlendType
	stops []Stop
}

// NewGuidedBlend sorts stops by cenith. Stops with equal cenith keep their
// order.
func NewGuidedBlend(typ BlendType, stops []Stop) *GuidedBlend {
	sorted := slices.Clone(stops)
	slices.SortStableFunc(sorted, func(a, b Stop) int { return cmp.Compare(a.Cenith, b.Cenith) })
	return &GuidedBlend{typ: typ, stops: sorted}
}

// Stops returns the stops in cenith order.
func (b *GuidedBlend) Stops() []Stop { return b.stops }

// Perform renders a texture of the guide's size. The guide's luminance is the
// blend parameter. Below the first stop its sample fades in through alpha;
// above the last stop the last sample is used as is.
func (b *GuidedBlend) Perform(guide image.Image) *image.NRGBA {
	bounds := guide.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	if len(b.stops) == 0 {
		return out
	}
	for y := range bounds.Dy() {
		for x := range bounds.Dx() {
			g := color.GrayModel.Convert(guide.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray)
			out.SetNRGBA(x, y, b.at(float64(g.Y)/255, x, y))
		}
	}
	return out
}

func (b *GuidedBlend) at(g float64, x, y int) color.NRGBA {
	first := b.stops[0]
	if g < first.Cenith {
		c := sample(first.Sample, x, y)
		c.A = uint8(float64(c.A)*g/first.Cenith + 0.5)
		return c
	}
	upper, _ := slices.BinarySearchFunc(b.stops, g, func(s Stop, g float64) int {
		if s.Cenith <= g {
			return -1
		}
		return 1
	})
	if upper == len(b.stops) {
		return sample(b.stops[upper-1].Sample, x, y)
	}
	lo, hi := b.stops[upper-1], b.stops[upper]
	t := (g - lo.Cenith) / (hi.Cenith - lo.Cenith)
	a, c := sample(lo.Sample, x, y), sample(hi.Sample, x, y)
	if b.typ == BlendNormal {
		n := decodeNormal(a).Mul(float32(1 - t)).Add(decodeNormal(c).Mul(float32(t)))
		out := encodeNormal(n)
		out.A = lerp8(a.A, c.A, t)
		return out
	}
	return lerpNRGBA(a, c, t)
}

// sample reads img at (x, y), wrapping around its bounds.
func sample(img image.Image, x, y int) color.NRGBA {
	r := img.Bounds()
	w, h := r.Dx(), r.Dy()
	if w == 0 || h == 0 {
		return color.NRGBA{}
	}
	return color.NRGBAModel.Convert(img.At(r.Min.X+x%w, r.Min.Y+y%h)).(color.NRGBA)
}

func decodeNormal(c color.NRGBA) mgl32.Vec3 {
	return mgl32.Vec3{
		float32(c.R)/127.5 - 1,
		float32(c.G)/127.5 - 1,
		float32(c.B)/127.5 - 1,
	}
}

func encodeNormal(n mgl32.Vec3) color.NRGBA {
	if n.Len() < 1e-6 {
		n = mgl32.Vec3{0, 0, 1}
	} else {
		n = n.Normalize()
	}
	enc := func(v float32) uint8 {
		return uint8(clamp01(float64(v+1)/2)*255 + 0.5)
	}
	return color.NRGBA{R: enc(n[0]), G: enc(n[1]), B: enc(n[2]), A: 255}
}
