package tex

import (
	"image"
	"image/color"

	"github.com/pthm-cable/weathering/sim"
	"github.com/pthm-cable/weathering/surf"
)

// Density renders the concentration of one substance into a texture. Values
// are normalized over [Min, Max] and mapped linearly from MinColor to
// MaxColor; texels without surfels get Undefined.
type Density struct {
	Substance int
	Min       float64
	Max       float64
	Undefined color.NRGBA
	MinColor  color.NRGBA
	MaxColor  color.NRGBA
}

// NewDensity returns a collector for substance over [0, 1], white for low and
// undefined texels and black for saturated ones.
func NewDensity(substance int) Density {
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	return Density{
		Substance: substance,
		Min:       0,
		Max:       1,
		Undefined: white,
		MinColor:  white,
		MaxColor:  color.NRGBA{A: 255},
	}
}

// CollectWithTable renders a texture of the table's size. Each texel is the
// inverse-distance weighted mean of the substance over its surfels.
func (d Density) CollectWithTable(surface *sim.Surface, table SurfelTable) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, table.Width, table.Height))
	for y := range table.Height {
		for x := range table.Width {
			value, ok := d.Sample(surface, table.At(x, y))
			if !ok {
				img.SetNRGBA(x, y, d.Undefined)
				continue
			}
			img.SetNRGBA(x, y, d.Color(value))
		}
	}
	return img
}

// Sample averages the substance over neighbours. It reports false when there
// are no neighbours.
func (d Density) Sample(surface *sim.Surface, neighbours []surf.Neighbor) (float64, bool) {
	if len(neighbours) == 0 {
		return 0, false
	}
	var sum, weights float64
	for _, n := range neighbours {
		sub := surface.Samples[n.Index].Data.Substances
		if d.Substance >= len(sub) {
			continue
		}
		w := 1 / (float64(n.Dist) + weightEpsilon)
		sum += w * sub[d.Substance]
		weights += w
	}
	if weights == 0 {
		return 0, false
	}
	return sum / weights, true
}

// Color maps a concentration to a colour.
func (d Density) Color(value float64) color.NRGBA {
	t := 0.0
	if d.Max > d.Min {
		t = (value - d.Min) / (d.Max - d.Min)
	}
	t = clamp01(t)
	return lerpNRGBA(d.MinColor, d.MaxColor, t)
}

// weightEpsilon keeps inverse-distance weights finite for texels that sit
// exactly on a surfel.
const weightEpsilon = 1e-4

func clamp01(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

func lerpNRGBA(a, b color.NRGBA, t float64) color.NRGBA {
	return color.NRGBA{
		R: lerp8(a.R, b.R, t),
		G: lerp8(a.G, b.G, t),
		B: lerp8(a.B, b.B, t),
		A: lerp8(a.A, b.A, t),
	}
}

func lerp8(a, b uint8, t float64) uint8 {
	v := float64(a) + (float64(b)-float64(a))*t
	return uint8(clamp01(v/255)*255 + 0.5)
}
