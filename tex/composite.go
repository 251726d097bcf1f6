package tex

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"

	"github.com/go-gl/mathgl/mgl32"
)

// Over composites top over bottom with top's alpha scaled by influence. The
// result has bottom's size; top is expected to match it.
func Over(bottom, top image.Image, influence float64) *image.NRGBA {
	out := ToNRGBA(bottom)
	mask := image.NewUniform(color.Alpha{A: uint8(clamp01(influence)*255 + 0.5)})
	xdraw.DrawMask(out, out.Bounds(), top, top.Bounds().Min, mask, image.Point{}, xdraw.Over)
	return out
}

// CombineNormalMaps combines a detail normal map onto a base normal map. The
// detail's alpha, scaled by influence, fades it towards the flat normal.
func CombineNormalMaps(base, detail image.Image, influence float64) *image.NRGBA {
	out := ToNRGBA(base)
	b := out.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			d := sample(detail, x-b.Min.X, y-b.Min.Y)
			weight := float64(d.A) / 255 * clamp01(influence)
			out.SetNRGBA(x, y, combineWeighted(out.NRGBAAt(x, y), d, weight))
		}
	}
	return out
}

// CombineNormals applies detail on top of base using whiteout blending. The
// result keeps base's alpha.
func CombineNormals(base, detail color.NRGBA) color.NRGBA {
	return combineWeighted(base, detail, 1)
}

func combineWeighted(base, detail color.NRGBA, weight float64) color.NRGBA {
	if weight <= 0 {
		return base
	}
	flat := mgl32.Vec3{0, 0, 1}
	b := decodeNormal(base)
	d := decodeNormal(detail)
	if weight < 1 {
		d = flat.Mul(float32(1 - weight)).Add(d.Mul(float32(weight)))
	}
	out := encodeNormal(mgl32.Vec3{b[0] + d[0], b[1] + d[1], b[2] * d[2]})
	out.A = base.A
	return out
}
