// Package tex turns surfel state into textures: lookup tables from texels to
// surfels, density maps, guided blends and normal map combination.
package tex

import (
	"context"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/sync/errgroup"

	"github.com/pthm-cable/weathering/scene"
	"github.com/pthm-cable/weathering/surf"
)

// SurfelTable maps each texel of a width x height texture to the surfels
// nearest to the surface point it covers. Texels outside every UV island
// have no entries.
type SurfelTable struct {
	Width  int
	Height int
	texels [][]surf.Neighbor
}

// At returns the surfels associated with texel (x, y), closest first.
func (t SurfelTable) At(x, y int) []surf.Neighbor {
	if x < 0 || y < 0 || x >= t.Width || y >= t.Height {
		return nil
	}
	return t.texels[y*t.Width+x]
}

// Covered counts the texels that have at least one surfel.
func (t SurfelTable) Covered() int {
	n := 0
	for _, s := range t.texels {
		if len(s) > 0 {
			n++
		}
	}
	return n
}

// BuildSurfelTable rasterizes mesh in texture space and records, for every
// covered texel, the count surfels nearest to its world position. Coverage is
// dilated by bleed texels so bilinear filtering at island borders does not
// pick up undefined texels. Only surfels whose index satisfies keep are
// considered; a nil keep considers all of them. Rows are queried concurrently
// on up to threads goroutines.
func BuildSurfelTable[D any](ctx context.Context, mesh *scene.Mesh, surface *surf.Surface[D], keep func(idx int) bool, count, width, height, bleed, threads int) (SurfelTable, error) {
	table := SurfelTable{Width: width, Height: height, texels: make([][]surf.Neighbor, width*height)}
	if width <= 0 || height <= 0 {
		return table, nil
	}

	positions := make([]mgl32.Vec3, width*height)
	covered := make([]bool, width*height)
	for i := range mesh.Triangles {
		rasterize(&mesh.Triangles[i], width, height, func(idx int, p mgl32.Vec3) {
			positions[idx] = p
			covered[idx] = true
		})
	}
	for range bleed {
		if !dilate(positions, covered, width, height) {
			break
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	if threads > 0 {
		g.SetLimit(threads)
	}
	for y := range height {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for x := range width {
				idx := y*width + x
				if covered[idx] {
					table.texels[idx] = surface.NearestFunc(positions[idx], count, keep)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SurfelTable{}, err
	}
	return table, nil
}

// rasterize calls fn for every texel whose centre lies inside the UV
// footprint of tri, passing the interpolated world position. Texture space
// has v pointing up while image rows grow downwards.
func rasterize(tri *scene.Triangle, width, height int, fn func(idx int, p mgl32.Vec3)) {
	var px, py [3]float64
	for i := range 3 {
		uv := tri[i].TexCoords
		px[i] = float64(uv[0]) * float64(width)
		py[i] = (1 - float64(uv[1])) * float64(height)
	}
	den := (py[1]-py[2])*(px[0]-px[2]) + (px[2]-px[1])*(py[0]-py[2])
	if math.Abs(den) < 1e-12 {
		return
	}

	x0 := max(0, int(math.Floor(min(px[0], px[1], px[2]))))
	x1 := min(width-1, int(math.Ceil(max(px[0], px[1], px[2]))))
	y0 := max(0, int(math.Floor(min(py[0], py[1], py[2]))))
	y1 := min(height-1, int(math.Ceil(max(py[0], py[1], py[2]))))

	const eps = -1e-9
	for y := y0; y <= y1; y++ {
		cy := float64(y) + 0.5
		for x := x0; x <= x1; x++ {
			cx := float64(x) + 0.5
			w0 := ((py[1]-py[2])*(cx-px[2]) + (px[2]-px[1])*(cy-py[2])) / den
			w1 := ((py[2]-py[0])*(cx-px[2]) + (px[0]-px[2])*(cy-py[2])) / den
			w2 := 1 - w0 - w1
			if w0 < eps || w1 < eps || w2 < eps {
				continue
			}
			v := tri.Interpolate(float32(w1), float32(w2))
			fn(y*width+x, v.Position)
		}
	}
}

var neighbourhood = [8][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}, {-1, -1}, {1, -1}, {-1, 1}, {1, 1}}

// dilate grows coverage by one texel, copying the position of the first
// covered neighbour. It reports whether any texel was added.
func dilate(positions []mgl32.Vec3, covered []bool, width, height int) bool {
	type grown struct {
		idx int
		pos mgl32.Vec3
	}
	var added []grown
	for y := range height {
		for x := range width {
			idx := y*width + x
			if covered[idx] {
				continue
			}
			for _, d := range neighbourhood {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || ny < 0 || nx >= width || ny >= height {
					continue
				}
				if n := ny*width + nx; covered[n] {
					added = append(added, grown{idx, positions[n]})
					break
				}
			}
		}
	}
	for _, g := range added {
		positions[g.idx] = g.pos
		covered[g.idx] = true
	}
	return len(added) > 0
}
