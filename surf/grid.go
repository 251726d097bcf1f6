package surf

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// hashGrid buckets points into cubic cells for fixed-radius rejection tests.
// Unlike a dense grid it needs no world bounds up front.
type hashGrid struct {
	cellSize float32
	cells    map[[3]int32][]mgl32.Vec3
}

func newHashGrid(cellSize float32) *hashGrid {
	return &hashGrid{
		cellSize: cellSize,
		cells:    make(map[[3]int32][]mgl32.Vec3),
	}
}

func (g *hashGrid) cell(p mgl32.Vec3) [3]int32 {
	return [3]int32{
		int32(math.Floor(float64(p[0] / g.cellSize))),
		int32(math.Floor(float64(p[1] / g.cellSize))),
		int32(math.Floor(float64(p[2] / g.cellSize))),
	}
}

// Insert adds a point.
func (g *hashGrid) Insert(p mgl32.Vec3) {
	c := g.cell(p)
	g.cells[c] = append(g.cells[c], p)
}

// AnyWithin reports whether some inserted point is closer than radius to p.
// radius must not exceed the cell size.
func (g *hashGrid) AnyWithin(p mgl32.Vec3, radius float32) bool {
	c := g.cell(p)
	radiusSq := radius * radius
	for dx := int32(-1); dx <= 1; dx++ {
		for dy := int32(-1); dy <= 1; dy++ {
			for dz := int32(-1); dz <= 1; dz++ {
				for _, q := range g.cells[[3]int32{c[0] + dx, c[1] + dy, c[2] + dz}] {
					d := q.Sub(p)
					if d.Dot(d) < radiusSq {
						return true
					}
				}
			}
		}
	}
	return false
}
