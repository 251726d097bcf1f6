package surf

import (
	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// point is a surfel position in the k-d tree.
type point struct {
	pos [3]float64
	idx int
}

func query(p mgl32.Vec3) point {
	return point{pos: [3]float64{float64(p[0]), float64(p[1]), float64(p[2])}, idx: -1}
}

func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.pos[d] - c.(point).pos[d]
}

func (p point) Dims() int { return 3 }

// Distance returns the squared euclidean distance.
func (p point) Distance(c kdtree.Comparable) float64 {
	q := c.(point)
	dx := p.pos[0] - q.pos[0]
	dy := p.pos[1] - q.pos[1]
	dz := p.pos[2] - q.pos[2]
	return dx*dx + dy*dy + dz*dz
}

// filterKeeper retains the nearest points accepted by keep.
type filterKeeper struct {
	*kdtree.NKeeper
	keep func(idx int) bool
}

func (k filterKeeper) Keep(c kdtree.ComparableDist) {
	if k.keep(c.Comparable.(point).idx) {
		k.NKeeper.Keep(c)
	}
}

type points []point

func (p points) Index(i int) kdtree.Comparable         { return p[i] }
func (p points) Len() int                              { return len(p) }
func (p points) Slice(start, end int) kdtree.Interface { return p[start:end] }
func (p points) Pivot(d kdtree.Dim) int {
	pl := plane{points: p, dim: d}
	return kdtree.Partition(pl, kdtree.MedianOfMedians(pl))
}

// plane sorts points along one dimension.
type plane struct {
	points
	dim kdtree.Dim
}

func (p plane) Less(i, j int) bool { return p.points[i].pos[p.dim] < p.points[j].pos[p.dim] }
func (p plane) Swap(i, j int)      { p.points[i], p.points[j] = p.points[j], p.points[i] }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.points = p.points[start:end]
	return p
}
