// Package surf samples meshes into surfels and answers neighbourhood queries
// on the sampled surface.
package surf

import (
	"bufio"
	"cmp"
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// Surfel is a surface sample carrying simulation data D.
type Surfel[D any] struct {
	Position  mgl32.Vec3
	Normal    mgl32.Vec3
	TexCoords mgl32.Vec2
	Data      D
}

// Neighbor is a surfel index with its distance to a query point.
type Neighbor struct {
	Index int
	Dist  float32
}

// Surface is a fixed set of surfels. Positions never change after Build, so
// the spatial index stays valid while Data is updated by a simulation.
type Surface[D any] struct {
	Samples []Surfel[D]
	tree    *kdtree.Tree
}

// NewSurface indexes samples for neighbourhood queries.
func NewSurface[D any](samples []Surfel[D]) *Surface[D] {
	s := &Surface[D]{Samples: samples}
	if len(samples) > 0 {
		pts := make(points, len(samples))
		for i := range samples {
			p := samples[i].Position
			pts[i] = point{pos: [3]float64{float64(p[0]), float64(p[1]), float64(p[2])}, idx: i}
		}
		s.tree = kdtree.New(pts, false)
	}
	return s
}

// Len returns the number of surfels.
func (s *Surface[D]) Len() int { return len(s.Samples) }

// Nearest returns up to n surfels closest to p, closest first.
func (s *Surface[D]) Nearest(p mgl32.Vec3, n int) []Neighbor {
	if s.tree == nil || n <= 0 {
		return nil
	}
	keep := kdtree.NewNKeeper(n)
	s.tree.NearestSet(keep, query(p))
	return collect(keep.Heap)
}

// NearestFunc is Nearest restricted to surfels whose index satisfies keep.
// A nil keep accepts every surfel.
func (s *Surface[D]) NearestFunc(p mgl32.Vec3, n int, keep func(idx int) bool) []Neighbor {
	if keep == nil {
		return s.Nearest(p, n)
	}
	if s.tree == nil || n <= 0 {
		return nil
	}
	k := filterKeeper{NKeeper: kdtree.NewNKeeper(n), keep: keep}
	s.tree.NearestSet(k, query(p))
	return collect(k.Heap)
}

// Within returns all surfels no farther than r from p, closest first.
func (s *Surface[D]) Within(p mgl32.Vec3, r float32) []Neighbor {
	if s.tree == nil || r <= 0 {
		return nil
	}
	keep := kdtree.NewDistKeeper(float64(r) * float64(r))
	s.tree.NearestSet(keep, query(p))
	return collect(keep.Heap)
}

func collect(h kdtree.Heap) []Neighbor {
	out := make([]Neighbor, 0, len(h))
	for _, c := range h {
		// Keepers seed their heap with a sentinel that has no Comparable.
		if c.Comparable == nil {
			continue
		}
		out = append(out, Neighbor{Index: c.Comparable.(point).idx, Dist: float32(math.Sqrt(c.Dist))})
	}
	slices.SortFunc(out, func(a, b Neighbor) int {
		if c := cmp.Compare(a.Dist, b.Dist); c != 0 {
			return c
		}
		return cmp.Compare(a.Index, b.Index)
	})
	return out
}

// Dump writes the surfel positions and normals as an OBJ point cloud.
func (s *Surface[D]) Dump(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# %d surfels\n", len(s.Samples))
	for _, sf := range s.Samples {
		fmt.Fprintf(bw, "v %g %g %g\n", sf.Position[0], sf.Position[1], sf.Position[2])
	}
	for _, sf := range s.Samples {
		fmt.Fprintf(bw, "vn %g %g %g\n", sf.Normal[0], sf.Normal[1], sf.Normal[2])
	}
	for i := range s.Samples {
		fmt.Fprintf(bw, "p %d\n", i+1)
	}
	return bw.Flush()
}
