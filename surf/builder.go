package surf

import (
	"log/slog"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/pthm-cable/weathering/scene"
)

// DefaultOversampling is the number of candidate points drawn per surfel an
// ideal packing at the minimum distance would hold.
const DefaultOversampling = 4

// Builder collects surfels by sampling triangles. Samples from all calls to
// SampleTriangles respect the same minimum distance.
type Builder[D any] struct {
	minDistance  float32
	oversampling int
	rng          *rand.Rand
	grid         *hashGrid
	samples      []Surfel[D]
}

// NewBuilder returns a builder that places one surfel per triangle centroid
// until MinimumDistance is configured.
func NewBuilder[D any](seed uint64) *Builder[D] {
	return &Builder[D]{
		oversampling: DefaultOversampling,
		rng:          rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// MinimumDistance switches to dart throwing: candidates closer than d to an
// accepted surfel are rejected.
func (b *Builder[D]) MinimumDistance(d float32) *Builder[D] {
	b.minDistance = d
	b.grid = newHashGrid(d)
	for _, s := range b.samples {
		b.grid.Insert(s.Position)
	}
	return b
}

// Oversampling sets the candidate factor for dart throwing.
func (b *Builder[D]) Oversampling(n int) *Builder[D] {
	if n > 0 {
		b.oversampling = n
	}
	return b
}

// SampleTriangles samples tris and attaches fresh data from newData to every
// accepted surfel.
func (b *Builder[D]) SampleTriangles(tris []scene.Triangle, newData func() D) *Builder[D] {
	if len(tris) == 0 {
		return b
	}
	if b.minDistance <= 0 {
		for i := range tris {
			v := tris[i].Interpolate(1.0/3.0, 1.0/3.0)
			b.samples = append(b.samples, Surfel[D]{Position: v.Position, Normal: v.Normal, TexCoords: v.TexCoords, Data: newData()})
		}
		return b
	}

	weights := make([]float64, len(tris))
	var area float64
	for i := range tris {
		weights[i] = float64(tris[i].Area())
		area += weights[i]
	}
	if area <= 0 {
		slog.Warn("skipping degenerate triangles with zero total area", "triangles", len(tris))
		return b
	}

	d := float64(b.minDistance)
	candidates := int(math.Ceil(float64(b.oversampling) * area / (d * d)))
	pick := distuv.NewCategorical(weights, b.rng)

	before := len(b.samples)
	for range candidates {
		tri := &tris[int(pick.Rand())]
		u, v := b.rng.Float32(), b.rng.Float32()
		if u+v > 1 {
			u, v = 1-u, 1-v
		}
		vert := tri.Interpolate(u, v)
		if b.grid.AnyWithin(vert.Position, b.minDistance) {
			continue
		}
		b.grid.Insert(vert.Position)
		b.samples = append(b.samples, Surfel[D]{
			Position:  vert.Position,
			Normal:    vert.Normal,
			TexCoords: vert.TexCoords,
			Data:      newData(),
		})
	}

	slog.Debug("sampled triangles",
		"triangles", len(tris),
		"area", area,
		"candidates", candidates,
		"accepted", len(b.samples)-before,
	)
	return b
}

// Build returns the indexed surface. The builder must not be used afterwards.
func (b *Builder[D]) Build() *Surface[D] {
	return NewSurface(b.samples)
}
