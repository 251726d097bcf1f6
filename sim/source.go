package sim

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/pthm-cable/weathering/components"
	"github.com/pthm-cable/weathering/scene"
)

var (
	// ErrEmptyEmissionMesh is returned for sources without emitting area.
	ErrEmptyEmissionMesh = errors.New("emission mesh has no area")
	// ErrMotionProbabilities is returned when straight, parabolic and flow
	// probabilities do not form a distribution.
	ErrMotionProbabilities = errors.New("motion probabilities must be non-negative with a positive sum")
)

// TonSource emits tons from the surface of a mesh.
type TonSource struct {
	mesh              *scene.Mesh
	areaCDF           []float64
	emissionCount     int
	diffuse           bool
	motion            [components.NumMotions]float64
	substances        []float64
	pickupRates       []float64
	interactionRadius float32
	parabolaHeight    float32
	flowDistance      float32
	flowDirection     *mgl32.Vec3
}

// EmissionCount returns the number of tons emitted per pass.
func (s *TonSource) EmissionCount() int { return s.emissionCount }

// InteractionRadius returns the contact radius of emitted tons.
func (s *TonSource) InteractionRadius() float32 { return s.interactionRadius }

// nextMotion draws the motion a ton takes after a contact.
func (s *TonSource) nextMotion(rng *rand.Rand) components.Motion {
	return components.Motion(distuv.NewCategorical(s.motion[:], rng).Rand())
}

// emit draws a start position on the mesh and a direction along the surface
// normal, or cosine distributed around it for diffuse sources.
func (s *TonSource) emit(rng *rand.Rand) (mgl32.Vec3, mgl32.Vec3) {
	total := s.areaCDF[len(s.areaCDF)-1]
	i := min(sort.SearchFloat64s(s.areaCDF, rng.Float64()*total), len(s.areaCDF)-1)
	tri := &s.mesh.Triangles[i]
	u, v := rng.Float32(), rng.Float32()
	if u+v > 1 {
		u, v = 1-u, 1-v
	}
	vert := tri.Interpolate(u, v)
	n := tri.FaceNormal()
	if !s.diffuse {
		return vert.Position, n
	}
	return vert.Position, cosineHemisphere(n, rng)
}

// flowDirectionOr returns the static flow direction if configured.
func (s *TonSource) flowDirectionOr(def mgl32.Vec3) mgl32.Vec3 {
	if s.flowDirection != nil {
		return *s.flowDirection
	}
	return def
}

// TonSourceBuilder configures a TonSource.
type TonSourceBuilder struct {
	src TonSource
}

// NewTonSourceBuilder starts a source that emits straight along mesh normals.
func NewTonSourceBuilder() *TonSourceBuilder {
	b := &TonSourceBuilder{}
	b.src.motion[components.MotionStraight] = 1
	return b
}

func (b *TonSourceBuilder) Mesh(m *scene.Mesh) *TonSourceBuilder {
	b.src.mesh = m
	return b
}

// MeshShaped emits from the mesh surface, cosine distributed when diffuse.
func (b *TonSourceBuilder) MeshShaped(diffuse bool) *TonSourceBuilder {
	b.src.diffuse = diffuse
	return b
}

func (b *TonSourceBuilder) EmissionCount(n int) *TonSourceBuilder {
	b.src.emissionCount = n
	return b
}

// Motion sets the probabilities of the motions chosen after a contact.
func (b *TonSourceBuilder) Motion(straight, parabolic, flow float64) *TonSourceBuilder {
	b.src.motion = [components.NumMotions]float64{straight, parabolic, flow}
	return b
}

func (b *TonSourceBuilder) Substances(initial []float64) *TonSourceBuilder {
	b.src.substances = initial
	return b
}

func (b *TonSourceBuilder) PickupRates(rates []float64) *TonSourceBuilder {
	b.src.pickupRates = rates
	return b
}

func (b *TonSourceBuilder) InteractionRadius(r float32) *TonSourceBuilder {
	b.src.interactionRadius = r
	return b
}

func (b *TonSourceBuilder) ParabolaHeight(h float32) *TonSourceBuilder {
	b.src.parabolaHeight = h
	return b
}

func (b *TonSourceBuilder) FlowDistance(d float32) *TonSourceBuilder {
	b.src.flowDistance = d
	return b
}

// FlowDirectionStatic makes flowing tons follow dir instead of gravity.
func (b *TonSourceBuilder) FlowDirectionStatic(dir mgl32.Vec3) *TonSourceBuilder {
	if dir.Len() > 0 {
		dir = dir.Normalize()
		b.src.flowDirection = &dir
	}
	return b
}

// Build validates the configuration.
func (b *TonSourceBuilder) Build() (*TonSource, error) {
	src := b.src

	var sum float64
	for _, p := range src.motion {
		if p < 0 || math.IsNaN(p) {
			return nil, ErrMotionProbabilities
		}
		sum += p
	}
	if sum <= 0 {
		return nil, ErrMotionProbabilities
	}

	if src.mesh == nil || len(src.mesh.Triangles) == 0 {
		return nil, ErrEmptyEmissionMesh
	}
	areas := make([]float64, len(src.mesh.Triangles))
	for i := range src.mesh.Triangles {
		areas[i] = float64(src.mesh.Triangles[i].Area())
	}
	src.areaCDF = floats.CumSum(make([]float64, len(areas)), areas)
	if src.areaCDF[len(areas)-1] <= 0 {
		return nil, ErrEmptyEmissionMesh
	}

	if len(src.substances) != len(src.pickupRates) {
		return nil, fmt.Errorf("source has %d substances but %d pickup rates", len(src.substances), len(src.pickupRates))
	}
	if src.emissionCount < 0 {
		return nil, fmt.Errorf("negative emission count %d", src.emissionCount)
	}
	return &src, nil
}

// cosineHemisphere draws a direction around n with density proportional to
// the cosine of the angle to n.
func cosineHemisphere(n mgl32.Vec3, rng *rand.Rand) mgl32.Vec3 {
	r1, r2 := rng.Float64(), rng.Float64()
	phi := 2 * math.Pi * r1
	r := math.Sqrt(r2)
	x, y, z := r*math.Cos(phi), r*math.Sin(phi), math.Sqrt(1-r2)

	t, bt := tangentFrame(n)
	return t.Mul(float32(x)).Add(bt.Mul(float32(y))).Add(n.Mul(float32(z))).Normalize()
}

// tangentFrame returns two unit vectors orthogonal to n and each other.
func tangentFrame(n mgl32.Vec3) (mgl32.Vec3, mgl32.Vec3) {
	helper := mgl32.Vec3{1, 0, 0}
	if abs32(n[0]) > 0.9 {
		helper = mgl32.Vec3{0, 1, 0}
	}
	t := helper.Cross(n).Normalize()
	return t, n.Cross(t)
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
