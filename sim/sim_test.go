package sim

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/weathering/components"
	"github.com/pthm-cable/weathering/scene"
	"github.com/pthm-cable/weathering/spec"
	"github.com/pthm-cable/weathering/surf"
)

// quad returns a unit square at height y in the xz plane, facing up or down.
func quad(y float32, up bool) []scene.Triangle {
	v := func(x, z float32) scene.Vertex {
		return scene.Vertex{Position: mgl32.Vec3{x, y, z}, TexCoords: mgl32.Vec2{x, z}}
	}
	if up {
		return []scene.Triangle{
			{v(0, 0), v(0, 1), v(1, 1)},
			{v(0, 0), v(1, 1), v(1, 0)},
		}
	}
	return []scene.Triangle{
		{v(0, 0), v(1, 1), v(0, 1)},
		{v(0, 0), v(1, 0), v(1, 1)},
	}
}

func TestQuadOrientation(t *testing.T) {
	if n := quad(0, true)[0].FaceNormal(); n[1] < 0.99 {
		t.Fatalf("expected up normal, got %v", n)
	}
	if n := quad(0, false)[0].FaceNormal(); n[1] > -0.99 {
		t.Fatalf("expected down normal, got %v", n)
	}
}

func TestBVHCast(t *testing.T) {
	var tris []scene.Triangle
	for i := range 10 {
		tris = append(tris, quad(float32(i), true)...)
	}
	b := newBVH(tris)

	h, ok := b.cast(mgl32.Vec3{0.5, 9.5, 0.5}, mgl32.Vec3{0, -1, 0}, farAway)
	if !ok {
		t.Fatal("expected hit")
	}
	if math.Abs(float64(h.point[1]-9)) > 1e-4 {
		t.Errorf("expected closest hit at y=9, got %v", h.point)
	}
	if h.normal[1] < 0.99 {
		t.Errorf("normal should face the ray, got %v", h.normal)
	}

	if _, ok := b.cast(mgl32.Vec3{0.5, 9.5, 0.5}, mgl32.Vec3{0, -1, 0}, 0.2); ok {
		t.Error("hit beyond max distance")
	}
	if _, ok := b.cast(mgl32.Vec3{5, 9.5, 5}, mgl32.Vec3{0, -1, 0}, farAway); ok {
		t.Error("hit outside geometry")
	}
	if _, ok := b.cast(mgl32.Vec3{0.5, 9.5, 0.5}, mgl32.Vec3{1, 0, 0}, farAway); ok {
		t.Error("parallel ray should miss")
	}
}

func TestRules(t *testing.T) {
	s := []float64{1, 0.5, 0}
	Transfer(0, 2, 0.25).Apply(s)
	if s[0] != 0.75 || s[2] != 0.25 {
		t.Errorf("transfer: got %v", s)
	}
	Deteriorate(1, 0.5).Apply(s)
	if s[1] != 0.25 {
		t.Errorf("deteriorate: got %v", s)
	}
	Deposit(1, 0.1).Apply(s)
	if math.Abs(s[1]-0.35) > 1e-12 {
		t.Errorf("deposit: got %v", s)
	}
	Deposit(1, -1).Apply(s)
	if s[1] != 0 {
		t.Errorf("concentration must not go negative, got %v", s[1])
	}
}

func TestExchangeModes(t *testing.T) {
	tests := []struct {
		mode     spec.Transport
		conserve bool
	}{
		{spec.TransportClassic, false},
		{spec.TransportConsistent, true},
		{spec.TransportConserving, true},
		{spec.TransportDifferential, true},
	}
	for _, tt := range tests {
		ton := &components.Load{Substances: []float64{1, 0}, PickupRates: []float64{0.2, 0.3}}
		surfel := &SurfelData{Substances: []float64{0.2, 1}, Deposition: []float64{0.5, 0.1}}
		before := floats.Sum(ton.Substances) + floats.Sum(surfel.Substances)

		newExchanger(tt.mode, 2).exchange(ton, surfel, 1)

		after := floats.Sum(ton.Substances) + floats.Sum(surfel.Substances)
		if tt.conserve && math.Abs(after-before) > 1e-12 {
			t.Errorf("%s: total changed from %v to %v", tt.mode, before, after)
		}
		if !tt.conserve && after <= before {
			t.Errorf("%s: expected substance to be created, %v -> %v", tt.mode, before, after)
		}
		if surfel.Substances[0] <= 0.2 {
			t.Errorf("%s: surfel should have gained substance 0, got %v", tt.mode, surfel.Substances[0])
		}
	}
}

func TestSourceValidation(t *testing.T) {
	mesh := &scene.Mesh{Triangles: quad(1, false)}
	if _, err := NewTonSourceBuilder().Mesh(mesh).Motion(0, 0, 0).Build(); err != ErrMotionProbabilities {
		t.Errorf("expected ErrMotionProbabilities, got %v", err)
	}
	if _, err := NewTonSourceBuilder().Mesh(mesh).Motion(1, -1, 0.5).Build(); err != ErrMotionProbabilities {
		t.Errorf("expected ErrMotionProbabilities for negative weight, got %v", err)
	}
	if _, err := NewTonSourceBuilder().Mesh(&scene.Mesh{}).Build(); err != ErrEmptyEmissionMesh {
		t.Errorf("expected ErrEmptyEmissionMesh, got %v", err)
	}
}

func rainSimulation(t *testing.T, mode spec.Transport, threads int) *Simulation {
	t.Helper()
	src, err := NewTonSourceBuilder().
		Mesh(&scene.Mesh{Triangles: quad(1, false)}).
		EmissionCount(200).
		Motion(0.5, 0.25, 0.25).
		Substances([]float64{1, 0}).
		PickupRates([]float64{0, 0.1}).
		InteractionRadius(0.1).
		ParabolaHeight(0.1).
		FlowDistance(0.1).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	ground := quad(0, true)
	surface := surf.NewBuilder[SurfelData](7).
		MinimumDistance(0.05).
		SampleTriangles(ground, func() SurfelData {
			return SurfelData{
				DeltaStraight:  0.5,
				DeltaParabolic: 0.5,
				DeltaFlow:      0.5,
				Substances:     []float64{0, 0.5},
				Deposition:     []float64{0.5, 0},
				Rules:          []SurfelRule{Transfer(0, 1, 0.1)},
			}
		}).
		Build()

	sim := New(Config{Transport: mode, Threads: threads, Seed: 3}, []*TonSource{src}, ground, surface, nil)
	t.Cleanup(sim.Close)
	return sim
}

func totals(s *Surface) []float64 {
	out := make([]float64, 2)
	for _, sf := range s.Samples {
		floats.Add(out, sf.Data.Substances)
	}
	return out
}

func TestRunDepositsOnSurface(t *testing.T) {
	sim := rainSimulation(t, spec.TransportConserving, 4)
	before := totals(sim.Surface())

	sim.Run()

	after := totals(sim.Surface())
	if after[0]+after[1] <= before[0]+before[1] {
		t.Errorf("expected rain to add substance, before %v after %v", before, after)
	}
	if after[0]+after[1]-before[0]-before[1] > 200 {
		t.Errorf("conserving transport cannot deposit more than emitted, gained %v", after[0]+after[1]-before[0]-before[1])
	}
	if sim.TonsPerPass() != 200 {
		t.Errorf("expected 200 tons per pass, got %d", sim.TonsPerPass())
	}

	// Tons are removed after each pass.
	q := sim.tonFilter.Query()
	count := 0
	for q.Next() {
		count++
	}
	if count != 0 {
		t.Errorf("expected no tons after pass, got %d", count)
	}
}

func TestRunIsDeterministicAcrossThreadCounts(t *testing.T) {
	a := rainSimulation(t, spec.TransportDifferential, 1)
	b := rainSimulation(t, spec.TransportDifferential, 8)
	a.Run()
	b.Run()

	ta, tb := totals(a.Surface()), totals(b.Surface())
	if !floats.EqualApprox(ta, tb, 1e-9) {
		t.Errorf("results differ between thread counts: %v vs %v", ta, tb)
	}
}
