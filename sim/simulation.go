// Package sim traces tons over a sampled surface and moves substances between
// tons and surfels.
package sim

import (
	"log/slog"
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/weathering/components"
	"github.com/pthm-cable/weathering/scene"
	"github.com/pthm-cable/weathering/spec"
	"github.com/pthm-cable/weathering/surf"
)

// Surface is a surface of simulated surfels.
type Surface = surf.Surface[SurfelData]

// Config tunes the simulation.
type Config struct {
	Transport spec.Transport
	// Threads bounds the worker pool; zero uses GOMAXPROCS.
	Threads int
	// MaxBounces ends a ton's trajectory after this many contacts.
	MaxBounces int
	// ParabolaSegments is the number of rays approximating a parabolic hop.
	ParabolaSegments int
	// Gravity is the default flow direction and the fall direction of hops.
	Gravity mgl32.Vec3
	Seed    uint64
}

// Simulation owns the tons of a pass and mutates the surfel state.
type Simulation struct {
	cfg     Config
	sources []*TonSource
	bvh     *bvh
	surface *Surface
	rules   []SurfelRule
	down    mgl32.Vec3

	world     *ecs.World
	tonMapper *ecs.Map4[components.Position, components.Velocity, components.Ton, components.Load]
	tonFilter *ecs.Filter4[components.Position, components.Velocity, components.Ton, components.Load]
	posMap    *ecs.Map1[components.Position]
	tonMap    *ecs.Map1[components.Ton]
	loadMap   *ecs.Map1[components.Load]

	pool       *workerPool
	snapshots  []tonSnapshot
	intents    []intent
	exchangers []*exchanger
	pass       uint64
	emitRNG    *rand.Rand
}

// tonSnapshot captures read-only ton state for the parallel phase.
type tonSnapshot struct {
	Entity ecs.Entity
	Source uint16
	Pos    mgl32.Vec3
	Dir    mgl32.Vec3
}

// contact is a set of surfels touched at one point of a trajectory.
type contact struct {
	surfels []int32
}

// intent captures a computed trajectory to apply after the parallel phase.
type intent struct {
	contacts []contact
	final    mgl32.Vec3
	bounces  int32
	settled  bool
}

// New creates a simulation over triangles with the given sources and surface.
// The surface is updated in place by Run.
func New(cfg Config, sources []*TonSource, triangles []scene.Triangle, surface *Surface, rules []SurfelRule) *Simulation {
	if cfg.MaxBounces <= 0 {
		cfg.MaxBounces = 32
	}
	if cfg.ParabolaSegments <= 0 {
		cfg.ParabolaSegments = 8
	}
	down := cfg.Gravity
	if down.Len() == 0 {
		down = mgl32.Vec3{0, -1, 0}
	}
	down = down.Normalize()

	world := ecs.NewWorld()
	s := &Simulation{
		cfg:     cfg,
		sources: sources,
		bvh:     newBVH(triangles),
		surface: surface,
		rules:   rules,
		down:    down,
		world:   world,
		tonMapper: ecs.NewMap4[
			components.Position,
			components.Velocity,
			components.Ton,
			components.Load,
		](world),
		tonFilter: ecs.NewFilter4[
			components.Position,
			components.Velocity,
			components.Ton,
			components.Load,
		](world),
		posMap:  ecs.NewMap1[components.Position](world),
		tonMap:  ecs.NewMap1[components.Ton](world),
		loadMap: ecs.NewMap1[components.Load](world),
		pool:    newWorkerPool(cfg.Threads),
		emitRNG: rand.New(rand.NewPCG(cfg.Seed, 0x5eed)),
	}
	return s
}

// Surface returns the simulated surface.
func (s *Simulation) Surface() *Surface { return s.surface }

// TonsPerPass returns the number of tons emitted per Run.
func (s *Simulation) TonsPerPass() int {
	n := 0
	for _, src := range s.sources {
		n += src.EmissionCount()
	}
	return n
}

// Close stops the worker pool.
func (s *Simulation) Close() {
	s.pool.stop()
}

// Run performs one pass: emit tons, trace them in parallel, exchange
// substances in ton order and apply surfel rules.
func (s *Simulation) Run() {
	s.pass++

	// Phase A: emit (single-threaded)
	s.emit()

	// Phase B: snapshot tons
	s.snapshots = s.snapshots[:0]
	query := s.tonFilter.Query()
	for query.Next() {
		pos, vel, ton, _ := query.Get()
		s.snapshots = append(s.snapshots, tonSnapshot{
			Entity: query.Entity(),
			Source: ton.Source,
			Pos:    pos.P,
			Dir:    vel.D,
		})
	}
	n := len(s.snapshots)
	if cap(s.intents) < n {
		s.intents = make([]intent, n)
	}
	s.intents = s.intents[:n]

	// Phase C: trace trajectories (parallel, read-only surface)
	s.pool.run(n, s.traceChunk)

	// Phase D: apply exchanges (single-threaded, one writer per surfel)
	contacts := s.applyIntents()

	// Phase E: surfel rules (parallel, disjoint surfels per worker)
	s.pool.run(s.surface.Len(), s.rulesChunk)

	// Phase F: tons do not outlive the pass
	for _, snap := range s.snapshots {
		s.tonMapper.Remove(snap.Entity)
	}

	slog.Debug("trace pass complete",
		"pass", s.pass,
		"tons", n,
		"contacts", contacts,
	)
}

func (s *Simulation) emit() {
	for si, src := range s.sources {
		for range src.EmissionCount() {
			p, d := src.emit(s.emitRNG)
			pos := components.Position{P: p}
			vel := components.Velocity{D: d}
			ton := components.Ton{Source: uint16(si), Motion: components.MotionStraight}
			load := components.Load{
				Substances:  append([]float64(nil), src.substances...),
				PickupRates: src.pickupRates,
			}
			s.tonMapper.NewEntity(&pos, &vel, &ton, &load)
		}
	}
}

func (s *Simulation) applyIntents() int {
	if len(s.exchangers) == 0 {
		numSubstances := 0
		if len(s.sources) > 0 {
			numSubstances = len(s.sources[0].substances)
		}
		s.exchangers = []*exchanger{newExchanger(s.cfg.Transport, numSubstances)}
	}
	x := s.exchangers[0]

	contacts := 0
	for i, snap := range s.snapshots {
		in := &s.intents[i]
		load := s.loadMap.Get(snap.Entity)
		if load == nil {
			continue
		}
		for _, c := range in.contacts {
			w := 1 / float64(len(c.surfels))
			for _, idx := range c.surfels {
				x.exchange(load, &s.surface.Samples[idx].Data, w)
			}
			contacts++
		}
		if pos := s.posMap.Get(snap.Entity); pos != nil {
			pos.P = in.final
		}
		if ton := s.tonMap.Get(snap.Entity); ton != nil {
			ton.Bounces = in.bounces
			ton.Settled = in.settled
		}
	}
	return contacts
}

func (s *Simulation) rulesChunk(start, end, _ int) {
	for i := start; i < end; i++ {
		data := &s.surface.Samples[i].Data
		for _, r := range data.Rules {
			r.Apply(data.Substances)
		}
		for _, r := range s.rules {
			r.Apply(data.Substances)
		}
	}
}
