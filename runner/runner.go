// Package runner drives a simulation through its iterations and synthesizes
// textures and scenes from the surface state with the configured effects.
package runner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pthm-cable/weathering/bencher"
	"github.com/pthm-cable/weathering/errcode"
	"github.com/pthm-cable/weathering/files"
	"github.com/pthm-cable/weathering/scene"
	"github.com/pthm-cable/weathering/sim"
	"github.com/pthm-cable/weathering/spec"
	"github.com/pthm-cable/weathering/telemetry"
)

// perfWindow is the number of iterations averaged in performance stats.
const perfWindow = 16

// DensityColors are the colours of density textures.
type DensityColors struct {
	Undefined color.NRGBA
	Min       color.NRGBA
	Max       color.NRGBA
}

// Options tunes a runner beyond its spec.
type Options struct {
	// Threads bounds the goroutines building surfel tables.
	Threads int
	// DensityColors overrides the white to black density palette.
	DensityColors *DensityColors
	// PerfCSV, if set, receives rolling iteration timings.
	PerfCSV string
}

type benchmarks struct {
	iterations *bencher.Bencher
	tracing    *bencher.Bencher
	synthesis  *bencher.Bencher
}

// blendKey identifies one channel blend of one entity within a layer effect.
type blendKey struct {
	effect  int
	entity  int
	channel scene.Channel
}

// Runner owns a simulation and the entities it was built from.
type Runner struct {
	spec       spec.SimulationSpec
	substances sim.Substances
	sim        *sim.Simulation
	entities   []scene.Entity
	datetime   string
	opts       Options

	iteration uint

	tables *SurfelTableCache
	// layerSubstances holds the substance index per layer effect index.
	layerSubstances map[int]int
	// blendSizes holds the output size of every blend, fixed from the
	// baseline materials at construction.
	blendSizes map[blendKey]image.Point
	images     map[string]image.Image

	benches benchmarks
	perf    *telemetry.PerfCollector
	perfOut *telemetry.PerfWriter
	tracer  trace.Tracer
	closed  bool
}

// New validates the effects of s against the substance table, opens the
// benchmark sinks and builds every surfel table the effects will query.
// The runner takes ownership of simulation.
func New(ctx context.Context, s spec.SimulationSpec, substances sim.Substances, simulation *sim.Simulation, entities []scene.Entity, datetime string, opts Options) (*Runner, error) {
	r := &Runner{
		spec:            s,
		substances:      substances,
		sim:             simulation,
		entities:        entities,
		datetime:        datetime,
		opts:            opts,
		tables:          NewSurfelTableCache(opts.Threads),
		layerSubstances: make(map[int]int),
		blendSizes:      make(map[blendKey]image.Point),
		images:          make(map[string]image.Image),
		perf:            telemetry.NewPerfCollector(perfWindow),
		tracer:          otel.Tracer(telemetry.ServiceName),
	}

	if err := r.validateEffects(); err != nil {
		return nil, err
	}

	var err error
	if r.benches, err = openBenchmarks(s.Benchmark, datetime); err != nil {
		return nil, err
	}
	if r.perfOut, err = telemetry.NewPerfWriter(opts.PerfCSV); err != nil {
		r.closeBenchmarks()
		return nil, err
	}

	if err := r.prepareTables(ctx); err != nil {
		r.closeBenchmarks()
		r.perfOut.Close()
		return nil, err
	}
	return r, nil
}

func (r *Runner) validateEffects() error {
	for i, effect := range r.spec.Effects {
		switch {
		case effect.Density != nil:
			if err := checkExportPair(effect.Density.ObjPattern, effect.Density.MtlPattern); err != nil {
				return fmt.Errorf("density effect %d: %w", i, err)
			}
		case effect.Export != nil:
			if err := checkExportPair(effect.Export.ObjPattern, effect.Export.MtlPattern); err != nil {
				return fmt.Errorf("export effect %d: %w", i, err)
			}
		case effect.Layer != nil:
			idx, err := r.substances.Lookup(effect.Layer.Substance, fmt.Sprintf("layer effect %d", i))
			if err != nil {
				return err
			}
			r.layerSubstances[i] = idx
		}
	}
	return nil
}

func checkExportPair(obj, mtl string) error {
	if (obj == "") != (mtl == "") {
		return ErrExportPairIncomplete
	}
	return nil
}

func openBenchmarks(b *spec.BenchSpec, datetime string) (benchmarks, error) {
	var out benchmarks
	if b == nil {
		return out, nil
	}
	for _, t := range []struct {
		pattern *string
		dst     **bencher.Bencher
	}{
		{b.Iterations, &out.iterations},
		{b.Tracing, &out.tracing},
		{b.Synthesis, &out.synthesis},
	} {
		if t.pattern == nil {
			continue
		}
		path := files.Pattern(*t.pattern).Expand(files.Vars{Datetime: datetime})
		bench, err := bencher.Create(path)
		if err != nil {
			out.flush()
			return benchmarks{}, outputError("benchmark", path, err)
		}
		*t.dst = bench
	}
	return out, nil
}

func (b benchmarks) flush() error {
	return errors.Join(b.iterations.Flush(), b.tracing.Flush(), b.synthesis.Flush())
}

// prepareTables builds the surfel table of every entity and resolution that
// density and layer effects will look up.
func (r *Runner) prepareTables(ctx context.Context) error {
	surface := r.sim.Surface()
	for i, effect := range r.spec.Effects {
		switch {
		case effect.Density != nil:
			d := effect.Density
			for idx := range r.entities {
				if err := r.tables.Prepare(ctx, idx, d.Width, d.Height, d.SurfelLookup, d.IslandBleed, r.entities, surface); err != nil {
					return fmt.Errorf("density effect %d: %w", i, err)
				}
			}
		case effect.Layer != nil:
			l := effect.Layer
			for idx, ent := range r.entities {
				if !l.AppliesTo(ent.Material.Name()) {
					continue
				}
				for _, ch := range layerChannels(l) {
					w, h, err := BlendOutputSize(ch.blend, ent.Material.Map(ch.channel))
					if err != nil {
						return fmt.Errorf("layer effect %d, %s of entity %q: %w", i, ch.channel, ent.Name, err)
					}
					r.blendSizes[blendKey{effect: i, entity: idx, channel: ch.channel}] = image.Pt(w, h)
					if err := r.tables.Prepare(ctx, idx, w, h, l.SurfelLookup, l.IslandBleed, r.entities, surface); err != nil {
						return fmt.Errorf("layer effect %d: %w", i, err)
					}
				}
			}
		}
	}
	if r.tables.Len() > 0 {
		slog.Info("surfel table pre-calculation complete", "tables", r.tables.Len())
	}
	return nil
}

// ShouldSynthesize reports whether effects run after the given iteration.
// Iteration 0 is the setup pass and the last iteration always synthesizes;
// in between an interval of n synthesizes every n-th iteration.
func ShouldSynthesize(iteration, iterations uint, interval *uint) bool {
	if iteration == 0 || iteration == iterations {
		return true
	}
	return interval != nil && *interval > 0 && iteration%*interval == 0
}

// Iterations returns the configured number of tracing iterations.
func (r *Runner) Iterations() uint { return r.spec.IterationCount() }

// Substances returns the substance table.
func (r *Runner) Substances() sim.Substances { return r.substances }

// Tables exposes the surfel table cache.
func (r *Runner) Tables() *SurfelTableCache { return r.tables }

// Run applies the effects to the initial surface, then runs every
// iteration. Failures abort the run.
func (r *Runner) Run(ctx context.Context) error {
	iterations := r.Iterations()
	slog.Info("starting simulation", "name", r.spec.Name, "iterations", iterations)

	r.iteration = 0
	if err := r.synthesize(ctx); err != nil {
		return err
	}

	for i := uint(1); i <= iterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.iteration = i
		if err := r.performIteration(ctx, iterations); err != nil {
			return err
		}
	}

	r.perf.Stats().LogStats()
	return nil
}

func (r *Runner) performIteration(ctx context.Context, iterations uint) error {
	ctx, span := r.tracer.Start(ctx, "iteration",
		trace.WithAttributes(attribute.Int("iteration", int(r.iteration))))
	defer span.End()

	bench := r.benches.iterations.Bench()
	defer bench.Stop()

	r.perf.StartIteration()
	r.perf.StartPhase(telemetry.PhaseTrace)
	r.trace(ctx)

	if ShouldSynthesize(r.iteration, iterations, r.spec.EffectInterval) {
		r.perf.StartPhase(telemetry.PhaseSynthesize)
		if err := r.synthesize(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}
	r.perf.EndIteration()

	if err := r.perfOut.Write(r.perf.Stats(), int(r.iteration)); err != nil {
		slog.Warn("perf output failed", "error", err)
	}
	slog.Debug("iteration complete", "iteration", r.iteration, "of", iterations)
	return nil
}

func (r *Runner) trace(ctx context.Context) {
	_, span := r.tracer.Start(ctx, "trace")
	defer span.End()
	bench := r.benches.tracing.Bench()
	defer bench.Stop()

	r.sim.Run()
}

// synthesize runs every effect in order on a fresh copy of the entities.
func (r *Runner) synthesize(ctx context.Context) error {
	ctx, span := r.tracer.Start(ctx, "synthesize",
		trace.WithAttributes(attribute.Int("iteration", int(r.iteration))))
	defer span.End()
	bench := r.benches.synthesis.Bench()
	defer bench.Stop()

	entities := scene.CloneEntities(r.entities)
	for i, effect := range r.spec.Effects {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.performEffect(i, effect, entities); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("iteration %d, %s effect %d: %w", r.iteration, effect.Kind(), i, err)
		}
	}
	r.logSubstanceStats()
	return nil
}

// logSubstanceStats summarizes the surface state that the effects just
// rendered.
func (r *Runner) logSubstanceStats() {
	samples := r.sim.Surface().Samples
	values := make([]float64, len(samples))
	for idx, name := range r.substances {
		for i := range samples {
			values[i] = samples[i].Data.Substances[idx]
		}
		telemetry.ComputeSubstanceStats(int(r.iteration), name, values).LogStats()
	}
}

func (r *Runner) performEffect(idx int, effect spec.EffectSpec, entities []scene.Entity) error {
	switch {
	case effect.Density != nil:
		return r.density(effect.Density)
	case effect.Layer != nil:
		return r.layer(idx, effect.Layer, entities)
	case effect.Export != nil:
		return r.exportScene(entities, effect.Export.ObjPattern, effect.Export.MtlPattern, "all")
	case effect.DumpSurfels != nil:
		return r.dumpSurfels(effect.DumpSurfels.ObjPattern)
	}
	return nil
}

func (r *Runner) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name:               %s\n", r.spec.Name)
	fmt.Fprintf(&b, "Description:        %s\n", r.spec.Description)
	for _, s := range r.spec.Scenes {
		fmt.Fprintf(&b, "Scene:              %s\n", filepath.Base(s))
	}
	fmt.Fprintf(&b, "Iterations:         %d\n", r.Iterations())
	fmt.Fprintf(&b, "Surfels:            %d\n", r.sim.Surface().Len())
	fmt.Fprintf(&b, "Tons per iteration: %d\n", r.sim.TonsPerPass())
	fmt.Fprintf(&b, "Substances:         %q", []string(r.substances))
	return b.String()
}

// Close persists all pending benchmark samples and releases the simulation.
// Closing twice is a no-op.
func (r *Runner) Close() error {
	if r == nil || r.closed {
		return nil
	}
	r.closed = true
	err := errors.Join(r.closeBenchmarks(), r.perfOut.Close())
	r.sim.Close()
	if err != nil {
		return errcode.Wrap(errcode.CodeOutput, "closing runner", err)
	}
	return nil
}

func (r *Runner) closeBenchmarks() error {
	return r.benches.flush()
}
