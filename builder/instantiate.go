package builder

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/weathering/bencher"
	"github.com/pthm-cable/weathering/config"
	"github.com/pthm-cable/weathering/files"
	"github.com/pthm-cable/weathering/runner"
	"github.com/pthm-cable/weathering/scene"
	"github.com/pthm-cable/weathering/sim"
	"github.com/pthm-cable/weathering/spec"
	"github.com/pthm-cable/weathering/surf"
)

// fallbackMaterial is the material key whose surfel spec applies to every
// material without its own mapping.
const fallbackMaterial = "_"

// Options tunes instantiation beyond what a simulation spec describes.
type Options struct {
	// Engine configures tracing. Its Transport is replaced by the simulation's.
	Engine       sim.Config
	Oversampling int
	Runner       runner.Options
}

// OptionsFromConfig derives instantiation options from engine configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Engine: sim.Config{
			Threads:          cfg.Derived.Threads,
			MaxBounces:       cfg.Engine.MaxBounces,
			ParabolaSegments: cfg.Engine.ParabolaSegments,
			Gravity:          cfg.Derived.Gravity,
			Seed:             cfg.Engine.Seed,
		},
		Oversampling: cfg.Surface.Oversampling,
		Runner: runner.Options{
			Threads: cfg.Derived.Threads,
			DensityColors: &runner.DensityColors{
				Undefined: cfg.Derived.DensityUndefined,
				Min:       cfg.Derived.DensityMin,
				Max:       cfg.Derived.DensityMax,
			},
			PerfCSV: cfg.Runtime.PerfCSV,
		},
	}
}

// Instantiate loads everything s references and builds a runner for it.
// The steps run in a fixed order and the first failure is returned.
func Instantiate(ctx context.Context, s spec.SimulationSpec, resolver *files.Resolver, creationTime time.Time, opts Options) (*runner.Runner, error) {
	start := time.Now()

	surfelSpecs, err := loadSurfelSpecs(s.SurfelsByMaterial, resolver)
	if err != nil {
		return nil, err
	}

	entities, err := loadEntities(s.Scenes, resolver, surfelSpecs)
	if err != nil {
		return nil, err
	}

	sourceSpecs, err := loadSourceSpecs(s.Sources, resolver)
	if err != nil {
		return nil, err
	}

	substances := substanceTable(surfelSpecs, sourceSpecs)
	if len(substances) == 0 {
		return nil, ErrSubstancesMissing
	}

	if len(s.Effects) == 0 {
		return nil, ErrEffectsMissing
	}
	// Inline fragments leave layer samples unresolved.
	effects, err := Canonicalize(spec.SimulationSpec{Effects: s.Effects}, resolver)
	if err != nil {
		return nil, err
	}
	s.Effects = effects.Effects

	if s.SurfelDistance == nil || *s.SurfelDistance <= 0 {
		return nil, &InvalidSurfelDistanceError{Value: s.SurfelDistance}
	}

	sources, err := buildSources(sourceSpecs, resolver, substances)
	if err != nil {
		return nil, err
	}

	surface, err := buildSurface(entities, surfelSpecs, substances, *s.SurfelDistance, opts)
	if err != nil {
		return nil, err
	}

	rules, err := resolveRules(s.Rules, substances, "simulation rules")
	if err != nil {
		return nil, err
	}

	var triangles []scene.Triangle
	for _, e := range entities {
		triangles = append(triangles, e.Mesh.Triangles...)
	}
	cfg := opts.Engine
	cfg.Transport = s.TransportMode()
	simulation := sim.New(cfg, sources, triangles, surface, rules)

	datetime := files.Timestamp(creationTime)
	r, err := runner.New(ctx, s, substances, simulation, entities, datetime, opts.Runner)
	if err != nil {
		simulation.Close()
		return nil, err
	}

	if s.Benchmark != nil && s.Benchmark.Setup != nil {
		if err := recordSetup(*s.Benchmark.Setup, datetime, time.Since(start)); err != nil {
			r.Close()
			return nil, err
		}
	}
	return r, nil
}

// loadSurfelSpecs reads the surfel spec of every mapped material.
func loadSurfelSpecs(byMaterial map[string]string, resolver *files.Resolver) (map[string]spec.SurfelSpec, error) {
	if len(byMaterial) == 0 {
		return nil, ErrSurfelSpecsMissing
	}
	specs := make(map[string]spec.SurfelSpec, len(byMaterial))
	for _, material := range sortedKeys(byMaterial) {
		path, err := resolve(resolver, byMaterial[material], ResolveSurfelSpec)
		if err != nil {
			return nil, err
		}
		surfel, err := spec.LoadSurfelSpec(path)
		if err != nil {
			return nil, &LoadError{Role: "surfel spec", Path: path, Err: err}
		}
		specs[material] = surfel
	}
	return specs, nil
}

// loadEntities loads every scene. Without a fallback surfel spec, entities
// whose material has no surfel spec are dropped, which excludes them from
// sampling and from intersection tests.
func loadEntities(scenes []string, resolver *files.Resolver, surfelSpecs map[string]spec.SurfelSpec) ([]scene.Entity, error) {
	_, hasFallback := surfelSpecs[fallbackMaterial]
	var all []scene.Entity
	for _, p := range scenes {
		path, err := resolve(resolver, p, ResolveScene)
		if err != nil {
			return nil, err
		}
		entities, err := scene.LoadOBJ(path)
		if err != nil {
			return nil, &LoadError{Role: "scene", Path: path, Err: err}
		}
		for _, e := range entities {
			if _, ok := surfelSpecs[e.Material.Name()]; ok || hasFallback {
				all = append(all, e)
				continue
			}
			slog.Debug("ignoring entity without surfel spec", "entity", e.Name, "material", e.Material.Name())
		}
	}
	return all, nil
}

type loadedSource struct {
	path string
	spec spec.SourceSpec
}

func loadSourceSpecs(paths []string, resolver *files.Resolver) ([]loadedSource, error) {
	if len(paths) == 0 {
		return nil, ErrSourcesMissing
	}
	out := make([]loadedSource, 0, len(paths))
	for _, p := range paths {
		path, err := resolve(resolver, p, ResolveSourceSpec)
		if err != nil {
			return nil, err
		}
		src, err := spec.LoadSourceSpec(path)
		if err != nil {
			return nil, &LoadError{Role: "ton source spec", Path: path, Err: err}
		}
		out = append(out, loadedSource{path: path, spec: src})
	}
	return out, nil
}

// buildSources loads the emission meshes and aligns the per-substance values
// of every source to the substance table. Emission meshes are also resolved
// relative to the directory of their source spec.
func buildSources(loaded []loadedSource, resolver *files.Resolver, substances sim.Substances) ([]*sim.TonSource, error) {
	sources := make([]*sim.TonSource, 0, len(loaded))
	for _, l := range loaded {
		s := l.spec
		meshResolver := resolver.Clone()
		if err := meshResolver.AddBase(filepath.Dir(l.path)); err != nil {
			return nil, &ResolveError{Kind: ResolveSourceMesh, Path: s.Mesh, Err: err}
		}
		meshPath, err := resolve(meshResolver, s.Mesh, ResolveSourceMesh)
		if err != nil {
			return nil, err
		}
		meshScene, err := scene.LoadOBJ(meshPath)
		if err != nil {
			return nil, &LoadError{Role: "emission mesh", Path: meshPath, Err: err}
		}
		if len(meshScene) == 0 {
			return nil, &SourceError{Path: l.path, Err: sim.ErrEmptyEmissionMesh}
		}
		mesh := meshScene[0].Mesh
		if len(meshScene) > 1 {
			mesh = scene.MergeMeshes(meshScene)
		}

		b := sim.NewTonSourceBuilder().
			Mesh(mesh).
			MeshShaped(s.Diffuse).
			EmissionCount(s.EmissionCount).
			Motion(s.PStraight, s.PParabolic, s.PFlow).
			Substances(ExtractKeys(s.Initial, substances, 0)).
			PickupRates(ExtractKeys(s.Absorb, substances, 0)).
			InteractionRadius(float32(s.InteractionRadius)).
			ParabolaHeight(float32(s.ParabolaHeight)).
			FlowDistance(float32(s.FlowDistance))
		if d := s.FlowDirection; d != nil {
			b.FlowDirectionStatic(mgl32.Vec3{float32(d[0]), float32(d[1]), float32(d[2])})
		}
		src, err := b.Build()
		if err != nil {
			return nil, &SourceError{Path: l.path, Err: err}
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// buildSurface samples every entity that has a surfel spec, exact material
// match first, then the fallback.
func buildSurface(entities []scene.Entity, surfelSpecs map[string]spec.SurfelSpec, substances sim.Substances, distance float64, opts Options) (*sim.Surface, error) {
	b := surf.NewBuilder[sim.SurfelData](opts.Engine.Seed).MinimumDistance(float32(distance))
	if opts.Oversampling > 0 {
		b.Oversampling(opts.Oversampling)
	}

	fallback, hasFallback := surfelSpecs[fallbackMaterial]
	for idx, ent := range entities {
		material := ent.Material.Name()
		surfelSpec, ok := surfelSpecs[material]
		if !ok {
			if !hasFallback {
				continue
			}
			surfelSpec = fallback
		}

		rules, err := resolveRules(surfelSpec.Rules, substances, fmt.Sprintf("surfel rules of material %q", material))
		if err != nil {
			return nil, err
		}
		proto := sim.SurfelData{
			Entity:         idx,
			DeltaStraight:  surfelSpec.Reflectance.DeltaStraight,
			DeltaParabolic: surfelSpec.Reflectance.DeltaParabolic,
			DeltaFlow:      surfelSpec.Reflectance.DeltaFlow,
			Substances:     ExtractKeys(surfelSpec.Initial, substances, 0),
			Deposition:     ExtractKeys(surfelSpec.Deposit, substances, 0),
			Rules:          rules,
		}

		slog.Info("sampling entity into surfels", "entity", ent.Name, "material", material, "distance", distance)
		b.SampleTriangles(ent.Mesh.Triangles, proto.Clone)
	}
	return b.Build(), nil
}

func recordSetup(pattern, datetime string, elapsed time.Duration) error {
	path := files.Pattern(pattern).Expand(files.Vars{Datetime: datetime})
	b, err := bencher.Create(path)
	if err != nil {
		return &ResolveError{Kind: ResolveBenchmark, Path: path, Err: err}
	}
	b.Record(elapsed)
	return b.Flush()
}
