package spec

import (
	"log/slog"
	"maps"
	"slices"
	"strings"
)

// Append merges second into first and returns the combination. Neither input
// is modified.
//
// Names are joined with "-" and descriptions with a blank line. Scalars are
// taken from second when present. Lists are concatenated and the material
// mapping is a union where second wins on collision. Differing iteration
// counts, surfel distances and log targets are logged as warnings.
func Append(first, second SimulationSpec) SimulationSpec {
	return SimulationSpec{
		Name:                appendText(first.Name, second.Name, "-"),
		Description:         appendText(first.Description, second.Description, "\n\n"),
		Scenes:              concat(first.Scenes, second.Scenes),
		Iterations:          overrideWarn("iterations", first.Iterations, second.Iterations),
		EffectInterval:      override(first.EffectInterval, second.EffectInterval),
		Log:                 overrideWarn("log", first.Log, second.Log),
		SurfelDistance:      overrideWarn("surfel_distance", first.SurfelDistance, second.SurfelDistance),
		Sources:             concat(first.Sources, second.Sources),
		SurfelsByMaterial:   union(first.SurfelsByMaterial, second.SurfelsByMaterial),
		Effects:             concat(first.Effects, second.Effects),
		Benchmark:           appendBench(first.Benchmark, second.Benchmark),
		Transport:           override(first.Transport, second.Transport),
		ConsistentTransport: override(first.ConsistentTransport, second.ConsistentTransport),
		Rules:               concat(first.Rules, second.Rules),
	}
}

// AppendAll folds fragments left to right, starting from an empty spec.
func AppendAll(fragments ...SimulationSpec) SimulationSpec {
	var acc SimulationSpec
	for _, f := range fragments {
		acc = Append(acc, f)
	}
	return acc
}

func appendText(first, second, delim string) string {
	first = strings.TrimSpace(first)
	second = strings.TrimSpace(second)
	switch {
	case first == "":
		return second
	case second == "":
		return first
	}
	return first + delim + second
}

func override[T any](first, second *T) *T {
	if second != nil {
		return clonePtr(second)
	}
	return clonePtr(first)
}

func overrideWarn[T comparable](field string, first, second *T) *T {
	if first != nil && second != nil && *first != *second {
		slog.Warn("conflicting values in merged simulation specs, using the later one",
			"field", field,
			"first", *first,
			"second", *second,
		)
	}
	return override(first, second)
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func concat[T any](first, second []T) []T {
	if len(first)+len(second) == 0 {
		return nil
	}
	out := make([]T, 0, len(first)+len(second))
	out = append(out, first...)
	return append(out, second...)
}

func union(first, second map[string]string) map[string]string {
	if len(first)+len(second) == 0 {
		return nil
	}
	out := maps.Clone(first)
	if out == nil {
		out = make(map[string]string, len(second))
	}
	maps.Copy(out, second)
	return out
}

func appendBench(first, second *BenchSpec) *BenchSpec {
	switch {
	case first == nil && second == nil:
		return nil
	case first == nil:
		return clonePtr(second)
	case second == nil:
		return clonePtr(first)
	}
	return &BenchSpec{
		Iterations: override(first.Iterations, second.Iterations),
		Tracing:    override(first.Tracing, second.Tracing),
		Synthesis:  override(first.Synthesis, second.Synthesis),
		Setup:      override(first.Setup, second.Setup),
	}
}

// MaterialNames returns the keys of the material mapping in sorted order.
func (s *SimulationSpec) MaterialNames() []string {
	return slices.Sorted(maps.Keys(s.SurfelsByMaterial))
}
