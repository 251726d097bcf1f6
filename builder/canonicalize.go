package builder

import (
	"maps"
	"slices"

	"github.com/pthm-cable/weathering/files"
	"github.com/pthm-cable/weathering/spec"
)

// Canonicalize returns a copy of s in which every input path (scenes, source
// specs, surfel specs and layer stop samples) is replaced by its canonical
// form found through resolver. Output patterns are left alone.
func Canonicalize(s spec.SimulationSpec, resolver *files.Resolver) (spec.SimulationSpec, error) {
	var err error
	if s.Scenes, err = resolveAll(s.Scenes, resolver, ResolveScene); err != nil {
		return spec.SimulationSpec{}, err
	}
	if s.Sources, err = resolveAll(s.Sources, resolver, ResolveSourceSpec); err != nil {
		return spec.SimulationSpec{}, err
	}

	if s.SurfelsByMaterial != nil {
		surfels := maps.Clone(s.SurfelsByMaterial)
		for material, path := range surfels {
			canon, err := resolve(resolver, path, ResolveSurfelSpec)
			if err != nil {
				return spec.SimulationSpec{}, err
			}
			surfels[material] = canon
		}
		s.SurfelsByMaterial = surfels
	}

	if s.Effects != nil {
		effects := slices.Clone(s.Effects)
		for i := range effects {
			if effects[i].Layer == nil {
				continue
			}
			layer, err := canonicalizeLayer(*effects[i].Layer, resolver)
			if err != nil {
				return spec.SimulationSpec{}, err
			}
			effects[i].Layer = &layer
		}
		s.Effects = effects
	}
	return s, nil
}

func canonicalizeLayer(l spec.LayerSpec, resolver *files.Resolver) (spec.LayerSpec, error) {
	for _, blend := range []**spec.BlendSpec{&l.Normal, &l.Displacement, &l.Albedo, &l.Metallicity, &l.Roughness} {
		if *blend == nil {
			continue
		}
		b := **blend
		b.Stops = slices.Clone(b.Stops)
		for i, stop := range b.Stops {
			if stop.Sample == nil {
				continue
			}
			canon, err := resolve(resolver, *stop.Sample, ResolveLayerSample)
			if err != nil {
				return spec.LayerSpec{}, err
			}
			b.Stops[i].Sample = &canon
		}
		*blend = &b
	}
	return l, nil
}

func resolveAll(paths []string, resolver *files.Resolver, kind ResolveKind) ([]string, error) {
	if paths == nil {
		return nil, nil
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		canon, err := resolve(resolver, p, kind)
		if err != nil {
			return nil, err
		}
		out[i] = canon
	}
	return out, nil
}

func resolve(resolver *files.Resolver, path string, kind ResolveKind) (string, error) {
	canon, err := resolver.Resolve(path)
	if err != nil {
		return "", &ResolveError{Kind: kind, Path: path, Err: err}
	}
	return canon, nil
}
