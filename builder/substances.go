package builder

import (
	"slices"

	"github.com/pthm-cable/weathering/sim"
	"github.com/pthm-cable/weathering/spec"
)

// ExtractKeys returns a vector aligned to names holding the value of each
// name in values, or def where values has none.
func ExtractKeys(values map[string]float64, names []string, def float64) []float64 {
	out := make([]float64, len(names))
	for i, name := range names {
		if v, ok := values[name]; ok {
			out[i] = v
		} else {
			out[i] = def
		}
	}
	return out
}

// substanceTable collects every substance mentioned by surfel and source
// specs. The order only depends on the specs: surfel specs by material name,
// then sources in declaration order, keys sorted within each map.
func substanceTable(surfelSpecs map[string]spec.SurfelSpec, sources []loadedSource) sim.Substances {
	var table sim.Substances
	add := func(values map[string]float64) {
		for _, name := range sortedKeys(values) {
			if !slices.Contains(table, name) {
				table = append(table, name)
			}
		}
	}
	for _, material := range sortedKeys(surfelSpecs) {
		s := surfelSpecs[material]
		add(s.Initial)
		add(s.Deposit)
	}
	for _, src := range sources {
		add(src.spec.Initial)
		add(src.spec.Absorb)
	}
	return table
}

func resolveRules(specs []spec.SurfelRuleSpec, substances sim.Substances, context string) ([]sim.SurfelRule, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	rules := make([]sim.SurfelRule, 0, len(specs))
	for _, s := range specs {
		r, err := resolveRule(s, substances, context)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func resolveRule(s spec.SurfelRuleSpec, substances sim.Substances, context string) (sim.SurfelRule, error) {
	switch {
	case s.Transfer != nil:
		from, err := substances.Lookup(s.Transfer.From, context)
		if err != nil {
			return sim.SurfelRule{}, err
		}
		to, err := substances.Lookup(s.Transfer.To, context)
		if err != nil {
			return sim.SurfelRule{}, err
		}
		return sim.Transfer(from, to, s.Transfer.Factor), nil
	case s.Deteriorate != nil:
		from, err := substances.Lookup(s.Deteriorate.From, context)
		if err != nil {
			return sim.SurfelRule{}, err
		}
		return sim.Deteriorate(from, s.Deteriorate.Factor), nil
	case s.Deposit != nil:
		to, err := substances.Lookup(s.Deposit.To, context)
		if err != nil {
			return sim.SurfelRule{}, err
		}
		return sim.Deposit(to, s.Deposit.Amount), nil
	}
	return sim.SurfelRule{}, &UnknownSubstanceError{Name: "", Context: context}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
