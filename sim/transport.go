package sim

import (
	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/weathering/components"
	"github.com/pthm-cable/weathering/spec"
)

// exchanger moves substances between a ton and a surfel on contact. It owns
// scratch buffers and is used by a single goroutine.
type exchanger struct {
	mode spec.Transport
	dep  []float64
	pick []float64
}

func newExchanger(mode spec.Transport, substances int) *exchanger {
	return &exchanger{
		mode: mode,
		dep:  make([]float64, substances),
		pick: make([]float64, substances),
	}
}

// exchange applies one contact between ton and surfel. w weights the contact
// when a ton touches several surfels at once.
func (x *exchanger) exchange(ton *components.Load, surfel *SurfelData, w float64) {
	t, s := ton.Substances, surfel.Substances

	switch x.mode {
	case spec.TransportClassic:
		// Surfel gains the deposit and the ton gains the pickup, neither
		// side pays for it.
		floats.MulTo(x.dep, surfel.Deposition, t)
		floats.MulTo(x.pick, ton.PickupRates, s)
		floats.AddScaled(s, w, x.dep)
		floats.AddScaled(t, w, x.pick)

	case spec.TransportConsistent:
		floats.MulTo(x.dep, surfel.Deposition, t)
		floats.Scale(w, x.dep)
		floats.Add(s, x.dep)
		floats.Sub(t, x.dep)
		floats.MulTo(x.pick, ton.PickupRates, s)
		floats.Scale(w, x.pick)
		floats.Sub(s, x.pick)
		floats.Add(t, x.pick)

	case spec.TransportConserving:
		floats.MulTo(x.dep, surfel.Deposition, t)
		floats.MulTo(x.pick, ton.PickupRates, s)
		floats.Scale(w, x.dep)
		floats.Scale(w, x.pick)
		floats.Add(s, x.dep)
		floats.Sub(s, x.pick)
		floats.Add(t, x.pick)
		floats.Sub(t, x.dep)

	default:
		// Differential: mass follows the concentration gradient, at the
		// deposition rate towards the surfel and the pickup rate back.
		floats.SubTo(x.dep, t, s)
		for i, diff := range x.dep {
			if diff > 0 {
				x.dep[i] = w * surfel.Deposition[i] * diff
			} else {
				x.dep[i] = w * ton.PickupRates[i] * diff
			}
		}
		floats.Add(s, x.dep)
		floats.Sub(t, x.dep)
	}

	clampNonNegative(s)
	clampNonNegative(t)
}

func clampNonNegative(v []float64) {
	for i, c := range v {
		if c < 0 {
			v[i] = 0
		}
	}
}
