package telemetry

import (
	"log/slog"
	"math"
	"sort"
)

// SubstanceStats summarizes the concentration of one substance over all
// surfels at the end of an iteration.
type SubstanceStats struct {
	Iteration int     `csv:"iteration"`
	Substance string  `csv:"substance"`
	Surfels   int     `csv:"surfels"`
	Total     float64 `csv:"total"`
	Mean      float64 `csv:"mean"`
	Std       float64 `csv:"std"`
	P10       float64 `csv:"p10"`
	P50       float64 `csv:"p50"`
	P90       float64 `csv:"p90"`
	Max       float64 `csv:"max"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeSubstanceStats calculates totals, mean, standard deviation and
// percentiles of values.
func ComputeSubstanceStats(iteration int, substance string, values []float64) SubstanceStats {
	s := SubstanceStats{Iteration: iteration, Substance: substance, Surfels: len(values)}
	n := len(values)
	if n == 0 {
		return s
	}

	for _, v := range values {
		s.Total += v
	}
	s.Mean = s.Total / float64(n)

	var sqDiffSum float64
	for _, v := range values {
		d := v - s.Mean
		sqDiffSum += d * d
	}
	s.Std = math.Sqrt(sqDiffSum / float64(n))

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	s.P10 = Percentile(sorted, 0.10)
	s.P50 = Percentile(sorted, 0.50)
	s.P90 = Percentile(sorted, 0.90)
	s.Max = sorted[n-1]
	return s
}

// LogValue implements slog.LogValuer for structured logging.
func (s SubstanceStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("iteration", s.Iteration),
		slog.String("substance", s.Substance),
		slog.Int("surfels", s.Surfels),
		slog.Float64("total", s.Total),
		slog.Float64("mean", s.Mean),
		slog.Float64("std", s.Std),
		slog.Float64("p10", s.P10),
		slog.Float64("p50", s.P50),
		slog.Float64("p90", s.P90),
		slog.Float64("max", s.Max),
	)
}

// LogStats logs the substance stats using slog.
func (s SubstanceStats) LogStats() {
	slog.Info("substance",
		"iteration", s.Iteration,
		"substance", s.Substance,
		"mean", s.Mean,
		"p50", s.P50,
		"p90", s.P90,
		"max", s.Max,
	)
}
