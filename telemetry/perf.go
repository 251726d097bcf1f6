package telemetry

import (
	"log/slog"
	"time"
)

// Phase names for one runner iteration.
const (
	PhaseTrace      = "trace"
	PhaseSynthesize = "synthesize"
)

// PerfSample holds timing data for a single iteration.
type PerfSample struct {
	IterationDuration time.Duration
	Phases            map[string]time.Duration
}

// PerfCollector tracks iteration timings over a rolling window.
type PerfCollector struct {
	windowSize    int
	samples       []PerfSample
	writeIndex    int
	sampleCount   int
	currentPhases map[string]time.Duration
	iterStart     time.Time
	phaseStart    time.Time
	lastPhase     string
}

// NewPerfCollector creates a new performance collector.
// windowSize: number of iterations to average over.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 16
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// StartIteration begins timing a new iteration.
func (p *PerfCollector) StartIteration() {
	if p == nil {
		return
	}
	p.iterStart = time.Now()
	p.currentPhases = make(map[string]time.Duration)
	p.lastPhase = ""
}

// StartPhase begins timing a specific phase, ending the previous one.
func (p *PerfCollector) StartPhase(phase string) {
	if p == nil {
		return
	}
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// EndIteration finishes timing the current iteration and records the sample.
func (p *PerfCollector) EndIteration() {
	if p == nil {
		return
	}
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	p.samples[p.writeIndex] = PerfSample{
		IterationDuration: now.Sub(p.iterStart),
		Phases:            p.currentPhases,
	}
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	AvgIteration time.Duration
	MinIteration time.Duration
	MaxIteration time.Duration

	// Phase breakdown (average durations)
	PhaseAvg map[string]time.Duration

	// Phase percentages of total iteration time
	PhasePct map[string]float64

	IterationsPerSecond float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p == nil || p.sampleCount == 0 {
		return PerfStats{
			PhaseAvg: make(map[string]time.Duration),
			PhasePct: make(map[string]float64),
		}
	}

	var total, minIter, maxIter time.Duration
	phaseSum := make(map[string]time.Duration)
	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		total += s.IterationDuration
		if i == 0 || s.IterationDuration < minIter {
			minIter = s.IterationDuration
		}
		if s.IterationDuration > maxIter {
			maxIter = s.IterationDuration
		}
		for phase, dur := range s.Phases {
			phaseSum[phase] += dur
		}
	}

	avg := total / time.Duration(p.sampleCount)
	phaseAvg := make(map[string]time.Duration)
	phasePct := make(map[string]float64)
	for phase, sum := range phaseSum {
		phaseAvg[phase] = sum / time.Duration(p.sampleCount)
		if avg > 0 {
			phasePct[phase] = float64(phaseAvg[phase]) / float64(avg) * 100
		}
	}

	var perSec float64
	if avg > 0 {
		perSec = float64(time.Second) / float64(avg)
	}

	return PerfStats{
		AvgIteration:        avg,
		MinIteration:        minIter,
		MaxIteration:        maxIter,
		PhaseAvg:            phaseAvg,
		PhasePct:            phasePct,
		IterationsPerSecond: perSec,
	}
}

// LogStats logs performance statistics.
func (s PerfStats) LogStats() {
	attrs := []any{
		"avg_iteration_ms", s.AvgIteration.Milliseconds(),
		"min_iteration_ms", s.MinIteration.Milliseconds(),
		"max_iteration_ms", s.MaxIteration.Milliseconds(),
	}
	for _, phase := range []string{PhaseTrace, PhaseSynthesize} {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, phase+"_pct", int(pct*10)/10.0)
		}
	}
	slog.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_iteration_ms", s.AvgIteration.Milliseconds()),
		slog.Int64("min_iteration_ms", s.MinIteration.Milliseconds()),
		slog.Int64("max_iteration_ms", s.MaxIteration.Milliseconds()),
		slog.Float64("iterations_per_sec", s.IterationsPerSecond),
	}
	for phase, pct := range s.PhasePct {
		attrs = append(attrs, slog.Float64(phase+"_pct", pct))
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	Iteration      int     `csv:"iteration"`
	AvgIterationUS int64   `csv:"avg_iteration_us"`
	MinIterationUS int64   `csv:"min_iteration_us"`
	MaxIterationUS int64   `csv:"max_iteration_us"`
	TraceUS        int64   `csv:"trace_us"`
	SynthesizeUS   int64   `csv:"synthesize_us"`
	TracePct       float64 `csv:"trace_pct"`
	SynthesizePct  float64 `csv:"synthesize_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(iteration int) PerfStatsCSV {
	return PerfStatsCSV{
		Iteration:      iteration,
		AvgIterationUS: s.AvgIteration.Microseconds(),
		MinIterationUS: s.MinIteration.Microseconds(),
		MaxIterationUS: s.MaxIteration.Microseconds(),
		TraceUS:        s.PhaseAvg[PhaseTrace].Microseconds(),
		SynthesizeUS:   s.PhaseAvg[PhaseSynthesize].Microseconds(),
		TracePct:       s.PhasePct[PhaseTrace],
		SynthesizePct:  s.PhasePct[PhaseSynthesize],
	}
}
