package telemetry

import (
	"log/slog"
	"time"
)

// Phase names for one relaxation iteration.
const (
	PhaseNeighbors      = "neighbors"
	PhaseDensity        = "density"
	PhaseDisplacement   = "displacement"
	PhaseRedistribution = "redistribution"
	PhaseConvergence    = "convergence"
	PhaseCheckpoint     = "checkpoint"
)

var phases = []string{
	PhaseNeighbors, PhaseDensity, PhaseDisplacement,
	PhaseRedistribution, PhaseConvergence, PhaseCheckpoint,
}

// PerfSample holds timing data for a single iteration.
type PerfSample struct {
	IterationDuration time.Duration
	Phases            map[string]time.Duration
}

// PerfCollector tracks per-phase timings over a rolling window of
// iterations. A nil collector ignores all calls.
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

// NewPerfCollector creates a collector averaging over windowSize iterations.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 50
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

// StartPhase begins timing a phase, ending the previous one.
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

	// Phase breakdown (average durations and share of the iteration)
	PhaseAvg map[string]time.Duration
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

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_iteration_us", s.AvgIteration.Microseconds()),
		slog.Int64("min_iteration_us", s.MinIteration.Microseconds()),
		slog.Int64("max_iteration_us", s.MaxIteration.Microseconds()),
		slog.Float64("iterations_per_sec", s.IterationsPerSecond),
	}
	for _, phase := range phases {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, slog.Float64(phase+"_pct", float64(int(pct*10))/10))
		}
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	WindowEnd         int     `csv:"window_end"`
	AvgIterationUS    int64   `csv:"avg_iteration_us"`
	MinIterationUS    int64   `csv:"min_iteration_us"`
	MaxIterationUS    int64   `csv:"max_iteration_us"`
	IterationsPerSec  float64 `csv:"iterations_per_sec"`
	NeighborsPct      float64 `csv:"neighbors_pct"`
	DensityPct        float64 `csv:"density_pct"`
	DisplacementPct   float64 `csv:"displacement_pct"`
	RedistributionPct float64 `csv:"redistribution_pct"`
	ConvergencePct    float64 `csv:"convergence_pct"`
	CheckpointPct     float64 `csv:"checkpoint_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(windowEnd int) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:         windowEnd,
		AvgIterationUS:    s.AvgIteration.Microseconds(),
		MinIterationUS:    s.MinIteration.Microseconds(),
		MaxIterationUS:    s.MaxIteration.Microseconds(),
		IterationsPerSec:  s.IterationsPerSecond,
		NeighborsPct:      s.PhasePct[PhaseNeighbors],
		DensityPct:        s.PhasePct[PhaseDensity],
		DisplacementPct:   s.PhasePct[PhaseDisplacement],
		RedistributionPct: s.PhasePct[PhaseRedistribution],
		ConvergencePct:    s.PhasePct[PhaseConvergence],
		CheckpointPct:     s.PhasePct[PhaseCheckpoint],
	}
}
