package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// IterationStats summarises one relaxation iteration.
type IterationStats struct {
	Iteration  int     `csv:"iteration"`
	DeltaRNorm float64 `csv:"delta_r_norm"` // In units of mid^ndim

	// Displacements in units of the mean interparticle distance
	MaxDisplacement  float64 `csv:"max_displacement"`
	MeanDisplacement float64 `csv:"mean_displacement"`
	P50Displacement  float64 `csv:"p50_displacement"`
	P90Displacement  float64 `csv:"p90_displacement"`

	Unconverged         int     `csv:"unconverged"`
	UnconvergedFraction float64 `csv:"unconverged_fraction"`
	Converged           bool    `csv:"converged"`

	Redistributed  int `csv:"redistributed"`
	Degenerate     int `csv:"degenerate"`      // Particles whose neighbour search was exhausted
	SolverFailures int `csv:"solver_failures"` // Smoothing length root finds that did not converge

	// |rho/rho_model - 1| over particles with positive model density
	DensityErrorMean float64 `csv:"density_error_mean"`
	DensityErrorMax  float64 `csv:"density_error_max"`
}

// Summary holds the mean, median, 90th percentile and maximum of a sample.
type Summary struct {
	Mean, P50, P90, Max float64
}

// Summarize computes a Summary of values. Returns zeros for an empty slice.
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	return Summary{
		Mean: stat.Mean(sorted, nil),
		P50:  stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P90:  stat.Quantile(0.9, stat.Empirical, sorted, nil),
		Max:  floats.Max(sorted),
	}
}

// LogValue implements slog.LogValuer for structured logging.
func (s IterationStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("iteration", s.Iteration),
		slog.Float64("delta_r_norm", s.DeltaRNorm),
		slog.Float64("max_displacement", s.MaxDisplacement),
		slog.Float64("mean_displacement", s.MeanDisplacement),
		slog.Float64("p50_displacement", s.P50Displacement),
		slog.Float64("p90_displacement", s.P90Displacement),
		slog.Int("unconverged", s.Unconverged),
		slog.Float64("unconverged_fraction", s.UnconvergedFraction),
		slog.Bool("converged", s.Converged),
		slog.Int("redistributed", s.Redistributed),
		slog.Int("degenerate", s.Degenerate),
		slog.Int("solver_failures", s.SolverFailures),
		slog.Float64("density_error_mean", s.DensityErrorMean),
		slog.Float64("density_error_max", s.DensityErrorMax),
	)
}

// LogStats logs the iteration stats using slog.
func (s IterationStats) LogStats() {
	slog.Info("iteration", "stats", s)
}
