package relax

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/icgen/density"
	"github.com/pthm-cable/icgen/sampling"
	"github.com/pthm-cable/icgen/telemetry"
)

// updateModel evaluates the model density at the current positions and
// derives the model smoothing lengths h~ = eta (m / rho_model)^(1/ndim).
// h~ is capped so that its support fits the largest search radius, which
// also covers rho_model = 0.
func (g *Generator) updateModel() error {
	vals := g.rho(g.x, g.dom.NDim)
	if len(vals) != len(g.x) {
		return fmt.Errorf("model returned %d values for %d particles", len(vals), len(g.x))
	}
	hCap := g.maxRadius / g.kern.Gamma()
	invD := 1 / float64(g.dom.NDim)
	eta := g.cfg.Generator.Eta
	for i, v := range vals {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("particle %d: %w: %g", i, sampling.ErrNegativeDensity, v)
		}
	}
	for i, v := range vals {
		g.modelDens[i] = v
		h := hCap
		if v > 0 {
			h = math.Min(eta*math.Pow(g.mass/v, invD), hCap)
		}
		g.hModel[i] = h
	}
	g.hModelMax = floats.Max(g.hModel)
	return nil
}

// rebuildGrid bins the current positions with cells as wide as the largest
// kernel support in use.
func (g *Generator) rebuildGrid() {
	hMax := math.Max(floats.Max(g.h), g.hModelMax)
	g.grid.Rebuild(g.x, math.Min(g.kern.SupportRadius(hMax), g.maxRadius))
}

// densityChunk solves smoothing lengths and densities for [i0, i1).
func (g *Generator) densityChunk(i0, i1 int, scratch *workerScratch) {
	for i := i0; i < i1; i++ {
		var est density.Estimate
		est, scratch.Neighbors = g.solver.Solve(g.grid, i, g.x[i], g.mass, g.h[i], scratch.Neighbors)
		g.h[i] = est.H
		g.dens[i] = est.Density

		var f particleFlag
		if est.Degenerate {
			f |= flagDegenerate
		}
		if est.Unconverged {
			f |= flagUnconverged
		}
		g.flags[i] = f
	}
}

// collectWarnings turns the flags of the last density pass into warnings.
func (g *Generator) collectWarnings() (degenerate, unconverged int) {
	firstDeg, firstUnc := -1, -1
	for i, f := range g.flags {
		if f&flagDegenerate != 0 {
			if degenerate == 0 {
				firstDeg = i
			}
			degenerate++
		}
		if f&flagUnconverged != 0 {
			if unconverged == 0 {
				firstUnc = i
			}
			unconverged++
		}
	}

	if degenerate > 0 {
		g.warn(Warning{
			Kind:      NeighborDegeneracy,
			Iteration: g.iteration,
			Particle:  firstDeg,
			Count:     degenerate,
			Message:   fmt.Sprintf("%d particles reached the search radius limit with too few neighbours", degenerate),
		})
	}
	if unconverged > 0 {
		g.warn(Warning{
			Kind:      SubIterationNonConvergence,
			Iteration: g.iteration,
			Particle:  firstUnc,
			Count:     unconverged,
			Message:   fmt.Sprintf("%d smoothing length solves kept their previous value", unconverged),
		})
	}
	return degenerate, unconverged
}

func (g *Generator) warn(w Warning) {
	if len(g.warnings) >= maxWarnings {
		g.droppedWarnings++
		return
	}
	g.warnings = append(g.warnings, w)
	slog.Warn(w.Kind.String(),
		"iteration", w.Iteration,
		"particle", w.Particle,
		"count", w.Count,
	)
}

// iterationStats summarises the iteration that just finished.
func (g *Generator) iterationStats(c convergence, redistributed, degenerate, failures int) telemetry.IterationStats {
	d := telemetry.Summarize(g.disp)

	var errSum, errMax float64
	counted := 0
	for i, m := range g.modelDens {
		if m <= 0 {
			continue
		}
		e := math.Abs(g.dens[i]/m - 1)
		errSum += e
		errMax = math.Max(errMax, e)
		counted++
	}
	errMean := 0.0
	if counted > 0 {
		errMean = errSum / float64(counted)
	}

	return telemetry.IterationStats{
		Iteration:           g.iteration,
		DeltaRNorm:          g.delta,
		MaxDisplacement:     d.Max,
		MeanDisplacement:    d.Mean,
		P50Displacement:     d.P50,
		P90Displacement:     d.P90,
		Unconverged:         c.unconverged,
		UnconvergedFraction: c.fraction,
		Converged:           c.converged,
		Redistributed:       redistributed,
		Degenerate:          degenerate,
		SolverFailures:      failures,
		DensityErrorMean:    errMean,
		DensityErrorMax:     errMax,
	}
}
