package relax

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/icgen/config"
	"github.com/pthm-cable/icgen/model"
	"github.com/pthm-cable/icgen/telemetry"
)

// Result is a copy of the particle set and the outcome of a run.
type Result struct {
	Coordinates      []r3.Vec
	Masses           []float64
	SmoothingLengths []float64
	Densities        []float64
	ModelDensities   []float64

	TotalMass   float64
	Iterations  int
	State       State
	Termination Termination
	Converged   bool // Last iteration met the convergence criteria

	Warnings        []Warning
	DroppedWarnings int
}

// Result returns the current particle set. It may be called at any point
// after InitialSetup; before that only the state is filled in.
func (g *Generator) Result() *Result {
	r := &Result{
		TotalMass:       g.totalMass,
		Iterations:      g.iteration,
		State:           g.state,
		Termination:     g.termination(),
		Converged:       g.converged,
		Warnings:        slices.Clone(g.warnings),
		DroppedWarnings: g.droppedWarnings,
	}
	if g.state == Uninitialized {
		return r
	}
	r.Coordinates = slices.Clone(g.x)
	r.Masses = make([]float64, g.n)
	for i := range r.Masses {
		r.Masses[i] = g.mass
	}
	r.SmoothingLengths = slices.Clone(g.h)
	r.Densities = slices.Clone(g.dens)
	r.ModelDensities = slices.Clone(g.modelDens)
	return r
}

func (g *Generator) termination() Termination {
	switch g.state {
	case Converged:
		return TerminationConverged
	case MaxIterationsReached:
		return TerminationMaxIterations
	}
	return TerminationNone
}

// Records converts the result into particles.csv rows.
func (r *Result) Records() []telemetry.ParticleRecord {
	out := make([]telemetry.ParticleRecord, len(r.Coordinates))
	for i, x := range r.Coordinates {
		out[i] = telemetry.ParticleRecord{
			Index:        i,
			X:            x.X,
			Y:            x.Y,
			Z:            x.Z,
			Mass:         r.Masses[i],
			H:            r.SmoothingLengths[i],
			Density:      r.Densities[i],
			ModelDensity: r.ModelDensities[i],
		}
	}
	return out
}

// Checkpoint captures everything needed to continue the run later.
func (g *Generator) Checkpoint() (*telemetry.Checkpoint, error) {
	if g.state == Uninitialized {
		return nil, fmt.Errorf("%w: checkpoint before InitialSetup", ErrUsage)
	}
	rngState, err := g.pcg.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal rng state: %w", err)
	}

	ck := &telemetry.Checkpoint{
		Version:                telemetry.CheckpointVersion,
		RandomSeed:             g.params.RandomSeed,
		RNGState:               rngState,
		NDim:                   g.dom.NDim,
		Box:                    g.dom.Box,
		Periodic:               g.dom.Periodic,
		NumberOfParticles:      g.cfg.Generator.NumberOfParticles,
		Kernel:                 g.kern.Kind().String(),
		Eta:                    g.cfg.Generator.Eta,
		Model:                  g.cfg.Model.Name,
		Mass:                   g.mass,
		TotalMass:              g.totalMass,
		Iteration:              g.iteration,
		RedistributionFraction: g.redistFrac,
		Converged:              g.converged,
		Termination:            string(g.termination()),
		Particles:              make([]telemetry.ParticleState, g.n),
	}
	if g.deltaSet {
		delta := g.delta
		ck.DeltaRNorm = &delta
	}
	for i, x := range g.x {
		ck.Particles[i] = telemetry.ParticleState{
			X:            x.X,
			Y:            x.Y,
			Z:            x.Z,
			H:            g.h[i],
			Density:      g.dens[i],
			ModelDensity: g.modelDens[i],
			Displacement: g.disp[i],
		}
	}
	return ck, nil
}

// Resume rebuilds a generator from a checkpoint written by a run with the
// same generator settings. Run parameters are taken from cfg, so limits
// may be raised; the random stream continues from the checkpoint.
// Continuing gives the same particles as the uninterrupted run.
func Resume(rho model.Func, cfg *config.Config, ck *telemetry.Checkpoint, opts Options) (*Generator, error) {
	g, err := New(rho, cfg, opts)
	if err != nil {
		return nil, err
	}
	if err := g.restore(ck); err != nil {
		g.Close()
		return nil, err
	}
	return g, nil
}

func (g *Generator) restore(ck *telemetry.Checkpoint) error {
	if ck == nil {
		return fmt.Errorf("%w: nil checkpoint", ErrConfiguration)
	}
	gen := g.cfg.Generator
	switch {
	case ck.NDim != g.dom.NDim:
		return fmt.Errorf("%w: checkpoint ndim %d, configured %d", ErrConfiguration, ck.NDim, g.dom.NDim)
	case ck.NumberOfParticles != gen.NumberOfParticles || len(ck.Particles) != g.n:
		return fmt.Errorf("%w: checkpoint has %d particles, configured %d", ErrConfiguration, len(ck.Particles), g.n)
	case ck.Box != g.dom.Box || ck.Periodic != g.dom.Periodic:
		return fmt.Errorf("%w: checkpoint box %v periodic=%t, configured %v periodic=%t",
			ErrConfiguration, ck.Box, ck.Periodic, g.dom.Box, g.dom.Periodic)
	case ck.Kernel != g.kern.Kind().String() || ck.Eta != gen.Eta:
		return fmt.Errorf("%w: checkpoint kernel %s eta %g, configured %s eta %g",
			ErrConfiguration, ck.Kernel, ck.Eta, g.kern.Kind(), gen.Eta)
	case ck.Model != g.cfg.Model.Name:
		return fmt.Errorf("%w: checkpoint model %q, configured %q", ErrConfiguration, ck.Model, g.cfg.Model.Name)
	case !(ck.Mass > 0):
		return fmt.Errorf("%w: checkpoint mass %g", ErrConfiguration, ck.Mass)
	}

	pcg := &rand.PCG{}
	if err := pcg.UnmarshalBinary(ck.RNGState); err != nil {
		return configErr(fmt.Errorf("restoring rng state: %w", err))
	}
	if err := g.openCheckpoints(g.cfg.Run.StateDumpBasename); err != nil {
		return err
	}

	g.params = g.cfg.Run
	g.pcg, g.rng = pcg, rand.New(pcg)
	g.mass, g.totalMass = ck.Mass, ck.TotalMass
	g.allocate()
	for i, p := range ck.Particles {
		g.x[i] = g.dom.Inactive(r3.Vec{X: p.X, Y: p.Y, Z: p.Z})
		g.h[i] = p.H
		g.dens[i] = p.Density
		g.modelDens[i] = p.ModelDensity
		g.disp[i] = p.Displacement
	}

	g.iteration = ck.Iteration
	g.delta, g.deltaSet = 0, false
	if ck.DeltaRNorm != nil {
		g.delta, g.deltaSet = *ck.DeltaRNorm, true
	}
	g.redistFrac = ck.RedistributionFraction
	g.converged = ck.Converged
	g.paramsChanged = false

	switch {
	case Termination(ck.Termination) == TerminationConverged:
		g.state = Converged
	case g.iteration == 0:
		g.state = SetupDone
	default:
		// A run stopped by max_iterations continues if the limit was raised
		g.state = Iterating
	}
	return nil
}
