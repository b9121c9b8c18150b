package relax

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/icgen/sampling"
)

// initialCoordinates draws the starting positions with the configured
// strategy. Explicit particles skip sampling and leave the stream untouched.
func (g *Generator) initialCoordinates(rng *rand.Rand) ([]r3.Vec, error) {
	if g.opts.Particles != nil {
		return nil, nil
	}
	gen := g.cfg.Generator
	switch sampling.Strategy(gen.Sampling) {
	case sampling.Rejection:
		xs, err := sampling.RejectionSample(g.rho, g.dom, g.n, rng, sampling.RejectionOptions{
			BatchSize:  gen.RejectionBatchSize,
			MaxBatches: gen.RejectionMaxBatches,
		})
		if errors.Is(err, sampling.ErrSamplingFailure) {
			return nil, fmt.Errorf("initial coordinates: %w", err)
		}
		return xs, configErr(err)
	case sampling.Uniform:
		return sampling.Lattice(g.dom, gen.NumberOfParticles), nil
	case sampling.Displaced:
		return sampling.DisplacedLattice(g.dom, gen.NumberOfParticles, gen.DisplacedMaxDisplacement, rng), nil
	}
	return nil, fmt.Errorf("%w: sampling %q unknown", ErrConfiguration, gen.Sampling)
}

// integrateMass returns the model mass in the box, which must be positive.
func (g *Generator) integrateMass() (float64, error) {
	gen := g.cfg.Generator
	total, err := sampling.IntegrateMass(g.rho, g.dom,
		sampling.Integration(gen.MassIntegration), gen.MassIntegrationResolution)
	if err != nil {
		return 0, configErr(fmt.Errorf("integrating model mass: %w", err))
	}
	if !(total > 0) {
		return 0, fmt.Errorf("%w: model density integrates to %g over the box", ErrConfiguration, total)
	}
	return total, nil
}

// explicitCoordinates validates caller-provided particles against the run.
func (g *Generator) explicitCoordinates(ps *Particles, total float64) ([]r3.Vec, error) {
	xs, err := sampling.ValidateExplicit(g.dom, ps.Coordinates, ps.Masses, g.n, total, g.cfg.Generator.MassTolerance)
	if err != nil {
		return nil, configErr(err)
	}
	return xs, nil
}
