package sampling

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/icgen/model"
	"github.com/pthm-cable/icgen/spatial"
)

// ErrSamplingFailure is returned when rejection sampling cannot produce the
// requested number of particles.
var ErrSamplingFailure = errors.New("sampling failure")

// ErrParticleMismatch is returned when explicit particles are inconsistent.
var ErrParticleMismatch = errors.New("explicit particles inconsistent")

// Strategy selects how initial coordinates are drawn.
type Strategy string

const (
	Rejection Strategy = "rejection"
	Uniform   Strategy = "uniform"
	Displaced Strategy = "displaced"
)

// maxRejectionBatch caps the grown batch size.
const maxRejectionBatch = 1 << 20

// Lattice returns n^ndim particles on a regular grid at (i+1/2) L/n.
// Index order is x fastest.
func Lattice(dom spatial.Domain, n int) []r3.Vec {
	total := 1
	for d := 0; d < dom.NDim; d++ {
		total *= n
	}
	xs := make([]r3.Vec, total)
	for i := range xs {
		c := [3]float64{0.5, 0.5, 0.5}
		k := i
		for d := 0; d < dom.NDim; d++ {
			c[d] = (float64(k%n) + 0.5) * dom.Box[d] / float64(n)
			k /= n
		}
		xs[i] = spatial.FromComponents(c)
	}
	return xs
}

// DisplacedLattice jitters Lattice by up to maxFrac lattice spacings per
// axis. Moved particles are confined to the box.
func DisplacedLattice(dom spatial.Domain, n int, maxFrac float64, rng *rand.Rand) []r3.Vec {
	xs := Lattice(dom, n)
	for i, x := range xs {
		c := spatial.Components(x)
		for d := 0; d < dom.NDim; d++ {
			spacing := dom.Box[d] / float64(n)
			c[d] += (2*rng.Float64() - 1) * maxFrac * spacing
		}
		xs[i] = dom.Confine(spatial.FromComponents(c))
	}
	return xs
}

// RejectionOptions bounds the work of RejectionSample.
type RejectionOptions struct {
	BatchSize  int
	MaxBatches int
}

// RejectionSample draws count positions with probability proportional to
// rho. rho_max is estimated from the candidates seen so far. Batches with
// no acceptances double the batch size. Nothing is returned on failure.
func RejectionSample(rho model.Func, dom spatial.Domain, count int, rng *rand.Rand, opts RejectionOptions) ([]r3.Vec, error) {
	if count <= 0 {
		return nil, nil
	}
	batch := max(opts.BatchSize, 1)
	xs := make([]r3.Vec, 0, count)
	cand := make([]r3.Vec, 0, batch)
	rhoMax := 0.0

	for b := 0; b < opts.MaxBatches; b++ {
		cand = cand[:0]
		for k := 0; k < batch; k++ {
			var c [3]float64
			for d := 0; d < 3; d++ {
				if d < dom.NDim {
					c[d] = rng.Float64() * dom.Box[d]
				} else {
					c[d] = 0.5
				}
			}
			cand = append(cand, spatial.FromComponents(c))
		}

		vals := rho(cand, dom.NDim)
		if len(vals) != len(cand) {
			return nil, fmt.Errorf("model returned %d values for %d points", len(vals), len(cand))
		}
		if m := floats.Min(vals); m < 0 || math.IsNaN(m) {
			return nil, fmt.Errorf("%w: %g", ErrNegativeDensity, m)
		}
		rhoMax = math.Max(rhoMax, floats.Max(vals))
		if rhoMax <= 0 {
			return nil, fmt.Errorf("%w: density is zero at all %d probe points", ErrSamplingFailure, len(cand))
		}

		accepted := 0
		for k, v := range vals {
			if rng.Float64()*rhoMax < v {
				xs = append(xs, cand[k])
				accepted++
				if len(xs) == count {
					return xs, nil
				}
			}
		}
		if accepted == 0 {
			batch = min(2*batch, maxRejectionBatch)
		}
	}
	return nil, fmt.Errorf("%w: %d of %d particles after %d batches",
		ErrSamplingFailure, len(xs), count, opts.MaxBatches)
}

// ValidateExplicit checks caller-provided particles against the run: count,
// equal positive masses summing to totalMass within relTol, and positions
// inside the box. It returns a copy of coords with inactive components set.
func ValidateExplicit(dom spatial.Domain, coords []r3.Vec, masses []float64, count int, totalMass, relTol float64) ([]r3.Vec, error) {
	if len(coords) != count {
		return nil, fmt.Errorf("%w: %d coordinates, want %d", ErrParticleMismatch, len(coords), count)
	}
	if len(masses) != count {
		return nil, fmt.Errorf("%w: %d masses, want %d", ErrParticleMismatch, len(masses), count)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: no particles", ErrParticleMismatch)
	}
	m0 := masses[0]
	if !(m0 > 0) {
		return nil, fmt.Errorf("%w: mass %g not positive", ErrParticleMismatch, m0)
	}
	for i, m := range masses {
		if math.Abs(m-m0) > 1e-9*m0 {
			return nil, fmt.Errorf("%w: mass %d = %g differs from %g", ErrParticleMismatch, i, m, m0)
		}
	}
	if sum := floats.Sum(masses); math.Abs(sum-totalMass) > relTol*totalMass {
		return nil, fmt.Errorf("%w: masses sum to %g, model integrates to %g", ErrParticleMismatch, sum, totalMass)
	}

	out := make([]r3.Vec, count)
	for i, x := range coords {
		x = dom.Inactive(x)
		if !dom.Contains(x) {
			return nil, fmt.Errorf("%w: particle %d at %v outside box", ErrParticleMismatch, i, x)
		}
		out[i] = x
	}
	return out, nil
}
