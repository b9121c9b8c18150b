// Package density estimates SPH densities by solving for each particle's
// smoothing length.
//
// The smoothing length h of particle i satisfies
//
//	omega(h) = h^d * sum_j W(r_ij, h) = eta^d
//
// with the self term included, i.e. the kernel-weighted neighbour number is
// fixed by the resolution eta. omega is monotone in h, so the root is
// bracketed and refined with safeguarded Newton steps.
package density

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/icgen/kernel"
	"github.com/pthm-cable/icgen/spatial"
)

// ErrEtaTooSmall is returned by NewSolver when the self contribution alone
// already exceeds eta^d, which leaves the smoothing length undefined.
var ErrEtaTooSmall = errors.New("eta too small for kernel")

// Finder returns the neighbours of a position within radius.
type Finder interface {
	QueryInto(dst []spatial.Neighbor, x r3.Vec, radius float64, exclude int) []spatial.Neighbor
}

// Solver holds the root-find settings shared by all particles.
type Solver struct {
	Kernel          kernel.Kernel
	Eta             float64
	MaxIterations   int
	Tolerance       float64 // Relative, on omega
	MaxSearchGrowth int     // Radius doublings before giving up
	MaxRadius       float64 // Upper bound on the search radius

	target float64
}

// NewSolver validates eta against the kernel.
func NewSolver(k kernel.Kernel, eta float64, maxIter int, tol float64, maxGrowth int, maxRadius float64) (*Solver, error) {
	target := math.Pow(eta, float64(k.NDim()))
	if self := k.SelfWeight(); target <= self {
		return nil, fmt.Errorf("%w: eta^%d = %.4g <= self weight %.4g of %s",
			ErrEtaTooSmall, k.NDim(), target, self, k.Kind())
	}
	return &Solver{
		Kernel:          k,
		Eta:             eta,
		MaxIterations:   maxIter,
		Tolerance:       tol,
		MaxSearchGrowth: maxGrowth,
		MaxRadius:       maxRadius,
		target:          target,
	}, nil
}

// Estimate is the outcome for one particle.
type Estimate struct {
	H           float64
	Density     float64
	Neighbours  int  // Within the support, self excluded
	Degenerate  bool // Search radius exhausted before omega reached eta^d
	Unconverged bool // Root find hit MaxIterations; H is the previous value
	Iterations  int
}

// Solve finds the smoothing length of particle i at x. hPrev seeds the
// search and is returned on non-convergence. scratch is reused and returned.
func (s *Solver) Solve(f Finder, i int, x r3.Vec, mass, hPrev float64, scratch []spatial.Neighbor) (Estimate, []spatial.Neighbor) {
	gamma := s.Kernel.Gamma()
	radius := math.Min(2*gamma*hPrev, s.MaxRadius)
	if !(radius > 0) {
		radius = s.MaxRadius
	}

	var est Estimate
	for grow := 0; ; grow++ {
		scratch = f.QueryInto(scratch[:0], x, radius, i)
		hHi := radius / gamma
		if s.omega(scratch, hHi) >= s.target {
			est = s.refine(scratch, hPrev, hHi)
			break
		}
		if radius >= s.MaxRadius || grow >= s.MaxSearchGrowth {
			// Too few particles in reach: take the largest admissible h
			est = Estimate{H: hHi, Degenerate: true}
			break
		}
		radius = math.Min(2*radius, s.MaxRadius)
	}

	if est.Unconverged {
		est.H = hPrev
	}
	support := s.Kernel.SupportRadius(est.H)
	rho := mass * s.Kernel.W(0, est.H)
	for _, nb := range scratch {
		if nb.R < support {
			rho += mass * s.Kernel.W(nb.R, est.H)
			est.Neighbours++
		}
	}
	est.Density = rho
	return est, scratch
}

// refine runs bracketed Newton iterations on omega(h) - eta^d in (0, hHi].
func (s *Solver) refine(nbs []spatial.Neighbor, hPrev, hHi float64) Estimate {
	lo, hi := 0.0, hHi
	h := hPrev
	if !(h > lo && h < hi) {
		h = 0.5 * hi
	}

	for it := 1; it <= s.MaxIterations; it++ {
		w, dw := s.omegaWithDerivative(nbs, h)
		res := w - s.target
		if math.Abs(res) <= s.Tolerance*s.target {
			return Estimate{H: h, Iterations: it}
		}
		if res > 0 {
			hi = h
		} else {
			lo = h
		}
		next := h - res/dw
		if !(dw > 0) || !(next > lo && next < hi) {
			next = 0.5 * (lo + hi)
		}
		h = next
	}
	return Estimate{H: h, Unconverged: true, Iterations: s.MaxIterations}
}

func (s *Solver) omega(nbs []spatial.Neighbor, h float64) float64 {
	w, _ := s.omegaWithDerivative(nbs, h)
	return w
}

// omegaWithDerivative returns h^d sum_j W and its h derivative
// -h^(d-1) sum_j r_j W'(r_j).
func (s *Solver) omegaWithDerivative(nbs []spatial.Neighbor, h float64) (float64, float64) {
	d := s.Kernel.NDim()
	hd := math.Pow(h, float64(d))
	sumW, sumRdW := 0.0, 0.0
	for _, nb := range nbs {
		w, dw := s.Kernel.Eval(nb.R, h)
		sumW += w
		sumRdW += nb.R * dw
	}
	return s.Kernel.SelfWeight() + hd*sumW, -hd / h * sumRdW
}
