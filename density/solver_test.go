package density

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/icgen/kernel"
	"github.com/pthm-cable/icgen/spatial"
)

const eta = 1.2348

func lattice(dom spatial.Domain, n int) []r3.Vec {
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

func newSolver(t *testing.T, ndim int, dom spatial.Domain) *Solver {
	t.Helper()
	k, err := kernel.New(kernel.CubicSpline, ndim)
	require.NoError(t, err)
	s, err := NewSolver(k, eta, 50, 1e-6, 8, dom.MaxSearchRadius())
	require.NoError(t, err)
	return s
}

func TestSolveUniformLattice(t *testing.T) {
	tests := []struct {
		name string
		box  []float64
		n    int
	}{
		{"1d", []float64{1}, 10},
		{"2d", []float64{1, 1}, 16},
		{"3d", []float64{1, 1, 1}, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dom, err := spatial.NewDomain(tt.box, true)
			require.NoError(t, err)
			xs := lattice(dom, tt.n)
			mid := dom.MeanInterparticleDistance(len(xs))
			mass := dom.Volume() / float64(len(xs))
			s := newSolver(t, dom.NDim, dom)

			g := spatial.NewGrid(dom)
			g.Rebuild(xs, s.Kernel.SupportRadius(eta*mid))

			var scratch []spatial.Neighbor
			for i, x := range xs {
				var est Estimate
				// Deliberately poor guess
				est, scratch = s.Solve(g, i, x, mass, 0.3*eta*mid, scratch)
				require.False(t, est.Degenerate, "particle %d", i)
				require.False(t, est.Unconverged, "particle %d", i)
				assert.InDelta(t, 1.0, est.Density, 2e-2, "particle %d", i)
				assert.InDelta(t, eta*mid, est.H, 2e-2*eta*mid, "particle %d", i)
				assert.Greater(t, est.Neighbours, 0)

				// Converged h reproduces the target neighbour sum
				want := mass * math.Pow(eta/est.H, float64(dom.NDim))
				assert.InDelta(t, want, est.Density, 1e-5*want)
			}
		})
	}
}

func TestSolveIsolatedParticleIsDegenerate(t *testing.T) {
	dom, err := spatial.NewDomain([]float64{1}, true)
	require.NoError(t, err)
	xs := []r3.Vec{{X: 0.5, Y: 0.5, Z: 0.5}}
	s := newSolver(t, 1, dom)

	g := spatial.NewGrid(dom)
	g.Rebuild(xs, 0.1)

	est, _ := s.Solve(g, 0, xs[0], 1, 0.01, nil)
	assert.True(t, est.Degenerate)
	assert.InDelta(t, dom.MaxSearchRadius()/s.Kernel.Gamma(), est.H, 1e-12)
	assert.Zero(t, est.Neighbours)
	assert.InDelta(t, s.Kernel.W(0, est.H), est.Density, 1e-12)
}

func TestSolveFallsBackOnNonConvergence(t *testing.T) {
	dom, err := spatial.NewDomain([]float64{1}, true)
	require.NoError(t, err)
	xs := lattice(dom, 20)
	k, err := kernel.New(kernel.CubicSpline, 1)
	require.NoError(t, err)
	s, err := NewSolver(k, eta, 1, 1e-12, 8, dom.MaxSearchRadius())
	require.NoError(t, err)

	g := spatial.NewGrid(dom)
	g.Rebuild(xs, 0.1)

	hPrev := 0.02
	est, _ := s.Solve(g, 3, xs[3], 0.05, hPrev, nil)
	assert.True(t, est.Unconverged)
	assert.Equal(t, hPrev, est.H)
	assert.Equal(t, 1, est.Iterations)
}

func TestNewSolverRejectsTinyEta(t *testing.T) {
	k, err := kernel.New(kernel.WendlandC2, 3)
	require.NoError(t, err)
	_, err = NewSolver(k, 0.3, 50, 1e-4, 8, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEtaTooSmall))
}
