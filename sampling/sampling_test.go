package sampling

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/icgen/model"
	"github.com/pthm-cable/icgen/spatial"
)

func constant(v float64) model.Func {
	return model.Pointwise(func(r3.Vec) float64 { return v })
}

func TestIntegrateMass(t *testing.T) {
	linear := model.Pointwise(func(x r3.Vec) float64 { return 1 + x.X })
	gauss := model.Pointwise(func(x r3.Vec) float64 {
		return math.Exp(-x.X * x.X)
	})

	tests := []struct {
		name   string
		rho    model.Func
		box    []float64
		method Integration
		res    int
		want   float64
		tol    float64
	}{
		{"constant 1d midpoint", constant(2), []float64{3}, Midpoint, 0, 6, 1e-12},
		{"constant 3d legendre", constant(2), []float64{1, 2, 0.5}, Legendre, 8, 2, 1e-12},
		{"linear 2d midpoint", linear, []float64{2, 1}, Midpoint, 50, 4, 1e-10},
		{"gaussian 1d legendre", gauss, []float64{1}, Legendre, 0, 0.7468241328124271, 1e-12},
		{"gaussian 1d midpoint", gauss, []float64{1}, Midpoint, 1000, 0.7468241328124271, 1e-6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dom, err := spatial.NewDomain(tt.box, true)
			require.NoError(t, err)
			got, err := IntegrateMass(tt.rho, dom, tt.method, tt.res)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, tt.tol)
		})
	}
}

func TestIntegrateMassRejectsNegative(t *testing.T) {
	dom, err := spatial.NewDomain([]float64{1}, true)
	require.NoError(t, err)
	_, err = IntegrateMass(model.Pointwise(func(x r3.Vec) float64 { return x.X - 0.5 }), dom, Midpoint, 10)
	assert.True(t, errors.Is(err, ErrNegativeDensity))

	_, err = IntegrateMass(constant(1), dom, "simpson", 10)
	assert.Error(t, err)
}

func TestLattice(t *testing.T) {
	dom, err := spatial.NewDomain([]float64{2, 1}, false)
	require.NoError(t, err)
	xs := Lattice(dom, 4)
	require.Len(t, xs, 16)
	assert.Equal(t, r3.Vec{X: 0.25, Y: 0.125, Z: 0.5}, xs[0])
	assert.Equal(t, r3.Vec{X: 0.75, Y: 0.125, Z: 0.5}, xs[1])
	assert.Equal(t, r3.Vec{X: 1.75, Y: 0.875, Z: 0.5}, xs[15])
	for _, x := range xs {
		assert.True(t, dom.Contains(x))
	}
}

func TestDisplacedLattice(t *testing.T) {
	dom, err := spatial.NewDomain([]float64{1, 1, 1}, true)
	require.NoError(t, err)
	rng := rand.New(rand.NewPCG(3, 4))
	base := Lattice(dom, 5)
	xs := DisplacedLattice(dom, 5, 0.4, rng)
	require.Len(t, xs, len(base))

	moved := 0
	for i, x := range xs {
		assert.True(t, dom.Contains(x))
		d := dom.Delta(base[i], x)
		for _, c := range spatial.Components(d) {
			assert.LessOrEqual(t, math.Abs(c), 0.4*0.2+1e-12)
		}
		if r3.Norm(d) > 0 {
			moved++
		}
	}
	assert.Equal(t, len(xs), moved)
}

func TestRejectionSample(t *testing.T) {
	dom, err := spatial.NewDomain([]float64{1, 1}, true)
	require.NoError(t, err)
	// All mass in the left half
	rho := model.Pointwise(func(x r3.Vec) float64 {
		if x.X < 0.5 {
			return 1
		}
		return 0
	})

	rng := rand.New(rand.NewPCG(1, 2))
	xs, err := RejectionSample(rho, dom, 500, rng, RejectionOptions{BatchSize: 64, MaxBatches: 100})
	require.NoError(t, err)
	require.Len(t, xs, 500)
	for _, x := range xs {
		assert.Less(t, x.X, 0.5)
		assert.True(t, dom.Contains(x))
	}

	// Same seed, same draw
	again, err := RejectionSample(rho, dom, 500, rand.New(rand.NewPCG(1, 2)), RejectionOptions{BatchSize: 64, MaxBatches: 100})
	require.NoError(t, err)
	assert.Equal(t, xs, again)
}

func TestRejectionSampleFailures(t *testing.T) {
	dom, err := spatial.NewDomain([]float64{1}, true)
	require.NoError(t, err)
	rng := rand.New(rand.NewPCG(1, 2))

	xs, err := RejectionSample(constant(0), dom, 10, rng, RejectionOptions{BatchSize: 32, MaxBatches: 10})
	assert.Nil(t, xs)
	assert.True(t, errors.Is(err, ErrSamplingFailure), "got %v", err)

	xs, err = RejectionSample(constant(1), dom, 100, rng, RejectionOptions{BatchSize: 4, MaxBatches: 2})
	assert.Nil(t, xs)
	assert.True(t, errors.Is(err, ErrSamplingFailure), "got %v", err)
}

func TestValidateExplicit(t *testing.T) {
	dom, err := spatial.NewDomain([]float64{1, 1}, true)
	require.NoError(t, err)
	coords := Lattice(dom, 3)
	masses := []float64{1, 1, 1, 1, 1, 1, 1, 1, 1}
	for i := range masses {
		masses[i] = 1.0 / 9
	}

	got, err := ValidateExplicit(dom, coords, masses, 9, 1, 1e-6)
	require.NoError(t, err)
	assert.Equal(t, coords, got)

	tests := []struct {
		name   string
		coords []r3.Vec
		masses []float64
		total  float64
	}{
		{"too few coordinates", coords[:8], masses, 1},
		{"too few masses", coords, masses[:8], 1},
		{"unequal masses", coords, append(append([]float64{}, masses[:8]...), 0.2), 1},
		{"mass sum", coords, masses, 2},
		{"outside box", append(append([]r3.Vec{}, coords[:8]...), r3.Vec{X: 1.5, Y: 0.5}), masses, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateExplicit(dom, tt.coords, tt.masses, 9, tt.total, 1e-6)
			assert.True(t, errors.Is(err, ErrParticleMismatch), "got %v", err)
		})
	}
}
