package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/icgen/spatial"
)

func TestBuiltinsArePositive(t *testing.T) {
	dom, err := spatial.NewDomain([]float64{1, 2}, true)
	require.NoError(t, err)

	var xs []r3.Vec
	for i := 0; i < 40; i++ {
		for j := 0; j < 40; j++ {
			xs = append(xs, dom.Inactive(r3.Vec{X: float64(i) / 40, Y: 2 * float64(j) / 40}))
		}
	}

	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			f, err := New(name, nil, dom)
			require.NoError(t, err)
			rho := f(xs, dom.NDim)
			require.Len(t, rho, len(xs))
			for i, v := range rho {
				assert.GreaterOrEqual(t, v, 0.0, "x=%v", xs[i])
				assert.False(t, math.IsNaN(v))
			}
		})
	}
}

func TestSineValues(t *testing.T) {
	dom, err := spatial.NewDomain([]float64{2}, true)
	require.NoError(t, err)
	f, err := New("sine", map[string]float64{"amplitude": 0.2}, dom)
	require.NoError(t, err)

	xs := []r3.Vec{{X: 0, Y: 0.5, Z: 0.5}, {X: 0.5, Y: 0.5, Z: 0.5}, {X: 1.5, Y: 0.5, Z: 0.5}}
	rho := f(xs, 1)
	assert.InDelta(t, 1.0, rho[0], 1e-12)
	assert.InDelta(t, 1.2, rho[1], 1e-12)
	assert.InDelta(t, 0.8, rho[2], 1e-12)
}

func TestGaussianPeaksAtCenter(t *testing.T) {
	dom, err := spatial.NewDomain([]float64{1, 1}, true)
	require.NoError(t, err)
	f, err := New("gaussian", map[string]float64{"cx": 0.1, "cy": 0.1}, dom)
	require.NoError(t, err)

	rho := f([]r3.Vec{
		{X: 0.1, Y: 0.1, Z: 0.5},
		{X: 0.95, Y: 0.1, Z: 0.5}, // periodic image is 0.15 away
		{X: 0.6, Y: 0.6, Z: 0.5},
	}, 2)
	assert.InDelta(t, 11.0, rho[0], 1e-12)
	assert.Greater(t, rho[1], 3.0)
	assert.InDelta(t, 1.0, rho[2], 1e-6)
}

func TestNoiseTilesWithBox(t *testing.T) {
	dom, err := spatial.NewDomain([]float64{1, 1}, true)
	require.NoError(t, err)
	f, err := New("noise", map[string]float64{"seed": 7}, dom)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		y := float64(i) / 20
		rho := f([]r3.Vec{{X: 0, Y: y, Z: 0.5}, {X: 1, Y: y, Z: 0.5}}, 2)
		assert.InDelta(t, rho[0], rho[1], 1e-9, "y=%g", y)
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	dom, err := spatial.NewDomain([]float64{1}, false)
	require.NoError(t, err)

	tests := []struct {
		name   string
		model  string
		params map[string]float64
	}{
		{"unknown model", "plummer", nil},
		{"unknown parameter", "uniform", map[string]float64{"rho": 1}},
		{"zero uniform", "uniform", map[string]float64{"rho0": 0}},
		{"sine amplitude", "sine", map[string]float64{"amplitude": 1.5}},
		{"sine inactive axis", "sine", map[string]float64{"axis": 1}},
		{"gaussian sigma", "gaussian", map[string]float64{"sigma": 0}},
		{"noise octaves", "noise", map[string]float64{"octaves": 0}},
		{"noise fractional frequency", "noise", map[string]float64{"frequency": 2.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.model, tt.params, dom)
			assert.Error(t, err)
		})
	}
}

func TestDescribe(t *testing.T) {
	desc, params, ok := Describe("sine")
	require.True(t, ok)
	assert.NotEmpty(t, desc)
	params["k"] = 99
	_, again, _ := Describe("sine")
	assert.Equal(t, 1.0, again["k"], "defaults must not be shared")

	_, _, ok = Describe("nope")
	assert.False(t, ok)
}
