package kernel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/integrate/quad"
)

func allKernels(t *testing.T) []Kernel {
	t.Helper()
	var ks []Kernel
	for _, name := range Names() {
		kind, err := Parse(name)
		require.NoError(t, err)
		for ndim := 1; ndim <= 3; ndim++ {
			k, err := New(kind, ndim)
			require.NoError(t, err)
			ks = append(ks, k)
		}
	}
	return ks
}

func TestKernelNormalisation(t *testing.T) {
	const h = 0.37
	for _, k := range allKernels(t) {
		t.Run(k.Kind().String(), func(t *testing.T) {
			H := k.SupportRadius(h)
			integrand := func(r float64) float64 {
				switch k.NDim() {
				case 1:
					return 2 * k.W(r, h)
				case 2:
					return 2 * math.Pi * r * k.W(r, h)
				default:
					return 4 * math.Pi * r * r * k.W(r, h)
				}
			}
			got := quad.Fixed(integrand, 0, H, 1000, quad.Legendre{}, 0)
			assert.InDelta(t, 1.0, got, 1e-4, "ndim=%d", k.NDim())
		})
	}
}

func TestKernelCompactSupport(t *testing.T) {
	const h = 1.0
	for _, k := range allKernels(t) {
		H := k.SupportRadius(h)
		w, dw := k.Eval(H, h)
		assert.Zero(t, w, "%s ndim=%d at H", k.Kind(), k.NDim())
		assert.Zero(t, dw)

		w, dw = k.Eval(H*(1-1e-6), h)
		assert.InDelta(t, 0, w, 1e-9, "%s ndim=%d just inside H", k.Kind(), k.NDim())
		assert.InDelta(t, 0, dw, 1e-6)

		w, dw = k.Eval(2*H, h)
		assert.Zero(t, w)
		assert.Zero(t, dw)
	}
}

func TestKernelDerivative(t *testing.T) {
	const h = 0.8
	const eps = 1e-6
	for _, k := range allKernels(t) {
		H := k.SupportRadius(h)
		for i := 1; i < 50; i++ {
			r := H * float64(i) / 50
			_, dw := k.Eval(r, h)
			fd := (k.W(r+eps, h) - k.W(r-eps, h)) / (2 * eps)
			assert.InDelta(t, fd, dw, 1e-5, "%s ndim=%d r=%g", k.Kind(), k.NDim(), r)
		}
	}
}

func TestKernelMonotone(t *testing.T) {
	for _, k := range allKernels(t) {
		prev := math.Inf(1)
		for i := 0; i <= 100; i++ {
			w := k.W(float64(i)/100*k.SupportRadius(1), 1)
			assert.LessOrEqual(t, w, prev, "%s ndim=%d", k.Kind(), k.NDim())
			prev = w
		}
	}
}

func TestSelfWeight(t *testing.T) {
	for _, k := range allKernels(t) {
		h := 0.3
		want := k.W(0, h) * math.Pow(h, float64(k.NDim()))
		assert.InDelta(t, want, k.SelfWeight(), 1e-12)
	}
}

func TestEvalInto(t *testing.T) {
	k, err := New(WendlandC2, 3)
	require.NoError(t, err)
	rs := []float64{0, 0.1, 0.5, 3}
	w := make([]float64, len(rs))
	dw := make([]float64, len(rs))
	k.EvalInto(w, dw, rs, 0.5)
	for i, r := range rs {
		wi, di := k.Eval(r, 0.5)
		assert.Equal(t, wi, w[i])
		assert.Equal(t, di, dw[i])
	}
	k.EvalInto(w, nil, rs, 0.5)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		want    Kind
		wantErr bool
	}{
		{"cubic_spline", CubicSpline, false},
		{"wendland_c6", WendlandC6, false},
		{"gaussian", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.name, got.String())
		})
	}

	_, err := New(CubicSpline, 4)
	assert.Error(t, err)
}
