// Package kernel implements the compactly supported SPH kernels used for
// density estimates and particle displacements.
//
// All kernels follow W(r, h) = C/H^d f(r/H) with H = gamma*h the compact
// support radius, so h is comparable across kernels.
package kernel

import (
	"fmt"
	"math"
)

// Kind identifies a kernel function.
type Kind uint8

const (
	CubicSpline Kind = iota
	QuarticSpline
	QuinticSpline
	WendlandC2
	WendlandC4
	WendlandC6
	numKinds
)

var kindNames = [numKinds]string{
	CubicSpline:   "cubic_spline",
	QuarticSpline: "quartic_spline",
	QuinticSpline: "quintic_spline",
	WendlandC2:    "wendland_c2",
	WendlandC4:    "wendland_c4",
	WendlandC6:    "wendland_c6",
}

// Normalisation constants C_d, indexed by [kind][ndim-1].
var norms = [numKinds][3]float64{
	CubicSpline:   {8.0 / 3.0, 80.0 / (7.0 * math.Pi), 16.0 / math.Pi},
	QuarticSpline: {3125.0 / 768.0, 46875.0 / (2398.0 * math.Pi), 15625.0 / (512.0 * math.Pi)},
	QuinticSpline: {243.0 / 40.0, 15309.0 / (478.0 * math.Pi), 2187.0 / (40.0 * math.Pi)},
	WendlandC2:    {5.0 / 4.0, 7.0 / math.Pi, 21.0 / (2.0 * math.Pi)},
	WendlandC4:    {3.0 / 2.0, 9.0 / math.Pi, 495.0 / (32.0 * math.Pi)},
	WendlandC6:    {55.0 / 32.0, 78.0 / (7.0 * math.Pi), 1365.0 / (64.0 * math.Pi)},
}

// Support radius over smoothing length, H/h, indexed by [kind][ndim-1].
var gammas = [numKinds][3]float64{
	CubicSpline:   {1.732051, 1.778002, 1.825742},
	QuarticSpline: {1.936492, 1.977173, 2.018932},
	QuinticSpline: {2.121321, 2.158131, 2.195775},
	WendlandC2:    {1.620185, 1.897367, 1.936492},
	WendlandC4:    {1.936492, 2.171239, 2.207940},
	WendlandC6:    {2.207940, 2.415230, 2.449490},
}

// String returns the configuration name of the kernel.
func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("kernel(%d)", uint8(k))
}

// Parse looks a kernel up by its configuration name.
func Parse(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown kernel %q", name)
}

// Names lists the configuration names of all kernels.
func Names() []string {
	return append([]string(nil), kindNames[:]...)
}

// Kernel is a kernel bound to a dimensionality. The zero value is not usable;
// construct with New.
type Kernel struct {
	kind  Kind
	ndim  int
	norm  float64
	gamma float64
}

// New binds kind to ndim (1, 2 or 3).
func New(kind Kind, ndim int) (Kernel, error) {
	if kind >= numKinds {
		return Kernel{}, fmt.Errorf("unknown kernel %d", kind)
	}
	if ndim < 1 || ndim > 3 {
		return Kernel{}, fmt.Errorf("kernel %s: ndim must be 1, 2 or 3, got %d", kind, ndim)
	}
	return Kernel{
		kind:  kind,
		ndim:  ndim,
		norm:  norms[kind][ndim-1],
		gamma: gammas[kind][ndim-1],
	}, nil
}

// Kind returns the kernel function.
func (k Kernel) Kind() Kind { return k.kind }

// NDim returns the bound dimensionality.
func (k Kernel) NDim() int { return k.ndim }

// Gamma returns H/h.
func (k Kernel) Gamma() float64 { return k.gamma }

// SupportRadius returns H = gamma*h; W vanishes for r >= H.
func (k Kernel) SupportRadius(h float64) float64 { return k.gamma * h }

// Eval returns W(r, h) and dW/dr.
func (k Kernel) Eval(r, h float64) (w, dwdr float64) {
	H := k.gamma * h
	q := r / H
	if q >= 1 {
		return 0, 0
	}
	f, df := k.shape(q)
	hd := ipow(H, k.ndim)
	return k.norm / hd * f, k.norm / (hd * H) * df
}

// W returns W(r, h).
func (k Kernel) W(r, h float64) float64 {
	w, _ := k.Eval(r, h)
	return w
}

// SelfWeight returns h^d W(0, h), the self contribution to the
// dimensionless neighbour sum h^d sum_j W(r_ij, h).
func (k Kernel) SelfWeight() float64 {
	f, _ := k.shape(0)
	return k.norm * f / ipow(k.gamma, k.ndim)
}

// EvalInto evaluates W and dW/dr for every r in rs at a common h. w and dwdr
// must be at least len(rs) long; either may be nil to skip it.
func (k Kernel) EvalInto(w, dwdr, rs []float64, h float64) {
	for i, r := range rs {
		wi, di := k.Eval(r, h)
		if w != nil {
			w[i] = wi
		}
		if dwdr != nil {
			dwdr[i] = di
		}
	}
}

// shape returns f(q) and f'(q) for 0 <= q < 1.
func (k Kernel) shape(q float64) (f, df float64) {
	switch k.kind {
	case CubicSpline:
		if q < 0.5 {
			return 3*q*q*q - 3*q*q + 0.5, 9*q*q - 6*q
		}
		u := 1 - q
		return u * u * u, -3 * u * u

	case QuarticSpline:
		u := 1 - q
		f, df = u*u*u*u, -4*u*u*u
		if q < 0.6 {
			v := 0.6 - q
			f -= 5 * v * v * v * v
			df += 20 * v * v * v
		}
		if q < 0.2 {
			v := 0.2 - q
			f += 10 * v * v * v * v
			df -= 40 * v * v * v
		}
		return f, df

	case QuinticSpline:
		u := 1 - q
		u4 := u * u * u * u
		f, df = u4*u, -5*u4
		if q < 2.0/3.0 {
			v := 2.0/3.0 - q
			v4 := v * v * v * v
			f -= 6 * v4 * v
			df += 30 * v4
		}
		if q < 1.0/3.0 {
			v := 1.0/3.0 - q
			v4 := v * v * v * v
			f += 15 * v4 * v
			df -= 75 * v4
		}
		return f, df

	case WendlandC2:
		u := 1 - q
		if k.ndim == 1 {
			u2 := u * u
			return u2 * u * (1 + 3*q), -12 * q * u2
		}
		u3 := u * u * u
		return u3 * u * (1 + 4*q), -20 * q * u3

	case WendlandC4:
		u := 1 - q
		if k.ndim == 1 {
			u4 := u * u * u * u
			p := 1 + 5*q + 8*q*q
			return u4 * u * p, -5*u4*p + u4*u*(5+16*q)
		}
		u5 := u * u * u * u * u
		p := 1 + 6*q + 35.0/3.0*q*q
		return u5 * u * p, -6*u5*p + u5*u*(6+70.0/3.0*q)

	case WendlandC6:
		u := 1 - q
		if k.ndim == 1 {
			u6 := u * u * u * u * u * u
			p := 1 + 7*q + 19*q*q + 21*q*q*q
			return u6 * u * p, -7*u6*p + u6*u*(7+38*q+63*q*q)
		}
		u7 := u * u * u * u * u * u * u
		p := 1 + 8*q + 25*q*q + 32*q*q*q
		return u7 * u * p, -8*u7*p + u7*u*(8+50*q+96*q*q)
	}
	return 0, 0
}

func ipow(x float64, n int) float64 {
	switch n {
	case 1:
		return x
	case 2:
		return x * x
	default:
		return x * x * x
	}
}
