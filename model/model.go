// Package model provides target density fields for the generator.
package model

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/icgen/spatial"
)

// Func evaluates the model density at every position. Implementations must
// be pure, return non-negative values and be safe for concurrent use.
type Func func(x []r3.Vec, ndim int) []float64

// Pointwise lifts a scalar density into a Func.
func Pointwise(f func(x r3.Vec) float64) Func {
	return func(xs []r3.Vec, _ int) []float64 {
		out := make([]float64, len(xs))
		for i, x := range xs {
			out[i] = f(x)
		}
		return out
	}
}

// Params holds named model parameters.
type Params map[string]float64

type entry struct {
	description string
	defaults    Params
	build       func(p Params, dom spatial.Domain) (Func, error)
}

var registry = map[string]entry{
	"uniform": {
		description: "constant density rho0",
		defaults:    Params{"rho0": 1},
		build: func(p Params, _ spatial.Domain) (Func, error) {
			if !(p["rho0"] > 0) {
				return nil, fmt.Errorf("rho0 must be positive")
			}
			rho0 := p["rho0"]
			return Pointwise(func(r3.Vec) float64 { return rho0 }), nil
		},
	},
	"gaussian": {
		description: "background + amplitude * exp(-r^2 / (2 sigma^2)) around (cx, cy, cz) in box fractions",
		defaults:    Params{"background": 1, "amplitude": 10, "sigma": 0.1, "cx": 0.5, "cy": 0.5, "cz": 0.5},
		build:       buildGaussian,
	},
	"sine": {
		description: "rho0 * (1 + amplitude * sin(2 pi k x_axis / L_axis))",
		defaults:    Params{"rho0": 1, "amplitude": 0.5, "k": 1, "axis": 0},
		build:       buildSine,
	},
	"step": {
		description: "low below position (box fraction) along x, high above",
		defaults:    Params{"low": 1, "high": 2, "position": 0.5},
		build: func(p Params, dom spatial.Domain) (Func, error) {
			if p["low"] < 0 || p["high"] < 0 || p["low"]+p["high"] == 0 {
				return nil, fmt.Errorf("low and high must be non-negative and not both zero")
			}
			low, high := p["low"], p["high"]
			edge := p["position"] * dom.Box[0]
			return Pointwise(func(x r3.Vec) float64 {
				if x.X < edge {
					return low
				}
				return high
			}), nil
		},
	},
	"noise": {
		description: "rho0 * (1 + amplitude * fbm(x)), tiling Perlin noise with frequency cells per box",
		defaults:    Params{"rho0": 1, "amplitude": 0.5, "frequency": 4, "octaves": 3, "gain": 0.5, "seed": 1},
		build:       buildNoise,
	},
}

// Names lists the built-in models.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Describe returns a one-line description and the default parameters of a
// built-in model.
func Describe(name string) (string, Params, bool) {
	e, ok := registry[name]
	if !ok {
		return "", nil, false
	}
	defaults := make(Params, len(e.defaults))
	for k, v := range e.defaults {
		defaults[k] = v
	}
	return e.description, defaults, true
}

// New builds a built-in model. params override the model defaults; unknown
// names are rejected.
func New(name string, params map[string]float64, dom spatial.Domain) (Func, error) {
	e, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown model %q (have %v)", name, Names())
	}
	p := make(Params, len(e.defaults))
	for k, v := range e.defaults {
		p[k] = v
	}
	for k, v := range params {
		if _, ok := e.defaults[k]; !ok {
			return nil, fmt.Errorf("model %q: unknown parameter %q", name, k)
		}
		p[k] = v
	}
	f, err := e.build(p, dom)
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", name, err)
	}
	return f, nil
}

func buildGaussian(p Params, dom spatial.Domain) (Func, error) {
	if p["background"] < 0 || p["amplitude"] < 0 || !(p["sigma"] > 0) {
		return nil, fmt.Errorf("background, amplitude must be >= 0 and sigma > 0")
	}
	center := dom.Inactive(r3.Vec{
		X: p["cx"] * dom.Box[0],
		Y: p["cy"] * dom.Box[1],
		Z: p["cz"] * dom.Box[2],
	})
	bg, amp := p["background"], p["amplitude"]
	inv := 1 / (2 * p["sigma"] * p["sigma"])
	return Pointwise(func(x r3.Vec) float64 {
		d := dom.Delta(center, x)
		return bg + amp*math.Exp(-r3.Dot(d, d)*inv)
	}), nil
}

func buildSine(p Params, dom spatial.Domain) (Func, error) {
	axis := int(p["axis"])
	if axis < 0 || axis >= dom.NDim || float64(axis) != p["axis"] {
		return nil, fmt.Errorf("axis must be an active dimension, got %g", p["axis"])
	}
	if !(p["rho0"] > 0) || math.Abs(p["amplitude"]) > 1 {
		return nil, fmt.Errorf("rho0 must be positive and |amplitude| <= 1")
	}
	rho0, amp := p["rho0"], p["amplitude"]
	kx := 2 * math.Pi * p["k"] / dom.Box[axis]
	return Pointwise(func(x r3.Vec) float64 {
		return rho0 * (1 + amp*math.Sin(kx*spatial.Components(x)[axis]))
	}), nil
}

func buildNoise(p Params, dom spatial.Domain) (Func, error) {
	freq := int(p["frequency"])
	octaves := int(p["octaves"])
	if freq < 1 || float64(freq) != p["frequency"] {
		return nil, fmt.Errorf("frequency must be a positive integer")
	}
	if octaves < 1 || octaves > 8 {
		return nil, fmt.Errorf("octaves must be in [1, 8]")
	}
	if !(p["rho0"] > 0) || p["amplitude"] < 0 || p["amplitude"] >= 1 {
		return nil, fmt.Errorf("rho0 must be positive and amplitude in [0, 1)")
	}
	noise := NewPerlin(uint64(p["seed"]))
	rho0, amp, gain := p["rho0"], p["amplitude"], p["gain"]
	period := [3]int{1, 1, 1}
	for d := 0; d < dom.NDim; d++ {
		period[d] = freq
	}
	return Pointwise(func(x r3.Vec) float64 {
		c := spatial.Components(x)
		var s [3]float64
		for d := 0; d < dom.NDim; d++ {
			s[d] = c[d] / dom.Box[d] * float64(freq)
		}
		v := rho0 * (1 + amp*noise.FBM(s[0], s[1], s[2], period, octaves, gain))
		return math.Max(v, 0)
	}), nil
}
