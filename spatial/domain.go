// Package spatial provides the simulation box geometry and cell-grid
// neighbour lookups.
package spatial

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Domain is a 1-3D box with origin at zero. Dimensions at or above NDim are
// inactive: they have unit extent and every particle sits at their midpoint.
type Domain struct {
	Box      [3]float64
	NDim     int
	Periodic bool
}

// NewDomain builds a domain from one box length per active dimension.
func NewDomain(box []float64, periodic bool) (Domain, error) {
	if len(box) < 1 || len(box) > 3 {
		return Domain{}, fmt.Errorf("domain: need 1 to 3 box lengths, got %d", len(box))
	}
	d := Domain{Box: [3]float64{1, 1, 1}, NDim: len(box), Periodic: periodic}
	for i, l := range box {
		if !(l > 0) || math.IsInf(l, 0) {
			return Domain{}, fmt.Errorf("domain: box length %d must be positive, got %g", i, l)
		}
		d.Box[i] = l
	}
	return d, nil
}

// Volume returns the measure of the active dimensions.
func (d Domain) Volume() float64 {
	v := 1.0
	for i := 0; i < d.NDim; i++ {
		v *= d.Box[i]
	}
	return v
}

// MeanInterparticleDistance returns (V/n)^(1/ndim).
func (d Domain) MeanInterparticleDistance(n int) float64 {
	return math.Pow(d.Volume()/float64(n), 1/float64(d.NDim))
}

// MaxSearchRadius is the largest radius a neighbour search may use. In a
// periodic box it is half the shortest active edge, so that the minimum
// image is unique.
func (d Domain) MaxSearchRadius() float64 {
	if d.Periodic {
		m := math.Inf(1)
		for i := 0; i < d.NDim; i++ {
			m = math.Min(m, d.Box[i])
		}
		return 0.5 * m
	}
	s := 0.0
	for i := 0; i < d.NDim; i++ {
		s += d.Box[i] * d.Box[i]
	}
	return math.Sqrt(s)
}

// Delta returns the separation vector to - from, using the minimum image in
// periodic boxes. Inactive components are zero.
func (d Domain) Delta(from, to r3.Vec) r3.Vec {
	dv := [3]float64{to.X - from.X, to.Y - from.Y, to.Z - from.Z}
	for i := 0; i < 3; i++ {
		if i >= d.NDim {
			dv[i] = 0
			continue
		}
		if !d.Periodic {
			continue
		}
		l := d.Box[i]
		if dv[i] > l/2 {
			dv[i] -= l
		} else if dv[i] < -l/2 {
			dv[i] += l
		}
	}
	return r3.Vec{X: dv[0], Y: dv[1], Z: dv[2]}
}

// Wrap maps x into [0, L) along every active dimension.
func (d Domain) Wrap(x r3.Vec) r3.Vec {
	c := Components(x)
	for i := 0; i < d.NDim; i++ {
		c[i] = wrap(c[i], d.Box[i])
	}
	return FromComponents(c)
}

// Confine brings a moved position back into the box: periodic boxes wrap,
// closed boxes reflect at the wall and clamp anything still outside.
func (d Domain) Confine(x r3.Vec) r3.Vec {
	if d.Periodic {
		return d.Wrap(x)
	}
	c := Components(x)
	for i := 0; i < d.NDim; i++ {
		l := d.Box[i]
		v := c[i]
		if v < 0 {
			v = -v
		}
		if v >= l {
			v = 2*l - v
		}
		if v < 0 {
			v = 0
		}
		if v >= l {
			v = math.Nextafter(l, 0)
		}
		c[i] = v
	}
	return FromComponents(c)
}

// Contains reports whether x lies in [0, L) along every active dimension
// and on the midpoint of every inactive one.
func (d Domain) Contains(x r3.Vec) bool {
	c := Components(x)
	for i := 0; i < 3; i++ {
		if i >= d.NDim {
			if c[i] != 0.5 {
				return false
			}
			continue
		}
		if c[i] < 0 || c[i] >= d.Box[i] {
			return false
		}
	}
	return true
}

// Inactive fills the inactive components of x with their fixed value.
func (d Domain) Inactive(x r3.Vec) r3.Vec {
	c := Components(x)
	for i := d.NDim; i < 3; i++ {
		c[i] = 0.5
	}
	return FromComponents(c)
}

// Components returns x as an array for per-axis loops.
func Components(x r3.Vec) [3]float64 { return [3]float64{x.X, x.Y, x.Z} }

// FromComponents is the inverse of Components.
func FromComponents(c [3]float64) r3.Vec { return r3.Vec{X: c[0], Y: c[1], Z: c[2]} }

func wrap(v, l float64) float64 {
	v -= l * math.Floor(v/l)
	if v >= l || v < 0 {
		// -tiny + l rounds to l
		v = 0
	}
	return v
}
