// Package sampling integrates the model mass and draws initial particle
// coordinates.
package sampling

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/icgen/model"
	"github.com/pthm-cable/icgen/spatial"
)

// ErrNegativeDensity is returned when the model density is negative
// somewhere it was evaluated.
var ErrNegativeDensity = errors.New("model density is negative")

// Integration selects the quadrature used for the total mass.
type Integration string

const (
	Midpoint Integration = "midpoint"
	Legendre Integration = "legendre"
)

// maxLegendreNodes caps the Gauss-Legendre nodes per dimension.
const maxLegendreNodes = 128

// evalBatch is the number of points per model call.
const evalBatch = 1 << 16

// DefaultResolution returns the per-dimension resolution used when none is
// configured.
func DefaultResolution(ndim int) int {
	switch ndim {
	case 1:
		return 10000
	case 2:
		return 1000
	default:
		return 100
	}
}

// IntegrateMass returns the integral of rho over the active box. resolution
// is points per dimension; 0 selects DefaultResolution.
func IntegrateMass(rho model.Func, dom spatial.Domain, method Integration, resolution int) (float64, error) {
	if resolution <= 0 {
		resolution = DefaultResolution(dom.NDim)
	}

	var nodes, weights [3][]float64
	for d := 0; d < 3; d++ {
		if d >= dom.NDim {
			nodes[d], weights[d] = []float64{0.5}, []float64{1}
			continue
		}
		switch method {
		case Midpoint:
			n := resolution
			dx := dom.Box[d] / float64(n)
			nodes[d] = make([]float64, n)
			weights[d] = make([]float64, n)
			for i := range nodes[d] {
				nodes[d][i] = (float64(i) + 0.5) * dx
				weights[d][i] = dx
			}
		case Legendre:
			n := min(resolution, maxLegendreNodes)
			nodes[d] = make([]float64, n)
			weights[d] = make([]float64, n)
			quad.Legendre{}.FixedLocations(nodes[d], weights[d], 0, dom.Box[d])
		default:
			return 0, fmt.Errorf("unknown mass integration %q", method)
		}
	}

	total := 0.0
	xs := make([]r3.Vec, 0, evalBatch)
	ws := make([]float64, 0, evalBatch)
	flush := func() error {
		if len(xs) == 0 {
			return nil
		}
		vals := rho(xs, dom.NDim)
		if len(vals) != len(xs) {
			return fmt.Errorf("model returned %d values for %d points", len(vals), len(xs))
		}
		if floats.Min(vals) < 0 {
			return fmt.Errorf("%w: min %g", ErrNegativeDensity, floats.Min(vals))
		}
		total += floats.Dot(vals, ws)
		xs, ws = xs[:0], ws[:0]
		return nil
	}

	for k, z := range nodes[2] {
		for j, y := range nodes[1] {
			for i, x := range nodes[0] {
				xs = append(xs, r3.Vec{X: x, Y: y, Z: z})
				ws = append(ws, weights[0][i]*weights[1][j]*weights[2][k])
				if len(xs) == evalBatch {
					if err := flush(); err != nil {
						return 0, err
					}
				}
			}
		}
	}
	if err := flush(); err != nil {
		return 0, err
	}
	return total, nil
}
