package relax

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// balancedForce is the largest net force, relative to the summed force
// magnitudes, treated as round-off when choosing the automatic
// normalization.
const balancedForce = 1e-8

// forceChunk accumulates, for particles [i0, i1),
//
//	F_i = sum_j h~_ij W(r_ij, h~_ij) (x_i - x_j) / r_ij,  h~_ij = (h~_i + h~_j) / 2
//
// and the scale sum_j h~_ij W(r_ij, h~_ij).
func (g *Generator) forceChunk(i0, i1 int, scratch *workerScratch) {
	gamma := g.kern.Gamma()
	for i := i0; i < i1; i++ {
		hi := g.hModel[i]
		radius := math.Min(0.5*gamma*(hi+g.hModelMax), g.maxRadius)
		scratch.Neighbors = g.grid.QueryInto(scratch.Neighbors[:0], g.x[i], radius, i)

		var f r3.Vec
		var s float64
		for _, nb := range scratch.Neighbors {
			hij := 0.5 * (hi + g.hModel[nb.Index])
			if nb.R == 0 || nb.R >= gamma*hij {
				continue
			}
			w := hij * g.kern.W(nb.R, hij)
			f = r3.Add(f, r3.Scale(w/nb.R, nb.D))
			s += w
		}
		g.force[i] = f
		g.forceScale[i] = s
	}
}

// displace moves every particle by C F_i, C = delta mid^ndim, into the back
// buffer, records |dr_i| / mid and swaps the buffers.
func (g *Generator) displace() {
	var maxF, scale float64
	for i, f := range g.force {
		maxF = math.Max(maxF, r3.Norm(f))
		scale = math.Max(scale, g.forceScale[i])
	}
	g.updateDelta(maxF, scale)

	c := g.delta * g.midPow
	for i, x := range g.x {
		next := g.dom.Confine(r3.Add(x, r3.Scale(c, g.force[i])))
		g.xNext[i] = next
		g.disp[i] = r3.Norm(g.dom.Delta(x, next)) / g.mid
	}
	g.x, g.xNext = g.xNext, g.x
}

// updateDelta sets the normalization for the current iteration. Without
// delta_init it is chosen on the first iteration with any force so that the
// largest step is one mean interparticle distance; later iterations reduce
// it geometrically down to min_delta_r_norm.
func (g *Generator) updateDelta(maxF, scale float64) {
	if !g.deltaSet {
		ref := maxF
		if !(maxF > balancedForce*scale) {
			ref = scale
		}
		if ref > 0 {
			g.delta = g.mid / ref / g.midPow
			g.deltaSet = true
		}
		return
	}
	if g.iteration > 1 {
		g.delta = math.Max(g.delta*g.params.DeltaRNormReductionFactor, g.params.MinDeltaRNorm)
	}
}
