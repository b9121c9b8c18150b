package relax

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/pthm-cable/icgen/spatial"
)

// redistributionRadius is the ball around a target, in kernel support
// radii of the target, that a moved particle lands in.
const redistributionRadius = 0.3

// maxDensityRatio caps rho/rho_model so that empty model regions get a large
// but finite selection weight.
const maxDensityRatio = 1e6

func (g *Generator) redistributionDue() bool {
	p := g.params
	return p.RedistributionFrequency > 0 &&
		g.iteration%p.RedistributionFrequency == 0 &&
		g.iteration < p.NoParticleRedistributionAfter
}

// densityRatio returns rho/rho_model, capped at maxDensityRatio.
func densityRatio(rho, model float64) float64 {
	if model <= 0 {
		return maxDensityRatio
	}
	return math.Min(rho/model, maxDensityRatio)
}

// redistribute moves overdense particles next to underdense ones and
// returns how many moved. Movers are drawn without replacement with weight
// rho/rho_model, targets with replacement with the inverse weight. Ratios
// come from this iteration's density pass.
func (g *Generator) redistribute() int {
	nmove := int(math.Floor(float64(g.n) * g.redistFrac))
	g.redistFrac *= g.params.RedistributionNumberReduction
	if nmove == 0 {
		return 0
	}

	over, under := 0, 0
	for i := range g.dens {
		g.moverW[i], g.targetW[i] = 0, 0
		r := densityRatio(g.dens[i], g.modelDens[i])
		switch {
		case r > 1:
			g.moverW[i] = r
			over++
		case r < 1 && g.modelDens[i] > 0:
			g.targetW[i] = 1 / math.Max(r, 1/maxDensityRatio)
			under++
		}
	}
	if over == 0 || under == 0 {
		return 0
	}
	nmove = min(nmove, over)

	movers := sampleuv.NewWeighted(g.moverW, g.pcg)
	targets := sampleuv.NewWeighted(g.targetW, g.pcg)
	moved := 0
	for k := 0; k < nmove; k++ {
		i, ok := movers.Take()
		if !ok {
			break
		}
		j, ok := targets.Take()
		if !ok {
			break
		}
		targets.Reweight(j, g.targetW[j])

		radius := redistributionRadius * g.kern.SupportRadius(g.h[j])
		g.x[i] = g.dom.Confine(r3.Add(g.x[j], g.ballOffset(radius)))
		// xNext still holds the positions from before this iteration
		g.disp[i] = r3.Norm(g.dom.Delta(g.xNext[i], g.x[i])) / g.mid
		moved++
	}

	slog.Info("redistribution",
		"iteration", g.iteration,
		"moved", moved,
		"overdense", over,
		"underdense", under,
		"next_fraction", g.redistFrac,
	)
	return moved
}

// ballOffset returns a uniformly distributed offset within radius in the
// active dimensions.
func (g *Generator) ballOffset(radius float64) r3.Vec {
	ndim := g.dom.NDim
	var c [3]float64
	norm := 0.0
	for norm == 0 {
		for d := 0; d < ndim; d++ {
			c[d] = g.rng.NormFloat64()
		}
		norm = math.Sqrt(c[0]*c[0] + c[1]*c[1] + c[2]*c[2])
	}
	r := radius * math.Pow(g.rng.Float64(), 1/float64(ndim))
	for d := 0; d < ndim; d++ {
		c[d] *= r / norm
	}
	return spatial.FromComponents(c)
}
