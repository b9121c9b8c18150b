package relax

import "github.com/pthm-cable/icgen/config"

// convergence is the verdict on one iteration's displacements.
type convergence struct {
	counted     int     // Particles taking part
	unconverged int     // Counted particles above convergence_threshold
	fraction    float64 // unconverged / counted
	maxDisp     float64
	converged   bool
}

// assessConvergence applies the hard displacement ceiling first, then the
// tolerated fraction of particles above convergence_threshold. disp is in
// units of the mean interparticle distance. Degenerate particles are not
// counted; with none left the iteration is not converged.
func assessConvergence(disp []float64, flags []particleFlag, p config.RunParams) convergence {
	var c convergence
	for i, d := range disp {
		if flags[i]&flagDegenerate != 0 {
			continue
		}
		c.counted++
		c.maxDisp = max(c.maxDisp, d)
		if d > p.ConvergenceThreshold {
			c.unconverged++
		}
	}
	if c.counted == 0 {
		return c
	}
	c.fraction = float64(c.unconverged) / float64(c.counted)
	if c.maxDisp > p.DisplacementThreshold {
		return c
	}
	c.converged = c.fraction <= p.UnconvergedParticleTolerance
	return c
}
