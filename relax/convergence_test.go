package relax

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pthm-cable/icgen/config"
)

func TestAssessConvergence(t *testing.T) {
	p := config.RunParams{
		ConvergenceThreshold:         1e-3,
		DisplacementThreshold:        1e-2,
		UnconvergedParticleTolerance: 0.25,
	}

	tests := []struct {
		name        string
		disp        []float64
		flags       []particleFlag
		converged   bool
		unconverged int
	}{
		{
			name:      "all below threshold",
			disp:      []float64{1e-4, 2e-4, 0, 5e-4},
			flags:     make([]particleFlag, 4),
			converged: true,
		},
		{
			name:        "tolerated fraction above threshold",
			disp:        []float64{1e-4, 2e-3, 0, 5e-4},
			flags:       make([]particleFlag, 4),
			converged:   true,
			unconverged: 1,
		},
		{
			name:        "too many above threshold",
			disp:        []float64{1e-4, 2e-3, 3e-3, 5e-4},
			flags:       make([]particleFlag, 4),
			unconverged: 2,
		},
		{
			name:        "hard ceiling exceeded",
			disp:        []float64{0, 0, 0, 0.5},
			flags:       make([]particleFlag, 4),
			unconverged: 1,
		},
		{
			name:      "degenerate particles ignored",
			disp:      []float64{1e-4, 0.5, 0.5, 5e-4},
			flags:     []particleFlag{0, flagDegenerate, flagDegenerate | flagUnconverged, 0},
			converged: true,
		},
		{
			name:  "nothing counted",
			disp:  []float64{0, 0},
			flags: []particleFlag{flagDegenerate, flagDegenerate},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := assessConvergence(tt.disp, tt.flags, p)
			assert.Equal(t, tt.converged, c.converged)
			assert.Equal(t, tt.unconverged, c.unconverged)
		})
	}
}

func TestStateTerminated(t *testing.T) {
	assert.False(t, Uninitialized.Terminated())
	assert.False(t, SetupDone.Terminated())
	assert.False(t, Iterating.Terminated())
	assert.True(t, Converged.Terminated())
	assert.True(t, MaxIterationsReached.Terminated())
}
