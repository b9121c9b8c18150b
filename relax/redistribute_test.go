package relax

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestDensityRatio(t *testing.T) {
	assert.Equal(t, 2.0, densityRatio(2, 1))
	assert.Equal(t, 0.5, densityRatio(1, 2))
	assert.Equal(t, maxDensityRatio, densityRatio(1, 0))
	assert.Equal(t, maxDensityRatio, densityRatio(1e9, 1))
}

func TestRedistributionDue(t *testing.T) {
	g := &Generator{}
	g.params.RedistributionFrequency = 10
	g.params.NoParticleRedistributionAfter = 30

	for it, want := range map[int]bool{
		5:  false,
		10: true,
		20: true,
		30: false,
		40: false,
	} {
		g.iteration = it
		assert.Equal(t, want, g.redistributionDue(), "iteration %d", it)
	}

	g.params.RedistributionFrequency = 0
	g.iteration = 10
	assert.False(t, g.redistributionDue())
}

func TestRedistributeMovesOverdenseToUnderdense(t *testing.T) {
	cfg := testConfig(t, 1, 10)
	cfg.Run.RedistributionNumberReduction = 0.5
	g := newGenerator(t, constant, cfg, Options{})
	require.NoError(t, g.InitialSetup())

	for i := range g.dens {
		g.modelDens[i] = 1
		if i < 5 {
			g.dens[i] = 2
		} else {
			g.dens[i] = 0.5
		}
	}
	before := slices.Clone(g.x)
	copy(g.xNext, g.x)
	g.redistFrac = 0.3

	moved := g.redistribute()
	assert.Equal(t, 3, moved)
	assert.InDelta(t, 0.15, g.redistFrac, 1e-15)

	changed := 0
	for i := range g.x {
		if g.x[i] == before[i] {
			assert.Zero(t, g.disp[i], "particle %d", i)
			continue
		}
		changed++
		assert.Less(t, i, 5, "only overdense particles move")
		assert.Positive(t, g.disp[i])

		near := false
		for j := 5; j < 10; j++ {
			d := r3.Norm(g.dom.Delta(before[j], g.x[i]))
			if d <= redistributionRadius*g.kern.SupportRadius(g.h[j])+1e-12 {
				near = true
			}
		}
		assert.True(t, near, "particle %d at %v is not next to an underdense particle", i, g.x[i])
		assert.Equal(t, 0.5, g.x[i].Y)
		assert.Equal(t, 0.5, g.x[i].Z)
	}
	assert.Equal(t, 3, changed)
}

func TestRedistributeNeedsBothSides(t *testing.T) {
	cfg := testConfig(t, 1, 10)
	g := newGenerator(t, constant, cfg, Options{})
	require.NoError(t, g.InitialSetup())

	for i := range g.dens {
		g.dens[i], g.modelDens[i] = 2, 1
	}
	g.redistFrac = 0.5
	assert.Zero(t, g.redistribute())
}

func TestBallOffsetWithinRadius(t *testing.T) {
	cfg := testConfig(t, 3, 2)
	g := newGenerator(t, constant, cfg, Options{})
	require.NoError(t, g.InitialSetup())

	for k := 0; k < 1000; k++ {
		v := g.ballOffset(0.1)
		assert.LessOrEqual(t, r3.Norm(v), 0.1+1e-15)
	}

	cfg2 := testConfig(t, 2, 2)
	g2 := newGenerator(t, constant, cfg2, Options{})
	require.NoError(t, g2.InitialSetup())
	for k := 0; k < 100; k++ {
		v := g2.ballOffset(1)
		assert.Zero(t, v.Z)
		assert.False(t, math.IsNaN(v.X))
	}
}
