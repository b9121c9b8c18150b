package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/icgen/telemetry"
)

func TestListCheckpointsSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"dump_00010.json", "dump_00002.json", "other_00001.json", "dump_00100.json"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0644))
	}

	paths, err := listCheckpoints(dir, "dump")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "dump_00002.json"),
		filepath.Join(dir, "dump_00010.json"),
		filepath.Join(dir, "dump_00100.json"),
	}, paths)
}

func TestPlaneFor(t *testing.T) {
	assert.Equal(t, plane{u: 0, v: 1, drop: 2}, planeFor(2, 0))
	assert.Equal(t, plane{u: 1, v: 2, drop: 0}, planeFor(3, 0))
	assert.Equal(t, plane{u: 0, v: 2, drop: 1}, planeFor(3, 1))
	assert.Equal(t, plane{u: 0, v: 1, drop: 2}, planeFor(3, 7))
}

func TestProject(t *testing.T) {
	box := [3]float64{2, 4, 1}
	u, v := planeFor(3, 0).project(telemetry.ParticleState{X: 1, Y: 1, Z: 0.25}, box)
	assert.Equal(t, 0.25, u)
	assert.Equal(t, 0.25, v)
}

func TestShade(t *testing.T) {
	ps := telemetry.ParticleState{H: 0.1, Density: 2, ModelDensity: 1, Displacement: 0.5}
	assert.Equal(t, 1.0, shade(ps, colorByRatio, 0, 0))
	assert.Equal(t, 0.5, shade(telemetry.ParticleState{Density: 1, ModelDensity: 1}, colorByRatio, 0, 0))
	assert.Equal(t, 0.0, shade(telemetry.ParticleState{Density: 0.5, ModelDensity: 1}, colorByRatio, 0, 0))
	assert.InDelta(t, 0.5, shade(ps, colorByH, 0.2, 1), 1e-12)
	assert.Equal(t, 0.0, shade(ps, colorByDisplacement, 1, 0))
}

func TestSampleModelNormalized(t *testing.T) {
	rho := func(xs []r3.Vec, ndim int) []float64 {
		out := make([]float64, len(xs))
		for i, x := range xs {
			out[i] = 1 + x.X
		}
		return out
	}
	grid := sampleModel(rho, 2, [3]float64{1, 1, 1}, planeFor(2, 2), 4)
	require.Len(t, grid, 16)
	assert.InDelta(t, 1, grid[3], 1e-6)
	assert.Less(t, grid[0], grid[3])
	assert.Equal(t, grid[0], grid[4])
}

func TestGradientEnds(t *testing.T) {
	assert.Equal(t, uint8(10), gradient(0).R)
	assert.Equal(t, uint8(255), gradient(1).R)
	assert.Equal(t, uint8(255), diverging(0).B)
	assert.Equal(t, uint8(255), diverging(1).R)
}
