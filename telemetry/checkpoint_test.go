package telemetry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCheckpoint(iteration int) *Checkpoint {
	delta := 0.125
	return &Checkpoint{
		Version:                CheckpointVersion,
		RandomSeed:             666,
		RNGState:               []byte{1, 2, 3, 4},
		NDim:                   2,
		Box:                    [3]float64{1, 2, 1},
		Periodic:               true,
		NumberOfParticles:      4,
		Kernel:                 "cubic_spline",
		Eta:                    1.2348,
		Model:                  "sine",
		Mass:                   0.125,
		TotalMass:              2,
		Iteration:              iteration,
		DeltaRNorm:             &delta,
		RedistributionFraction: 0.01,
		Particles: []ParticleState{
			{X: 0.1, Y: 0.2, Z: 0.5, H: 0.3, Density: 1.1, ModelDensity: 1},
			{X: 0.6, Y: 1.7, Z: 0.5, H: 0.3, Density: 0.9, ModelDensity: 1, Displacement: 1e-3},
		},
	}
}

func TestSaveLoadCheckpoint(t *testing.T) {
	dir := t.TempDir()
	ck := testCheckpoint(50)

	path, err := SaveCheckpoint(ck, dir, "IC_generation_iteration")
	if err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}
	assert.Equal(t, filepath.Join(dir, "IC_generation_iteration_00050.json"), path)

	loaded, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	assert.Equal(t, ck, loaded)
}

func TestSaveCheckpointCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "dumps")
	_, err := SaveCheckpoint(testCheckpoint(1), dir, "dump")
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary file should be renamed away")
	assert.Equal(t, "dump_00001.json", entries[0].Name())
}

func TestLoadCheckpointRejectsVersion(t *testing.T) {
	dir := t.TempDir()
	ck := testCheckpoint(3)
	ck.Version = CheckpointVersion + 1
	path, err := SaveCheckpoint(ck, dir, "dump")
	require.NoError(t, err)

	_, err = LoadCheckpoint(path)
	assert.ErrorIs(t, err, ErrCheckpointVersion)
}

func TestLoadCheckpointMissing(t *testing.T) {
	_, err := LoadCheckpoint(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestCheckpointWriter(t *testing.T) {
	dir := t.TempDir()
	w := NewCheckpointWriter(dir, "dump")
	require.NotNil(t, w)

	for _, it := range []int{10, 20, 30} {
		w.Submit(testCheckpoint(it))
	}
	require.NoError(t, w.Close())

	paths := w.Paths()
	require.Len(t, paths, 3)
	for i, it := range []int{10, 20, 30} {
		assert.Equal(t, filepath.Join(dir, CheckpointName("dump", it)), paths[i])
		ck, err := LoadCheckpoint(paths[i])
		require.NoError(t, err)
		assert.Equal(t, it, ck.Iteration)
	}
}

func TestCheckpointWriterDisabled(t *testing.T) {
	w := NewCheckpointWriter("", "dump")
	assert.Nil(t, w)
	w.Submit(testCheckpoint(1))
	assert.Nil(t, w.Paths())
	assert.NoError(t, w.Close())
}
