package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Generator.NDim)
	assert.Equal(t, 32*32, cfg.Derived.NumParticle)
	assert.Equal(t, [3]float64{1, 1, 1}, cfg.Derived.Box)
	assert.Nil(t, cfg.Run.DeltaInit, "delta_init defaults to auto")
	assert.Equal(t, 1000, cfg.Run.MaxIterations)
	assert.Equal(t, uint64(666), cfg.Run.RandomSeed)
	assert.Equal(t, "IC_generation_iteration", cfg.Run.StateDumpBasename)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	data := []byte(`
generator:
  number_of_particles: 10
  ndim: 1
  box_size: [3.0]
model:
  name: gaussian
  params:
    sigma: 0.2
run:
  delta_init: 0.05
  max_iterations: 20
`)
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Derived.NumParticle)
	assert.Equal(t, [3]float64{3, 1, 1}, cfg.Derived.Box)
	require.NotNil(t, cfg.Run.DeltaInit)
	assert.InDelta(t, 0.05, *cfg.Run.DeltaInit, 1e-15)
	assert.Equal(t, 20, cfg.Run.MaxIterations)
	assert.Equal(t, 0.2, cfg.Model.Params["sigma"])
	// Untouched keys keep their defaults
	assert.Equal(t, "cubic_spline", cfg.Generator.Kernel)
	assert.Equal(t, 40, cfg.Run.RedistributionFrequency)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"ndim zero", func(c *Config) { c.Generator.NDim = 0 }},
		{"ndim four", func(c *Config) { c.Generator.NDim = 4 }},
		{"box size length", func(c *Config) { c.Generator.BoxSize = []float64{1} }},
		{"negative box", func(c *Config) { c.Generator.BoxSize = []float64{1, -1} }},
		{"no particles", func(c *Config) { c.Generator.NumberOfParticles = 0 }},
		{"unknown sampling", func(c *Config) { c.Generator.Sampling = "sobol" }},
		{"unknown integration", func(c *Config) { c.Generator.MassIntegration = "simpson" }},
		{"min above max", func(c *Config) { c.Run.MinIterations = c.Run.MaxIterations + 1 }},
		{"reduction factor above one", func(c *Config) { c.Run.DeltaRNormReductionFactor = 1.5 }},
		{"redistribution reduction zero", func(c *Config) { c.Run.RedistributionNumberReduction = 0 }},
		{"redistribution reduction above one", func(c *Config) { c.Run.RedistributionNumberReduction = 1.5 }},
		{"zero delta init", func(c *Config) { zero := 0.0; c.Run.DeltaInit = &zero }},
		{"tolerance above one", func(c *Config) { c.Run.UnconvergedParticleTolerance = 2 }},
		{"empty dump basename", func(c *Config) { c.Run.StateDumpBasename = "" }},
		{"empty model", func(c *Config) { c.Model.Name = "" }},
		{"solver tolerance", func(c *Config) { c.Solver.Tolerance = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Defaults()
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid), "error should wrap ErrInvalid: %v", err)
		})
	}
}

func TestLoadINI(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.ini")
	require.NoError(t, os.WriteFile(path, []byte(ExampleINIFile), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 64*64, cfg.Derived.NumParticle)
	assert.Equal(t, "wendland_c2", cfg.Generator.Kernel)
	assert.Equal(t, "gaussian", cfg.Model.Name)
	assert.Equal(t, map[string]float64{"sigma": 0.1, "amplitude": 10}, cfg.Model.Params)
	assert.Equal(t, 500, cfg.Run.MaxIterations)
	assert.Equal(t, uint64(42), cfg.Run.RandomSeed)
	assert.Nil(t, cfg.Run.DeltaInit)
	// Keys absent from the file keep defaults
	assert.Equal(t, 0.99, cfg.Run.DeltaRNormReductionFactor)
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg, err := Defaults()
	require.NoError(t, err)
	delta := 0.25
	cfg.Run.DeltaInit = &delta

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, loaded.Run.DeltaInit)
	assert.Equal(t, delta, *loaded.Run.DeltaInit)
	assert.Equal(t, cfg.Generator, loaded.Generator)
}
