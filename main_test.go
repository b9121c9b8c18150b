package main

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/icgen/config"
	"github.com/pthm-cable/icgen/relax"
)

func TestApplyOverrides(t *testing.T) {
	t.Run("unset keeps config", func(t *testing.T) {
		cfg, err := config.Defaults()
		require.NoError(t, err)
		want := *cfg
		applyOverrides(cfg, -1, -1, "")
		assert.Equal(t, want.Run, cfg.Run)
		assert.Equal(t, want.Telemetry.OutputDir, cfg.Telemetry.OutputDir)
	})

	t.Run("seed zero is honoured", func(t *testing.T) {
		cfg, err := config.Defaults()
		require.NoError(t, err)
		require.NotZero(t, cfg.Run.RandomSeed)
		applyOverrides(cfg, 0, -1, "")
		assert.Equal(t, uint64(0), cfg.Run.RandomSeed)
	})

	t.Run("max iterations caps min iterations", func(t *testing.T) {
		cfg, err := config.Defaults()
		require.NoError(t, err)
		cfg.Run.MinIterations = 10
		applyOverrides(cfg, 42, 3, "out")
		assert.Equal(t, uint64(42), cfg.Run.RandomSeed)
		assert.Equal(t, 3, cfg.Run.MaxIterations)
		assert.Equal(t, 3, cfg.Run.MinIterations)
		assert.Equal(t, "out", cfg.Telemetry.OutputDir)
		assert.NoError(t, cfg.Validate())
	})
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 2, exitCode(fmt.Errorf("wrapped: %w", relax.ErrConfiguration)))
	assert.Equal(t, 3, exitCode(relax.ErrSamplingFailure))
	assert.Equal(t, 130, exitCode(context.Canceled))
	assert.Equal(t, 1, exitCode(fmt.Errorf("boom")))
}
