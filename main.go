package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/pthm-cable/icgen/config"
	"github.com/pthm-cable/icgen/relax"
	"github.com/pthm-cable/icgen/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml or .ini (empty = use defaults)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, checkpoints and particles (overrides config)")
	seed := flag.Int64("seed", -1, "RNG seed (-1 = use config)")
	maxIterations := flag.Int("max-iterations", -1, "Stop after N iterations (-1 = use config)")
	resume := flag.String("resume", "", "Checkpoint file to continue from")
	logStats := flag.Bool("log-stats", false, "Output iteration stats via slog")
	exampleConfig := flag.Bool("example-config", false, "Print the default configuration and exit")

	flag.Parse()

	if *exampleConfig {
		os.Stdout.Write(config.DefaultsYAML())
		return
	}

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	applyOverrides(cfg, *seed, *maxIterations, *outputDir)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, *resume, *logStats); err != nil {
		slog.Error("generation failed", "error", err)
		os.Exit(exitCode(err))
	}
}

// applyOverrides folds command-line values into cfg. Negative seed or
// maxIterations and an empty outputDir keep the configured values.
func applyOverrides(cfg *config.Config, seed int64, maxIterations int, outputDir string) {
	if seed >= 0 {
		cfg.Run.RandomSeed = uint64(seed)
	}
	if maxIterations >= 0 {
		cfg.Run.MaxIterations = maxIterations
		cfg.Run.MinIterations = min(cfg.Run.MinIterations, maxIterations)
	}
	if outputDir != "" {
		cfg.Telemetry.OutputDir = outputDir
	}
}

func run(cfg *config.Config, resumePath string, logStats bool) error {
	out, err := telemetry.NewOutputManager(cfg.Telemetry.OutputDir)
	if err != nil {
		return err
	}
	defer out.Close()
	if err := out.WriteConfig(cfg); err != nil {
		return err
	}

	opts := relax.Options{
		LogStats:      logStats,
		Perf:          telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		Output:        out,
		CheckpointDir: cfg.Telemetry.OutputDir,
	}

	var g *relax.Generator
	if resumePath != "" {
		ck, err := telemetry.LoadCheckpoint(resumePath)
		if err != nil {
			return err
		}
		rho, err := relax.ModelFromConfig(cfg)
		if err != nil {
			return err
		}
		if g, err = relax.Resume(rho, cfg, ck, opts); err != nil {
			return err
		}
		slog.Info("resuming", "checkpoint", resumePath, "iteration", g.Iteration())
	} else {
		if g, err = relax.FromConfig(cfg, opts); err != nil {
			return err
		}
		if err := g.InitialSetup(); err != nil {
			g.Close()
			return err
		}
	}

	slog.Info("starting relaxation",
		"seed", cfg.Run.RandomSeed,
		"ndim", cfg.Generator.NDim,
		"particles", cfg.Derived.NumParticle,
		"model", cfg.Model.Name,
		"max_iterations", cfg.Run.MaxIterations,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, runErr := g.Run(ctx)
	closeErr := g.Close()
	if res != nil {
		if err := out.WriteParticles(res.Records()); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}
	if closeErr != nil {
		return closeErr
	}

	slog.Info("done",
		"termination", string(res.Termination),
		"iterations", res.Iterations,
		"total_mass", res.TotalMass,
		"checkpoints", len(g.CheckpointPaths()),
		"output_dir", out.Dir(),
	)
	return nil
}

// exitCode separates configuration problems from sampling failures and
// interrupted runs.
func exitCode(err error) int {
	switch {
	case errors.Is(err, relax.ErrConfiguration):
		return 2
	case errors.Is(err, relax.ErrSamplingFailure):
		return 3
	case errors.Is(err, context.Canceled):
		return 130
	}
	return 1
}
