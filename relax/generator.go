// Package relax iteratively moves equal-mass particles until their SPH
// density estimate follows a model density.
//
// A Generator is driven through InitialSetup, then Step or Run. Each
// iteration is a full barrier: densities and displacements are computed
// from one position snapshot before any particle moves.
package relax

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/icgen/config"
	"github.com/pthm-cable/icgen/density"
	"github.com/pthm-cable/icgen/kernel"
	"github.com/pthm-cable/icgen/model"
	"github.com/pthm-cable/icgen/spatial"
	"github.com/pthm-cable/icgen/telemetry"
)

// pcgStream is the fixed PCG increment; the seed comes from the run
// parameters.
const pcgStream = 0x9e3779b97f4a7c15

// Particles are caller-provided initial conditions that replace sampling.
type Particles struct {
	Coordinates []r3.Vec
	Masses      []float64
}

// Options holds the optional collaborators of a Generator.
type Options struct {
	Particles     *Particles               // nil = sample from the model
	LogStats      bool                     // Log iteration and perf stats via slog
	Perf          *telemetry.PerfCollector // nil = no phase timing
	Output        *telemetry.OutputManager // nil = no CSV output
	CheckpointDir string                   // "" = no checkpoints
	OnIteration   func(telemetry.IterationStats)
}

type particleFlag uint8

const (
	flagDegenerate particleFlag = 1 << iota
	flagUnconverged
)

// Generator owns the particle set and the iteration state of one run.
// It is not safe for concurrent use.
type Generator struct {
	cfg           config.Config
	params        config.RunParams // Captured by InitialSetup
	paramsChanged bool
	opts          Options

	rho       model.Func
	dom       spatial.Domain
	kern      kernel.Kernel
	solver    *density.Solver
	grid      *spatial.Grid
	parallel  *parallelState
	n         int
	mid       float64 // Mean interparticle distance
	midPow    float64 // mid^ndim
	maxRadius float64

	pcg *rand.PCG
	rng *rand.Rand

	mass      float64
	totalMass float64

	// Per-particle state. x and xNext are swapped after every displacement.
	x, xNext   []r3.Vec
	h          []float64
	dens       []float64
	modelDens  []float64
	hModel     []float64
	hModelMax  float64
	force      []r3.Vec
	forceScale []float64
	disp       []float64 // |dr| / mid of the last iteration
	flags      []particleFlag
	moverW     []float64
	targetW    []float64

	state      State
	iteration  int
	delta      float64 // Displacement normalization in units of mid^ndim
	deltaSet   bool
	redistFrac float64
	converged  bool

	warnings        []Warning
	droppedWarnings int

	ckpt      *telemetry.CheckpointWriter
	ckptBase  string
	ckptPaths []string // From writers already closed
}

// New validates cfg and prepares a generator for rho. No particles exist
// until InitialSetup.
func New(rho model.Func, cfg *config.Config, opts Options) (*Generator, error) {
	if rho == nil || cfg == nil {
		return nil, fmt.Errorf("%w: model density and configuration are required", ErrConfiguration)
	}
	c := *cfg
	if err := c.Validate(); err != nil {
		return nil, err
	}

	dom, err := spatial.NewDomain(c.Generator.BoxSize, c.Generator.Periodic)
	if err != nil {
		return nil, configErr(err)
	}
	kind, err := kernel.Parse(c.Generator.Kernel)
	if err != nil {
		return nil, configErr(err)
	}
	k, err := kernel.New(kind, c.Generator.NDim)
	if err != nil {
		return nil, configErr(err)
	}
	solver, err := density.NewSolver(k, c.Generator.Eta,
		c.Solver.MaxIterations, c.Solver.Tolerance, c.Solver.MaxSearchGrowth, dom.MaxSearchRadius())
	if err != nil {
		return nil, configErr(err)
	}

	n := c.Derived.NumParticle
	mid := dom.MeanInterparticleDistance(n)
	return &Generator{
		cfg:       c,
		params:    c.Run,
		opts:      opts,
		rho:       rho,
		dom:       dom,
		kern:      k,
		solver:    solver,
		grid:      spatial.NewGrid(dom),
		parallel:  newParallelState(c.Generator.Workers),
		n:         n,
		mid:       mid,
		midPow:    math.Pow(mid, float64(dom.NDim)),
		maxRadius: dom.MaxSearchRadius(),
	}, nil
}

// SetRunParams stages new run parameters. They take effect at the next
// InitialSetup, which must be called before stepping again.
func (g *Generator) SetRunParams(p config.RunParams) error {
	if err := p.Validate(); err != nil {
		return err
	}
	g.cfg.Run = p
	g.paramsChanged = true
	return nil
}

// InitialSetup samples (or validates) the particles, assigns masses and
// computes initial smoothing lengths and densities. Calling it again is a
// no-op unless SetRunParams staged new parameters, in which case a fresh
// run is set up. On error no particle set is kept.
func (g *Generator) InitialSetup() error {
	if g.state != Uninitialized && !g.paramsChanged {
		return nil
	}
	if err := g.setup(g.cfg.Run); err != nil {
		g.discard()
		return err
	}
	g.paramsChanged = false
	g.state = SetupDone
	slog.Info("setup_done",
		"particles", g.n,
		"ndim", g.dom.NDim,
		"mass", g.mass,
		"total_mass", g.totalMass,
		"mean_interparticle_distance", g.mid,
		"sampling", g.samplingName(),
	)
	return nil
}

func (g *Generator) samplingName() string {
	if g.opts.Particles != nil {
		return "explicit"
	}
	return g.cfg.Generator.Sampling
}

func (g *Generator) setup(p config.RunParams) error {
	pcg := rand.NewPCG(p.RandomSeed, pcgStream)
	rng := rand.New(pcg)

	xs, err := g.initialCoordinates(rng)
	if err != nil {
		return err
	}
	total, err := g.integrateMass()
	if err != nil {
		return err
	}
	mass := total / float64(g.n)
	if ps := g.opts.Particles; ps != nil {
		if xs, err = g.explicitCoordinates(ps, total); err != nil {
			return err
		}
		mass = ps.Masses[0]
	}

	if err := g.openCheckpoints(p.StateDumpBasename); err != nil {
		return err
	}

	g.params = p
	g.pcg, g.rng = pcg, rng
	g.mass, g.totalMass = mass, total
	g.allocate()
	copy(g.x, xs)
	h0 := g.cfg.Generator.Eta * g.mid
	for i := range g.h {
		g.h[i] = h0
	}

	g.iteration = 0
	g.delta, g.deltaSet = 0, false
	if p.DeltaInit != nil {
		g.delta, g.deltaSet = *p.DeltaInit, true
	}
	g.redistFrac = p.RedistributionNumberFraction
	g.converged = false
	g.warnings, g.droppedWarnings = nil, 0

	if err := g.updateModel(); err != nil {
		return configErr(err)
	}
	g.rebuildGrid()
	g.forEachParticle(passDensity)
	g.collectWarnings()
	return nil
}

func (g *Generator) allocate() {
	n := g.n
	g.x = make([]r3.Vec, n)
	g.xNext = make([]r3.Vec, n)
	g.h = make([]float64, n)
	g.dens = make([]float64, n)
	g.modelDens = make([]float64, n)
	g.hModel = make([]float64, n)
	g.force = make([]r3.Vec, n)
	g.forceScale = make([]float64, n)
	g.disp = make([]float64, n)
	g.flags = make([]particleFlag, n)
	g.moverW = make([]float64, n)
	g.targetW = make([]float64, n)
}

// discard drops the particle set after a failed setup.
func (g *Generator) discard() {
	g.state = Uninitialized
	g.x, g.xNext = nil, nil
	g.h, g.dens, g.modelDens, g.hModel = nil, nil, nil, nil
	g.force, g.forceScale, g.disp, g.flags = nil, nil, nil, nil
	g.moverW, g.targetW = nil, nil
	g.iteration = 0
}

func (g *Generator) openCheckpoints(basename string) error {
	if g.opts.CheckpointDir == "" || (g.ckpt != nil && g.ckptBase == basename) {
		return nil
	}
	if err := g.closeCheckpoints(); err != nil {
		return fmt.Errorf("closing checkpoint writer: %w", err)
	}
	g.ckpt = telemetry.NewCheckpointWriter(g.opts.CheckpointDir, basename)
	g.ckptBase = basename
	return nil
}

// Step runs one iteration: neighbours, densities, displacement, optional
// redistribution and the convergence check.
func (g *Generator) Step() (telemetry.IterationStats, error) {
	switch {
	case g.state == Uninitialized:
		return telemetry.IterationStats{}, fmt.Errorf("%w: Step called before InitialSetup", ErrUsage)
	case g.paramsChanged:
		return telemetry.IterationStats{}, fmt.Errorf("%w: run parameters changed, call InitialSetup first", ErrUsage)
	case g.state.Terminated():
		return telemetry.IterationStats{}, fmt.Errorf("%w: run already terminated (%s)", ErrUsage, g.state)
	case g.iteration >= g.params.MaxIterations:
		g.state = MaxIterationsReached
		return telemetry.IterationStats{}, fmt.Errorf("%w: max_iterations (%d) already reached", ErrUsage, g.params.MaxIterations)
	}

	perf := g.opts.Perf
	perf.StartIteration()
	perf.StartPhase(telemetry.PhaseNeighbors)
	// A failed model evaluation leaves the iteration count and state untouched.
	if err := g.updateModel(); err != nil {
		return telemetry.IterationStats{}, err
	}
	g.state = Iterating
	g.iteration++
	g.rebuildGrid()

	perf.StartPhase(telemetry.PhaseDensity)
	g.forEachParticle(passDensity)
	degenerate, failures := g.collectWarnings()

	perf.StartPhase(telemetry.PhaseDisplacement)
	g.forEachParticle(passForce)
	g.displace()

	redistributed := 0
	if g.redistributionDue() {
		perf.StartPhase(telemetry.PhaseRedistribution)
		redistributed = g.redistribute()
	}

	perf.StartPhase(telemetry.PhaseConvergence)
	conv := assessConvergence(g.disp, g.flags, g.params)
	g.converged = conv.converged
	switch {
	case conv.converged && g.iteration >= g.params.MinIterations:
		g.state = Converged
	case g.iteration >= g.params.MaxIterations:
		g.state = MaxIterationsReached
	}
	stats := g.iterationStats(conv, redistributed, degenerate, failures)

	if g.checkpointDue() {
		perf.StartPhase(telemetry.PhaseCheckpoint)
		g.submitCheckpoint()
	}
	perf.EndIteration()

	g.report(stats)
	return stats, nil
}

// Run steps until the run converges or reaches max_iterations. ctx is
// checked between iterations only.
func (g *Generator) Run(ctx context.Context) (*Result, error) {
	switch {
	case g.state == Uninitialized:
		return nil, fmt.Errorf("%w: Run called before InitialSetup", ErrUsage)
	case g.paramsChanged:
		return nil, fmt.Errorf("%w: run parameters changed, call InitialSetup first", ErrUsage)
	}
	if !g.state.Terminated() && g.iteration >= g.params.MaxIterations {
		g.state = MaxIterationsReached
	}

	for !g.state.Terminated() {
		if err := ctx.Err(); err != nil {
			return g.Result(), err
		}
		if _, err := g.Step(); err != nil {
			return nil, err
		}
	}

	res := g.Result()
	slog.Info("relaxation_finished",
		"termination", string(res.Termination),
		"iterations", res.Iterations,
		"warnings", len(res.Warnings),
	)
	return res, nil
}

func (g *Generator) checkpointDue() bool {
	if g.ckpt == nil {
		return false
	}
	f := g.params.StateDumpFrequency
	return (f > 0 && g.iteration%f == 0) || g.state.Terminated()
}

func (g *Generator) submitCheckpoint() {
	ck, err := g.Checkpoint()
	if err != nil {
		slog.Error("failed to build checkpoint", "iteration", g.iteration, "error", err)
		return
	}
	g.ckpt.Submit(ck)
}

// report hands iteration stats to the configured sinks.
func (g *Generator) report(stats telemetry.IterationStats) {
	tcfg := g.cfg.Telemetry
	if err := g.opts.Output.WriteIteration(stats); err != nil {
		slog.Error("failed to write iteration stats", "error", err)
	}
	if g.opts.LogStats && tcfg.LogEvery > 0 && (g.iteration%tcfg.LogEvery == 0 || g.state.Terminated()) {
		stats.LogStats()
	}

	if g.opts.Perf != nil && tcfg.PerfWindow > 0 && g.iteration%tcfg.PerfWindow == 0 {
		perfStats := g.opts.Perf.Stats()
		if g.opts.LogStats {
			slog.Info("perf", "stats", perfStats)
		}
		if err := g.opts.Output.WritePerf(perfStats, g.iteration); err != nil {
			slog.Error("failed to write perf", "error", err)
		}
	}

	if g.opts.OnIteration != nil {
		g.opts.OnIteration(stats)
	}
}

// State returns the lifecycle stage.
func (g *Generator) State() State { return g.state }

// Iteration returns the number of completed iterations.
func (g *Generator) Iteration() int { return g.iteration }

// Params returns the run parameters in effect.
func (g *Generator) Params() config.RunParams { return g.params }

// Close stops the worker pool and waits for pending checkpoints.
func (g *Generator) Close() error {
	g.parallel.stopWorkers()
	return g.closeCheckpoints()
}

func (g *Generator) closeCheckpoints() error {
	err := g.ckpt.Close()
	g.ckptPaths = append(g.ckptPaths, g.ckpt.Paths()...)
	g.ckpt = nil
	return err
}

// CheckpointPaths returns the checkpoint files written so far. Files still
// queued are listed only after Close.
func (g *Generator) CheckpointPaths() []string {
	return append(slices.Clone(g.ckptPaths), g.ckpt.Paths()...)
}

// FromConfig builds the configured built-in model and a generator for it.
func FromConfig(cfg *config.Config, opts Options) (*Generator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil configuration", ErrConfiguration)
	}
	rho, err := ModelFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return New(rho, cfg, opts)
}

// ModelFromConfig builds the built-in model named in cfg.
func ModelFromConfig(cfg *config.Config) (model.Func, error) {
	dom, err := spatial.NewDomain(cfg.Generator.BoxSize, cfg.Generator.Periodic)
	if err != nil {
		return nil, configErr(err)
	}
	rho, err := model.New(cfg.Model.Name, cfg.Model.Params, dom)
	if err != nil {
		return nil, configErr(err)
	}
	return rho, nil
}
