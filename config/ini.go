package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/gcfg.v1"
)

// ExampleINIFile documents the INI flavour of the configuration. Keys mirror
// the YAML ones with dashes instead of underscores; box-size and param are
// multi-valued.
const ExampleINIFile = `[generator]
number-of-particles = 64
ndim = 2
box-size = 1.0
box-size = 1.0
periodic = true
kernel = wendland_c2
sampling = rejection

[model]
name = gaussian
# param = <name> <value>
param = sigma 0.1
param = amplitude 10

[run]
max-iterations = 500
# delta-init = auto
random-seed = 42
`

type iniFile struct {
	Generator struct {
		NumberOfParticles         int       `gcfg:"number-of-particles"`
		NDim                      int       `gcfg:"ndim"`
		BoxSize                   []float64 `gcfg:"box-size"`
		Periodic                  bool      `gcfg:"periodic"`
		Kernel                    string    `gcfg:"kernel"`
		Eta                       float64   `gcfg:"eta"`
		Sampling                  string    `gcfg:"sampling"`
		DisplacedMaxDisplacement  float64   `gcfg:"displaced-max-displacement"`
		MassIntegration           string    `gcfg:"mass-integration"`
		MassIntegrationResolution int       `gcfg:"mass-integration-resolution"`
		MassTolerance             float64   `gcfg:"mass-tolerance"`
		RejectionBatchSize        int       `gcfg:"rejection-batch-size"`
		RejectionMaxBatches       int       `gcfg:"rejection-max-batches"`
		Workers                   int       `gcfg:"workers"`
	}
	Model struct {
		Name  string   `gcfg:"name"`
		Param []string `gcfg:"param"`
	}
	Run struct {
		MaxIterations                 int     `gcfg:"max-iterations"`
		MinIterations                 int     `gcfg:"min-iterations"`
		ConvergenceThreshold          float64 `gcfg:"convergence-threshold"`
		UnconvergedParticleTolerance  float64 `gcfg:"unconverged-particle-number-tolerance"`
		DisplacementThreshold         float64 `gcfg:"displacement-threshold"`
		DeltaInit                     string  `gcfg:"delta-init"`
		DeltaRNormReductionFactor     float64 `gcfg:"delta-r-norm-reduction-factor"`
		MinDeltaRNorm                 float64 `gcfg:"min-delta-r-norm"`
		RedistributionFrequency       int     `gcfg:"particle-redistribution-frequency"`
		RedistributionNumberFraction  float64 `gcfg:"particle-redistribution-number-fraction"`
		RedistributionNumberReduction float64 `gcfg:"particle-redistribution-number-reduction-factor"`
		NoParticleRedistributionAfter int     `gcfg:"no-particle-redistribution-after"`
		StateDumpFrequency            int     `gcfg:"state-dump-frequency"`
		StateDumpBasename             string  `gcfg:"state-dump-basename"`
		RandomSeed                    uint64  `gcfg:"random-seed"`
	}
	Solver struct {
		MaxIterations   int     `gcfg:"max-iterations"`
		Tolerance       float64 `gcfg:"tolerance"`
		MaxSearchGrowth int     `gcfg:"max-search-growth"`
	}
	Telemetry struct {
		OutputDir  string `gcfg:"output-dir"`
		LogEvery   int    `gcfg:"log-every"`
		PerfWindow int    `gcfg:"perf-window"`
	}
}

// readINIInto overlays an INI file onto cfg. Scalars absent from the file
// keep their current value.
func readINIInto(cfg *Config, path string) error {
	f := &iniFile{}
	f.fill(cfg)
	if err := gcfg.ReadFileInto(f, path); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return f.apply(cfg)
}

func (f *iniFile) fill(c *Config) {
	g := &f.Generator
	g.NumberOfParticles = c.Generator.NumberOfParticles
	g.NDim = c.Generator.NDim
	g.Periodic = c.Generator.Periodic
	g.Kernel = c.Generator.Kernel
	g.Eta = c.Generator.Eta
	g.Sampling = c.Generator.Sampling
	g.DisplacedMaxDisplacement = c.Generator.DisplacedMaxDisplacement
	g.MassIntegration = c.Generator.MassIntegration
	g.MassIntegrationResolution = c.Generator.MassIntegrationResolution
	g.MassTolerance = c.Generator.MassTolerance
	g.RejectionBatchSize = c.Generator.RejectionBatchSize
	g.RejectionMaxBatches = c.Generator.RejectionMaxBatches
	g.Workers = c.Generator.Workers

	f.Model.Name = c.Model.Name

	r := &f.Run
	r.MaxIterations = c.Run.MaxIterations
	r.MinIterations = c.Run.MinIterations
	r.ConvergenceThreshold = c.Run.ConvergenceThreshold
	r.UnconvergedParticleTolerance = c.Run.UnconvergedParticleTolerance
	r.DisplacementThreshold = c.Run.DisplacementThreshold
	if c.Run.DeltaInit != nil {
		r.DeltaInit = strconv.FormatFloat(*c.Run.DeltaInit, 'g', -1, 64)
	}
	r.DeltaRNormReductionFactor = c.Run.DeltaRNormReductionFactor
	r.MinDeltaRNorm = c.Run.MinDeltaRNorm
	r.RedistributionFrequency = c.Run.RedistributionFrequency
	r.RedistributionNumberFraction = c.Run.RedistributionNumberFraction
	r.RedistributionNumberReduction = c.Run.RedistributionNumberReduction
	r.NoParticleRedistributionAfter = c.Run.NoParticleRedistributionAfter
	r.StateDumpFrequency = c.Run.StateDumpFrequency
	r.StateDumpBasename = c.Run.StateDumpBasename
	r.RandomSeed = c.Run.RandomSeed

	f.Solver.MaxIterations = c.Solver.MaxIterations
	f.Solver.Tolerance = c.Solver.Tolerance
	f.Solver.MaxSearchGrowth = c.Solver.MaxSearchGrowth

	f.Telemetry.OutputDir = c.Telemetry.OutputDir
	f.Telemetry.LogEvery = c.Telemetry.LogEvery
	f.Telemetry.PerfWindow = c.Telemetry.PerfWindow
}

func (f *iniFile) apply(c *Config) error {
	g := f.Generator
	c.Generator.NumberOfParticles = g.NumberOfParticles
	c.Generator.NDim = g.NDim
	if len(g.BoxSize) > 0 {
		c.Generator.BoxSize = g.BoxSize
	}
	c.Generator.Periodic = g.Periodic
	c.Generator.Kernel = g.Kernel
	c.Generator.Eta = g.Eta
	c.Generator.Sampling = g.Sampling
	c.Generator.DisplacedMaxDisplacement = g.DisplacedMaxDisplacement
	c.Generator.MassIntegration = g.MassIntegration
	c.Generator.MassIntegrationResolution = g.MassIntegrationResolution
	c.Generator.MassTolerance = g.MassTolerance
	c.Generator.RejectionBatchSize = g.RejectionBatchSize
	c.Generator.RejectionMaxBatches = g.RejectionMaxBatches
	c.Generator.Workers = g.Workers

	if f.Model.Name != c.Model.Name {
		c.Model.Params = nil
	}
	c.Model.Name = f.Model.Name
	for _, p := range f.Model.Param {
		fields := strings.Fields(p)
		if len(fields) != 2 {
			return invalid("model param %q: want \"<name> <value>\"", p)
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return invalid("model param %q: %v", p, err)
		}
		if c.Model.Params == nil {
			c.Model.Params = make(map[string]float64)
		}
		c.Model.Params[fields[0]] = v
	}

	r := f.Run
	c.Run.MaxIterations = r.MaxIterations
	c.Run.MinIterations = r.MinIterations
	c.Run.ConvergenceThreshold = r.ConvergenceThreshold
	c.Run.UnconvergedParticleTolerance = r.UnconvergedParticleTolerance
	c.Run.DisplacementThreshold = r.DisplacementThreshold
	switch strings.ToLower(strings.TrimSpace(r.DeltaInit)) {
	case "", "auto", "null":
		c.Run.DeltaInit = nil
	default:
		v, err := strconv.ParseFloat(r.DeltaInit, 64)
		if err != nil {
			return invalid("run.delta-init %q: %v", r.DeltaInit, err)
		}
		c.Run.DeltaInit = &v
	}
	c.Run.DeltaRNormReductionFactor = r.DeltaRNormReductionFactor
	c.Run.MinDeltaRNorm = r.MinDeltaRNorm
	c.Run.RedistributionFrequency = r.RedistributionFrequency
	c.Run.RedistributionNumberFraction = r.RedistributionNumberFraction
	c.Run.RedistributionNumberReduction = r.RedistributionNumberReduction
	c.Run.NoParticleRedistributionAfter = r.NoParticleRedistributionAfter
	c.Run.StateDumpFrequency = r.StateDumpFrequency
	c.Run.StateDumpBasename = r.StateDumpBasename
	c.Run.RandomSeed = r.RandomSeed

	c.Solver.MaxIterations = f.Solver.MaxIterations
	c.Solver.Tolerance = f.Solver.Tolerance
	c.Solver.MaxSearchGrowth = f.Solver.MaxSearchGrowth

	c.Telemetry.OutputDir = f.Telemetry.OutputDir
	c.Telemetry.LogEvery = f.Telemetry.LogEvery
	c.Telemetry.PerfWindow = f.Telemetry.PerfWindow
	return nil
}
