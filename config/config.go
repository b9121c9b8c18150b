// Package config provides configuration loading and validation for the generator.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is returned (wrapped) for every configuration problem detected
// before iterating starts.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all generator configuration parameters.
type Config struct {
	Generator GeneratorConfig `yaml:"generator"`
	Model     ModelConfig     `yaml:"model"`
	Run       RunParams       `yaml:"run"`
	Solver    SolverConfig    `yaml:"solver"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// GeneratorConfig describes the particle set and the box it lives in.
type GeneratorConfig struct {
	NumberOfParticles int       `yaml:"number_of_particles"` // Per dimension; total is this^ndim
	NDim              int       `yaml:"ndim"`
	BoxSize           []float64 `yaml:"box_size"` // One entry per active dimension
	Periodic          bool      `yaml:"periodic"`
	Kernel            string    `yaml:"kernel"`
	Eta               float64   `yaml:"eta"` // Resolution eta; h = eta * (m/rho)^(1/ndim)

	Sampling                 string  `yaml:"sampling"`                   // rejection | uniform | displaced
	DisplacedMaxDisplacement float64 `yaml:"displaced_max_displacement"` // In lattice spacings

	MassIntegration           string  `yaml:"mass_integration"`            // midpoint | legendre
	MassIntegrationResolution int     `yaml:"mass_integration_resolution"` // 0 = per-ndim default
	MassTolerance             float64 `yaml:"mass_tolerance"`              // Relative, for explicit particle masses

	RejectionBatchSize  int `yaml:"rejection_batch_size"`
	RejectionMaxBatches int `yaml:"rejection_max_batches"`

	Workers int `yaml:"workers"` // 0 = GOMAXPROCS
}

// ModelConfig selects a built-in model density by name.
type ModelConfig struct {
	Name   string             `yaml:"name"`
	Params map[string]float64 `yaml:"params"`
}

// RunParams controls the relaxation loop. It is copied by value into the
// generator at setup time.
type RunParams struct {
	MaxIterations                 int      `yaml:"max_iterations"`
	MinIterations                 int      `yaml:"min_iterations"`
	ConvergenceThreshold          float64  `yaml:"convergence_threshold"`                 // Displacement / mid
	UnconvergedParticleTolerance  float64  `yaml:"unconverged_particle_number_tolerance"` // Fraction of particles
	DisplacementThreshold         float64  `yaml:"displacement_threshold"`                // Hard cap, displacement / mid
	DeltaInit                     *float64 `yaml:"delta_init"`                            // nil = auto
	DeltaRNormReductionFactor     float64  `yaml:"delta_r_norm_reduction_factor"`
	MinDeltaRNorm                 float64  `yaml:"min_delta_r_norm"`
	RedistributionFrequency       int      `yaml:"particle_redistribution_frequency"`
	RedistributionNumberFraction  float64  `yaml:"particle_redistribution_number_fraction"`
	RedistributionNumberReduction float64  `yaml:"particle_redistribution_number_reduction_factor"`
	NoParticleRedistributionAfter int      `yaml:"no_particle_redistribution_after"`
	StateDumpFrequency            int      `yaml:"state_dump_frequency"`
	StateDumpBasename             string   `yaml:"state_dump_basename"`
	RandomSeed                    uint64   `yaml:"random_seed"`
}

// SolverConfig bounds the per-particle smoothing length root find.
type SolverConfig struct {
	MaxIterations   int     `yaml:"max_iterations"`
	Tolerance       float64 `yaml:"tolerance"`
	MaxSearchGrowth int     `yaml:"max_search_growth"`
}

// TelemetryConfig holds output parameters.
type TelemetryConfig struct {
	OutputDir  string `yaml:"output_dir"`
	LogEvery   int    `yaml:"log_every"`   // Iterations between slog stats lines
	PerfWindow int    `yaml:"perf_window"` // Iterations per perf.csv row
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	Box         [3]float64 // Active dims from box_size, inactive dims 1
	NumParticle int        // number_of_particles^ndim
}

// Load loads configuration from a YAML (or INI) file, merging with embedded
// defaults. If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg, err := Defaults()
	if err != nil {
		return nil, err
	}

	if path != "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".ini", ".gcfg":
			if err := readINIInto(cfg, path); err != nil {
				return nil, err
			}
		default:
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
			// Only overwrites fields present in file
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults returns the embedded default configuration with derived values.
func Defaults() (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	cfg.computeDerived()
	return cfg, nil
}

// DefaultsYAML returns the embedded default configuration file.
func DefaultsYAML() []byte {
	return append([]byte(nil), defaultsYAML...)
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.Box = [3]float64{1, 1, 1}
	for d := 0; d < c.Generator.NDim && d < 3 && d < len(c.Generator.BoxSize); d++ {
		c.Derived.Box[d] = c.Generator.BoxSize[d]
	}
	n := 1
	for d := 0; d < c.Generator.NDim && d < 3; d++ {
		n *= c.Generator.NumberOfParticles
	}
	c.Derived.NumParticle = n
}

// Validate checks the configuration and refreshes derived values. All
// failures wrap ErrInvalid.
func (c *Config) Validate() error {
	g := &c.Generator
	if g.NDim < 1 || g.NDim > 3 {
		return invalid("generator.ndim must be 1, 2 or 3, got %d", g.NDim)
	}
	if g.NumberOfParticles < 1 {
		return invalid("generator.number_of_particles must be positive, got %d", g.NumberOfParticles)
	}
	if len(g.BoxSize) != g.NDim {
		return invalid("generator.box_size needs %d entries, got %d", g.NDim, len(g.BoxSize))
	}
	for d, l := range g.BoxSize {
		if !(l > 0) || math.IsInf(l, 0) {
			return invalid("generator.box_size[%d] must be positive and finite, got %g", d, l)
		}
	}
	if !(g.Eta > 0) {
		return invalid("generator.eta must be positive, got %g", g.Eta)
	}
	switch g.Sampling {
	case "rejection", "uniform", "displaced":
	default:
		return invalid("generator.sampling %q unknown", g.Sampling)
	}
	if g.DisplacedMaxDisplacement < 0 || g.DisplacedMaxDisplacement > 0.5 {
		return invalid("generator.displaced_max_displacement must be in [0, 0.5], got %g", g.DisplacedMaxDisplacement)
	}
	switch g.MassIntegration {
	case "midpoint", "legendre":
	default:
		return invalid("generator.mass_integration %q unknown", g.MassIntegration)
	}
	if g.MassIntegrationResolution < 0 {
		return invalid("generator.mass_integration_resolution must be >= 0")
	}
	if !(g.MassTolerance > 0) {
		return invalid("generator.mass_tolerance must be positive")
	}
	if g.RejectionBatchSize < 1 || g.RejectionMaxBatches < 1 {
		return invalid("generator.rejection_batch_size and rejection_max_batches must be positive")
	}
	if g.Workers < 0 {
		return invalid("generator.workers must be >= 0")
	}
	if c.Model.Name == "" {
		return invalid("model.name is empty")
	}
	if err := c.Run.Validate(); err != nil {
		return err
	}
	s := c.Solver
	if s.MaxIterations < 1 || !(s.Tolerance > 0) || s.MaxSearchGrowth < 0 {
		return invalid("solver: max_iterations >= 1, tolerance > 0 and max_search_growth >= 0 required")
	}
	if c.Telemetry.LogEvery < 0 || c.Telemetry.PerfWindow < 0 {
		return invalid("telemetry intervals must be >= 0")
	}
	c.computeDerived()
	return nil
}

// Validate checks the run parameters on their own, for callers that swap
// them between runs.
func (p RunParams) Validate() error {
	switch {
	case p.MaxIterations < 0:
		return invalid("run.max_iterations must be >= 0")
	case p.MinIterations < 0:
		return invalid("run.min_iterations must be >= 0")
	case p.MinIterations > p.MaxIterations:
		return invalid("run.min_iterations (%d) exceeds max_iterations (%d)", p.MinIterations, p.MaxIterations)
	case !(p.ConvergenceThreshold > 0):
		return invalid("run.convergence_threshold must be positive")
	case p.UnconvergedParticleTolerance < 0 || p.UnconvergedParticleTolerance > 1:
		return invalid("run.unconverged_particle_number_tolerance must be in [0, 1]")
	case !(p.DisplacementThreshold > 0):
		return invalid("run.displacement_threshold must be positive")
	case p.DeltaInit != nil && !(*p.DeltaInit > 0):
		return invalid("run.delta_init must be positive or null")
	case !(p.DeltaRNormReductionFactor > 0) || p.DeltaRNormReductionFactor > 1:
		return invalid("run.delta_r_norm_reduction_factor must be in (0, 1]")
	case p.MinDeltaRNorm < 0:
		return invalid("run.min_delta_r_norm must be >= 0")
	case p.RedistributionFrequency < 0:
		return invalid("run.particle_redistribution_frequency must be >= 0")
	case p.RedistributionNumberFraction < 0 || p.RedistributionNumberFraction > 1:
		return invalid("run.particle_redistribution_number_fraction must be in [0, 1]")
	case !(p.RedistributionNumberReduction > 0) || p.RedistributionNumberReduction > 1:
		return invalid("run.particle_redistribution_number_reduction_factor must be in (0, 1]")
	case p.NoParticleRedistributionAfter < 0:
		return invalid("run.no_particle_redistribution_after must be >= 0")
	case p.StateDumpFrequency < 0:
		return invalid("run.state_dump_frequency must be >= 0")
	case p.StateDumpFrequency > 0 && p.StateDumpBasename == "":
		return invalid("run.state_dump_basename is empty")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
