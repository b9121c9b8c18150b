package main

import (
	"math"

	"github.com/pthm-cable/icgen/config"
)

// ParamSpec defines a single tunable run parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value

	get func(*config.RunParams) float64
	set func(*config.RunParams, float64)
}

// ParamVector holds the set of all tunable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of tunable parameters: the
// displacement normalization schedule and the redistribution schedule.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			{
				Name: "delta_reduction", Path: "run.delta_r_norm_reduction_factor",
				Min: 0.9, Max: 1.0, Default: 0.99,
				get: func(p *config.RunParams) float64 { return p.DeltaRNormReductionFactor },
				set: func(p *config.RunParams, v float64) { p.DeltaRNormReductionFactor = v },
			},
			{
				Name: "log10_min_delta", Path: "run.min_delta_r_norm",
				Min: -8, Max: -3, Default: -6,
				get: func(p *config.RunParams) float64 { return math.Log10(math.Max(p.MinDeltaRNorm, 1e-8)) },
				set: func(p *config.RunParams, v float64) { p.MinDeltaRNorm = math.Pow(10, v) },
			},
			{
				Name: "redist_frequency", Path: "run.particle_redistribution_frequency",
				Min: 0, Max: 100, Default: 40,
				get: func(p *config.RunParams) float64 { return float64(p.RedistributionFrequency) },
				set: func(p *config.RunParams, v float64) { p.RedistributionFrequency = int(math.Round(v)) },
			},
			{
				Name: "redist_fraction", Path: "run.particle_redistribution_number_fraction",
				Min: 0, Max: 0.1, Default: 0.01,
				get: func(p *config.RunParams) float64 { return p.RedistributionNumberFraction },
				set: func(p *config.RunParams, v float64) { p.RedistributionNumberFraction = v },
			},
			{
				Name: "redist_reduction", Path: "run.particle_redistribution_number_reduction_factor",
				Min: 0.5, Max: 1.0, Default: 1.0,
				get: func(p *config.RunParams) float64 { return p.RedistributionNumberReduction },
				set: func(p *config.RunParams, v float64) { p.RedistributionNumberReduction = v },
			},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = math.Min(math.Max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// ApplyToConfig writes clamped parameter values into the run parameters.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	clamped := pv.Clamp(values)
	for i, spec := range pv.Specs {
		spec.set(&cfg.Run, clamped[i])
	}
}

// ExtractFromConfig extracts current parameter values from a Config struct.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.get(&cfg.Run)
	}
	return v
}
