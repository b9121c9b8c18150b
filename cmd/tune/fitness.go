package main

import (
	"context"
	"math"
	"sync"

	"github.com/pthm-cable/icgen/config"
	"github.com/pthm-cable/icgen/model"
	"github.com/pthm-cable/icgen/relax"
	"github.com/pthm-cable/icgen/telemetry"
)

// Penalties added to the iteration count of a run.
const (
	unconvergedPenalty = 1.0   // Times max_iterations, for runs that hit the limit
	densityErrorWeight = 100.0 // Times max_iterations per unit mean |rho/rho_model - 1|
)

// FitnessEvaluator runs the generator and computes fitness.
type FitnessEvaluator struct {
	params     *ParamVector
	seeds      []uint64
	baseConfig *config.Config
	rho        model.Func

	mu          sync.Mutex
	bestFitness float64
	bestRuns    []runResult
	lastError   float64 // Mean density error of the most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, seeds []uint64, baseCfg *config.Config, rho model.Func) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:      params,
		seeds:       seeds,
		baseConfig:  baseCfg,
		rho:         rho,
		bestFitness: math.Inf(1),
	}
}

// runResult holds the outcome of a single run.
type runResult struct {
	Seed         uint64  `csv:"seed"`
	Iterations   int     `csv:"iterations"`
	Converged    bool    `csv:"converged"`
	DensityError float64 `csv:"density_error_mean"`
	Fitness      float64 `csv:"fitness"`
	Err          string  `csv:"error"`
}

// BestRuns returns the per-seed results of the best evaluation.
func (fe *FitnessEvaluator) BestRuns() []runResult {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.bestRuns
}

// LastError returns the mean density error from the most recent evaluation.
func (fe *FitnessEvaluator) LastError() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastError
}

// Evaluate computes fitness for a parameter vector (lower = better).
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	cfg := fe.copyConfig()
	fe.params.ApplyToConfig(cfg, x)

	// Run all seeds in parallel
	results := make([]runResult, len(fe.seeds))
	var wg sync.WaitGroup
	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s uint64) {
			defer wg.Done()
			results[idx] = fe.runGenerator(cfg, s)
		}(i, seed)
	}
	wg.Wait()

	var totalFitness, totalError float64
	for _, r := range results {
		totalFitness += r.Fitness
		totalError += r.DensityError
	}
	n := float64(len(fe.seeds))
	avgFitness := totalFitness / n

	fe.mu.Lock()
	if avgFitness < fe.bestFitness {
		fe.bestFitness = avgFitness
		fe.bestRuns = results
	}
	fe.lastError = totalError / n
	fe.mu.Unlock()

	return avgFitness
}

// runGenerator relaxes one particle set with its own copy of cfg.
func (fe *FitnessEvaluator) runGenerator(base *config.Config, seed uint64) runResult {
	cfg := *base
	cfg.Run.RandomSeed = seed
	cfg.Run.StateDumpFrequency = 0
	maxIter := float64(max(cfg.Run.MaxIterations, 1))
	result := runResult{Seed: seed, Fitness: (1 + unconvergedPenalty + densityErrorWeight) * maxIter}

	var last telemetry.IterationStats
	g, err := relax.New(fe.rho, &cfg, relax.Options{
		OnIteration: func(s telemetry.IterationStats) { last = s },
	})
	if err != nil {
		result.Err = err.Error()
		return result
	}
	defer g.Close()
	if err := g.InitialSetup(); err != nil {
		result.Err = err.Error()
		return result
	}
	res, err := g.Run(context.Background())
	if err != nil {
		result.Err = err.Error()
		return result
	}

	result.Iterations = res.Iterations
	result.Converged = res.Converged
	result.DensityError = last.DensityErrorMean
	result.Fitness = computeFitness(result, maxIter)
	return result
}

// computeFitness: iterations used, plus a penalty for hitting the limit,
// plus the weighted mean density error.
func computeFitness(r runResult, maxIter float64) float64 {
	f := float64(r.Iterations) + densityErrorWeight*maxIter*r.DensityError
	if !r.Converged {
		f += unconvergedPenalty * maxIter
	}
	return f
}

// copyConfig returns a copy of the base config with its own slices.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	cfg := *fe.baseConfig
	cfg.Generator.BoxSize = append([]float64(nil), fe.baseConfig.Generator.BoxSize...)
	if d := fe.baseConfig.Run.DeltaInit; d != nil {
		v := *d
		cfg.Run.DeltaInit = &v
	}
	return &cfg
}
