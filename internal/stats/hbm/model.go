// Package hbm fits a hierarchical Bayesian Gaussian regression with a
// single random intercept level, by Gibbs sampling.
//
// The model is y = X*beta + a[plot] + e with a[p] ~ N(0, plotVar) and
// e ~ N(0, residVar). All full conditionals are conjugate (normal for
// beta and the plot effects, inverse-gamma for the variances), so each
// chain is a plain Gibbs sweep. Chains run concurrently with
// pre-drawn seeds, making the posterior reproducible for a fixed
// master seed.
package hbm

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	exprand "golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
)

// Covariate is one named design column.
type Covariate struct {
	Name   string
	Values []float64
}

// Model is the configured but unfitted state: response, covariate
// design and the random-level grouping.
type Model struct {
	Response   []float64
	Covariates []Covariate
	PlotIDs    []string

	// derived
	x        [][]float64 // row-major design incl. leading intercept
	plotIdx  []int
	levels   []string
	coefs    []string
}

// Options are the sampler settings.
type Options struct {
	Samples  int   // retained samples per chain
	Thin     int   // thinning interval; 0 means 1
	Chains   int   // independent chains; 0 means 4
	Parallel int   // concurrent chains; 0 means Chains
	Seed     int64 // master seed
	Logger   *slog.Logger
}

// ChainSamples holds the retained draws of one chain.
type ChainSamples struct {
	Beta        [][]float64 // samples x coefficients
	PlotEffects [][]float64 // samples x plot levels
	PlotVar     []float64
	ResidVar    []float64
}

// Posterior is the fitted object every downstream step consumes.
type Posterior struct {
	CoefNames  []string
	PlotLevels []string
	Chains     []ChainSamples

	model *Model
}

// Configure validates the inputs and builds the design. The returned
// model is the input to Fit.
func Configure(response []float64, covariates []Covariate, plotIDs []string) (*Model, error) {
	n := len(response)
	if n == 0 {
		return nil, fmt.Errorf("no observations")
	}
	if len(covariates) == 0 {
		return nil, fmt.Errorf("no covariates")
	}
	if len(plotIDs) != n {
		return nil, fmt.Errorf("plot key has %d values, want %d", len(plotIDs), n)
	}
	for _, c := range covariates {
		if len(c.Values) != n {
			return nil, fmt.Errorf("covariate %s has %d values, want %d", c.Name, len(c.Values), n)
		}
	}

	m := &Model{
		Response:   response,
		Covariates: covariates,
		PlotIDs:    plotIDs,
	}

	m.coefs = make([]string, 0, len(covariates)+1)
	m.coefs = append(m.coefs, "(Intercept)")
	for _, c := range covariates {
		m.coefs = append(m.coefs, c.Name)
	}

	m.x = make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, len(covariates)+1)
		row[0] = 1
		for j, c := range covariates {
			v := c.Values[i]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("covariate %s has a non-finite value at row %d", c.Name, i+1)
			}
			row[j+1] = v
		}
		m.x[i] = row
	}

	levelIdx := make(map[string]int)
	m.plotIdx = make([]int, n)
	for i, id := range plotIDs {
		if id == "" {
			return nil, fmt.Errorf("plot key missing at row %d", i+1)
		}
		k, ok := levelIdx[id]
		if !ok {
			k = len(m.levels)
			levelIdx[id] = k
			m.levels = append(m.levels, id)
		}
		m.plotIdx[i] = k
	}

	return m, nil
}

// CoefNames returns the coefficient labels, intercept first.
func (m *Model) CoefNames() []string {
	return append([]string(nil), m.coefs...)
}

// PlotLevels returns the distinct plot identifiers in first-seen order.
func (m *Model) PlotLevels() []string {
	return append([]string(nil), m.levels...)
}

// Fit runs the sampler. The transient (burn-in) is half the retained
// sample count and is discarded before recording begins.
func Fit(ctx context.Context, m *Model, opts Options) (*Posterior, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	samples := opts.Samples
	if samples <= 0 {
		return nil, fmt.Errorf("sample count must be positive")
	}
	thin := opts.Thin
	if thin <= 0 {
		thin = 1
	}
	nChains := opts.Chains
	if nChains <= 0 {
		nChains = 4
	}
	parallel := opts.Parallel
	if parallel <= 0 {
		parallel = nChains
	}
	transient := samples / 2

	logger.Debug("starting mcmc",
		"chains", nChains,
		"samples", samples,
		"thin", thin,
		"transient", transient,
		"plots", len(m.levels))

	master := exprand.New(exprand.NewSource(uint64(opts.Seed)))
	seeds := make([]uint64, nChains)
	for i := range seeds {
		seeds[i] = master.Uint64()
	}

	chains := make([]ChainSamples, nChains)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for c := 0; c < nChains; c++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			cs, err := runChain(m, samples, thin, transient, seeds[c])
			if err != nil {
				return fmt.Errorf("chain %d: %w", c+1, err)
			}
			chains[c] = cs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Debug("mcmc finished", "retained_total", nChains*samples)

	return &Posterior{
		CoefNames:  m.CoefNames(),
		PlotLevels: m.PlotLevels(),
		Chains:     chains,
		model:      m,
	}, nil
}
