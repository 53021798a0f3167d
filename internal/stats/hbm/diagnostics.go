package hbm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// CoefMeans returns the posterior mean of each coefficient across all
// chains.
func (post *Posterior) CoefMeans() []float64 {
	p := len(post.CoefNames)
	means := make([]float64, p)
	var total int
	for _, c := range post.Chains {
		for _, draw := range c.Beta {
			for j := 0; j < p; j++ {
				means[j] += draw[j]
			}
		}
		total += len(c.Beta)
	}
	for j := range means {
		means[j] /= float64(total)
	}
	return means
}

// VarianceMeans returns the posterior means of the plot-level and
// residual variances.
func (post *Posterior) VarianceMeans() (plotVar, residVar float64) {
	var total int
	for _, c := range post.Chains {
		for i := range c.PlotVar {
			plotVar += c.PlotVar[i]
			residVar += c.ResidVar[i]
		}
		total += len(c.PlotVar)
	}
	return plotVar / float64(total), residVar / float64(total)
}

// EffectiveSampleSizes estimates, per coefficient, the number of
// independent draws equivalent to the retained chains, using Geyer's
// initial monotone positive sequence on each chain and summing across
// chains.
func (post *Posterior) EffectiveSampleSizes() []float64 {
	p := len(post.CoefNames)
	ess := make([]float64, p)
	series := make([]float64, 0, 256)
	for j := 0; j < p; j++ {
		for _, c := range post.Chains {
			series = series[:0]
			for _, draw := range c.Beta {
				series = append(series, draw[j])
			}
			ess[j] += effectiveSize(series)
		}
	}
	return ess
}

// ESSSummary is the cross-coefficient summary printed with the fit
// diagnostics.
type ESSSummary struct {
	Min  float64
	Mean float64
	Max  float64
}

// SummarizeESS collapses per-coefficient effective sample sizes.
func SummarizeESS(ess []float64) ESSSummary {
	if len(ess) == 0 {
		return ESSSummary{}
	}
	s := ESSSummary{Min: ess[0], Max: ess[0]}
	var sum float64
	for _, v := range ess {
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
		sum += v
	}
	s.Mean = sum / float64(len(ess))
	return s
}

// effectiveSize implements the initial monotone positive sequence
// estimator for a single chain.
func effectiveSize(x []float64) float64 {
	n := len(x)
	if n < 4 {
		return float64(n)
	}

	mean := stat.Mean(x, nil)
	c := make([]float64, n)
	for i := range c {
		c[i] = x[i] - mean
	}

	gamma0 := autocov(c, 0)
	if gamma0 <= 0 {
		return float64(n)
	}

	// Sum paired autocovariances while the pair sums stay positive
	// and monotone non-increasing.
	var acSum float64
	prev := math.Inf(1)
	for m := 0; ; m++ {
		lag1, lag2 := 2*m+1, 2*m+2
		if lag2 >= n {
			break
		}
		pair := autocov(c, lag1) + autocov(c, lag2)
		if pair <= 0 {
			break
		}
		if pair > prev {
			pair = prev
		}
		acSum += pair
		prev = pair
	}

	ess := float64(n) * gamma0 / (gamma0 + 2*acSum)
	if ess > float64(n) {
		ess = float64(n)
	}
	return ess
}

func autocov(centered []float64, lag int) float64 {
	n := len(centered)
	var sum float64
	for i := 0; i+lag < n; i++ {
		sum += centered[i] * centered[i+lag]
	}
	return sum / float64(n)
}

// Predictions returns the posterior-mean predicted response for every
// observation: X*meanBeta plus the mean plot effect.
func (post *Posterior) Predictions() []float64 {
	means := post.CoefMeans()
	p := len(means)

	effectMeans := make([]float64, len(post.PlotLevels))
	var total int
	for _, c := range post.Chains {
		for _, draw := range c.PlotEffects {
			for k := range effectMeans {
				effectMeans[k] += draw[k]
			}
		}
		total += len(c.PlotEffects)
	}
	for k := range effectMeans {
		effectMeans[k] /= float64(total)
	}

	preds := make([]float64, len(post.model.Response))
	for i := range preds {
		fit := effectMeans[post.model.plotIdx[i]]
		for j := 0; j < p; j++ {
			fit += post.model.x[i][j] * means[j]
		}
		preds[i] = fit
	}
	return preds
}

// FitMetrics compares posterior-mean predictions with the observed
// response.
type FitMetrics struct {
	R2   float64
	RMSE float64
}

// Evaluate computes the model-fit metrics.
func (post *Posterior) Evaluate() (FitMetrics, error) {
	preds := post.Predictions()
	obs := post.model.Response
	if len(preds) != len(obs) {
		return FitMetrics{}, fmt.Errorf("prediction length mismatch")
	}

	meanObs := stat.Mean(obs, nil)
	var ssRes, ssTot float64
	for i := range obs {
		d := obs[i] - preds[i]
		ssRes += d * d
		t := obs[i] - meanObs
		ssTot += t * t
	}
	if ssTot == 0 {
		return FitMetrics{}, fmt.Errorf("response has zero variance")
	}

	return FitMetrics{
		R2:   1 - ssRes/ssTot,
		RMSE: math.Sqrt(ssRes / float64(len(obs))),
	}, nil
}
