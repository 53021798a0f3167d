package hbm

import (
	"fmt"
	"math"

	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
)

// Prior constants. The coefficient prior is flat enough to be
// dominated by the data; the variance priors are the usual weakly
// informative inverse-gamma.
const (
	priorBetaVar    = 1e6
	priorVarShape   = 0.01
	priorVarRate    = 0.01
	initialVariance = 1.0
)

// runChain runs one Gibbs chain: transient sweeps are discarded, then
// `samples` draws are retained every `thin` sweeps.
func runChain(m *Model, samples, thin, transient int, seed uint64) (ChainSamples, error) {
	src := exprand.NewSource(seed)
	rng := exprand.New(src)

	n := len(m.Response)
	p := len(m.coefs)
	nPlots := len(m.levels)

	// Constant sufficient statistics.
	xtx := mat.NewSymDense(p, nil)
	xty := make([]float64, p)
	plotN := make([]float64, nPlots)
	plotXSum := make([][]float64, nPlots)
	plotYSum := make([]float64, nPlots)
	for k := range plotXSum {
		plotXSum[k] = make([]float64, p)
	}
	for i := 0; i < n; i++ {
		row := m.x[i]
		k := m.plotIdx[i]
		plotN[k]++
		plotYSum[k] += m.Response[i]
		for j := 0; j < p; j++ {
			xty[j] += row[j] * m.Response[i]
			plotXSum[k][j] += row[j]
			for l := j; l < p; l++ {
				xtx.SetSym(j, l, xtx.At(j, l)+row[j]*row[l])
			}
		}
	}

	beta := make([]float64, p)
	effects := make([]float64, nPlots)
	plotVar := initialVariance
	residVar := initialVariance

	out := ChainSamples{
		Beta:        make([][]float64, 0, samples),
		PlotEffects: make([][]float64, 0, samples),
		PlotVar:     make([]float64, 0, samples),
		ResidVar:    make([]float64, 0, samples),
	}

	stdNorm := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	total := transient + samples*thin
	for sweep := 0; sweep < total; sweep++ {
		// beta | effects, variances
		prec := mat.NewSymDense(p, nil)
		rhs := make([]float64, p)
		for j := 0; j < p; j++ {
			rhs[j] = xty[j]
			for k := 0; k < nPlots; k++ {
				rhs[j] -= effects[k] * plotXSum[k][j]
			}
			rhs[j] /= residVar
			for l := j; l < p; l++ {
				prec.SetSym(j, l, xtx.At(j, l)/residVar)
			}
			prec.SetSym(j, j, prec.At(j, j)+1/priorBetaVar)
		}

		var chol mat.Cholesky
		if !chol.Factorize(prec) {
			return ChainSamples{}, fmt.Errorf("coefficient precision not positive definite")
		}
		mean := mat.NewVecDense(p, nil)
		if err := chol.SolveVecTo(mean, mat.NewVecDense(p, rhs)); err != nil {
			return ChainSamples{}, fmt.Errorf("failed to solve coefficient mean: %w", err)
		}
		normal, ok := distmv.NewNormalPrecision(mean.RawVector().Data, prec, src)
		if !ok {
			return ChainSamples{}, fmt.Errorf("coefficient conditional is degenerate")
		}
		normal.Rand(beta)

		// plot effects | beta, variances
		for k := 0; k < nPlots; k++ {
			var fitSum float64
			for j := 0; j < p; j++ {
				fitSum += plotXSum[k][j] * beta[j]
			}
			precA := plotN[k]/residVar + 1/plotVar
			meanA := (plotYSum[k] - fitSum) / residVar / precA
			effects[k] = meanA + stdNorm.Rand()/math.Sqrt(precA)
		}

		// plot variance | effects
		var ssA float64
		for k := 0; k < nPlots; k++ {
			ssA += effects[k] * effects[k]
		}
		plotVar = invGamma(rng, priorVarShape+float64(nPlots)/2, priorVarRate+ssA/2)

		// residual variance | beta, effects
		var ssE float64
		for i := 0; i < n; i++ {
			fit := effects[m.plotIdx[i]]
			for j := 0; j < p; j++ {
				fit += m.x[i][j] * beta[j]
			}
			d := m.Response[i] - fit
			ssE += d * d
		}
		residVar = invGamma(rng, priorVarShape+float64(n)/2, priorVarRate+ssE/2)

		if sweep < transient {
			continue
		}
		if (sweep-transient)%thin != 0 {
			continue
		}
		if len(out.Beta) == samples {
			continue
		}
		out.Beta = append(out.Beta, append([]float64(nil), beta...))
		out.PlotEffects = append(out.PlotEffects, append([]float64(nil), effects...))
		out.PlotVar = append(out.PlotVar, plotVar)
		out.ResidVar = append(out.ResidVar, residVar)
	}

	if len(out.Beta) != samples {
		return ChainSamples{}, fmt.Errorf("retained %d samples, want %d", len(out.Beta), samples)
	}
	return out, nil
}

// invGamma draws from an inverse-gamma with the given shape and rate.
func invGamma(rng *exprand.Rand, shape, rate float64) float64 {
	g := distuv.Gamma{Alpha: shape, Beta: rate, Src: rng}
	draw := g.Rand()
	if draw <= 0 {
		draw = 1e-300
	}
	return 1 / draw
}
