// Package lmm fits linear mixed models with a single random intercept.
//
// The variance ratio lambda = var(intercept)/var(residual) is profiled
// out of the Gaussian likelihood: for a fixed lambda the GLS estimates
// and the profile log-likelihood have closed forms (the per-group
// covariance blocks I + lambda*J invert analytically), so the fit
// reduces to a one-dimensional maximization over log(lambda) done with
// a derivative-free Nelder-Mead search.
package lmm

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat/distuv"
)

// Predictor is one named fixed-effect column.
type Predictor struct {
	Name   string
	Values []float64
}

// Coef is one row of the coefficient table.
type Coef struct {
	Name     string
	Estimate float64
	StdErr   float64
	T        float64
	P        float64
}

// Fit is a fitted random-intercept model.
type Fit struct {
	Coefs        []Coef
	VarIntercept float64 // between-group variance
	VarResidual  float64 // within-group variance
	LogLik       float64
	NGroups      int
	NObs         int
}

// InterceptName labels the intercept row of the coefficient table.
const InterceptName = "(Intercept)"

// groupSums holds the per-group sufficient statistics for the profiled
// likelihood.
type groupSums struct {
	n   int
	sxx *mat.SymDense // X'X
	sx  []float64     // column sums of X
	sxy []float64     // X'y
	sy  float64
	syy float64
}

// FitRandomIntercept fits y ~ predictors with a random intercept per
// group. An intercept column is always included.
func FitRandomIntercept(y []float64, predictors []Predictor, groups []string, logger *slog.Logger) (*Fit, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	n := len(y)
	if n == 0 {
		return nil, fmt.Errorf("no observations")
	}
	for _, p := range predictors {
		if len(p.Values) != n {
			return nil, fmt.Errorf("predictor %s has %d values, want %d", p.Name, len(p.Values), n)
		}
	}
	if len(groups) != n {
		return nil, fmt.Errorf("group key has %d values, want %d", len(groups), n)
	}
	for i, g := range groups {
		if g == "" {
			return nil, fmt.Errorf("group key missing at row %d", i+1)
		}
	}

	p := len(predictors) + 1
	if n <= p {
		return nil, fmt.Errorf("%d observations cannot identify %d coefficients", n, p)
	}

	// Row-major design with leading intercept column.
	design := func(i int) []float64 {
		row := make([]float64, p)
		row[0] = 1
		for j, pr := range predictors {
			row[j+1] = pr.Values[i]
		}
		return row
	}

	sums := accumulate(y, groups, design, p)

	logger.Debug("profiling variance ratio", "observations", n, "groups", len(sums), "coefficients", p)

	// Maximize the profile log-likelihood over theta = log(lambda).
	problem := optimize.Problem{
		Func: func(theta []float64) float64 {
			ll, _, _, _ := profile(sums, math.Exp(theta[0]), n, p)
			if math.IsNaN(ll) || math.IsInf(ll, 0) {
				return math.Inf(1)
			}
			return -ll
		},
	}
	result, err := optimize.Minimize(problem, []float64{0}, nil, &optimize.NelderMead{})
	if err != nil {
		return nil, fmt.Errorf("variance profile optimization failed: %w", err)
	}

	lambda := math.Exp(result.X[0])

	// A single group (or none of the between-group signal) confounds
	// the random intercept with the fixed intercept; collapse to the
	// boundary so the fit reduces to ordinary least squares.
	if len(sums) == 1 {
		lambda = 0
	}

	ll, beta, cov, sigma2 := profile(sums, lambda, n, p)
	if beta == nil {
		return nil, fmt.Errorf("singular design matrix")
	}

	df := float64(n - p)
	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}

	names := make([]string, 0, p)
	names = append(names, InterceptName)
	for _, pr := range predictors {
		names = append(names, pr.Name)
	}

	coefs := make([]Coef, p)
	for j := 0; j < p; j++ {
		se := math.Sqrt(cov.At(j, j))
		t := beta[j] / se
		coefs[j] = Coef{
			Name:     names[j],
			Estimate: beta[j],
			StdErr:   se,
			T:        t,
			P:        2 * tdist.Survival(math.Abs(t)),
		}
	}

	fit := &Fit{
		Coefs:        coefs,
		VarIntercept: lambda * sigma2,
		VarResidual:  sigma2,
		LogLik:       ll,
		NGroups:      len(sums),
		NObs:         n,
	}

	logger.Debug("mixed model fitted",
		"log_lik", fit.LogLik,
		"var_intercept", fit.VarIntercept,
		"var_residual", fit.VarResidual)

	return fit, nil
}

// accumulate collects per-group sufficient statistics in first-seen
// group order.
func accumulate(y []float64, groups []string, design func(int) []float64, p int) []*groupSums {
	index := make(map[string]*groupSums)
	var order []*groupSums
	for i := range y {
		gs, ok := index[groups[i]]
		if !ok {
			gs = &groupSums{
				sxx: mat.NewSymDense(p, nil),
				sx:  make([]float64, p),
				sxy: make([]float64, p),
			}
			index[groups[i]] = gs
			order = append(order, gs)
		}
		row := design(i)
		gs.n++
		gs.sy += y[i]
		gs.syy += y[i] * y[i]
		for j := 0; j < p; j++ {
			gs.sx[j] += row[j]
			gs.sxy[j] += row[j] * y[i]
			for k := j; k < p; k++ {
				gs.sxx.SetSym(j, k, gs.sxx.At(j, k)+row[j]*row[k])
			}
		}
	}
	return order
}

// profile evaluates the profiled log-likelihood at a fixed variance
// ratio lambda and returns the GLS solution at that ratio.
func profile(sums []*groupSums, lambda float64, n, p int) (ll float64, beta []float64, cov *mat.Dense, sigma2 float64) {
	a := mat.NewDense(p, p, nil)
	b := make([]float64, p)
	var yvy, logDetV float64

	for _, gs := range sums {
		ng := float64(gs.n)
		c := lambda / (1 + lambda*ng)
		logDetV += math.Log(1 + lambda*ng)
		yvy += gs.syy - c*gs.sy*gs.sy
		for j := 0; j < p; j++ {
			b[j] += gs.sxy[j] - c*gs.sy*gs.sx[j]
			for k := 0; k < p; k++ {
				a.Set(j, k, a.At(j, k)+gs.sxx.At(j, k)-c*gs.sx[j]*gs.sx[k])
			}
		}
	}

	var ainv mat.Dense
	if err := ainv.Inverse(a); err != nil {
		return math.NaN(), nil, nil, 0
	}

	beta = make([]float64, p)
	for j := 0; j < p; j++ {
		for k := 0; k < p; k++ {
			beta[j] += ainv.At(j, k) * b[k]
		}
	}

	rss := yvy
	for j := 0; j < p; j++ {
		rss -= beta[j] * b[j]
	}
	if rss <= 0 {
		rss = math.SmallestNonzeroFloat64
	}

	fn := float64(n)
	sigma2 = rss / fn
	ll = -0.5*fn*(math.Log(2*math.Pi*sigma2)+1) - 0.5*logDetV

	cov = mat.NewDense(p, p, nil)
	cov.Scale(sigma2, &ainv)
	return ll, beta, cov, sigma2
}
