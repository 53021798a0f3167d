package plotkit

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// DensityCurve is a kernel density estimate evaluated on a regular grid.
type DensityCurve struct {
	X []float64 // grid positions
	Y []float64 // density at each position
}

// Density computes a Gaussian kernel density estimate of xs on a grid
// of n points spanning the data range extended by three bandwidths.
// A bandwidth of zero selects Silverman's rule of thumb.
func Density(xs []float64, bandwidth float64, n int) DensityCurve {
	if len(xs) == 0 || n < 2 {
		return DensityCurve{}
	}
	if bandwidth <= 0 {
		bandwidth = SilvermanBandwidth(xs)
	}
	if bandwidth <= 0 {
		// Degenerate sample (all values equal); use a nominal width
		// so the violin still has an outline.
		bandwidth = 1e-3 * math.Max(1, math.Abs(xs[0]))
	}

	lo, hi := xs[0], xs[0]
	for _, v := range xs {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	lo -= 3 * bandwidth
	hi += 3 * bandwidth

	curve := DensityCurve{
		X: make([]float64, n),
		Y: make([]float64, n),
	}
	step := (hi - lo) / float64(n-1)
	norm := 1 / (float64(len(xs)) * bandwidth * math.Sqrt(2*math.Pi))
	for i := range curve.X {
		x := lo + float64(i)*step
		var sum float64
		for _, v := range xs {
			z := (x - v) / bandwidth
			sum += math.Exp(-0.5 * z * z)
		}
		curve.X[i] = x
		curve.Y[i] = norm * sum
	}
	return curve
}

// SilvermanBandwidth returns Silverman's rule-of-thumb bandwidth:
// 0.9 * min(sd, IQR/1.34) * n^(-1/5).
func SilvermanBandwidth(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)

	sd := stat.StdDev(sorted, nil)
	iqr := stat.Quantile(0.75, stat.Empirical, sorted, nil) -
		stat.Quantile(0.25, stat.Empirical, sorted, nil)

	spread := sd
	if iqr > 0 && iqr/1.34 < spread {
		spread = iqr / 1.34
	}
	return 0.9 * spread * math.Pow(float64(len(xs)), -0.2)
}

// MaxY returns the peak density of the curve.
func (c DensityCurve) MaxY() float64 {
	var m float64
	for _, v := range c.Y {
		m = math.Max(m, v)
	}
	return m
}
