package lmm

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/stat"
)

func TestSingleGroupReducesToOLS(t *testing.T) {
	// With one grouping site the random intercept is confounded with
	// the fixed intercept, and the slope must match ordinary least
	// squares.
	x := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	y := []float64{2.1, 3.9, 6.2, 7.8, 10.1, 12.2, 13.8, 16.1}
	groups := []string{"S1", "S1", "S1", "S1", "S1", "S1", "S1", "S1"}

	fit, err := FitRandomIntercept(y, []Predictor{{Name: "C", Values: x}}, groups, nil)
	if err != nil {
		t.Fatalf("FitRandomIntercept() failed: %v", err)
	}

	olsIntercept, olsSlope := stat.LinearRegression(x, y, nil, false)

	if fit.NGroups != 1 {
		t.Fatalf("NGroups = %d, want 1", fit.NGroups)
	}
	if got := fit.Coefs[1].Estimate; math.Abs(got-olsSlope) > 1e-8 {
		t.Errorf("slope = %f, want OLS slope %f", got, olsSlope)
	}
	if got := fit.Coefs[0].Estimate; math.Abs(got-olsIntercept) > 1e-8 {
		t.Errorf("intercept = %f, want OLS intercept %f", got, olsIntercept)
	}
}

func TestCoefficientTableShape(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6}
	y := []float64{1.2, 2.1, 2.9, 4.2, 5.1, 5.8}
	groups := []string{"a", "a", "b", "b", "c", "c"}

	fit, err := FitRandomIntercept(y, []Predictor{{Name: "C", Values: x}}, groups, nil)
	if err != nil {
		t.Fatalf("FitRandomIntercept() failed: %v", err)
	}

	if len(fit.Coefs) != 2 {
		t.Fatalf("coefficient rows = %d, want 2", len(fit.Coefs))
	}
	if fit.Coefs[0].Name != InterceptName {
		t.Errorf("first coefficient = %q, want %q", fit.Coefs[0].Name, InterceptName)
	}
	if fit.Coefs[1].Name != "C" {
		t.Errorf("second coefficient = %q, want C", fit.Coefs[1].Name)
	}
	if fit.NGroups != 3 {
		t.Errorf("NGroups = %d, want 3", fit.NGroups)
	}
}

func TestSlopeRecoveryWithGroupOffsets(t *testing.T) {
	// y = 2x + group offset + tiny wiggle. The pooled slope should
	// come back near 2 despite distinct group baselines.
	offsets := map[string]float64{"g1": -3, "g2": 0, "g3": 3}
	var x, y []float64
	var groups []string
	wiggle := []float64{0.05, -0.04, 0.03, -0.02, 0.01}
	for _, g := range []string{"g1", "g2", "g3"} {
		for i := 0; i < 5; i++ {
			xv := float64(i + 1)
			x = append(x, xv)
			y = append(y, 2*xv+offsets[g]+wiggle[i])
			groups = append(groups, g)
		}
	}

	fit, err := FitRandomIntercept(y, []Predictor{{Name: "C", Values: x}}, groups, nil)
	if err != nil {
		t.Fatalf("FitRandomIntercept() failed: %v", err)
	}

	if got := fit.Coefs[1].Estimate; math.Abs(got-2) > 0.05 {
		t.Errorf("slope = %f, want ~2", got)
	}
	if fit.VarIntercept <= 0 {
		t.Errorf("VarIntercept = %f, want > 0 with distinct group baselines", fit.VarIntercept)
	}
}

func TestPValueSeparatesSignalFromNoise(t *testing.T) {
	groups := []string{"a", "a", "a", "b", "b", "b", "c", "c", "c"}
	x := []float64{1, 2, 3, 1, 2, 3, 1, 2, 3}

	// Strong linear signal.
	strong := []float64{1.0, 3.1, 4.9, 1.2, 3.0, 5.1, 0.9, 2.9, 5.0}
	fit, err := FitRandomIntercept(strong, []Predictor{{Name: "C", Values: x}}, groups, nil)
	if err != nil {
		t.Fatalf("FitRandomIntercept() failed: %v", err)
	}
	if p := fit.Coefs[1].P; p >= 0.05 {
		t.Errorf("strong signal slope p = %f, want < 0.05", p)
	}

	// No relation to x at all.
	flat := []float64{2.0, -1.5, 0.5, -0.8, 1.9, -0.2, 0.1, -1.1, 1.4}
	fit, err = FitRandomIntercept(flat, []Predictor{{Name: "C", Values: x}}, groups, nil)
	if err != nil {
		t.Fatalf("FitRandomIntercept() failed: %v", err)
	}
	if p := fit.Coefs[1].P; p <= 0.05 {
		t.Errorf("noise slope p = %f, want > 0.05", p)
	}
}

func TestInputValidation(t *testing.T) {
	tests := []struct {
		name   string
		y      []float64
		x      []float64
		groups []string
	}{
		{name: "empty", y: nil, x: nil, groups: nil},
		{name: "length mismatch", y: []float64{1, 2}, x: []float64{1}, groups: []string{"a", "a"}},
		{name: "missing group key", y: []float64{1, 2, 3, 4}, x: []float64{1, 2, 3, 4}, groups: []string{"a", "", "b", "b"}},
		{name: "too few observations", y: []float64{1, 2}, x: []float64{1, 2}, groups: []string{"a", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FitRandomIntercept(tt.y, []Predictor{{Name: "C", Values: tt.x}}, tt.groups, nil)
			if err == nil {
				t.Error("expected an error")
			}
		})
	}
}
