package hbm

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// CovariateFraction is one slice of the ungrouped variance partition.
type CovariateFraction struct {
	Covariate string
	Fraction  float64
}

// GroupFraction is one slice of the grouped variance partition.
type GroupFraction struct {
	Group    string
	Fraction float64
}

// Partition is the variance decomposition of the fixed-effect
// predictor. Per posterior draw, each covariate contributes
// beta_j^2 * Var(x_j); fractions are normalized within the draw so
// they sum to one, then averaged over draws. The plot-level
// random-effect variance is reported separately, outside the
// normalization.
type Partition struct {
	Covariates []CovariateFraction
	RandomVar  float64 // posterior mean plot-level variance
}

// PartitionVariance computes the ungrouped partition.
func (post *Posterior) PartitionVariance() Partition {
	m := post.model
	nCov := len(m.Covariates)

	// Per-covariate variance over sites, constant across draws.
	xVar := make([]float64, nCov)
	for j, c := range m.Covariates {
		xVar[j] = stat.Variance(c.Values, nil)
	}

	fractions := make([]float64, nCov)
	var total int
	for _, chain := range post.Chains {
		for _, draw := range chain.Beta {
			var sum float64
			part := make([]float64, nCov)
			for j := 0; j < nCov; j++ {
				// draw[0] is the intercept; covariate j is draw[j+1].
				v := draw[j+1] * draw[j+1] * xVar[j]
				part[j] = v
				sum += v
			}
			if sum <= 0 {
				continue
			}
			for j := 0; j < nCov; j++ {
				fractions[j] += part[j] / sum
			}
			total++
		}
	}
	for j := range fractions {
		fractions[j] /= float64(total)
	}

	out := Partition{Covariates: make([]CovariateFraction, nCov)}
	for j, c := range m.Covariates {
		out.Covariates[j] = CovariateFraction{Covariate: c.Name, Fraction: fractions[j]}
	}
	out.RandomVar, _ = post.VarianceMeans()
	return out
}

// PartitionByGroup aggregates an ungrouped partition with a 1-based
// group assignment, one entry per covariate. The grouped fraction is
// exactly the sum of its constituent covariate fractions.
func (p Partition) PartitionByGroup(assignment []int, groupNames []string) ([]GroupFraction, error) {
	if len(assignment) != len(p.Covariates) {
		return nil, fmt.Errorf("group assignment has %d entries, want %d", len(assignment), len(p.Covariates))
	}

	sums := make([]float64, len(groupNames))
	for j, g := range assignment {
		if g < 1 || g > len(groupNames) {
			return nil, fmt.Errorf("covariate %s assigned to unknown group %d", p.Covariates[j].Covariate, g)
		}
		sums[g-1] += p.Covariates[j].Fraction
	}

	out := make([]GroupFraction, len(groupNames))
	for i, name := range groupNames {
		out[i] = GroupFraction{Group: name, Fraction: sums[i]}
	}
	return out, nil
}
