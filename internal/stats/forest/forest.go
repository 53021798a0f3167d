// Package forest implements a random-forest regressor with
// permutation-based variable importance.
//
// Trees are grown on bootstrap samples with a random feature subset at
// each split. Importance is measured on the out-of-bag rows of each
// tree: %IncMSE is the permutation-induced increase in out-of-bag mean
// squared error scaled by its standard error, IncNodePurity is the
// total split variance reduction attributed to the feature. Per-tree
// seeds are drawn from the master seed up front, so growing trees
// concurrently does not change the result.
package forest

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Config controls forest growth.
type Config struct {
	Trees       int   // number of trees; 0 means 500
	MTry        int   // features tried per split; 0 means max(1, p/3)
	MinNodeSize int   // smallest node eligible for splitting; 0 means 5
	Seed        int64 // master seed
	Workers     int   // concurrent tree builders; 0 means GOMAXPROCS
	Logger      *slog.Logger
}

// Forest is a fitted ensemble.
type Forest struct {
	features []string
	trees    []*tree
	imp      []Importance
}

// Importance is the ranking entry for one feature.
type Importance struct {
	Feature       string
	PctIncMSE     float64
	IncNodePurity float64
}

// treeResult carries one tree's importance contributions.
type treeResult struct {
	mseIncrease []float64 // per-feature OOB MSE increase
	purity      []float64 // per-feature split variance reduction
	hasOOB      bool
}

// Fit grows a random forest regressing y on the feature matrix.
// rows is row-major with one entry per observation; every row must
// have len(features) finite values.
func Fit(ctx context.Context, features []string, rows [][]float64, y []float64, cfg Config) (*Forest, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	n := len(rows)
	p := len(features)
	if n == 0 {
		return nil, fmt.Errorf("no observations")
	}
	if p == 0 {
		return nil, fmt.Errorf("no predictor columns")
	}
	if len(y) != n {
		return nil, fmt.Errorf("target has %d values, want %d", len(y), n)
	}
	for i, row := range rows {
		if len(row) != p {
			return nil, fmt.Errorf("row %d has %d values, want %d", i+1, len(row), p)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("predictor %s has a non-finite value at row %d", features[j], i+1)
			}
		}
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			return nil, fmt.Errorf("target has a non-finite value at row %d", i+1)
		}
	}

	nTrees := cfg.Trees
	if nTrees <= 0 {
		nTrees = 500
	}
	mtry := cfg.MTry
	if mtry <= 0 {
		mtry = p / 3
	}
	if mtry < 1 {
		mtry = 1
	}
	if mtry > p {
		mtry = p
	}
	minNode := cfg.MinNodeSize
	if minNode <= 0 {
		minNode = 5
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	logger.Debug("growing forest", "trees", nTrees, "mtry", mtry, "min_node", minNode, "rows", n, "features", p)

	// Pre-draw all per-tree seeds so concurrent growth is
	// reproducible for a fixed master seed.
	master := rand.New(rand.NewSource(cfg.Seed))
	seeds := make([]int64, nTrees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	trees := make([]*tree, nTrees)
	results := make([]treeResult, nTrees)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < nTrees; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seeds[i]))
			trees[i], results[i] = growAndScore(rows, y, rng, mtry, minNode, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	f := &Forest{
		features: append([]string(nil), features...),
		trees:    trees,
	}
	f.imp = reduceImportance(features, results, nTrees)
	return f, nil
}

// Predict returns the ensemble mean prediction for one row.
func (f *Forest) Predict(row []float64) float64 {
	var sum float64
	for _, t := range f.trees {
		sum += t.predict(row)
	}
	return sum / float64(len(f.trees))
}

// Importances returns the features ranked by descending %IncMSE.
// Ties break by descending node purity, then by name, keeping the
// ranking a total order.
func (f *Forest) Importances() []Importance {
	out := append([]Importance(nil), f.imp...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PctIncMSE != out[j].PctIncMSE {
			return out[i].PctIncMSE > out[j].PctIncMSE
		}
		if out[i].IncNodePurity != out[j].IncNodePurity {
			return out[i].IncNodePurity > out[j].IncNodePurity
		}
		return out[i].Feature < out[j].Feature
	})
	return out
}

// growAndScore grows one tree on a bootstrap sample and scores
// permutation importance on its out-of-bag rows.
func growAndScore(rows [][]float64, y []float64, rng *rand.Rand, mtry, minNode, p int) (*tree, treeResult) {
	n := len(rows)

	boot := make([]int, n)
	inBag := make([]bool, n)
	for i := range boot {
		idx := rng.Intn(n)
		boot[i] = idx
		inBag[idx] = true
	}
	var oob []int
	for i := 0; i < n; i++ {
		if !inBag[i] {
			oob = append(oob, i)
		}
	}

	tr := grow(rows, y, boot, rng, mtry, minNode, p)

	res := treeResult{
		mseIncrease: make([]float64, p),
		purity:      tr.purity,
	}
	if len(oob) == 0 {
		return tr, res
	}
	res.hasOOB = true

	baseline := oobMSE(tr, rows, y, oob, -1, nil)
	permuted := make([]float64, len(oob))
	for j := 0; j < p; j++ {
		for k, idx := range oob {
			permuted[k] = rows[idx][j]
		}
		rng.Shuffle(len(permuted), func(a, b int) {
			permuted[a], permuted[b] = permuted[b], permuted[a]
		})
		res.mseIncrease[j] = oobMSE(tr, rows, y, oob, j, permuted) - baseline
	}
	return tr, res
}

// oobMSE computes the tree's MSE over the out-of-bag rows, optionally
// substituting permuted values for one feature.
func oobMSE(tr *tree, rows [][]float64, y []float64, oob []int, permFeature int, permuted []float64) float64 {
	var sse float64
	row := make([]float64, len(rows[0]))
	for k, idx := range oob {
		copy(row, rows[idx])
		if permFeature >= 0 {
			row[permFeature] = permuted[k]
		}
		d := tr.predict(row) - y[idx]
		sse += d * d
	}
	return sse / float64(len(oob))
}

// reduceImportance averages the per-tree scores. %IncMSE follows the
// usual scaling: mean increase divided by its standard error over
// trees.
func reduceImportance(features []string, results []treeResult, nTrees int) []Importance {
	p := len(features)
	imp := make([]Importance, p)

	for j := 0; j < p; j++ {
		var sum, sumSq, purity float64
		var m int
		for i := 0; i < nTrees; i++ {
			purity += results[i].purity[j]
			if !results[i].hasOOB {
				continue
			}
			d := results[i].mseIncrease[j]
			sum += d
			sumSq += d * d
			m++
		}

		imp[j] = Importance{Feature: features[j], IncNodePurity: purity}
		if m == 0 {
			continue
		}
		mean := sum / float64(m)
		variance := sumSq/float64(m) - mean*mean
		if variance < 0 {
			variance = 0
		}
		se := math.Sqrt(variance / float64(m))
		if se > 0 {
			imp[j].PctIncMSE = mean / se
		} else {
			imp[j].PctIncMSE = mean
		}
	}
	return imp
}
