package forest

import (
	"math/rand"
	"sort"
)

// tree is a single CART regression tree. purity accumulates, per
// feature, the total sum-of-squares reduction of the splits made on
// that feature.
type tree struct {
	root   *node
	purity []float64
}

type node struct {
	feature   int
	threshold float64
	left      *node
	right     *node
	value     float64
	leaf      bool
}

// grow builds a regression tree on the bootstrap sample indices.
func grow(rows [][]float64, y []float64, sample []int, rng *rand.Rand, mtry, minNode, p int) *tree {
	t := &tree{purity: make([]float64, p)}
	idx := append([]int(nil), sample...)
	t.root = t.split(rows, y, idx, rng, mtry, minNode, p)
	return t
}

func (t *tree) split(rows [][]float64, y []float64, idx []int, rng *rand.Rand, mtry, minNode, p int) *node {
	n := len(idx)
	var sum, sumSq float64
	for _, i := range idx {
		sum += y[i]
		sumSq += y[i] * y[i]
	}
	mean := sum / float64(n)
	sse := sumSq - sum*sum/float64(n)

	nd := &node{value: mean, leaf: true}
	if n < 2*minNode || sse <= 1e-12 {
		return nd
	}

	// Sample mtry candidate features without replacement.
	candidates := rng.Perm(p)[:mtry]

	bestFeature := -1
	var bestThreshold, bestGain float64
	var bestLeft, bestRight []int

	order := make([]int, n)
	for _, j := range candidates {
		copy(order, idx)
		sort.Slice(order, func(a, b int) bool {
			return rows[order[a]][j] < rows[order[b]][j]
		})

		var leftSum, leftSq float64
		rightSum, rightSq := sum, sumSq
		for k := 0; k < n-1; k++ {
			yi := y[order[k]]
			leftSum += yi
			leftSq += yi * yi
			rightSum -= yi
			rightSq -= yi * yi

			nl := float64(k + 1)
			nr := float64(n - k - 1)
			if int(nl) < minNode || int(nr) < minNode {
				continue
			}
			// No split between equal feature values.
			if rows[order[k]][j] == rows[order[k+1]][j] {
				continue
			}

			childSSE := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			gain := sse - childSSE
			if gain > bestGain {
				bestGain = gain
				bestFeature = j
				bestThreshold = (rows[order[k]][j] + rows[order[k+1]][j]) / 2
				bestLeft = append(bestLeft[:0], order[:k+1]...)
				bestRight = append(bestRight[:0], order[k+1:]...)
			}
		}
	}

	if bestFeature < 0 {
		return nd
	}

	t.purity[bestFeature] += bestGain

	nd.leaf = false
	nd.feature = bestFeature
	nd.threshold = bestThreshold
	left := append([]int(nil), bestLeft...)
	right := append([]int(nil), bestRight...)
	nd.left = t.split(rows, y, left, rng, mtry, minNode, p)
	nd.right = t.split(rows, y, right, rng, mtry, minNode, p)
	return nd
}

func (t *tree) predict(row []float64) float64 {
	nd := t.root
	for !nd.leaf {
		if row[nd.feature] <= nd.threshold {
			nd = nd.left
		} else {
			nd = nd.right
		}
	}
	return nd.value
}
