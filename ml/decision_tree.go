package ml

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

// TreeNode is one node in the flat tree array. Children are indices into the
// same array; leaves carry the training class distribution.
type TreeNode struct {
	FeatureIdx int       `json:"feature_idx"`
	Threshold  float64   `json:"threshold"`
	LeftChild  int       `json:"left_child"`
	RightChild int       `json:"right_child"`
	Counts     []float64 `json:"counts,omitempty"`
	IsLeaf     bool      `json:"is_leaf"`
}

// DecisionTree is a CART classifier with gini splits. It backs the random
// forest but works standalone as well.
type DecisionTree struct {
	Nodes      []TreeNode `json:"nodes"`
	NumClasses int        `json:"num_classes"`

	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int // 0 means all features
	rng             *rand.Rand
}

const maxThresholdCandidates = 32

func newDecisionTree(maxDepth, minSamplesSplit, minSamplesLeaf, maxFeatures int, rng *rand.Rand) *DecisionTree {
	if maxDepth <= 0 {
		maxDepth = 20
	}
	if minSamplesSplit < 2 {
		minSamplesSplit = 2
	}
	if minSamplesLeaf < 1 {
		minSamplesLeaf = 1
	}
	return &DecisionTree{
		maxDepth:        maxDepth,
		minSamplesSplit: minSamplesSplit,
		minSamplesLeaf:  minSamplesLeaf,
		maxFeatures:     maxFeatures,
		rng:             rng,
	}
}

// Fit builds the tree over all samples.
func (dt *DecisionTree) Fit(X [][]float64, y []int, numClasses int) error {
	if len(X) == 0 || len(X) != len(y) {
		return errors.New("features and labels size mismatch")
	}
	indices := make([]int, len(X))
	for i := range indices {
		indices[i] = i
	}
	dt.fitIndices(X, y, numClasses, indices)
	return nil
}

// fitIndices builds the tree over a subset of sample indices (used by the
// forest for bootstrap samples).
func (dt *DecisionTree) fitIndices(X [][]float64, y []int, numClasses int, indices []int) {
	dt.NumClasses = numClasses
	dt.Nodes = dt.buildNode(X, y, indices, 0)
}

// PredictProba walks the tree and returns the leaf class distribution.
func (dt *DecisionTree) PredictProba(x []float64) ([]float64, error) {
	if len(dt.Nodes) == 0 {
		return nil, errors.New("model not trained")
	}
	idx := 0
	for {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return normalizeCounts(node.Counts), nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(x) {
			return nil, errors.New("feature index out of range")
		}
		if x[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.Nodes) {
			return nil, errors.New("invalid tree state")
		}
	}
}

func (dt *DecisionTree) buildNode(X [][]float64, y []int, indices []int, depth int) []TreeNode {
	counts := classCounts(y, indices, dt.NumClasses)

	if depth >= dt.maxDepth || len(indices) < dt.minSamplesSplit || isPureCounts(counts) {
		return []TreeNode{leafNode(counts)}
	}

	feature, threshold, ok := dt.findBestSplit(X, y, indices)
	if !ok {
		return []TreeNode{leafNode(counts)}
	}

	left, right := partitionIndices(X, indices, feature, threshold)
	if len(left) < dt.minSamplesLeaf || len(right) < dt.minSamplesLeaf {
		return []TreeNode{leafNode(counts)}
	}

	leftNodes := dt.buildNode(X, y, left, depth+1)
	rightNodes := dt.buildNode(X, y, right, depth+1)

	root := TreeNode{
		FeatureIdx: feature,
		Threshold:  threshold,
		LeftChild:  1,
		RightChild: 1 + len(leftNodes),
	}

	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, root)
	nodes = append(nodes, leftNodes...)
	for _, node := range rightNodes {
		if !node.IsLeaf {
			node.LeftChild += 1 + len(leftNodes)
			node.RightChild += 1 + len(leftNodes)
		}
		nodes = append(nodes, node)
	}
	// Left subtree children also need offsetting past the root.
	for i := 1; i <= len(leftNodes); i++ {
		if !nodes[i].IsLeaf {
			nodes[i].LeftChild++
			nodes[i].RightChild++
		}
	}
	return nodes
}

func (dt *DecisionTree) findBestSplit(X [][]float64, y []int, indices []int) (int, float64, bool) {
	featureCount := len(X[0])
	candidates := dt.candidateFeatures(featureCount)

	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64

	values := make([]float64, len(indices))
	for _, featureIdx := range candidates {
		for i, idx := range indices {
			values[i] = X[idx][featureIdx]
		}
		for _, threshold := range candidateThresholds(values) {
			leftCounts := make([]float64, dt.NumClasses)
			rightCounts := make([]float64, dt.NumClasses)
			var leftN, rightN float64
			for _, idx := range indices {
				if X[idx][featureIdx] <= threshold {
					leftCounts[y[idx]]++
					leftN++
				} else {
					rightCounts[y[idx]]++
					rightN++
				}
			}
			if leftN == 0 || rightN == 0 {
				continue
			}
			impurity := (leftN*giniCounts(leftCounts, leftN) + rightN*giniCounts(rightCounts, rightN)) / (leftN + rightN)
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = featureIdx
				bestThreshold = threshold
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

// candidateFeatures returns all feature indices, or a random subset of size
// maxFeatures when configured (forest mode).
func (dt *DecisionTree) candidateFeatures(featureCount int) []int {
	if dt.maxFeatures <= 0 || dt.maxFeatures >= featureCount || dt.rng == nil {
		all := make([]int, featureCount)
		for i := range all {
			all[i] = i
		}
		return all
	}
	perm := dt.rng.Perm(featureCount)
	return perm[:dt.maxFeatures]
}

// candidateThresholds returns midpoints between consecutive distinct sorted
// values, thinned to a fixed budget for wide-value features.
func candidateThresholds(values []float64) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mids := make([]float64, 0, len(sorted))
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1] {
			mids = append(mids, (sorted[i]+sorted[i-1])/2)
		}
	}
	if len(mids) <= maxThresholdCandidates {
		return mids
	}
	step := float64(len(mids)) / float64(maxThresholdCandidates)
	thinned := make([]float64, 0, maxThresholdCandidates)
	for i := 0; i < maxThresholdCandidates; i++ {
		thinned = append(thinned, mids[int(float64(i)*step)])
	}
	return thinned
}

func partitionIndices(X [][]float64, indices []int, feature int, threshold float64) ([]int, []int) {
	left := make([]int, 0, len(indices))
	right := make([]int, 0, len(indices))
	for _, idx := range indices {
		if X[idx][feature] <= threshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}
	return left, right
}

func classCounts(y []int, indices []int, numClasses int) []float64 {
	counts := make([]float64, numClasses)
	for _, idx := range indices {
		counts[y[idx]]++
	}
	return counts
}

func leafNode(counts []float64) TreeNode {
	return TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		Counts:     counts,
		IsLeaf:     true,
	}
}

func giniCounts(counts []float64, total float64) float64 {
	impurity := 1.0
	for _, c := range counts {
		p := c / total
		impurity -= p * p
	}
	return impurity
}

func isPureCounts(counts []float64) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func normalizeCounts(counts []float64) []float64 {
	var total float64
	for _, c := range counts {
		total += c
	}
	probs := make([]float64, len(counts))
	if total == 0 {
		return probs
	}
	for i, c := range counts {
		probs[i] = c / total
	}
	return probs
}
