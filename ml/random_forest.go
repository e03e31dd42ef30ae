package ml

import (
	"errors"
	"math"
	"math/rand"
)

// RandomForest bags decision trees over bootstrap samples with sqrt-feature
// subsampling at each split.
type RandomForest struct {
	Trees      []*DecisionTree `json:"trees"`
	NumClasses int             `json:"num_classes"`

	numTrees        int
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	seed            int64
}

// NewRandomForest creates an untrained forest from options.
func NewRandomForest(opts Options) *RandomForest {
	numTrees := opts.NumTrees
	if numTrees <= 0 {
		numTrees = 100
	}
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 20
	}
	return &RandomForest{
		numTrees:        numTrees,
		maxDepth:        maxDepth,
		minSamplesSplit: opts.MinSamplesSplit,
		minSamplesLeaf:  opts.MinSamplesLeaf,
		seed:            opts.Seed,
	}
}

// Fit trains numTrees trees on bootstrap resamples of the data.
func (rf *RandomForest) Fit(X [][]float64, y []int, numClasses int) error {
	if len(X) == 0 || len(X) != len(y) {
		return errors.New("features and labels size mismatch")
	}

	rng := rand.New(rand.NewSource(rf.seed))
	maxFeatures := int(math.Sqrt(float64(len(X[0]))))
	if maxFeatures < 1 {
		maxFeatures = 1
	}

	rf.NumClasses = numClasses
	rf.Trees = make([]*DecisionTree, 0, rf.numTrees)
	for t := 0; t < rf.numTrees; t++ {
		indices := make([]int, len(X))
		for i := range indices {
			indices[i] = rng.Intn(len(X))
		}
		tree := newDecisionTree(rf.maxDepth, rf.minSamplesSplit, rf.minSamplesLeaf, maxFeatures, rng)
		tree.fitIndices(X, y, numClasses, indices)
		rf.Trees = append(rf.Trees, tree)
	}
	return nil
}

// PredictProba averages the per-tree class distributions.
func (rf *RandomForest) PredictProba(x []float64) ([]float64, error) {
	if len(rf.Trees) == 0 {
		return nil, errors.New("model not trained")
	}
	probs := make([]float64, rf.NumClasses)
	for _, tree := range rf.Trees {
		treeProbs, err := tree.PredictProba(x)
		if err != nil {
			return nil, err
		}
		for i, p := range treeProbs {
			probs[i] += p
		}
	}
	for i := range probs {
		probs[i] /= float64(len(rf.Trees))
	}
	return probs, nil
}
