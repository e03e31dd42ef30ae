package ml

import (
	"math"
	"math/rand"
)

// StratifiedSplit splits samples into train and test sets, preserving the
// per-label proportions. The shuffle is seeded so runs are reproducible.
// Every label with at least two samples contributes at least one test sample
// and keeps at least one training sample.
func StratifiedSplit(X [][]float64, labels []string, testRatio float64, seed int64) (trainX [][]float64, trainY []string, testX [][]float64, testY []string) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}
	rng := rand.New(rand.NewSource(seed))

	for _, group := range groupByLabel(labels) {
		indices := append([]int(nil), group...)
		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})

		nTest := int(math.Round(float64(len(indices)) * testRatio))
		if nTest == 0 && len(indices) > 1 {
			nTest = 1
		}
		if nTest >= len(indices) {
			nTest = len(indices) - 1
		}

		for i, idx := range indices {
			if i < nTest {
				testX = append(testX, X[idx])
				testY = append(testY, labels[idx])
			} else {
				trainX = append(trainX, X[idx])
				trainY = append(trainY, labels[idx])
			}
		}
	}
	return trainX, trainY, testX, testY
}

// StratifiedKFold assigns each sample to one of k folds, spreading every
// label across folds round-robin after a seeded shuffle. Returns the fold
// index per sample.
func StratifiedKFold(labels []string, k int, seed int64) []int {
	if k < 2 {
		k = 2
	}
	rng := rand.New(rand.NewSource(seed))
	folds := make([]int, len(labels))

	next := 0
	for _, group := range groupByLabel(labels) {
		indices := append([]int(nil), group...)
		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
		for _, idx := range indices {
			folds[idx] = next % k
			next++
		}
	}
	return folds
}

// groupByLabel returns sample indices grouped by label, in sorted label order
// so the seeded shuffles are deterministic.
func groupByLabel(labels []string) [][]int {
	byLabel := make(map[string][]int)
	for i, label := range labels {
		byLabel[label] = append(byLabel[label], i)
	}
	groups := make([][]int, 0, len(byLabel))
	for _, label := range distinctSorted(labels) {
		groups = append(groups, byLabel[label])
	}
	return groups
}
