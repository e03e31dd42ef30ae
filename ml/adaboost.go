package ml

import (
	"errors"
	"math"
)

// Stump is a one-split weak learner: samples at or below the threshold take
// LeftClass, the rest RightClass.
type Stump struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftClass  int     `json:"left_class"`
	RightClass int     `json:"right_class"`
	Alpha      float64 `json:"alpha"`
}

// AdaBoost is a SAMME booster over decision stumps.
type AdaBoost struct {
	Stumps     []Stump `json:"stumps"`
	NumClasses int     `json:"num_classes"`

	numEstimators int
	learningRate  float64
}

// NewAdaBoost creates an untrained booster from options.
func NewAdaBoost(opts Options) *AdaBoost {
	numEstimators := opts.NumEstimators
	if numEstimators <= 0 {
		numEstimators = 50
	}
	learningRate := opts.BoostLearningRate
	if learningRate <= 0 {
		learningRate = 1.0
	}
	return &AdaBoost{numEstimators: numEstimators, learningRate: learningRate}
}

// Fit runs up to numEstimators boosting rounds, reweighting samples after
// each. Rounds stop early once a stump is no better than chance.
func (ab *AdaBoost) Fit(X [][]float64, y []int, numClasses int) error {
	if len(X) == 0 || len(X) != len(y) {
		return errors.New("features and labels size mismatch")
	}
	if numClasses < 2 {
		return errors.New("need at least 2 classes")
	}

	ab.NumClasses = numClasses
	ab.Stumps = nil

	n := len(X)
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1.0 / float64(n)
	}

	chance := 1.0 - 1.0/float64(numClasses)
	for round := 0; round < ab.numEstimators; round++ {
		stump, werr, ok := bestStump(X, y, weights, numClasses)
		if !ok {
			break
		}

		if werr >= chance {
			break
		}
		if werr <= 0 {
			// Perfect stump: give it a large but finite vote and stop.
			stump.Alpha = ab.learningRate * (math.Log(1e10) + math.Log(float64(numClasses-1)))
			ab.Stumps = append(ab.Stumps, stump)
			break
		}

		stump.Alpha = ab.learningRate * (math.Log((1-werr)/werr) + math.Log(float64(numClasses-1)))
		ab.Stumps = append(ab.Stumps, stump)

		var total float64
		for i := range weights {
			if stumpPredict(stump, X[i]) != y[i] {
				weights[i] *= math.Exp(stump.Alpha)
			}
			total += weights[i]
		}
		for i := range weights {
			weights[i] /= total
		}
	}

	if len(ab.Stumps) == 0 {
		return errors.New("boosting found no usable weak learner")
	}
	return nil
}

// PredictProba normalizes the per-class weighted stump votes.
func (ab *AdaBoost) PredictProba(x []float64) ([]float64, error) {
	if len(ab.Stumps) == 0 {
		return nil, errors.New("model not trained")
	}
	votes := make([]float64, ab.NumClasses)
	var total float64
	for _, stump := range ab.Stumps {
		votes[stumpPredict(stump, x)] += stump.Alpha
		total += stump.Alpha
	}
	if total == 0 {
		return nil, errors.New("degenerate stump weights")
	}
	for i := range votes {
		votes[i] /= total
	}
	return votes, nil
}

func stumpPredict(s Stump, x []float64) int {
	if s.FeatureIdx < len(x) && x[s.FeatureIdx] <= s.Threshold {
		return s.LeftClass
	}
	return s.RightClass
}

// bestStump finds the (feature, threshold) with minimum weighted error when
// each side predicts its weighted-majority class. Returns the stump, its
// weighted error, and whether any valid split was found.
func bestStump(X [][]float64, y []int, weights []float64, numClasses int) (Stump, float64, bool) {
	featureCount := len(X[0])
	best := Stump{FeatureIdx: -1}
	bestErr := math.MaxFloat64

	values := make([]float64, len(X))
	for featureIdx := 0; featureIdx < featureCount; featureIdx++ {
		for i := range X {
			values[i] = X[i][featureIdx]
		}
		for _, threshold := range candidateThresholds(values) {
			leftW := make([]float64, numClasses)
			rightW := make([]float64, numClasses)
			for i := range X {
				if X[i][featureIdx] <= threshold {
					leftW[y[i]] += weights[i]
				} else {
					rightW[y[i]] += weights[i]
				}
			}
			leftClass, leftBest := argmaxWeighted(leftW)
			rightClass, rightBest := argmaxWeighted(rightW)

			var leftTotal, rightTotal float64
			for c := 0; c < numClasses; c++ {
				leftTotal += leftW[c]
				rightTotal += rightW[c]
			}
			werr := (leftTotal - leftBest) + (rightTotal - rightBest)
			if werr < bestErr {
				bestErr = werr
				best = Stump{
					FeatureIdx: featureIdx,
					Threshold:  threshold,
					LeftClass:  leftClass,
					RightClass: rightClass,
				}
			}
		}
	}
	if best.FeatureIdx == -1 {
		return best, 0, false
	}
	return best, bestErr, true
}

func argmaxWeighted(weights []float64) (int, float64) {
	best := 0
	for i, w := range weights {
		if w > weights[best] {
			best = i
		}
	}
	return best, weights[best]
}
