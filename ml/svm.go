package ml

import (
	"errors"
	"math"
	"math/rand"
)

// SVM is a one-vs-rest RBF-kernel support vector machine trained with
// kernelized Pegasos. Class probabilities come from a softmax over the
// per-class margins, which preserves the margin ranking.
type SVM struct {
	SupportX [][]float64 `json:"support_x"`
	// Coeffs[k][j] is the weight of support vector j in class k's decision
	// function.
	Coeffs     [][]float64 `json:"coeffs"`
	Gamma      float64     `json:"gamma"`
	NumClasses int         `json:"num_classes"`

	c     float64
	gamma float64
	seed  int64
}

// NewSVM creates an untrained SVM from options.
func NewSVM(opts Options) *SVM {
	c := opts.C
	if c <= 0 {
		c = 1.0
	}
	return &SVM{c: c, gamma: opts.Gamma, seed: opts.Seed}
}

// Fit trains one binary Pegasos problem per class. Every training sample is
// retained as a potential support vector; zero-coefficient vectors are kept
// to keep indexing simple at this data scale.
func (s *SVM) Fit(X [][]float64, y []int, numClasses int) error {
	if len(X) == 0 || len(X) != len(y) {
		return errors.New("features and labels size mismatch")
	}
	if numClasses < 2 {
		return errors.New("need at least 2 classes")
	}

	n := len(X)
	s.NumClasses = numClasses
	s.SupportX = X
	s.Gamma = s.resolveGamma(X)

	lambda := 1.0 / (s.c * float64(n))
	iterations := 20 * n
	if iterations < 1000 {
		iterations = 1000
	}

	// Precompute the kernel matrix once; n is small for enrolled-speaker
	// datasets and each class reuses it.
	kernel := make([][]float64, n)
	for i := range kernel {
		row := make([]float64, n)
		for j := range row {
			row[j] = rbfKernel(X[i], X[j], s.Gamma)
		}
		kernel[i] = row
	}

	rng := rand.New(rand.NewSource(s.seed))
	s.Coeffs = make([][]float64, numClasses)
	for class := 0; class < numClasses; class++ {
		alpha := make([]float64, n)
		sign := make([]float64, n)
		for i := range sign {
			if y[i] == class {
				sign[i] = 1
			} else {
				sign[i] = -1
			}
		}

		for t := 1; t <= iterations; t++ {
			i := rng.Intn(n)
			var margin float64
			for j := range alpha {
				if alpha[j] != 0 {
					margin += alpha[j] * sign[j] * kernel[j][i]
				}
			}
			margin *= sign[i] / (lambda * float64(t))
			if margin < 1 {
				alpha[i]++
			}
		}

		coeffs := make([]float64, n)
		scale := 1.0 / (lambda * float64(iterations))
		for j := range coeffs {
			coeffs[j] = alpha[j] * sign[j] * scale
		}
		s.Coeffs[class] = coeffs
	}
	return nil
}

// PredictProba evaluates the per-class decision values and softmaxes them.
func (s *SVM) PredictProba(x []float64) ([]float64, error) {
	if len(s.Coeffs) == 0 {
		return nil, errors.New("model not trained")
	}

	kernelRow := make([]float64, len(s.SupportX))
	for j, sv := range s.SupportX {
		kernelRow[j] = rbfKernel(sv, x, s.Gamma)
	}

	margins := make([]float64, s.NumClasses)
	for class, coeffs := range s.Coeffs {
		var sum float64
		for j, c := range coeffs {
			if c != 0 {
				sum += c * kernelRow[j]
			}
		}
		margins[class] = sum
	}
	softmaxInPlace(margins)
	return margins, nil
}

// resolveGamma implements the "scale" default: 1 / (n_features * var(X)).
func (s *SVM) resolveGamma(X [][]float64) float64 {
	if s.gamma > 0 {
		return s.gamma
	}

	var sum, sqSum float64
	var count int
	for _, row := range X {
		for _, v := range row {
			sum += v
			sqSum += v * v
			count++
		}
	}
	if count == 0 {
		return 1.0
	}
	mean := sum / float64(count)
	variance := sqSum/float64(count) - mean*mean
	if variance <= 0 {
		return 1.0
	}
	return 1.0 / (float64(len(X[0])) * variance)
}

func rbfKernel(a, b []float64, gamma float64) float64 {
	var dist float64
	for i := range a {
		d := a[i] - b[i]
		dist += d * d
	}
	return math.Exp(-gamma * dist)
}
