package ml

import (
	"errors"
	"math"
	"math/rand"
)

// NeuralNetwork is a fully connected multilayer perceptron with ReLU hidden
// layers and a softmax output, trained with Adam and early stopping on a
// held-out validation fraction.
type NeuralNetwork struct {
	// Weights[l][j][i] connects input i of layer l to unit j; Biases[l][j]
	// is unit j's bias.
	Weights    [][][]float64 `json:"weights"`
	Biases     [][]float64   `json:"biases"`
	NumClasses int           `json:"num_classes"`

	hiddenLayers []int
	alpha        float64 // L2 penalty
	learningRate float64
	seed         int64
}

const (
	mlpMaxEpochs          = 500
	mlpBatchSize          = 32
	mlpValidationFraction = 0.1
	mlpPatience           = 10
	mlpTolerance          = 1e-4
)

// NewNeuralNetwork creates an untrained MLP from options.
func NewNeuralNetwork(opts Options) *NeuralNetwork {
	hidden := opts.HiddenLayers
	if len(hidden) == 0 {
		hidden = []int{128, 64}
	}
	learningRate := opts.LearningRate
	if learningRate <= 0 {
		learningRate = 0.001
	}
	return &NeuralNetwork{
		hiddenLayers: hidden,
		alpha:        opts.Alpha,
		learningRate: learningRate,
		seed:         opts.Seed,
	}
}

// Fit trains the network. A validation slice is held out for early stopping;
// training stops once validation loss fails to improve for mlpPatience epochs.
func (nn *NeuralNetwork) Fit(X [][]float64, y []int, numClasses int) error {
	if len(X) == 0 || len(X) != len(y) {
		return errors.New("features and labels size mismatch")
	}
	nn.NumClasses = numClasses

	rng := rand.New(rand.NewSource(nn.seed))
	sizes := append([]int{len(X[0])}, nn.hiddenLayers...)
	sizes = append(sizes, numClasses)
	nn.initWeights(sizes, rng)

	// Hold out a validation slice.
	perm := rng.Perm(len(X))
	valSize := int(float64(len(X)) * mlpValidationFraction)
	if valSize < 1 {
		valSize = 1
	}
	if valSize >= len(X) {
		valSize = len(X) - 1
	}
	valIdx := perm[:valSize]
	trainIdx := perm[valSize:]

	adam := newAdamState(nn.Weights, nn.Biases)

	bestValLoss := math.MaxFloat64
	badEpochs := 0

	for epoch := 0; epoch < mlpMaxEpochs; epoch++ {
		// Shuffle the training slice each epoch.
		for i := len(trainIdx) - 1; i > 0; i-- {
			j := rng.Intn(i + 1)
			trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i]
		}

		for start := 0; start < len(trainIdx); start += mlpBatchSize {
			end := start + mlpBatchSize
			if end > len(trainIdx) {
				end = len(trainIdx)
			}
			nn.trainBatch(X, y, trainIdx[start:end], adam)
		}

		valLoss := nn.meanLoss(X, y, valIdx)
		if valLoss < bestValLoss-mlpTolerance {
			bestValLoss = valLoss
			badEpochs = 0
		} else {
			badEpochs++
			if badEpochs >= mlpPatience {
				break
			}
		}
	}
	return nil
}

// PredictProba runs a forward pass and returns the softmax output.
func (nn *NeuralNetwork) PredictProba(x []float64) ([]float64, error) {
	if len(nn.Weights) == 0 {
		return nil, errors.New("model not trained")
	}
	activations := nn.forward(x)
	return activations[len(activations)-1], nil
}

func (nn *NeuralNetwork) initWeights(sizes []int, rng *rand.Rand) {
	layers := len(sizes) - 1
	nn.Weights = make([][][]float64, layers)
	nn.Biases = make([][]float64, layers)
	for l := 0; l < layers; l++ {
		in, out := sizes[l], sizes[l+1]
		scale := math.Sqrt(2.0 / float64(in))
		nn.Weights[l] = make([][]float64, out)
		nn.Biases[l] = make([]float64, out)
		for j := 0; j < out; j++ {
			row := make([]float64, in)
			for i := range row {
				row[i] = rng.NormFloat64() * scale
			}
			nn.Weights[l][j] = row
		}
	}
}

// forward returns the activations of every layer; the last entry is the
// softmax output.
func (nn *NeuralNetwork) forward(x []float64) [][]float64 {
	activations := make([][]float64, len(nn.Weights)+1)
	activations[0] = x
	for l := range nn.Weights {
		in := activations[l]
		out := make([]float64, len(nn.Weights[l]))
		for j, row := range nn.Weights[l] {
			sum := nn.Biases[l][j]
			for i, w := range row {
				sum += w * in[i]
			}
			if l < len(nn.Weights)-1 && sum < 0 {
				sum = 0 // ReLU
			}
			out[j] = sum
		}
		if l == len(nn.Weights)-1 {
			softmaxInPlace(out)
		}
		activations[l+1] = out
	}
	return activations
}

func (nn *NeuralNetwork) trainBatch(X [][]float64, y []int, batch []int, adam *adamState) {
	gradW, gradB := zeroLike(nn.Weights, nn.Biases)

	for _, idx := range batch {
		activations := nn.forward(X[idx])
		// Output delta for softmax + cross entropy.
		last := len(nn.Weights) - 1
		delta := append([]float64(nil), activations[last+1]...)
		delta[y[idx]] -= 1

		for l := last; l >= 0; l-- {
			in := activations[l]
			for j, d := range delta {
				gradB[l][j] += d
				row := gradW[l][j]
				for i, v := range in {
					row[i] += d * v
				}
			}
			if l == 0 {
				break
			}
			prev := make([]float64, len(activations[l]))
			for j, d := range delta {
				for i, w := range nn.Weights[l][j] {
					prev[i] += d * w
				}
			}
			// ReLU derivative on the hidden activation.
			for i, v := range activations[l] {
				if v <= 0 {
					prev[i] = 0
				}
			}
			delta = prev
		}
	}

	scale := 1.0 / float64(len(batch))
	adam.step(nn.Weights, nn.Biases, gradW, gradB, scale, nn.alpha, nn.learningRate)
}

func (nn *NeuralNetwork) meanLoss(X [][]float64, y []int, indices []int) float64 {
	if len(indices) == 0 {
		return 0
	}
	var loss float64
	for _, idx := range indices {
		activations := nn.forward(X[idx])
		p := activations[len(activations)-1][y[idx]]
		if p < 1e-12 {
			p = 1e-12
		}
		loss -= math.Log(p)
	}
	return loss / float64(len(indices))
}

func softmaxInPlace(logits []float64) {
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}
	var sum float64
	for i, v := range logits {
		logits[i] = math.Exp(v - max)
		sum += logits[i]
	}
	for i := range logits {
		logits[i] /= sum
	}
}

func zeroLike(weights [][][]float64, biases [][]float64) ([][][]float64, [][]float64) {
	gradW := make([][][]float64, len(weights))
	gradB := make([][]float64, len(biases))
	for l := range weights {
		gradW[l] = make([][]float64, len(weights[l]))
		for j := range weights[l] {
			gradW[l][j] = make([]float64, len(weights[l][j]))
		}
		gradB[l] = make([]float64, len(biases[l]))
	}
	return gradW, gradB
}

// adamState holds the Adam optimizer moments.
type adamState struct {
	mW, vW [][][]float64
	mB, vB [][]float64
	t      int
}

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
)

func newAdamState(weights [][][]float64, biases [][]float64) *adamState {
	mW, mB := zeroLike(weights, biases)
	vW, vB := zeroLike(weights, biases)
	return &adamState{mW: mW, vW: vW, mB: mB, vB: vB}
}

func (a *adamState) step(weights [][][]float64, biases [][]float64, gradW [][][]float64, gradB [][]float64, scale, l2, lr float64) {
	a.t++
	corr1 := 1 - math.Pow(adamBeta1, float64(a.t))
	corr2 := 1 - math.Pow(adamBeta2, float64(a.t))

	for l := range weights {
		for j := range weights[l] {
			for i := range weights[l][j] {
				g := gradW[l][j][i]*scale + l2*weights[l][j][i]
				a.mW[l][j][i] = adamBeta1*a.mW[l][j][i] + (1-adamBeta1)*g
				a.vW[l][j][i] = adamBeta2*a.vW[l][j][i] + (1-adamBeta2)*g*g
				mHat := a.mW[l][j][i] / corr1
				vHat := a.vW[l][j][i] / corr2
				weights[l][j][i] -= lr * mHat / (math.Sqrt(vHat) + adamEpsilon)
			}
			g := gradB[l][j] * scale
			a.mB[l][j] = adamBeta1*a.mB[l][j] + (1-adamBeta1)*g
			a.vB[l][j] = adamBeta2*a.vB[l][j] + (1-adamBeta2)*g*g
			mHat := a.mB[l][j] / corr1
			vHat := a.vB[l][j] / corr2
			biases[l][j] -= lr * mHat / (math.Sqrt(vHat) + adamEpsilon)
		}
	}
}
