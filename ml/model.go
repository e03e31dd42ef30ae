// Package ml implements the classifiers used for speaker identification,
// along with dataset splitting, evaluation metrics and hyperparameter search.
package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

// Supported model types.
const (
	TypeSVM           = "svm"
	TypeRandomForest  = "random_forest"
	TypeNeuralNetwork = "neural_network"
	TypeAdaBoost      = "adaboost"
)

// ErrUnknownModelType is returned for model types outside the supported set.
var ErrUnknownModelType = errors.New("unknown model type")

// ErrFeatureDimension is returned when an input vector's length does not
// match the dimension the model was trained on.
var ErrFeatureDimension = errors.New("feature dimension mismatch")

// ModelTypes lists the supported model types in filename-pattern order.
func ModelTypes() []string {
	return []string{TypeSVM, TypeRandomForest, TypeNeuralNetwork, TypeAdaBoost}
}

// ModelFilename returns the persisted filename for a model type.
func ModelFilename(modelType string) string {
	return modelType + "_speaker_model.json"
}

// Classifier is the contract every model type implements. Fit consumes class
// indices in [0, numClasses); PredictProba returns one probability per class.
type Classifier interface {
	Fit(X [][]float64, y []int, numClasses int) error
	PredictProba(x []float64) ([]float64, error)
}

// Options carries the tunable hyperparameters across all model types. Only
// the fields relevant to a given type are consulted.
type Options struct {
	// svm
	C     float64
	Gamma float64 // <= 0 means "scale": 1 / (n_features * var(X))

	// random forest
	NumTrees        int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int

	// neural network
	HiddenLayers []int
	Alpha        float64
	LearningRate float64

	// adaboost
	NumEstimators     int
	BoostLearningRate float64

	Seed int64
}

// DefaultOptions returns the fixed hyperparameters used when no tuning is
// requested.
func DefaultOptions() Options {
	return Options{
		C:                 1.0,
		Gamma:             0, // scale
		NumTrees:          100,
		MaxDepth:          20,
		MinSamplesSplit:   2,
		MinSamplesLeaf:    1,
		HiddenLayers:      []int{128, 64},
		Alpha:             0.001,
		LearningRate:      0.001,
		NumEstimators:     50,
		BoostLearningRate: 1.0,
		Seed:              42,
	}
}

// Model pairs a fitted classifier with its type tag and class list. The class
// list is the authoritative label set for prediction output.
type Model struct {
	Type    string
	Classes []string
	// FeatureDim is the input vector length seen at fit time; prediction
	// rejects vectors of any other length. Zero means unknown (legacy files).
	FeatureDim int

	clf Classifier
}

// NewModel creates an untrained model of the given type.
func NewModel(modelType string, opts Options) (*Model, error) {
	clf, err := newClassifier(modelType, opts)
	if err != nil {
		return nil, err
	}
	return &Model{Type: modelType, clf: clf}, nil
}

func newClassifier(modelType string, opts Options) (Classifier, error) {
	switch modelType {
	case TypeSVM:
		return NewSVM(opts), nil
	case TypeRandomForest:
		return NewRandomForest(opts), nil
	case TypeNeuralNetwork:
		return NewNeuralNetwork(opts), nil
	case TypeAdaBoost:
		return NewAdaBoost(opts), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownModelType, modelType)
	}
}

// Fit trains the model on string-labeled samples. Classes become the sorted
// distinct labels.
func (m *Model) Fit(X [][]float64, labels []string) error {
	if len(X) == 0 || len(X) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	dim := len(X[0])
	for i, x := range X {
		if len(x) != dim {
			return fmt.Errorf("%w: sample %d has %d features, want %d", ErrFeatureDimension, i, len(x), dim)
		}
	}

	classes := distinctSorted(labels)
	if len(classes) < 2 {
		return errors.New("need at least 2 classes")
	}
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	y := make([]int, len(labels))
	for i, label := range labels {
		y[i] = index[label]
	}

	if err := m.clf.Fit(X, y, len(classes)); err != nil {
		return err
	}
	m.Classes = classes
	m.FeatureDim = dim
	return nil
}

// ValidateInput checks x against the trained feature dimension.
func (m *Model) ValidateInput(x []float64) error {
	if m.FeatureDim > 0 && len(x) != m.FeatureDim {
		return fmt.Errorf("%w: got %d features, want %d", ErrFeatureDimension, len(x), m.FeatureDim)
	}
	return nil
}

// PredictProba returns one probability per class, aligned with Classes.
func (m *Model) PredictProba(x []float64) ([]float64, error) {
	if m.clf == nil || len(m.Classes) == 0 {
		return nil, errors.New("model not trained")
	}
	if err := m.ValidateInput(x); err != nil {
		return nil, err
	}
	return m.clf.PredictProba(x)
}

// Predict returns the most likely class label and its probability.
func (m *Model) Predict(x []float64) (string, float64, error) {
	probs, err := m.PredictProba(x)
	if err != nil {
		return "", 0, err
	}
	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	return m.Classes[best], probs[best], nil
}

// modelFile is the on-disk envelope: a type tag, the class list and the
// type-specific parameters.
type modelFile struct {
	ModelType  string          `json:"model_type"`
	Classes    []string        `json:"classes"`
	FeatureDim int             `json:"feature_dim"`
	Params     json.RawMessage `json:"params"`
}

// Save writes the fitted model as JSON.
func (m *Model) Save(path string) error {
	if m.clf == nil || len(m.Classes) == 0 {
		return errors.New("model not trained")
	}
	params, err := json.Marshal(m.clf)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(modelFile{
		ModelType:  m.Type,
		Classes:    m.Classes,
		FeatureDim: m.FeatureDim,
		Params:     params,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

// LoadModel reads a persisted model from path, dispatching on its type tag.
func LoadModel(path string) (*Model, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file modelFile
	if err := json.Unmarshal(payload, &file); err != nil {
		return nil, fmt.Errorf("decode model file: %w", err)
	}

	var clf Classifier
	switch file.ModelType {
	case TypeSVM:
		clf = &SVM{}
	case TypeRandomForest:
		clf = &RandomForest{}
	case TypeNeuralNetwork:
		clf = &NeuralNetwork{}
	case TypeAdaBoost:
		clf = &AdaBoost{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownModelType, file.ModelType)
	}
	if err := json.Unmarshal(file.Params, clf); err != nil {
		return nil, fmt.Errorf("decode model params: %w", err)
	}

	return &Model{Type: file.ModelType, Classes: file.Classes, FeatureDim: file.FeatureDim, clf: clf}, nil
}

func distinctSorted(labels []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, label := range labels {
		if !seen[label] {
			seen[label] = true
			out = append(out, label)
		}
	}
	sort.Strings(out)
	return out
}
