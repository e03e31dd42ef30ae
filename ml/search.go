package ml

import (
	"fmt"
	"math/rand"
	"sort"
)

// Search methods.
const (
	SearchGrid   = "grid"
	SearchRandom = "random"
)

// SearchResult summarizes a hyperparameter search.
type SearchResult struct {
	Method     string                 `json:"method"`
	BestParams map[string]interface{} `json:"best_params"`
	BestScore  float64                `json:"best_score"`
	Candidates int                    `json:"candidates"`
}

// SearchSpace returns the per-model-type parameter grid. An empty map means
// no search space is defined and tuning should be skipped.
func SearchSpace(modelType string) map[string][]interface{} {
	switch modelType {
	case TypeSVM:
		return map[string][]interface{}{
			"C":     {0.1, 1.0, 10.0, 100.0},
			"gamma": {0.0, 0.001, 0.01, 0.1}, // 0 selects the "scale" default
		}
	case TypeRandomForest:
		return map[string][]interface{}{
			"n_estimators":      {50, 100, 200},
			"max_depth":         {10, 20, 30},
			"min_samples_split": {2, 5, 10},
			"min_samples_leaf":  {1, 2, 4},
		}
	case TypeNeuralNetwork:
		return map[string][]interface{}{
			"hidden_layer_sizes": {[]int{64}, []int{128}, []int{128, 64}},
			"alpha":              {0.0001, 0.001, 0.01},
			"learning_rate_init": {0.0001, 0.001, 0.01},
		}
	case TypeAdaBoost:
		return map[string][]interface{}{
			"n_estimators":  {25, 50, 100},
			"learning_rate": {0.5, 1.0, 1.5, 2.0},
		}
	default:
		return nil
	}
}

// Search runs a grid or randomized search over the model type's parameter
// space, scoring each candidate by stratified k-fold CV accuracy, and returns
// the best options. If the space is empty, the base options are returned with
// a nil result so the caller can surface a warning.
func Search(modelType, method string, base Options, X [][]float64, labels []string, folds, nIter int) (Options, *SearchResult, error) {
	space := SearchSpace(modelType)
	if len(space) == 0 {
		return base, nil, nil
	}
	if folds < 2 {
		folds = 5
	}
	if folds > 5 {
		folds = 5
	}

	keys := make([]string, 0, len(space))
	for k := range space {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var candidates []map[string]interface{}
	switch method {
	case SearchRandom:
		if nIter <= 0 {
			nIter = 20
		}
		rng := rand.New(rand.NewSource(base.Seed))
		for i := 0; i < nIter; i++ {
			candidate := make(map[string]interface{}, len(keys))
			for _, k := range keys {
				values := space[k]
				candidate[k] = values[rng.Intn(len(values))]
			}
			candidates = append(candidates, candidate)
		}
	case SearchGrid, "":
		method = SearchGrid
		candidates = enumerateGrid(keys, space)
	default:
		return base, nil, fmt.Errorf("unknown search method: %s", method)
	}

	result := &SearchResult{Method: method, BestScore: -1, Candidates: len(candidates)}
	bestOpts := base
	for _, candidate := range candidates {
		opts, err := applyParams(modelType, base, candidate)
		if err != nil {
			return base, nil, err
		}
		cv, err := CrossValidate(modelType, opts, X, labels, folds)
		if err != nil {
			return base, nil, err
		}
		if cv.Mean > result.BestScore {
			result.BestScore = cv.Mean
			result.BestParams = candidate
			bestOpts = opts
		}
	}
	return bestOpts, result, nil
}

func enumerateGrid(keys []string, space map[string][]interface{}) []map[string]interface{} {
	candidates := []map[string]interface{}{{}}
	for _, key := range keys {
		var expanded []map[string]interface{}
		for _, candidate := range candidates {
			for _, value := range space[key] {
				next := make(map[string]interface{}, len(candidate)+1)
				for k, v := range candidate {
					next[k] = v
				}
				next[key] = value
				expanded = append(expanded, next)
			}
		}
		candidates = expanded
	}
	return candidates
}

func applyParams(modelType string, base Options, params map[string]interface{}) (Options, error) {
	opts := base
	for key, value := range params {
		switch key {
		case "C":
			opts.C = asFloat(value)
		case "gamma":
			opts.Gamma = asFloat(value)
		case "n_estimators":
			if modelType == TypeAdaBoost {
				opts.NumEstimators = asInt(value)
			} else {
				opts.NumTrees = asInt(value)
			}
		case "max_depth":
			opts.MaxDepth = asInt(value)
		case "min_samples_split":
			opts.MinSamplesSplit = asInt(value)
		case "min_samples_leaf":
			opts.MinSamplesLeaf = asInt(value)
		case "hidden_layer_sizes":
			layers, ok := value.([]int)
			if !ok {
				return opts, fmt.Errorf("hidden_layer_sizes: unexpected value %v", value)
			}
			opts.HiddenLayers = layers
		case "alpha":
			opts.Alpha = asFloat(value)
		case "learning_rate_init":
			opts.LearningRate = asFloat(value)
		case "learning_rate":
			opts.BoostLearningRate = asFloat(value)
		default:
			return opts, fmt.Errorf("unknown search parameter: %s", key)
		}
	}
	return opts, nil
}

func asFloat(value interface{}) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func asInt(value interface{}) int {
	switch v := value.(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
