package ml

import "math"

// CVResult reports stratified k-fold accuracy scores.
type CVResult struct {
	Scores []float64 `json:"cv_scores"`
	Mean   float64   `json:"cv_mean"`
	Std    float64   `json:"cv_std"`
	Folds  int       `json:"cv_folds"`
}

// CrossValidate trains one model per fold and scores accuracy on the held-out
// fold. The final model fit is unaffected; this is reporting only.
func CrossValidate(modelType string, opts Options, X [][]float64, labels []string, folds int) (*CVResult, error) {
	if folds < 2 {
		folds = 5
	}
	assignment := StratifiedKFold(labels, folds, opts.Seed)

	scores := make([]float64, 0, folds)
	for fold := 0; fold < folds; fold++ {
		var trainX [][]float64
		var trainY []string
		var testX [][]float64
		var testY []string
		for i, f := range assignment {
			if f == fold {
				testX = append(testX, X[i])
				testY = append(testY, labels[i])
			} else {
				trainX = append(trainX, X[i])
				trainY = append(trainY, labels[i])
			}
		}
		if len(testX) == 0 || len(trainX) == 0 {
			continue
		}

		model, err := NewModel(modelType, opts)
		if err != nil {
			return nil, err
		}
		if err := model.Fit(trainX, trainY); err != nil {
			return nil, err
		}

		predicted := make([]string, len(testX))
		for i, x := range testX {
			label, _, err := model.Predict(x)
			if err != nil {
				return nil, err
			}
			predicted[i] = label
		}
		scores = append(scores, Accuracy(predicted, testY))
	}

	result := &CVResult{Scores: scores, Folds: folds}
	if len(scores) == 0 {
		return result, nil
	}
	for _, s := range scores {
		result.Mean += s
	}
	result.Mean /= float64(len(scores))
	var sq float64
	for _, s := range scores {
		d := s - result.Mean
		sq += d * d
	}
	result.Std = math.Sqrt(sq / float64(len(scores)))
	return result, nil
}
