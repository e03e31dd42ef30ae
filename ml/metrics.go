package ml

// Evaluation is the full metric set computed after a training run.
type Evaluation struct {
	TrainAccuracy     float64 `json:"train_accuracy"`
	TestAccuracy      float64 `json:"test_accuracy"`
	PrecisionMacro    float64 `json:"precision_macro"`
	RecallMacro       float64 `json:"recall_macro"`
	F1Macro           float64 `json:"f1_macro"`
	PrecisionWeighted float64 `json:"precision_weighted"`
	RecallWeighted    float64 `json:"recall_weighted"`
	F1Weighted        float64 `json:"f1_weighted"`
	ConfusionMatrix   [][]int `json:"confusion_matrix"`
}

// Accuracy is the fraction of predictions matching the truth.
func Accuracy(predicted, truth []string) float64 {
	if len(truth) == 0 {
		return 0
	}
	var correct int
	for i := range truth {
		if predicted[i] == truth[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(truth))
}

// Evaluate computes precision/recall/F1 in macro and weighted averages plus
// the confusion matrix. Classes must be the sorted label set; rows of the
// confusion matrix are truth, columns are prediction. Division by zero in any
// per-class metric yields 0, not an error.
func Evaluate(predicted, truth []string, classes []string) Evaluation {
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}

	k := len(classes)
	matrix := make([][]int, k)
	for i := range matrix {
		matrix[i] = make([]int, k)
	}
	for i := range truth {
		t, tok := index[truth[i]]
		p, pok := index[predicted[i]]
		if tok && pok {
			matrix[t][p]++
		}
	}

	eval := Evaluation{ConfusionMatrix: matrix, TestAccuracy: Accuracy(predicted, truth)}

	total := float64(len(truth))
	for c := 0; c < k; c++ {
		var tp, fp, fn int
		for other := 0; other < k; other++ {
			if other == c {
				tp = matrix[c][c]
				continue
			}
			fn += matrix[c][other]
			fp += matrix[other][c]
		}

		var precision, recall, f1 float64
		if tp+fp > 0 {
			precision = float64(tp) / float64(tp+fp)
		}
		if tp+fn > 0 {
			recall = float64(tp) / float64(tp+fn)
		}
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}

		support := float64(tp + fn)
		eval.PrecisionMacro += precision / float64(k)
		eval.RecallMacro += recall / float64(k)
		eval.F1Macro += f1 / float64(k)
		if total > 0 {
			eval.PrecisionWeighted += precision * support / total
			eval.RecallWeighted += recall * support / total
			eval.F1Weighted += f1 * support / total
		}
	}
	return eval
}
