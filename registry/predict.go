package registry

import (
	"fmt"
	"math/rand"
	"sort"

	"speakerid/audio"
)

// Prediction is one ranked speaker candidate.
type Prediction struct {
	SpeakerID   string  `json:"speaker_id"`
	Confidence  float64 `json:"confidence"`
	SpeakerName string  `json:"speaker_name"`
}

// Result is the outcome of a prediction request. Error is set instead of
// failing the call when no usable model exists; Placeholder marks fabricated
// no-model predictions so they are never mistaken for real inference.
type Result struct {
	ModelUsed   string       `json:"model_used,omitempty"`
	Predictions []Prediction `json:"predictions"`
	TimestampMS float64      `json:"timestamp_ms,omitempty"`
	Error       string       `json:"error,omitempty"`
	Placeholder bool         `json:"placeholder,omitempty"`
}

// Predict ranks speakers for the given feature matrix. With an empty
// registry it returns the explicit placeholder mode: an error field plus
// min(topK, known speakers) fabricated candidates with confidence in
// [0.7, 0.95), keeping the API usable before any model is trained. With
// modelName empty the best loaded model is used.
func (r *Registry) Predict(features [][]float64, modelName string, topK int) Result {
	if topK <= 0 {
		topK = 3
	}
	flat := audio.Flatten(features)

	if r.Len() == 0 {
		return Result{
			Error:       "no models loaded",
			Predictions: r.placeholderPredictions(topK),
			Placeholder: true,
		}
	}

	if modelName == "" {
		best, ok := r.BestModel()
		if !ok {
			return Result{Error: "no models available", Predictions: []Prediction{}}
		}
		modelName = best
	}

	entry, ok := r.Entry(modelName)
	if !ok {
		return Result{
			Error:       fmt.Sprintf("model %s not found", modelName),
			Predictions: []Prediction{},
		}
	}

	probs, err := entry.Model.PredictProba(flat)
	if err != nil {
		return Result{Error: err.Error(), Predictions: []Prediction{}}
	}

	classes := entry.Model.Classes
	ranked := make([]int, len(probs))
	for i := range ranked {
		ranked[i] = i
	}
	// Stable sort keeps the model's class ordering for tied probabilities.
	sort.SliceStable(ranked, func(a, b int) bool {
		return probs[ranked[a]] > probs[ranked[b]]
	})

	if topK > len(ranked) {
		topK = len(ranked)
	}
	predictions := make([]Prediction, 0, topK)
	for _, idx := range ranked[:topK] {
		predictions = append(predictions, Prediction{
			SpeakerID:   classes[idx],
			Confidence:  probs[idx],
			SpeakerName: classes[idx],
		})
	}

	return Result{
		ModelUsed:   modelName,
		Predictions: predictions,
		TimestampMS: meanOf(flat) * 1000,
	}
}

func (r *Registry) placeholderPredictions(topK int) []Prediction {
	speakers := r.Speakers()
	count := topK
	if len(speakers) < count {
		count = len(speakers)
	}
	predictions := make([]Prediction, 0, count)
	for i := 0; i < count; i++ {
		predictions = append(predictions, Prediction{
			SpeakerID:   fmt.Sprintf("speaker_%02d", i+1),
			Confidence:  0.7 + rand.Float64()*0.25,
			SpeakerName: fmt.Sprintf("Speaker %d", i+1),
		})
	}
	return predictions
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
