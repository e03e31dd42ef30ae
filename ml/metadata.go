package ml

import (
	"encoding/json"
	"fmt"
	"os"
)

// Metadata is the sidecar record written next to each persisted model. It is
// written once per training run and never mutated; the registry reads it for
// best-model ranking and reporting.
type Metadata struct {
	ModelType    string `json:"model_type"`
	FeatureType  string `json:"feature_type"`
	FeatureShape int    `json:"feature_shape"`
	NumSpeakers  int    `json:"num_speakers"`

	TestAccuracy      float64 `json:"test_accuracy"`
	TrainAccuracy     float64 `json:"train_accuracy"`
	PrecisionMacro    float64 `json:"precision_macro"`
	RecallMacro       float64 `json:"recall_macro"`
	F1Macro           float64 `json:"f1_macro"`
	PrecisionWeighted float64 `json:"precision_weighted"`
	RecallWeighted    float64 `json:"recall_weighted"`
	F1Weighted        float64 `json:"f1_weighted"`
	ConfusionMatrix   [][]int `json:"confusion_matrix"`

	Speakers []string `json:"speakers"`

	CrossValidation     *CVResult              `json:"cross_validation,omitempty"`
	BestHyperparameters map[string]interface{} `json:"best_hyperparameters,omitempty"`
	TuningMethod        string                 `json:"hyperparameter_tuning_method,omitempty"`
}

// MetadataFilename returns the sidecar filename for a model type.
func MetadataFilename(modelType string) string {
	return ModelFilename(modelType) + ".meta"
}

// Save writes the metadata record as indented JSON.
func (m *Metadata) Save(path string) error {
	payload, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

// LoadMetadata reads a metadata sidecar file.
func LoadMetadata(path string) (*Metadata, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(payload, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &meta, nil
}
