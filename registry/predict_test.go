package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"speakerid/ml"
)

func TestPredictEmptyRegistryPlaceholders(t *testing.T) {
	dir := t.TempDir()
	labels := []string{"s1", "s2", "s3", "s4", "s5"}
	if err := os.WriteFile(filepath.Join(dir, SpeakerLabelsFile), []byte(strings.Join(labels, "\n")), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	reg := New(dir)
	reg.LoadSpeakerLabels()

	result := reg.Predict([][]float64{{1, 2}, {3, 4}}, "", 3)

	if result.Error == "" {
		t.Error("expected an error field with no models loaded")
	}
	if !result.Placeholder {
		t.Error("placeholder flag not set")
	}
	if len(result.Predictions) != 3 {
		t.Fatalf("got %d placeholder predictions, want 3", len(result.Predictions))
	}
	for i, p := range result.Predictions {
		if p.SpeakerID != fmt.Sprintf("speaker_%02d", i+1) {
			t.Errorf("placeholder id = %s", p.SpeakerID)
		}
		if p.Confidence < 0.7 || p.Confidence >= 0.95 {
			t.Errorf("placeholder confidence %v outside [0.7, 0.95)", p.Confidence)
		}
		if p.SpeakerName != fmt.Sprintf("Speaker %d", i+1) {
			t.Errorf("placeholder name = %s", p.SpeakerName)
		}
	}
}

func TestPredictEmptyRegistryCappedBySpeakerCount(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, SpeakerLabelsFile), []byte("only\nme"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	reg := New(dir)
	reg.LoadSpeakerLabels()

	result := reg.Predict([][]float64{{0}}, "", 5)
	if len(result.Predictions) != 2 {
		t.Errorf("got %d predictions, want 2 (capped by known speakers)", len(result.Predictions))
	}
}

func TestPredictEmptyRegistryNoSpeakers(t *testing.T) {
	reg := New(t.TempDir())
	result := reg.Predict([][]float64{{0}}, "", 3)
	if len(result.Predictions) != 0 {
		t.Errorf("got %d predictions with no known speakers", len(result.Predictions))
	}
	if !result.Placeholder || result.Error == "" {
		t.Errorf("expected placeholder error result, got %+v", result)
	}
}

func TestPredictWithModel(t *testing.T) {
	dir := t.TempDir()
	saveModel(t, dir, ml.TypeRandomForest, 0.9, true)

	reg := New(dir)
	reg.LoadAllAvailable()

	// Flattens to bob's 2-D centroid.
	features := [][]float64{{4}, {4}}
	result := reg.Predict(features, "", 2)

	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if result.Placeholder {
		t.Fatal("real prediction flagged as placeholder")
	}
	if result.ModelUsed != ml.ModelFilename(ml.TypeRandomForest) {
		t.Errorf("model used = %s", result.ModelUsed)
	}
	if len(result.Predictions) != 2 {
		t.Fatalf("got %d predictions, want 2", len(result.Predictions))
	}
	if result.Predictions[0].SpeakerID != "bob" {
		t.Errorf("top prediction = %s, want bob", result.Predictions[0].SpeakerID)
	}
	if result.Predictions[0].Confidence < result.Predictions[1].Confidence {
		t.Error("predictions not sorted by confidence")
	}
	if result.TimestampMS != 4000 {
		t.Errorf("timestamp = %v, want mean(features)*1000 = 4000", result.TimestampMS)
	}
}

func TestPredictTopKClamped(t *testing.T) {
	dir := t.TempDir()
	saveModel(t, dir, ml.TypeSVM, 0.9, true)

	reg := New(dir)
	reg.LoadAllAvailable()

	result := reg.Predict([][]float64{{0, 0}}, "", 10)
	if len(result.Predictions) != 2 {
		t.Errorf("got %d predictions, want 2 (class count)", len(result.Predictions))
	}
}

func TestPredictDimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	saveModel(t, dir, ml.TypeRandomForest, 0.9, true)

	reg := New(dir)
	reg.LoadAllAvailable()

	// The model is trained on 2-D vectors; this flattens to 3 values.
	result := reg.Predict([][]float64{{1, 2, 3}}, "", 3)
	if result.Error == "" || len(result.Predictions) != 0 {
		t.Errorf("expected an error result, got %+v", result)
	}
	if result.Placeholder {
		t.Error("dimension mismatch must not produce placeholders")
	}
}

func TestPredictUnknownModelName(t *testing.T) {
	dir := t.TempDir()
	saveModel(t, dir, ml.TypeSVM, 0.9, true)

	reg := New(dir)
	reg.LoadAllAvailable()

	result := reg.Predict([][]float64{{0, 0}}, "nope.json", 3)
	if result.Error == "" || len(result.Predictions) != 0 {
		t.Errorf("expected an error result, got %+v", result)
	}
	if result.Placeholder {
		t.Error("missing model must not produce placeholders")
	}
}
