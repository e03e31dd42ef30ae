package db

import (
	"path/filepath"
	"testing"
	"time"
)

func initTestDB(t *testing.T) {
	t.Helper()
	if err := InitDB(filepath.Join(t.TempDir(), "test.db")); err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	t.Cleanup(func() {
		Close()
		database = nil
	})
}

func TestTrainingRunRoundTrip(t *testing.T) {
	initTestDB(t)

	run := TrainingRun{
		ModelName:    "svm_speaker_model.json",
		ModelType:    "svm",
		TestAccuracy: 0.91,
		NumSpeakers:  3,
		DataPoints:   42,
		DurationMS:   1500,
		TrainedAt:    time.Now().UTC(),
	}
	if err := SaveTrainingRun(run); err != nil {
		t.Fatalf("SaveTrainingRun: %v", err)
	}

	runs, err := TrainingHistory(10)
	if err != nil {
		t.Fatalf("TrainingHistory: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	if runs[0].ModelType != "svm" || runs[0].TestAccuracy != 0.91 || runs[0].NumSpeakers != 3 {
		t.Errorf("run mangled: %+v", runs[0])
	}
}

func TestTrainingHistoryNewestFirst(t *testing.T) {
	initTestDB(t)

	for i, name := range []string{"first", "second", "third"} {
		run := TrainingRun{ModelName: name, TestAccuracy: float64(i), TrainedAt: time.Now().UTC()}
		if err := SaveTrainingRun(run); err != nil {
			t.Fatalf("SaveTrainingRun: %v", err)
		}
	}

	runs, err := TrainingHistory(2)
	if err != nil {
		t.Fatalf("TrainingHistory: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want limit of 2", len(runs))
	}
	if runs[0].ModelName != "third" || runs[1].ModelName != "second" {
		t.Errorf("order wrong: %s, %s", runs[0].ModelName, runs[1].ModelName)
	}
}

func TestPredictionRoundTrip(t *testing.T) {
	initTestDB(t)

	record := PredictionRecord{
		Filename:    "clip.wav",
		ModelUsed:   "svm_speaker_model.json",
		SpeakerID:   "alice",
		Confidence:  0.87,
		Placeholder: false,
		PredictedAt: time.Now().UTC(),
	}
	if err := SavePrediction(record); err != nil {
		t.Fatalf("SavePrediction: %v", err)
	}

	records, err := RecentPredictions(10)
	if err != nil {
		t.Fatalf("RecentPredictions: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].SpeakerID != "alice" || records[0].Confidence != 0.87 {
		t.Errorf("record mangled: %+v", records[0])
	}
}

func TestUninitializedDatabase(t *testing.T) {
	if err := SaveTrainingRun(TrainingRun{}); err == nil {
		t.Error("expected error before InitDB")
	}
	if _, err := TrainingHistory(5); err == nil {
		t.Error("expected error before InitDB")
	}
	if _, err := RecentPredictions(5); err == nil {
		t.Error("expected error before InitDB")
	}
}
