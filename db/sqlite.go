// Package db persists training-run and prediction history in SQLite.
package db

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var database *sql.DB

// TrainingRun is one row of training history.
type TrainingRun struct {
	ID            int64     `json:"id"`
	ModelName     string    `json:"model_name"`
	ModelType     string    `json:"model_type"`
	TestAccuracy  float64   `json:"test_accuracy"`
	TrainAccuracy float64   `json:"train_accuracy"`
	F1Macro       float64   `json:"f1_macro"`
	NumSpeakers   int       `json:"num_speakers"`
	DataPoints    int       `json:"data_points"`
	DurationMS    int64     `json:"duration_ms"`
	TrainedAt     time.Time `json:"trained_at"`
}

// PredictionRecord is one row of prediction history.
type PredictionRecord struct {
	ID          int64     `json:"id"`
	Filename    string    `json:"filename"`
	ModelUsed   string    `json:"model_used"`
	SpeakerID   string    `json:"speaker_id"`
	Confidence  float64   `json:"confidence"`
	Placeholder bool      `json:"placeholder"`
	PredictedAt time.Time `json:"predicted_at"`
}

// InitDB opens the SQLite database and creates the schema.
func InitDB(path string) error {
	var err error
	database, err = sql.Open("sqlite3", path)
	if err != nil {
		return err
	}

	query := `
    CREATE TABLE IF NOT EXISTS training_runs (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_name VARCHAR(64),
        model_type VARCHAR(32),
        test_accuracy REAL,
        train_accuracy REAL,
        f1_macro REAL,
        num_speakers INTEGER,
        data_points INTEGER,
        duration_ms INTEGER,
        trained_at DATETIME
    );
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        filename VARCHAR(255),
        model_used VARCHAR(64),
        speaker_id VARCHAR(64),
        confidence REAL,
        placeholder INTEGER,
        predicted_at DATETIME
    );`
	_, err = database.Exec(query)
	return err
}

// Close closes the database handle.
func Close() error {
	if database == nil {
		return nil
	}
	return database.Close()
}

// SaveTrainingRun appends one training-history row.
func SaveTrainingRun(run TrainingRun) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	_, err := database.Exec(`
        INSERT INTO training_runs
            (model_name, model_type, test_accuracy, train_accuracy, f1_macro,
             num_speakers, data_points, duration_ms, trained_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ModelName, run.ModelType, run.TestAccuracy, run.TrainAccuracy,
		run.F1Macro, run.NumSpeakers, run.DataPoints, run.DurationMS, run.TrainedAt)
	return err
}

// SavePrediction appends one prediction-history row (the top candidate of a
// prediction request).
func SavePrediction(record PredictionRecord) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	_, err := database.Exec(`
        INSERT INTO predictions
            (filename, model_used, speaker_id, confidence, placeholder, predicted_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		record.Filename, record.ModelUsed, record.SpeakerID, record.Confidence,
		record.Placeholder, record.PredictedAt)
	return err
}

// TrainingHistory returns the most recent training runs, newest first.
func TrainingHistory(limit int) ([]TrainingRun, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := database.Query(`
        SELECT id, model_name, model_type, test_accuracy, train_accuracy,
               f1_macro, num_speakers, data_points, duration_ms, trained_at
        FROM training_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []TrainingRun
	for rows.Next() {
		var run TrainingRun
		if err := rows.Scan(&run.ID, &run.ModelName, &run.ModelType,
			&run.TestAccuracy, &run.TrainAccuracy, &run.F1Macro,
			&run.NumSpeakers, &run.DataPoints, &run.DurationMS, &run.TrainedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RecentPredictions returns the most recent prediction records, newest first.
func RecentPredictions(limit int) ([]PredictionRecord, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := database.Query(`
        SELECT id, filename, model_used, speaker_id, confidence, placeholder, predicted_at
        FROM predictions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []PredictionRecord
	for rows.Next() {
		var record PredictionRecord
		if err := rows.Scan(&record.ID, &record.Filename, &record.ModelUsed,
			&record.SpeakerID, &record.Confidence, &record.Placeholder,
			&record.PredictedAt); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
