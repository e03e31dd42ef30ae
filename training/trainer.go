// Package training runs the full model-training pipeline: dataset assembly,
// split, optional cross-validation and hyperparameter search, fitting,
// evaluation and persistence.
package training

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"speakerid/dataset"
	"speakerid/logger"
	"speakerid/ml"
)

// SpeakerLabelsFile is the labels file written after every training run.
const SpeakerLabelsFile = "speaker_labels.txt"

const (
	defaultTestRatio = 0.2
	defaultSeed      = 42
)

// Config describes one training run.
type Config struct {
	DataDir   string
	ModelsDir string
	ModelType string
	// FeatureType is fixed to "mfcc"; anything else is coerced with a
	// warning, matching the training CLI contract.
	FeatureType string

	UseCV   bool
	CVFolds int

	UseTuning    bool
	TuningMethod string // grid or random
	NumIter      int    // randomized search budget

	Seed int64

	// Progress, when set, receives stage updates for live reporting.
	Progress func(stage, message string)
}

// Result is the structured outcome of a training run.
type Result struct {
	ModelType string
	ModelFile string
	Metadata  *ml.Metadata
	Samples   int
	Warnings  []string
	Duration  time.Duration
}

// Run executes the pipeline. The context is checked between stages: a
// cancelled run leaves the models directory untouched (model, metadata and
// labels are only written at the very end, metadata after the model file).
func Run(ctx context.Context, cfg Config) (*Result, error) {
	started := time.Now()
	result := &Result{ModelType: cfg.ModelType}

	if cfg.Seed == 0 {
		cfg.Seed = defaultSeed
	}
	opts := ml.DefaultOptions()
	opts.Seed = cfg.Seed

	// Reject unknown model types before any work happens.
	if _, err := ml.NewModel(cfg.ModelType, opts); err != nil {
		return nil, err
	}
	if ft := strings.ToLower(cfg.FeatureType); ft != "" && ft != "mfcc" {
		warning := fmt.Sprintf("feature type %q not supported for training, using mfcc", cfg.FeatureType)
		logger.L().Warn(warning)
		result.Warnings = append(result.Warnings, warning)
	}

	report(cfg, "dataset", "loading audio files")
	data, err := dataset.NewBuilder().Build(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	result.Samples = len(data.X)
	logger.L().Infow("dataset assembled",
		"samples", len(data.X), "features", data.FeatureDim, "speakers", len(data.Speakers))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report(cfg, "split", "splitting train/test")
	trainX, trainY, testX, testY := ml.StratifiedSplit(data.X, data.Labels, defaultTestRatio, cfg.Seed)

	var cvResult *ml.CVResult
	if cfg.UseCV {
		report(cfg, "cross_validation", "running cross-validation")
		folds := cfg.CVFolds
		if folds < 2 {
			folds = 5
		}
		cvResult, err = ml.CrossValidate(cfg.ModelType, opts, trainX, trainY, folds)
		if err != nil {
			return nil, fmt.Errorf("cross-validation: %w", err)
		}
		logger.L().Infow("cross-validation done",
			"mean", cvResult.Mean, "std", cvResult.Std, "folds", cvResult.Folds)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	var searchResult *ml.SearchResult
	if cfg.UseTuning {
		report(cfg, "tuning", "searching hyperparameters")
		folds := cfg.CVFolds
		if folds < 2 {
			folds = 5
		}
		opts, searchResult, err = ml.Search(cfg.ModelType, cfg.TuningMethod, opts, trainX, trainY, folds, cfg.NumIter)
		if err != nil {
			return nil, fmt.Errorf("hyperparameter search: %w", err)
		}
		if searchResult == nil {
			warning := fmt.Sprintf("no hyperparameter space defined for %s, tuning skipped", cfg.ModelType)
			logger.L().Warn(warning)
			result.Warnings = append(result.Warnings, warning)
		} else {
			logger.L().Infow("hyperparameter search done",
				"method", searchResult.Method, "best_score", searchResult.BestScore,
				"candidates", searchResult.Candidates)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	report(cfg, "fit", "training model")
	model, err := ml.NewModel(cfg.ModelType, opts)
	if err != nil {
		return nil, err
	}
	if err := model.Fit(trainX, trainY); err != nil {
		return nil, fmt.Errorf("fit %s: %w", cfg.ModelType, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report(cfg, "evaluate", "computing metrics")
	trainPred, err := predictAll(model, trainX)
	if err != nil {
		return nil, err
	}
	testPred, err := predictAll(model, testX)
	if err != nil {
		return nil, err
	}
	eval := ml.Evaluate(testPred, testY, model.Classes)
	eval.TrainAccuracy = ml.Accuracy(trainPred, trainY)

	meta := &ml.Metadata{
		ModelType:         cfg.ModelType,
		FeatureType:       "mfcc",
		FeatureShape:      data.FeatureDim,
		NumSpeakers:       len(data.Speakers),
		TestAccuracy:      eval.TestAccuracy,
		TrainAccuracy:     eval.TrainAccuracy,
		PrecisionMacro:    eval.PrecisionMacro,
		RecallMacro:       eval.RecallMacro,
		F1Macro:           eval.F1Macro,
		PrecisionWeighted: eval.PrecisionWeighted,
		RecallWeighted:    eval.RecallWeighted,
		F1Weighted:        eval.F1Weighted,
		ConfusionMatrix:   eval.ConfusionMatrix,
		Speakers:          data.Speakers,
		CrossValidation:   cvResult,
	}
	if searchResult != nil {
		meta.BestHyperparameters = searchResult.BestParams
		meta.TuningMethod = searchResult.Method
	}

	report(cfg, "persist", "saving model and metadata")
	if err := os.MkdirAll(cfg.ModelsDir, 0o755); err != nil {
		return nil, err
	}
	modelFile := ml.ModelFilename(cfg.ModelType)
	if err := model.Save(filepath.Join(cfg.ModelsDir, modelFile)); err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}
	if err := meta.Save(filepath.Join(cfg.ModelsDir, ml.MetadataFilename(cfg.ModelType))); err != nil {
		return nil, fmt.Errorf("save metadata: %w", err)
	}
	if err := writeSpeakerLabels(filepath.Join(cfg.ModelsDir, SpeakerLabelsFile), data.Speakers); err != nil {
		return nil, fmt.Errorf("save speaker labels: %w", err)
	}

	result.ModelFile = modelFile
	result.Metadata = meta
	result.Duration = time.Since(started)
	logger.L().Infow("training complete",
		"model", modelFile,
		"train_accuracy", eval.TrainAccuracy,
		"test_accuracy", eval.TestAccuracy,
		"duration", result.Duration)
	report(cfg, "done", "training complete")
	return result, nil
}

func predictAll(model *ml.Model, X [][]float64) ([]string, error) {
	predicted := make([]string, len(X))
	for i, x := range X {
		label, _, err := model.Predict(x)
		if err != nil {
			return nil, err
		}
		predicted[i] = label
	}
	return predicted, nil
}

func writeSpeakerLabels(path string, speakers []string) error {
	return os.WriteFile(path, []byte(strings.Join(speakers, "\n")), 0o644)
}

func report(cfg Config, stage, message string) {
	if cfg.Progress != nil {
		cfg.Progress(stage, message)
	}
}
