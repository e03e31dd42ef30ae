// Command train_model trains a speaker-identification model from enrolled
// audio and writes it, its metadata and the speaker labels to the models
// directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"speakerid/logger"
	"speakerid/ml"
	"speakerid/training"
)

func main() {
	modelType := flag.String("model", ml.TypeSVM, "model type: "+strings.Join(ml.ModelTypes(), ", "))
	featureType := flag.String("feature", "mfcc", "feature type")
	dataDir := flag.String("data-dir", "data/raw", "directory with one subdirectory of audio per speaker")
	modelsDir := flag.String("models-dir", "models", "output directory for model, metadata and labels")
	useCV := flag.Bool("cv", false, "run cross-validation before fitting")
	cvFolds := flag.Int("cv-folds", 5, "cross-validation fold count")
	tune := flag.Bool("tune", false, "run hyperparameter search before fitting")
	tuningMethod := flag.String("tuning-method", "grid", "search method: grid or random")
	numIter := flag.Int("n-iter", 10, "candidate budget for randomized search")
	seed := flag.Int64("seed", 42, "random seed")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	if err := logger.Init(logger.Config{Level: *logLevel}); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := training.Run(ctx, training.Config{
		DataDir:      *dataDir,
		ModelsDir:    *modelsDir,
		ModelType:    *modelType,
		FeatureType:  *featureType,
		UseCV:        *useCV,
		CVFolds:      *cvFolds,
		UseTuning:    *tune,
		TuningMethod: *tuningMethod,
		NumIter:      *numIter,
		Seed:         *seed,
		Progress: func(stage, message string) {
			logger.L().Infow(message, "stage", stage)
		},
	})
	if err != nil {
		logger.L().Errorw("training failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("model saved to %s/%s\n", *modelsDir, result.ModelFile)
	fmt.Printf("train accuracy %.4f, test accuracy %.4f, %d samples, %d speakers\n",
		result.Metadata.TrainAccuracy, result.Metadata.TestAccuracy,
		result.Samples, result.Metadata.NumSpeakers)
	for _, warning := range result.Warnings {
		fmt.Printf("warning: %s\n", warning)
	}
}
