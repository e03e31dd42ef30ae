package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"speakerid/audio"
	"speakerid/dataset"
	"speakerid/db"
	"speakerid/logger"
	"speakerid/ml"
	"speakerid/registry"
	"speakerid/training"
)

const (
	serviceName    = "speaker-identification-service"
	serviceVersion = "1.0.0"

	// minTrainFiles is the minimum upload count for one enrollment request.
	minTrainFiles = 3

	maxMultipartMemory = 32 << 20
)

type handlers struct {
	config    ServerConfig
	registry  *registry.Registry
	extractor *audio.Extractor
	cache     *audio.FeatureCache
	hub       *EventHub

	// training guards against concurrent training runs; the pipeline writes
	// shared files under the models directory.
	training atomic.Bool
	started  time.Time
}

func newHandlers(config ServerConfig, reg *registry.Registry, hub *EventHub) (*handlers, error) {
	cache, err := audio.NewFeatureCache(config.CacheSize)
	if err != nil {
		return nil, err
	}
	return &handlers{
		config:    config,
		registry:  reg,
		extractor: audio.NewExtractor(),
		cache:     cache,
		hub:       hub,
		started:   time.Now(),
	}, nil
}

func (h *handlers) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleRoot)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /models", h.handleModels)
	mux.HandleFunc("GET /metrics", h.handleMetrics)
	mux.HandleFunc("GET /history/training", h.handleTrainingHistory)
	mux.HandleFunc("GET /history/predictions", h.handlePredictionHistory)
	mux.HandleFunc("POST /audio-stats", h.handleAudioStats)
	mux.HandleFunc("POST /predict", h.handlePredict)
	mux.HandleFunc("POST /train", h.handleTrain)
	mux.HandleFunc("GET /ws/events", h.hub.handleEvents)
}

func (h *handlers) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":    serviceName,
		"version": serviceVersion,
		"status":  "running",
		"endpoints": []string{
			"GET /health",
			"GET /models",
			"GET /metrics",
			"GET /history/training",
			"GET /history/predictions",
			"POST /audio-stats",
			"POST /predict",
			"POST /train",
			"GET /ws/events",
		},
	})
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":         "ok",
		"models_loaded":  h.registry.Len(),
		"known_speakers": len(h.registry.Speakers()),
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	}
	if best, ok := h.registry.BestModel(); ok {
		response["best_model"] = best
	}
	writeJSON(w, http.StatusOK, response)
}

type modelInfo struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	NumClasses   int     `json:"num_classes"`
	TestAccuracy float64 `json:"test_accuracy,omitempty"`
}

func (h *handlers) handleModels(w http.ResponseWriter, r *http.Request) {
	names := h.registry.Models()
	models := make([]modelInfo, 0, len(names))
	for _, name := range names {
		entry, ok := h.registry.Entry(name)
		if !ok {
			continue
		}
		info := modelInfo{
			Name:       name,
			Type:       entry.Model.Type,
			NumClasses: len(entry.Model.Classes),
		}
		if entry.Metadata != nil {
			info.TestAccuracy = entry.Metadata.TestAccuracy
		}
		models = append(models, info)
	}

	response := map[string]interface{}{
		"models":   models,
		"speakers": h.registry.Speakers(),
	}
	if best, ok := h.registry.BestModel(); ok {
		response["best_model"] = best
	}
	writeJSON(w, http.StatusOK, response)
}

// handleMetrics reports the full evaluation metadata of every loaded model.
func (h *handlers) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics := make(map[string]*ml.Metadata)
	for _, name := range h.registry.Models() {
		entry, ok := h.registry.Entry(name)
		if !ok || entry.Metadata == nil {
			continue
		}
		metrics[name] = entry.Metadata
	}

	response := map[string]interface{}{"metrics": metrics}
	if best, ok := h.registry.BestModel(); ok {
		response["best_model"] = best
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *handlers) handleTrainingHistory(w http.ResponseWriter, r *http.Request) {
	runs, err := db.TrainingHistory(queryLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []db.TrainingRun{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs, "count": len(runs)})
}

func (h *handlers) handlePredictionHistory(w http.ResponseWriter, r *http.Request) {
	records, err := db.RecentPredictions(queryLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []db.PredictionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"predictions": records, "count": len(records)})
}

func (h *handlers) handleAudioStats(w http.ResponseWriter, r *http.Request) {
	content, filename, err := readUpload(r, "audio_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := h.features(content, filename, "mfcc")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("could not decode audio: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"filename":     filename,
		"stats":        entry.Stats,
		"preprocessed": entry.Preprocessed,
	})
}

type predictResponse struct {
	Filename     string      `json:"filename"`
	FeatureType  string      `json:"feature_type"`
	FeatureShape []int       `json:"features_shape"`
	AudioStats   audio.Stats `json:"audio_stats"`
	registry.Result
}

func (h *handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	content, filename, err := readUpload(r, "audio_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	featureType := strings.ToLower(r.FormValue("feature_type"))
	if featureType == "" {
		featureType = "mfcc"
	}
	modelName := r.FormValue("model_name")
	topK := 3
	if raw := r.FormValue("top_k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "top_k must be a positive integer")
			return
		}
		topK = parsed
	}

	entry, err := h.features(content, filename, featureType)
	if err != nil {
		if errors.Is(err, audio.ErrUnsupportedFeature) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported feature type %q", featureType))
			return
		}
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("could not extract features: %v", err))
		return
	}

	// A vector sized differently from what the model was trained on (a mel
	// upload against an mfcc-trained model) is a client error, not a
	// prediction.
	target := modelName
	if target == "" {
		target, _ = h.registry.BestModel()
	}
	if loaded, ok := h.registry.Entry(target); ok {
		if err := loaded.Model.ValidateInput(entry.Features); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	matrix := make([][]float64, entry.Frames)
	for i := 0; i < entry.Frames; i++ {
		matrix[i] = entry.Features[i*entry.Coeffs : (i+1)*entry.Coeffs]
	}
	result := h.registry.Predict(matrix, modelName, topK)

	if len(result.Predictions) > 0 {
		record := db.PredictionRecord{
			Filename:    filename,
			ModelUsed:   result.ModelUsed,
			SpeakerID:   result.Predictions[0].SpeakerID,
			Confidence:  result.Predictions[0].Confidence,
			Placeholder: result.Placeholder,
			PredictedAt: time.Now().UTC(),
		}
		if err := db.SavePrediction(record); err != nil {
			logger.L().Warnw("could not save prediction record", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, predictResponse{
		Filename:     filename,
		FeatureType:  featureType,
		FeatureShape: []int{entry.Frames, entry.Coeffs},
		AudioStats:   entry.Stats,
		Result:       result,
	})
}

// features returns cached features for the upload or extracts and caches them.
func (h *handlers) features(content []byte, filename, featureType string) (audio.CachedFeatures, error) {
	key := h.cache.Key(content, featureType)
	if entry, ok := h.cache.Get(key); ok {
		return entry, nil
	}

	samples, err := decodeUpload(content, filename)
	if err != nil {
		return audio.CachedFeatures{}, err
	}
	stats := audio.ComputeStats(samples)
	normalized := audio.Normalize(samples, audio.DurationMS)

	features, err := h.extractor.Extract(normalized, featureType)
	if err != nil {
		return audio.CachedFeatures{}, err
	}

	entry := audio.CachedFeatures{
		Features:     audio.Flatten(features),
		Frames:       len(features),
		Stats:        stats,
		Preprocessed: audio.ComputeStats(normalized),
	}
	if len(features) > 0 {
		entry.Coeffs = len(features[0])
	}
	h.cache.Add(key, entry)
	return entry, nil
}

type trainResponse struct {
	Status         string   `json:"status"`
	SpeakerName    string   `json:"speaker_name"`
	FilesSaved     int      `json:"files_saved"`
	ModelType      string   `json:"model_type"`
	FeatureType    string   `json:"feature_type"`
	ModelRetrained bool     `json:"model_retrained"`
	TestAccuracy   float64  `json:"test_accuracy"`
	NumSpeakers    int      `json:"num_speakers"`
	Warnings       []string `json:"warnings,omitempty"`
	DurationMS     int64    `json:"duration_ms"`
}

func (h *handlers) handleTrain(w http.ResponseWriter, r *http.Request) {
	if !h.training.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "training already in progress")
		return
	}
	defer h.training.Store(false)

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart form: %v", err))
		return
	}

	speaker := dataset.NormalizeSpeakerName(r.FormValue("speaker_name"))
	if speaker == "" {
		writeError(w, http.StatusBadRequest, "speaker_name is required")
		return
	}
	modelType := strings.ToLower(r.FormValue("model_type"))
	if modelType == "" {
		modelType = ml.TypeSVM
	}
	if !knownModelType(modelType) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown model type %q", modelType))
		return
	}
	featureType := r.FormValue("feature_type")

	files := r.MultipartForm.File["audio_files"]
	if len(files) < minTrainFiles {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("at least %d audio files are required, got %d", minTrainFiles, len(files)))
		return
	}

	saved, err := h.saveTrainingFiles(speaker, files)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("could not save audio files: %v", err))
		return
	}

	h.hub.Broadcast("training_started", map[string]interface{}{
		"speaker":    speaker,
		"model_type": modelType,
		"files":      len(saved),
	})

	ctx, cancel := context.WithTimeout(r.Context(), h.config.TrainTimeout)
	defer cancel()

	result, err := training.Run(ctx, training.Config{
		DataDir:     h.config.DataDir,
		ModelsDir:   h.config.ModelsDir,
		ModelType:   modelType,
		FeatureType: featureType,
		Progress: func(stage, message string) {
			h.hub.Broadcast("training_progress", map[string]string{
				"stage":   stage,
				"message": message,
			})
		},
	})
	if err != nil {
		h.hub.Broadcast("training_failed", map[string]string{"error": err.Error()})
		writeError(w, trainErrorStatus(err), fmt.Sprintf("training failed: %v", err))
		return
	}

	h.registry.Reload()

	run := db.TrainingRun{
		ModelName:     result.ModelFile,
		ModelType:     result.ModelType,
		TestAccuracy:  result.Metadata.TestAccuracy,
		TrainAccuracy: result.Metadata.TrainAccuracy,
		F1Macro:       result.Metadata.F1Macro,
		NumSpeakers:   result.Metadata.NumSpeakers,
		DataPoints:    result.Samples,
		DurationMS:    result.Duration.Milliseconds(),
		TrainedAt:     time.Now().UTC(),
	}
	if err := db.SaveTrainingRun(run); err != nil {
		logger.L().Warnw("could not save training run", "error", err)
	}

	h.hub.Broadcast("training_complete", map[string]interface{}{
		"model":         result.ModelFile,
		"test_accuracy": result.Metadata.TestAccuracy,
		"num_speakers":  result.Metadata.NumSpeakers,
	})

	writeJSON(w, http.StatusOK, trainResponse{
		Status:         "success",
		SpeakerName:    speaker,
		FilesSaved:     len(saved),
		ModelType:      result.ModelType,
		FeatureType:    result.Metadata.FeatureType,
		ModelRetrained: true,
		TestAccuracy:   result.Metadata.TestAccuracy,
		NumSpeakers:    result.Metadata.NumSpeakers,
		Warnings:       result.Warnings,
		DurationMS:     result.Duration.Milliseconds(),
	})
}

// saveTrainingFiles writes uploads into the speaker's data directory,
// numbering after any samples already enrolled. A failed write removes the
// files saved so far in this request.
func (h *handlers) saveTrainingFiles(speaker string, files []*multipart.FileHeader) ([]string, error) {
	speakerDir := filepath.Join(h.config.DataDir, speaker)
	if err := os.MkdirAll(speakerDir, 0o755); err != nil {
		return nil, err
	}

	existing := 0
	if entries, err := os.ReadDir(speakerDir); err == nil {
		existing = len(entries)
	}

	var saved []string
	cleanup := func() {
		for _, path := range saved {
			os.Remove(path)
		}
	}

	for i, header := range files {
		ext := strings.ToLower(filepath.Ext(header.Filename))
		if ext == "" {
			ext = ".wav"
		}
		path := filepath.Join(speakerDir, fmt.Sprintf("train_%03d%s", existing+i+1, ext))

		if err := copyUpload(header, path); err != nil {
			cleanup()
			return nil, err
		}
		saved = append(saved, path)
	}
	return saved, nil
}

func copyUpload(header *multipart.FileHeader, path string) error {
	src, err := header.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// readUpload returns the raw bytes and filename of a multipart file field.
func readUpload(r *http.Request, field string) ([]byte, string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", fmt.Errorf("missing file field %q", field)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("could not read upload: %w", err)
	}
	if len(content) == 0 {
		return nil, "", errors.New("uploaded file is empty")
	}
	return content, header.Filename, nil
}

// decodeUpload materializes the upload to a temp file so the decoder (and
// ffmpeg for non-WAV containers) can read it, and guarantees its removal.
func decodeUpload(content []byte, filename string) ([]float64, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".wav"
	}
	tmp, err := os.CreateTemp("", "upload-*"+ext)
	if err != nil {
		return nil, err
	}
	path := tmp.Name()
	defer os.Remove(path)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}
	return audio.Load(path)
}

func trainErrorStatus(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, dataset.ErrTooFewSpeakers),
		errors.Is(err, dataset.ErrNoSpeakers),
		errors.Is(err, dataset.ErrNoSamples),
		errors.Is(err, dataset.ErrRootNotFound),
		errors.Is(err, ml.ErrUnknownModelType):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func knownModelType(modelType string) bool {
	for _, t := range ml.ModelTypes() {
		if t == modelType {
			return true
		}
	}
	return false
}

func queryLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			return parsed
		}
	}
	return 0
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L().Warnw("could not encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
