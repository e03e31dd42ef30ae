// Package registry holds the loaded speaker models, their metadata and the
// known speaker labels, and answers predictions against them.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"speakerid/logger"
	"speakerid/ml"
)

// ErrModelNotFound is returned when a requested model file is absent.
var ErrModelNotFound = errors.New("model not found")

// SpeakerLabelsFile is the labels file read from the models directory.
const SpeakerLabelsFile = "speaker_labels.txt"

// Entry is one loaded model with its optional metadata.
type Entry struct {
	Model    *ml.Model
	Metadata *ml.Metadata
}

// Registry is the in-process model store. It is rebuilt from disk at startup
// and after each training run; readers see either the old or the new snapshot,
// never a partially loaded one.
type Registry struct {
	modelsDir string

	mu       sync.RWMutex
	entries  map[string]*Entry
	order    []string // load order, used for ties and the no-metadata fallback
	speakers []string
}

// New creates an empty registry over a models directory.
func New(modelsDir string) *Registry {
	return &Registry{
		modelsDir: modelsDir,
		entries:   make(map[string]*Entry),
	}
}

// ModelsDir returns the directory this registry loads from.
func (r *Registry) ModelsDir() string {
	return r.modelsDir
}

// LoadModel deserializes one persisted model into the registry, keyed by
// filename. A missing model file is an error; a missing metadata sidecar is
// tolerated and logged.
func (r *Registry) LoadModel(filename string) error {
	path := filepath.Join(r.modelsDir, filename)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", ErrModelNotFound, path)
	}

	model, err := ml.LoadModel(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", filename, err)
	}

	entry := &Entry{Model: model}
	metaPath := path + ".meta"
	if _, err := os.Stat(metaPath); err == nil {
		meta, err := ml.LoadMetadata(metaPath)
		if err != nil {
			logger.L().Warnw("could not load model metadata", "model", filename, "error", err)
		} else {
			entry.Metadata = meta
		}
	} else {
		logger.L().Warnw("no metadata sidecar for model", "model", filename)
	}

	r.mu.Lock()
	if _, exists := r.entries[filename]; !exists {
		r.order = append(r.order, filename)
	}
	r.entries[filename] = entry
	r.mu.Unlock()

	logger.L().Infow("model loaded", "model", filename, "type", model.Type, "classes", len(model.Classes))
	return nil
}

// LoadAllAvailable scans the models directory for every filename matching the
// known model-type patterns and loads each. Per-file failures are logged and
// do not abort the scan. Returns the number of models loaded.
func (r *Registry) LoadAllAvailable() int {
	var loaded int
	for _, modelType := range ml.ModelTypes() {
		pattern := filepath.Join(r.modelsDir, modelType+"_speaker_model*.json")
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, match := range matches {
			if strings.HasSuffix(match, ".meta") {
				continue
			}
			filename := filepath.Base(match)
			if err := r.LoadModel(filename); err != nil {
				logger.L().Warnw("could not load model", "model", filename, "error", err)
				continue
			}
			loaded++
		}
	}
	if loaded == 0 {
		logger.L().Info("no models found to load")
	}
	return loaded
}

// LoadSpeakerLabels reads the speaker-label file. Absence yields an empty
// list, not an error.
func (r *Registry) LoadSpeakerLabels() {
	path := filepath.Join(r.modelsDir, SpeakerLabelsFile)
	payload, err := os.ReadFile(path)
	if err != nil {
		logger.L().Info("speaker labels file not found")
		r.mu.Lock()
		r.speakers = nil
		r.mu.Unlock()
		return
	}

	var speakers []string
	for _, line := range strings.Split(string(payload), "\n") {
		if label := strings.TrimSpace(line); label != "" {
			speakers = append(speakers, label)
		}
	}
	r.mu.Lock()
	r.speakers = speakers
	r.mu.Unlock()
	logger.L().Infow("speaker labels loaded", "count", len(speakers))
}

// Reload rebuilds the registry from disk into a fresh snapshot and swaps it
// in atomically, so concurrent readers never observe a half-loaded set.
// Returns the number of models in the new snapshot.
func (r *Registry) Reload() int {
	fresh := New(r.modelsDir)
	count := fresh.LoadAllAvailable()
	fresh.LoadSpeakerLabels()

	r.mu.Lock()
	r.entries = fresh.entries
	r.order = fresh.order
	r.speakers = fresh.speakers
	r.mu.Unlock()
	return count
}

// BestModel returns the loaded model with the highest metadata test accuracy.
// Ties and entries without metadata fall back to load order; an empty
// registry returns ok=false.
func (r *Registry) BestModel() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.order) == 0 {
		return "", false
	}

	best := ""
	bestAccuracy := -1.0
	for _, name := range r.order {
		entry := r.entries[name]
		accuracy := 0.0
		if entry.Metadata != nil {
			accuracy = entry.Metadata.TestAccuracy
		}
		if accuracy > bestAccuracy {
			bestAccuracy = accuracy
			best = name
		}
	}
	return best, true
}

// Unload removes a model from the registry; no-op if absent.
func (r *Registry) Unload(filename string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[filename]; !ok {
		return
	}
	delete(r.entries, filename)
	for i, name := range r.order {
		if name == filename {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	logger.L().Infow("model unloaded", "model", filename)
}

// Models returns the loaded model filenames in load order.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Entry returns the entry for a loaded model.
func (r *Registry) Entry(filename string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[filename]
	return entry, ok
}

// Speakers returns the known speaker labels.
func (r *Registry) Speakers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.speakers...)
}

// Len returns the number of loaded models.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
