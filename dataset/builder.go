// Package dataset assembles labeled training data from a directory tree of
// per-speaker audio samples.
package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"speakerid/audio"
	"speakerid/logger"
)

// Audio extensions considered when scanning speaker directories.
var audioExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".m4a":  true,
	".webm": true,
	".ogg":  true,
}

// Insufficient-data errors. Training must abort before any fit attempt when
// one of these is returned.
var (
	ErrRootNotFound   = errors.New("data directory not found")
	ErrNoSpeakers     = errors.New("no speaker directories found")
	ErrNoSamples      = errors.New("no valid audio samples found")
	ErrTooFewSpeakers = errors.New("need at least 2 different speakers")
)

// Dataset is a flat feature matrix with per-sample speaker labels.
type Dataset struct {
	X          [][]float64
	Labels     []string
	FeatureDim int
	Speakers   []string // sorted distinct labels
}

// Builder walks speaker directories and extracts MFCC features per file.
type Builder struct {
	extractor *audio.Extractor
}

// NewBuilder creates a builder with a shared feature extractor.
func NewBuilder() *Builder {
	return &Builder{extractor: audio.NewExtractor()}
}

// NormalizeSpeakerName canonicalizes a speaker label (trimmed, NFC) so that
// directory names and form input produce identical labels.
func NormalizeSpeakerName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// Build enumerates immediate subdirectories of rootDir (one per speaker),
// extracts flattened MFCC features per audio file and returns the assembled
// dataset. Per-file failures are logged and skipped; structural problems
// (missing root, no speakers, empty dataset, fewer than 2 labels) fail the
// whole build.
func (b *Builder) Build(rootDir string) (*Dataset, error) {
	info, err := os.Stat(rootDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootNotFound, rootDir)
	}

	entries, err := os.ReadDir(rootDir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rootDir, err)
	}

	var speakerDirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			speakerDirs = append(speakerDirs, entry.Name())
		}
	}
	sort.Strings(speakerDirs)
	if len(speakerDirs) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSpeakers, rootDir)
	}

	dataset := &Dataset{}
	seen := make(map[string]bool)

	for _, dir := range speakerDirs {
		speaker := NormalizeSpeakerName(dir)
		files, err := listAudioFiles(filepath.Join(rootDir, dir))
		if err != nil {
			logger.L().Warnw("skipping speaker directory", "speaker", speaker, "error", err)
			continue
		}
		if len(files) == 0 {
			logger.L().Warnw("no audio files for speaker", "speaker", speaker)
			continue
		}

		var added int
		for _, file := range files {
			features, err := b.extractFile(file)
			if err != nil {
				logger.L().Warnw("failed to process audio file", "file", file, "error", err)
				continue
			}
			if dataset.FeatureDim == 0 {
				dataset.FeatureDim = len(features)
			} else if len(features) != dataset.FeatureDim {
				logger.L().Warnw("feature dimension mismatch, skipping file",
					"file", file, "got", len(features), "want", dataset.FeatureDim)
				continue
			}
			dataset.X = append(dataset.X, features)
			dataset.Labels = append(dataset.Labels, speaker)
			added++
		}
		if added > 0 && !seen[speaker] {
			seen[speaker] = true
			dataset.Speakers = append(dataset.Speakers, speaker)
		}
		logger.L().Infow("speaker loaded", "speaker", speaker, "files", len(files), "samples", added)
	}

	if len(dataset.X) == 0 {
		return nil, ErrNoSamples
	}
	if len(dataset.Speakers) < 2 {
		return nil, ErrTooFewSpeakers
	}
	sort.Strings(dataset.Speakers)
	return dataset, nil
}

func (b *Builder) extractFile(path string) ([]float64, error) {
	samples, err := audio.Load(path)
	if err != nil {
		return nil, err
	}
	samples = audio.Normalize(samples, audio.DurationMS)
	features := b.extractor.ExtractMFCC(samples)
	return audio.Flatten(features), nil
}

func listAudioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if audioExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
