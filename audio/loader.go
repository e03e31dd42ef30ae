// Package audio loads audio files and extracts features for speaker
// identification.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	// SampleRate is the fixed processing rate for all audio.
	SampleRate = 16000
	// DurationMS is the fixed clip length every waveform is normalized to.
	DurationMS = 3000
)

const decodeTimeout = 2 * time.Minute

// Stats holds descriptive statistics of a waveform.
type Stats struct {
	DurationMS float64 `json:"duration_ms"`
	SampleRate int     `json:"sample_rate"`
	Mean       float64 `json:"mean"`
	Std        float64 `json:"std"`
	MaxAbs     float64 `json:"max"`
}

// Load decodes an audio file to mono float64 samples at SampleRate. WAV files
// are parsed natively; every other container goes through ffmpeg.
func Load(path string) ([]float64, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		samples, err := DecodeWAV(path, SampleRate)
		if err == nil {
			return samples, nil
		}
		// Some uploads carry a .wav name over a different container; let
		// ffmpeg have a go before failing.
	}
	return decodeWithFFmpeg(path, SampleRate)
}

func decodeWithFFmpeg(path string, sampleRate int) ([]float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), decodeTimeout)
	defer cancel()

	args := []string{
		"-hide_banner", "-v", "error",
		"-i", path,
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-f", "f32le",
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var out bytes.Buffer
	var errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(errBuf.String())
		if detail != "" {
			return nil, fmt.Errorf("ffmpeg decode: %w: %s", err, detail)
		}
		return nil, fmt.Errorf("ffmpeg decode: %w", err)
	}

	raw := out.Bytes()
	if len(raw)%4 != 0 {
		return nil, errors.New("ffmpeg decode: unexpected byte length")
	}
	n := len(raw) / 4
	if n == 0 {
		return nil, errors.New("ffmpeg decode: no audio data")
	}
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		u := uint32(raw[i*4]) | uint32(raw[i*4+1])<<8 | uint32(raw[i*4+2])<<16 | uint32(raw[i*4+3])<<24
		samples[i] = float64(math.Float32frombits(u))
	}
	return samples, nil
}

// Normalize pads or trims samples to exactly durationMS worth of audio. Longer
// clips keep their temporal center; shorter clips are zero-padded evenly with
// the odd sample going to the trailing side.
func Normalize(samples []float64, durationMS int) []float64 {
	target := SampleRate * durationMS / 1000

	switch {
	case len(samples) > target:
		start := len(samples)/2 - target/2
		out := make([]float64, target)
		copy(out, samples[start:start+target])
		return out
	case len(samples) < target:
		padding := target - len(samples)
		left := padding / 2
		out := make([]float64, target)
		copy(out[left:], samples)
		return out
	default:
		return samples
	}
}

// ComputeStats returns descriptive statistics for a waveform.
func ComputeStats(samples []float64) Stats {
	stats := Stats{
		DurationMS: float64(len(samples)) / float64(SampleRate) * 1000,
		SampleRate: SampleRate,
	}
	if len(samples) == 0 {
		return stats
	}

	var sum float64
	for _, s := range samples {
		sum += s
		if abs := math.Abs(s); abs > stats.MaxAbs {
			stats.MaxAbs = abs
		}
	}
	stats.Mean = sum / float64(len(samples))

	var sqSum float64
	for _, s := range samples {
		d := s - stats.Mean
		sqSum += d * d
	}
	stats.Std = math.Sqrt(sqSum / float64(len(samples)))
	return stats
}
