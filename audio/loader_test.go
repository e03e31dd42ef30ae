package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizePadsShortClip(t *testing.T) {
	samples := make([]float64, SampleRate) // 1s of constant signal
	for i := range samples {
		samples[i] = 0.5
	}

	out := Normalize(samples, DurationMS)
	target := SampleRate * DurationMS / 1000
	if len(out) != target {
		t.Fatalf("expected %d samples, got %d", target, len(out))
	}

	left := (target - len(samples)) / 2
	if out[left-1] != 0 {
		t.Errorf("expected zero padding before the clip, got %v", out[left-1])
	}
	if out[left] != 0.5 {
		t.Errorf("expected clip to start at offset %d, got %v", left, out[left])
	}
	if out[left+len(samples)-1] != 0.5 {
		t.Errorf("expected clip to end at offset %d", left+len(samples)-1)
	}
	if out[left+len(samples)] != 0 {
		t.Errorf("expected zero padding after the clip")
	}
}

func TestNormalizeTrimsLongClipToCenter(t *testing.T) {
	samples := make([]float64, 4*SampleRate) // 4s ramp
	for i := range samples {
		samples[i] = float64(i)
	}

	out := Normalize(samples, DurationMS)
	target := SampleRate * DurationMS / 1000
	if len(out) != target {
		t.Fatalf("expected %d samples, got %d", target, len(out))
	}

	start := len(samples)/2 - target/2
	if out[0] != float64(start) {
		t.Errorf("expected crop to start at sample %d, got value %v", start, out[0])
	}
	if out[target-1] != float64(start+target-1) {
		t.Errorf("expected crop to keep the temporal center")
	}
}

func TestNormalizeExactLengthUnchanged(t *testing.T) {
	target := SampleRate * DurationMS / 1000
	samples := make([]float64, target)
	samples[0] = 0.25

	out := Normalize(samples, DurationMS)
	if len(out) != target {
		t.Fatalf("expected %d samples, got %d", target, len(out))
	}
	if out[0] != 0.25 {
		t.Errorf("expected samples to pass through unchanged")
	}
}

func TestComputeStats(t *testing.T) {
	stats := ComputeStats([]float64{1, -1, 1, -1})

	if stats.Mean != 0 {
		t.Errorf("mean = %v, want 0", stats.Mean)
	}
	if stats.Std != 1 {
		t.Errorf("std = %v, want 1", stats.Std)
	}
	if stats.MaxAbs != 1 {
		t.Errorf("max = %v, want 1", stats.MaxAbs)
	}
	wantDuration := 4.0 / float64(SampleRate) * 1000
	if math.Abs(stats.DurationMS-wantDuration) > 1e-9 {
		t.Errorf("duration = %v, want %v", stats.DurationMS, wantDuration)
	}
	if stats.SampleRate != SampleRate {
		t.Errorf("sample rate = %d, want %d", stats.SampleRate, SampleRate)
	}
}

func TestComputeStatsEmpty(t *testing.T) {
	stats := ComputeStats(nil)
	if stats.DurationMS != 0 || stats.Mean != 0 || stats.Std != 0 || stats.MaxAbs != 0 {
		t.Errorf("empty waveform should yield zero stats, got %+v", stats)
	}
}

func TestLoadWAV(t *testing.T) {
	samples := sineWave(440, 0.5, SampleRate/2)
	path := filepath.Join(t.TempDir(), "clip.wav")
	writeWAVFile(t, path, samples, SampleRate)

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(loaded))
	}
	for i := range samples {
		if math.Abs(loaded[i]-samples[i]) > 1e-3 {
			t.Fatalf("sample %d differs: %v vs %v", i, loaded[i], samples[i])
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.wav")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func sineWave(freq, amplitude float64, n int) []float64 {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(SampleRate))
	}
	return samples
}

func writeWAVFile(t *testing.T, path string, samples []float64, sampleRate int) {
	t.Helper()
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer file.Close()
	if err := WriteWAV(file, samples, sampleRate); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
}
