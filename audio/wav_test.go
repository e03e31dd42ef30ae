package audio

import (
	"math"
	"path/filepath"
	"testing"
)

func TestWAVRoundTrip(t *testing.T) {
	samples := sineWave(440, 0.8, 8000)
	path := filepath.Join(t.TempDir(), "tone.wav")
	writeWAVFile(t, path, samples, SampleRate)

	decoded, err := DecodeWAV(path, SampleRate)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("len = %d, want %d", len(decoded), len(samples))
	}
	for i := range samples {
		if math.Abs(decoded[i]-samples[i]) > 1e-3 {
			t.Fatalf("sample %d differs: %v vs %v", i, decoded[i], samples[i])
		}
	}
}

func TestDecodeWAVResamples(t *testing.T) {
	const sourceRate = 8000
	samples := make([]float64, sourceRate) // 1s at 8kHz
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*100*float64(i)/sourceRate)
	}
	path := filepath.Join(t.TempDir(), "slow.wav")
	writeWAVFile(t, path, samples, sourceRate)

	decoded, err := DecodeWAV(path, SampleRate)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	want := SampleRate // still 1s of audio at the target rate
	if math.Abs(float64(len(decoded)-want)) > 2 {
		t.Fatalf("resampled len = %d, want about %d", len(decoded), want)
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, err := decodeWAVBytes([]byte("definitely not a wav file, far too short anyway"), SampleRate); err == nil {
		t.Fatal("expected error for non-WAV payload")
	}
	if _, err := decodeWAVBytes([]byte("xx"), SampleRate); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}

func TestResampleLinearIdentity(t *testing.T) {
	samples := []float64{0, 0.5, 1}
	out := resampleLinear(samples, SampleRate, SampleRate)
	if len(out) != len(samples) {
		t.Fatalf("identity resample changed length")
	}
}
