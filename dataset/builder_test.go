package dataset

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"speakerid/audio"
)

// writeClips synthesizes WAV clips for one speaker, each a sine tone at a
// slightly different frequency.
func writeClips(t *testing.T, root, speaker string, baseFreq float64, count int) {
	t.Helper()
	dir := filepath.Join(root, speaker)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for i := 0; i < count; i++ {
		freq := baseFreq + float64(i)*10
		samples := make([]float64, audio.SampleRate) // 1s per clip
		for j := range samples {
			samples[j] = 0.5 * math.Sin(2*math.Pi*freq*float64(j)/float64(audio.SampleRate))
		}
		path := filepath.Join(dir, filepath.Base(dir)+"_"+string(rune('a'+i))+".wav")
		file, err := os.Create(path)
		if err != nil {
			t.Fatalf("create %s: %v", path, err)
		}
		if err := audio.WriteWAV(file, samples, audio.SampleRate); err != nil {
			file.Close()
			t.Fatalf("WriteWAV: %v", err)
		}
		file.Close()
	}
}

func TestBuild(t *testing.T) {
	root := t.TempDir()
	writeClips(t, root, "alice", 200, 3)
	writeClips(t, root, "bob", 1200, 3)

	data, err := NewBuilder().Build(root)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(data.X) != 6 {
		t.Fatalf("samples = %d, want 6", len(data.X))
	}
	if len(data.Labels) != 6 {
		t.Fatalf("labels = %d, want 6", len(data.Labels))
	}
	if data.FeatureDim == 0 {
		t.Fatal("feature dimension not set")
	}
	for i, x := range data.X {
		if len(x) != data.FeatureDim {
			t.Fatalf("sample %d has dimension %d, want %d", i, len(x), data.FeatureDim)
		}
	}
	if len(data.Speakers) != 2 || data.Speakers[0] != "alice" || data.Speakers[1] != "bob" {
		t.Errorf("speakers = %v, want [alice bob]", data.Speakers)
	}

	counts := map[string]int{}
	for _, label := range data.Labels {
		counts[label]++
	}
	if counts["alice"] != 3 || counts["bob"] != 3 {
		t.Errorf("label counts = %v", counts)
	}
}

func TestBuildIgnoresNonAudioFiles(t *testing.T) {
	root := t.TempDir()
	writeClips(t, root, "alice", 200, 2)
	writeClips(t, root, "bob", 900, 2)
	if err := os.WriteFile(filepath.Join(root, "alice", "notes.txt"), []byte("not audio"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := NewBuilder().Build(root)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(data.X) != 4 {
		t.Errorf("samples = %d, want 4", len(data.X))
	}
}

func TestBuildMissingRoot(t *testing.T) {
	_, err := NewBuilder().Build(filepath.Join(t.TempDir(), "absent"))
	if !errors.Is(err, ErrRootNotFound) {
		t.Fatalf("expected ErrRootNotFound, got %v", err)
	}
}

func TestBuildNoSpeakers(t *testing.T) {
	_, err := NewBuilder().Build(t.TempDir())
	if !errors.Is(err, ErrNoSpeakers) {
		t.Fatalf("expected ErrNoSpeakers, got %v", err)
	}
}

func TestBuildSingleSpeaker(t *testing.T) {
	root := t.TempDir()
	writeClips(t, root, "alice", 200, 3)

	_, err := NewBuilder().Build(root)
	if !errors.Is(err, ErrTooFewSpeakers) {
		t.Fatalf("expected ErrTooFewSpeakers, got %v", err)
	}
}

func TestBuildEmptySpeakerDirs(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "alice"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "bob"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	_, err := NewBuilder().Build(root)
	if !errors.Is(err, ErrNoSamples) {
		t.Fatalf("expected ErrNoSamples, got %v", err)
	}
}

func TestNormalizeSpeakerName(t *testing.T) {
	if got := NormalizeSpeakerName("  alice "); got != "alice" {
		t.Errorf("trim failed: %q", got)
	}
	// NFD e + combining acute must normalize to the NFC form.
	if got := NormalizeSpeakerName("José"); got != "José" {
		t.Errorf("NFC normalization failed: %q", got)
	}
}
