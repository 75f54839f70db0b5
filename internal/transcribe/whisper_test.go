package transcribe

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chaz8081/gostt-server/internal/audio"
)

// whisperModelPath resolves the path to the whisper model relative to the project root.
func whisperModelPath(t testing.TB) string {
	t.Helper()
	path := filepath.Join("..", "..", "models", "ggml-base.en.bin")
	if _, err := os.Stat(path); err != nil {
		t.Skipf("model not found at %s (run 'gostt-server models download base.en' first): %v", path, err)
	}
	return path
}

// loadSamples decodes a fixture to mono 16kHz float32. The test is skipped
// if the file does not exist.
func loadSamples(t testing.TB, path string) []float32 {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Skipf("audio fixture not found at %s: %v", path, err)
	}
	clip, err := audio.NewDecoder("ffmpeg", 16000).Load(context.Background(), path, 16000)
	if err != nil {
		t.Fatalf("load %s: %v", path, err)
	}
	return clip.Samples
}

// jfkSamples loads the JFK sample WAV shipped with whisper.cpp.
func jfkSamples(t testing.TB) []float32 {
	t.Helper()
	return loadSamples(t, filepath.Join("..", "..", "third_party", "whisper.cpp", "samples", "jfk.wav"))
}

func TestNewWhisperTranscriber(t *testing.T) {
	path := whisperModelPath(t)

	tr, err := NewWhisperTranscriber(path, WhisperOptions{})
	if err != nil {
		t.Fatalf("NewWhisperTranscriber(%q) returned error: %v", path, err)
	}
	if tr.Name() != "whisper:ggml-base.en.bin" {
		t.Errorf("Name() = %q", tr.Name())
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close() returned error: %v", err)
	}
}

func TestNewWhisperTranscriberBadPath(t *testing.T) {
	_, err := NewWhisperTranscriber("/nonexistent/model.bin", WhisperOptions{})
	if err == nil {
		t.Fatal("NewWhisperTranscriber with bad path should return error")
	}
}

func TestWhisperProcessJFK(t *testing.T) {
	path := whisperModelPath(t)
	samples := jfkSamples(t)

	tr, err := NewWhisperTranscriber(path, WhisperOptions{Language: "en", Threads: 2})
	if err != nil {
		t.Fatalf("NewWhisperTranscriber: %v", err)
	}
	defer func() { _ = tr.Close() }()

	text, err := tr.Process(context.Background(), samples)
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	lower := strings.ToLower(text)
	if !strings.Contains(lower, "ask not what your country") {
		t.Errorf("expected transcript to contain 'ask not what your country', got: %q", text)
	}
}

func TestWhisperProcessEmptyAudio(t *testing.T) {
	path := whisperModelPath(t)

	tr, err := NewWhisperTranscriber(path, WhisperOptions{})
	if err != nil {
		t.Fatalf("NewWhisperTranscriber: %v", err)
	}
	defer func() { _ = tr.Close() }()

	// Silence should not error, just return empty-ish text
	silence := make([]float32, 16000)
	if _, err := tr.Process(context.Background(), silence); err != nil {
		t.Fatalf("Process on silence returned error: %v", err)
	}
}

func TestWhisperProcessCancelled(t *testing.T) {
	path := whisperModelPath(t)

	tr, err := NewWhisperTranscriber(path, WhisperOptions{})
	if err != nil {
		t.Fatalf("NewWhisperTranscriber: %v", err)
	}
	defer func() { _ = tr.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tr.Process(ctx, make([]float32, 16000)); err == nil {
		t.Fatal("Process with cancelled context should return error")
	}
}
