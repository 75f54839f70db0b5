// Package transcribe provides speech-to-text backends.
//
// Supported backends:
//   - whisper: whisper.cpp via Go bindings (default)
//   - openai: OpenAI-compatible /audio/transcriptions endpoint
package transcribe

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/chaz8081/gostt-server/internal/config"
)

// Transcriber converts audio samples to text.
type Transcriber interface {
	// Process transcribes mono float32 audio samples at the model rate to text.
	Process(ctx context.Context, samples []float32) (string, error)
	// Name identifies the loaded model, e.g. "whisper:ggml-small.en.bin".
	Name() string
	// Close releases backend resources.
	Close() error
}

// New creates a Transcriber based on the config backend setting.
//
// For the whisper backend the primary model is tried first; if it cannot be
// loaded and a fallback model is configured, the fallback is used instead.
func New(cfg *config.Config, log *zap.Logger) (Transcriber, error) {
	if log == nil {
		log = zap.NewNop()
	}

	tc := cfg.Transcribe
	switch tc.Backend {
	case "openai":
		return NewOpenAITranscriber(cfg.OpenAI, tc.Language, cfg.Audio.SampleRate), nil
	case "whisper", "":
		opts := WhisperOptions{Language: tc.Language, Threads: tc.Threads}
		t, err := NewWhisperTranscriber(tc.ModelPath, opts)
		if err == nil {
			return t, nil
		}
		if tc.FallbackModelPath == "" || tc.FallbackModelPath == tc.ModelPath {
			return nil, err
		}
		log.Warn("primary model unavailable, loading fallback",
			zap.String("model", tc.ModelPath),
			zap.String("fallback", tc.FallbackModelPath),
			zap.Error(err))
		fb, fbErr := NewWhisperTranscriber(tc.FallbackModelPath, opts)
		if fbErr != nil {
			return nil, fmt.Errorf("transcribe: primary: %v; fallback: %w", err, fbErr)
		}
		return fb, nil
	default:
		return nil, fmt.Errorf("transcribe: unknown backend %q (supported: whisper, openai)", tc.Backend)
	}
}

// limited bounds the number of concurrent Process calls on a Transcriber.
type limited struct {
	Transcriber
	sem *semaphore.Weighted
}

// Limit wraps t so that at most n inferences run at once. Callers waiting
// for a slot give up when their context is cancelled. n <= 0 means unlimited.
func Limit(t Transcriber, n int64) Transcriber {
	if n <= 0 {
		return t
	}
	return &limited{Transcriber: t, sem: semaphore.NewWeighted(n)}
}

func (l *limited) Process(ctx context.Context, samples []float32) (string, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("transcribe: wait for slot: %w", err)
	}
	defer l.sem.Release(1)
	return l.Transcriber.Process(ctx, samples)
}
