package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// WhisperOptions tunes each inference context.
type WhisperOptions struct {
	Language string // ignored by English-only models
	Threads  uint   // 0 keeps the whisper.cpp default
}

// WhisperTranscriber wraps a whisper.cpp model for speech-to-text.
// The model is shared; every Process call gets its own context.
type WhisperTranscriber struct {
	model whisper.Model
	name  string
	opts  WhisperOptions
}

// NewWhisperTranscriber loads a whisper model from the given path.
// The caller must call Close() when done.
func NewWhisperTranscriber(modelPath string, opts WhisperOptions) (*WhisperTranscriber, error) {
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("transcribe: load whisper model %q: %w", modelPath, err)
	}
	return &WhisperTranscriber{
		model: model,
		name:  "whisper:" + filepath.Base(modelPath),
		opts:  opts,
	}, nil
}

// Name returns "whisper:" followed by the model file name.
func (t *WhisperTranscriber) Name() string {
	return t.name
}

// Close releases the whisper model resources.
func (t *WhisperTranscriber) Close() error {
	if t.model != nil {
		return t.model.Close()
	}
	return nil
}

// Process transcribes mono 16kHz float32 audio samples to text.
func (t *WhisperTranscriber) Process(ctx context.Context, samples []float32) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}

	wctx, err := t.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("transcribe: create context: %w", err)
	}
	if t.opts.Threads > 0 {
		wctx.SetThreads(t.opts.Threads)
	}
	if t.opts.Language != "" && t.model.IsMultilingual() {
		if err := wctx.SetLanguage(t.opts.Language); err != nil {
			return "", fmt.Errorf("transcribe: set language %q: %w", t.opts.Language, err)
		}
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("transcribe: process: %w", err)
	}

	var segments []string
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("transcribe: next segment: %w", err)
		}
		segments = append(segments, strings.TrimSpace(seg.Text))
	}

	return strings.TrimSpace(strings.Join(segments, " ")), nil
}
