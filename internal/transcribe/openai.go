package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chaz8081/gostt-server/internal/audio"
	"github.com/chaz8081/gostt-server/internal/config"
)

// OpenAITranscriber sends audio to an OpenAI-compatible transcription API.
// Samples are re-encoded as an in-memory 16-bit WAV for upload.
type OpenAITranscriber struct {
	client     *openai.Client
	model      string
	language   string
	sampleRate int
}

// NewOpenAITranscriber creates a remote transcriber. A non-empty BaseURL
// points the client at a self-hosted server speaking the same API.
func NewOpenAITranscriber(cfg config.OpenAIConfig, language string, sampleRate int) *OpenAITranscriber {
	cc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		cc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAITranscriber{
		client:     openai.NewClientWithConfig(cc),
		model:      model,
		language:   language,
		sampleRate: sampleRate,
	}
}

// Name returns "openai:" followed by the remote model name.
func (t *OpenAITranscriber) Name() string {
	return "openai:" + t.model
}

// Close is a no-op; the HTTP client holds no per-transcriber resources.
func (t *OpenAITranscriber) Close() error {
	return nil
}

// Process uploads samples and returns the recognized text.
func (t *OpenAITranscriber) Process(ctx context.Context, samples []float32) (string, error) {
	wav, err := audio.EncodeWAV(samples, t.sampleRate)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}

	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(wav),
		Language: t.language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe: openai request: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
