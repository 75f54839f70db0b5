// Package service runs the upload-to-text pipeline shared by the HTTP
// server and the command line.
package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/chaz8081/gostt-server/internal/audio"
	"github.com/chaz8081/gostt-server/internal/config"
	"github.com/chaz8081/gostt-server/internal/fileutil"
	"github.com/chaz8081/gostt-server/internal/metrics"
	"github.com/chaz8081/gostt-server/internal/store"
	"github.com/chaz8081/gostt-server/internal/transcribe"
)

// Upload is one file submitted for transcription.
type Upload struct {
	Filename string
	Body     io.Reader
	// Size is the declared length, or -1 when unknown.
	Size int64
}

// Result is the outcome of a transcription.
type Result struct {
	ID              string
	Filename        string
	Transcription   string
	DurationSeconds float64
	Model           string
	Cached          bool
	// Failed is set when the model errored and Transcription holds
	// InferenceFailedText. Failed results are neither stored nor published.
	Failed          bool
	SizeBytes       int64
	ProcessingTime  time.Duration
}

// InferenceFailedText is returned as the transcription when the model
// itself fails on a decoded upload.
const InferenceFailedText = "Sorry, there was an error processing the audio."

// Event is published after every successful transcription.
type Event struct {
	ID            string `json:"id"`
	Filename      string `json:"filename"`
	Transcription string `json:"transcription"`
	AudioDuration string `json:"audio_duration"`
	Model         string `json:"model"`
	Cached        bool   `json:"cached"`
}

// Publisher receives completion events.
type Publisher interface {
	Publish(ev Event)
}

// Service transcribes uploads.
type Service struct {
	cfg     *config.Config
	tr      transcribe.Transcriber
	store   store.Store
	decoder *audio.Decoder
	pub     Publisher
	metrics *metrics.Metrics
	log     *zap.Logger
}

// New creates a Service. st may be nil to disable history.
func New(cfg *config.Config, tr transcribe.Transcriber, st store.Store, log *zap.Logger) *Service {
	if st == nil {
		st = store.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		cfg:     cfg,
		tr:      tr,
		store:   st,
		decoder: audio.NewDecoder(cfg.Audio.FFmpegPath, cfg.Audio.SampleRate),
		log:     log,
	}
}

// WithDecoder replaces the audio decoder (for testing).
func (s *Service) WithDecoder(d *audio.Decoder) { s.decoder = d }

// WithPublisher sets the completion event sink.
func (s *Service) WithPublisher(p Publisher) { s.pub = p }

// WithMetrics sets the Prometheus collectors.
func (s *Service) WithMetrics(m *metrics.Metrics) { s.metrics = m }

// Model returns the transcriber name.
func (s *Service) Model() string { return s.tr.Name() }

// FormatDuration renders seconds the way responses report audio length.
func FormatDuration(seconds float64) string {
	return fmt.Sprintf("%.2f seconds", seconds)
}

// Extension returns the lower-cased extension of name without its dot,
// or "" when name has none.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// Transcribe validates up, stages it in a temp file, and returns its text.
// The temp file is removed before Transcribe returns, whatever the outcome.
// A model failure is not an error: the Result carries InferenceFailedText
// with Failed set.
func (s *Service) Transcribe(ctx context.Context, up Upload) (*Result, error) {
	start := time.Now()

	if up.Body == nil {
		return nil, ErrNoFile
	}
	if up.Filename == "" {
		return nil, ErrNoFilename
	}
	ext := Extension(up.Filename)
	if ext == "" || !s.cfg.Server.AllowsExtension("."+ext) {
		return nil, &UnsupportedTypeError{Ext: ext}
	}

	limit := s.cfg.Server.MaxUploadBytes()
	if up.Size > limit {
		return nil, ErrTooLarge
	}

	hash, err := blake2b.New256(nil)
	if err != nil {
		return nil, fmt.Errorf("service: init hash: %w", err)
	}
	body := io.TeeReader(io.LimitReader(up.Body, limit+1), hash)

	path, size, err := fileutil.SaveTemp(s.cfg.Temp.Dir, "."+ext, body)
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	defer s.removeTemp(ctx, path)

	if size > limit {
		return nil, ErrTooLarge
	}
	digest := hex.EncodeToString(hash.Sum(nil))
	log := s.log.With(zap.String("filename", up.Filename), zap.Int64("size", size))

	if rec, err := s.store.FindByDigest(ctx, digest, s.tr.Name()); err == nil {
		log.Debug("serving cached transcription", zap.String("id", rec.ID))
		s.metrics.CacheHit()
		res := &Result{
			ID:              rec.ID,
			Filename:        up.Filename,
			Transcription:   rec.Transcription,
			DurationSeconds: rec.DurationSeconds,
			Model:           rec.Model,
			Cached:          true,
			SizeBytes:       size,
			ProcessingTime:  time.Since(start),
		}
		s.publish(res)
		return res, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		log.Warn("history lookup failed", zap.Error(err))
	}

	rate := s.cfg.Audio.SampleRate
	clip, err := s.decoder.Load(ctx, path, rate)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	duration := float64(len(clip.Samples)) / float64(rate)
	s.metrics.ObserveAudio(duration)

	if s.cfg.Audio.Normalize {
		audio.Normalize(clip.Samples)
	}

	inferStart := time.Now()
	text, err := s.tr.Process(ctx, clip.Samples)
	if err != nil {
		log.Error("model failed on upload", zap.String("model", s.tr.Name()), zap.Error(err))
		return &Result{
			ID:              uuid.NewString(),
			Filename:        up.Filename,
			Transcription:   InferenceFailedText,
			DurationSeconds: duration,
			Model:           s.tr.Name(),
			Failed:          true,
			SizeBytes:       size,
			ProcessingTime:  time.Since(start),
		}, nil
	}
	s.metrics.ObserveTranscription(s.tr.Name(), time.Since(inferStart))

	if s.cfg.Transcribe.CleanOutput {
		text = transcribe.Clean(text)
	}

	res := &Result{
		ID:              uuid.NewString(),
		Filename:        up.Filename,
		Transcription:   text,
		DurationSeconds: duration,
		Model:           s.tr.Name(),
		SizeBytes:       size,
		ProcessingTime:  time.Since(start),
	}

	rec := &store.Record{
		ID:              res.ID,
		Filename:        res.Filename,
		Digest:          digest,
		Model:           res.Model,
		Transcription:   res.Transcription,
		DurationSeconds: res.DurationSeconds,
		SizeBytes:       size,
	}
	if err := s.store.Save(ctx, rec); err != nil {
		log.Warn("saving transcription history failed", zap.Error(err))
	}

	log.Info("transcribed upload",
		zap.String("id", res.ID),
		zap.Float64("audio_seconds", duration),
		zap.Duration("took", res.ProcessingTime))

	s.publish(res)
	return res, nil
}

// History returns up to limit stored transcriptions, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]store.Record, error) {
	return s.store.List(ctx, limit)
}

// Lookup returns one stored transcription.
func (s *Service) Lookup(ctx context.Context, id string) (*store.Record, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) removeTemp(ctx context.Context, path string) {
	// Cleanup must still run after the client has gone away.
	ctx = context.WithoutCancel(ctx)
	if !fileutil.SafeDelete(ctx, path, s.cfg.Temp.DeleteRetries, s.cfg.Temp.DeleteDelay, s.log) {
		s.metrics.TempDeleteFailed()
	}
}

func (s *Service) publish(res *Result) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(Event{
		ID:            res.ID,
		Filename:      res.Filename,
		Transcription: res.Transcription,
		AudioDuration: FormatDuration(res.DurationSeconds),
		Model:         res.Model,
		Cached:        res.Cached,
	})
}
