package service

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/chaz8081/gostt-server/internal/audio"
	"github.com/chaz8081/gostt-server/internal/config"
	"github.com/chaz8081/gostt-server/internal/metrics"
	"github.com/chaz8081/gostt-server/internal/store"
)

// fakeTranscriber returns canned text and remembers what it was given.
type fakeTranscriber struct {
	mu      sync.Mutex
	text    string
	err     error
	calls   int
	lastMax float32
}

func (f *fakeTranscriber) Process(_ context.Context, samples []float32) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastMax = audio.Peak(samples)
	return f.text, f.err
}

func (f *fakeTranscriber) Name() string { return "fake:model" }
func (f *fakeTranscriber) Close() error { return nil }

type recordingPublisher struct {
	events []Event
}

func (p *recordingPublisher) Publish(ev Event) { p.events = append(p.events, ev) }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Temp.Dir = t.TempDir()
	cfg.Temp.DeleteDelay = 0
	cfg.Audio.FFmpegPath = "/nonexistent/ffmpeg"
	return cfg
}

// toneWAV returns seconds of a quiet 16kHz sine as WAV bytes.
func toneWAV(t *testing.T, seconds float64) []byte {
	t.Helper()
	n := int(seconds * 16000)
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.25 * float32(math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	data, err := audio.EncodeWAV(samples, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	return data
}

func assertTempDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("temp dir holds %d files after request, want 0", len(entries))
	}
}

func TestTranscribe(t *testing.T) {
	cfg := testConfig(t)
	tr := &fakeTranscriber{text: "i think im ready. dont go"}
	pub := &recordingPublisher{}

	svc := New(cfg, tr, nil, nil)
	svc.WithPublisher(pub)

	res, err := svc.Transcribe(context.Background(), Upload{
		Filename: "Note.WAV",
		Body:     bytes.NewReader(toneWAV(t, 1.5)),
		Size:     -1,
	})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	if res.Transcription != "I think I'm ready. don't go." {
		t.Errorf("Transcription = %q", res.Transcription)
	}
	if FormatDuration(res.DurationSeconds) != "1.50 seconds" {
		t.Errorf("duration = %s, want 1.50 seconds", FormatDuration(res.DurationSeconds))
	}
	if res.Filename != "Note.WAV" || res.Model != "fake:model" || res.Cached || res.ID == "" {
		t.Errorf("Result = %+v", res)
	}
	if math.Abs(float64(tr.lastMax-1)) > 1e-3 {
		t.Errorf("model saw peak %f, want normalized audio", tr.lastMax)
	}
	if len(pub.events) != 1 || pub.events[0].AudioDuration != "1.50 seconds" {
		t.Errorf("published events = %+v", pub.events)
	}
	assertTempDirEmpty(t, cfg.Temp.Dir)
}

func TestTranscribeRawOutput(t *testing.T) {
	cfg := testConfig(t)
	cfg.Transcribe.CleanOutput = false
	cfg.Audio.Normalize = false
	tr := &fakeTranscriber{text: "raw   text"}

	res, err := New(cfg, tr, nil, nil).Transcribe(context.Background(), Upload{
		Filename: "a.wav",
		Body:     bytes.NewReader(toneWAV(t, 0.5)),
	})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if res.Transcription != "raw   text" {
		t.Errorf("Transcription = %q, want model output untouched", res.Transcription)
	}
	if tr.lastMax > 0.3 {
		t.Errorf("model saw peak %f, want unnormalized audio", tr.lastMax)
	}
}

func TestTranscribeValidation(t *testing.T) {
	cfg := testConfig(t)
	svc := New(cfg, &fakeTranscriber{}, nil, nil)

	tests := []struct {
		name    string
		up      Upload
		wantErr error
	}{
		{"no body", Upload{Filename: "a.wav"}, ErrNoFile},
		{"no filename", Upload{Body: strings.NewReader("x")}, ErrNoFilename},
		{"bad extension", Upload{Filename: "notes.txt", Body: strings.NewReader("x")}, ErrUnsupportedType},
		{"no extension", Upload{Filename: "README", Body: strings.NewReader("x")}, ErrUnsupportedType},
		{"declared too large", Upload{Filename: "a.wav", Body: strings.NewReader("x"), Size: 26 << 20}, ErrTooLarge},
		{"undecodable", Upload{Filename: "a.wav", Body: strings.NewReader("not audio")}, ErrDecode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Transcribe(context.Background(), tt.up)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Transcribe() error = %v, want %v", err, tt.wantErr)
			}
			assertTempDirEmpty(t, cfg.Temp.Dir)
		})
	}
}

func TestUnsupportedTypeMessage(t *testing.T) {
	svc := New(testConfig(t), &fakeTranscriber{}, nil, nil)
	_, err := svc.Transcribe(context.Background(), Upload{Filename: "clip.AAC", Body: strings.NewReader("x")})

	var ute *UnsupportedTypeError
	if !errors.As(err, &ute) {
		t.Fatalf("error = %v, want *UnsupportedTypeError", err)
	}
	if ute.Ext != "aac" {
		t.Errorf("Ext = %q, want aac", ute.Ext)
	}
}

func TestTranscribeStreamTooLarge(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.MaxUploadMB = 1
	svc := New(cfg, &fakeTranscriber{}, nil, nil)

	big := bytes.Repeat([]byte{0}, 1<<20+1)
	_, err := svc.Transcribe(context.Background(), Upload{Filename: "a.wav", Body: bytes.NewReader(big), Size: -1})
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("Transcribe() error = %v, want ErrTooLarge", err)
	}
	assertTempDirEmpty(t, cfg.Temp.Dir)
}

func TestTranscribeModelError(t *testing.T) {
	cfg := testConfig(t)
	cfg.Transcribe.CleanOutput = true
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = st.Close() }()

	tr := &fakeTranscriber{text: "ignored", err: errors.New("out of memory")}
	pub := &recordingPublisher{}
	svc := New(cfg, tr, st, nil)
	svc.WithPublisher(pub)

	wav := toneWAV(t, 0.2)
	res, err := svc.Transcribe(context.Background(), Upload{Filename: "a.wav", Body: bytes.NewReader(wav)})
	if err != nil {
		t.Fatalf("Transcribe() error = %v, want a failed result", err)
	}
	if !res.Failed {
		t.Error("Failed = false, want true")
	}
	// Returned verbatim, without cleanup.
	if res.Transcription != InferenceFailedText {
		t.Errorf("Transcription = %q, want %q", res.Transcription, InferenceFailedText)
	}
	if res.Model != "fake:model" || res.Filename != "a.wav" || res.ID == "" {
		t.Errorf("Result = %+v, want model, filename and id set", res)
	}
	if math.Abs(res.DurationSeconds-0.2) > 0.01 {
		t.Errorf("DurationSeconds = %f, want 0.2", res.DurationSeconds)
	}
	assertTempDirEmpty(t, cfg.Temp.Dir)

	if len(pub.events) != 0 {
		t.Errorf("published %d events for a failed transcription, want 0", len(pub.events))
	}
	recs, err := st.List(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("history holds %d records, want 0", len(recs))
	}

	// The same upload runs the model again once it recovers.
	tr.err = nil
	res, err = svc.Transcribe(context.Background(), Upload{Filename: "a.wav", Body: bytes.NewReader(wav)})
	if err != nil {
		t.Fatalf("retry Transcribe() error = %v", err)
	}
	if res.Cached || res.Failed || tr.calls != 2 {
		t.Errorf("retry cached=%v failed=%v calls=%d, want a fresh run", res.Cached, res.Failed, tr.calls)
	}
}

func TestTranscribeCachesByDigest(t *testing.T) {
	cfg := testConfig(t)
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = st.Close() }()

	tr := &fakeTranscriber{text: "hello"}
	m := metrics.New(prometheus.NewRegistry())
	svc := New(cfg, tr, st, nil)
	svc.WithMetrics(m)

	wav := toneWAV(t, 1)
	first, err := svc.Transcribe(context.Background(), Upload{Filename: "a.wav", Body: bytes.NewReader(wav)})
	if err != nil {
		t.Fatalf("first Transcribe() error = %v", err)
	}
	second, err := svc.Transcribe(context.Background(), Upload{Filename: "copy.wav", Body: bytes.NewReader(wav)})
	if err != nil {
		t.Fatalf("second Transcribe() error = %v", err)
	}

	if tr.calls != 1 {
		t.Errorf("model ran %d times, want 1", tr.calls)
	}
	if !second.Cached || second.ID != first.ID || second.Transcription != "Hello." {
		t.Errorf("second result = %+v, want cached copy of first", second)
	}
	if second.Filename != "copy.wav" {
		t.Errorf("cached Filename = %q, want the new upload name", second.Filename)
	}
	if got := testutil.ToFloat64(m.CacheHits); got != 1 {
		t.Errorf("cache hits = %v, want 1", got)
	}

	hist, err := svc.History(context.Background(), 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(hist) != 1 {
		t.Errorf("History() returned %d records, want 1", len(hist))
	}
	rec, err := svc.Lookup(context.Background(), first.ID)
	if err != nil || rec.Transcription != "Hello." {
		t.Errorf("Lookup() = %+v, %v", rec, err)
	}
}

func TestExtension(t *testing.T) {
	tests := map[string]string{
		"a.WAV":          "wav",
		"archive.tar.gz": "gz",
		"noext":          "",
		"":               "",
	}
	for in, want := range tests {
		if got := Extension(in); got != want {
			t.Errorf("Extension(%q) = %q, want %q", in, got, want)
		}
	}
}
