package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRequest(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRequest(200, "wav")
	m.ObserveRequest(200, "wav")
	m.ObserveRequest(400, "")

	if got := testutil.ToFloat64(m.Requests.WithLabelValues("200", "wav")); got != 2 {
		t.Errorf("200/wav = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Requests.WithLabelValues("400", "none")); got != 1 {
		t.Errorf("400/none = %v, want 1", got)
	}
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.CacheHit()
	m.TempDeleteFailed()
	m.TempDeleteFailed()
	m.ObserveAudio(3.2)
	m.ObserveTranscription("whisper:ggml-base.en.bin", 1500*time.Millisecond)

	if got := testutil.ToFloat64(m.CacheHits); got != 1 {
		t.Errorf("cache hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TempDeleteFailures); got != 2 {
		t.Errorf("delete failures = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(m.TranscriptionDuration); got != 1 {
		t.Errorf("transcription series = %d, want 1", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveRequest(500, "mp3")
	m.ObserveTranscription("x", time.Second)
	m.ObserveAudio(1)
	m.CacheHit()
	m.TempDeleteFailed()
}

func TestDoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	defer func() {
		if recover() == nil {
			t.Error("registering twice on one registry should panic")
		}
	}()
	New(reg)
}
