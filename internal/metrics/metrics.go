// Package metrics exposes Prometheus collectors for the transcription service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Requests              *prometheus.CounterVec
	TranscriptionDuration *prometheus.HistogramVec
	AudioDuration         prometheus.Histogram
	CacheHits             prometheus.Counter
	TempDeleteFailures    prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gostt",
			Name:      "transcribe_requests_total",
			Help:      "Transcription requests by HTTP status and file format.",
		}, []string{"status", "format"}),
		TranscriptionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gostt",
			Name:      "transcription_duration_seconds",
			Help:      "Time spent running the speech model.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"model"}),
		AudioDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gostt",
			Name:      "audio_duration_seconds",
			Help:      "Length of decoded uploads.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gostt",
			Name:      "cache_hits_total",
			Help:      "Uploads answered from history without inference.",
		}),
		TempDeleteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gostt",
			Name:      "temp_delete_failures_total",
			Help:      "Temporary upload files that could not be removed.",
		}),
	}
	reg.MustRegister(m.Requests, m.TranscriptionDuration, m.AudioDuration, m.CacheHits, m.TempDeleteFailures)
	return m
}

// ObserveRequest counts one finished request.
func (m *Metrics) ObserveRequest(status int, format string) {
	if m == nil {
		return
	}
	if format == "" {
		format = "none"
	}
	m.Requests.WithLabelValues(strconv.Itoa(status), format).Inc()
}

// ObserveTranscription records model latency.
func (m *Metrics) ObserveTranscription(model string, d time.Duration) {
	if m == nil {
		return
	}
	m.TranscriptionDuration.WithLabelValues(model).Observe(d.Seconds())
}

// ObserveAudio records the decoded length of an upload.
func (m *Metrics) ObserveAudio(seconds float64) {
	if m == nil {
		return
	}
	m.AudioDuration.Observe(seconds)
}

// CacheHit counts an upload served from history.
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

// TempDeleteFailed counts a temp file left on disk.
func (m *Metrics) TempDeleteFailed() {
	if m == nil {
		return
	}
	m.TempDeleteFailures.Inc()
}
