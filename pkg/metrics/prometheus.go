package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the Prometheus metrics of one client process.
type Registry struct {
	registry *prometheus.Registry

	// Turn metrics
	TurnsTotal   *prometheus.CounterVec
	TurnDuration prometheus.Histogram

	// Backend request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Playback metrics
	PlaybacksTotal   *prometheus.CounterVec
	PlaybackDuration *prometheus.HistogramVec

	// Recording metrics
	RecordingDuration prometheus.Histogram
	MicDenialsTotal   prometheus.Counter
}

// NewRegistry creates a Registry with all metrics registered.
func NewRegistry(namespace string) *Registry {
	if namespace == "" {
		namespace = "parley"
	}

	registry := prometheus.NewRegistry()

	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of turns by result",
		},
		[]string{"result"},
	)

	turnDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Time from end of recording to end of reply playback",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 15, 30, 60},
		},
	)

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Total number of backend requests",
		},
		[]string{"endpoint", "status"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Backend request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"endpoint"},
	)

	playbacksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playbacks_total",
			Help:      "Total number of reply playbacks",
		},
		[]string{"via", "status"},
	)

	playbackDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "playback_duration_seconds",
			Help:      "Reply playback duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"via"},
	)

	recordingDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recording_duration_seconds",
			Help:      "Length of recorded clips in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	micDenials := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mic_denials_total",
			Help:      "Times the microphone could not be opened",
		},
	)

	registry.MustRegister(
		turnsTotal,
		turnDuration,
		requestsTotal,
		requestDuration,
		playbacksTotal,
		playbackDuration,
		recordingDuration,
		micDenials,
	)

	return &Registry{
		registry:          registry,
		TurnsTotal:        turnsTotal,
		TurnDuration:      turnDuration,
		RequestsTotal:     requestsTotal,
		RequestDuration:   requestDuration,
		PlaybacksTotal:    playbacksTotal,
		PlaybackDuration:  playbackDuration,
		RecordingDuration: recordingDuration,
		MicDenialsTotal:   micDenials,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// RecordRequest records a finished backend request. Its signature matches
// the exchange client's observer.
func (r *Registry) RecordRequest(endpoint string, status int, d time.Duration, err error) {
	label := strconv.Itoa(status)
	if status == 0 {
		label = "error"
	}
	r.RequestsTotal.WithLabelValues(endpoint, label).Inc()
	r.RequestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// RecordPlayback records a finished playback.
func (r *Registry) RecordPlayback(via, status string, d time.Duration) {
	r.PlaybacksTotal.WithLabelValues(via, status).Inc()
	if via != "none" {
		r.PlaybackDuration.WithLabelValues(via).Observe(d.Seconds())
	}
}

// RecordTurn records a finished turn.
func (r *Registry) RecordTurn(result string, d time.Duration) {
	r.TurnsTotal.WithLabelValues(result).Inc()
	if d > 0 {
		r.TurnDuration.Observe(d.Seconds())
	}
}

// RecordRecording records the length of a captured clip.
func (r *Registry) RecordRecording(d time.Duration) {
	r.RecordingDuration.Observe(d.Seconds())
}

// RecordMicDenied counts a refused microphone.
func (r *Registry) RecordMicDenied() {
	r.MicDenialsTotal.Inc()
}
