// Package metrics exports call orchestration counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "resq"

var phases = []string{"idle", "listening", "processing", "responding", "errored"}

// Recorder implements the session metrics sink on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	phase           *prometheus.GaugeVec
	phaseEntries    *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	playbackFailure prometheus.Counter
	revealOffset    *prometheus.HistogramVec
	cycles          *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
}

// New registers all collectors on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		phase: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_phase",
			Help:      "Current session phase (1 for the active phase, 0 otherwise)",
		}, []string{"phase"}),
		phaseEntries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_phase_entries_total",
			Help:      "Number of times each phase was entered",
		}, []string{"phase"}),
		requestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "assistant_request_seconds",
			Help:      "Assistant request latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		}, []string{"status"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_errors_total",
			Help:      "Errors surfaced to the caller by kind",
		}, []string{"kind"}),
		playbackFailure: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_failures_total",
			Help:      "Reply audio playback failures",
		}),
		revealOffset: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reveal_offset_seconds",
			Help:      "Time from responding entry to artifact visibility",
			Buckets:   []float64{0, 0.05, 0.25, 0.5, 1, 2, 3, 5},
		}, []string{"artifact"}),
		cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Finished capture cycles by outcome",
		}, []string{"outcome"}),
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Capture cycle duration in seconds",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60},
		}),
	}
}

// PhaseEntered marks phase as the single active phase.
func (r *Recorder) PhaseEntered(phase string) {
	for _, p := range phases {
		value := 0.0
		if p == phase {
			value = 1
		}
		r.phase.WithLabelValues(p).Set(value)
	}
	r.phaseEntries.WithLabelValues(phase).Inc()
}

// RequestObserved records one assistant round trip.
func (r *Recorder) RequestObserved(elapsed time.Duration, failed bool) {
	status := "success"
	if failed {
		status = "error"
	}
	r.requestLatency.WithLabelValues(status).Observe(elapsed.Seconds())
}

func (r *Recorder) ErrorSurfaced(kind string) {
	r.errors.WithLabelValues(kind).Inc()
}

func (r *Recorder) PlaybackFailed() {
	r.playbackFailure.Inc()
}

func (r *Recorder) RevealFired(artifact string, at time.Duration) {
	r.revealOffset.WithLabelValues(artifact).Observe(at.Seconds())
}

func (r *Recorder) CycleFinished(outcome string, elapsed time.Duration) {
	r.cycles.WithLabelValues(outcome).Inc()
	r.cycleDuration.Observe(elapsed.Seconds())
}

// Registry exposes the underlying registry for additional collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
