// Package metrics exposes the video pipeline's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rov_video"

// Metrics holds every collector on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	FramesForwarded  *prometheus.CounterVec
	FramesRejected   *prometheus.CounterVec
	PostProcess      prometheus.Histogram
	PipelineState    prometheus.Gauge
	RecordingActive  prometheus.Gauge
	Recordings       prometheus.Counter
	RecordingBytes   prometheus.Counter
	BusErrors        *prometheus.CounterVec
	TeardownTimeouts prometheus.Counter
	DrainTimeouts    prometheus.Counter
}

// New creates the collectors and registers them, with the Go and process
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		FramesForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_forwarded_total",
			Help:      "Frames forwarded to the display, by post-process algorithm.",
		}, []string{"post_process"}),
		FramesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_rejected_total",
			Help:      "Samples the frame sink could not forward, by reason.",
		}, []string{"reason"}),
		PostProcess: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "post_process_seconds",
			Help:      "Time spent extracting and post-processing one frame.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		PipelineState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_state",
			Help:      "Pipeline state: 0 idle, 1 starting, 2 running, 3 stopping.",
		}),
		RecordingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recording_active",
			Help:      "1 while a recording branch is attached.",
		}),
		Recordings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_total",
			Help:      "Recordings finished.",
		}),
		RecordingBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recording_bytes_total",
			Help:      "Bytes written by finished recordings.",
		}),
		BusErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_errors_total",
			Help:      "Pipeline bus errors, by category.",
		}, []string{"category"}),
		TeardownTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "teardown_timeouts_total",
			Help:      "Pipeline stops that were forced after the teardown timeout.",
		}),
		DrainTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drain_timeouts_total",
			Help:      "Recording detaches that were forced after the drain timeout.",
		}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.FramesForwarded,
		m.FramesRejected,
		m.PostProcess,
		m.PipelineState,
		m.RecordingActive,
		m.Recordings,
		m.RecordingBytes,
		m.BusErrors,
		m.TeardownTimeouts,
		m.DrainTimeouts,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// FrameForwarded records one forwarded frame.
func (m *Metrics) FrameForwarded(postProcess string, took time.Duration) {
	if postProcess == "" {
		postProcess = "none"
	}
	m.FramesForwarded.WithLabelValues(postProcess).Inc()
	m.PostProcess.Observe(took.Seconds())
}

// FrameRejected records one sample that was not forwarded.
func (m *Metrics) FrameRejected(reason string) {
	m.FramesRejected.WithLabelValues(reason).Inc()
}

// SetPipelineState records the numeric pipeline state.
func (m *Metrics) SetPipelineState(state int) {
	m.PipelineState.Set(float64(state))
}

// SetRecording records whether a recording branch is attached.
func (m *Metrics) SetRecording(active bool) {
	if active {
		m.RecordingActive.Set(1)
		return
	}
	m.RecordingActive.Set(0)
}

// RecordingFinished records a finished recording and its size.
func (m *Metrics) RecordingFinished(bytes int64) {
	m.Recordings.Inc()
	if bytes > 0 {
		m.RecordingBytes.Add(float64(bytes))
	}
}

// BusError records one bus error.
func (m *Metrics) BusError(category string) {
	m.BusErrors.WithLabelValues(category).Inc()
}
