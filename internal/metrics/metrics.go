// Package metrics holds the Prometheus collectors for the capture and analysis pipeline.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OK     = "ok"
	Failed = "failed"
)

// Metrics is safe to use through a nil pointer, in which case nothing is recorded.
type Metrics struct {
	captures      *prometheus.CounterVec
	images        *prometheus.CounterVec
	messages      *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	tick          prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_captures_total",
			Help: "Camera image captures by camera and outcome.",
		}, []string{"camera", "outcome"}),
		images: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_images_analyzed_total",
			Help: "Staged images processed by camera and result (flagged, safe, failed).",
		}, []string{"camera", "result"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_messages_sent_total",
			Help: "Messages handed to the sink by message type and outcome.",
		}, []string{"type", "outcome"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "edge_sweep_duration_seconds",
			Help:    "Wall time of one scheduler sweep.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		tick: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "edge_scheduler_tick",
			Help: "Last tick handed to the pipeline.",
		}),
	}

	for _, c := range []prometheus.Collector{m.captures, m.images, m.messages, m.sweepDuration, m.tick} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) Capture(camera string, err error) {
	if m == nil {
		return
	}
	m.captures.WithLabelValues(camera, outcome(err)).Inc()
}

// Image records one processed image; result is "flagged", "safe" or "failed".
func (m *Metrics) Image(camera, result string) {
	if m == nil {
		return
	}
	m.images.WithLabelValues(camera, result).Inc()
}

func (m *Metrics) Message(messageType string, err error) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(messageType, outcome(err)).Inc()
}

func (m *Metrics) Sweep(tick int64, d time.Duration) {
	if m == nil {
		return
	}
	m.tick.Set(float64(tick))
	m.sweepDuration.Observe(d.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return Failed
	}
	return OK
}
