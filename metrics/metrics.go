// Package metrics records how long each stack step took and how it ended.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the step metrics. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aistack",
			Name:      "step_duration_seconds",
			Help:      "Time spent in each stack step.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"step"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aistack",
			Name:      "steps_total",
			Help:      "Stack steps by outcome.",
		}, []string{"step", "outcome"}),
	}
	r.registry.MustRegister(r.duration, r.outcomes)
	return r
}

// ObserveStep records one finished step.
func (r *Recorder) ObserveStep(step string, took time.Duration, err error) {
	if r == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	r.duration.WithLabelValues(step).Observe(took.Seconds())
	r.outcomes.WithLabelValues(step, outcome).Inc()
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// WriteTextfile writes the metrics in the node-exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
