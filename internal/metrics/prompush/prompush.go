// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// This package adapts the generic metrics.Backend interface to Prometheus by:
//
//   - Using client_golang CounterVec and SummaryVec collectors.
//   - Mapping the pipeline labels (step, stream, status, kind) onto
//     Prometheus labels; job is the Pushgateway grouping key.
//   - Pushing collected metrics to a Pushgateway instead of exposing an HTTP
//     scrape endpoint, since a sync is a batch process.
package prompush

import (
	"fmt"

	"destsync/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

var objectives = map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001}

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	// Phase-level metrics
	stepCounter  *prometheus.CounterVec
	stepDuration *prometheus.SummaryVec

	// Flush-level metrics
	flushCounter  *prometheus.CounterVec
	flushDuration *prometheus.SummaryVec
	recordCounter *prometheus.CounterVec
	byteCounter   *prometheus.CounterVec

	backpressureCounter prometheus.Counter
	messageCounter      *prometheus.CounterVec
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName: the Pushgateway "job" name (often same as pipeline job).
// gatewayURL: base URL of the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "destsync"
	}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		stepCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Total number of pipeline phase executions, partitioned by step and status.",
		}, []string{"step", "status"}),
		stepDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.StepDurationSeconds,
			Help:       "Duration of pipeline phases in seconds, partitioned by step and status.",
			Objectives: objectives,
		}, []string{"step", "status"}),
		flushCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.FlushTotal,
			Help: "Batch writes per stream, partitioned by status.",
		}, []string{"stream", "status"}),
		flushDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.FlushDuration,
			Help:       "Duration of batch writes in seconds.",
			Objectives: objectives,
		}, []string{"stream", "status"}),
		recordCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.FlushedRecordsTotal,
			Help: "Records durably written to raw tables.",
		}, []string{"stream"}),
		byteCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.FlushedBytesTotal,
			Help: "Approximate record bytes durably written to raw tables.",
		}, []string{"stream"}),
		backpressureCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metrics.BackpressureTotal,
			Help: "Enqueues that waited for buffer space.",
		}),
		messageCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.MessagesTotal,
			Help: "Feed messages read, partitioned by message type.",
		}, []string{"kind"}),
	}

	collectors := []struct {
		what string
		c    prometheus.Collector
	}{
		{"step counter", b.stepCounter},
		{"step summary", b.stepDuration},
		{"flush counter", b.flushCounter},
		{"flush summary", b.flushDuration},
		{"record counter", b.recordCounter},
		{"byte counter", b.byteCounter},
		{"backpressure counter", b.backpressureCounter},
		{"message counter", b.messageCounter},
	}
	for _, c := range collectors {
		if err := b.reg.Register(c.c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", c.what, err)
		}
	}
	return b, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StepTotal:
		if b.stepCounter == nil {
			return
		}
		b.stepCounter.WithLabelValues(labels["step"], labels["status"]).Add(delta)

	case metrics.FlushTotal:
		if b.flushCounter == nil {
			return
		}
		b.flushCounter.WithLabelValues(labels["stream"], labels["status"]).Add(delta)

	case metrics.FlushedRecordsTotal:
		if b.recordCounter == nil {
			return
		}
		b.recordCounter.WithLabelValues(labels["stream"]).Add(delta)

	case metrics.FlushedBytesTotal:
		if b.byteCounter == nil {
			return
		}
		b.byteCounter.WithLabelValues(labels["stream"]).Add(delta)

	case metrics.BackpressureTotal:
		if b.backpressureCounter == nil {
			return
		}
		b.backpressureCounter.Add(delta)

	case metrics.MessagesTotal:
		if b.messageCounter == nil {
			return
		}
		b.messageCounter.WithLabelValues(labels["kind"]).Add(delta)

	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	switch name {
	case metrics.StepDurationSeconds:
		if b.stepDuration == nil {
			return
		}
		b.stepDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
	case metrics.FlushDuration:
		if b.flushDuration == nil {
			return
		}
		b.flushDuration.WithLabelValues(labels["stream"], labels["status"]).Observe(value)
	}
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
