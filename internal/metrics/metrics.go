// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from the destination pipeline.
//
// The package exposes a narrow Backend interface focused on counters and
// timing data. A global backend defaults to a no-op implementation, so the
// helpers are always safe to call even when no real backend is configured.
// Concrete metric systems (Pushgateway, DogStatsD) live in subpackages so the
// pipeline only depends on this interface.
package metrics

import "time"

// Metric names emitted by the helpers below.
const (
	StepTotal           = "destsync_step_total"
	StepDurationSeconds = "destsync_step_duration_seconds"
	FlushTotal          = "destsync_flush_total"
	FlushDuration       = "destsync_flush_duration_seconds"
	FlushedRecordsTotal = "destsync_flushed_records_total"
	FlushedBytesTotal   = "destsync_flushed_bytes_total"
	BackpressureTotal   = "destsync_backpressure_waits_total"
	MessagesTotal       = "destsync_messages_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
// It is meant to be called once at startup, before the pipeline runs.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

func status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// RecordStep measures latency and success/failure of a pipeline phase
// (bootstrap, type_dedupe, commit, cleanup, ...).
func RecordStep(job, step string, err error, d time.Duration) {
	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": status(err),
	}

	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDurationSeconds, d.Seconds(), lbls)
}

// RecordFlush records one batch write for a stream. Records and bytes are
// only counted for successful flushes.
func RecordFlush(job, stream string, records, bytes int64, err error, d time.Duration) {
	lbls := Labels{
		"job":    job,
		"stream": stream,
		"status": status(err),
	}
	backend.IncCounter(FlushTotal, 1, lbls)
	backend.ObserveHistogram(FlushDuration, d.Seconds(), lbls)
	if err != nil {
		return
	}

	lbls = Labels{"job": job, "stream": stream}
	if records > 0 {
		backend.IncCounter(FlushedRecordsTotal, float64(records), lbls)
	}
	if bytes > 0 {
		backend.IncCounter(FlushedBytesTotal, float64(bytes), lbls)
	}
}

// RecordBackpressure counts one enqueue that had to wait for buffer space.
func RecordBackpressure(job string) {
	backend.IncCounter(BackpressureTotal, 1, Labels{"job": job})
}

// RecordMessages increments the feed message counter for a message type
// (record, state, trace, log, unknown).
func RecordMessages(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(MessagesTotal, float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}
