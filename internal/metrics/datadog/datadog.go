// Package datadog ships destination pipeline metrics to a DogStatsD agent.
//
// Metric names from the metrics package ("destsync_flush_total") are
// rewritten into Datadog's dotted form ("destsync.flush") and labels become
// "key:value" tags.
package datadog

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"destsync/internal/metrics"

	"github.com/DataDog/datadog-go/v5/statsd"
)

// DefaultNamespace prefixes every metric when Config.Namespace is empty.
const DefaultNamespace = "destsync."

// Config holds Datadog backend configuration.
type Config struct {
	// Addr is the DogStatsD address, e.g. "127.0.0.1:8125" or "unix:///var/run/datadog/dsd.socket".
	Addr string
	// Namespace defaults to DefaultNamespace.
	Namespace string
	// GlobalTags are sent with every metric, e.g. "job:nightly".
	GlobalTags []string
}

// Backend implements metrics.Backend over a statsd client.
type Backend struct {
	client    *statsd.Client
	closeOnce sync.Once
	closeErr  error
}

// NewBackend builds the statsd client. UDP addresses need no running agent.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.Addr == "" {
		return nil, errors.New("datadog: Addr is required")
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	if !strings.HasSuffix(ns, ".") {
		ns += "."
	}
	opts := []statsd.Option{statsd.WithNamespace(ns)}
	if len(cfg.GlobalTags) > 0 {
		opts = append(opts, statsd.WithTags(cfg.GlobalTags))
	}
	c, err := statsd.New(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("datadog: create client: %w", err)
	}
	return &Backend{client: c}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	_ = b.client.Count(metricName(name), int64(math.Round(delta)), tags(labels), 1)
}

// ObserveHistogram sends *_seconds metrics as distributions so percentiles
// aggregate across hosts. Everything else is a plain histogram.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	if strings.HasSuffix(name, "_seconds") {
		_ = b.client.Distribution(metricName(name), value, tags(labels), 1)
		return
	}
	_ = b.client.Histogram(metricName(name), value, tags(labels), 1)
}

// Flush drains buffered metrics and closes the client. Later calls return
// the first result.
func (b *Backend) Flush() error {
	if b.client == nil {
		return nil
	}
	b.closeOnce.Do(func() { b.closeErr = b.client.Close() })
	return b.closeErr
}

// metricName drops the "destsync_" prefix (the namespace carries it) and the
// "_total" counter suffix, then dots the rest.
func metricName(name string) string {
	name = strings.TrimPrefix(name, "destsync_")
	name = strings.TrimSuffix(name, "_total")
	return strings.ReplaceAll(name, "_", ".")
}

// tags renders labels sorted by key. Empty values are skipped.
func tags(lbls metrics.Labels) []string {
	if len(lbls) == 0 {
		return nil
	}
	out := make([]string, 0, len(lbls))
	for k, v := range lbls {
		if v == "" {
			continue
		}
		out = append(out, k+":"+v)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
