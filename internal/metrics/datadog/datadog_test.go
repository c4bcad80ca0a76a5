package datadog

import (
	"net"
	"reflect"
	"strings"
	"testing"
	"time"

	"destsync/internal/metrics"
)

func TestNewBackend_RequiresAddr(t *testing.T) {
	t.Parallel()

	b, err := NewBackend(Config{})
	if err == nil {
		t.Fatalf("NewBackend(empty) error = nil, want non-nil")
	}
	if b != nil {
		t.Fatalf("NewBackend(empty) backend = %v, want nil", b)
	}
}

// listen returns a UDP agent stand-in and a func collecting every datagram
// received until the deadline.
func listen(t *testing.T) (string, func() string) {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("udp listen: %v", err)
	}
	t.Cleanup(func() { pc.Close() })
	return pc.LocalAddr().String(), func() string {
		var sb strings.Builder
		buf := make([]byte, 64<<10)
		_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
		for {
			n, _, err := pc.ReadFrom(buf)
			if err != nil {
				return sb.String()
			}
			sb.Write(buf[:n])
			sb.WriteByte('\n')
			_ = pc.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		}
	}
}

func TestBackend_SendsNamespacedTaggedMetrics(t *testing.T) {
	t.Parallel()

	addr, read := listen(t)
	b, err := NewBackend(Config{Addr: addr, Namespace: "etl", GlobalTags: []string{"job:nightly"}})
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	b.IncCounter(metrics.FlushTotal, 1, metrics.Labels{"stream": "users", "status": "success"})
	b.ObserveHistogram(metrics.FlushDuration, 0.5, metrics.Labels{"stream": "users"})
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("second Flush() error = %v", err)
	}

	got := read()
	for _, want := range []string{
		"etl.flush:1|c",
		"etl.flush.duration.seconds:0.5|d",
		"job:nightly",
		"status:success,stream:users",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("datagrams missing %q:\n%s", want, got)
		}
	}
}

func TestZeroBackendIsSafe(t *testing.T) {
	t.Parallel()

	b := &Backend{}
	b.IncCounter(metrics.StepTotal, 1, nil)
	b.ObserveHistogram(metrics.StepDurationSeconds, 1, nil)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
}

func TestMetricName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		metrics.FlushTotal:          "flush",
		metrics.FlushedRecordsTotal: "flushed.records",
		metrics.StepDurationSeconds: "step.duration.seconds",
		metrics.BackpressureTotal:   "backpressure.waits",
		"custom":                    "custom",
	}
	for in, want := range tests {
		if got := metricName(in); got != want {
			t.Errorf("metricName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   metrics.Labels
		want []string
	}{
		{name: "nil", in: nil, want: nil},
		{name: "only empty values", in: metrics.Labels{"job": ""}, want: nil},
		{
			name: "sorted",
			in:   metrics.Labels{"stream": "users", "job": "sync", "status": "success"},
			want: []string{"job:sync", "status:success", "stream:users"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tags(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("tags(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
