package destination

import (
	"context"
	"sync"
	"testing"
	"time"

	"destsync/internal/catalog"
	"destsync/internal/naming"
	"destsync/internal/record"
)

// stubTyper records the order of typer calls and fails the ones listed in
// errs.
type stubTyper struct {
	mu        sync.Mutex
	calls     []string
	errs      map[string]error
	summaries map[catalog.StreamKey]StreamSummary
}

func (s *stubTyper) call(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, name)
	return s.errs[name]
}

func (s *stubTyper) PrepareSchemasAndRunMigrations(context.Context) error {
	return s.call("prepare_schemas")
}

func (s *stubTyper) PrepareFinalTables(context.Context) error {
	return s.call("prepare_final_tables")
}

func (s *stubTyper) TypeAndDedupe(_ context.Context, sums map[catalog.StreamKey]StreamSummary) error {
	s.mu.Lock()
	s.summaries = sums
	s.mu.Unlock()
	return s.call(StepTypeAndDedupe)
}

func (s *stubTyper) CommitFinalTables(context.Context) error { return s.call(StepCommit) }

func (s *stubTyper) Cleanup(context.Context) error { return s.call(StepCleanup) }

func (s *stubTyper) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *stubTyper) Summaries() map[catalog.StreamKey]StreamSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaries
}

// rec builds a record charged exactly size bytes.
func rec(size int64) record.Record {
	r := record.New([]byte(`{"id":1}`), time.Unix(1700000000, 0))
	r.SizeBytes = size
	return r
}

func mustResolve(t *testing.T, streams ...catalog.Stream) []WriteTarget {
	t.Helper()
	targets, err := Resolve(streams, NamingConfig{Convention: naming.ForKind("postgres"), DefaultSchema: "public"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return targets
}

func keyOf(name string) catalog.StreamKey { return catalog.StreamKey{Name: name} }

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
