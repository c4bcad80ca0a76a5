package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"destsync/internal/catalog"
	"destsync/internal/destination"
	"destsync/internal/feed"
	"destsync/internal/naming"
	"destsync/internal/storage/sqlite"
	sqliteddl "destsync/internal/storage/sqlite/ddl"
	"destsync/internal/typing"
)

func TestParseFlags(t *testing.T) {
	t.Parallel()

	o, err := parseFlags(nil)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if o.configPath != "pipeline.yaml" || o.input != "-" || o.validate || o.verbose {
		t.Fatalf("defaults = %+v", o)
	}

	o, err = parseFlags([]string{"-config", "p.json", "-input", "feed.ndjson", "-validate", "-metrics-backend", "datadog", "-v"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if o.configPath != "p.json" || o.input != "feed.ndjson" || !o.validate || o.metricsBackend != "datadog" || !o.verbose {
		t.Fatalf("parsed = %+v", o)
	}

	if _, err := parseFlags([]string{"-config", "p.json", "extra"}); err == nil {
		t.Fatalf("positional argument accepted")
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func sqlitePipeline(dsn string) string {
	return `{
  "job": "e2e",
  "destination": {"kind": "sqlite", "dsn": "` + dsn + `", "disable_type_dedupe": true},
  "catalog": {"streams": [
    {"name": "users", "destination_sync_mode": "overwrite", "generation_id": 2, "minimum_generation_id": 2},
    {"name": "events", "destination_sync_mode": "append", "generation_id": 2}
  ]},
  "runtime": {"flush_workers": 2, "optimal_batch_bytes": 512, "flush_interval": "50ms"}
}`
}

func recordLine(stream, data string) string {
	return `{"type":"RECORD","record":{"stream":"` + stream + `","emitted_at":1700000000000,"data":` + data + `}}` + "\n"
}

func rawCounts(t *testing.T, dsn string) map[string]int {
	t.Helper()
	targets, err := destination.Resolve([]catalog.Stream{{Name: "users"}, {Name: "events"}},
		destination.NamingConfig{Convention: naming.ForKind(sqlite.Kind)})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	out := map[string]int{}
	for _, tg := range targets {
		var n int
		q := "SELECT COUNT(*) FROM " + sqliteddl.QuoteIdent(sqliteddl.PhysicalName(tg.RawTable()))
		if err := db.QueryRow(q).Scan(&n); err != nil {
			t.Fatalf("count %s: %v", tg.StreamName, err)
		}
		out[tg.StreamName] = n
	}
	return out
}

func TestRun_ValidateOnly(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := writeFile(t, dir, "pipeline.json", sqlitePipeline(filepath.Join(dir, "dest.db")))
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), options{configPath: cfg, validate: true}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v (stderr %s)", err, stderr.String())
	}
	if !strings.Contains(stdout.String(), "configuration is valid") {
		t.Fatalf("stdout = %q", stdout.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "dest.db")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("validate touched the destination: %v", err)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := writeFile(t, dir, "pipeline.yaml", "job: x\ndestination:\n  kind: sqlite\ncatalog:\n  streams: []\n")
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), options{configPath: cfg}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "configuration is invalid") {
		t.Fatalf("run = %v, want invalid configuration", err)
	}
	for _, want := range []string{"destination.dsn", "catalog.streams"} {
		if !strings.Contains(stderr.String(), want) {
			t.Fatalf("stderr missing %s: %s", want, stderr.String())
		}
	}
}

func TestRun_SQLiteEndToEnd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dsn := filepath.Join(dir, "dest.db")
	cfg := writeFile(t, dir, "pipeline.json", sqlitePipeline(dsn))

	var in strings.Builder
	in.WriteString(`{"type":"LOG","log":{"level":"INFO","message":"start"}}` + "\n")
	for i := 0; i < 3; i++ {
		in.WriteString(recordLine("users", `{"id":1,"name":"`+strings.Repeat("x", 200)+`"}`))
	}
	in.WriteString(`{"type":"STATE","state":{"data":{}}}` + "\n")
	in.WriteString(recordLine("events", `{"id":10}`))
	in.WriteString(recordLine("events", `{"id":11}`))
	feedPath := writeFile(t, dir, "feed.ndjson", in.String())

	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), options{configPath: cfg, input: feedPath}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}
	if got := rawCounts(t, dsn); got["users"] != 3 || got["events"] != 2 {
		t.Fatalf("raw counts after first sync = %v", got)
	}
	out := stdout.String()
	if !strings.Contains(out, "STREAM") || !strings.Contains(out, string(typing.StatusComplete)) {
		t.Fatalf("summary = %q", out)
	}

	// A second sync of the same generation truncates the refresh stream and
	// appends to the other.
	feedPath = writeFile(t, dir, "feed2.ndjson", recordLine("users", `{"id":2}`)+recordLine("events", `{"id":12}`))
	stdout.Reset()
	if err := run(context.Background(), options{configPath: cfg, input: feedPath}, &stdout, &stderr); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := rawCounts(t, dsn); got["users"] != 1 || got["events"] != 3 {
		t.Fatalf("raw counts after second sync = %v", got)
	}
}

func TestRun_MalformedFeedSkipsFinalization(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dsn := filepath.Join(dir, "dest.db")
	cfg := writeFile(t, dir, "pipeline.json", sqlitePipeline(dsn))
	feedPath := writeFile(t, dir, "feed.ndjson", recordLine("events", `{"id":1}`)+"{broken\n")

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), options{configPath: cfg, input: feedPath}, &stdout, &stderr)
	var le *feed.LineError
	if !errors.As(err, &le) || le.Line != 2 {
		t.Fatalf("run = %v, want LineError on line 2", err)
	}
	if !strings.Contains(stdout.String(), string(typing.StatusIncomplete)) {
		t.Fatalf("summary = %q, want incomplete streams", stdout.String())
	}
	// Records read before the bad line are still flushed to the raw table.
	if got := rawCounts(t, dsn); got["events"] != 1 {
		t.Fatalf("raw counts = %v", got)
	}
}

func TestRun_UnknownStreamFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := writeFile(t, dir, "pipeline.json", sqlitePipeline(filepath.Join(dir, "dest.db")))
	feedPath := writeFile(t, dir, "feed.ndjson", recordLine("ghosts", `{"id":1}`))

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), options{configPath: cfg, input: feedPath}, &stdout, &stderr)
	var unknown *destination.UnknownStreamError
	if !errors.As(err, &unknown) {
		t.Fatalf("run = %v, want UnknownStreamError", err)
	}
}

func TestWriteSummary(t *testing.T) {
	t.Parallel()

	targets := []destination.WriteTarget{{StreamName: "b"}, {StreamName: "a", StreamNamespace: "ns"}, {StreamName: "a"}}
	res := destination.Result{Summaries: map[catalog.StreamKey]destination.StreamSummary{
		{Name: "a"}:                  {RecordsWritten: 2, BytesWritten: 20, Flushes: 1, Status: typing.StatusComplete},
		{Name: "b"}:                  {Status: typing.StatusIncomplete},
		{Namespace: "ns", Name: "a"}: {RecordsWritten: 1, Flushes: 1, Status: typing.StatusComplete},
	}}
	var buf bytes.Buffer
	writeSummary(&buf, targets, res)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("summary lines = %q", lines)
	}
	order := []string{"a ", "b ", "ns.a "}
	for i, prefix := range order {
		if !strings.HasPrefix(lines[i+1], prefix) {
			t.Fatalf("line %d = %q, want prefix %q", i+1, lines[i+1], prefix)
		}
	}
	if !strings.Contains(lines[1], "2") || !strings.Contains(lines[1], "complete") {
		t.Fatalf("row for a = %q", lines[1])
	}
}
