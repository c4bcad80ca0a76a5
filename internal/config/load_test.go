package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"destsync/internal/catalog"
)

const jsonPipeline = `{
  "job": "users-sync",
  "destination": {"kind": "postgres", "dsn": "postgres://u@h/db", "default_schema": "public", "raw_schema": "raw"},
  "catalog": {"streams": [
    {"name": "users", "namespace": "crm", "destination_sync_mode": "append_dedup",
     "generation_id": 3, "minimum_generation_id": 3, "sync_id": 11,
     "primary_key": ["id"], "cursor": "updated_at",
     "columns": [{"name": "id", "type": "integer"}, {"name": "updated_at", "type": "timestamptz"}]}
  ]},
  "runtime": {"memory_budget_fraction": 0.3, "optimal_batch_bytes": 1048576, "flush_workers": 4, "flush_interval": "5s"}
}`

const yamlPipeline = `job: users-sync
destination:
  kind: postgres
  dsn: postgres://u@h/db
  default_schema: public
  raw_schema: raw
catalog:
  streams:
    - name: users
      namespace: crm
      destination_sync_mode: append_dedup
      generation_id: 3
      minimum_generation_id: 3
      sync_id: 11
      primary_key: [id]
      cursor: updated_at
      columns:
        - {name: id, type: integer}
        - {name: updated_at, type: timestamptz}
runtime:
  memory_budget_fraction: 0.3
  optimal_batch_bytes: 1048576
  flush_workers: 4
  flush_interval: 5s
`

func checkDecoded(t *testing.T, p Pipeline) {
	t.Helper()
	if p.Job != "users-sync" || p.Destination.Kind != "postgres" || p.Destination.RawSchema != "raw" {
		t.Fatalf("top level = %+v", p)
	}
	if len(p.Catalog.Streams) != 1 {
		t.Fatalf("streams = %+v", p.Catalog.Streams)
	}
	s := p.Catalog.Streams[0]
	if s.Key() != (catalog.StreamKey{Namespace: "crm", Name: "users"}) ||
		s.DestinationSyncMode != catalog.DestinationAppendDedup ||
		s.GenerationID != 3 || s.MinimumGenerationID != 3 || s.SyncID != 11 ||
		len(s.PrimaryKey) != 1 || s.Cursor != "updated_at" || len(s.Columns) != 2 || s.Columns[1].Type != "timestamptz" {
		t.Fatalf("stream = %+v", s)
	}
	r := p.Runtime
	if r.MemoryBudgetFraction != 0.3 || r.OptimalBatchBytes != 1<<20 || r.FlushWorkers != 4 || r.FlushInterval.Std() != 5*time.Second {
		t.Fatalf("runtime = %+v", r)
	}
}

func TestDecode_JSONAndYAMLAgree(t *testing.T) {
	t.Parallel()

	pj, err := Decode([]byte(jsonPipeline), ".json")
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	checkDecoded(t, pj)

	py, err := Decode([]byte(yamlPipeline), ".YML")
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	checkDecoded(t, py)
}

func TestDecode_RejectsUnknownFields(t *testing.T) {
	t.Parallel()

	if _, err := Decode([]byte(`{"job":"x","storage":{}}`), ".json"); err == nil {
		t.Fatalf("json accepted unknown field")
	}
	if _, err := Decode([]byte("job: x\nstorage: {}\n"), ".yaml"); err == nil {
		t.Fatalf("yaml accepted unknown field")
	}
}

func TestDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		ext  string
		want time.Duration
		err  bool
	}{
		{"json string", `{"runtime":{"flush_interval":"1m30s"}}`, ".json", 90 * time.Second, false},
		{"json seconds", `{"runtime":{"flush_interval":2.5}}`, ".json", 2500 * time.Millisecond, false},
		{"json null", `{"runtime":{"flush_interval":null}}`, ".json", 0, false},
		{"json garbage", `{"runtime":{"flush_interval":"soon"}}`, ".json", 0, true},
		{"yaml string", "runtime:\n  flush_interval: 250ms\n", ".yaml", 250 * time.Millisecond, false},
		{"yaml int seconds", "runtime:\n  flush_interval: 10\n", ".yaml", 10 * time.Second, false},
		{"yaml garbage", "runtime:\n  flush_interval: soon\n", ".yaml", 0, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := Decode([]byte(tt.in), tt.ext)
			if tt.err {
				if err == nil {
					t.Fatalf("Decode succeeded")
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got := p.Runtime.FlushInterval.Std(); got != tt.want {
				t.Fatalf("FlushInterval = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		EnvFlushWorkers:      "8",
		EnvOptimalBatchBytes: "4096",
		EnvFlushInterval:     "2s",
		EnvMemoryFraction:    "0.5",
	}
	p := Pipeline{Runtime: RuntimeConfig{FlushWorkers: 2, OptimalBatchBytes: 1, FlushInterval: Duration(time.Hour)}}
	ApplyEnv(&p, func(k string) string { return env[k] })
	r := p.Runtime
	if r.FlushWorkers != 8 || r.OptimalBatchBytes != 4096 || r.FlushInterval.Std() != 2*time.Second || r.MemoryBudgetFraction != 0.5 {
		t.Fatalf("runtime after env = %+v", r)
	}

	// Invalid or unset values leave the file's values alone.
	env = map[string]string{EnvFlushWorkers: "many", EnvFlushInterval: "later"}
	p = Pipeline{Runtime: RuntimeConfig{FlushWorkers: 3, FlushInterval: Duration(time.Minute)}}
	ApplyEnv(&p, func(k string) string { return env[k] })
	if p.Runtime.FlushWorkers != 3 || p.Runtime.FlushInterval.Std() != time.Minute {
		t.Fatalf("invalid env applied: %+v", p.Runtime)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	if err := os.WriteFile(path, []byte(yamlPipeline), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Job != "users-sync" {
		t.Fatalf("Job = %q", p.Job)
	}
	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatalf("Load of missing file succeeded")
	}
}
