package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override the runtime section.
const (
	EnvFlushWorkers      = "DESTSYNC_FLUSH_WORKERS"
	EnvOptimalBatchBytes = "DESTSYNC_OPTIMAL_BATCH_BYTES"
	EnvFlushInterval     = "DESTSYNC_FLUSH_INTERVAL"
	EnvMemoryFraction    = "DESTSYNC_MEMORY_FRACTION"
)

// Load reads a pipeline file. .yaml and .yml are decoded as YAML, anything
// else as JSON. Unknown fields are rejected. Environment overrides are applied
// after decoding.
func Load(path string) (Pipeline, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("read config: %w", err)
	}
	p, err := Decode(b, filepath.Ext(path))
	if err != nil {
		return Pipeline{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	ApplyEnv(&p, os.Getenv)
	return p, nil
}

// Decode parses b as the format implied by ext.
func Decode(b []byte, ext string) (Pipeline, error) {
	var p Pipeline
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil {
			return Pipeline{}, err
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return Pipeline{}, err
		}
	}
	return p, nil
}

// ApplyEnv overwrites runtime values with the DESTSYNC_* variables that are
// set and parse; invalid values are ignored.
func ApplyEnv(p *Pipeline, getenv func(string) string) {
	r := &p.Runtime
	r.FlushWorkers = getenvInt(getenv, EnvFlushWorkers, r.FlushWorkers)
	r.OptimalBatchBytes = int64(getenvInt(getenv, EnvOptimalBatchBytes, int(r.OptimalBatchBytes)))
	if s := getenv(EnvFlushInterval); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			r.FlushInterval = Duration(d)
		}
	}
	if s := getenv(EnvMemoryFraction); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			r.MemoryBudgetFraction = f
		}
	}
}

// getenvInt reads an int from the environment, returning def when unset or
// invalid.
func getenvInt(getenv func(string) string, k string, def int) int {
	if s := getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}
