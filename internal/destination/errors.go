package destination

import (
	"fmt"
	"strings"

	"destsync/internal/catalog"
	"destsync/internal/storage"
)

// ConfigurationError reports bad or missing settings found before ingestion.
type ConfigurationError struct {
	Stream catalog.StreamKey
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Stream == (catalog.StreamKey{}) {
		return "configuration: " + e.Reason
	}
	return fmt.Sprintf("configuration: stream %s: %s", e.Stream, e.Reason)
}

// InvalidLineageError reports a minimum generation that is neither 0 nor the
// stream's generation.
type InvalidLineageError struct {
	Stream              catalog.StreamKey
	GenerationID        int64
	MinimumGenerationID int64
}

func (e *InvalidLineageError) Error() string {
	return fmt.Sprintf("invalid generation lineage for stream %s: minimum_generation_id=%d must be 0 or generation_id=%d",
		e.Stream, e.MinimumGenerationID, e.GenerationID)
}

// UnknownStreamError is returned by the buffer pool for a key that was not
// resolved at startup.
type UnknownStreamError struct {
	Stream catalog.StreamKey
}

func (e *UnknownStreamError) Error() string {
	return fmt.Sprintf("record for unknown stream %s", e.Stream)
}

// UnmappedStreamError is returned by the batch writer when a flush names a
// stream without a write target. Known lists the resolved keys.
type UnmappedStreamError struct {
	Stream catalog.StreamKey
	Known  []catalog.StreamKey
}

func (e *UnmappedStreamError) Error() string {
	known := make([]string, len(e.Known))
	for i, k := range e.Known {
		known[i] = k.String()
	}
	return fmt.Sprintf("stream %s has no write target (known: [%s])", e.Stream, strings.Join(known, ", "))
}

// PersistenceError wraps any store failure during bootstrap or flush.
type PersistenceError struct {
	Op     string
	Stream catalog.StreamKey
	Table  storage.Table
	Err    error
}

func (e *PersistenceError) Error() string {
	var b strings.Builder
	b.WriteString("persistence: ")
	b.WriteString(e.Op)
	if e.Stream != (catalog.StreamKey{}) {
		fmt.Fprintf(&b, " stream=%s", e.Stream)
	}
	if e.Table.Name != "" {
		fmt.Fprintf(&b, " table=%s", e.Table)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// FinalizationError tags a failure in the type/dedupe, commit or cleanup
// chain with the step that failed.
type FinalizationError struct {
	Step string
	Err  error
}

func (e *FinalizationError) Error() string {
	return fmt.Sprintf("finalization %s: %v", e.Step, e.Err)
}

func (e *FinalizationError) Unwrap() error { return e.Err }
