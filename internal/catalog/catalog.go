// Package catalog describes the configured streams of a sync: which logical
// streams exist, how they are written, and their generation lineage.
package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// SyncMode is how the source reads a stream.
type SyncMode string

const (
	SyncModeFullRefresh SyncMode = "full_refresh"
	SyncModeIncremental SyncMode = "incremental"
)

// DestinationSyncMode is how the destination applies a stream's records to
// its final table.
type DestinationSyncMode string

const (
	DestinationAppend      DestinationSyncMode = "append"
	DestinationOverwrite   DestinationSyncMode = "overwrite"
	DestinationAppendDedup DestinationSyncMode = "append_dedup"
)

// StreamKey identifies a logical stream. Namespace may be empty.
type StreamKey struct {
	Namespace string
	Name      string
}

func (k StreamKey) String() string {
	if k.Namespace == "" {
		return k.Name
	}
	return k.Namespace + "." + k.Name
}

// Column is a declared field of a stream with its logical type
// (string, integer, number, boolean, date, timestamp, timestamptz, object,
// array).
type Column struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// Stream is one configured stream of the catalog.
type Stream struct {
	Name                string              `json:"name" yaml:"name"`
	Namespace           string              `json:"namespace" yaml:"namespace"`
	SyncMode            SyncMode            `json:"sync_mode" yaml:"sync_mode"`
	DestinationSyncMode DestinationSyncMode `json:"destination_sync_mode" yaml:"destination_sync_mode"`

	// GenerationID is the generation written by this sync.
	// MinimumGenerationID is the oldest generation still valid in the final
	// table: 0 keeps everything, GenerationID means "truncate first".
	GenerationID        int64 `json:"generation_id" yaml:"generation_id"`
	MinimumGenerationID int64 `json:"minimum_generation_id" yaml:"minimum_generation_id"`
	SyncID              int64 `json:"sync_id" yaml:"sync_id"`

	PrimaryKey []string `json:"primary_key" yaml:"primary_key"`
	Cursor     string   `json:"cursor" yaml:"cursor"`
	Columns    []Column `json:"columns" yaml:"columns"`
}

// Key returns the stream's lookup key.
func (s Stream) Key() StreamKey { return StreamKey{Namespace: s.Namespace, Name: s.Name} }

// Catalog is the ordered set of streams configured for a sync.
type Catalog struct {
	Streams []Stream `json:"streams" yaml:"streams"`
}

// Duplicates returns keys that appear more than once, sorted.
func (c Catalog) Duplicates() []StreamKey {
	seen := make(map[StreamKey]int, len(c.Streams))
	for _, s := range c.Streams {
		seen[s.Key()]++
	}
	var dup []StreamKey
	for k, n := range seen {
		if n > 1 {
			dup = append(dup, k)
		}
	}
	SortKeys(dup)
	return dup
}

// SortKeys orders keys by namespace then name.
func SortKeys(keys []StreamKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Namespace != keys[j].Namespace {
			return keys[i].Namespace < keys[j].Namespace
		}
		return keys[i].Name < keys[j].Name
	})
}

// FieldError is one problem with a stream definition. Field is the
// catalog key it refers to, e.g. "primary_key".
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string { return e.Field + ": " + e.Message }

// Validate checks the stream definition for mistakes that would otherwise
// surface mid-sync. An empty destination_sync_mode means append.
func (s Stream) Validate() []FieldError {
	var errs []FieldError
	if strings.TrimSpace(s.Name) == "" {
		errs = append(errs, FieldError{Field: "name", Message: "stream name must not be empty"})
	}
	switch s.DestinationSyncMode {
	case "", DestinationAppend, DestinationOverwrite:
	case DestinationAppendDedup:
		if len(s.PrimaryKey) == 0 {
			errs = append(errs, FieldError{Field: "primary_key", Message: "append_dedup requires a primary key"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "destination_sync_mode",
			Message: fmt.Sprintf("unsupported destination_sync_mode %q", s.DestinationSyncMode),
		})
	}
	if s.GenerationID < 0 {
		errs = append(errs, FieldError{Field: "generation_id", Message: "generation_id must not be negative"})
	}
	if s.MinimumGenerationID != 0 && s.MinimumGenerationID != s.GenerationID {
		errs = append(errs, FieldError{
			Field: "minimum_generation_id",
			Message: fmt.Sprintf("minimum_generation_id=%d must be 0 or equal generation_id=%d",
				s.MinimumGenerationID, s.GenerationID),
		})
	}
	return errs
}
