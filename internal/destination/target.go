// Package destination is the buffered asynchronous write pipeline: it
// resolves where each stream lands, prepares storage, buffers records per
// stream under a memory budget, flushes them in batches on a small worker
// pool, and finalizes typed tables once everything is durable.
package destination

import (
	"fmt"
	"strings"

	"destsync/internal/catalog"
	"destsync/internal/naming"
	"destsync/internal/storage"
	"destsync/internal/typing"
)

// DefaultRawSchema holds every raw table unless configured otherwise.
const DefaultRawSchema = "destsync_internal"

// TempTableSuffix marks the final table a truncate refresh types into before
// it is swapped over the live table.
const TempTableSuffix = "_dsync_tmp"

// PostImportAction is what finalization does with a stream's rows.
type PostImportAction string

const (
	ActionAppend      PostImportAction = "append"
	ActionOverwrite   PostImportAction = "overwrite"
	ActionAppendDedup PostImportAction = "append_dedup"
)

// WriteTarget is the resolved physical destination of one stream. It is
// immutable once Resolve returns.
type WriteTarget struct {
	StreamName          string
	StreamNamespace     string
	RawNamespace        string
	RawTableName        string
	FinalNamespace      string
	FinalTableName      string
	PostImportAction    PostImportAction
	SyncID              int64
	GenerationID        int64
	MinimumGenerationID int64
	// TableNameSuffix is TempTableSuffix for truncate refreshes, else empty.
	TableNameSuffix    string
	TempFinalTableName string

	// Stream is the catalog entry the target was resolved from.
	Stream catalog.Stream
}

// Key returns the stream lookup key.
func (t WriteTarget) Key() catalog.StreamKey {
	return catalog.StreamKey{Namespace: t.StreamNamespace, Name: t.StreamName}
}

// Truncate reports whether the raw table must be emptied before any record
// of this sync is written.
func (t WriteTarget) Truncate() bool {
	return t.MinimumGenerationID != 0 && t.MinimumGenerationID == t.GenerationID
}

func (t WriteTarget) RawTable() storage.Table {
	return storage.Table{Namespace: t.RawNamespace, Name: t.RawTableName}
}

func (t WriteTarget) FinalTable() storage.Table {
	return storage.Table{Namespace: t.FinalNamespace, Name: t.FinalTableName}
}

// StreamConfig is the typer's view of the target.
func (t WriteTarget) StreamConfig() typing.StreamConfig {
	sc := typing.StreamConfig{
		Stream: t.Stream,
		Raw:    t.RawTable(),
		Final:  t.FinalTable(),
	}
	if t.TempFinalTableName != "" {
		sc.TempFinal = storage.Table{Namespace: t.FinalNamespace, Name: t.TempFinalTableName}
	}
	return sc
}

// StreamConfigs converts targets for typing.New.
func StreamConfigs(targets []WriteTarget) []typing.StreamConfig {
	out := make([]typing.StreamConfig, len(targets))
	for i, t := range targets {
		out[i] = t.StreamConfig()
	}
	return out
}

// NamingConfig controls how streams map onto physical names.
type NamingConfig struct {
	Convention naming.Convention
	// RawSchema defaults to DefaultRawSchema.
	RawSchema string
	// DefaultSchema is used for final tables of streams without a namespace.
	DefaultSchema string
	// RequireExplicitSchema rejects streams where neither the namespace nor
	// DefaultSchema is set.
	RequireExplicitSchema bool
}

// Resolve maps every stream to its WriteTarget. It performs no I/O.
func Resolve(streams []catalog.Stream, cfg NamingConfig) ([]WriteTarget, error) {
	rawSchema := strings.TrimSpace(cfg.RawSchema)
	if rawSchema == "" {
		rawSchema = DefaultRawSchema
	}
	conv := cfg.Convention

	seen := make(map[catalog.StreamKey]struct{}, len(streams))
	rawNames := make(map[string]catalog.StreamKey, len(streams))
	finalNames := make(map[storage.Table]catalog.StreamKey, len(streams))
	out := make([]WriteTarget, 0, len(streams))

	for _, s := range streams {
		key := s.Key()
		if strings.TrimSpace(s.Name) == "" {
			return nil, &ConfigurationError{Stream: key, Reason: "stream name is empty"}
		}
		if _, dup := seen[key]; dup {
			return nil, &ConfigurationError{Stream: key, Reason: "duplicate stream"}
		}
		seen[key] = struct{}{}

		if s.MinimumGenerationID != 0 && s.MinimumGenerationID != s.GenerationID {
			return nil, &InvalidLineageError{
				Stream:              key,
				GenerationID:        s.GenerationID,
				MinimumGenerationID: s.MinimumGenerationID,
			}
		}

		action, err := actionFor(s.DestinationSyncMode)
		if err != nil {
			return nil, &ConfigurationError{Stream: key, Reason: err.Error()}
		}

		finalNS := s.Namespace
		if finalNS == "" {
			finalNS = cfg.DefaultSchema
		}
		if finalNS == "" && cfg.RequireExplicitSchema {
			return nil, &ConfigurationError{Stream: key, Reason: "no namespace and no default schema configured"}
		}

		t := WriteTarget{
			StreamName:          s.Name,
			StreamNamespace:     s.Namespace,
			RawNamespace:        rawSchema,
			RawTableName:        conv.RawTableName(s.Namespace, s.Name),
			FinalTableName:      conv.Identifier(s.Name),
			PostImportAction:    action,
			SyncID:              s.SyncID,
			GenerationID:        s.GenerationID,
			MinimumGenerationID: s.MinimumGenerationID,
			Stream:              s,
		}
		if finalNS != "" {
			t.FinalNamespace = conv.Identifier(finalNS)
		}
		if t.Truncate() {
			t.TableNameSuffix = TempTableSuffix
			t.TempFinalTableName = conv.WithSuffix(t.FinalTableName, TempTableSuffix)
		}

		if other, clash := rawNames[t.RawTableName]; clash {
			return nil, &ConfigurationError{
				Stream: key,
				Reason: fmt.Sprintf("raw table %s collides with stream %s", t.RawTableName, other),
			}
		}
		rawNames[t.RawTableName] = key

		// The temp table of a truncate refresh is swapped over the final
		// table, so it must not belong to any other stream either.
		owned := []storage.Table{t.FinalTable()}
		if t.TempFinalTableName != "" {
			owned = append(owned, storage.Table{Namespace: t.FinalNamespace, Name: t.TempFinalTableName})
		}
		for _, tbl := range owned {
			if other, clash := finalNames[tbl]; clash {
				return nil, &ConfigurationError{
					Stream: key,
					Reason: fmt.Sprintf("final table %s collides with stream %s", tbl, other),
				}
			}
		}
		for _, tbl := range owned {
			finalNames[tbl] = key
		}
		out = append(out, t)
	}
	return out, nil
}

func actionFor(m catalog.DestinationSyncMode) (PostImportAction, error) {
	switch m {
	case "", catalog.DestinationAppend:
		return ActionAppend, nil
	case catalog.DestinationOverwrite:
		return ActionOverwrite, nil
	case catalog.DestinationAppendDedup:
		return ActionAppendDedup, nil
	default:
		return "", fmt.Errorf("unsupported destination_sync_mode %q", m)
	}
}
