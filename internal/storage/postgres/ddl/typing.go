package ddl

import (
	"fmt"
	"strings"

	"destsync/internal/catalog"
	gddl "destsync/internal/ddl"
	"destsync/internal/naming"
	"destsync/internal/storage"
	"destsync/internal/typing"
)

// StateSchema holds the migration-managed state table and cast helpers.
const StateSchema = "destsync_internal"

// StateTable records the last committed generation of every stream.
var StateTable = storage.Table{Namespace: StateSchema, Name: "_destsync_state"}

// Generator renders Postgres typing SQL.
type Generator struct {
	conv naming.Convention
}

var _ typing.Generator = Generator{}

// NewGenerator returns a Generator using the Postgres naming convention.
func NewGenerator() Generator {
	return Generator{conv: naming.ForKind("postgres")}
}

func (g Generator) finalDef(s typing.StreamConfig) (gddl.TableDef, error) {
	return gddl.FinalTable(s.WriteTable().FQN(), s.Stream.Columns, g.conv.Identifier, MapType)
}

// PrepareFinalTable creates the final table when absent. A temporary final
// table is always recreated empty.
func (g Generator) PrepareFinalTable(s typing.StreamConfig) ([]string, error) {
	td, err := g.finalDef(s)
	if err != nil {
		return nil, err
	}
	if s.TempFinal.Name == "" {
		stmt, err := BuildCreateTableSQL(td)
		if err != nil {
			return nil, err
		}
		return []string{stmt}, nil
	}
	stmt, err := buildCreateTable(td, false)
	if err != nil {
		return nil, err
	}
	return []string{DropTableSQL(s.TempFinal), stmt}, nil
}

// TypeAndDedupe inserts unloaded raw rows with casted columns, deletes
// superseded versions for append_dedup streams, then marks raw rows loaded.
func (g Generator) TypeAndDedupe(s typing.StreamConfig) ([]string, error) {
	td, err := g.finalDef(s)
	if err != nil {
		return nil, err
	}
	stmts := []string{g.insertFromRaw(s, td)}

	if s.Stream.DestinationSyncMode == catalog.DestinationAppendDedup {
		if len(s.Stream.PrimaryKey) == 0 {
			return nil, fmt.Errorf("append_dedup stream %s has no primary key", s.Stream.Key())
		}
		stmts = append(stmts, g.dedupe(s))
	}

	stmts = append(stmts, fmt.Sprintf(
		"UPDATE %s SET %s = NOW() WHERE %s IS NULL",
		QuoteTable(s.Raw), quoteIdent(gddl.ColLoadedAt), quoteIdent(gddl.ColLoadedAt),
	))
	return stmts, nil
}

func (g Generator) insertFromRaw(s typing.StreamConfig, td gddl.TableDef) string {
	names := make([]string, 0, len(td.Columns))
	exprs := make([]string, 0, len(td.Columns))
	for i, c := range s.Stream.Columns {
		names = append(names, quoteIdent(td.Columns[i].Name))
		exprs = append(exprs, castExpr(c))
	}
	for _, m := range gddl.FinalMetaColumns {
		names = append(names, quoteIdent(m))
		exprs = append(exprs, "r."+quoteIdent(m))
	}
	where := fmt.Sprintf("r.%s IS NULL", quoteIdent(gddl.ColLoadedAt))
	// A truncate refresh only types rows of its own generation, even if an
	// older generation survived in the raw table.
	if minGen := s.Stream.MinimumGenerationID; minGen != 0 && minGen == s.Stream.GenerationID {
		where += fmt.Sprintf(" AND r.%s >= %d", quoteIdent(gddl.ColGenerationID), minGen)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s)\nSELECT %s\nFROM %s AS r\nWHERE %s",
		QuoteTable(s.WriteTable()),
		strings.Join(names, ", "),
		strings.Join(exprs, ", "),
		QuoteTable(s.Raw),
		where,
	)
}

// dedupe keeps one row per primary key: the highest cursor, then the most
// recently extracted.
func (g Generator) dedupe(s typing.StreamConfig) string {
	pk := make([]string, len(s.Stream.PrimaryKey))
	for i, k := range s.Stream.PrimaryKey {
		pk[i] = quoteIdent(g.conv.Identifier(k))
	}
	order := make([]string, 0, 3)
	if s.Stream.Cursor != "" {
		order = append(order, quoteIdent(g.conv.Identifier(s.Stream.Cursor))+" DESC NULLS LAST")
	}
	order = append(order,
		quoteIdent(gddl.ColExtractedAt)+" DESC",
		quoteIdent(gddl.ColRawID)+" DESC",
	)
	tbl := QuoteTable(s.WriteTable())
	id := quoteIdent(gddl.ColRawID)
	return fmt.Sprintf(
		"DELETE FROM %s AS f\nUSING (SELECT %s, ROW_NUMBER() OVER (PARTITION BY %s ORDER BY %s) AS rn FROM %s) AS d\nWHERE f.%s = d.%s AND d.rn > 1",
		tbl, id, strings.Join(pk, ", "), strings.Join(order, ", "), tbl, id, id,
	)
}

// castExpr extracts one declared column from the raw JSON payload. Values
// that do not cast become NULL through the migration-installed try_cast
// helpers instead of failing the whole statement.
func castExpr(c catalog.Column) string {
	field := "r." + quoteIdent(gddl.ColData)
	key := quoteLiteral(c.Name)
	text := fmt.Sprintf("(%s->>%s)", field, key)

	kind := strings.ToLower(strings.TrimSpace(c.Type))
	switch kind {
	case "integer", "int", "bigint":
		return fmt.Sprintf("%s.try_cast_bigint%s", StateSchema, text)
	case "number", "numeric":
		return fmt.Sprintf("%s.try_cast_numeric%s", StateSchema, text)
	case "boolean", "bool":
		return fmt.Sprintf("%s.try_cast_boolean%s", StateSchema, text)
	case "date", "timestamp", "timestamptz":
		return fmt.Sprintf("%s.try_cast_%s%s", StateSchema, kind, text)
	case "json":
		return fmt.Sprintf("(%s->%s)", field, key)
	case "object", "array":
		return fmt.Sprintf("CASE WHEN jsonb_typeof(%s->%s) = '%s' THEN %s->%s END", field, key, kind, field, key)
	default:
		return text
	}
}

// CommitFinalTable replaces the live final table with the temporary one.
func (g Generator) CommitFinalTable(s typing.StreamConfig) []string {
	if s.TempFinal.Name == "" {
		return nil
	}
	return []string{
		DropTableSQL(s.Final),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", QuoteTable(s.TempFinal), quoteIdent(s.Final.Name)),
	}
}

// RecordState upserts the stream's generation into StateTable.
func (g Generator) RecordState(s typing.StreamConfig) string {
	return fmt.Sprintf(
		"INSERT INTO %s (namespace, name, generation_id, sync_id, updated_at) VALUES (%s, %s, %d, %d, NOW())\n"+
			"ON CONFLICT (namespace, name) DO UPDATE SET generation_id = EXCLUDED.generation_id, sync_id = EXCLUDED.sync_id, updated_at = EXCLUDED.updated_at",
		QuoteTable(StateTable),
		quoteLiteral(s.Stream.Namespace),
		quoteLiteral(s.Stream.Name),
		s.Stream.GenerationID,
		s.Stream.SyncID,
	)
}

// Cleanup drops a leftover temporary final table. After a successful commit
// the table no longer exists and the statement is a no-op.
func (g Generator) Cleanup(s typing.StreamConfig) []string {
	if s.TempFinal.Name == "" {
		return nil
	}
	return []string{DropTableSQL(s.TempFinal)}
}
