// Package ddl renders Postgres DDL and typing SQL for destsync tables.
//
// Identifiers are always double-quoted with embedded quotes escaped, so names
// produced by the naming convention are kept verbatim.
package ddl

import (
	"fmt"
	"sort"
	"strings"

	gddl "destsync/internal/ddl"
	"destsync/internal/storage"
)

// BuildCreateTableSQL builds a deterministic Postgres CREATE TABLE statement
// for the given table definition.
//
// Rules:
//   - t.FQN must be non-empty.
//   - Each column must have a non-empty Name and SQLType.
//   - Primary-key columns are always rendered as NOT NULL, even if Nullable=true.
//   - PRIMARY KEY is rendered as a separate constraint clause using quoted
//     column names, sorted alphabetically for determinism.
//   - The statement uses CREATE TABLE IF NOT EXISTS.
func BuildCreateTableSQL(t gddl.TableDef) (string, error) {
	return buildCreateTable(t, true)
}

func buildCreateTable(t gddl.TableDef, ifNotExists bool) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("postgres ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("postgres ddl: at least one column is required")
	}

	cols := make([]string, 0, len(t.Columns)+1)
	pks := make([]string, 0, len(t.Columns))

	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("postgres ddl: column with empty name in table %s", fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("postgres ddl: column %s missing SQLType", name)
		}

		var sb strings.Builder
		sb.WriteString(quoteIdent(name))
		sb.WriteByte(' ')
		sb.WriteString(typ)

		if !c.Nullable || c.PrimaryKey {
			sb.WriteString(" NOT NULL")
		}
		if def := strings.TrimSpace(c.Default); def != "" {
			sb.WriteString(" DEFAULT ")
			sb.WriteString(def)
		}
		cols = append(cols, sb.String())

		if c.PrimaryKey {
			pks = append(pks, quoteIdent(name))
		}
	}

	if len(pks) > 0 {
		sort.Strings(pks)
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	guard := ""
	if ifNotExists {
		guard = "IF NOT EXISTS "
	}
	return fmt.Sprintf(
		"CREATE TABLE %s%s (\n  %s\n);",
		guard,
		quoteFQN(fqn),
		strings.Join(cols, ",\n  "),
	), nil
}

// BuildCreateSchemaSQL returns an idempotent CREATE SCHEMA statement.
func BuildCreateSchemaSQL(schema string) (string, error) {
	if strings.TrimSpace(schema) == "" {
		return "", fmt.Errorf("postgres ddl: schema must not be empty")
	}
	return "CREATE SCHEMA IF NOT EXISTS " + quoteIdent(schema), nil
}

// RawTableSQL renders the CREATE TABLE IF NOT EXISTS statement of a raw table.
func RawTableSQL(t storage.Table) (string, error) {
	return BuildCreateTableSQL(gddl.RawTable(t.FQN(), MapType))
}

// TruncateSQL renders TRUNCATE for table. Postgres TRUNCATE is transactional.
func TruncateSQL(t storage.Table) string {
	return "TRUNCATE TABLE " + QuoteTable(t)
}

// DropTableSQL renders DROP TABLE IF EXISTS for table.
func DropTableSQL(t storage.Table) string {
	return "DROP TABLE IF EXISTS " + QuoteTable(t)
}

// QuoteTable quotes a table as "namespace"."name", omitting an empty
// namespace.
func QuoteTable(t storage.Table) string {
	if t.Namespace == "" {
		return quoteIdent(t.Name)
	}
	return quoteIdent(t.Namespace) + "." + quoteIdent(t.Name)
}

// quoteIdent quotes a single identifier segment for Postgres, e.g.:
//
//	quoteIdent(`user_id`)    => `"user_id"`
//	quoteIdent(`weird"name`) => `"weird""name"`
func quoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// quoteFQN quotes a possibly schema-qualified name like "public.users" to
// `"public"."users"`. Empty segments are ignored.
func quoteFQN(f string) string {
	parts := strings.Split(f, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, quoteIdent(p))
	}
	return strings.Join(out, ".")
}

// quoteLiteral renders s as a standard-conforming string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
