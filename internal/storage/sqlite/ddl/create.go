// Package ddl renders SQLite DDL for raw tables.
//
// The builder here:
//   - Uses simple double-quoted identifiers: "table", "col".
//   - Emits CREATE TABLE IF NOT EXISTS.
//   - Treats ColumnDef.Default as raw SQL.
//   - Renders PRIMARY KEY as a separate table constraint.
package ddl

import (
	"fmt"
	"strings"

	gddl "destsync/internal/ddl"
	"destsync/internal/storage"
)

// BuildCreateTableSQL returns a SQLite CREATE TABLE statement for the given
// table definition. The statement has the form:
//
//	CREATE TABLE IF NOT EXISTS "table" (
//	  "col1" TYPE [NOT NULL] [DEFAULT expr],
//	  "col2" TYPE,
//	  PRIMARY KEY ("pk1", "pk2")
//	);
func BuildCreateTableSQL(t gddl.TableDef) (string, error) {
	name := strings.TrimSpace(t.FQN)
	if name == "" {
		return "", fmt.Errorf("sqlite ddl: table name must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("sqlite ddl: at least one column is required")
	}

	cols := make([]string, 0, len(t.Columns)+1)
	pks := make([]string, 0, len(t.Columns))

	for _, c := range t.Columns {
		col := strings.TrimSpace(c.Name)
		if col == "" {
			return "", fmt.Errorf("sqlite ddl: column with empty name in table %s", name)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("sqlite ddl: column %s missing SQLType", col)
		}

		var sb strings.Builder
		sb.WriteString(QuoteIdent(col))
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !c.Nullable {
			sb.WriteString(" NOT NULL")
		}
		if def := strings.TrimSpace(c.Default); def != "" {
			sb.WriteString(" DEFAULT ")
			sb.WriteString(def)
		}
		cols = append(cols, sb.String())

		if c.PrimaryKey {
			pks = append(pks, QuoteIdent(col))
		}
	}

	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		QuoteIdent(name),
		strings.Join(cols, ",\n  "),
	), nil
}

// PhysicalName flattens a namespaced table into one SQLite identifier,
// "<namespace>__<name>". SQLite has no schemas short of ATTACH.
func PhysicalName(t storage.Table) string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "__" + t.Name
}

// RawTableSQL renders the CREATE TABLE statement of a raw table.
func RawTableSQL(t storage.Table) (string, error) {
	return BuildCreateTableSQL(gddl.RawTable(PhysicalName(t), MapType))
}

// TruncateSQL empties a table. SQLite has no TRUNCATE; DELETE without WHERE
// uses the truncate optimization and stays transactional.
func TruncateSQL(t storage.Table) string {
	return "DELETE FROM " + QuoteIdent(PhysicalName(t))
}

// QuoteIdent double-quotes an identifier, escaping embedded quotes.
func QuoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
