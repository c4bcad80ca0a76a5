// Package ddl renders MySQL DDL for raw tables. Namespaces map to MySQL
// databases.
package ddl

import (
	"fmt"
	"strings"

	gddl "destsync/internal/ddl"
	"destsync/internal/storage"
)

// BuildCreateTableSQL renders CREATE TABLE IF NOT EXISTS with backtick
// quoting and a separate PRIMARY KEY clause.
func BuildCreateTableSQL(t gddl.TableDef) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("mysql ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("mysql ddl: at least one column is required")
	}

	cols := make([]string, 0, len(t.Columns)+1)
	pks := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("mysql ddl: column with empty name in table %s", fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("mysql ddl: column %s missing SQLType", name)
		}
		def := QuoteIdent(name) + " " + typ
		if !c.Nullable || c.PrimaryKey {
			def += " NOT NULL"
		}
		if d := strings.TrimSpace(c.Default); d != "" {
			def += " DEFAULT " + d
		}
		cols = append(cols, def)
		if c.PrimaryKey {
			pks = append(pks, QuoteIdent(name))
		}
	}
	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n)",
		quoteFQN(fqn),
		strings.Join(cols, ",\n  "),
	), nil
}

// BuildCreateSchemaSQL creates the database backing a namespace.
func BuildCreateSchemaSQL(schema string) (string, error) {
	if strings.TrimSpace(schema) == "" {
		return "", fmt.Errorf("mysql ddl: schema must not be empty")
	}
	return "CREATE DATABASE IF NOT EXISTS " + QuoteIdent(schema), nil
}

// RawTableSQL renders the CREATE TABLE statement of a raw table.
func RawTableSQL(t storage.Table) (string, error) {
	return BuildCreateTableSQL(gddl.RawTable(t.FQN(), MapType))
}

// TruncateSQL empties t with DELETE: MySQL TRUNCATE implicitly commits and
// cannot take part in a transaction.
func TruncateSQL(t storage.Table) string {
	return "DELETE FROM " + QuoteTable(t)
}

// QuoteTable renders `namespace`.`name`, omitting an empty namespace.
func QuoteTable(t storage.Table) string {
	if t.Namespace == "" {
		return QuoteIdent(t.Name)
	}
	return QuoteIdent(t.Namespace) + "." + QuoteIdent(t.Name)
}

// QuoteIdent backtick-quotes an identifier, doubling embedded backticks.
func QuoteIdent(id string) string {
	return "`" + strings.ReplaceAll(id, "`", "``") + "`"
}

func quoteFQN(fqn string) string {
	parts := strings.Split(fqn, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, QuoteIdent(p))
	}
	return strings.Join(out, ".")
}
