// Package ddl provides MSSQL-specific helpers for generating raw-table DDL
// from the generic ddl.TableDef model.
//
// The builder here:
//   - Uses SQL Server-style identifier quoting: [schema].[table], [col].
//   - Wraps CREATE TABLE in an IF OBJECT_ID(...) IS NULL guard since T-SQL
//     does not support CREATE TABLE IF NOT EXISTS.
//   - Renders PRIMARY KEY constraints as a separate clause.
package ddl

import (
	"fmt"
	"strings"

	gddl "destsync/internal/ddl"
	"destsync/internal/storage"
)

// BuildCreateTableSQL returns a T-SQL script that creates a table matching
// the provided definition if it does not already exist:
//
//	IF OBJECT_ID(N'[schema].[table]', N'U') IS NULL
//	BEGIN
//	  CREATE TABLE [schema].[table] (
//	    [col1] TYPE [NOT NULL] [DEFAULT expr],
//	    PRIMARY KEY ([pk1])
//	  );
//	END;
func BuildCreateTableSQL(t gddl.TableDef) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("mssql ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("mssql ddl: at least one column is required")
	}

	cols := make([]string, 0, len(t.Columns)+1)
	pks := make([]string, 0, len(t.Columns))

	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("mssql ddl: column with empty name in table %s", fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("mssql ddl: column %s missing SQLType", name)
		}

		var sb strings.Builder
		sb.WriteString(QuoteIdent(name))
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
			pks = append(pks, QuoteIdent(name))
		}
	}

	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	fqnQuoted := quoteFQN(fqn)
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL\nBEGIN\n  CREATE TABLE %s (\n    %s\n  );\nEND;",
		fqnQuoted,
		fqnQuoted,
		strings.Join(cols, ",\n    "),
	), nil
}

// BuildCreateSchemaSQL guards CREATE SCHEMA with sys.schemas. CREATE SCHEMA
// must be the only statement in its batch, hence the EXEC.
func BuildCreateSchemaSQL(schema string) (string, error) {
	if strings.TrimSpace(schema) == "" {
		return "", fmt.Errorf("mssql ddl: schema must not be empty")
	}
	lit := strings.ReplaceAll(schema, "'", "''")
	inner := strings.ReplaceAll("CREATE SCHEMA "+QuoteIdent(schema), "'", "''")
	return fmt.Sprintf("IF SCHEMA_ID(N'%s') IS NULL EXEC(N'%s');", lit, inner), nil
}

// RawTableSQL renders the guarded CREATE TABLE of a raw table.
func RawTableSQL(t storage.Table) (string, error) {
	return BuildCreateTableSQL(gddl.RawTable(t.FQN(), MapType))
}

// TruncateSQL renders TRUNCATE TABLE, which SQL Server runs transactionally.
func TruncateSQL(t storage.Table) string {
	return "TRUNCATE TABLE " + QuoteTable(t)
}

// QuoteTable renders [namespace].[name], omitting an empty namespace.
func QuoteTable(t storage.Table) string {
	if t.Namespace == "" {
		return QuoteIdent(t.Name)
	}
	return QuoteIdent(t.Namespace) + "." + QuoteIdent(t.Name)
}

// QuoteIdent quotes a single identifier segment for SQL Server using
// bracket syntax, escaping any closing brackets.
//
//	name      -> [name]
//	weird]id  -> [weird]]id]
func QuoteIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}

// quoteFQN quotes a possibly schema-qualified table name, e.g.:
//
//	"dbo.Users"   -> [dbo].[Users]
//	"Users"       -> [Users]
func quoteFQN(fqn string) string {
	parts := strings.Split(fqn, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, QuoteIdent(p))
	}
	return strings.Join(out, ".")
}
