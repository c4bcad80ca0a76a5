package ddl

import "strings"

// MapType maps a logical type string into a SQLite column type.
//
// SQLite supports dynamic typing, so this mapping prefers canonical affinities:
//   - integer-ish types -> INTEGER
//   - boolean          -> INTEGER (0/1)
//   - date/time        -> TEXT (ISO-8601)
//   - json/object      -> TEXT
//   - others           -> TEXT
func MapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "int", "integer", "bigint":
		return "INTEGER"
	case "bool", "boolean":
		return "INTEGER"
	case "number", "float", "double", "real":
		return "REAL"
	case "numeric", "decimal":
		return "NUMERIC"
	default:
		return "TEXT"
	}
}
