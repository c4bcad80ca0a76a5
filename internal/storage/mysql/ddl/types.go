package ddl

import "strings"

// MapType maps a logical type into a MySQL column type.
func MapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "raw_id":
		return "VARCHAR(36)"
	case "int", "integer", "bigint":
		return "BIGINT"
	case "bool", "boolean":
		return "BOOLEAN"
	case "number", "numeric", "decimal":
		return "DECIMAL(38, 9)"
	case "date":
		return "DATE"
	case "timestamp", "timestamptz":
		return "DATETIME(6)"
	case "json", "object", "array":
		return "JSON"
	default:
		return "LONGTEXT"
	}
}
