package ddl

import "strings"

// MapType maps a logical type string into a SQL Server column type.
// Unknown or empty kinds fall back to NVARCHAR(MAX).
func MapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "raw_id":
		return "VARCHAR(36)"
	case "int", "integer", "bigint":
		return "BIGINT"
	case "bool", "boolean":
		return "BIT"
	case "date":
		return "DATE"
	case "timestamp", "datetime":
		return "DATETIME2"
	case "timestamptz":
		return "DATETIMEOFFSET"
	case "number", "float", "double", "numeric", "decimal":
		return "DECIMAL(38, 10)"
	case "uuid":
		return "UNIQUEIDENTIFIER"
	default:
		// Default to a flexible Unicode string type; JSON payloads included.
		return "NVARCHAR(MAX)"
	}
}
