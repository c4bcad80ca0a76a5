package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// RunInTx executes statements in one database/sql transaction, rolling back
// on the first failure.
func RunInTx(ctx context.Context, db *sql.DB, statements []string) error {
	if len(statements) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	for i, stmt := range statements {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("statement %d: rollback failed: %v (original: %w)", i, rbErr, err)
			}
			return fmt.Errorf("statement %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Placeholders renders "(?, ?, ?), (?, ?, ?)" style value groups for
// multi-row INSERT statements.
func Placeholders(rows, cols int, mark func(n int) string) string {
	var b strings.Builder
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := 0; c < cols; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(mark(n))
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}

// QuestionMark is the placeholder style of SQLite and MySQL.
func QuestionMark(int) string { return "?" }

// Flatten concatenates value rows into one argument slice.
func Flatten(rows [][]any) []any {
	size := 0
	for _, r := range rows {
		size += len(r)
	}
	out := make([]any, 0, size)
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}
