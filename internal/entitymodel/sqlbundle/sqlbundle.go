// Package sqlbundle exposes the durable store schema as executable statements.
package sqlbundle

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sqldocs "stockcore/docs/schema/sql"
)

// SQLite returns the SQLite schema.
func SQLite() string {
	return sqldocs.SQLite
}

// Postgres returns the Postgres schema.
func Postgres() string {
	return sqldocs.Postgres
}

// SplitStatements breaks a DDL script into statements at lines ending in
// ";". Blank lines and "--" comment lines are dropped; an unterminated
// tail is returned as the last statement.
func SplitStatements(ddl string) []string {
	var (
		stmts []string
		buf   []string
	)
	for _, line := range strings.Split(ddl, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		buf = append(buf, line)
		if strings.HasSuffix(trimmed, ";") {
			stmts = append(stmts, strings.TrimSpace(strings.Join(buf, "\n")))
			buf = buf[:0]
		}
	}
	if tail := strings.TrimSpace(strings.Join(buf, "\n")); tail != "" {
		stmts = append(stmts, tail)
	}
	return stmts
}

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Apply executes every statement of ddl in order.
func Apply(ctx context.Context, db Execer, ddl string) error {
	for i, stmt := range SplitStatements(ddl) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl statement %d: %w", i+1, err)
		}
	}
	return nil
}
