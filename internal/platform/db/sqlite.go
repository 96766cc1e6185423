package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens an embedded SQLite database. In-memory databases are pinned to
// a single connection so every query sees the same data.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("platform/db: open sqlite: %w", err)
	}
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		conn.SetMaxOpenConns(1)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("platform/db: enable foreign keys: %w", err)
	}
	return conn, nil
}
