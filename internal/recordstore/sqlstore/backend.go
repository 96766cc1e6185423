package sqlstore

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mobilsoft/backoffice/internal/platform/db"
)

// execer runs statements on a connection or inside a transaction.
type execer interface {
	query(ctx context.Context, stmt string, args ...any) ([]map[string]any, error)
	exec(ctx context.Context, stmt string, args ...any) (int64, error)
	insert(ctx context.Context, stmt string, args ...any) (int64, error)
}

type backend interface {
	execer
	tx(ctx context.Context, fn func(execer) error) error
}

type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type pgExec struct {
	q pgQuerier
}

func (e pgExec) query(ctx context.Context, stmt string, args ...any) ([]map[string]any, error) {
	rows, err := e.q.Query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToMap)
}

func (e pgExec) exec(ctx context.Context, stmt string, args ...any) (int64, error) {
	tag, err := e.q.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (e pgExec) insert(ctx context.Context, stmt string, args ...any) (int64, error) {
	var id int64
	if err := e.q.QueryRow(ctx, stmt, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

type pgBackend struct {
	pgExec
	pool *pgxpool.Pool
}

func (b pgBackend) tx(ctx context.Context, fn func(execer) error) error {
	return db.WithTx(ctx, b.pool, func(tx pgx.Tx) error {
		return fn(pgExec{q: tx})
	})
}

type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type sqlExec struct {
	q sqlQuerier
}

func (e sqlExec) query(ctx context.Context, stmt string, args ...any) ([]map[string]any, error) {
	rows, err := e.q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (e sqlExec) exec(ctx context.Context, stmt string, args ...any) (int64, error) {
	res, err := e.q.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (e sqlExec) insert(ctx context.Context, stmt string, args ...any) (int64, error) {
	var id int64
	if err := e.q.QueryRowContext(ctx, stmt, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

type sqliteBackend struct {
	sqlExec
	conn *sql.DB
}

func (b sqliteBackend) tx(ctx context.Context, fn func(execer) error) error {
	return db.WithSQLTx(ctx, b.conn, func(tx *sql.Tx) error {
		return fn(sqlExec{q: tx})
	})
}
