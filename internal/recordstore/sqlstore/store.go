// Package sqlstore implements recordstore.Store on a relational database, either
// PostgreSQL through pgx or an embedded SQLite file.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mobilsoft/backoffice/internal/query"
	"github.com/mobilsoft/backoffice/internal/recordstore"
)

// Store maps ERP models onto tables described by a Catalog.
type Store struct {
	backend backend
	dialect query.Dialect
	catalog Catalog
}

var _ recordstore.Store = (*Store)(nil)

// NewPostgres builds a store on a pgx pool.
func NewPostgres(pool *pgxpool.Pool, catalog Catalog) *Store {
	return &Store{
		backend: pgBackend{pgExec: pgExec{q: pool}, pool: pool},
		dialect: query.Postgres,
		catalog: catalog,
	}
}

// NewSQLite builds a store on a database/sql handle opened with the sqlite driver.
func NewSQLite(conn *sql.DB, catalog Catalog) *Store {
	return &Store{
		backend: sqliteBackend{sqlExec: sqlExec{q: conn}, conn: conn},
		dialect: query.SQLite,
		catalog: catalog,
	}
}

// Migrate creates missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.catalog.DDL(s.dialect) {
		if _, err := s.backend.exec(ctx, stmt); err != nil {
			return fmt.Errorf("sqlstore: migrate: %w", err)
		}
	}
	return nil
}

// Count returns the number of rows matching where.
func (s *Store) Count(ctx context.Context, model string, where query.Expr) (int, error) {
	t, err := s.table(model)
	if err != nil {
		return 0, recordstore.Wrap("count", model, err)
	}
	cond, args, err := s.where(ctx, t, where)
	if err != nil {
		return 0, recordstore.Wrap("count", model, err)
	}
	rows, err := s.backend.query(ctx, fmt.Sprintf("SELECT COUNT(*) AS n FROM %s t WHERE %s", quote(t.Name()), cond), args...)
	if err != nil {
		return 0, recordstore.Wrap("count", model, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return int(asInt(rows[0]["n"])), nil
}

// Fetch returns one page of rows matching where.
func (s *Store) Fetch(ctx context.Context, model string, where query.Expr, fields []string, opts recordstore.Options) ([]map[string]any, error) {
	t, err := s.table(model)
	if err != nil {
		return nil, recordstore.Wrap("fetch", model, err)
	}
	cond, args, err := s.where(ctx, t, where)
	if err != nil {
		return nil, recordstore.Wrap("fetch", model, err)
	}
	order, err := orderBy(t, opts.Order)
	if err != nil {
		return nil, recordstore.Wrap("fetch", model, err)
	}
	stmt := fmt.Sprintf("WHERE %s ORDER BY %s", cond, order)
	if opts.Limit > 0 {
		stmt += fmt.Sprintf(" LIMIT %d", opts.Limit)
	} else if opts.Offset > 0 && s.dialect.Name == query.SQLite.Name {
		stmt += " LIMIT -1"
	}
	if opts.Offset > 0 {
		stmt += fmt.Sprintf(" OFFSET %d", opts.Offset)
	}
	rows, err := s.read(ctx, s.backend, t, fields, stmt, args)
	if err != nil {
		return nil, recordstore.Wrap("fetch", model, err)
	}
	return rows, nil
}

// ReadByID returns the rows with the given ids in the requested order.
func (s *Store) ReadByID(ctx context.Context, model string, ids []int64, fields []string) ([]map[string]any, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	t, err := s.table(model)
	if err != nil {
		return nil, recordstore.Wrap("read", model, err)
	}
	cond, args := s.idsIn("t.id", ids, 1)
	rows, err := s.read(ctx, s.backend, t, fields, "WHERE "+cond, args)
	if err != nil {
		return nil, recordstore.Wrap("read", model, err)
	}
	byID := make(map[int64]map[string]any, len(rows))
	for _, r := range rows {
		byID[asInt(r["id"])] = r
	}
	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		r, ok := byID[id]
		if !ok {
			return nil, recordstore.Wrap("read", model, fmt.Errorf("%w: %s(%d)", recordstore.ErrNotFound, model, id))
		}
		out = append(out, r)
	}
	return out, nil
}

// Create inserts a row and applies one2many commands in one transaction.
func (s *Store) Create(ctx context.Context, model string, values map[string]any) (int64, error) {
	t, err := s.table(model)
	if err != nil {
		return 0, recordstore.Wrap("create", model, err)
	}
	var id int64
	err = s.backend.tx(ctx, func(e execer) error {
		w := s.writer(ctx, e)
		var err error
		id, err = w.create(t, values)
		return err
	})
	if err != nil {
		return 0, recordstore.Wrap("create", model, err)
	}
	return id, nil
}

// Update writes values to every row in ids in one transaction.
func (s *Store) Update(ctx context.Context, model string, ids []int64, values map[string]any) error {
	t, err := s.table(model)
	if err != nil {
		return recordstore.Wrap("update", model, err)
	}
	err = s.backend.tx(ctx, func(e execer) error {
		return s.writer(ctx, e).update(t, ids, values)
	})
	return recordstore.Wrap("update", model, err)
}

func (s *Store) table(model string) (*Table, error) {
	t, ok := s.catalog[model]
	if !ok {
		return nil, fmt.Errorf("%w: %s", recordstore.ErrUnknownModel, model)
	}
	return t, nil
}

func (s *Store) where(ctx context.Context, t *Table, where query.Expr) (string, []any, error) {
	_, hasActive := t.Columns["active"]
	where = recordstore.ActiveDefault(ctx, where, hasActive)
	return s.dialect.Where(s.normalize(t, where), s.columnFunc(t), 1)
}

// normalize turns the ERP "field = false" idiom on non-boolean columns into a
// NULL test.
func (s *Store) normalize(t *Table, where query.Expr) query.Expr {
	out := make(query.Expr, 0, len(where))
	for _, c := range where {
		clause := make(query.Clause, 0, len(c))
		for _, term := range c {
			if b, ok := term.Value.(bool); ok && !b {
				head, _, dotted := strings.Cut(term.Field, ".")
				if col, known := t.Columns[head]; known && (dotted || col.Type != Bool) {
					term.Value = nil
				}
			}
			clause = append(clause, term)
		}
		out = append(out, clause)
	}
	return out
}

func (s *Store) columnFunc(t *Table) query.ColumnFunc {
	return func(field string) (string, error) {
		if field == "id" {
			return "t.id", nil
		}
		head, tail, dotted := strings.Cut(field, ".")
		col, ok := t.Columns[head]
		if !ok || col.Type == One2Many {
			return "", fmt.Errorf("%w: %s.%s", recordstore.ErrUnknownField, t.Model, field)
		}
		if !dotted || tail == "id" {
			if dotted && col.Type != Ref {
				return "", fmt.Errorf("%w: %s.%s", recordstore.ErrUnknownField, t.Model, field)
			}
			return "t." + quote(head), nil
		}
		if col.Type != Ref {
			return "", fmt.Errorf("%w: %s.%s", recordstore.ErrUnknownField, t.Model, field)
		}
		target, err := s.table(col.Target)
		if err != nil {
			return "", err
		}
		if tcol, ok := target.Columns[tail]; !ok || tcol.Type == One2Many {
			return "", fmt.Errorf("%w: %s.%s", recordstore.ErrUnknownField, t.Model, field)
		}
		return fmt.Sprintf("(SELECT r.%s FROM %s r WHERE r.id = t.%s)", quote(tail), quote(target.Name()), quote(head)), nil
	}
}

func orderBy(t *Table, order string) (string, error) {
	var parts []string
	hasID := false
	for _, item := range strings.Split(order, ",") {
		tokens := strings.Fields(item)
		if len(tokens) == 0 {
			continue
		}
		if len(tokens) > 2 {
			return "", fmt.Errorf("sqlstore: invalid order %q", item)
		}
		dir := "ASC"
		if len(tokens) == 2 {
			switch strings.ToLower(tokens[1]) {
			case "asc":
			case "desc":
				dir = "DESC"
			default:
				return "", fmt.Errorf("sqlstore: invalid order direction %q", tokens[1])
			}
		}
		name := tokens[0]
		if name == "id" {
			hasID = true
			parts = append(parts, "t.id "+dir)
			continue
		}
		col, ok := t.Columns[name]
		if !ok || col.Type == One2Many {
			return "", fmt.Errorf("%w: %s.%s", recordstore.ErrUnknownField, t.Model, name)
		}
		parts = append(parts, "t."+quote(name)+" "+dir)
	}
	if !hasID {
		parts = append(parts, "t.id ASC")
	}
	return strings.Join(parts, ", "), nil
}

func (s *Store) idsIn(column string, ids []int64, start int) (string, []any) {
	phs := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		phs[i] = s.dialect.Placeholder(start + i)
		args[i] = id
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(phs, ", ")), args
}

// read selects fields from t followed by the given WHERE/ORDER suffix.
func (s *Store) read(ctx context.Context, e execer, t *Table, fields []string, suffix string, args []any) ([]map[string]any, error) {
	if len(fields) == 0 {
		fields = append([]string{"id"}, t.names()...)
	}
	selects := []string{"t.id AS id"}
	var children []string
	for _, f := range fields {
		if f == "id" {
			continue
		}
		col, ok := t.Columns[f]
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", recordstore.ErrUnknownField, t.Model, f)
		}
		switch col.Type {
		case One2Many:
			children = append(children, f)
		case Ref:
			target, err := s.table(col.Target)
			if err != nil {
				return nil, err
			}
			selects = append(selects,
				fmt.Sprintf("t.%s AS %s", quote(f), quote(f)),
				fmt.Sprintf("(SELECT r.%s FROM %s r WHERE r.id = t.%s) AS %s", quote("name"), quote(target.Name()), quote(f), quote(f+"__name")),
			)
		default:
			selects = append(selects, fmt.Sprintf("t.%s AS %s", quote(f), quote(f)))
		}
	}

	head := fmt.Sprintf("SELECT %s FROM %s t", strings.Join(selects, ", "), quote(t.Name()))
	raw, err := e.query(ctx, head+" "+suffix, args...)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(raw))
	ids := make([]int64, 0, len(raw))
	for _, r := range raw {
		id := asInt(r["id"])
		ids = append(ids, id)
		row := map[string]any{"id": id}
		for _, f := range fields {
			col, ok := t.Columns[f]
			if !ok || col.Type == One2Many {
				continue
			}
			if col.Type == Ref {
				if r[f] == nil {
					row[f] = false
					continue
				}
				name, _ := r[f+"__name"].(string)
				row[f] = []any{asInt(r[f]), name}
				continue
			}
			row[f] = present(col, r[f])
		}
		out = append(out, row)
	}

	for _, f := range children {
		grouped, err := s.childIDs(ctx, e, t.Columns[f], ids)
		if err != nil {
			return nil, err
		}
		for _, row := range out {
			row[f] = grouped[row["id"].(int64)]
		}
	}
	return out, nil
}

func (s *Store) childIDs(ctx context.Context, e execer, col Column, parents []int64) (map[int64][]any, error) {
	grouped := make(map[int64][]any, len(parents))
	for _, id := range parents {
		grouped[id] = []any{}
	}
	if len(parents) == 0 {
		return grouped, nil
	}
	child, err := s.table(col.Target)
	if err != nil {
		return nil, err
	}
	cond, args := s.idsIn(quote(col.Inverse), parents, 1)
	rows, err := e.query(ctx, fmt.Sprintf("SELECT id, %s AS parent FROM %s WHERE %s ORDER BY id", quote(col.Inverse), quote(child.Name()), cond), args...)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		parent := asInt(r["parent"])
		grouped[parent] = append(grouped[parent], asInt(r["id"]))
	}
	return grouped, nil
}

func (s *Store) writer(ctx context.Context, e execer) *writer {
	return &writer{execer: e, ctx: ctx, store: s, dialect: s.dialect}
}

// writer performs the statements of one create or update transaction.
type writer struct {
	execer
	ctx     context.Context
	store   *Store
	dialect query.Dialect
}

func (w *writer) split(t *Table, values map[string]any) ([]string, []any, map[string]any, error) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var cols []string
	var args []any
	commands := map[string]any{}
	for _, k := range keys {
		col, ok := t.Columns[k]
		if !ok {
			return nil, nil, nil, fmt.Errorf("%w: %s.%s", recordstore.ErrUnknownField, t.Model, k)
		}
		if col.Type == One2Many {
			commands[k] = values[k]
			continue
		}
		v, err := store(col, values[k])
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%s.%s: %w", t.Model, k, err)
		}
		cols = append(cols, k)
		args = append(args, v)
	}
	return cols, args, commands, nil
}

func (w *writer) create(t *Table, values map[string]any) (int64, error) {
	cols, args, commands, err := w.split(t, values)
	if err != nil {
		return 0, err
	}
	var stmt string
	if len(cols) == 0 {
		stmt = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING id", quote(t.Name()))
	} else {
		names := make([]string, len(cols))
		phs := make([]string, len(cols))
		for i, c := range cols {
			names[i] = quote(c)
			phs[i] = w.dialect.Placeholder(i + 1)
		}
		stmt = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id", quote(t.Name()), strings.Join(names, ", "), strings.Join(phs, ", "))
	}
	id, err := w.insert(w.ctx, stmt, args...)
	if err != nil {
		return 0, err
	}
	if err := w.applyCommands(t, []int64{id}, commands); err != nil {
		return 0, err
	}
	if t.AfterWrite != nil {
		if err := t.AfterWrite(w, []int64{id}); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (w *writer) update(t *Table, ids []int64, values map[string]any) error {
	if len(ids) == 0 {
		return nil
	}
	cols, args, commands, err := w.split(t, values)
	if err != nil {
		return err
	}

	cond, idArgs := w.store.idsIn("id", ids, 1)
	rows, err := w.query(w.ctx, fmt.Sprintf("SELECT COUNT(*) AS n FROM %s WHERE %s", quote(t.Name()), cond), idArgs...)
	if err != nil {
		return err
	}
	if len(rows) == 0 || int(asInt(rows[0]["n"])) != len(uniqueIDs(ids)) {
		return fmt.Errorf("%w: %s%v", recordstore.ErrNotFound, t.Model, ids)
	}

	if len(cols) > 0 {
		sets := make([]string, len(cols))
		for i, c := range cols {
			sets[i] = fmt.Sprintf("%s = %s", quote(c), w.dialect.Placeholder(i+1))
		}
		cond, idArgs := w.store.idsIn("id", ids, len(cols)+1)
		stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s", quote(t.Name()), strings.Join(sets, ", "), cond)
		if _, err := w.exec(w.ctx, stmt, append(args, idArgs...)...); err != nil {
			return err
		}
	}
	if err := w.applyCommands(t, ids, commands); err != nil {
		return err
	}
	if t.AfterWrite != nil {
		return t.AfterWrite(w, ids)
	}
	return nil
}

// applyCommands executes one2many write commands: [0, 0, values] creates a
// child, [1, id, values] updates one and [2, id] deletes one.
func (w *writer) applyCommands(t *Table, parents []int64, commands map[string]any) error {
	for field, raw := range commands {
		col := t.Columns[field]
		child, err := w.store.table(col.Target)
		if err != nil {
			return err
		}
		list, ok := raw.([]any)
		if !ok {
			if raw == nil || raw == false {
				continue
			}
			return fmt.Errorf("%s.%s: want command list, got %T", t.Model, field, raw)
		}
		for _, parent := range parents {
			for _, item := range list {
				cmd, ok := item.([]any)
				if !ok || len(cmd) < 2 {
					return fmt.Errorf("%s.%s: malformed command %v", t.Model, field, item)
				}
				switch asInt(cmd[0]) {
				case 0:
					vals, _ := commandValues(cmd)
					vals[col.Inverse] = parent
					if _, err := w.create(child, vals); err != nil {
						return err
					}
				case 1:
					vals, _ := commandValues(cmd)
					if err := w.update(child, []int64{asInt(cmd[1])}, vals); err != nil {
						return err
					}
				case 2:
					stmt := fmt.Sprintf("DELETE FROM %s WHERE id = %s AND %s = %s",
						quote(child.Name()), w.dialect.Placeholder(1), quote(col.Inverse), w.dialect.Placeholder(2))
					if _, err := w.exec(w.ctx, stmt, asInt(cmd[1]), parent); err != nil {
						return err
					}
				default:
					return fmt.Errorf("%s.%s: unsupported command %v", t.Model, field, cmd[0])
				}
			}
		}
	}
	return nil
}

func commandValues(cmd []any) (map[string]any, bool) {
	out := map[string]any{}
	if len(cmd) < 3 {
		return out, false
	}
	vals, ok := cmd[2].(map[string]any)
	if !ok {
		return out, false
	}
	for k, v := range vals {
		out[k] = v
	}
	return out, true
}

func uniqueIDs(ids []int64) map[int64]struct{} {
	out := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}
