// Package pgdata implements gateway.Data on PostgreSQL for self-hosted
// deployments.
package pgdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"recreo/gateway"
)

// ErrUnknownTable signals a table that was not registered with the store.
var ErrUnknownTable = errors.New("pgdata: unknown table")

// querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is the connection the store runs on.
type DB interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is a table-oriented gateway over a pgx pool.
type Store struct {
	db     DB
	tables map[string]Table
	log    logrus.FieldLogger
}

// New creates a store serving the given tables.
func New(db DB, tables ...Table) *Store {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	s := &Store{db: db, tables: make(map[string]Table, len(tables)), log: discard}
	for _, t := range tables {
		s.tables[t.Name] = t
	}
	return s
}

func (s *Store) WithLogger(log logrus.FieldLogger) *Store {
	s.log = log.WithField("component", "pgdata")
	return s
}

func (s *Store) table(name string) (Table, error) {
	t, ok := s.tables[name]
	if !ok {
		return Table{}, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	return t, nil
}

// Query selects rows matching filter, ordered by a whitelisted column.
func (s *Store) Query(ctx context.Context, table string, filter gateway.Filter, order *gateway.Order) ([]gateway.Row, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	where, args, err := buildWhere(t, filter)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE %s", ident(t.Name), where)
	if order != nil {
		if !t.orderable(order.Column) {
			return nil, fmt.Errorf("%w: cannot order %s by %q", gateway.ErrInvalid, t.Name, order.Column)
		}
		dir := "ASC"
		if order.Descending {
			dir = "DESC"
		}
		query += fmt.Sprintf(" ORDER BY %s %s, id %s", ident(order.Column), dir, dir)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError("query "+t.Name, err)
	}
	list, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, mapError("query "+t.Name, err)
	}

	out := make([]gateway.Row, len(list))
	for i, m := range list {
		out[i] = gateway.Row(m)
	}
	return out, nil
}

// Insert creates a row. On owner-scoped tables the owner column is set to
// the actor.
func (s *Store) Insert(ctx context.Context, table string, row gateway.Row) (gateway.Row, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	created, err := s.insert(ctx, s.db, t, row)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"table": t.Name, "record_id": created["id"]}).Debug("row inserted")
	return created, nil
}

// InsertIdempotent creates a row once per (table, key). A replay returns the
// row created by the first call.
func (s *Store) InsertIdempotent(ctx context.Context, table, key string, row gateway.Row) (gateway.Row, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: empty idempotency key", gateway.ErrInvalid)
	}
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, mapError("begin", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `INSERT INTO mutation_keys (table_name, key) VALUES ($1, $2) ON CONFLICT DO NOTHING`, t.Name, key)
	if err != nil {
		return nil, mapError("reserve key", err)
	}

	if tag.RowsAffected() == 0 {
		var recordID *string
		err := tx.QueryRow(ctx, `SELECT record_id FROM mutation_keys WHERE table_name = $1 AND key = $2`, t.Name, key).Scan(&recordID)
		if err != nil {
			return nil, mapError("lookup key", err)
		}
		if recordID == nil {
			return nil, fmt.Errorf("%w: mutation %s has no record", gateway.ErrConflict, key)
		}
		existing, err := s.byID(ctx, tx, t, *recordID)
		if err != nil {
			if errors.Is(err, gateway.ErrNotFound) {
				return nil, fmt.Errorf("%w: mutation %s was already applied", gateway.ErrConflict, key)
			}
			return nil, err
		}
		s.log.WithFields(logrus.Fields{"table": t.Name, "mutation_id": key}).Info("replayed creation")
		return existing, nil
	}

	created, err := s.insert(ctx, tx, t, row)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `UPDATE mutation_keys SET record_id = $3 WHERE table_name = $1 AND key = $2`, t.Name, key, created["id"]); err != nil {
		return nil, mapError("bind key", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, mapError("commit", err)
	}
	return created, nil
}

// Update patches writable columns of the row with the given id.
func (s *Store) Update(ctx context.Context, table, id string, patch gateway.Row) (gateway.Row, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}

	cols := writableColumns(t, patch)
	if t.OwnerColumn != "" {
		cols = without(cols, t.OwnerColumn)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: nothing to update on %s", gateway.ErrInvalid, t.Name)
	}

	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+2)
	for _, c := range cols {
		args = append(args, patch[c])
		sets = append(sets, fmt.Sprintf("%s = $%d", ident(c), len(args)))
	}
	if t.Touch {
		sets = append(sets, "updated_at = clock_timestamp()")
	}
	args = append(args, id)
	where := fmt.Sprintf("id = $%d", len(args))
	where, args, err = s.scope(ctx, t, where, args)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s RETURNING *", ident(t.Name), strings.Join(sets, ", "), where)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError("update "+t.Name, err)
	}
	updated, err := pgx.CollectOneRow(rows, pgx.RowToMap)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s.missing(ctx, t, id)
		}
		return nil, mapError("update "+t.Name, err)
	}
	return gateway.Row(updated), nil
}

// Delete removes the row with the given id.
func (s *Store) Delete(ctx context.Context, table, id string) error {
	t, err := s.table(table)
	if err != nil {
		return err
	}
	where, args, err := s.scope(ctx, t, "id = $1", []any{id})
	if err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", ident(t.Name), where), args...)
	if err != nil {
		return mapError("delete "+t.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return s.missing(ctx, t, id)
	}
	s.log.WithFields(logrus.Fields{"table": t.Name, "record_id": id}).Debug("row deleted")
	return nil
}

func (s *Store) insert(ctx context.Context, q querier, t Table, row gateway.Row) (gateway.Row, error) {
	values := make(gateway.Row, len(row)+1)
	for k, v := range row {
		values[k] = v
	}
	if t.OwnerColumn != "" {
		actor, ok := gateway.ActorFromContext(ctx)
		if !ok {
			return nil, fmt.Errorf("%w: no actor for %s", gateway.ErrUnauthorized, t.Name)
		}
		if owner, set := values[t.OwnerColumn]; set && owner != actor {
			return nil, fmt.Errorf("%w: cannot create %s for another user", gateway.ErrForbidden, t.Name)
		}
		values[t.OwnerColumn] = actor
	}

	cols := writableColumns(t, values)
	var query string
	args := make([]any, 0, len(cols))
	if len(cols) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", ident(t.Name))
	} else {
		names := make([]string, len(cols))
		params := make([]string, len(cols))
		for i, c := range cols {
			names[i] = ident(c)
			args = append(args, values[c])
			params[i] = fmt.Sprintf("$%d", i+1)
		}
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
			ident(t.Name), strings.Join(names, ", "), strings.Join(params, ", "))
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError("insert "+t.Name, err)
	}
	created, err := pgx.CollectOneRow(rows, pgx.RowToMap)
	if err != nil {
		return nil, mapError("insert "+t.Name, err)
	}
	return gateway.Row(created), nil
}

func (s *Store) byID(ctx context.Context, q querier, t Table, id string) (gateway.Row, error) {
	rows, err := q.Query(ctx, fmt.Sprintf("SELECT * FROM %s WHERE id = $1", ident(t.Name)), id)
	if err != nil {
		return nil, mapError("get "+t.Name, err)
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToMap)
	if err != nil {
		return nil, mapError("get "+t.Name, err)
	}
	return gateway.Row(row), nil
}

// scope appends the owner predicate for owner-scoped tables.
func (s *Store) scope(ctx context.Context, t Table, where string, args []any) (string, []any, error) {
	if t.OwnerColumn == "" {
		return where, args, nil
	}
	actor, ok := gateway.ActorFromContext(ctx)
	if !ok {
		return "", nil, fmt.Errorf("%w: no actor for %s", gateway.ErrUnauthorized, t.Name)
	}
	args = append(args, actor)
	return fmt.Sprintf("%s AND %s = $%d", where, ident(t.OwnerColumn), len(args)), args, nil
}

// missing tells a row owned by someone else apart from a row that does not
// exist after a scoped write touched nothing.
func (s *Store) missing(ctx context.Context, t Table, id string) error {
	var exists bool
	err := s.db.QueryRow(ctx, fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)", ident(t.Name)), id).Scan(&exists)
	if err != nil {
		return mapError("check "+t.Name, err)
	}
	if exists {
		return fmt.Errorf("%w: %s %s is owned by another user", gateway.ErrForbidden, t.Name, id)
	}
	return fmt.Errorf("%w: %s %s", gateway.ErrNotFound, t.Name, id)
}

func buildWhere(t Table, filter gateway.Filter) (string, []any, error) {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		if !t.filterable(k) {
			return "", nil, fmt.Errorf("%w: cannot filter %s by %q", gateway.ErrInvalid, t.Name, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	where := []string{"1=1"}
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		args = append(args, filter[k])
		where = append(where, fmt.Sprintf("%s = $%d", ident(k), len(args)))
	}
	return strings.Join(where, " AND "), args, nil
}

func writableColumns(t Table, row gateway.Row) []string {
	cols := make([]string, 0, len(row))
	for k := range row {
		if t.writable(k) {
			cols = append(cols, k)
		}
	}
	sort.Strings(cols)
	return cols
}

func without(cols []string, drop string) []string {
	out := cols[:0]
	for _, c := range cols {
		if c != drop {
			out = append(out, c)
		}
	}
	return out
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// mapError translates driver errors into gateway kinds.
func mapError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("pgdata: %s: %w", op, gateway.ErrNotFound)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("pgdata: %s: %w", op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return fmt.Errorf("pgdata: %s: %w: %s", op, gateway.ErrConflict, pgErr.ConstraintName)
		case pgErr.Code == "42501":
			return fmt.Errorf("pgdata: %s: %w", op, gateway.ErrForbidden)
		case strings.HasPrefix(pgErr.Code, "22"), strings.HasPrefix(pgErr.Code, "23"):
			return fmt.Errorf("pgdata: %s: %w: %s", op, gateway.ErrInvalid, pgErr.Message)
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "57P"):
			return fmt.Errorf("pgdata: %s: %w: %s", op, gateway.ErrUnavailable, pgErr.Message)
		}
		return fmt.Errorf("pgdata: %s: %w", op, err)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("pgdata: %s: %w: %v", op, gateway.ErrUnavailable, err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("pgdata: %s: %w: %v", op, gateway.ErrUnavailable, err)
	}
	return fmt.Errorf("pgdata: %s: %w", op, err)
}
