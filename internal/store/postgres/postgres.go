package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Zimkada/BarTender-sub004/internal/apperror"
	"github.com/Zimkada/BarTender-sub004/internal/store"
)

//go:embed schema.sql
var schema string

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Store struct {
	*reader
	db *sql.DB
}

var _ store.Repository = (*Store)(nil)

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return NewFromDB(db), nil
}

// NewFromDB wraps an open handle. The caller keeps ownership of migrations.
func NewFromDB(db *sql.DB) *Store {
	return &Store{reader: newReader(db, false), db: db}
}

// Migrate creates the tables if they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RunInTx runs fn in a read-committed transaction. Rows read through the
// Tx are locked with FOR UPDATE, and writes check the version or status
// they were read with.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, &tx{reader: newReader(sqlTx, true)}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return mapError(err, "transaction", "")
	}
	return nil
}

// ReadSnapshot runs fn in a read-only repeatable-read transaction. Rows are
// not locked.
func (s *Store) ReadSnapshot(ctx context.Context, fn func(ctx context.Context, r store.Reader) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, newReader(sqlTx, false)); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type reader struct {
	q    querier
	sb   squirrel.StatementBuilderType
	lock bool
}

func newReader(q querier, lock bool) *reader {
	return &reader{
		q:    q,
		sb:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		lock: lock,
	}
}

// forUpdate appends a row lock when running inside a transaction.
func (r *reader) forUpdate(q squirrel.SelectBuilder) squirrel.SelectBuilder {
	if r.lock {
		return q.Suffix("FOR UPDATE")
	}
	return q
}

func (r *reader) get(ctx context.Context, dst any, q squirrel.SelectBuilder, entity, id string) error {
	query, args, err := q.ToSql()
	if err != nil {
		return err
	}
	if err := sqlscan.Get(ctx, r.q, dst, query, args...); err != nil {
		return mapError(err, entity, id)
	}
	return nil
}

func (r *reader) selectAll(ctx context.Context, dst any, q squirrel.Sqlizer) error {
	query, args, err := q.ToSql()
	if err != nil {
		return err
	}
	return sqlscan.Select(ctx, r.q, dst, query, args...)
}

type tx struct {
	*reader
}

var _ store.Tx = (*tx)(nil)

// execOne runs a write that must touch exactly one row. Zero rows means
// the guard in the WHERE clause failed; exists decides between not found
// and a concurrent change.
func (t *tx) execOne(ctx context.Context, q squirrel.Sqlizer, entity, id, table string) error {
	query, args, err := q.ToSql()
	if err != nil {
		return err
	}
	res, err := t.q.ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(err, entity, id)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}
	var exists bool
	if err := t.q.QueryRowContext(ctx, fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)", table), id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return apperror.NewNotFound(entity, id)
	}
	return apperror.NewConcurrentModification(entity, id)
}

func (t *tx) insert(ctx context.Context, q squirrel.InsertBuilder, entity, id string) error {
	query, args, err := q.ToSql()
	if err != nil {
		return err
	}
	if _, err := t.q.ExecContext(ctx, query, args...); err != nil {
		return mapError(err, entity, id)
	}
	return nil
}

func mapError(err error, entity, id string) error {
	if err == nil {
		return nil
	}
	if sqlscan.NotFound(err) || errors.Is(err, sql.ErrNoRows) {
		return apperror.NewNotFound(entity, id)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return apperror.Newf(apperror.ErrInvalidInput, "%s %s already exists", entity, id).WithCause(err)
		case "23503", "23514":
			return apperror.NewInvalidInput(pgErr.Message).WithCause(err)
		case "40001", "40P01":
			return apperror.NewConcurrentModification(entity, id).WithCause(err)
		}
	}
	return err
}

func strs[S ~string](in []S) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}
