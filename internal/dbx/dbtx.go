// Package dbx provides the small database abstractions shared by the
// repositories: DBTX, implemented by both *sql.DB and *sql.Tx, a transaction
// helper, and classification of driver errors.
package dbx

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of database/sql used by our repos.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxFunc is the unit of work run inside a transaction.
type TxFunc func(ctx context.Context, tx DBTX) error

// Transactor runs a TxFunc atomically. Services depend on it rather than on
// *sql.DB so their multi-row writes can be exercised without a database.
type Transactor interface {
	WithTx(ctx context.Context, fn TxFunc) error
}

// SQLTransactor is the Transactor backed by a *sql.DB.
type SQLTransactor struct {
	db   *sql.DB
	opts *sql.TxOptions
}

func NewSQLTransactor(db *sql.DB, opts *sql.TxOptions) *SQLTransactor {
	return &SQLTransactor{db: db, opts: opts}
}

func (t *SQLTransactor) WithTx(ctx context.Context, fn TxFunc) error {
	return WithTx(ctx, t.db, t.opts, fn)
}

// WithTx begins a transaction, runs fn with a transactional handle, and then
// commits on success or rolls back on error/panic. Panics are rethrown.
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    _, err := tx.ExecContext(ctx, "DELETE FROM file_permissions WHERE file_id=$1", id)
//	    return err
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn TxFunc) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation, optionally restricted to the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// IsForeignKeyViolation reports whether err is a PostgreSQL foreign key
// violation, optionally restricted to the named constraint.
func IsForeignKeyViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != foreignKeyViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
