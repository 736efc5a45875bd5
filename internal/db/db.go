// Package db provides the PostgreSQL repositories of the notification
// pipeline. Every repository accepts a DBTX, satisfied by both
// *pgxpool.Pool and pgx.Tx, so the same code runs inside or outside the
// unit of work opened by Transactor.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxBeginner starts a transaction. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Transactor runs a function inside a single database transaction. It is
// the explicit unit of work each job opens around one file row, one batch
// transition or one status event.
type Transactor struct {
	pool TxBeginner
}

// NewTransactor creates a Transactor over pool.
func NewTransactor(pool TxBeginner) *Transactor {
	return &Transactor{pool: pool}
}

// RunInTx begins a transaction, calls fn with it and commits when fn returns
// nil. Any error from fn rolls the transaction back and is returned as-is.
func (t *Transactor) RunInTx(ctx context.Context, fn func(ctx context.Context, q DBTX) error) error {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Rollback after a successful Commit is a no-op.
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// nilIfEmpty maps "" to SQL NULL.
func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// derefString maps SQL NULL to "".
func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// isUniqueViolation reports a PostgreSQL unique constraint violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
