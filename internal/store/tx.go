package store

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX is the subset of database/sql used by queries.
// Both *sql.DB and *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Conn runs queries against a database or an open transaction.
type Conn struct {
	q DBTX
}

// WithTx runs fn inside a transaction, committing if fn returns nil and rolling
// back otherwise. Panics roll back and are re-raised.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context, tx Conn) error) (err error) {
	tx, err := db.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
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
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("store: commit: %w", cerr)
		}
	}()

	return fn(ctx, Conn{q: tx})
}
