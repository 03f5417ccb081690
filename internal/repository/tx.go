package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	appErrors "github.com/planidocs/exchange-api/pkg/errors"
)

// Transactor runs functions inside a database transaction. Repositories
// expose tx-scoped primitives taking sqlx.ExtContext so services can compose
// multi-entity operations into one atomic unit.
type Transactor struct {
	db      *sqlx.DB
	retries int
	onRetry func()
}

// OnRetry registers a hook invoked once per serialization-conflict retry.
func (t *Transactor) OnRetry(fn func()) {
	t.onRetry = fn
}

// NewTransactor constructs a transactor with bounded conflict retries.
func NewTransactor(db *sqlx.DB, retries int) *Transactor {
	if retries <= 0 {
		retries = 3
	}
	return &Transactor{db: db, retries: retries}
}

// WithinTx executes fn inside a transaction. Any error rolls back; the commit
// error is returned as-is so callers can classify it.
func (t *Transactor) WithinTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// WithinTxRetry runs fn as WithinTx and retries on serialization conflicts.
// Only lost-race errors are retried; domain errors surface immediately. After
// the retry budget is exhausted the caller sees ErrConcurrencyConflict.
func (t *Transactor) WithinTxRetry(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	var err error
	for attempt := 0; attempt < t.retries; attempt++ {
		err = t.WithinTx(ctx, fn)
		if err == nil || !isSerializationFailure(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if t.onRetry != nil {
			t.onRetry()
		}
	}
	return appErrors.Wrap(err, appErrors.ErrConcurrencyConflict.Code, appErrors.ErrConcurrencyConflict.Status, "transaction retries exhausted")
}

// isSerializationFailure matches postgres serialization and deadlock errors.
func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}
