package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	appErrors "github.com/planidocs/exchange-api/pkg/errors"
)

func TestTransactorCommitsOnSuccess(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit()

	transactor := NewTransactor(db, 3)
	err := transactor.WithinTx(context.Background(), func(tx *sqlx.Tx) error {
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactorRollsBackOnError(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	transactor := NewTransactor(db, 3)
	boom := errors.New("boom")
	err := transactor.WithinTx(context.Background(), func(tx *sqlx.Tx) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactorRetriesSerializationFailures(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	for i := 0; i < 3; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	transactor := NewTransactor(db, 3)
	retries := 0
	transactor.OnRetry(func() { retries++ })

	serialization := &pq.Error{Code: "40001"}
	err := transactor.WithinTxRetry(context.Background(), func(tx *sqlx.Tx) error {
		return serialization
	})

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrConcurrencyConflict.Code, appErr.Code)
	require.Equal(t, 3, retries)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactorDoesNotRetryDomainErrors(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	transactor := NewTransactor(db, 3)
	attempts := 0
	err := transactor.WithinTxRetry(context.Background(), func(tx *sqlx.Tx) error {
		attempts++
		return appErrors.ErrInvalidState
	})
	require.ErrorIs(t, err, appErrors.ErrInvalidState)
	require.Equal(t, 1, attempts)
	require.NoError(t, mock.ExpectationsWereMet())
}
