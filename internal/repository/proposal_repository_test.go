package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/planidocs/exchange-api/internal/models"
)

func proposalRows(id string, status models.ProposalStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "exchange_id", "target_user_id", "proposing_user_id", "type", "proposed_shifts", "comment", "status", "created_at", "last_modified"}).
		AddRow(id, "ex-1", "worker-1", "worker-2", "EXCHANGE",
			[]byte(`[{"date":"2026-09-15T00:00:00Z","period":"EVENING","shift_type":"S2","time_slot":"18:00-22:00"}]`),
			"", status, time.Now(), time.Now())
}

func TestProposalRepositoryCreateAndFind(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewProposalRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO direct_exchange_proposals")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	proposal := &models.DirectExchangeProposal{
		ExchangeID:      "ex-1",
		TargetUserID:    "worker-1",
		ProposingUserID: "worker-2",
		Type:            models.ProposalExchange,
		ProposedShifts: models.ShiftDescriptorList{
			{Date: time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC), Period: models.PeriodEvening, ShiftType: "S2", TimeSlot: "18:00-22:00"},
		},
	}
	require.NoError(t, repo.Create(context.Background(), proposal))
	require.NotEmpty(t, proposal.ID)
	require.Equal(t, models.ProposalStatusPending, proposal.Status)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, exchange_id, target_user_id")).
		WithArgs(proposal.ID).
		WillReturnRows(proposalRows(proposal.ID, models.ProposalStatusPending))

	found, err := repo.FindByID(context.Background(), proposal.ID)
	require.NoError(t, err)
	require.Equal(t, models.ProposalExchange, found.Type)
	require.Len(t, found.ProposedShifts, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProposalRepositoryFindActiveByProposer(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewProposalRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, exchange_id, target_user_id")).
		WithArgs("ex-1", "worker-2").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindActiveByProposer(context.Background(), "ex-1", "worker-2")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProposalRepositoryUpdateStatusGuard(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewProposalRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE direct_exchange_proposals SET status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateStatus(context.Background(), db, "prop-1", models.ProposalStatusAccepted))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE direct_exchange_proposals SET status")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.UpdateStatus(context.Background(), db, "prop-1", models.ProposalStatusAccepted)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProposalRepositoryRetireSiblings(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewProposalRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE direct_exchange_proposals SET status")).
		WillReturnResult(sqlmock.NewResult(0, 2))

	retired, err := repo.RetireSiblings(context.Background(), db, "ex-1", "prop-1", models.ProposalStatusRejected)
	require.NoError(t, err)
	require.EqualValues(t, 2, retired)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProposalRepositoryReplaceGuard(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewProposalRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE direct_exchange_proposals")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Replace(context.Background(), "prop-1", models.ProposalTake, nil, "updated")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
