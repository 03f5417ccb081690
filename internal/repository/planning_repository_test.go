package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/planidocs/exchange-api/internal/models"
	appErrors "github.com/planidocs/exchange-api/pkg/errors"
)

func TestPlanningRepositoryGetByWorker(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPlanningRepository(db)
	rows := sqlmock.NewRows([]string{"worker_id", "date", "period", "shift_type", "time_slot", "covered_by", "created_at", "updated_at"}).
		AddRow("worker-1", time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC), "MORNING", "J1", "08:00-12:00", nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT worker_id, date, period")).
		WithArgs("worker-1").
		WillReturnRows(rows)

	assignments, err := repo.GetByWorker(context.Background(), "worker-1")
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	require.Equal(t, models.PeriodMorning, assignments[0].Period)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanningRepositoryApplyDeltaRemovalGuard(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPlanningRepository(db)
	descriptor := models.ShiftDescriptor{
		Date:      time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC),
		Period:    models.PeriodMorning,
		ShiftType: "J1",
		TimeSlot:  "08:00-12:00",
	}

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM shift_assignments")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.ApplyDelta(context.Background(), db, models.PlanningDelta{
		WorkerID: "worker-1",
		Removals: []models.ShiftDescriptor{descriptor},
	})
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrShiftNotOwned.Code, appErr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanningRepositoryApplyDeltaRemoveThenAdd(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPlanningRepository(db)
	descriptor := models.ShiftDescriptor{
		Date:      time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC),
		Period:    models.PeriodEvening,
		ShiftType: "S2",
		TimeSlot:  "18:00-22:00",
	}

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM shift_assignments")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO shift_assignments")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.ApplyDelta(context.Background(), db, models.PlanningDelta{
		WorkerID:  "worker-1",
		Removals:  []models.ShiftDescriptor{descriptor},
		Additions: []models.ShiftDescriptor{descriptor},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanningRepositoryLockWorkersSortedAndDeduped(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPlanningRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT 1 FROM shift_assignments")).
		WithArgs("worker-a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SELECT 1 FROM shift_assignments")).
		WithArgs("worker-b").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, repo.LockWorkers(context.Background(), tx, "worker-b", "worker-a", "worker-b"))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanningRepositorySetCoveredByGuard(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPlanningRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE shift_assignments SET covered_by")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetCoveredBy(context.Background(), db, "worker-1", models.ShiftDescriptor{
		Date:   time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC),
		Period: models.PeriodMorning,
	}, "worker-2")
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrShiftNotOwned.Code, appErr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanningRepositoryReplaceWindow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPlanningRepository(db)
	from := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM shift_assignments WHERE worker_id")).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO shift_assignments")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.ReplaceWindow(context.Background(), "worker-1", from, to, []models.ShiftDescriptor{
		{Date: from.AddDate(0, 0, 13), Period: models.PeriodMorning, ShiftType: "J1", TimeSlot: "08:00-12:00"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
