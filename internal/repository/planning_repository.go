package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/planidocs/exchange-api/internal/models"
	appErrors "github.com/planidocs/exchange-api/pkg/errors"
)

// PlanningRepository is the assignment store: the single owner of every
// worker's planning rows. All ownership changes go through ApplyDelta so the
// exchange managers can compose it into their transactions.
type PlanningRepository struct {
	db *sqlx.DB
}

// NewPlanningRepository constructs the repository.
func NewPlanningRepository(db *sqlx.DB) *PlanningRepository {
	return &PlanningRepository{db: db}
}

const assignmentColumns = `worker_id, date, period, shift_type, time_slot, covered_by, created_at, updated_at`

// GetByWorker returns the worker's planning sorted by date then period.
func (r *PlanningRepository) GetByWorker(ctx context.Context, workerID string) ([]models.ShiftAssignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM shift_assignments WHERE worker_id = $1 ORDER BY date, period`, assignmentColumns)
	var assignments []models.ShiftAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, workerID); err != nil {
		return nil, fmt.Errorf("get planning for %s: %w", workerID, err)
	}
	return assignments, nil
}

// Find loads one assignment by its slot identity.
func (r *PlanningRepository) Find(ctx context.Context, workerID string, date time.Time, period models.DayPeriod) (*models.ShiftAssignment, error) {
	return r.find(ctx, r.db, workerID, date, period, false)
}

// FindForUpdate loads one assignment inside tx, locking the row.
func (r *PlanningRepository) FindForUpdate(ctx context.Context, tx *sqlx.Tx, workerID string, date time.Time, period models.DayPeriod) (*models.ShiftAssignment, error) {
	return r.find(ctx, tx, workerID, date, period, true)
}

func (r *PlanningRepository) find(ctx context.Context, q sqlx.QueryerContext, workerID string, date time.Time, period models.DayPeriod, lock bool) (*models.ShiftAssignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM shift_assignments WHERE worker_id = $1 AND date = $2 AND period = $3`, assignmentColumns)
	if lock {
		query += " FOR UPDATE"
	}
	var assignment models.ShiftAssignment
	if err := sqlx.GetContext(ctx, q, &assignment, query, workerID, date, period); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// LockWorkers acquires row locks on the workers' planning rows in ascending
// worker id order so concurrent transactions never deadlock on each other.
func (r *PlanningRepository) LockWorkers(ctx context.Context, tx *sqlx.Tx, workerIDs ...string) error {
	ids := append([]string(nil), workerIDs...)
	sort.Strings(ids)
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, err := tx.ExecContext(ctx, `SELECT 1 FROM shift_assignments WHERE worker_id = $1 FOR UPDATE`, id); err != nil {
			return fmt.Errorf("lock planning of %s: %w", id, err)
		}
	}
	return nil
}

// Owns reports whether the worker currently holds the exact shift described.
func (r *PlanningRepository) Owns(ctx context.Context, ext sqlx.ExtContext, workerID string, d models.ShiftDescriptor) (bool, error) {
	const query = `SELECT COUNT(*) FROM shift_assignments
	WHERE worker_id = $1 AND date = $2 AND period = $3 AND shift_type = $4 AND time_slot = $5`
	var count int
	if err := sqlx.GetContext(ctx, ext, &count, query, workerID, d.Date, d.Period, d.ShiftType, d.TimeSlot); err != nil {
		return false, fmt.Errorf("check ownership for %s %s: %w", workerID, d.SlotKey(), err)
	}
	return count > 0, nil
}

// ApplyDelta applies removals then additions for one worker inside the
// enclosing transaction. A removal that no longer matches the stored
// descriptor aborts with ErrShiftNotOwned so the whole transaction rolls back.
func (r *PlanningRepository) ApplyDelta(ctx context.Context, ext sqlx.ExtContext, delta models.PlanningDelta) error {
	now := time.Now().UTC()

	for _, d := range delta.Removals {
		result, err := ext.ExecContext(ctx, `DELETE FROM shift_assignments
		WHERE worker_id = $1 AND date = $2 AND period = $3 AND shift_type = $4 AND time_slot = $5`,
			delta.WorkerID, d.Date, d.Period, d.ShiftType, d.TimeSlot)
		if err != nil {
			return fmt.Errorf("remove assignment %s from %s: %w", d.SlotKey(), delta.WorkerID, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("check removal rows: %w", err)
		}
		if rows == 0 {
			return appErrors.Clone(appErrors.ErrShiftNotOwned,
				fmt.Sprintf("shift %s is no longer held by %s", d.SlotKey(), delta.WorkerID))
		}
	}

	for _, d := range delta.Additions {
		if _, err := ext.ExecContext(ctx, `INSERT INTO shift_assignments
		(worker_id, date, period, shift_type, time_slot, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`,
			delta.WorkerID, d.Date, d.Period, d.ShiftType, d.TimeSlot, now); err != nil {
			return fmt.Errorf("add assignment %s to %s: %w", d.SlotKey(), delta.WorkerID, err)
		}
	}

	return nil
}

// SetCoveredBy flags the assignment as externally covered; the worker stays
// the nominal owner.
func (r *PlanningRepository) SetCoveredBy(ctx context.Context, ext sqlx.ExtContext, workerID string, d models.ShiftDescriptor, coveredBy string) error {
	result, err := ext.ExecContext(ctx, `UPDATE shift_assignments SET covered_by = $6, updated_at = $7
	WHERE worker_id = $1 AND date = $2 AND period = $3 AND shift_type = $4 AND time_slot = $5`,
		workerID, d.Date, d.Period, d.ShiftType, d.TimeSlot, coveredBy, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark covered %s for %s: %w", d.SlotKey(), workerID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check covered rows: %w", err)
	}
	if rows == 0 {
		return appErrors.Clone(appErrors.ErrShiftNotOwned,
			fmt.Sprintf("shift %s is no longer held by %s", d.SlotKey(), workerID))
	}
	return nil
}

// ReplaceWindow atomically replaces a worker's planning between two dates.
// Used by the bulk import pipeline, never by exchange transactions.
func (r *PlanningRepository) ReplaceWindow(ctx context.Context, workerID string, from, to time.Time, assignments []models.ShiftDescriptor) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM shift_assignments WHERE worker_id = $1 AND date BETWEEN $2 AND $3`,
		workerID, from, to); err != nil {
		return fmt.Errorf("clear planning window: %w", err)
	}

	now := time.Now().UTC()
	for _, d := range assignments {
		if _, err = tx.ExecContext(ctx, `INSERT INTO shift_assignments
		(worker_id, date, period, shift_type, time_slot, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`,
			workerID, d.Date, d.Period, d.ShiftType, d.TimeSlot, now); err != nil {
			return fmt.Errorf("import assignment %s: %w", d.SlotKey(), err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit import tx: %w", err)
	}
	return nil
}
