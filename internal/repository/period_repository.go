package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/planidocs/exchange-api/internal/models"
)

// PeriodRepository handles persistence for planning periods.
type PeriodRepository struct {
	db *sqlx.DB
}

// NewPeriodRepository instantiates a period repository.
func NewPeriodRepository(db *sqlx.DB) *PeriodRepository {
	return &PeriodRepository{db: db}
}

const periodColumns = `id, name, start_date, end_date, status, bag_phase, is_validated, validated_at, created_at, updated_at`

// List returns periods matching the filter, most recent range first.
func (r *PeriodRepository) List(ctx context.Context, filter models.PeriodFilter) ([]models.PlanningPeriod, int, error) {
	base := "FROM planning_periods WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.BagPhase != "" {
		conditions = append(conditions, fmt.Sprintf("bag_phase = $%d", len(args)+1))
		args = append(args, filter.BagPhase)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY start_date DESC LIMIT %d OFFSET %d", periodColumns, base, size, offset)

	var periods []models.PlanningPeriod
	if err := r.db.SelectContext(ctx, &periods, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list periods: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count periods: %w", err)
	}

	return periods, total, nil
}

// FindByID loads a period by identifier.
func (r *PeriodRepository) FindByID(ctx context.Context, id string) (*models.PlanningPeriod, error) {
	query := fmt.Sprintf(`SELECT %s FROM planning_periods WHERE id = $1`, periodColumns)
	var period models.PlanningPeriod
	if err := r.db.GetContext(ctx, &period, query, id); err != nil {
		return nil, err
	}
	return &period, nil
}

// FindActive returns the currently active period.
func (r *PeriodRepository) FindActive(ctx context.Context) (*models.PlanningPeriod, error) {
	query := fmt.Sprintf(`SELECT %s FROM planning_periods WHERE status = 'ACTIVE' LIMIT 1`, periodColumns)
	var period models.PlanningPeriod
	if err := r.db.GetContext(ctx, &period, query); err != nil {
		return nil, err
	}
	return &period, nil
}

// FindByDate returns the non-archived period whose range covers the date.
func (r *PeriodRepository) FindByDate(ctx context.Context, date time.Time) (*models.PlanningPeriod, error) {
	query := fmt.Sprintf(`SELECT %s FROM planning_periods
	WHERE status <> 'ARCHIVED' AND start_date <= $1 AND end_date >= $1
	ORDER BY start_date LIMIT 1`, periodColumns)
	var period models.PlanningPeriod
	if err := r.db.GetContext(ctx, &period, query, date); err != nil {
		return nil, err
	}
	return &period, nil
}

// Create inserts a new period record.
func (r *PeriodRepository) Create(ctx context.Context, period *models.PlanningPeriod) error {
	if period.ID == "" {
		period.ID = uuid.NewString()
	}
	if period.Status == "" {
		period.Status = models.PeriodStatusFuture
	}
	if period.BagPhase == "" {
		period.BagPhase = models.BagPhaseSubmission
	}
	now := time.Now().UTC()
	if period.CreatedAt.IsZero() {
		period.CreatedAt = now
	}
	period.UpdatedAt = now

	const query = `INSERT INTO planning_periods (id, name, start_date, end_date, status, bag_phase, is_validated, validated_at, created_at, updated_at)
	VALUES (:id, :name, :start_date, :end_date, :status, :bag_phase, :is_validated, :validated_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, period); err != nil {
		return fmt.Errorf("create period: %w", err)
	}
	return nil
}

// UpdatePhase advances the phase with an optimistic guard on the current one.
// Zero rows affected means the period moved concurrently.
func (r *PeriodRepository) UpdatePhase(ctx context.Context, id string, from, to models.BagPhase) error {
	result, err := r.db.ExecContext(ctx, `UPDATE planning_periods SET bag_phase = $3, updated_at = $4
	WHERE id = $1 AND bag_phase = $2`, id, from, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update period phase: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check phase update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ForcePhase sets the phase unconditionally. Administrative override only.
func (r *PeriodRepository) ForcePhase(ctx context.Context, id string, to models.BagPhase) error {
	result, err := r.db.ExecContext(ctx, `UPDATE planning_periods SET bag_phase = $2, updated_at = $3 WHERE id = $1`,
		id, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("force period phase: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check force phase rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Merge promotes the given period to the single active one. In one
// transaction the previously active period is archived and the target is
// activated with a completed phase, so exactly one period is active after
// commit.
func (r *PeriodRepository) Merge(ctx context.Context, id string, validatedAt time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin merge tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()

	if _, err = tx.ExecContext(ctx, `UPDATE planning_periods SET status = 'ARCHIVED', updated_at = $1
	WHERE status = 'ACTIVE' AND id <> $2`, now, id); err != nil {
		return fmt.Errorf("archive active period: %w", err)
	}

	var result sql.Result
	result, err = tx.ExecContext(ctx, `UPDATE planning_periods
	SET status = 'ACTIVE', bag_phase = 'COMPLETED', is_validated = TRUE, validated_at = $2, updated_at = $3
	WHERE id = $1 AND status <> 'ARCHIVED'`, id, validatedAt, now)
	if err != nil {
		return fmt.Errorf("activate merged period: %w", err)
	}
	var rows int64
	rows, err = result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check merge rows: %w", err)
	}
	if rows == 0 {
		err = sql.ErrNoRows
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit merge tx: %w", err)
	}
	return nil
}
