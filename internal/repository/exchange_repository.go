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

// ExchangeRepository persists marketplace listings and their interests.
type ExchangeRepository struct {
	db *sqlx.DB
}

// NewExchangeRepository constructs the repository.
func NewExchangeRepository(db *sqlx.DB) *ExchangeRepository {
	return &ExchangeRepository{db: db}
}

const exchangeColumns = `id, owner_id, date, period, shift_type, time_slot, comment, status, created_at, last_modified`

// List returns listings matching the filter. Display order puts PENDING
// before UNAVAILABLE, then ascending date.
func (r *ExchangeRepository) List(ctx context.Context, filter models.ExchangeFilter) ([]models.ShiftExchange, int, error) {
	base := "FROM shift_exchanges WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.OwnerID != "" {
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)+1))
		args = append(args, filter.OwnerID)
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
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
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s %s
	ORDER BY CASE status WHEN 'PENDING' THEN 0 WHEN 'UNAVAILABLE' THEN 1 ELSE 2 END, date ASC
	LIMIT %d OFFSET %d`, exchangeColumns, base, size, offset)

	var exchanges []models.ShiftExchange
	if err := r.db.SelectContext(ctx, &exchanges, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list exchanges: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count exchanges: %w", err)
	}

	for i := range exchanges {
		interests, err := r.Interests(ctx, r.db, exchanges[i].ID)
		if err != nil {
			return nil, 0, err
		}
		exchanges[i].InterestedUsers = interests
	}

	return exchanges, total, nil
}

// FindByID loads a listing with its interests.
func (r *ExchangeRepository) FindByID(ctx context.Context, id string) (*models.ShiftExchange, error) {
	return r.find(ctx, r.db, id, false)
}

// FindByIDForUpdate loads and locks a listing inside tx. Interests are loaded
// through the same transaction.
func (r *ExchangeRepository) FindByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.ShiftExchange, error) {
	return r.find(ctx, tx, id, true)
}

func (r *ExchangeRepository) find(ctx context.Context, ext sqlx.ExtContext, id string, lock bool) (*models.ShiftExchange, error) {
	query := fmt.Sprintf(`SELECT %s FROM shift_exchanges WHERE id = $1`, exchangeColumns)
	if lock {
		query += " FOR UPDATE"
	}
	var exchange models.ShiftExchange
	if err := sqlx.GetContext(ctx, ext, &exchange, query, id); err != nil {
		return nil, err
	}
	interests, err := r.Interests(ctx, ext, id)
	if err != nil {
		return nil, err
	}
	exchange.InterestedUsers = interests
	return &exchange, nil
}

// ActiveExists reports whether a PENDING listing exists for the slot.
func (r *ExchangeRepository) ActiveExists(ctx context.Context, ownerID string, date time.Time, period models.DayPeriod) (bool, error) {
	const query = `SELECT COUNT(*) FROM shift_exchanges
	WHERE owner_id = $1 AND date = $2 AND period = $3 AND status = 'PENDING'`
	var count int
	if err := r.db.GetContext(ctx, &count, query, ownerID, date, period); err != nil {
		return false, fmt.Errorf("check active listing: %w", err)
	}
	return count > 0, nil
}

// Create inserts a new listing row.
func (r *ExchangeRepository) Create(ctx context.Context, exchange *models.ShiftExchange) error {
	if exchange.ID == "" {
		exchange.ID = uuid.NewString()
	}
	if exchange.Status == "" {
		exchange.Status = models.ExchangeStatusPending
	}
	now := time.Now().UTC()
	if exchange.CreatedAt.IsZero() {
		exchange.CreatedAt = now
	}
	exchange.LastModified = now

	const query = `INSERT INTO shift_exchanges (id, owner_id, date, period, shift_type, time_slot, comment, status, created_at, last_modified)
	VALUES (:id, :owner_id, :date, :period, :shift_type, :time_slot, :comment, :status, :created_at, :last_modified)`
	if _, err := r.db.NamedExecContext(ctx, query, exchange); err != nil {
		return fmt.Errorf("create exchange: %w", err)
	}
	return nil
}

// AddInterest records interest idempotently; a repeat insert is a no-op. The
// insert only lands while the listing is still PENDING. sql.ErrNoRows means
// the listing closed between the caller's read and the insert.
func (r *ExchangeRepository) AddInterest(ctx context.Context, exchangeID, workerID string) error {
	const query = `INSERT INTO shift_exchange_interests (exchange_id, worker_id, created_at)
	SELECT $1, $2, $3 WHERE EXISTS (SELECT 1 FROM shift_exchanges WHERE id = $1 AND status = 'PENDING')
	ON CONFLICT (exchange_id, worker_id) DO NOTHING`
	result, err := r.db.ExecContext(ctx, query, exchangeID, workerID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("add interest: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check interest rows: %w", err)
	}
	if rows == 0 {
		// Zero rows is either a repeat insert or a closed listing.
		var exists bool
		if err := r.db.GetContext(ctx, &exists,
			`SELECT EXISTS (SELECT 1 FROM shift_exchange_interests WHERE exchange_id = $1 AND worker_id = $2)`,
			exchangeID, workerID); err != nil {
			return fmt.Errorf("check interest: %w", err)
		}
		if !exists {
			return sql.ErrNoRows
		}
	}
	return nil
}

// Interests returns the worker ids interested in the listing.
func (r *ExchangeRepository) Interests(ctx context.Context, ext sqlx.ExtContext, exchangeID string) ([]string, error) {
	var workers []string
	if err := sqlx.SelectContext(ctx, ext, &workers,
		`SELECT worker_id FROM shift_exchange_interests WHERE exchange_id = $1 ORDER BY created_at`, exchangeID); err != nil {
		return nil, fmt.Errorf("load interests: %w", err)
	}
	return workers, nil
}

// UpdateStatus transitions the listing with an optimistic guard on the
// current status. Zero rows affected means the listing moved concurrently.
func (r *ExchangeRepository) UpdateStatus(ctx context.Context, ext sqlx.ExtContext, id string, from, to models.ExchangeStatus) error {
	result, err := ext.ExecContext(ctx, `UPDATE shift_exchanges SET status = $3, last_modified = $4
	WHERE id = $1 AND status = $2`, id, from, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update exchange status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check exchange status rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkUnavailableBefore retires PENDING listings whose date has passed the
// cutoff. Returns the number of listings swept.
func (r *ExchangeRepository) MarkUnavailableBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `UPDATE shift_exchanges SET status = 'UNAVAILABLE', last_modified = $2
	WHERE status = 'PENDING' AND date < $1`, cutoff, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("sweep stale listings: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check sweep rows: %w", err)
	}
	return rows, nil
}

// Delete removes a withdrawn listing and its interests. The status guard
// makes a concurrent validation win over a withdraw. Runs on the caller's
// transaction so the withdraw history entry commits with the delete.
func (r *ExchangeRepository) Delete(ctx context.Context, ext sqlx.ExtContext, id string) error {
	if _, err := ext.ExecContext(ctx, `DELETE FROM shift_exchange_interests WHERE exchange_id = $1`, id); err != nil {
		return fmt.Errorf("delete interests: %w", err)
	}
	result, err := ext.ExecContext(ctx, `DELETE FROM shift_exchanges WHERE id = $1 AND status = 'PENDING'`, id)
	if err != nil {
		return fmt.Errorf("delete exchange: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check delete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
