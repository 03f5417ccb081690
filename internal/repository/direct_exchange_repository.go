package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/planidocs/exchange-api/internal/models"
)

// DirectExchangeRepository persists peer-targeted offers.
type DirectExchangeRepository struct {
	db *sqlx.DB
}

// NewDirectExchangeRepository constructs the repository.
func NewDirectExchangeRepository(db *sqlx.DB) *DirectExchangeRepository {
	return &DirectExchangeRepository{db: db}
}

const directExchangeColumns = `id, user_id, date, period, shift_type, time_slot, operation_types, comment, status, created_at, last_modified`

// List returns direct exchanges matching the filter, newest first.
func (r *DirectExchangeRepository) List(ctx context.Context, filter models.DirectExchangeFilter) ([]models.DirectExchange, int, error) {
	base := "FROM direct_exchanges WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", directExchangeColumns, base, size, offset)

	var exchanges []models.DirectExchange
	if err := r.db.SelectContext(ctx, &exchanges, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list direct exchanges: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count direct exchanges: %w", err)
	}

	return exchanges, total, nil
}

// FindByID loads a direct exchange by identifier.
func (r *DirectExchangeRepository) FindByID(ctx context.Context, id string) (*models.DirectExchange, error) {
	return r.find(ctx, r.db, id, false)
}

// FindByIDForUpdate loads and locks the exchange row inside tx. This is the
// first lock the acceptance protocol takes, before any planning rows.
func (r *DirectExchangeRepository) FindByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.DirectExchange, error) {
	return r.find(ctx, tx, id, true)
}

func (r *DirectExchangeRepository) find(ctx context.Context, q sqlx.QueryerContext, id string, lock bool) (*models.DirectExchange, error) {
	query := fmt.Sprintf(`SELECT %s FROM direct_exchanges WHERE id = $1`, directExchangeColumns)
	if lock {
		query += " FOR UPDATE"
	}
	var exchange models.DirectExchange
	if err := sqlx.GetContext(ctx, q, &exchange, query, id); err != nil {
		return nil, err
	}
	return &exchange, nil
}

// FindActiveBySlot returns the PENDING exchange for the slot if one exists.
func (r *DirectExchangeRepository) FindActiveBySlot(ctx context.Context, userID string, date time.Time, period models.DayPeriod) (*models.DirectExchange, error) {
	query := fmt.Sprintf(`SELECT %s FROM direct_exchanges
	WHERE user_id = $1 AND date = $2 AND period = $3 AND status = 'PENDING' LIMIT 1`, directExchangeColumns)
	var exchange models.DirectExchange
	if err := r.db.GetContext(ctx, &exchange, query, userID, date, period); err != nil {
		return nil, err
	}
	return &exchange, nil
}

// Create inserts a new direct exchange row.
func (r *DirectExchangeRepository) Create(ctx context.Context, exchange *models.DirectExchange) error {
	if exchange.ID == "" {
		exchange.ID = uuid.NewString()
	}
	if exchange.Status == "" {
		exchange.Status = models.DirectExchangeStatusPending
	}
	now := time.Now().UTC()
	if exchange.CreatedAt.IsZero() {
		exchange.CreatedAt = now
	}
	exchange.LastModified = now

	const query = `INSERT INTO direct_exchanges (id, user_id, date, period, shift_type, time_slot, operation_types, comment, status, created_at, last_modified)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if _, err := r.db.ExecContext(ctx, query,
		exchange.ID, exchange.UserID, exchange.Date, exchange.Period, exchange.ShiftType, exchange.TimeSlot,
		pq.Array(exchange.OperationTypes), exchange.Comment, exchange.Status, exchange.CreatedAt, exchange.LastModified); err != nil {
		return fmt.Errorf("create direct exchange: %w", err)
	}
	return nil
}

// ReplaceOperations updates the operation types and comment of a PENDING
// exchange in place; the upsert semantics keep one active row per slot.
func (r *DirectExchangeRepository) ReplaceOperations(ctx context.Context, id string, operations []string, comment string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE direct_exchanges
	SET operation_types = $2, comment = $3, last_modified = $4
	WHERE id = $1 AND status = 'PENDING'`, id, pq.Array(operations), comment, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("replace direct exchange operations: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check operations rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatus transitions the exchange with an optimistic guard on the
// current status.
func (r *DirectExchangeRepository) UpdateStatus(ctx context.Context, ext sqlx.ExtContext, id string, from, to models.DirectExchangeStatus) error {
	result, err := ext.ExecContext(ctx, `UPDATE direct_exchanges SET status = $3, last_modified = $4
	WHERE id = $1 AND status = $2`, id, from, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update direct exchange status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check direct exchange status rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
