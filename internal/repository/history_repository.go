package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/planidocs/exchange-api/internal/models"
)

// HistoryRepository persists the append-only exchange history. Rows are
// written inside the exchange transactions through the ExtContext primitive;
// there is no update or delete.
type HistoryRepository struct {
	db *sqlx.DB
}

// NewHistoryRepository constructs the repository.
func NewHistoryRepository(db *sqlx.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

const historyColumns = `id, event_type, source, source_id, owner_id, counterparty_id, payload, created_at`

// Append writes a history entry inside the enclosing transaction.
func (r *HistoryRepository) Append(ctx context.Context, ext sqlx.ExtContext, entry *models.ExchangeHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO exchange_history (id, event_type, source, source_id, owner_id, counterparty_id, payload, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := ext.ExecContext(ctx, query,
		entry.ID, entry.EventType, entry.Source, entry.SourceID, entry.OwnerID, entry.CounterpartyID, entry.Payload, entry.CreatedAt); err != nil {
		return fmt.Errorf("append history entry: %w", err)
	}
	return nil
}

// FindLatestBySource returns the most recent entry of the given type for the
// source entity. Used to reverse a validated listing.
func (r *HistoryRepository) FindLatestBySource(ctx context.Context, source models.HistorySource, sourceID string, eventType models.HistoryEventType) (*models.ExchangeHistoryEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM exchange_history
	WHERE source = $1 AND source_id = $2 AND event_type = $3
	ORDER BY created_at DESC LIMIT 1`, historyColumns)
	var entry models.ExchangeHistoryEntry
	if err := r.db.GetContext(ctx, &entry, query, source, sourceID, eventType); err != nil {
		return nil, err
	}
	return &entry, nil
}

// List returns history entries matching the filter, most recent first.
func (r *HistoryRepository) List(ctx context.Context, filter models.HistoryFilter) ([]models.ExchangeHistoryEntry, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(fmt.Sprintf("SELECT %s FROM exchange_history", historyColumns))

	conditions := make([]string, 0, 4)
	if filter.Source != "" {
		args = append(args, filter.Source)
		conditions = append(conditions, fmt.Sprintf("source = $%d", len(args)))
	}
	if filter.SourceID != "" {
		args = append(args, filter.SourceID)
		conditions = append(conditions, fmt.Sprintf("source_id = $%d", len(args)))
	}
	if filter.EventType != "" {
		args = append(args, filter.EventType)
		conditions = append(conditions, fmt.Sprintf("event_type = $%d", len(args)))
	}
	if filter.WorkerID != "" {
		args = append(args, filter.WorkerID)
		conditions = append(conditions, fmt.Sprintf("(owner_id = $%d OR counterparty_id = $%d)", len(args), len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var entries []models.ExchangeHistoryEntry
	if err := r.db.SelectContext(ctx, &entries, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}

// SlotConflicts derives, on demand, how much competing interest each of the
// worker's listed or offered slots currently attracts.
func (r *HistoryRepository) SlotConflicts(ctx context.Context, workerID string) ([]models.SlotConflict, error) {
	const query = `
	SELECT e.owner_id AS worker_id, e.date, e.period,
	       COUNT(DISTINCT i.worker_id) AS interest_count,
	       0 AS pending_proposals
	FROM shift_exchanges e
	LEFT JOIN shift_exchange_interests i ON i.exchange_id = e.id
	WHERE e.owner_id = $1 AND e.status = 'PENDING'
	GROUP BY e.owner_id, e.date, e.period
	UNION ALL
	SELECT d.user_id AS worker_id, d.date, d.period,
	       0 AS interest_count,
	       COUNT(p.id) AS pending_proposals
	FROM direct_exchanges d
	LEFT JOIN direct_exchange_proposals p ON p.exchange_id = d.id AND p.status = 'PENDING'
	WHERE d.user_id = $1 AND d.status = 'PENDING'
	GROUP BY d.user_id, d.date, d.period`

	var conflicts []models.SlotConflict
	if err := r.db.SelectContext(ctx, &conflicts, query, workerID); err != nil {
		return nil, fmt.Errorf("derive slot conflicts: %w", err)
	}
	return conflicts, nil
}
