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

// ProposalRepository persists counter-offers against direct exchanges.
type ProposalRepository struct {
	db *sqlx.DB
}

// NewProposalRepository constructs the repository.
func NewProposalRepository(db *sqlx.DB) *ProposalRepository {
	return &ProposalRepository{db: db}
}

const proposalColumns = `id, exchange_id, target_user_id, proposing_user_id, type, proposed_shifts, comment, status, created_at, last_modified`

// List returns proposals matching the filter, newest first.
func (r *ProposalRepository) List(ctx context.Context, filter models.ProposalFilter) ([]models.DirectExchangeProposal, int, error) {
	base := "FROM direct_exchange_proposals WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.ExchangeID != "" {
		conditions = append(conditions, fmt.Sprintf("exchange_id = $%d", len(args)+1))
		args = append(args, filter.ExchangeID)
	}
	if filter.TargetUserID != "" {
		conditions = append(conditions, fmt.Sprintf("target_user_id = $%d", len(args)+1))
		args = append(args, filter.TargetUserID)
	}
	if filter.ProposingUserID != "" {
		conditions = append(conditions, fmt.Sprintf("proposing_user_id = $%d", len(args)+1))
		args = append(args, filter.ProposingUserID)
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", proposalColumns, base, size, offset)

	var proposals []models.DirectExchangeProposal
	if err := r.db.SelectContext(ctx, &proposals, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list proposals: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count proposals: %w", err)
	}

	return proposals, total, nil
}

// FindByID loads a proposal by identifier.
func (r *ProposalRepository) FindByID(ctx context.Context, id string) (*models.DirectExchangeProposal, error) {
	return r.find(ctx, r.db, id, false)
}

// FindByIDForUpdate loads and locks the proposal inside tx. The acceptance
// protocol takes this lock after the exchange row, never before.
func (r *ProposalRepository) FindByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.DirectExchangeProposal, error) {
	return r.find(ctx, tx, id, true)
}

func (r *ProposalRepository) find(ctx context.Context, q sqlx.QueryerContext, id string, lock bool) (*models.DirectExchangeProposal, error) {
	query := fmt.Sprintf(`SELECT %s FROM direct_exchange_proposals WHERE id = $1`, proposalColumns)
	if lock {
		query += " FOR UPDATE"
	}
	var proposal models.DirectExchangeProposal
	if err := sqlx.GetContext(ctx, q, &proposal, query, id); err != nil {
		return nil, err
	}
	return &proposal, nil
}

// FindActiveByProposer returns the PENDING proposal the worker already has on
// the exchange, if any.
func (r *ProposalRepository) FindActiveByProposer(ctx context.Context, exchangeID, proposingUserID string) (*models.DirectExchangeProposal, error) {
	query := fmt.Sprintf(`SELECT %s FROM direct_exchange_proposals
	WHERE exchange_id = $1 AND proposing_user_id = $2 AND status = 'PENDING' LIMIT 1`, proposalColumns)
	var proposal models.DirectExchangeProposal
	if err := r.db.GetContext(ctx, &proposal, query, exchangeID, proposingUserID); err != nil {
		return nil, err
	}
	return &proposal, nil
}

// Create inserts a new proposal row.
func (r *ProposalRepository) Create(ctx context.Context, proposal *models.DirectExchangeProposal) error {
	if proposal.ID == "" {
		proposal.ID = uuid.NewString()
	}
	if proposal.Status == "" {
		proposal.Status = models.ProposalStatusPending
	}
	now := time.Now().UTC()
	if proposal.CreatedAt.IsZero() {
		proposal.CreatedAt = now
	}
	proposal.LastModified = now

	const query = `INSERT INTO direct_exchange_proposals (id, exchange_id, target_user_id, proposing_user_id, type, proposed_shifts, comment, status, created_at, last_modified)
	VALUES (:id, :exchange_id, :target_user_id, :proposing_user_id, :type, :proposed_shifts, :comment, :status, :created_at, :last_modified)`
	if _, err := r.db.NamedExecContext(ctx, query, proposal); err != nil {
		return fmt.Errorf("create proposal: %w", err)
	}
	return nil
}

// Replace updates the intent and proposed shifts of a PENDING proposal in
// place, keeping one active proposal per (proposer, exchange).
func (r *ProposalRepository) Replace(ctx context.Context, id string, proposalType models.ProposalType, shifts models.ShiftDescriptorList, comment string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE direct_exchange_proposals
	SET type = $2, proposed_shifts = $3, comment = $4, last_modified = $5
	WHERE id = $1 AND status = 'PENDING'`, id, proposalType, shifts, comment, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("replace proposal: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check replace rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatus transitions the proposal with an optimistic guard on PENDING.
func (r *ProposalRepository) UpdateStatus(ctx context.Context, ext sqlx.ExtContext, id string, to models.ProposalStatus) error {
	result, err := ext.ExecContext(ctx, `UPDATE direct_exchange_proposals SET status = $2, last_modified = $3
	WHERE id = $1 AND status = 'PENDING'`, id, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update proposal status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check proposal status rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RetireSiblings rejects every other PENDING proposal on the exchange.
// Called inside the acceptance transaction so a competing accept observes a
// terminal status and fails its own guard.
func (r *ProposalRepository) RetireSiblings(ctx context.Context, ext sqlx.ExtContext, exchangeID, acceptedID string, to models.ProposalStatus) (int64, error) {
	result, err := ext.ExecContext(ctx, `UPDATE direct_exchange_proposals SET status = $3, last_modified = $4
	WHERE exchange_id = $1 AND id <> $2 AND status = 'PENDING'`, exchangeID, acceptedID, to, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("retire sibling proposals: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check retire rows: %w", err)
	}
	return rows, nil
}

// CancelForExchange cancels all PENDING proposals of a cancelled exchange so
// observers see a consistent terminal state.
func (r *ProposalRepository) CancelForExchange(ctx context.Context, ext sqlx.ExtContext, exchangeID string) (int64, error) {
	result, err := ext.ExecContext(ctx, `UPDATE direct_exchange_proposals SET status = 'CANCELLED', last_modified = $2
	WHERE exchange_id = $1 AND status = 'PENDING'`, exchangeID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cancel proposals for exchange: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check cancel rows: %w", err)
	}
	return rows, nil
}
