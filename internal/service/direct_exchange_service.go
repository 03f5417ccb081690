package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/planidocs/exchange-api/internal/models"
	appErrors "github.com/planidocs/exchange-api/pkg/errors"
)

type directExchangeStore interface {
	List(ctx context.Context, filter models.DirectExchangeFilter) ([]models.DirectExchange, int, error)
	FindByID(ctx context.Context, id string) (*models.DirectExchange, error)
	FindByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.DirectExchange, error)
	FindActiveBySlot(ctx context.Context, userID string, date time.Time, period models.DayPeriod) (*models.DirectExchange, error)
	Create(ctx context.Context, exchange *models.DirectExchange) error
	ReplaceOperations(ctx context.Context, id string, operations []string, comment string) error
	UpdateStatus(ctx context.Context, ext sqlx.ExtContext, id string, from, to models.DirectExchangeStatus) error
}

type proposalStore interface {
	List(ctx context.Context, filter models.ProposalFilter) ([]models.DirectExchangeProposal, int, error)
	FindByID(ctx context.Context, id string) (*models.DirectExchangeProposal, error)
	FindByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.DirectExchangeProposal, error)
	FindActiveByProposer(ctx context.Context, exchangeID, proposingUserID string) (*models.DirectExchangeProposal, error)
	Create(ctx context.Context, proposal *models.DirectExchangeProposal) error
	Replace(ctx context.Context, id string, proposalType models.ProposalType, shifts models.ShiftDescriptorList, comment string) error
	UpdateStatus(ctx context.Context, ext sqlx.ExtContext, id string, to models.ProposalStatus) error
	RetireSiblings(ctx context.Context, ext sqlx.ExtContext, exchangeID, acceptedID string, to models.ProposalStatus) (int64, error)
	CancelForExchange(ctx context.Context, ext sqlx.ExtContext, exchangeID string) (int64, error)
}

// CreateDirectExchangeRequest opens or updates the peer-targeted offer on one
// owned slot.
type CreateDirectExchangeRequest struct {
	Date           time.Time              `json:"date" validate:"required"`
	Period         models.DayPeriod       `json:"period" validate:"required"`
	OperationTypes []models.OperationType `json:"operation_types" validate:"required,min=1"`
	Comment        string                 `json:"comment" validate:"max=500"`
}

// ProposedShiftRequest references one of the proposer's own shifts by slot.
type ProposedShiftRequest struct {
	Date   time.Time        `json:"date" validate:"required"`
	Period models.DayPeriod `json:"period" validate:"required"`
}

// CreateProposalRequest creates or replaces the proposer's counter-offer. An
// empty Type on an existing proposal withdraws it.
type CreateProposalRequest struct {
	Type           models.ProposalType    `json:"type"`
	ProposedShifts []ProposedShiftRequest `json:"proposed_shifts" validate:"dive"`
	Comment        string                 `json:"comment" validate:"max=500"`
}

// DirectExchangeService manages peer-targeted offers, their counter-proposals
// and the acceptance transaction that moves shifts between plannings.
type DirectExchangeService struct {
	exchanges directExchangeStore
	proposals proposalStore
	planning  planningStore
	history   historyStore
	gate      phaseGate
	tx        txRunner
	audit     auditLogger
	notifier  *Notifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDirectExchangeService wires the direct exchange workflow.
func NewDirectExchangeService(
	exchanges directExchangeStore,
	proposals proposalStore,
	planning planningStore,
	history historyStore,
	gate phaseGate,
	tx txRunner,
	audit auditLogger,
	notifier *Notifier,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *DirectExchangeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectExchangeService{
		exchanges: exchanges,
		proposals: proposals,
		planning:  planning,
		history:   history,
		gate:      gate,
		tx:        tx,
		audit:     audit,
		notifier:  notifier,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// ListExchanges returns paginated direct exchanges.
func (s *DirectExchangeService) ListExchanges(ctx context.Context, filter models.DirectExchangeFilter) ([]models.DirectExchange, *models.Pagination, error) {
	exchanges, total, err := s.exchanges.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list direct exchanges")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return exchanges, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// GetExchange returns one direct exchange.
func (s *DirectExchangeService) GetExchange(ctx context.Context, id string) (*models.DirectExchange, error) {
	exchange, err := s.exchanges.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "direct exchange not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load direct exchange")
	}
	return exchange, nil
}

// ListProposals returns paginated proposals.
func (s *DirectExchangeService) ListProposals(ctx context.Context, filter models.ProposalFilter) ([]models.DirectExchangeProposal, *models.Pagination, error) {
	proposals, total, err := s.proposals.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list proposals")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return proposals, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// GetProposal returns one proposal.
func (s *DirectExchangeService) GetProposal(ctx context.Context, id string) (*models.DirectExchangeProposal, error) {
	proposal, err := s.proposals.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load proposal")
	}
	return proposal, nil
}

// CreateExchange opens the single active offer for one owned slot. An
// existing open offer on the same slot is updated in place rather than
// duplicated.
func (s *DirectExchangeService) CreateExchange(ctx context.Context, userID string, req CreateDirectExchangeRequest) (exchange *models.DirectExchange, err error) {
	defer func() { s.metrics.RecordExchangeOperation("direct_create", err) }()

	if verr := s.validator.Struct(req); verr != nil {
		err = appErrors.Wrap(verr, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exchange payload")
		return nil, err
	}
	if !models.ValidDayPeriod(req.Period) {
		err = appErrors.Clone(appErrors.ErrValidation, "unknown day period")
		return nil, err
	}
	for _, op := range req.OperationTypes {
		if !models.ValidOperationType(op) {
			err = appErrors.Clone(appErrors.ErrValidation, "unknown operation type")
			return nil, err
		}
	}
	if err = s.gate.RequireSubmission(ctx, req.Date); err != nil {
		return nil, err
	}

	assignment, ferr := s.planning.Find(ctx, userID, req.Date, req.Period)
	if ferr != nil {
		if errors.Is(ferr, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrShiftNotOwned, "no shift owned at this slot")
			return nil, err
		}
		err = appErrors.Wrap(ferr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load planning slot")
		return nil, err
	}

	operations := make([]string, 0, len(req.OperationTypes))
	for _, op := range req.OperationTypes {
		operations = append(operations, string(op))
	}

	existing, eerr := s.exchanges.FindActiveBySlot(ctx, userID, req.Date, req.Period)
	if eerr != nil && !errors.Is(eerr, sql.ErrNoRows) {
		err = appErrors.Wrap(eerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing exchange")
		return nil, err
	}
	if existing != nil {
		if rerr := s.exchanges.ReplaceOperations(ctx, existing.ID, operations, req.Comment); rerr != nil {
			if errors.Is(rerr, sql.ErrNoRows) {
				err = appErrors.Clone(appErrors.ErrInvalidState, "exchange was resolved concurrently")
				return nil, err
			}
			err = appErrors.Wrap(rerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update exchange")
			return nil, err
		}
		existing.OperationTypes = pq.StringArray(operations)
		existing.Comment = req.Comment
		s.emitAudit(ctx, userID, models.AuditActionExchangeCreate, existing.ID, existing.Descriptor())
		return existing, nil
	}

	exchange = &models.DirectExchange{
		UserID:         userID,
		Date:           assignment.Date,
		Period:         assignment.Period,
		ShiftType:      assignment.ShiftType,
		TimeSlot:       assignment.TimeSlot,
		OperationTypes: pq.StringArray(operations),
		Comment:        req.Comment,
		Status:         models.DirectExchangeStatusPending,
	}
	if cerr := s.exchanges.Create(ctx, exchange); cerr != nil {
		err = appErrors.Wrap(cerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create exchange")
		return nil, err
	}

	s.emitAudit(ctx, userID, models.AuditActionExchangeCreate, exchange.ID, exchange.Descriptor())
	return exchange, nil
}

// CreateProposal creates or replaces the proposer's single active proposal on
// an exchange. Replacing with an empty type withdraws the proposal: the
// transition is explicit and logged, never a silent side effect.
func (s *DirectExchangeService) CreateProposal(ctx context.Context, proposerID, exchangeID string, req CreateProposalRequest) (proposal *models.DirectExchangeProposal, err error) {
	defer func() { s.metrics.RecordExchangeOperation("proposal_create", err) }()

	if verr := s.validator.Struct(req); verr != nil {
		err = appErrors.Wrap(verr, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid proposal payload")
		return nil, err
	}

	exchange, gerr := s.GetExchange(ctx, exchangeID)
	if gerr != nil {
		return nil, gerr
	}
	if exchange.Status != models.DirectExchangeStatusPending {
		err = appErrors.Clone(appErrors.ErrNotFound, "exchange is no longer open")
		return nil, err
	}
	if exchange.UserID == proposerID {
		err = appErrors.Clone(appErrors.ErrSelfInterest, "cannot propose on your own exchange")
		return nil, err
	}

	existing, eerr := s.proposals.FindActiveByProposer(ctx, exchangeID, proposerID)
	if eerr != nil && !errors.Is(eerr, sql.ErrNoRows) {
		err = appErrors.Wrap(eerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing proposal")
		return nil, err
	}

	if req.Type == "" {
		if existing == nil {
			err = appErrors.Clone(appErrors.ErrValidation, "proposal type is required")
			return nil, err
		}
		if werr := s.withdrawProposal(ctx, existing, proposerID); werr != nil {
			err = werr
			return nil, err
		}
		existing.Status = models.ProposalStatusCancelled
		return existing, nil
	}

	if !models.ValidProposalType(req.Type) {
		err = appErrors.Clone(appErrors.ErrValidation, "unknown proposal type")
		return nil, err
	}
	if merr := requireOperations(exchange, req.Type); merr != nil {
		err = merr
		return nil, err
	}
	if err = s.gate.RequireSubmission(ctx, exchange.Date); err != nil {
		return nil, err
	}

	var shifts models.ShiftDescriptorList
	if req.Type.RequiresProposedShifts() {
		if len(req.ProposedShifts) == 0 {
			err = appErrors.Clone(appErrors.ErrValidation, "proposed shifts are required for this proposal type")
			return nil, err
		}
		shifts, err = s.resolveProposedShifts(ctx, proposerID, req.ProposedShifts)
		if err != nil {
			return nil, err
		}
	}

	if existing != nil {
		if rerr := s.proposals.Replace(ctx, existing.ID, req.Type, shifts, req.Comment); rerr != nil {
			if errors.Is(rerr, sql.ErrNoRows) {
				err = appErrors.Clone(appErrors.ErrInvalidState, "proposal was resolved concurrently")
				return nil, err
			}
			err = appErrors.Wrap(rerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update proposal")
			return nil, err
		}
		existing.Type = req.Type
		existing.ProposedShifts = shifts
		existing.Comment = req.Comment
		s.emitAudit(ctx, proposerID, models.AuditActionProposalCreate, existing.ID, exchange.Descriptor())
		return existing, nil
	}

	proposal = &models.DirectExchangeProposal{
		ExchangeID:      exchangeID,
		TargetUserID:    exchange.UserID,
		ProposingUserID: proposerID,
		Type:            req.Type,
		ProposedShifts:  shifts,
		Comment:         req.Comment,
		Status:          models.ProposalStatusPending,
	}
	if cerr := s.proposals.Create(ctx, proposal); cerr != nil {
		err = appErrors.Wrap(cerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create proposal")
		return nil, err
	}

	s.emitAudit(ctx, proposerID, models.AuditActionProposalCreate, proposal.ID, exchange.Descriptor())
	return proposal, nil
}

// AcceptProposal runs the acceptance transaction. The exchange row is locked
// first, then the proposal, then both plannings; every check re-reads locked
// state so a concurrent accept, cancel or import is observed before any
// planning mutation.
func (s *DirectExchangeService) AcceptProposal(ctx context.Context, proposalID, acceptingUserID string) (proposal *models.DirectExchangeProposal, err error) {
	defer func() { s.metrics.RecordExchangeOperation("proposal_accept", err) }()

	// Unlocked read to learn the exchange id; everything is re-read under
	// lock inside the transaction.
	preliminary, gerr := s.GetProposal(ctx, proposalID)
	if gerr != nil {
		return nil, gerr
	}
	offer, gerr := s.GetExchange(ctx, preliminary.ExchangeID)
	if gerr != nil {
		return nil, gerr
	}
	if err = s.gate.RequireSubmission(ctx, offer.Date); err != nil {
		return nil, err
	}

	var exchange *models.DirectExchange
	err = s.tx.WithinTxRetry(ctx, func(tx *sqlx.Tx) error {
		locked, lerr := s.exchanges.FindByIDForUpdate(ctx, tx, preliminary.ExchangeID)
		if lerr != nil {
			if errors.Is(lerr, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "exchange not found")
			}
			return appErrors.Wrap(lerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock exchange")
		}
		if locked.Status != models.DirectExchangeStatusPending {
			return appErrors.Clone(appErrors.ErrInvalidState, "this offer is no longer available")
		}

		prop, perr := s.proposals.FindByIDForUpdate(ctx, tx, proposalID)
		if perr != nil {
			if errors.Is(perr, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "proposal not found")
			}
			return appErrors.Wrap(perr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock proposal")
		}
		if prop.Status != models.ProposalStatusPending {
			return appErrors.Clone(appErrors.ErrInvalidState, "proposal is no longer pending")
		}
		if prop.TargetUserID != acceptingUserID {
			return appErrors.Clone(appErrors.ErrForbidden, "only the targeted owner can accept")
		}

		if lerr := s.planning.LockWorkers(ctx, tx, prop.TargetUserID, prop.ProposingUserID); lerr != nil {
			return appErrors.Wrap(lerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock plannings")
		}

		for _, shift := range prop.ProposedShifts {
			owns, oerr := s.planning.Owns(ctx, tx, prop.ProposingUserID, shift)
			if oerr != nil {
				return appErrors.Wrap(oerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify proposed shift")
			}
			if !owns {
				return appErrors.Clone(appErrors.ErrStaleProposal, "")
			}
		}

		target := locked.Descriptor()
		if merr := s.applyAcceptance(ctx, tx, locked, prop, target); merr != nil {
			return merr
		}

		if uerr := s.exchanges.UpdateStatus(ctx, tx, locked.ID, models.DirectExchangeStatusPending, models.DirectExchangeStatusAccepted); uerr != nil {
			if errors.Is(uerr, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrInvalidState, "this offer is no longer available")
			}
			return appErrors.Wrap(uerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update exchange status")
		}
		if uerr := s.proposals.UpdateStatus(ctx, tx, prop.ID, models.ProposalStatusAccepted); uerr != nil {
			if errors.Is(uerr, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrInvalidState, "proposal is no longer pending")
			}
			return appErrors.Wrap(uerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update proposal status")
		}

		retired, rerr := s.proposals.RetireSiblings(ctx, tx, locked.ID, prop.ID, models.ProposalStatusRejected)
		if rerr != nil {
			return appErrors.Wrap(rerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to retire competing proposals")
		}

		proposer := prop.ProposingUserID
		entry := &models.ExchangeHistoryEntry{
			EventType:      models.HistoryEventAccepted,
			Source:         models.HistorySourceDirect,
			SourceID:       locked.ID,
			OwnerID:        prop.TargetUserID,
			CounterpartyID: &proposer,
			Payload: models.HistoryPayload{
				TargetShift:    target,
				ReturnedShifts: prop.ProposedShifts,
				ProposalType:   prop.Type,
			},
		}
		if herr := s.history.Append(ctx, tx, entry); herr != nil {
			return appErrors.Wrap(herr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record acceptance")
		}

		s.logger.Info("proposal accepted",
			zap.String("proposal_id", prop.ID),
			zap.String("exchange_id", locked.ID),
			zap.String("type", string(prop.Type)),
			zap.Int64("siblings_rejected", retired),
		)

		prop.Status = models.ProposalStatusAccepted
		proposal = prop
		exchange = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, acceptingUserID, models.AuditActionProposalAccept, proposal.ID, exchange.Descriptor())
	s.notifier.Publish(ExchangeEvent{
		Type:           EventProposalAccepted,
		SourceID:       exchange.ID,
		OwnerID:        proposal.TargetUserID,
		CounterpartyID: proposal.ProposingUserID,
		SlotKey:        models.SlotKey(exchange.Date, exchange.Period),
	})
	return proposal, nil
}

// RejectProposal lets the targeted owner decline a pending proposal.
func (s *DirectExchangeService) RejectProposal(ctx context.Context, proposalID, actorID string) (err error) {
	defer func() { s.metrics.RecordExchangeOperation("proposal_reject", err) }()

	proposal, gerr := s.GetProposal(ctx, proposalID)
	if gerr != nil {
		return gerr
	}
	if proposal.TargetUserID != actorID {
		err = appErrors.Clone(appErrors.ErrForbidden, "only the targeted owner can reject")
		return err
	}

	err = s.resolveProposal(ctx, proposal, models.ProposalStatusRejected)
	if err != nil {
		return err
	}
	s.emitAudit(ctx, actorID, models.AuditActionProposalReject, proposalID, map[string]string{"exchange_id": proposal.ExchangeID, "type": string(proposal.Type)})
	s.notifier.Publish(ExchangeEvent{
		Type:           EventProposalRejected,
		SourceID:       proposal.ExchangeID,
		OwnerID:        proposal.TargetUserID,
		CounterpartyID: proposal.ProposingUserID,
	})
	return nil
}

// CancelProposal lets the proposer withdraw a pending proposal.
func (s *DirectExchangeService) CancelProposal(ctx context.Context, proposalID, actorID string) (err error) {
	defer func() { s.metrics.RecordExchangeOperation("proposal_cancel", err) }()

	proposal, gerr := s.GetProposal(ctx, proposalID)
	if gerr != nil {
		return gerr
	}
	if proposal.ProposingUserID != actorID {
		err = appErrors.Clone(appErrors.ErrForbidden, "only the proposer can cancel")
		return err
	}

	err = s.resolveProposal(ctx, proposal, models.ProposalStatusCancelled)
	if err != nil {
		return err
	}
	s.emitAudit(ctx, actorID, models.AuditActionProposalCancel, proposalID, map[string]string{"exchange_id": proposal.ExchangeID, "type": string(proposal.Type)})
	return nil
}

// CancelExchange closes a pending exchange. Pending proposals against it are
// marked cancelled in the same transaction so they never linger as
// acceptable-looking offers.
func (s *DirectExchangeService) CancelExchange(ctx context.Context, exchangeID, actorID string) (err error) {
	defer func() { s.metrics.RecordExchangeOperation("direct_cancel", err) }()

	exchange, gerr := s.GetExchange(ctx, exchangeID)
	if gerr != nil {
		return gerr
	}
	if exchange.UserID != actorID {
		err = appErrors.Clone(appErrors.ErrForbidden, "only the owner can cancel the exchange")
		return err
	}
	if exchange.Status != models.DirectExchangeStatusPending {
		err = appErrors.Clone(appErrors.ErrInvalidState, "exchange is no longer pending")
		return err
	}

	err = s.tx.WithinTx(ctx, func(tx *sqlx.Tx) error {
		if uerr := s.exchanges.UpdateStatus(ctx, tx, exchangeID, models.DirectExchangeStatusPending, models.DirectExchangeStatusCancelled); uerr != nil {
			if errors.Is(uerr, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrInvalidState, "exchange was resolved concurrently")
			}
			return appErrors.Wrap(uerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel exchange")
		}
		cancelled, cerr := s.proposals.CancelForExchange(ctx, tx, exchangeID)
		if cerr != nil {
			return appErrors.Wrap(cerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel proposals")
		}
		if cancelled > 0 {
			s.logger.Info("orphaned proposals cancelled", zap.String("exchange_id", exchangeID), zap.Int64("count", cancelled))
		}
		entry := &models.ExchangeHistoryEntry{
			EventType: models.HistoryEventCancelled,
			Source:    models.HistorySourceDirect,
			SourceID:  exchangeID,
			OwnerID:   exchange.UserID,
			Payload:   models.HistoryPayload{TargetShift: exchange.Descriptor()},
		}
		if herr := s.history.Append(ctx, tx, entry); herr != nil {
			return appErrors.Wrap(herr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record cancellation")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.emitAudit(ctx, actorID, models.AuditActionExchangeCancel, exchangeID, exchange.Descriptor())
	return nil
}

// applyAcceptance performs the planning mutation for the accepted proposal
// type. Removals verify exact current ownership; any mismatch aborts the
// whole transaction.
func (s *DirectExchangeService) applyAcceptance(ctx context.Context, tx *sqlx.Tx, exchange *models.DirectExchange, prop *models.DirectExchangeProposal, target models.ShiftDescriptor) error {
	switch prop.Type {
	case models.ProposalTake:
		if err := s.planning.ApplyDelta(ctx, tx, models.PlanningDelta{WorkerID: prop.TargetUserID, Removals: []models.ShiftDescriptor{target}}); err != nil {
			return err
		}
		return s.planning.ApplyDelta(ctx, tx, models.PlanningDelta{WorkerID: prop.ProposingUserID, Additions: []models.ShiftDescriptor{target}})
	case models.ProposalExchange, models.ProposalBoth:
		if err := s.planning.ApplyDelta(ctx, tx, models.PlanningDelta{
			WorkerID:  prop.TargetUserID,
			Removals:  []models.ShiftDescriptor{target},
			Additions: prop.ProposedShifts,
		}); err != nil {
			return err
		}
		return s.planning.ApplyDelta(ctx, tx, models.PlanningDelta{
			WorkerID:  prop.ProposingUserID,
			Removals:  prop.ProposedShifts,
			Additions: []models.ShiftDescriptor{target},
		})
	case models.ProposalReplacement:
		return s.planning.SetCoveredBy(ctx, tx, prop.TargetUserID, target, prop.ProposingUserID)
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unknown proposal type")
	}
}

// resolveProposal flips a pending proposal to a terminal status.
func (s *DirectExchangeService) resolveProposal(ctx context.Context, proposal *models.DirectExchangeProposal, to models.ProposalStatus) error {
	return s.tx.WithinTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.proposals.UpdateStatus(ctx, tx, proposal.ID, to); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrInvalidState, "proposal is no longer pending")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update proposal status")
		}
		proposal.Status = to
		return nil
	})
}

// withdrawProposal cancels an existing proposal that was replaced with an
// empty selection, leaving an explicit trace of the transition.
func (s *DirectExchangeService) withdrawProposal(ctx context.Context, proposal *models.DirectExchangeProposal, actorID string) error {
	if err := s.resolveProposal(ctx, proposal, models.ProposalStatusCancelled); err != nil {
		return err
	}
	s.logger.Info("proposal withdrawn by empty replacement",
		zap.String("proposal_id", proposal.ID),
		zap.String("exchange_id", proposal.ExchangeID),
		zap.String("proposer_id", actorID),
	)
	s.emitAudit(ctx, actorID, models.AuditActionProposalCancel, proposal.ID, map[string]string{"exchange_id": proposal.ExchangeID, "reason": "empty replacement"})
	return nil
}

// resolveProposedShifts maps slot references onto the proposer's current
// planning, failing when any slot is not owned.
func (s *DirectExchangeService) resolveProposedShifts(ctx context.Context, proposerID string, refs []ProposedShiftRequest) (models.ShiftDescriptorList, error) {
	shifts := make(models.ShiftDescriptorList, 0, len(refs))
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		if !models.ValidDayPeriod(ref.Period) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown day period in proposed shifts")
		}
		key := models.SlotKey(ref.Date, ref.Period)
		if _, dup := seen[key]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duplicate proposed shift")
		}
		seen[key] = struct{}{}

		assignment, err := s.planning.Find(ctx, proposerID, ref.Date, ref.Period)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrShiftNotOwned, "proposed shift is not owned")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load proposed shift")
		}
		shifts = append(shifts, assignment.Descriptor())
	}
	return shifts, nil
}

// requireOperations checks the proposal intent against what the exchange
// owner declared acceptable.
func requireOperations(exchange *models.DirectExchange, t models.ProposalType) error {
	var needed []models.OperationType
	switch t {
	case models.ProposalTake:
		needed = []models.OperationType{models.OperationGive}
	case models.ProposalExchange:
		needed = []models.OperationType{models.OperationExchange}
	case models.ProposalBoth:
		needed = []models.OperationType{models.OperationGive, models.OperationExchange}
	case models.ProposalReplacement:
		needed = []models.OperationType{models.OperationReplacement}
	}
	for _, op := range needed {
		if !exchange.AllowsOperation(op) {
			return appErrors.Clone(appErrors.ErrValidation, "exchange does not accept this proposal type")
		}
	}
	return nil
}

func (s *DirectExchangeService) emitAudit(ctx context.Context, actorID, action, resourceID string, detail interface{}) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(detail)
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "direct_exchange",
		ResourceID: &resourceID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "direct-exchange-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
