package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/planidocs/exchange-api/internal/models"
	appErrors "github.com/planidocs/exchange-api/pkg/errors"
)

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type exchangeStore interface {
	List(ctx context.Context, filter models.ExchangeFilter) ([]models.ShiftExchange, int, error)
	FindByID(ctx context.Context, id string) (*models.ShiftExchange, error)
	FindByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.ShiftExchange, error)
	ActiveExists(ctx context.Context, ownerID string, date time.Time, period models.DayPeriod) (bool, error)
	Create(ctx context.Context, exchange *models.ShiftExchange) error
	AddInterest(ctx context.Context, exchangeID, workerID string) error
	UpdateStatus(ctx context.Context, ext sqlx.ExtContext, id string, from, to models.ExchangeStatus) error
	MarkUnavailableBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Delete(ctx context.Context, ext sqlx.ExtContext, id string) error
}

type planningStore interface {
	GetByWorker(ctx context.Context, workerID string) ([]models.ShiftAssignment, error)
	Find(ctx context.Context, workerID string, date time.Time, period models.DayPeriod) (*models.ShiftAssignment, error)
	LockWorkers(ctx context.Context, tx *sqlx.Tx, workerIDs ...string) error
	Owns(ctx context.Context, ext sqlx.ExtContext, workerID string, d models.ShiftDescriptor) (bool, error)
	ApplyDelta(ctx context.Context, ext sqlx.ExtContext, delta models.PlanningDelta) error
	SetCoveredBy(ctx context.Context, ext sqlx.ExtContext, workerID string, d models.ShiftDescriptor, coveredBy string) error
}

type historyStore interface {
	Append(ctx context.Context, ext sqlx.ExtContext, entry *models.ExchangeHistoryEntry) error
	FindLatestBySource(ctx context.Context, source models.HistorySource, sourceID string, eventType models.HistoryEventType) (*models.ExchangeHistoryEntry, error)
}

type phaseGate interface {
	RequireSubmission(ctx context.Context, date time.Time) error
	RequireAdjustable(ctx context.Context, date time.Time) error
}

type txRunner interface {
	WithinTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
	WithinTxRetry(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

// ListShiftRequest puts one owned shift on the marketplace. Shift type and
// time slot are read from the owner's planning, never from the payload.
type ListShiftRequest struct {
	Date    time.Time        `json:"date" validate:"required"`
	Period  models.DayPeriod `json:"period" validate:"required"`
	Comment string           `json:"comment" validate:"max=500"`
}

// ValidateListingRequest selects the interested worker who receives the shift.
type ValidateListingRequest struct {
	ChosenWorkerID string `json:"chosen_worker_id" validate:"required"`
}

// CachedListingPage is the cache shape of one marketplace page.
type CachedListingPage struct {
	Items []models.ShiftExchange `json:"items"`
	Total int                    `json:"total"`
}

const listingCachePattern = "exchanges:list:*"

// MarketplaceService runs the public listing workflow: list, express
// interest, withdraw, and the admin validation that actually moves the shift.
type MarketplaceService struct {
	exchanges exchangeStore
	planning  planningStore
	history   historyStore
	gate      phaseGate
	tx        txRunner
	cache     *CacheService
	audit     auditLogger
	notifier  *Notifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMarketplaceService wires the marketplace workflow.
func NewMarketplaceService(
	exchanges exchangeStore,
	planning planningStore,
	history historyStore,
	gate phaseGate,
	tx txRunner,
	cache *CacheService,
	audit auditLogger,
	notifier *Notifier,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *MarketplaceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarketplaceService{
		exchanges: exchanges,
		planning:  planning,
		history:   history,
		gate:      gate,
		tx:        tx,
		cache:     cache,
		audit:     audit,
		notifier:  notifier,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// List returns marketplace listings through a read-through cache. Open
// listings sort first so the marketplace view stays actionable.
func (s *MarketplaceService) List(ctx context.Context, filter models.ExchangeFilter) ([]models.ShiftExchange, *models.Pagination, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}

	key := listingCacheKey(filter, page, size)
	var cached CachedListingPage
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached.Items, &models.Pagination{Page: page, PageSize: size, TotalCount: cached.Total}, nil
	}

	listings, total, err := s.exchanges.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list exchanges")
	}

	_ = s.cache.Set(ctx, key, CachedListingPage{Items: listings, Total: total}, 0)

	return listings, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one listing with its interested workers.
func (s *MarketplaceService) Get(ctx context.Context, id string) (*models.ShiftExchange, error) {
	listing, err := s.exchanges.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "listing not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load listing")
	}
	return listing, nil
}

// ListShift publishes one owned shift on the marketplace.
func (s *MarketplaceService) ListShift(ctx context.Context, ownerID string, req ListShiftRequest) (listing *models.ShiftExchange, err error) {
	defer func() { s.metrics.RecordExchangeOperation("listing_create", err) }()

	if verr := s.validator.Struct(req); verr != nil {
		err = appErrors.Wrap(verr, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid listing payload")
		return nil, err
	}
	if !models.ValidDayPeriod(req.Period) {
		err = appErrors.Clone(appErrors.ErrValidation, "unknown day period")
		return nil, err
	}
	if err = s.gate.RequireSubmission(ctx, req.Date); err != nil {
		return nil, err
	}

	assignment, ferr := s.planning.Find(ctx, ownerID, req.Date, req.Period)
	if ferr != nil {
		if errors.Is(ferr, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrShiftNotOwned, "no shift owned at this slot")
			return nil, err
		}
		err = appErrors.Wrap(ferr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load planning slot")
		return nil, err
	}

	exists, eerr := s.exchanges.ActiveExists(ctx, ownerID, req.Date, req.Period)
	if eerr != nil {
		err = appErrors.Wrap(eerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing listings")
		return nil, err
	}
	if exists {
		err = appErrors.Clone(appErrors.ErrAlreadyListed, "")
		return nil, err
	}

	listing = &models.ShiftExchange{
		OwnerID:   ownerID,
		Date:      assignment.Date,
		Period:    assignment.Period,
		ShiftType: assignment.ShiftType,
		TimeSlot:  assignment.TimeSlot,
		Comment:   req.Comment,
		Status:    models.ExchangeStatusPending,
	}
	if cerr := s.exchanges.Create(ctx, listing); cerr != nil {
		// A concurrent listing for the same slot loses to the partial
		// unique index on (owner_id, date, period) WHERE status='PENDING'.
		var pqErr *pq.Error
		if errors.As(cerr, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			err = appErrors.Clone(appErrors.ErrAlreadyListed, "")
			return nil, err
		}
		err = appErrors.Wrap(cerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create listing")
		return nil, err
	}

	s.invalidateListings(ctx)
	s.emitAudit(ctx, ownerID, models.AuditActionListingCreate, listing.ID, listing.Descriptor())
	return listing, nil
}

// ExpressInterest records a worker's interest in an open listing. Repeated
// calls are idempotent; the owner cannot volunteer for their own shift.
func (s *MarketplaceService) ExpressInterest(ctx context.Context, exchangeID, workerID string) (listing *models.ShiftExchange, err error) {
	defer func() { s.metrics.RecordExchangeOperation("interest_express", err) }()

	listing, err = s.Get(ctx, exchangeID)
	if err != nil {
		return nil, err
	}
	if listing.Status != models.ExchangeStatusPending {
		err = appErrors.Clone(appErrors.ErrNotFound, "listing is no longer open")
		return nil, err
	}
	if listing.OwnerID == workerID {
		err = appErrors.Clone(appErrors.ErrSelfInterest, "")
		return nil, err
	}
	if err = s.gate.RequireSubmission(ctx, listing.Date); err != nil {
		return nil, err
	}
	if listing.HasInterest(workerID) {
		return listing, nil
	}

	if aerr := s.exchanges.AddInterest(ctx, exchangeID, workerID); aerr != nil {
		if errors.Is(aerr, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "listing is no longer open")
			return nil, err
		}
		err = appErrors.Wrap(aerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record interest")
		return nil, err
	}
	listing.InterestedUsers = append(listing.InterestedUsers, workerID)

	s.invalidateListings(ctx)
	s.emitAudit(ctx, workerID, models.AuditActionInterestExpress, exchangeID, listing.Descriptor())
	return listing, nil
}

// Withdraw removes an open listing. The listing row is deleted rather than
// archived; the withdraw history entry keeps the trace.
func (s *MarketplaceService) Withdraw(ctx context.Context, exchangeID string, actor *models.JWTClaims) (err error) {
	defer func() { s.metrics.RecordExchangeOperation("listing_withdraw", err) }()

	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	listing, gerr := s.Get(ctx, exchangeID)
	if gerr != nil {
		return gerr
	}
	if actor.Role != models.RoleAdmin && listing.OwnerID != actor.UserID {
		err = appErrors.Clone(appErrors.ErrForbidden, "only the owner can withdraw a listing")
		return err
	}
	if listing.Status != models.ExchangeStatusPending {
		err = appErrors.Clone(appErrors.ErrInvalidState, "only open listings can be withdrawn")
		return err
	}

	err = s.tx.WithinTx(ctx, func(tx *sqlx.Tx) error {
		if derr := s.exchanges.Delete(ctx, tx, exchangeID); derr != nil {
			if errors.Is(derr, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrInvalidState, "listing was already processed")
			}
			return appErrors.Wrap(derr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete listing")
		}
		entry := &models.ExchangeHistoryEntry{
			EventType: models.HistoryEventWithdrawn,
			Source:    models.HistorySourceMarketplace,
			SourceID:  exchangeID,
			OwnerID:   listing.OwnerID,
			Payload:   models.HistoryPayload{TargetShift: listing.Descriptor()},
		}
		if herr := s.history.Append(ctx, tx, entry); herr != nil {
			return appErrors.Wrap(herr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record withdrawal")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidateListings(ctx)
	s.emitAudit(ctx, actor.UserID, models.AuditActionListingWithdraw, exchangeID, listing.Descriptor())
	return nil
}

// Validate moves the listed shift from its owner to the chosen interested
// worker. Ownership transfer, status flip and history entry commit as one
// transaction; a lost race is retried on a fresh snapshot. A listing whose
// backing assignment disappeared is retired as UNAVAILABLE.
func (s *MarketplaceService) Validate(ctx context.Context, exchangeID string, req ValidateListingRequest, actorID string) (listing *models.ShiftExchange, err error) {
	defer func() { s.metrics.RecordExchangeOperation("listing_validate", err) }()

	if verr := s.validator.Struct(req); verr != nil {
		err = appErrors.Wrap(verr, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid validation payload")
		return nil, err
	}

	var lostShift bool
	err = s.tx.WithinTxRetry(ctx, func(tx *sqlx.Tx) error {
		lostShift = false
		locked, lerr := s.exchanges.FindByIDForUpdate(ctx, tx, exchangeID)
		if lerr != nil {
			if errors.Is(lerr, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "listing not found")
			}
			return appErrors.Wrap(lerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock listing")
		}
		if locked.Status != models.ExchangeStatusPending {
			return appErrors.Clone(appErrors.ErrInvalidState, "listing is not open")
		}
		if gerr := s.gate.RequireAdjustable(ctx, locked.Date); gerr != nil {
			return gerr
		}
		if !locked.HasInterest(req.ChosenWorkerID) {
			return appErrors.Clone(appErrors.ErrValidation, "chosen worker did not express interest")
		}

		if lerr := s.planning.LockWorkers(ctx, tx, locked.OwnerID, req.ChosenWorkerID); lerr != nil {
			return appErrors.Wrap(lerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock plannings")
		}

		shift := locked.Descriptor()
		owns, oerr := s.planning.Owns(ctx, tx, locked.OwnerID, shift)
		if oerr != nil {
			return appErrors.Wrap(oerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify ownership")
		}
		if !owns {
			// The backing assignment is gone. Retire the listing inside this
			// transaction so the flip commits; the error surfaces after.
			if uerr := s.exchanges.UpdateStatus(ctx, tx, exchangeID, models.ExchangeStatusPending, models.ExchangeStatusUnavailable); uerr != nil && !errors.Is(uerr, sql.ErrNoRows) {
				return appErrors.Wrap(uerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to retire listing")
			}
			lostShift = true
			return nil
		}

		if derr := s.planning.ApplyDelta(ctx, tx, models.PlanningDelta{WorkerID: locked.OwnerID, Removals: []models.ShiftDescriptor{shift}}); derr != nil {
			return derr
		}
		if derr := s.planning.ApplyDelta(ctx, tx, models.PlanningDelta{WorkerID: req.ChosenWorkerID, Additions: []models.ShiftDescriptor{shift}}); derr != nil {
			return derr
		}

		if uerr := s.exchanges.UpdateStatus(ctx, tx, exchangeID, models.ExchangeStatusPending, models.ExchangeStatusValidated); uerr != nil {
			if errors.Is(uerr, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrConcurrencyConflict, "listing changed during validation")
			}
			return appErrors.Wrap(uerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update listing status")
		}

		chosen := req.ChosenWorkerID
		entry := &models.ExchangeHistoryEntry{
			EventType:      models.HistoryEventValidated,
			Source:         models.HistorySourceMarketplace,
			SourceID:       exchangeID,
			OwnerID:        locked.OwnerID,
			CounterpartyID: &chosen,
			Payload:        models.HistoryPayload{TargetShift: shift},
		}
		if herr := s.history.Append(ctx, tx, entry); herr != nil {
			return appErrors.Wrap(herr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record validation")
		}

		locked.Status = models.ExchangeStatusValidated
		listing = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	if lostShift {
		s.invalidateListings(ctx)
		err = appErrors.Clone(appErrors.ErrShiftNotOwned, "owner no longer holds the listed shift")
		return nil, err
	}

	s.invalidateListings(ctx)
	s.emitAudit(ctx, actorID, models.AuditActionListingValidate, exchangeID, listing.Descriptor())
	s.notifier.Publish(ExchangeEvent{
		Type:           EventListingValidated,
		SourceID:       exchangeID,
		OwnerID:        listing.OwnerID,
		CounterpartyID: req.ChosenWorkerID,
		SlotKey:        models.SlotKey(listing.Date, listing.Period),
	})
	return listing, nil
}

// Revert undoes a validated listing by transferring the shift back to the
// original owner. Available until the governing period completes.
func (s *MarketplaceService) Revert(ctx context.Context, exchangeID string, actorID string) (listing *models.ShiftExchange, err error) {
	defer func() { s.metrics.RecordExchangeOperation("listing_revert", err) }()

	entry, ferr := s.history.FindLatestBySource(ctx, models.HistorySourceMarketplace, exchangeID, models.HistoryEventValidated)
	if ferr != nil {
		if errors.Is(ferr, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "no validation to revert")
			return nil, err
		}
		err = appErrors.Wrap(ferr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load validation history")
		return nil, err
	}
	if entry.CounterpartyID == nil {
		err = appErrors.Clone(appErrors.ErrInvalidState, "validation entry has no counterparty")
		return nil, err
	}
	shift := entry.Payload.TargetShift
	if err = s.gate.RequireAdjustable(ctx, shift.Date); err != nil {
		return nil, err
	}

	counterparty := *entry.CounterpartyID
	err = s.tx.WithinTxRetry(ctx, func(tx *sqlx.Tx) error {
		locked, lerr := s.exchanges.FindByIDForUpdate(ctx, tx, exchangeID)
		if lerr != nil {
			if errors.Is(lerr, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "listing not found")
			}
			return appErrors.Wrap(lerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock listing")
		}
		if locked.Status != models.ExchangeStatusValidated {
			return appErrors.Clone(appErrors.ErrInvalidState, "listing is not validated")
		}

		if lerr := s.planning.LockWorkers(ctx, tx, locked.OwnerID, counterparty); lerr != nil {
			return appErrors.Wrap(lerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock plannings")
		}

		owns, oerr := s.planning.Owns(ctx, tx, counterparty, shift)
		if oerr != nil {
			return appErrors.Wrap(oerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify ownership")
		}
		if !owns {
			return appErrors.Clone(appErrors.ErrShiftNotOwned, "shift moved again since validation")
		}

		if derr := s.planning.ApplyDelta(ctx, tx, models.PlanningDelta{WorkerID: counterparty, Removals: []models.ShiftDescriptor{shift}}); derr != nil {
			return derr
		}
		if derr := s.planning.ApplyDelta(ctx, tx, models.PlanningDelta{WorkerID: locked.OwnerID, Additions: []models.ShiftDescriptor{shift}}); derr != nil {
			return derr
		}

		if uerr := s.exchanges.UpdateStatus(ctx, tx, exchangeID, models.ExchangeStatusValidated, models.ExchangeStatusReverted); uerr != nil {
			if errors.Is(uerr, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrConcurrencyConflict, "listing changed during revert")
			}
			return appErrors.Wrap(uerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update listing status")
		}

		revertEntry := &models.ExchangeHistoryEntry{
			EventType:      models.HistoryEventReverted,
			Source:         models.HistorySourceMarketplace,
			SourceID:       exchangeID,
			OwnerID:        locked.OwnerID,
			CounterpartyID: &counterparty,
			Payload:        models.HistoryPayload{TargetShift: shift},
		}
		if herr := s.history.Append(ctx, tx, revertEntry); herr != nil {
			return appErrors.Wrap(herr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record revert")
		}

		locked.Status = models.ExchangeStatusReverted
		listing = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateListings(ctx)
	s.emitAudit(ctx, actorID, models.AuditActionListingRevert, exchangeID, shift)
	s.notifier.Publish(ExchangeEvent{
		Type:           EventListingReverted,
		SourceID:       exchangeID,
		OwnerID:        listing.OwnerID,
		CounterpartyID: counterparty,
		SlotKey:        shift.SlotKey(),
	})
	return listing, nil
}

// SweepUnavailable retires open listings whose date has passed. Called from
// the background maintenance loop.
func (s *MarketplaceService) SweepUnavailable(ctx context.Context, cutoff time.Time) (int64, error) {
	swept, err := s.exchanges.MarkUnavailableBefore(ctx, cutoff)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sweep stale listings")
	}
	if swept > 0 {
		s.invalidateListings(ctx)
		s.logger.Info("stale listings retired", zap.Int64("count", swept))
	}
	return swept, nil
}

func (s *MarketplaceService) invalidateListings(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, listingCachePattern)
}

func (s *MarketplaceService) emitAudit(ctx context.Context, actorID, action, resourceID string, shift models.ShiftDescriptor) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(shift)
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "shift_exchange",
		ResourceID: &resourceID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "marketplace-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func listingCacheKey(filter models.ExchangeFilter, page, size int) string {
	from, to := "", ""
	if filter.DateFrom != nil {
		from = filter.DateFrom.Format(models.DateLayout)
	}
	if filter.DateTo != nil {
		to = filter.DateTo.Format(models.DateLayout)
	}
	return fmt.Sprintf("exchanges:list:o=%s:s=%v:f=%s:t=%s:p=%d:n=%d", filter.OwnerID, filter.Status, from, to, page, size)
}
