package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/planidocs/exchange-api/internal/models"
	appErrors "github.com/planidocs/exchange-api/pkg/errors"
)

type periodStore interface {
	List(ctx context.Context, filter models.PeriodFilter) ([]models.PlanningPeriod, int, error)
	FindByID(ctx context.Context, id string) (*models.PlanningPeriod, error)
	FindActive(ctx context.Context) (*models.PlanningPeriod, error)
	FindByDate(ctx context.Context, date time.Time) (*models.PlanningPeriod, error)
	Create(ctx context.Context, period *models.PlanningPeriod) error
	UpdatePhase(ctx context.Context, id string, from, to models.BagPhase) error
	ForcePhase(ctx context.Context, id string, to models.BagPhase) error
	Merge(ctx context.Context, id string, validatedAt time.Time) error
}

// CreatePeriodRequest describes payload for opening a planning period.
type CreatePeriodRequest struct {
	Name      string    `json:"name" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
}

// AdvancePhaseRequest moves a period one or more phases forward.
type AdvancePhaseRequest struct {
	Phase models.BagPhase `json:"phase" validate:"required"`
	// Force bypasses the forward-only rule. Admin correction path.
	Force bool `json:"force"`
}

// PeriodService owns the period lifecycle and the phase gate every exchange
// operation consults before touching state.
type PeriodService struct {
	repo      periodStore
	audit     auditLogger
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPeriodService creates a period service instance.
func NewPeriodService(repo periodStore, audit auditLogger, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *PeriodService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PeriodService{repo: repo, audit: audit, metrics: metrics, validator: validate, logger: logger}
}

// List returns paginated periods.
func (s *PeriodService) List(ctx context.Context, filter models.PeriodFilter) ([]models.PlanningPeriod, *models.Pagination, error) {
	periods, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list periods")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return periods, pagination, nil
}

// Get returns a period by ID.
func (s *PeriodService) Get(ctx context.Context, id string) (*models.PlanningPeriod, error) {
	period, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "period not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load period")
	}
	return period, nil
}

// GetActive returns the single currently active period.
func (s *PeriodService) GetActive(ctx context.Context) (*models.PlanningPeriod, error) {
	period, err := s.repo.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active period")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active period")
	}
	return period, nil
}

// Create opens a new period in FUTURE status and SUBMISSION phase.
func (s *PeriodService) Create(ctx context.Context, req CreatePeriodRequest, actorID string) (*models.PlanningPeriod, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid period payload")
	}
	if !req.StartDate.Before(req.EndDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_date must be before end_date")
	}

	period := &models.PlanningPeriod{
		Name:      req.Name,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	}
	if err := s.repo.Create(ctx, period); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create period")
	}
	return period, nil
}

// AdvancePhase moves a period to the requested phase. Phases only move
// forward; a forced transition is allowed but always leaves an audit record.
func (s *PeriodService) AdvancePhase(ctx context.Context, id string, req AdvancePhaseRequest, actorID string) (*models.PlanningPeriod, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid phase payload")
	}
	if !models.ValidBagPhase(req.Phase) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown phase")
	}

	period, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if period.BagPhase == req.Phase {
		return period, nil
	}

	if req.Force {
		if err := s.repo.ForcePhase(ctx, id, req.Phase); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "period not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to force phase")
		}
		s.logger.Warn("period phase forced",
			zap.String("period_id", id),
			zap.String("from", string(period.BagPhase)),
			zap.String("to", string(req.Phase)),
			zap.String("actor_id", actorID),
		)
		s.emitPhaseAudit(ctx, models.AuditActionPeriodPhaseForce, period, req.Phase, actorID)
	} else {
		if !models.IsForwardPhase(period.BagPhase, req.Phase) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "phase can only move forward")
		}
		if err := s.repo.UpdatePhase(ctx, id, period.BagPhase, req.Phase); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrConcurrencyConflict, "period phase changed concurrently")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to advance phase")
		}
	}

	period.BagPhase = req.Phase
	return period, nil
}

// Merge promotes the period to the single active one, archiving the
// previously active period and locking the new one into COMPLETED phase.
func (s *PeriodService) Merge(ctx context.Context, id string, actorID string) (*models.PlanningPeriod, error) {
	period, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if period.Status == models.PeriodStatusArchived {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "cannot merge an archived period")
	}

	now := time.Now().UTC()
	if err := s.repo.Merge(ctx, id, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "period was archived concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to merge period")
	}

	period.Status = models.PeriodStatusActive
	period.BagPhase = models.BagPhaseCompleted
	period.IsValidated = true
	period.ValidatedAt = &now

	s.logger.Info("period merged", zap.String("period_id", id), zap.String("actor_id", actorID))
	s.emitPhaseAudit(ctx, models.AuditActionPeriodMerge, period, models.BagPhaseCompleted, actorID)
	return period, nil
}

// PhaseFor resolves the phase governing a calendar date. Dates outside any
// known period are closed to exchange activity.
func (s *PeriodService) PhaseFor(ctx context.Context, date time.Time) (models.BagPhase, error) {
	period, err := s.repo.FindByDate(ctx, date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrGateClosed, "no open period covers this date")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve period for date")
	}
	return period.BagPhase, nil
}

// RequireSubmission gates operations that create or mutate offers. Only the
// SUBMISSION phase accepts them.
func (s *PeriodService) RequireSubmission(ctx context.Context, date time.Time) error {
	phase, err := s.PhaseFor(ctx, date)
	if err != nil {
		if appErrors.FromError(err).Code == appErrors.ErrGateClosed.Code && s.metrics != nil {
			s.metrics.RecordGateRejection()
		}
		return err
	}
	if phase != models.BagPhaseSubmission {
		if s.metrics != nil {
			s.metrics.RecordGateRejection()
		}
		return appErrors.Clone(appErrors.ErrGateClosed, "exchange submissions are closed for this date")
	}
	return nil
}

// RequireAdjustable gates admin validation and revert: both stay available
// until the governing period reaches the COMPLETED phase.
func (s *PeriodService) RequireAdjustable(ctx context.Context, date time.Time) error {
	phase, err := s.PhaseFor(ctx, date)
	if err != nil {
		return err
	}
	if phase == models.BagPhaseCompleted {
		if s.metrics != nil {
			s.metrics.RecordGateRejection()
		}
		return appErrors.Clone(appErrors.ErrGateClosed, "period is completed, validations can no longer be reverted")
	}
	return nil
}

func (s *PeriodService) emitPhaseAudit(ctx context.Context, action string, period *models.PlanningPeriod, phase models.BagPhase, actorID string) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{"phase": string(phase), "status": string(period.Status)})
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "planning_period",
		ResourceID: &period.ID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "period-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
