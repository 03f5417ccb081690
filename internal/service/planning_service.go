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

type planningImportStore interface {
	GetByWorker(ctx context.Context, workerID string) ([]models.ShiftAssignment, error)
	Find(ctx context.Context, workerID string, date time.Time, period models.DayPeriod) (*models.ShiftAssignment, error)
	ReplaceWindow(ctx context.Context, workerID string, from, to time.Time, assignments []models.ShiftDescriptor) error
}

// ImportShiftRequest is one assignment row in a planning import.
type ImportShiftRequest struct {
	Date      time.Time        `json:"date" validate:"required"`
	Period    models.DayPeriod `json:"period" validate:"required"`
	ShiftType string           `json:"shift_type" validate:"required,max=10"`
	TimeSlot  string           `json:"time_slot" validate:"required,max=50"`
}

// ImportPlanningRequest replaces one worker's planning over a date window.
type ImportPlanningRequest struct {
	WorkerID string               `json:"worker_id" validate:"required"`
	From     time.Time            `json:"from" validate:"required"`
	To       time.Time            `json:"to" validate:"required"`
	Shifts   []ImportShiftRequest `json:"shifts" validate:"dive"`
}

// PlanningService exposes worker planning reads and the bulk import that
// external scheduling systems push through.
type PlanningService struct {
	repo      planningImportStore
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPlanningService creates a planning service instance.
func NewPlanningService(repo planningImportStore, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *PlanningService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlanningService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// ForWorker returns the worker's full planning ordered by date and period.
func (s *PlanningService) ForWorker(ctx context.Context, workerID string) ([]models.ShiftAssignment, error) {
	assignments, err := s.repo.GetByWorker(ctx, workerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load planning")
	}
	return assignments, nil
}

// Slot returns one assignment by its slot key.
func (s *PlanningService) Slot(ctx context.Context, workerID string, date time.Time, period models.DayPeriod) (*models.ShiftAssignment, error) {
	if !models.ValidDayPeriod(period) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown day period")
	}
	assignment, err := s.repo.Find(ctx, workerID, date, period)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no assignment at this slot")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return assignment, nil
}

// Import atomically replaces the worker's planning inside the window. Shifts
// outside the window are untouched; an empty shift list clears the window.
func (s *PlanningService) Import(ctx context.Context, req ImportPlanningRequest, actorID string) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid import payload")
	}
	if req.To.Before(req.From) {
		return 0, appErrors.Clone(appErrors.ErrValidation, "window end precedes window start")
	}

	descriptors := make([]models.ShiftDescriptor, 0, len(req.Shifts))
	seen := make(map[string]struct{}, len(req.Shifts))
	for _, shift := range req.Shifts {
		if !models.ValidDayPeriod(shift.Period) {
			return 0, appErrors.Clone(appErrors.ErrValidation, "unknown day period in import")
		}
		if shift.Date.Before(req.From) || shift.Date.After(req.To) {
			return 0, appErrors.Clone(appErrors.ErrValidation, "shift date outside the import window")
		}
		key := models.SlotKey(shift.Date, shift.Period)
		if _, dup := seen[key]; dup {
			return 0, appErrors.Clone(appErrors.ErrValidation, "duplicate slot in import")
		}
		seen[key] = struct{}{}
		descriptors = append(descriptors, models.ShiftDescriptor{
			Date:      shift.Date,
			Period:    shift.Period,
			ShiftType: shift.ShiftType,
			TimeSlot:  shift.TimeSlot,
		})
	}

	if err := s.repo.ReplaceWindow(ctx, req.WorkerID, req.From, req.To, descriptors); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to import planning")
	}

	s.logger.Info("planning imported",
		zap.String("worker_id", req.WorkerID),
		zap.String("from", req.From.Format(models.DateLayout)),
		zap.String("to", req.To.Format(models.DateLayout)),
		zap.Int("shifts", len(descriptors)),
	)
	s.emitAudit(ctx, actorID, req)
	return len(descriptors), nil
}

func (s *PlanningService) emitAudit(ctx context.Context, actorID string, req ImportPlanningRequest) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"from":   req.From.Format(models.DateLayout),
		"to":     req.To.Format(models.DateLayout),
		"shifts": len(req.Shifts),
	})
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionPlanningImport,
		Resource:   "shift_assignment",
		ResourceID: &req.WorkerID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "planning-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
