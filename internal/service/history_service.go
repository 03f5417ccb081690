package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/planidocs/exchange-api/internal/models"
	appErrors "github.com/planidocs/exchange-api/pkg/errors"
)

type historyReader interface {
	List(ctx context.Context, filter models.HistoryFilter) ([]models.ExchangeHistoryEntry, error)
	SlotConflicts(ctx context.Context, workerID string) ([]models.SlotConflict, error)
}

// HistoryService is the read-side projection over the append-only exchange
// log. It never participates in the write transactions.
type HistoryService struct {
	repo   historyReader
	logger *zap.Logger
}

// NewHistoryService creates the history query service.
func NewHistoryService(repo historyReader, logger *zap.Logger) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryService{repo: repo, logger: logger}
}

// List returns history entries matching the filter, newest first.
func (s *HistoryService) List(ctx context.Context, filter models.HistoryFilter) ([]models.ExchangeHistoryEntry, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list history")
	}
	return entries, nil
}

// ForWorker returns the worker's own exchange trail, whichever side of the
// transaction they were on.
func (s *HistoryService) ForWorker(ctx context.Context, workerID string, limit int) ([]models.ExchangeHistoryEntry, error) {
	return s.List(ctx, models.HistoryFilter{WorkerID: workerID, Limit: limit})
}

// ConflictsFor summarizes competing demand on the worker's slots: interests
// on their open listings and pending proposals on their open exchanges.
func (s *HistoryService) ConflictsFor(ctx context.Context, workerID string) ([]models.SlotConflict, error) {
	conflicts, err := s.repo.SlotConflicts(ctx, workerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute slot conflicts")
	}
	return conflicts, nil
}
