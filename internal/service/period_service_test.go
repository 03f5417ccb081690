package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/planidocs/exchange-api/internal/models"
	appErrors "github.com/planidocs/exchange-api/pkg/errors"
)

type periodStoreStub struct {
	periods map[string]*models.PlanningPeriod
	seq     int
}

func newPeriodStoreStub() *periodStoreStub {
	return &periodStoreStub{periods: make(map[string]*models.PlanningPeriod)}
}

func (s *periodStoreStub) List(ctx context.Context, filter models.PeriodFilter) ([]models.PlanningPeriod, int, error) {
	var out []models.PlanningPeriod
	for _, p := range s.periods {
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (s *periodStoreStub) FindByID(ctx context.Context, id string) (*models.PlanningPeriod, error) {
	p, ok := s.periods[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *p
	return &copy, nil
}

func (s *periodStoreStub) FindActive(ctx context.Context) (*models.PlanningPeriod, error) {
	for _, p := range s.periods {
		if p.Status == models.PeriodStatusActive {
			copy := *p
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *periodStoreStub) FindByDate(ctx context.Context, date time.Time) (*models.PlanningPeriod, error) {
	for _, p := range s.periods {
		if p.Status != models.PeriodStatusArchived && p.Contains(date) {
			copy := *p
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *periodStoreStub) Create(ctx context.Context, period *models.PlanningPeriod) error {
	s.seq++
	period.ID = fmt.Sprintf("period-%d", s.seq)
	period.Status = models.PeriodStatusFuture
	period.BagPhase = models.BagPhaseSubmission
	copy := *period
	s.periods[period.ID] = &copy
	return nil
}

func (s *periodStoreStub) UpdatePhase(ctx context.Context, id string, from, to models.BagPhase) error {
	p, ok := s.periods[id]
	if !ok || p.BagPhase != from {
		return sql.ErrNoRows
	}
	p.BagPhase = to
	return nil
}

func (s *periodStoreStub) ForcePhase(ctx context.Context, id string, to models.BagPhase) error {
	p, ok := s.periods[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.BagPhase = to
	return nil
}

func (s *periodStoreStub) Merge(ctx context.Context, id string, validatedAt time.Time) error {
	p, ok := s.periods[id]
	if !ok || p.Status == models.PeriodStatusArchived {
		return sql.ErrNoRows
	}
	for _, other := range s.periods {
		if other.ID != id && other.Status == models.PeriodStatusActive {
			other.Status = models.PeriodStatusArchived
		}
	}
	p.Status = models.PeriodStatusActive
	p.BagPhase = models.BagPhaseCompleted
	p.IsValidated = true
	p.ValidatedAt = &validatedAt
	return nil
}

type periodFixture struct {
	svc   *PeriodService
	store *periodStoreStub
	audit *auditStub
}

func newPeriodFixture() *periodFixture {
	f := &periodFixture{store: newPeriodStoreStub(), audit: &auditStub{}}
	f.svc = NewPeriodService(f.store, f.audit, nil, nil, zap.NewNop())
	return f
}

func (f *periodFixture) createPeriod(t *testing.T, name, start, end string) *models.PlanningPeriod {
	t.Helper()
	period, err := f.svc.Create(context.Background(), CreatePeriodRequest{
		Name:      name,
		StartDate: mustDate(t, start),
		EndDate:   mustDate(t, end),
	}, "admin-1")
	require.NoError(t, err)
	return period
}

func TestPeriodCreateDefaults(t *testing.T) {
	f := newPeriodFixture()

	period := f.createPeriod(t, "October", "2026-10-01", "2026-10-31")
	require.NotEmpty(t, period.ID)
	require.Equal(t, models.PeriodStatusFuture, period.Status)
	require.Equal(t, models.BagPhaseSubmission, period.BagPhase)
}

func TestPeriodCreateRejectsInvertedRange(t *testing.T) {
	f := newPeriodFixture()

	_, err := f.svc.Create(context.Background(), CreatePeriodRequest{
		Name:      "backwards",
		StartDate: mustDate(t, "2026-10-31"),
		EndDate:   mustDate(t, "2026-10-01"),
	}, "admin-1")
	requireAppError(t, err, appErrors.ErrValidation.Code)
}

func TestPeriodAdvancePhaseForward(t *testing.T) {
	f := newPeriodFixture()
	period := f.createPeriod(t, "October", "2026-10-01", "2026-10-31")

	advanced, err := f.svc.AdvancePhase(context.Background(), period.ID, AdvancePhaseRequest{Phase: models.BagPhaseDistribution}, "admin-1")
	require.NoError(t, err)
	require.Equal(t, models.BagPhaseDistribution, advanced.BagPhase)

	// Same phase again is a no-op.
	again, err := f.svc.AdvancePhase(context.Background(), period.ID, AdvancePhaseRequest{Phase: models.BagPhaseDistribution}, "admin-1")
	require.NoError(t, err)
	require.Equal(t, models.BagPhaseDistribution, again.BagPhase)
}

func TestPeriodAdvancePhaseBackwardRejected(t *testing.T) {
	f := newPeriodFixture()
	period := f.createPeriod(t, "October", "2026-10-01", "2026-10-31")
	_, err := f.svc.AdvancePhase(context.Background(), period.ID, AdvancePhaseRequest{Phase: models.BagPhaseCompleted}, "admin-1")
	require.NoError(t, err)

	_, err = f.svc.AdvancePhase(context.Background(), period.ID, AdvancePhaseRequest{Phase: models.BagPhaseSubmission}, "admin-1")
	requireAppError(t, err, appErrors.ErrInvalidState.Code)
}

func TestPeriodForcePhaseBackward(t *testing.T) {
	f := newPeriodFixture()
	period := f.createPeriod(t, "October", "2026-10-01", "2026-10-31")
	_, err := f.svc.AdvancePhase(context.Background(), period.ID, AdvancePhaseRequest{Phase: models.BagPhaseCompleted}, "admin-1")
	require.NoError(t, err)

	forced, err := f.svc.AdvancePhase(context.Background(), period.ID, AdvancePhaseRequest{Phase: models.BagPhaseSubmission, Force: true}, "admin-1")
	require.NoError(t, err)
	require.Equal(t, models.BagPhaseSubmission, forced.BagPhase)

	require.NotEmpty(t, f.audit.logs)
	require.Equal(t, models.AuditActionPeriodPhaseForce, f.audit.logs[len(f.audit.logs)-1].Action)
}

func TestPeriodMergeArchivesPreviousActive(t *testing.T) {
	f := newPeriodFixture()
	first := f.createPeriod(t, "September", "2026-09-01", "2026-09-30")
	second := f.createPeriod(t, "October", "2026-10-01", "2026-10-31")

	merged, err := f.svc.Merge(context.Background(), first.ID, "admin-1")
	require.NoError(t, err)
	require.Equal(t, models.PeriodStatusActive, merged.Status)

	merged, err = f.svc.Merge(context.Background(), second.ID, "admin-1")
	require.NoError(t, err)
	require.Equal(t, models.PeriodStatusActive, merged.Status)
	require.Equal(t, models.BagPhaseCompleted, merged.BagPhase)
	require.True(t, merged.IsValidated)
	require.NotNil(t, merged.ValidatedAt)

	archived, err := f.svc.Get(context.Background(), first.ID)
	require.NoError(t, err)
	require.Equal(t, models.PeriodStatusArchived, archived.Status)

	_, err = f.svc.Merge(context.Background(), first.ID, "admin-1")
	requireAppError(t, err, appErrors.ErrInvalidState.Code)
}

func TestPeriodPhaseGate(t *testing.T) {
	f := newPeriodFixture()
	period := f.createPeriod(t, "October", "2026-10-01", "2026-10-31")
	inside := mustDate(t, "2026-10-15")
	outside := mustDate(t, "2026-12-01")

	require.NoError(t, f.svc.RequireSubmission(context.Background(), inside))
	require.NoError(t, f.svc.RequireAdjustable(context.Background(), inside))

	err := f.svc.RequireSubmission(context.Background(), outside)
	requireAppError(t, err, appErrors.ErrGateClosed.Code)

	_, err = f.svc.AdvancePhase(context.Background(), period.ID, AdvancePhaseRequest{Phase: models.BagPhaseDistribution}, "admin-1")
	require.NoError(t, err)
	err = f.svc.RequireSubmission(context.Background(), inside)
	requireAppError(t, err, appErrors.ErrGateClosed.Code)
	require.NoError(t, f.svc.RequireAdjustable(context.Background(), inside))

	_, err = f.svc.AdvancePhase(context.Background(), period.ID, AdvancePhaseRequest{Phase: models.BagPhaseCompleted}, "admin-1")
	require.NoError(t, err)
	err = f.svc.RequireAdjustable(context.Background(), inside)
	requireAppError(t, err, appErrors.ErrGateClosed.Code)
}
