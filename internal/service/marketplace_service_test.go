package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/planidocs/exchange-api/internal/models"
	appErrors "github.com/planidocs/exchange-api/pkg/errors"
)

type marketplaceFixture struct {
	svc       *MarketplaceService
	exchanges *exchangeStoreStub
	planning  *planningStub
	history   *historyStub
	gate      *gateStub
	audit     *auditStub
}

func newMarketplaceFixture() *marketplaceFixture {
	f := &marketplaceFixture{
		exchanges: newExchangeStoreStub(),
		planning:  newPlanningStub(),
		history:   &historyStub{},
		gate:      &gateStub{},
		audit:     &auditStub{},
	}
	f.svc = NewMarketplaceService(
		f.exchanges, f.planning, f.history, f.gate, &txStub{},
		nil, f.audit, nil, nil, nil, zap.NewNop(),
	)
	return f
}

func mustDate(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := time.Parse(models.DateLayout, value)
	require.NoError(t, err)
	return d
}

func morningShift(date time.Time) models.ShiftDescriptor {
	return models.ShiftDescriptor{
		Date:      date,
		Period:    models.PeriodMorning,
		ShiftType: "J",
		TimeSlot:  "08:00-16:00",
	}
}

func requireAppError(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr), "expected app error, got %v", err)
	require.Equal(t, code, appErr.Code)
}

func TestMarketplaceListShift(t *testing.T) {
	f := newMarketplaceFixture()
	date := mustDate(t, "2026-10-05")
	f.planning.add("owner-1", morningShift(date))

	listing, err := f.svc.ListShift(context.Background(), "owner-1", ListShiftRequest{
		Date:    date,
		Period:  models.PeriodMorning,
		Comment: "prefer a swap",
	})
	require.NoError(t, err)
	require.NotEmpty(t, listing.ID)
	require.Equal(t, models.ExchangeStatusPending, listing.Status)
	require.Equal(t, "J", listing.ShiftType)
	require.Equal(t, "08:00-16:00", listing.TimeSlot)
	require.Len(t, f.audit.logs, 1)
	require.Equal(t, models.AuditActionListingCreate, f.audit.logs[0].Action)
}

func TestMarketplaceListShiftNotOwned(t *testing.T) {
	f := newMarketplaceFixture()
	date := mustDate(t, "2026-10-05")

	_, err := f.svc.ListShift(context.Background(), "owner-1", ListShiftRequest{Date: date, Period: models.PeriodMorning})
	requireAppError(t, err, appErrors.ErrShiftNotOwned.Code)
}

func TestMarketplaceListShiftAlreadyListed(t *testing.T) {
	f := newMarketplaceFixture()
	date := mustDate(t, "2026-10-05")
	f.planning.add("owner-1", morningShift(date))

	_, err := f.svc.ListShift(context.Background(), "owner-1", ListShiftRequest{Date: date, Period: models.PeriodMorning})
	require.NoError(t, err)

	_, err = f.svc.ListShift(context.Background(), "owner-1", ListShiftRequest{Date: date, Period: models.PeriodMorning})
	requireAppError(t, err, appErrors.ErrAlreadyListed.Code)
}

func TestMarketplaceListShiftGateClosed(t *testing.T) {
	f := newMarketplaceFixture()
	f.gate.submissionErr = appErrors.Clone(appErrors.ErrGateClosed, "")
	date := mustDate(t, "2026-10-05")
	f.planning.add("owner-1", morningShift(date))

	_, err := f.svc.ListShift(context.Background(), "owner-1", ListShiftRequest{Date: date, Period: models.PeriodMorning})
	requireAppError(t, err, appErrors.ErrGateClosed.Code)
}

func TestMarketplaceExpressInterest(t *testing.T) {
	f := newMarketplaceFixture()
	date := mustDate(t, "2026-10-05")
	f.planning.add("owner-1", morningShift(date))
	listing, err := f.svc.ListShift(context.Background(), "owner-1", ListShiftRequest{Date: date, Period: models.PeriodMorning})
	require.NoError(t, err)

	got, err := f.svc.ExpressInterest(context.Background(), listing.ID, "worker-2")
	require.NoError(t, err)
	require.Equal(t, []string{"worker-2"}, got.InterestedUsers)

	// Repeating the call changes nothing.
	got, err = f.svc.ExpressInterest(context.Background(), listing.ID, "worker-2")
	require.NoError(t, err)
	require.Equal(t, []string{"worker-2"}, got.InterestedUsers)

	stored, err := f.svc.Get(context.Background(), listing.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"worker-2"}, stored.InterestedUsers)
}

func TestMarketplaceExpressInterestOwnListing(t *testing.T) {
	f := newMarketplaceFixture()
	date := mustDate(t, "2026-10-05")
	f.planning.add("owner-1", morningShift(date))
	listing, err := f.svc.ListShift(context.Background(), "owner-1", ListShiftRequest{Date: date, Period: models.PeriodMorning})
	require.NoError(t, err)

	_, err = f.svc.ExpressInterest(context.Background(), listing.ID, "owner-1")
	requireAppError(t, err, appErrors.ErrSelfInterest.Code)
}

func TestMarketplaceValidateTransfersShift(t *testing.T) {
	f := newMarketplaceFixture()
	date := mustDate(t, "2026-10-05")
	shift := morningShift(date)
	f.planning.add("owner-1", shift)
	listing, err := f.svc.ListShift(context.Background(), "owner-1", ListShiftRequest{Date: date, Period: models.PeriodMorning})
	require.NoError(t, err)
	_, err = f.svc.ExpressInterest(context.Background(), listing.ID, "worker-2")
	require.NoError(t, err)

	validated, err := f.svc.Validate(context.Background(), listing.ID, ValidateListingRequest{ChosenWorkerID: "worker-2"}, "admin-1")
	require.NoError(t, err)
	require.Equal(t, models.ExchangeStatusValidated, validated.Status)

	require.False(t, f.planning.holds("owner-1", shift))
	require.True(t, f.planning.holds("worker-2", shift))

	entry := f.history.last()
	require.NotNil(t, entry)
	require.Equal(t, models.HistoryEventValidated, entry.EventType)
	require.Equal(t, models.HistorySourceMarketplace, entry.Source)
	require.Equal(t, "owner-1", entry.OwnerID)
	require.NotNil(t, entry.CounterpartyID)
	require.Equal(t, "worker-2", *entry.CounterpartyID)
}

func TestMarketplaceValidateRequiresInterest(t *testing.T) {
	f := newMarketplaceFixture()
	date := mustDate(t, "2026-10-05")
	f.planning.add("owner-1", morningShift(date))
	listing, err := f.svc.ListShift(context.Background(), "owner-1", ListShiftRequest{Date: date, Period: models.PeriodMorning})
	require.NoError(t, err)

	_, err = f.svc.Validate(context.Background(), listing.ID, ValidateListingRequest{ChosenWorkerID: "worker-2"}, "admin-1")
	requireAppError(t, err, appErrors.ErrValidation.Code)
}

func TestMarketplaceValidateOwnerLostShift(t *testing.T) {
	f := newMarketplaceFixture()
	date := mustDate(t, "2026-10-05")
	shift := morningShift(date)
	f.planning.add("owner-1", shift)
	listing, err := f.svc.ListShift(context.Background(), "owner-1", ListShiftRequest{Date: date, Period: models.PeriodMorning})
	require.NoError(t, err)
	_, err = f.svc.ExpressInterest(context.Background(), listing.ID, "worker-2")
	require.NoError(t, err)

	// The shift left the owner's planning through another mechanism.
	delete(f.planning.shifts["owner-1"], shift.SlotKey())

	_, err = f.svc.Validate(context.Background(), listing.ID, ValidateListingRequest{ChosenWorkerID: "worker-2"}, "admin-1")
	requireAppError(t, err, appErrors.ErrShiftNotOwned.Code)

	// The orphaned listing is retired rather than left open.
	stored, err := f.svc.Get(context.Background(), listing.ID)
	require.NoError(t, err)
	require.Equal(t, models.ExchangeStatusUnavailable, stored.Status)
}

func TestMarketplaceListShiftLosesCreateRace(t *testing.T) {
	f := newMarketplaceFixture()
	date := mustDate(t, "2026-10-05")
	f.planning.add("owner-1", morningShift(date))
	f.exchanges.createErr = fmt.Errorf("create exchange: %w", &pq.Error{Code: "23505"})

	_, err := f.svc.ListShift(context.Background(), "owner-1", ListShiftRequest{Date: date, Period: models.PeriodMorning})
	requireAppError(t, err, appErrors.ErrAlreadyListed.Code)
}

func TestMarketplaceExpressInterestListingClosedMidway(t *testing.T) {
	f := newMarketplaceFixture()
	date := mustDate(t, "2026-10-05")
	f.planning.add("owner-1", morningShift(date))
	listing, err := f.svc.ListShift(context.Background(), "owner-1", ListShiftRequest{Date: date, Period: models.PeriodMorning})
	require.NoError(t, err)

	// The listing closes between the status read and the interest insert.
	f.exchanges.addInterestErr = sql.ErrNoRows

	_, err = f.svc.ExpressInterest(context.Background(), listing.ID, "worker-2")
	requireAppError(t, err, appErrors.ErrNotFound.Code)
}

func TestMarketplaceValidateRevertRoundTrip(t *testing.T) {
	f := newMarketplaceFixture()
	date := mustDate(t, "2026-10-05")
	shift := morningShift(date)
	f.planning.add("owner-1", shift)
	listing, err := f.svc.ListShift(context.Background(), "owner-1", ListShiftRequest{Date: date, Period: models.PeriodMorning})
	require.NoError(t, err)
	_, err = f.svc.ExpressInterest(context.Background(), listing.ID, "worker-2")
	require.NoError(t, err)
	_, err = f.svc.Validate(context.Background(), listing.ID, ValidateListingRequest{ChosenWorkerID: "worker-2"}, "admin-1")
	require.NoError(t, err)

	reverted, err := f.svc.Revert(context.Background(), listing.ID, "admin-1")
	require.NoError(t, err)
	require.Equal(t, models.ExchangeStatusReverted, reverted.Status)

	require.True(t, f.planning.holds("owner-1", shift))
	require.False(t, f.planning.holds("worker-2", shift))

	entry := f.history.last()
	require.Equal(t, models.HistoryEventReverted, entry.EventType)

	// A second revert has nothing validated left to undo.
	_, err = f.svc.Revert(context.Background(), listing.ID, "admin-1")
	requireAppError(t, err, appErrors.ErrInvalidState.Code)
}

func TestMarketplaceRevertWithoutValidation(t *testing.T) {
	f := newMarketplaceFixture()

	_, err := f.svc.Revert(context.Background(), "missing", "admin-1")
	requireAppError(t, err, appErrors.ErrNotFound.Code)
}

func TestMarketplaceWithdraw(t *testing.T) {
	f := newMarketplaceFixture()
	date := mustDate(t, "2026-10-05")
	f.planning.add("owner-1", morningShift(date))
	listing, err := f.svc.ListShift(context.Background(), "owner-1", ListShiftRequest{Date: date, Period: models.PeriodMorning})
	require.NoError(t, err)

	owner := &models.JWTClaims{UserID: "owner-1", Role: models.RoleWorker}
	require.NoError(t, f.svc.Withdraw(context.Background(), listing.ID, owner))

	_, err = f.svc.Get(context.Background(), listing.ID)
	requireAppError(t, err, appErrors.ErrNotFound.Code)

	entry := f.history.last()
	require.Equal(t, models.HistoryEventWithdrawn, entry.EventType)
	require.Equal(t, "owner-1", entry.OwnerID)
}

func TestMarketplaceWithdrawForbiddenForStranger(t *testing.T) {
	f := newMarketplaceFixture()
	date := mustDate(t, "2026-10-05")
	f.planning.add("owner-1", morningShift(date))
	listing, err := f.svc.ListShift(context.Background(), "owner-1", ListShiftRequest{Date: date, Period: models.PeriodMorning})
	require.NoError(t, err)

	stranger := &models.JWTClaims{UserID: "worker-9", Role: models.RoleWorker}
	err = f.svc.Withdraw(context.Background(), listing.ID, stranger)
	requireAppError(t, err, appErrors.ErrForbidden.Code)

	admin := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	require.NoError(t, f.svc.Withdraw(context.Background(), listing.ID, admin))
}

func TestMarketplaceSweepUnavailable(t *testing.T) {
	f := newMarketplaceFixture()
	past := mustDate(t, "2026-10-01")
	future := mustDate(t, "2026-10-20")
	f.planning.add("owner-1", morningShift(past))
	f.planning.add("owner-2", morningShift(future))
	stale, err := f.svc.ListShift(context.Background(), "owner-1", ListShiftRequest{Date: past, Period: models.PeriodMorning})
	require.NoError(t, err)
	open, err := f.svc.ListShift(context.Background(), "owner-2", ListShiftRequest{Date: future, Period: models.PeriodMorning})
	require.NoError(t, err)

	swept, err := f.svc.SweepUnavailable(context.Background(), mustDate(t, "2026-10-10"))
	require.NoError(t, err)
	require.EqualValues(t, 1, swept)

	got, err := f.svc.Get(context.Background(), stale.ID)
	require.NoError(t, err)
	require.Equal(t, models.ExchangeStatusUnavailable, got.Status)

	got, err = f.svc.Get(context.Background(), open.ID)
	require.NoError(t, err)
	require.Equal(t, models.ExchangeStatusPending, got.Status)
}
