package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/planidocs/exchange-api/internal/models"
	appErrors "github.com/planidocs/exchange-api/pkg/errors"
)

type directFixture struct {
	svc       *DirectExchangeService
	exchanges *directStoreStub
	proposals *proposalStoreStub
	planning  *planningStub
	history   *historyStub
	gate      *gateStub
	audit     *auditStub
}

func newDirectFixture() *directFixture {
	f := &directFixture{
		exchanges: newDirectStoreStub(),
		proposals: newProposalStoreStub(),
		planning:  newPlanningStub(),
		history:   &historyStub{},
		gate:      &gateStub{},
		audit:     &auditStub{},
	}
	f.svc = NewDirectExchangeService(
		f.exchanges, f.proposals, f.planning, f.history, f.gate, &txStub{},
		f.audit, nil, nil, nil, zap.NewNop(),
	)
	return f
}

func afternoonShift(date time.Time) models.ShiftDescriptor {
	return models.ShiftDescriptor{
		Date:      date,
		Period:    models.PeriodAfternoon,
		ShiftType: "A",
		TimeSlot:  "14:00-22:00",
	}
}

// openExchange seeds the owner's planning and opens an offer on it.
func (f *directFixture) openExchange(t *testing.T, ownerID string, shift models.ShiftDescriptor, ops ...models.OperationType) *models.DirectExchange {
	t.Helper()
	f.planning.add(ownerID, shift)
	exchange, err := f.svc.CreateExchange(context.Background(), ownerID, CreateDirectExchangeRequest{
		Date:           shift.Date,
		Period:         shift.Period,
		OperationTypes: ops,
	})
	require.NoError(t, err)
	return exchange
}

func TestDirectCreateExchange(t *testing.T) {
	f := newDirectFixture()
	date := mustDate(t, "2026-10-05")

	exchange := f.openExchange(t, "owner-1", morningShift(date), models.OperationGive, models.OperationExchange)
	require.NotEmpty(t, exchange.ID)
	require.Equal(t, models.DirectExchangeStatusPending, exchange.Status)
	require.Equal(t, "J", exchange.ShiftType)
	require.ElementsMatch(t, []string{"GIVE", "EXCHANGE"}, []string(exchange.OperationTypes))
}

func TestDirectCreateExchangeNotOwned(t *testing.T) {
	f := newDirectFixture()
	date := mustDate(t, "2026-10-05")

	_, err := f.svc.CreateExchange(context.Background(), "owner-1", CreateDirectExchangeRequest{
		Date:           date,
		Period:         models.PeriodMorning,
		OperationTypes: []models.OperationType{models.OperationGive},
	})
	requireAppError(t, err, appErrors.ErrShiftNotOwned.Code)
}

func TestDirectCreateExchangeUpdatesExisting(t *testing.T) {
	f := newDirectFixture()
	date := mustDate(t, "2026-10-05")
	first := f.openExchange(t, "owner-1", morningShift(date), models.OperationGive)

	second, err := f.svc.CreateExchange(context.Background(), "owner-1", CreateDirectExchangeRequest{
		Date:           date,
		Period:         models.PeriodMorning,
		OperationTypes: []models.OperationType{models.OperationReplacement},
		Comment:        "replacement only now",
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, []string{"REPLACEMENT"}, []string(second.OperationTypes))
	require.Equal(t, "replacement only now", second.Comment)
	require.Len(t, f.exchanges.exchanges, 1)
}

func TestDirectCreateProposalTypeNotAccepted(t *testing.T) {
	f := newDirectFixture()
	date := mustDate(t, "2026-10-05")
	exchange := f.openExchange(t, "owner-1", morningShift(date), models.OperationGive)

	_, err := f.svc.CreateProposal(context.Background(), "worker-2", exchange.ID, CreateProposalRequest{
		Type: models.ProposalExchange,
	})
	requireAppError(t, err, appErrors.ErrValidation.Code)
}

func TestDirectCreateProposalOnOwnExchange(t *testing.T) {
	f := newDirectFixture()
	date := mustDate(t, "2026-10-05")
	exchange := f.openExchange(t, "owner-1", morningShift(date), models.OperationGive)

	_, err := f.svc.CreateProposal(context.Background(), "owner-1", exchange.ID, CreateProposalRequest{
		Type: models.ProposalTake,
	})
	requireAppError(t, err, appErrors.ErrSelfInterest.Code)
}

func TestDirectCreateProposalResolvesProposedShifts(t *testing.T) {
	f := newDirectFixture()
	date := mustDate(t, "2026-10-05")
	exchange := f.openExchange(t, "owner-1", morningShift(date), models.OperationExchange)
	offered := afternoonShift(date)
	f.planning.add("worker-2", offered)

	proposal, err := f.svc.CreateProposal(context.Background(), "worker-2", exchange.ID, CreateProposalRequest{
		Type:           models.ProposalExchange,
		ProposedShifts: []ProposedShiftRequest{{Date: date, Period: models.PeriodAfternoon}},
	})
	require.NoError(t, err)
	require.Equal(t, models.ProposalStatusPending, proposal.Status)
	require.Len(t, proposal.ProposedShifts, 1)
	require.Equal(t, "A", proposal.ProposedShifts[0].ShiftType)
	require.Equal(t, "14:00-22:00", proposal.ProposedShifts[0].TimeSlot)
}

func TestDirectCreateProposalShiftNotOwned(t *testing.T) {
	f := newDirectFixture()
	date := mustDate(t, "2026-10-05")
	exchange := f.openExchange(t, "owner-1", morningShift(date), models.OperationExchange)

	_, err := f.svc.CreateProposal(context.Background(), "worker-2", exchange.ID, CreateProposalRequest{
		Type:           models.ProposalExchange,
		ProposedShifts: []ProposedShiftRequest{{Date: date, Period: models.PeriodAfternoon}},
	})
	requireAppError(t, err, appErrors.ErrShiftNotOwned.Code)
}

func TestDirectCreateProposalEmptyTypeWithdraws(t *testing.T) {
	f := newDirectFixture()
	date := mustDate(t, "2026-10-05")
	exchange := f.openExchange(t, "owner-1", morningShift(date), models.OperationGive)

	proposal, err := f.svc.CreateProposal(context.Background(), "worker-2", exchange.ID, CreateProposalRequest{
		Type: models.ProposalTake,
	})
	require.NoError(t, err)

	withdrawn, err := f.svc.CreateProposal(context.Background(), "worker-2", exchange.ID, CreateProposalRequest{})
	require.NoError(t, err)
	require.Equal(t, proposal.ID, withdrawn.ID)
	require.Equal(t, models.ProposalStatusCancelled, withdrawn.Status)

	stored, err := f.svc.GetProposal(context.Background(), proposal.ID)
	require.NoError(t, err)
	require.Equal(t, models.ProposalStatusCancelled, stored.Status)
}

func TestDirectCreateProposalEmptyTypeWithoutExisting(t *testing.T) {
	f := newDirectFixture()
	date := mustDate(t, "2026-10-05")
	exchange := f.openExchange(t, "owner-1", morningShift(date), models.OperationGive)

	_, err := f.svc.CreateProposal(context.Background(), "worker-2", exchange.ID, CreateProposalRequest{})
	requireAppError(t, err, appErrors.ErrValidation.Code)
}

func TestDirectCreateProposalReplacesExisting(t *testing.T) {
	f := newDirectFixture()
	date := mustDate(t, "2026-10-05")
	exchange := f.openExchange(t, "owner-1", morningShift(date), models.OperationGive, models.OperationExchange)
	f.planning.add("worker-2", afternoonShift(date))

	first, err := f.svc.CreateProposal(context.Background(), "worker-2", exchange.ID, CreateProposalRequest{
		Type: models.ProposalTake,
	})
	require.NoError(t, err)

	second, err := f.svc.CreateProposal(context.Background(), "worker-2", exchange.ID, CreateProposalRequest{
		Type:           models.ProposalExchange,
		ProposedShifts: []ProposedShiftRequest{{Date: date, Period: models.PeriodAfternoon}},
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, models.ProposalExchange, second.Type)
	require.Len(t, f.proposals.proposals, 1)
}

func TestDirectAcceptTakeProposal(t *testing.T) {
	f := newDirectFixture()
	date := mustDate(t, "2026-10-05")
	target := morningShift(date)
	exchange := f.openExchange(t, "owner-1", target, models.OperationGive)

	proposal, err := f.svc.CreateProposal(context.Background(), "worker-2", exchange.ID, CreateProposalRequest{
		Type: models.ProposalTake,
	})
	require.NoError(t, err)

	accepted, err := f.svc.AcceptProposal(context.Background(), proposal.ID, "owner-1")
	require.NoError(t, err)
	require.Equal(t, models.ProposalStatusAccepted, accepted.Status)

	require.False(t, f.planning.holds("owner-1", target))
	require.True(t, f.planning.holds("worker-2", target))

	stored, err := f.svc.GetExchange(context.Background(), exchange.ID)
	require.NoError(t, err)
	require.Equal(t, models.DirectExchangeStatusAccepted, stored.Status)

	entry := f.history.last()
	require.Equal(t, models.HistoryEventAccepted, entry.EventType)
	require.Equal(t, models.HistorySourceDirect, entry.Source)
	require.Equal(t, "owner-1", entry.OwnerID)
	require.Equal(t, "worker-2", *entry.CounterpartyID)
	require.Equal(t, models.ProposalTake, entry.Payload.ProposalType)
}

func TestDirectAcceptExchangeProposalSwapsShifts(t *testing.T) {
	f := newDirectFixture()
	date := mustDate(t, "2026-10-05")
	target := morningShift(date)
	offered := afternoonShift(date)
	exchange := f.openExchange(t, "owner-1", target, models.OperationExchange)
	f.planning.add("worker-2", offered)

	proposal, err := f.svc.CreateProposal(context.Background(), "worker-2", exchange.ID, CreateProposalRequest{
		Type:           models.ProposalExchange,
		ProposedShifts: []ProposedShiftRequest{{Date: date, Period: models.PeriodAfternoon}},
	})
	require.NoError(t, err)

	_, err = f.svc.AcceptProposal(context.Background(), proposal.ID, "owner-1")
	require.NoError(t, err)

	require.True(t, f.planning.holds("owner-1", offered))
	require.False(t, f.planning.holds("owner-1", target))
	require.True(t, f.planning.holds("worker-2", target))
	require.False(t, f.planning.holds("worker-2", offered))
}

func TestDirectAcceptReplacementProposal(t *testing.T) {
	f := newDirectFixture()
	date := mustDate(t, "2026-10-05")
	target := morningShift(date)
	exchange := f.openExchange(t, "owner-1", target, models.OperationReplacement)

	proposal, err := f.svc.CreateProposal(context.Background(), "worker-2", exchange.ID, CreateProposalRequest{
		Type: models.ProposalReplacement,
	})
	require.NoError(t, err)

	_, err = f.svc.AcceptProposal(context.Background(), proposal.ID, "owner-1")
	require.NoError(t, err)

	// Ownership never moves; the shift is marked as covered.
	require.True(t, f.planning.holds("owner-1", target))
	assignment := f.planning.shifts["owner-1"][target.SlotKey()]
	require.NotNil(t, assignment.CoveredBy)
	require.Equal(t, "worker-2", *assignment.CoveredBy)
}

func TestDirectAcceptOnlyByTarget(t *testing.T) {
	f := newDirectFixture()
	date := mustDate(t, "2026-10-05")
	exchange := f.openExchange(t, "owner-1", morningShift(date), models.OperationGive)

	proposal, err := f.svc.CreateProposal(context.Background(), "worker-2", exchange.ID, CreateProposalRequest{
		Type: models.ProposalTake,
	})
	require.NoError(t, err)

	_, err = f.svc.AcceptProposal(context.Background(), proposal.ID, "worker-3")
	requireAppError(t, err, appErrors.ErrForbidden.Code)
}

func TestDirectAcceptStaleProposal(t *testing.T) {
	f := newDirectFixture()
	date := mustDate(t, "2026-10-05")
	offered := afternoonShift(date)
	exchange := f.openExchange(t, "owner-1", morningShift(date), models.OperationExchange)
	f.planning.add("worker-2", offered)

	proposal, err := f.svc.CreateProposal(context.Background(), "worker-2", exchange.ID, CreateProposalRequest{
		Type:           models.ProposalExchange,
		ProposedShifts: []ProposedShiftRequest{{Date: date, Period: models.PeriodAfternoon}},
	})
	require.NoError(t, err)

	// The offered shift left the proposer's planning before acceptance.
	delete(f.planning.shifts["worker-2"], offered.SlotKey())

	_, err = f.svc.AcceptProposal(context.Background(), proposal.ID, "owner-1")
	requireAppError(t, err, appErrors.ErrStaleProposal.Code)
}

func TestDirectAcceptIsExclusive(t *testing.T) {
	f := newDirectFixture()
	date := mustDate(t, "2026-10-05")
	exchange := f.openExchange(t, "owner-1", morningShift(date), models.OperationGive)

	first, err := f.svc.CreateProposal(context.Background(), "worker-2", exchange.ID, CreateProposalRequest{Type: models.ProposalTake})
	require.NoError(t, err)
	second, err := f.svc.CreateProposal(context.Background(), "worker-3", exchange.ID, CreateProposalRequest{Type: models.ProposalTake})
	require.NoError(t, err)

	_, err = f.svc.AcceptProposal(context.Background(), first.ID, "owner-1")
	require.NoError(t, err)

	// The sibling was rejected together with the acceptance.
	stored, err := f.svc.GetProposal(context.Background(), second.ID)
	require.NoError(t, err)
	require.Equal(t, models.ProposalStatusRejected, stored.Status)

	_, err = f.svc.AcceptProposal(context.Background(), second.ID, "owner-1")
	requireAppError(t, err, appErrors.ErrInvalidState.Code)
}

func TestDirectRejectProposal(t *testing.T) {
	f := newDirectFixture()
	date := mustDate(t, "2026-10-05")
	exchange := f.openExchange(t, "owner-1", morningShift(date), models.OperationGive)
	proposal, err := f.svc.CreateProposal(context.Background(), "worker-2", exchange.ID, CreateProposalRequest{Type: models.ProposalTake})
	require.NoError(t, err)

	err = f.svc.RejectProposal(context.Background(), proposal.ID, "worker-2")
	requireAppError(t, err, appErrors.ErrForbidden.Code)

	require.NoError(t, f.svc.RejectProposal(context.Background(), proposal.ID, "owner-1"))
	stored, err := f.svc.GetProposal(context.Background(), proposal.ID)
	require.NoError(t, err)
	require.Equal(t, models.ProposalStatusRejected, stored.Status)
}

func TestDirectCancelProposal(t *testing.T) {
	f := newDirectFixture()
	date := mustDate(t, "2026-10-05")
	exchange := f.openExchange(t, "owner-1", morningShift(date), models.OperationGive)
	proposal, err := f.svc.CreateProposal(context.Background(), "worker-2", exchange.ID, CreateProposalRequest{Type: models.ProposalTake})
	require.NoError(t, err)

	err = f.svc.CancelProposal(context.Background(), proposal.ID, "owner-1")
	requireAppError(t, err, appErrors.ErrForbidden.Code)

	require.NoError(t, f.svc.CancelProposal(context.Background(), proposal.ID, "worker-2"))
	stored, err := f.svc.GetProposal(context.Background(), proposal.ID)
	require.NoError(t, err)
	require.Equal(t, models.ProposalStatusCancelled, stored.Status)
}

func TestDirectCancelExchangeCascades(t *testing.T) {
	f := newDirectFixture()
	date := mustDate(t, "2026-10-05")
	exchange := f.openExchange(t, "owner-1", morningShift(date), models.OperationGive)
	proposal, err := f.svc.CreateProposal(context.Background(), "worker-2", exchange.ID, CreateProposalRequest{Type: models.ProposalTake})
	require.NoError(t, err)

	err = f.svc.CancelExchange(context.Background(), exchange.ID, "worker-2")
	requireAppError(t, err, appErrors.ErrForbidden.Code)

	require.NoError(t, f.svc.CancelExchange(context.Background(), exchange.ID, "owner-1"))

	stored, err := f.svc.GetExchange(context.Background(), exchange.ID)
	require.NoError(t, err)
	require.Equal(t, models.DirectExchangeStatusCancelled, stored.Status)

	storedProposal, err := f.svc.GetProposal(context.Background(), proposal.ID)
	require.NoError(t, err)
	require.Equal(t, models.ProposalStatusCancelled, storedProposal.Status)

	entry := f.history.last()
	require.Equal(t, models.HistoryEventCancelled, entry.EventType)
	require.Equal(t, models.HistorySourceDirect, entry.Source)
}
