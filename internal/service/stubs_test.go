package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/planidocs/exchange-api/internal/models"
	appErrors "github.com/planidocs/exchange-api/pkg/errors"
)

type auditStub struct {
	mu   sync.Mutex
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

type gateStub struct {
	submissionErr error
	adjustableErr error
}

func (g *gateStub) RequireSubmission(ctx context.Context, date time.Time) error {
	return g.submissionErr
}

func (g *gateStub) RequireAdjustable(ctx context.Context, date time.Time) error {
	return g.adjustableErr
}

type txStub struct{}

func (t *txStub) WithinTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return fn(nil)
}

func (t *txStub) WithinTxRetry(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return fn(nil)
}

// planningStub keeps plannings in memory keyed by worker then slot key.
type planningStub struct {
	shifts      map[string]map[string]models.ShiftAssignment
	lockedOrder []string
}

func newPlanningStub() *planningStub {
	return &planningStub{shifts: make(map[string]map[string]models.ShiftAssignment)}
}

func (p *planningStub) add(workerID string, d models.ShiftDescriptor) {
	if p.shifts[workerID] == nil {
		p.shifts[workerID] = make(map[string]models.ShiftAssignment)
	}
	p.shifts[workerID][d.SlotKey()] = models.ShiftAssignment{
		WorkerID:  workerID,
		Date:      d.Date,
		Period:    d.Period,
		ShiftType: d.ShiftType,
		TimeSlot:  d.TimeSlot,
	}
}

func (p *planningStub) holds(workerID string, d models.ShiftDescriptor) bool {
	a, ok := p.shifts[workerID][d.SlotKey()]
	return ok && a.ShiftType == d.ShiftType && a.TimeSlot == d.TimeSlot
}

func (p *planningStub) GetByWorker(ctx context.Context, workerID string) ([]models.ShiftAssignment, error) {
	var out []models.ShiftAssignment
	for _, a := range p.shifts[workerID] {
		out = append(out, a)
	}
	return out, nil
}

func (p *planningStub) Find(ctx context.Context, workerID string, date time.Time, period models.DayPeriod) (*models.ShiftAssignment, error) {
	a, ok := p.shifts[workerID][models.SlotKey(date, period)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := a
	return &copy, nil
}

func (p *planningStub) LockWorkers(ctx context.Context, tx *sqlx.Tx, workerIDs ...string) error {
	p.lockedOrder = append(p.lockedOrder, workerIDs...)
	return nil
}

func (p *planningStub) Owns(ctx context.Context, ext sqlx.ExtContext, workerID string, d models.ShiftDescriptor) (bool, error) {
	return p.holds(workerID, d), nil
}

func (p *planningStub) ApplyDelta(ctx context.Context, ext sqlx.ExtContext, delta models.PlanningDelta) error {
	for _, d := range delta.Removals {
		if !p.holds(delta.WorkerID, d) {
			return appErrors.Clone(appErrors.ErrShiftNotOwned, "shift is no longer held")
		}
		delete(p.shifts[delta.WorkerID], d.SlotKey())
	}
	for _, d := range delta.Additions {
		p.add(delta.WorkerID, d)
	}
	return nil
}

func (p *planningStub) SetCoveredBy(ctx context.Context, ext sqlx.ExtContext, workerID string, d models.ShiftDescriptor, coveredBy string) error {
	if !p.holds(workerID, d) {
		return appErrors.Clone(appErrors.ErrShiftNotOwned, "shift is no longer held")
	}
	a := p.shifts[workerID][d.SlotKey()]
	a.CoveredBy = &coveredBy
	p.shifts[workerID][d.SlotKey()] = a
	return nil
}

func (p *planningStub) ReplaceWindow(ctx context.Context, workerID string, from, to time.Time, assignments []models.ShiftDescriptor) error {
	for key, a := range p.shifts[workerID] {
		if !a.Date.Before(from) && !a.Date.After(to) {
			delete(p.shifts[workerID], key)
		}
	}
	for _, d := range assignments {
		p.add(workerID, d)
	}
	return nil
}

type historyStub struct {
	entries []*models.ExchangeHistoryEntry
}

func (h *historyStub) Append(ctx context.Context, ext sqlx.ExtContext, entry *models.ExchangeHistoryEntry) error {
	copy := *entry
	h.entries = append(h.entries, &copy)
	return nil
}

func (h *historyStub) FindLatestBySource(ctx context.Context, source models.HistorySource, sourceID string, eventType models.HistoryEventType) (*models.ExchangeHistoryEntry, error) {
	for i := len(h.entries) - 1; i >= 0; i-- {
		e := h.entries[i]
		if e.Source == source && e.SourceID == sourceID && e.EventType == eventType {
			copy := *e
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (h *historyStub) last() *models.ExchangeHistoryEntry {
	if len(h.entries) == 0 {
		return nil
	}
	return h.entries[len(h.entries)-1]
}

type exchangeStoreStub struct {
	listings       map[string]*models.ShiftExchange
	seq            int
	createErr      error
	addInterestErr error
}

func newExchangeStoreStub() *exchangeStoreStub {
	return &exchangeStoreStub{listings: make(map[string]*models.ShiftExchange)}
}

func (s *exchangeStoreStub) List(ctx context.Context, filter models.ExchangeFilter) ([]models.ShiftExchange, int, error) {
	var out []models.ShiftExchange
	for _, l := range s.listings {
		out = append(out, *l)
	}
	return out, len(out), nil
}

func (s *exchangeStoreStub) FindByID(ctx context.Context, id string) (*models.ShiftExchange, error) {
	l, ok := s.listings[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *l
	copy.InterestedUsers = append([]string(nil), l.InterestedUsers...)
	return &copy, nil
}

func (s *exchangeStoreStub) FindByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.ShiftExchange, error) {
	return s.FindByID(ctx, id)
}

func (s *exchangeStoreStub) ActiveExists(ctx context.Context, ownerID string, date time.Time, period models.DayPeriod) (bool, error) {
	for _, l := range s.listings {
		if l.OwnerID == ownerID && l.Date.Equal(date) && l.Period == period && l.Status == models.ExchangeStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (s *exchangeStoreStub) Create(ctx context.Context, exchange *models.ShiftExchange) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.seq++
	exchange.ID = fmt.Sprintf("listing-%d", s.seq)
	copy := *exchange
	s.listings[exchange.ID] = &copy
	return nil
}

func (s *exchangeStoreStub) AddInterest(ctx context.Context, exchangeID, workerID string) error {
	if s.addInterestErr != nil {
		return s.addInterestErr
	}
	l, ok := s.listings[exchangeID]
	if !ok || l.Status != models.ExchangeStatusPending {
		return sql.ErrNoRows
	}
	for _, id := range l.InterestedUsers {
		if id == workerID {
			return nil
		}
	}
	l.InterestedUsers = append(l.InterestedUsers, workerID)
	return nil
}

func (s *exchangeStoreStub) UpdateStatus(ctx context.Context, ext sqlx.ExtContext, id string, from, to models.ExchangeStatus) error {
	l, ok := s.listings[id]
	if !ok || l.Status != from {
		return sql.ErrNoRows
	}
	l.Status = to
	return nil
}

func (s *exchangeStoreStub) MarkUnavailableBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var swept int64
	for _, l := range s.listings {
		if l.Status == models.ExchangeStatusPending && l.Date.Before(cutoff) {
			l.Status = models.ExchangeStatusUnavailable
			swept++
		}
	}
	return swept, nil
}

func (s *exchangeStoreStub) Delete(ctx context.Context, ext sqlx.ExtContext, id string) error {
	l, ok := s.listings[id]
	if !ok || l.Status != models.ExchangeStatusPending {
		return sql.ErrNoRows
	}
	delete(s.listings, id)
	return nil
}

type directStoreStub struct {
	exchanges map[string]*models.DirectExchange
	seq       int
}

func newDirectStoreStub() *directStoreStub {
	return &directStoreStub{exchanges: make(map[string]*models.DirectExchange)}
}

func (s *directStoreStub) List(ctx context.Context, filter models.DirectExchangeFilter) ([]models.DirectExchange, int, error) {
	var out []models.DirectExchange
	for _, e := range s.exchanges {
		out = append(out, *e)
	}
	return out, len(out), nil
}

func (s *directStoreStub) FindByID(ctx context.Context, id string) (*models.DirectExchange, error) {
	e, ok := s.exchanges[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *e
	return &copy, nil
}

func (s *directStoreStub) FindByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.DirectExchange, error) {
	return s.FindByID(ctx, id)
}

func (s *directStoreStub) FindActiveBySlot(ctx context.Context, userID string, date time.Time, period models.DayPeriod) (*models.DirectExchange, error) {
	for _, e := range s.exchanges {
		if e.UserID == userID && e.Date.Equal(date) && e.Period == period && e.Status == models.DirectExchangeStatusPending {
			copy := *e
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *directStoreStub) Create(ctx context.Context, exchange *models.DirectExchange) error {
	s.seq++
	exchange.ID = fmt.Sprintf("exchange-%d", s.seq)
	copy := *exchange
	s.exchanges[exchange.ID] = &copy
	return nil
}

func (s *directStoreStub) ReplaceOperations(ctx context.Context, id string, operations []string, comment string) error {
	e, ok := s.exchanges[id]
	if !ok || e.Status != models.DirectExchangeStatusPending {
		return sql.ErrNoRows
	}
	e.OperationTypes = pq.StringArray(operations)
	e.Comment = comment
	return nil
}

func (s *directStoreStub) UpdateStatus(ctx context.Context, ext sqlx.ExtContext, id string, from, to models.DirectExchangeStatus) error {
	e, ok := s.exchanges[id]
	if !ok || e.Status != from {
		return sql.ErrNoRows
	}
	e.Status = to
	return nil
}

type proposalStoreStub struct {
	proposals map[string]*models.DirectExchangeProposal
	seq       int
}

func newProposalStoreStub() *proposalStoreStub {
	return &proposalStoreStub{proposals: make(map[string]*models.DirectExchangeProposal)}
}

func (s *proposalStoreStub) List(ctx context.Context, filter models.ProposalFilter) ([]models.DirectExchangeProposal, int, error) {
	var out []models.DirectExchangeProposal
	for _, p := range s.proposals {
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (s *proposalStoreStub) FindByID(ctx context.Context, id string) (*models.DirectExchangeProposal, error) {
	p, ok := s.proposals[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *p
	return &copy, nil
}

func (s *proposalStoreStub) FindByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.DirectExchangeProposal, error) {
	return s.FindByID(ctx, id)
}

func (s *proposalStoreStub) FindActiveByProposer(ctx context.Context, exchangeID, proposingUserID string) (*models.DirectExchangeProposal, error) {
	for _, p := range s.proposals {
		if p.ExchangeID == exchangeID && p.ProposingUserID == proposingUserID && p.Status == models.ProposalStatusPending {
			copy := *p
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *proposalStoreStub) Create(ctx context.Context, proposal *models.DirectExchangeProposal) error {
	s.seq++
	proposal.ID = fmt.Sprintf("proposal-%d", s.seq)
	if proposal.Status == "" {
		proposal.Status = models.ProposalStatusPending
	}
	copy := *proposal
	s.proposals[proposal.ID] = &copy
	return nil
}

func (s *proposalStoreStub) Replace(ctx context.Context, id string, proposalType models.ProposalType, shifts models.ShiftDescriptorList, comment string) error {
	p, ok := s.proposals[id]
	if !ok || p.Status != models.ProposalStatusPending {
		return sql.ErrNoRows
	}
	p.Type = proposalType
	p.ProposedShifts = shifts
	p.Comment = comment
	return nil
}

func (s *proposalStoreStub) UpdateStatus(ctx context.Context, ext sqlx.ExtContext, id string, to models.ProposalStatus) error {
	p, ok := s.proposals[id]
	if !ok || p.Status != models.ProposalStatusPending {
		return sql.ErrNoRows
	}
	p.Status = to
	return nil
}

func (s *proposalStoreStub) RetireSiblings(ctx context.Context, ext sqlx.ExtContext, exchangeID, acceptedID string, to models.ProposalStatus) (int64, error) {
	var retired int64
	for _, p := range s.proposals {
		if p.ExchangeID == exchangeID && p.ID != acceptedID && p.Status == models.ProposalStatusPending {
			p.Status = to
			retired++
		}
	}
	return retired, nil
}

func (s *proposalStoreStub) CancelForExchange(ctx context.Context, ext sqlx.ExtContext, exchangeID string) (int64, error) {
	var cancelled int64
	for _, p := range s.proposals {
		if p.ExchangeID == exchangeID && p.Status == models.ProposalStatusPending {
			p.Status = models.ProposalStatusCancelled
			cancelled++
		}
	}
	return cancelled, nil
}
