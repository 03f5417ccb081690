package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// HistoryEventType enumerates recorded exchange outcomes.
type HistoryEventType string

const (
	HistoryEventValidated HistoryEventType = "VALIDATED"
	HistoryEventAccepted  HistoryEventType = "ACCEPTED"
	HistoryEventReverted  HistoryEventType = "REVERTED"
	HistoryEventCancelled HistoryEventType = "CANCELLED"
	HistoryEventWithdrawn HistoryEventType = "WITHDRAWN"
)

// HistorySource identifies the mechanism that produced the entry.
type HistorySource string

const (
	HistorySourceMarketplace HistorySource = "MARKETPLACE"
	HistorySourceDirect      HistorySource = "DIRECT"
)

// HistoryPayload carries enough denormalized shift data to reconstruct or
// reverse the recorded transition without re-reading the source entities.
type HistoryPayload struct {
	TargetShift    ShiftDescriptor   `json:"target_shift"`
	ReturnedShifts []ShiftDescriptor `json:"returned_shifts,omitempty"`
	ProposalType   ProposalType      `json:"proposal_type,omitempty"`
}

// Value implements driver.Valuer.
func (p HistoryPayload) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner.
func (p *HistoryPayload) Scan(src interface{}) error {
	if src == nil {
		*p = HistoryPayload{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported history payload type %T", src)
	}
	return json.Unmarshal(raw, p)
}

// ExchangeHistoryEntry is an immutable record of a completed transition.
// The table is append-only: no update, no delete.
type ExchangeHistoryEntry struct {
	ID             string           `db:"id" json:"id"`
	EventType      HistoryEventType `db:"event_type" json:"event_type"`
	Source         HistorySource    `db:"source" json:"source"`
	SourceID       string           `db:"source_id" json:"source_id"`
	OwnerID        string           `db:"owner_id" json:"owner_id"`
	CounterpartyID *string          `db:"counterparty_id" json:"counterparty_id,omitempty"`
	Payload        HistoryPayload   `db:"payload" json:"payload"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}

// HistoryFilter constrains history queries.
type HistoryFilter struct {
	Source    HistorySource
	SourceID  string
	WorkerID  string
	EventType HistoryEventType
	Limit     int
	Offset    int
}

// SlotConflict summarizes competing interest on one slot: how many
// marketplace interests and pending proposals currently target it.
type SlotConflict struct {
	WorkerID         string    `db:"worker_id" json:"worker_id"`
	Date             time.Time `db:"date" json:"date"`
	Period           DayPeriod `db:"period" json:"period"`
	InterestCount    int       `db:"interest_count" json:"interest_count"`
	PendingProposals int       `db:"pending_proposals" json:"pending_proposals"`
}
