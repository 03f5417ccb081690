package models

import "time"

// ProposalType is the intent of a counter-offer against a direct exchange.
// Modeled as a closed enum so acceptance logic is an exhaustive switch rather
// than string parsing.
type ProposalType string

const (
	// ProposalTake claims the target shift without offering anything back.
	ProposalTake ProposalType = "TAKE"
	// ProposalExchange swaps the target shift against the proposed shifts.
	ProposalExchange ProposalType = "EXCHANGE"
	// ProposalBoth combines the take and exchange effects.
	ProposalBoth ProposalType = "BOTH"
	// ProposalReplacement covers the shift externally; ownership is unchanged.
	ProposalReplacement ProposalType = "REPLACEMENT"
)

// ValidProposalType reports whether t is a known proposal intent.
func ValidProposalType(t ProposalType) bool {
	switch t {
	case ProposalTake, ProposalExchange, ProposalBoth, ProposalReplacement:
		return true
	}
	return false
}

// RequiresProposedShifts reports whether the intent must carry return shifts.
func (t ProposalType) RequiresProposedShifts() bool {
	return t == ProposalExchange || t == ProposalBoth
}

// ProposalStatus tracks the lifecycle of a proposal. All transitions out of
// PENDING are terminal.
type ProposalStatus string

const (
	ProposalStatusPending   ProposalStatus = "PENDING"
	ProposalStatusAccepted  ProposalStatus = "ACCEPTED"
	ProposalStatusRejected  ProposalStatus = "REJECTED"
	ProposalStatusCancelled ProposalStatus = "CANCELLED"
)

// DirectExchangeProposal is a counter-offer against a direct exchange.
// At most one PENDING proposal exists per (proposing_user_id, exchange_id).
// ProposedShifts are re-validated against the proposer's planning at
// acceptance time, never trusted from creation time.
type DirectExchangeProposal struct {
	ID              string              `db:"id" json:"id"`
	ExchangeID      string              `db:"exchange_id" json:"exchange_id"`
	TargetUserID    string              `db:"target_user_id" json:"target_user_id"`
	ProposingUserID string              `db:"proposing_user_id" json:"proposing_user_id"`
	Type            ProposalType        `db:"type" json:"type"`
	ProposedShifts  ShiftDescriptorList `db:"proposed_shifts" json:"proposed_shifts"`
	Comment         string              `db:"comment" json:"comment"`
	Status          ProposalStatus      `db:"status" json:"status"`
	CreatedAt       time.Time           `db:"created_at" json:"created_at"`
	LastModified    time.Time           `db:"last_modified" json:"last_modified"`
}

// ProposalFilter constrains proposal listing queries.
type ProposalFilter struct {
	ExchangeID      string
	TargetUserID    string
	ProposingUserID string
	Status          []ProposalStatus
	Page            int
	PageSize        int
}
