package models

import (
	"time"

	"github.com/lib/pq"
)

// OperationType describes what the owner of a direct exchange is open to.
type OperationType string

const (
	OperationExchange    OperationType = "EXCHANGE"
	OperationGive        OperationType = "GIVE"
	OperationReplacement OperationType = "REPLACEMENT"
)

// ValidOperationType reports whether t is a known operation value.
func ValidOperationType(t OperationType) bool {
	switch t {
	case OperationExchange, OperationGive, OperationReplacement:
		return true
	}
	return false
}

// DirectExchangeStatus tracks the lifecycle of a peer-targeted offer.
// ACCEPTED and CANCELLED are terminal.
type DirectExchangeStatus string

const (
	DirectExchangeStatusPending   DirectExchangeStatus = "PENDING"
	DirectExchangeStatusAccepted  DirectExchangeStatus = "ACCEPTED"
	DirectExchangeStatusCancelled DirectExchangeStatus = "CANCELLED"
)

// DirectExchange is a peer-targeted offer on one specific owned shift.
// At most one PENDING row exists per (user_id, date, period); changing the
// operation types replaces the row in place.
type DirectExchange struct {
	ID             string               `db:"id" json:"id"`
	UserID         string               `db:"user_id" json:"user_id"`
	Date           time.Time            `db:"date" json:"date"`
	Period         DayPeriod            `db:"period" json:"period"`
	ShiftType      string               `db:"shift_type" json:"shift_type"`
	TimeSlot       string               `db:"time_slot" json:"time_slot"`
	OperationTypes pq.StringArray       `db:"operation_types" json:"operation_types"`
	Comment        string               `db:"comment" json:"comment"`
	Status         DirectExchangeStatus `db:"status" json:"status"`
	CreatedAt      time.Time            `db:"created_at" json:"created_at"`
	LastModified   time.Time            `db:"last_modified" json:"last_modified"`
}

// Descriptor returns the transferable shape of the offered shift.
func (e DirectExchange) Descriptor() ShiftDescriptor {
	return ShiftDescriptor{
		Date:      e.Date,
		Period:    e.Period,
		ShiftType: e.ShiftType,
		TimeSlot:  e.TimeSlot,
	}
}

// AllowsOperation reports whether the owner accepts the given operation.
func (e DirectExchange) AllowsOperation(t OperationType) bool {
	for _, op := range e.OperationTypes {
		if OperationType(op) == t {
			return true
		}
	}
	return false
}

// DirectExchangeFilter constrains direct exchange listing queries.
type DirectExchangeFilter struct {
	UserID   string
	Status   []DirectExchangeStatus
	DateFrom *time.Time
	DateTo   *time.Time
	Page     int
	PageSize int
}
