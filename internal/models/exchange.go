package models

import "time"

// ExchangeStatus tracks the lifecycle of a marketplace listing.
type ExchangeStatus string

const (
	ExchangeStatusPending     ExchangeStatus = "PENDING"
	ExchangeStatusUnavailable ExchangeStatus = "UNAVAILABLE"
	ExchangeStatusValidated   ExchangeStatus = "VALIDATED"
	ExchangeStatusReverted    ExchangeStatus = "REVERTED"
)

// ShiftExchange is one worker's shift offered on the public marketplace.
// At most one PENDING listing exists per (owner_id, date, period).
type ShiftExchange struct {
	ID           string         `db:"id" json:"id"`
	OwnerID      string         `db:"owner_id" json:"owner_id"`
	Date         time.Time      `db:"date" json:"date"`
	Period       DayPeriod      `db:"period" json:"period"`
	ShiftType    string         `db:"shift_type" json:"shift_type"`
	TimeSlot     string         `db:"time_slot" json:"time_slot"`
	Comment      string         `db:"comment" json:"comment"`
	Status       ExchangeStatus `db:"status" json:"status"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	LastModified time.Time      `db:"last_modified" json:"last_modified"`

	// InterestedUsers is loaded from the interests child table.
	InterestedUsers []string `db:"-" json:"interested_users"`
}

// Descriptor returns the transferable shape of the listed shift.
func (e ShiftExchange) Descriptor() ShiftDescriptor {
	return ShiftDescriptor{
		Date:      e.Date,
		Period:    e.Period,
		ShiftType: e.ShiftType,
		TimeSlot:  e.TimeSlot,
	}
}

// HasInterest reports whether workerID already expressed interest.
func (e ShiftExchange) HasInterest(workerID string) bool {
	for _, id := range e.InterestedUsers {
		if id == workerID {
			return true
		}
	}
	return false
}

// ExchangeFilter constrains marketplace listing queries.
type ExchangeFilter struct {
	OwnerID  string
	Status   []ExchangeStatus
	DateFrom *time.Time
	DateTo   *time.Time
	Page     int
	PageSize int
}
