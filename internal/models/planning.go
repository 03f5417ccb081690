package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DayPeriod divides a calendar day into schedulable slots.
type DayPeriod string

const (
	PeriodMorning   DayPeriod = "MORNING"
	PeriodAfternoon DayPeriod = "AFTERNOON"
	PeriodEvening   DayPeriod = "EVENING"
)

// ValidDayPeriod reports whether p is a known slot value.
func ValidDayPeriod(p DayPeriod) bool {
	switch p {
	case PeriodMorning, PeriodAfternoon, PeriodEvening:
		return true
	}
	return false
}

// DateLayout is the canonical wire format for calendar days.
const DateLayout = "2006-01-02"

// ShiftAssignment is one slot in a worker's planning. Identity is
// (worker_id, date, period); ownership changes only through a committed
// exchange transaction or a bulk planning import.
type ShiftAssignment struct {
	WorkerID  string    `db:"worker_id" json:"worker_id"`
	Date      time.Time `db:"date" json:"date"`
	Period    DayPeriod `db:"period" json:"period"`
	ShiftType string    `db:"shift_type" json:"shift_type"`
	TimeSlot  string    `db:"time_slot" json:"time_slot"`
	// CoveredBy records an external replacement; the worker remains the
	// nominal owner for audit purposes.
	CoveredBy *string   `db:"covered_by" json:"covered_by,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SlotKey identifies a slot within one worker's planning.
func (a ShiftAssignment) SlotKey() string {
	return SlotKey(a.Date, a.Period)
}

// Descriptor strips the assignment down to its transferable shape.
func (a ShiftAssignment) Descriptor() ShiftDescriptor {
	return ShiftDescriptor{
		Date:      a.Date,
		Period:    a.Period,
		ShiftType: a.ShiftType,
		TimeSlot:  a.TimeSlot,
	}
}

// SlotKey builds the canonical "date/period" key for a slot.
func SlotKey(date time.Time, period DayPeriod) string {
	return fmt.Sprintf("%s/%s", date.Format(DateLayout), period)
}

// ShiftDescriptor is the denormalized shape of a shift as it travels through
// exchanges, proposals and history entries.
type ShiftDescriptor struct {
	Date      time.Time `json:"date"`
	Period    DayPeriod `json:"period"`
	ShiftType string    `json:"shift_type"`
	TimeSlot  string    `json:"time_slot"`
}

// SlotKey builds the slot key of the descriptor.
func (d ShiftDescriptor) SlotKey() string {
	return SlotKey(d.Date, d.Period)
}

// ShiftDescriptorList stores descriptors as a JSONB column.
type ShiftDescriptorList []ShiftDescriptor

// Value implements driver.Valuer.
func (l ShiftDescriptorList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *ShiftDescriptorList) Scan(src interface{}) error {
	if src == nil {
		*l = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported shift descriptor list type %T", src)
	}
	return json.Unmarshal(raw, l)
}

// PlanningDelta describes an atomic change to one worker's planning. Removals
// must match the currently stored descriptor exactly or the enclosing
// transaction aborts.
type PlanningDelta struct {
	WorkerID  string
	Additions []ShiftDescriptor
	Removals  []ShiftDescriptor
}
