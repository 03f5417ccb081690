package models

import "time"

// PeriodStatus tracks the lifecycle of a planning period.
type PeriodStatus string

const (
	PeriodStatusFuture   PeriodStatus = "FUTURE"
	PeriodStatusActive   PeriodStatus = "ACTIVE"
	PeriodStatusArchived PeriodStatus = "ARCHIVED"
)

// BagPhase gates exchange activity for the dates of a period.
// Phases only move forward: SUBMISSION -> DISTRIBUTION -> COMPLETED; an admin
// override is an explicit, audited correction rather than a normal transition.
type BagPhase string

const (
	BagPhaseSubmission   BagPhase = "SUBMISSION"
	BagPhaseDistribution BagPhase = "DISTRIBUTION"
	BagPhaseCompleted    BagPhase = "COMPLETED"
)

var bagPhaseOrder = map[BagPhase]int{
	BagPhaseSubmission:   0,
	BagPhaseDistribution: 1,
	BagPhaseCompleted:    2,
}

// ValidBagPhase reports whether p is a known phase value.
func ValidBagPhase(p BagPhase) bool {
	_, ok := bagPhaseOrder[p]
	return ok
}

// IsForwardPhase reports whether moving from to next respects phase ordering.
func IsForwardPhase(from, to BagPhase) bool {
	a, okA := bagPhaseOrder[from]
	b, okB := bagPhaseOrder[to]
	return okA && okB && b > a
}

// PlanningPeriod is a named date range carrying its own exchange phase.
// At most one period is ACTIVE at a time; the merge operation enforces it.
type PlanningPeriod struct {
	ID          string       `db:"id" json:"id"`
	Name        string       `db:"name" json:"name"`
	StartDate   time.Time    `db:"start_date" json:"start_date"`
	EndDate     time.Time    `db:"end_date" json:"end_date"`
	Status      PeriodStatus `db:"status" json:"status"`
	BagPhase    BagPhase     `db:"bag_phase" json:"bag_phase"`
	IsValidated bool         `db:"is_validated" json:"is_validated"`
	ValidatedAt *time.Time   `db:"validated_at" json:"validated_at,omitempty"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
}

// Contains reports whether the date falls inside the period's range,
// boundaries included.
func (p PlanningPeriod) Contains(date time.Time) bool {
	d := date.Truncate(24 * time.Hour)
	return !d.Before(p.StartDate.Truncate(24*time.Hour)) && !d.After(p.EndDate.Truncate(24*time.Hour))
}

// PeriodFilter constrains period listing queries.
type PeriodFilter struct {
	Status   PeriodStatus
	BagPhase BagPhase
	Page     int
	PageSize int
}
