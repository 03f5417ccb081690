package dto

import (
	"time"

	"github.com/planidocs/exchange-api/internal/models"
	appErrors "github.com/planidocs/exchange-api/pkg/errors"
)

// ParseDate converts a calendar-day string into a UTC time.
func ParseDate(value string) (time.Time, error) {
	date, err := time.Parse(models.DateLayout, value)
	if err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "date must be formatted YYYY-MM-DD")
	}
	return date.UTC(), nil
}

// ListShiftPayload publishes one owned shift on the marketplace.
type ListShiftPayload struct {
	Date    string `json:"date" binding:"required"`
	Period  string `json:"period" binding:"required"`
	Comment string `json:"comment"`
}

// ExpressInterestPayload is intentionally empty; the actor comes from the
// token and the listing from the path.
type ExpressInterestPayload struct{}

// ValidateListingPayload selects the interested worker who takes the shift.
type ValidateListingPayload struct {
	ChosenWorkerID string `json:"chosen_worker_id" binding:"required"`
}

// CreateDirectExchangePayload opens or updates a peer-targeted offer.
type CreateDirectExchangePayload struct {
	Date           string   `json:"date" binding:"required"`
	Period         string   `json:"period" binding:"required"`
	OperationTypes []string `json:"operation_types" binding:"required,min=1"`
	Comment        string   `json:"comment"`
}

// ProposedShiftPayload references one of the proposer's own slots.
type ProposedShiftPayload struct {
	Date   string `json:"date" binding:"required"`
	Period string `json:"period" binding:"required"`
}

// CreateProposalPayload creates or replaces a counter-offer. An empty type on
// an existing proposal withdraws it.
type CreateProposalPayload struct {
	Type           string                 `json:"type"`
	ProposedShifts []ProposedShiftPayload `json:"proposed_shifts"`
	Comment        string                 `json:"comment"`
}

// ImportShiftPayload is one assignment row in a planning import.
type ImportShiftPayload struct {
	Date      string `json:"date" binding:"required"`
	Period    string `json:"period" binding:"required"`
	ShiftType string `json:"shift_type" binding:"required"`
	TimeSlot  string `json:"time_slot" binding:"required"`
}

// ImportPlanningPayload replaces one worker's planning over a date window.
type ImportPlanningPayload struct {
	WorkerID string               `json:"worker_id" binding:"required"`
	From     string               `json:"from" binding:"required"`
	To       string               `json:"to" binding:"required"`
	Shifts   []ImportShiftPayload `json:"shifts"`
}

// CreatePeriodPayload opens a new planning period.
type CreatePeriodPayload struct {
	Name      string `json:"name" binding:"required"`
	StartDate string `json:"start_date" binding:"required"`
	EndDate   string `json:"end_date" binding:"required"`
}

// AdvancePhasePayload moves a period's phase.
type AdvancePhasePayload struct {
	Phase string `json:"phase" binding:"required"`
	Force bool   `json:"force"`
}
