package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin            = "LOGIN"
	AuditActionLogout           = "LOGOUT"
	AuditActionPasswordChange   = "PASSWORD_CHANGE"
	AuditActionListingCreate    = "LISTING_CREATE"
	AuditActionListingWithdraw  = "LISTING_WITHDRAW"
	AuditActionListingValidate  = "LISTING_VALIDATE"
	AuditActionListingRevert    = "LISTING_REVERT"
	AuditActionInterestExpress  = "INTEREST_EXPRESS"
	AuditActionExchangeCreate   = "EXCHANGE_CREATE"
	AuditActionExchangeCancel   = "EXCHANGE_CANCEL"
	AuditActionProposalCreate   = "PROPOSAL_CREATE"
	AuditActionProposalAccept   = "PROPOSAL_ACCEPT"
	AuditActionProposalReject   = "PROPOSAL_REJECT"
	AuditActionProposalCancel   = "PROPOSAL_CANCEL"
	AuditActionPeriodPhaseForce = "PERIOD_PHASE_FORCE"
	AuditActionPeriodMerge      = "PERIOD_MERGE"
	AuditActionPlanningImport   = "PLANNING_IMPORT"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
