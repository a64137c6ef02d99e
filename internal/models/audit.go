package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin           = "LOGIN"
	AuditActionUserCreate      = "USER_CREATE"
	AuditActionUserDelete      = "USER_DELETE"
	AuditActionPasswordChange  = "PASSWORD_CHANGE"
	AuditActionProposalCreate  = "PROPOSAL_CREATE"
	AuditActionProposalApprove = "PROPOSAL_APPROVE"
	AuditActionProposalReject  = "PROPOSAL_REJECT"
	AuditActionPolicyRemove    = "POLICY_OVERRIDE_REMOVE"
	AuditActionApprovalSubmit  = "APPROVAL_SUBMIT"
	AuditActionApprovalApprove = "APPROVAL_APPROVE"
	AuditActionApprovalReject  = "APPROVAL_REJECT"
	AuditActionPrintUpload     = "PRINT_UPLOAD"
	AuditActionPrintBlocked    = "PRINT_BLOCKED"
	AuditActionPrintExecute    = "PRINT_EXECUTE"
	AuditActionPrintCancel     = "PRINT_CANCEL"
	AuditActionPrintShare      = "PRINT_SHARE"
	AuditActionReportExport    = "REPORT_EXPORT"
)

// Audit resources.
const (
	AuditResourceUser     = "user"
	AuditResourceProposal = "policy_proposal"
	AuditResourcePolicy   = "policy_rule"
	AuditResourceApproval = "approval_request"
	AuditResourcePrint    = "print_request"
	AuditResourceReport   = "usage_report"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"userId,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resourceId,omitempty"`
	OldValues  []byte    `db:"old_values" json:"-"`
	NewValues  []byte    `db:"new_values" json:"-"`
	IPAddress  string    `db:"ip_address" json:"ipAddress,omitempty"`
	UserAgent  string    `db:"user_agent" json:"-"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
