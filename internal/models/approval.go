package models

import "time"

// ApprovalStatus is the persisted state of an ApprovalRequest.
// "pending" is the stored name of the submitted state.
type ApprovalStatus string

const (
	ApprovalStatusCreated    ApprovalStatus = "created"
	ApprovalStatusJustifying ApprovalStatus = "justifying"
	ApprovalStatusPending    ApprovalStatus = "pending"
	ApprovalStatusApproved   ApprovalStatus = "approved"
	ApprovalStatusRejected   ApprovalStatus = "rejected"
)

// ApprovalRequest escalates a blocked print to a senior approver.
type ApprovalRequest struct {
	ID             string         `db:"id" json:"id"`
	PrintRequestID string         `db:"print_request_id" json:"printRequestId"`
	RequesterEPF   string         `db:"requester_epf" json:"requesterEpf"`
	RequesterName  *string        `db:"requester_name" json:"requesterName,omitempty"`
	FileName       *string        `db:"file_name" json:"fileName,omitempty"`
	BlockReason    BlockReason    `db:"block_reason" json:"blockReason"`
	Justification  string         `db:"justification" json:"justification"`
	Status         ApprovalStatus `db:"status" json:"status"`
	DecidedBy      *string        `db:"decided_by" json:"decidedBy,omitempty"`
	DecidedAt      *time.Time     `db:"decided_at" json:"decidedAt,omitempty"`
	DecisionNotes  *string        `db:"decision_notes" json:"decisionNotes,omitempty"`
	SubmittedAt    *time.Time     `db:"submitted_at" json:"submittedAt,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updatedAt"`
}

// ApprovalFilter constrains listing queries.
type ApprovalFilter struct {
	Statuses     []ApprovalStatus
	RequesterEPF string
	Limit        int
	Offset       int
}
