package models

import "time"

// ProposalType enumerates the kinds of policy change an admin can request.
type ProposalType string

const (
	ProposalTypeGlobalChange       ProposalType = "global_change"
	ProposalTypeUserOverrideCreate ProposalType = "user_override_create"
	ProposalTypeUserOverrideRemove ProposalType = "user_override_remove"
)

// ProposalStatus captures the single-fire review lifecycle.
type ProposalStatus string

const (
	ProposalStatusPending  ProposalStatus = "pending"
	ProposalStatusApproved ProposalStatus = "approved"
	ProposalStatusRejected ProposalStatus = "rejected"
)

// PolicyProposal is an admin-submitted change awaiting a senior approver.
type PolicyProposal struct {
	ID               string         `db:"id" json:"id"`
	Type             ProposalType   `db:"type" json:"type"`
	ProposedBy       string         `db:"proposed_by" json:"proposedBy"`
	ProposerName     *string        `db:"proposer_name" json:"proposerName,omitempty"`
	TargetEPF        *string        `db:"target_epf" json:"targetEpf,omitempty"`
	TargetName       *string        `db:"target_name" json:"targetName,omitempty"`
	TargetDepartment *string        `db:"target_department" json:"targetDepartment,omitempty"`
	CurrentValues    PolicyValues   `db:"current_values" json:"currentValues"`
	ProposedValues   PolicyValues   `db:"proposed_values" json:"proposedValues"`
	Justification    string         `db:"justification" json:"justification"`
	Status           ProposalStatus `db:"status" json:"status"`
	DecidedBy        *string        `db:"decided_by" json:"decidedBy,omitempty"`
	DecidedAt        *time.Time     `db:"decided_at" json:"decidedAt,omitempty"`
	DecisionNotes    *string        `db:"decision_notes" json:"decisionNotes,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updatedAt"`

	Changes map[PolicyField]FieldChange `db:"-" json:"changes,omitempty"`
}

// FieldChange shows one field moving from its current to its proposed value.
type FieldChange struct {
	Current  any `json:"current"`
	Proposed any `json:"proposed"`
}

// DeriveChanges fills Changes with every field the proposal sets.
func (p *PolicyProposal) DeriveChanges() {
	changes := make(map[PolicyField]FieldChange)
	for _, field := range PolicyFields {
		proposed := p.ProposedValues.Get(field)
		if proposed == nil {
			continue
		}
		changes[field] = FieldChange{Current: p.CurrentValues.Get(field), Proposed: proposed}
	}
	p.Changes = changes
}

// ProposalFilter constrains listing queries.
type ProposalFilter struct {
	Type       ProposalType
	Status     ProposalStatus
	ProposedBy string
	Limit      int
	Offset     int
}

// ProposalDecision records the outcome written by DecideTx.
type ProposalDecision struct {
	ProposalID string
	Status     ProposalStatus
	DecidedBy  string
	Notes      *string
	DecidedAt  time.Time
}
