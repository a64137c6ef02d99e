// Package workflow is the approval state machine shared by approval requests
// and policy proposals: created -> justifying -> pending -> approved | rejected.
package workflow

import (
	"fmt"
	"strings"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
	appErrors "github.com/s22001503-hash/ouslpms-monorepo/pkg/errors"
)

// State is a workflow position. Pending is the persisted name of "submitted".
type State = models.ApprovalStatus

const (
	Created    = models.ApprovalStatusCreated
	Justifying = models.ApprovalStatusJustifying
	Pending    = models.ApprovalStatusPending
	Approved   = models.ApprovalStatusApproved
	Rejected   = models.ApprovalStatusRejected
)

// Decision is a senior approver's verdict.
type Decision struct {
	Approve     bool
	Notes       string
	DeciderRole models.UserRole
}

// CanDecide reports whether the role may take terminal decisions.
func CanDecide(role models.UserRole) bool {
	return role.IsSeniorApprover()
}

// Terminal reports whether the state accepts no further transitions.
func Terminal(s State) bool {
	return s == Approved || s == Rejected
}

// Justify records justification text. Empty text parks the workflow in justifying.
func Justify(current State, text string) (State, error) {
	switch current {
	case Created, Justifying:
	case Approved, Rejected:
		return current, appErrors.ErrAlreadyDecided
	default:
		return current, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("cannot justify a %s request", current))
	}
	if strings.TrimSpace(text) == "" {
		return Justifying, appErrors.Clone(appErrors.ErrValidation, "justification is required")
	}
	return Justifying, nil
}

// Submit hands the request to the approver queue. A created request with
// text passes through justifying; without text it stops there.
func Submit(current State, justification string) (State, error) {
	switch current {
	case Created, Justifying:
		if strings.TrimSpace(justification) == "" {
			return Justifying, appErrors.Clone(appErrors.ErrValidation, "justification is required before submitting")
		}
		return Pending, nil
	case Pending:
		return current, appErrors.Clone(appErrors.ErrConflict, "request already submitted")
	default:
		return current, appErrors.ErrAlreadyDecided
	}
}

// Decide moves a pending request to its terminal state.
func Decide(current State, d Decision) (State, error) {
	if !CanDecide(d.DeciderRole) {
		return current, appErrors.Clone(appErrors.ErrForbidden, "only HOD, dean or VC may decide")
	}
	switch current {
	case Pending:
	case Approved, Rejected:
		return current, appErrors.ErrAlreadyDecided
	default:
		return current, appErrors.Clone(appErrors.ErrPreconditionFailed, "request has not been submitted")
	}
	if d.Approve {
		return Approved, nil
	}
	if strings.TrimSpace(d.Notes) == "" {
		return current, appErrors.Clone(appErrors.ErrValidation, "a reason is required to reject")
	}
	return Rejected, nil
}

// ProposalState maps a proposal status onto the workflow. Proposals are created
// already justified, so they enter at pending.
func ProposalState(status models.ProposalStatus) State {
	switch status {
	case models.ProposalStatusApproved:
		return Approved
	case models.ProposalStatusRejected:
		return Rejected
	default:
		return Pending
	}
}

// ProposalStatusOf is the inverse of ProposalState for terminal states.
func ProposalStatusOf(s State) models.ProposalStatus {
	switch s {
	case Approved:
		return models.ProposalStatusApproved
	case Rejected:
		return models.ProposalStatusRejected
	default:
		return models.ProposalStatusPending
	}
}
