package dto

// EscalateRequest opens an approval request for a blocked print.
type EscalateRequest struct {
	Justification string `json:"justification"`
}

// JustificationRequest updates the justification text.
type JustificationRequest struct {
	Justification string `json:"justification"`
}

// DecideApprovalRequest is the approve/reject body for approval requests.
type DecideApprovalRequest struct {
	RequestID string `json:"requestId" validate:"required"`
	VCID      string `json:"vcId"`
	Notes     string `json:"notes"`
	Reason    string `json:"reason"`
}

// DecisionText returns whichever of notes or reason the client filled in.
func (r DecideApprovalRequest) DecisionText() string {
	if r.Reason != "" {
		return r.Reason
	}
	return r.Notes
}

// ApprovalQuery carries the decider list filter: pending, approved, rejected or all.
type ApprovalQuery struct {
	Filter string `form:"filter"`
}
