package dto

import (
	"encoding/json"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
)

// ProposeSettingsRequest is the admin settings-change form. The two required
// limits use the names the web client sends.
type ProposeSettingsRequest struct {
	AdminID          string           `json:"adminId"`
	ProposedSettings ProposedSettings `json:"proposedSettings" validate:"required"`
	Justification    string           `json:"justification"`
}

// ProposedSettings carries the submitted values.
type ProposedSettings struct {
	MaxCopiesPerDocument   *int  `json:"maxCopiesPerDocument" validate:"required"`
	MaxPrintAttemptsPerDay *int  `json:"maxPrintAttemptsPerDay" validate:"required"`
	MaxPagesPerJob         *int  `json:"maxPagesPerJob"`
	DailyQuota             *int  `json:"dailyQuota"`
	AllowColorPrinting     *bool `json:"allowColorPrinting"`
}

// Values maps the form onto PolicyValues.
func (s ProposedSettings) Values() models.PolicyValues {
	return models.PolicyValues{
		MaxAttemptsPerDay:  s.MaxPrintAttemptsPerDay,
		MaxCopiesPerDoc:    s.MaxCopiesPerDocument,
		MaxPagesPerJob:     s.MaxPagesPerJob,
		DailyQuota:         s.DailyQuota,
		AllowColorPrinting: s.AllowColorPrinting,
	}
}

// PolicyProposalKind is the client-facing proposal type.
type PolicyProposalKind string

const (
	KindGlobal      PolicyProposalKind = "global"
	KindSpecialUser PolicyProposalKind = "special_user"
	KindRemoval     PolicyProposalKind = "removal"
)

// ProposePolicyRequest covers global changes, special-user overrides and removals.
type ProposePolicyRequest struct {
	Type           PolicyProposalKind                 `json:"type" validate:"required,oneof=global special_user removal"`
	Changes        map[models.PolicyField]ChangeValue `json:"changes"`
	ProposedPolicy *models.PolicyValues               `json:"proposedPolicy"`
	TargetEPF      string                             `json:"targetEPF"`
	Justification  string                             `json:"justification"`
	AdminID        string                             `json:"adminId"`
}

// ChangeValue is one {current, proposed} entry of a global change.
type ChangeValue struct {
	Current  json.RawMessage `json:"current"`
	Proposed json.RawMessage `json:"proposed"`
}

// RemovalProposalRequest asks the senior approvers to drop an override.
type RemovalProposalRequest struct {
	TargetEPF     string `json:"targetEpf" validate:"required"`
	RequestedBy   string `json:"requestedBy"`
	Justification string `json:"justification" validate:"required"`
}

// RemoveSpecialPolicyRequest removes an override immediately.
type RemoveSpecialPolicyRequest struct {
	EPF   string `json:"epf" validate:"required"`
	Notes string `json:"notes"`
}

// ProposalQuery mirrors supported listing filters.
type ProposalQuery struct {
	Type    string `form:"type"`
	Status  string `form:"status"`
	AdminID string `form:"adminId"`
}

// DecideProposalRequest is the approve/reject body. Approve sends notes, reject sends reason.
type DecideProposalRequest struct {
	ProposalID string `json:"proposalId" validate:"required"`
	VCID       string `json:"vcId"`
	Notes      string `json:"notes"`
	Reason     string `json:"reason"`
}

// DecisionText returns whichever of notes or reason the client filled in.
func (r DecideProposalRequest) DecisionText() string {
	if r.Reason != "" {
		return r.Reason
	}
	return r.Notes
}
