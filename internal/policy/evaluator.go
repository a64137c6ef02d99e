// Package policy holds the print decision rules. Everything here is pure:
// callers fetch policy and usage, evaluate, then persist the outcome themselves.
package policy

import (
	"fmt"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
	appErrors "github.com/s22001503-hash/ouslpms-monorepo/pkg/errors"
)

// DuplicateThreshold is the classifier similarity (percent) at which an official
// document is flagged as a probable re-print.
const DuplicateThreshold = 85.0

// Action is a follow-up the requester may take on a duplicate warning.
type Action string

const (
	ActionProceed      Action = "proceed"
	ActionShareDigital Action = "share_digitally"
	ActionCancel       Action = "cancel"
)

// Usage is the requester's consumption for the current policy day.
type Usage struct {
	AttemptsToday int
	PagesToday    int
}

// Input is everything the evaluator needs for one decision. CopiesToday is
// reported on the duplicate warning only; the copies limit applies per request.
// Exempt marks a print released by an approved ApprovalRequest.
type Input struct {
	Classification      models.Classification
	RequestedCopies     int
	CopiesToday         int
	RequestedPages      int
	Color               bool
	Usage               Usage
	Policy              models.PolicyRule
	DuplicateSimilarity float64
	Exempt              bool
}

// DuplicateWarning is surfaced alongside the decision, never instead of it.
type DuplicateWarning struct {
	Similarity  float64  `json:"similarity"`
	Message     string   `json:"message"`
	CopiesToday int      `json:"copiesToday,omitempty"`
	Actions     []Action `json:"actions"`
}

// Decision is the evaluator outcome.
type Decision struct {
	Allowed            bool
	Reason             models.BlockReason
	Details            models.BlockDetails
	EscalationEligible bool
	Warning            *DuplicateWarning
}

// Evaluate applies the rules in order and returns the first match.
func Evaluate(in Input) (Decision, error) {
	if !in.Classification.Valid() {
		return Decision{}, appErrors.Clone(appErrors.ErrInvalidClassification, fmt.Sprintf("unknown classification %q", in.Classification))
	}
	if in.RequestedCopies < 1 {
		return Decision{}, appErrors.Clone(appErrors.ErrInvalidInput, "requested copies must be at least 1")
	}
	if in.RequestedPages < 0 || in.CopiesToday < 0 || in.Usage.AttemptsToday < 0 || in.Usage.PagesToday < 0 {
		return Decision{}, appErrors.Clone(appErrors.ErrInvalidInput, "usage and pages must not be negative")
	}

	if in.Classification == models.ClassificationPersonal {
		return Decision{Reason: models.BlockReasonPersonal}, nil
	}

	decision := Decision{Allowed: true, Warning: DuplicateWarningFor(in.Classification, in.DuplicateSimilarity)}
	if decision.Warning != nil && in.CopiesToday > 0 {
		decision.Warning.CopiesToday = in.CopiesToday
		decision.Warning.Message += fmt.Sprintf(" (%d copies printed today)", in.CopiesToday)
	}
	if in.Exempt {
		return decision, nil
	}

	p := in.Policy
	switch {
	case in.Usage.AttemptsToday >= p.MaxAttemptsPerDay:
		decision.block(models.BlockReasonDailyLimit, models.BlockDetails{
			Used:  models.IntPtr(in.Usage.AttemptsToday),
			Limit: models.IntPtr(p.MaxAttemptsPerDay),
		})
	case in.RequestedCopies > p.MaxCopiesPerDoc:
		decision.block(models.BlockReasonCopiesLimit, models.BlockDetails{
			Requested: models.IntPtr(in.RequestedCopies),
			Max:       models.IntPtr(p.MaxCopiesPerDoc),
		})
	case p.MaxPagesPerJob != nil && in.RequestedPages > *p.MaxPagesPerJob:
		decision.block(models.BlockReasonPagesLimit, models.BlockDetails{
			Requested: models.IntPtr(in.RequestedPages),
			Max:       models.IntPtr(*p.MaxPagesPerJob),
		})
	case p.DailyQuota != nil && in.Usage.PagesToday+in.RequestedPages*in.RequestedCopies > *p.DailyQuota:
		decision.block(models.BlockReasonDailyQuota, models.BlockDetails{
			Used:      models.IntPtr(in.Usage.PagesToday),
			Requested: models.IntPtr(in.RequestedPages * in.RequestedCopies),
			Limit:     models.IntPtr(*p.DailyQuota),
		})
	case in.Color && p.AllowColorPrinting != nil && !*p.AllowColorPrinting:
		decision.block(models.BlockReasonColorDisabled, models.BlockDetails{})
	}
	return decision, nil
}

func (d *Decision) block(reason models.BlockReason, details models.BlockDetails) {
	d.Allowed = false
	d.Reason = reason
	d.Details = details
	d.EscalationEligible = true
}

// DuplicateWarningFor returns the warning for an official document at or above
// DuplicateThreshold, nil otherwise.
func DuplicateWarningFor(label models.Classification, similarity float64) *DuplicateWarning {
	if label != models.ClassificationOfficial || similarity < DuplicateThreshold {
		return nil
	}
	return &DuplicateWarning{
		Similarity: similarity,
		Message:    fmt.Sprintf("this document is %.0f%% similar to one you printed recently", similarity),
		Actions:    []Action{ActionProceed, ActionShareDigital, ActionCancel},
	}
}
