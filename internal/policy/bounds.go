package policy

import (
	"fmt"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
	appErrors "github.com/s22001503-hash/ouslpms-monorepo/pkg/errors"
)

// Bound is the inclusive range accepted for a numeric field.
type Bound struct {
	Min int
	Max int
}

// Bounds lists the accepted range per numeric field.
var Bounds = map[models.PolicyField]Bound{
	models.FieldMaxAttemptsPerDay: {Min: 1, Max: 200},
	models.FieldMaxCopiesPerDoc:   {Min: 1, Max: 100},
	models.FieldMaxPagesPerJob:    {Min: 1, Max: 500},
	models.FieldDailyQuota:        {Min: 1, Max: 2000},
}

// ValidateValues checks every set numeric field against Bounds and that each
// required field is present.
func ValidateValues(values models.PolicyValues, required ...models.PolicyField) error {
	for _, field := range required {
		if values.Get(field) == nil {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s is required", field))
		}
	}
	if values.IsZero() {
		return appErrors.Clone(appErrors.ErrValidation, "at least one policy value is required")
	}
	for _, field := range models.PolicyFields {
		bound, numeric := Bounds[field]
		if !numeric {
			continue
		}
		raw, ok := values.Get(field).(int)
		if !ok {
			continue
		}
		if raw < bound.Min || raw > bound.Max {
			return appErrors.Clone(appErrors.ErrOutOfRange, fmt.Sprintf("%s must be between %d and %d", field, bound.Min, bound.Max))
		}
	}
	return nil
}

// Resolve returns the rule that applies to a user. An override wins; extended
// fields the override leaves unset fall back to the global rule.
func Resolve(global models.PolicyRule, override *models.PolicyRule) models.PolicyRule {
	if override == nil {
		return global
	}
	out := *override
	if out.MaxPagesPerJob == nil {
		out.MaxPagesPerJob = global.MaxPagesPerJob
	}
	if out.DailyQuota == nil {
		out.DailyQuota = global.DailyQuota
	}
	if out.AllowColorPrinting == nil {
		out.AllowColorPrinting = global.AllowColorPrinting
	}
	return out
}

// ApplyValues writes the set fields of values onto a copy of rule.
func ApplyValues(rule models.PolicyRule, values models.PolicyValues) models.PolicyRule {
	if values.MaxAttemptsPerDay != nil {
		rule.MaxAttemptsPerDay = *values.MaxAttemptsPerDay
	}
	if values.MaxCopiesPerDoc != nil {
		rule.MaxCopiesPerDoc = *values.MaxCopiesPerDoc
	}
	if values.MaxPagesPerJob != nil {
		rule.MaxPagesPerJob = models.IntPtr(*values.MaxPagesPerJob)
	}
	if values.DailyQuota != nil {
		rule.DailyQuota = models.IntPtr(*values.DailyQuota)
	}
	if values.AllowColorPrinting != nil {
		rule.AllowColorPrinting = models.BoolPtr(*values.AllowColorPrinting)
	}
	return rule
}
