package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// PolicyScope distinguishes the global rule from per-user overrides.
type PolicyScope string

const (
	PolicyScopeGlobal       PolicyScope = "global"
	PolicyScopeUserOverride PolicyScope = "user_override"
)

// PolicyField names a tunable limit. The values double as JSON keys.
type PolicyField string

const (
	FieldMaxAttemptsPerDay  PolicyField = "maxAttemptsPerDay"
	FieldMaxCopiesPerDoc    PolicyField = "maxCopiesPerDoc"
	FieldMaxPagesPerJob     PolicyField = "maxPagesPerJob"
	FieldDailyQuota         PolicyField = "dailyQuota"
	FieldAllowColorPrinting PolicyField = "allowColorPrinting"
)

// PolicyFields lists every field in display order.
var PolicyFields = []PolicyField{
	FieldMaxAttemptsPerDay,
	FieldMaxCopiesPerDoc,
	FieldMaxPagesPerJob,
	FieldDailyQuota,
	FieldAllowColorPrinting,
}

// PolicyRule is one persisted limit set.
type PolicyRule struct {
	ID                 string      `db:"id" json:"id"`
	Scope              PolicyScope `db:"scope" json:"scope"`
	UserEPF            *string     `db:"user_epf" json:"userEpf,omitempty"`
	MaxAttemptsPerDay  int         `db:"max_attempts_per_day" json:"maxAttemptsPerDay"`
	MaxCopiesPerDoc    int         `db:"max_copies_per_doc" json:"maxCopiesPerDoc"`
	MaxPagesPerJob     *int        `db:"max_pages_per_job" json:"maxPagesPerJob,omitempty"`
	DailyQuota         *int        `db:"daily_quota" json:"dailyQuota,omitempty"`
	AllowColorPrinting *bool       `db:"allow_color_printing" json:"allowColorPrinting,omitempty"`
	ProposalID         *string     `db:"proposal_id" json:"proposalId,omitempty"`
	ModifiedBy         *string     `db:"modified_by" json:"modifiedBy,omitempty"`
	CreatedAt          time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time   `db:"updated_at" json:"updatedAt"`
}

// Values projects the rule onto its tunable fields.
func (p PolicyRule) Values() PolicyValues {
	attempts, copies := p.MaxAttemptsPerDay, p.MaxCopiesPerDoc
	return PolicyValues{
		MaxAttemptsPerDay:  &attempts,
		MaxCopiesPerDoc:    &copies,
		MaxPagesPerJob:     cloneInt(p.MaxPagesPerJob),
		DailyQuota:         cloneInt(p.DailyQuota),
		AllowColorPrinting: cloneBool(p.AllowColorPrinting),
	}
}

// SpecialPolicy pairs an override with the user it belongs to.
type SpecialPolicy struct {
	PolicyRule
	UserName   string `db:"user_name" json:"userName"`
	Department string `db:"department" json:"department"`
}

// CurrentPolicies is the read model behind the admin policy screen.
type CurrentPolicies struct {
	Global       PolicyRule      `json:"global"`
	SpecialUsers []SpecialPolicy `json:"specialUsers"`
}

// PolicyValues carries an optional value per field. It is stored as jsonb.
type PolicyValues struct {
	MaxAttemptsPerDay  *int  `json:"maxAttemptsPerDay,omitempty"`
	MaxCopiesPerDoc    *int  `json:"maxCopiesPerDoc,omitempty"`
	MaxPagesPerJob     *int  `json:"maxPagesPerJob,omitempty"`
	DailyQuota         *int  `json:"dailyQuota,omitempty"`
	AllowColorPrinting *bool `json:"allowColorPrinting,omitempty"`
}

// Get returns the field value as an any, or nil when unset.
func (v PolicyValues) Get(field PolicyField) any {
	switch field {
	case FieldMaxAttemptsPerDay:
		return derefInt(v.MaxAttemptsPerDay)
	case FieldMaxCopiesPerDoc:
		return derefInt(v.MaxCopiesPerDoc)
	case FieldMaxPagesPerJob:
		return derefInt(v.MaxPagesPerJob)
	case FieldDailyQuota:
		return derefInt(v.DailyQuota)
	case FieldAllowColorPrinting:
		if v.AllowColorPrinting == nil {
			return nil
		}
		return *v.AllowColorPrinting
	}
	return nil
}

// IsZero reports whether no field is set.
func (v PolicyValues) IsZero() bool {
	return v == PolicyValues{}
}

// Value implements driver.Valuer.
func (v PolicyValues) Value() (driver.Value, error) {
	return json.Marshal(v)
}

// Scan implements sql.Scanner.
func (v *PolicyValues) Scan(src any) error {
	switch data := src.(type) {
	case nil:
		*v = PolicyValues{}
		return nil
	case []byte:
		return json.Unmarshal(data, v)
	case string:
		return json.Unmarshal([]byte(data), v)
	default:
		return fmt.Errorf("policy values: unsupported scan type %T", src)
	}
}

// IntPtr is a small helper for building PolicyValues literals.
func IntPtr(v int) *int { return &v }

// BoolPtr is the bool counterpart of IntPtr.
func BoolPtr(v bool) *bool { return &v }

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneBool(v *bool) *bool {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func derefInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
