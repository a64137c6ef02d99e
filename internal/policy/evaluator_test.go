package policy

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
	appErrors "github.com/s22001503-hash/ouslpms-monorepo/pkg/errors"
)

func globalRule() models.PolicyRule {
	return models.PolicyRule{
		Scope:              models.PolicyScopeGlobal,
		MaxAttemptsPerDay:  5,
		MaxCopiesPerDoc:    5,
		MaxPagesPerJob:     models.IntPtr(100),
		DailyQuota:         models.IntPtr(500),
		AllowColorPrinting: models.BoolPtr(false),
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want Decision
	}{
		{
			name: "official within limits is allowed",
			in:   Input{Classification: models.ClassificationOfficial, RequestedCopies: 2, RequestedPages: 3, Usage: Usage{AttemptsToday: 1}},
			want: Decision{Allowed: true},
		},
		{
			name: "personal always blocks without escalation",
			in:   Input{Classification: models.ClassificationPersonal, RequestedCopies: 1, DuplicateSimilarity: 99},
			want: Decision{Reason: models.BlockReasonPersonal},
		},
		{
			name: "personal blocks even when exempt",
			in:   Input{Classification: models.ClassificationPersonal, RequestedCopies: 1, Exempt: true},
			want: Decision{Reason: models.BlockReasonPersonal},
		},
		{
			name: "daily limit reached",
			in:   Input{Classification: models.ClassificationOfficial, RequestedCopies: 1, Usage: Usage{AttemptsToday: 5}},
			want: Decision{
				Reason:             models.BlockReasonDailyLimit,
				Details:            models.BlockDetails{Used: models.IntPtr(5), Limit: models.IntPtr(5)},
				EscalationEligible: true,
			},
		},
		{
			name: "daily limit wins over copies limit",
			in:   Input{Classification: models.ClassificationConfidential, RequestedCopies: 50, Usage: Usage{AttemptsToday: 9}},
			want: Decision{
				Reason:             models.BlockReasonDailyLimit,
				Details:            models.BlockDetails{Used: models.IntPtr(9), Limit: models.IntPtr(5)},
				EscalationEligible: true,
			},
		},
		{
			name: "copies limit exceeded",
			in:   Input{Classification: models.ClassificationOfficial, RequestedCopies: 6},
			want: Decision{
				Reason:             models.BlockReasonCopiesLimit,
				Details:            models.BlockDetails{Requested: models.IntPtr(6), Max: models.IntPtr(5)},
				EscalationEligible: true,
			},
		},
		{
			name: "copies printed earlier today do not count towards the limit",
			in:   Input{Classification: models.ClassificationOfficial, RequestedCopies: 2, CopiesToday: 4},
			want: Decision{Allowed: true},
		},
		{
			name: "pages per job exceeded",
			in:   Input{Classification: models.ClassificationOfficial, RequestedCopies: 1, RequestedPages: 101},
			want: Decision{
				Reason:             models.BlockReasonPagesLimit,
				Details:            models.BlockDetails{Requested: models.IntPtr(101), Max: models.IntPtr(100)},
				EscalationEligible: true,
			},
		},
		{
			name: "daily page quota exceeded",
			in:   Input{Classification: models.ClassificationOfficial, RequestedCopies: 2, RequestedPages: 50, Usage: Usage{AttemptsToday: 1, PagesToday: 450}},
			want: Decision{
				Reason:             models.BlockReasonDailyQuota,
				Details:            models.BlockDetails{Used: models.IntPtr(450), Requested: models.IntPtr(100), Limit: models.IntPtr(500)},
				EscalationEligible: true,
			},
		},
		{
			name: "colour disabled",
			in:   Input{Classification: models.ClassificationOfficial, RequestedCopies: 1, Color: true},
			want: Decision{Reason: models.BlockReasonColorDisabled, EscalationEligible: true},
		},
		{
			name: "exempt skips limits",
			in:   Input{Classification: models.ClassificationOfficial, RequestedCopies: 50, Usage: Usage{AttemptsToday: 9}, Exempt: true},
			want: Decision{Allowed: true},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.in.Policy = globalRule()
			got, err := Evaluate(tc.in)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("decision mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEvaluateWithoutExtendedFields(t *testing.T) {
	rule := models.PolicyRule{MaxAttemptsPerDay: 5, MaxCopiesPerDoc: 5}
	got, err := Evaluate(Input{Classification: models.ClassificationOfficial, RequestedCopies: 1, RequestedPages: 900, Color: true, Policy: rule})
	require.NoError(t, err)
	assert.True(t, got.Allowed)
}

func TestEvaluateDuplicateWarning(t *testing.T) {
	base := Input{RequestedCopies: 1, Policy: globalRule(), DuplicateSimilarity: 85}

	official := base
	official.Classification = models.ClassificationOfficial
	got, err := Evaluate(official)
	require.NoError(t, err)
	require.True(t, got.Allowed)
	want := &DuplicateWarning{Similarity: 85, Actions: []Action{ActionProceed, ActionShareDigital, ActionCancel}}
	if diff := cmp.Diff(want, got.Warning, cmpopts.IgnoreFields(DuplicateWarning{}, "Message")); diff != "" {
		t.Fatalf("warning mismatch (-want +got):\n%s", diff)
	}

	blocked := official
	blocked.Usage.AttemptsToday = 5
	got, err = Evaluate(blocked)
	require.NoError(t, err)
	assert.False(t, got.Allowed)
	assert.NotNil(t, got.Warning)

	below := official
	below.DuplicateSimilarity = 84.9
	got, err = Evaluate(below)
	require.NoError(t, err)
	assert.Nil(t, got.Warning)

	confidential := base
	confidential.Classification = models.ClassificationConfidential
	got, err = Evaluate(confidential)
	require.NoError(t, err)
	assert.Nil(t, got.Warning)
}

func TestEvaluateExactReprintWithinLimitsWarns(t *testing.T) {
	got, err := Evaluate(Input{
		Classification:      models.ClassificationOfficial,
		RequestedCopies:     3,
		CopiesToday:         3,
		Usage:               Usage{AttemptsToday: 1},
		Policy:              models.PolicyRule{MaxAttemptsPerDay: 5, MaxCopiesPerDoc: 5},
		DuplicateSimilarity: 100,
	})
	require.NoError(t, err)
	assert.True(t, got.Allowed)
	assert.Empty(t, got.Reason)
	require.NotNil(t, got.Warning)
	assert.Equal(t, 3, got.Warning.CopiesToday)
	assert.Contains(t, got.Warning.Message, "3 copies printed today")
}

func TestEvaluateRejectsBadInput(t *testing.T) {
	_, err := Evaluate(Input{Classification: "memo", RequestedCopies: 1})
	assert.ErrorIs(t, err, appErrors.ErrInvalidClassification)

	_, err = Evaluate(Input{Classification: models.ClassificationOfficial, RequestedCopies: 0})
	assert.ErrorIs(t, err, appErrors.ErrInvalidInput)

	_, err = Evaluate(Input{Classification: models.ClassificationOfficial, RequestedCopies: 1, Usage: Usage{AttemptsToday: -1}})
	assert.ErrorIs(t, err, appErrors.ErrInvalidInput)

	_, err = Evaluate(Input{Classification: models.ClassificationOfficial, RequestedCopies: 1, CopiesToday: -2})
	assert.ErrorIs(t, err, appErrors.ErrInvalidInput)
}

func TestEvaluatePersonalIgnoresUsageAndCopies(t *testing.T) {
	for attempts := 0; attempts < 8; attempts++ {
		for copies := 1; copies < 8; copies++ {
			got, err := Evaluate(Input{
				Classification:  models.ClassificationPersonal,
				RequestedCopies: copies,
				Usage:           Usage{AttemptsToday: attempts},
				Policy:          globalRule(),
			})
			require.NoError(t, err)
			require.Equal(t, models.BlockReasonPersonal, got.Reason)
			require.False(t, got.EscalationEligible)
		}
	}
}
