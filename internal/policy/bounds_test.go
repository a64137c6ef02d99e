package policy

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
	appErrors "github.com/s22001503-hash/ouslpms-monorepo/pkg/errors"
)

func TestValidateValues(t *testing.T) {
	ok := models.PolicyValues{MaxAttemptsPerDay: models.IntPtr(200), MaxCopiesPerDoc: models.IntPtr(1)}
	require.NoError(t, ValidateValues(ok, models.FieldMaxAttemptsPerDay, models.FieldMaxCopiesPerDoc))

	err := ValidateValues(models.PolicyValues{MaxCopiesPerDoc: models.IntPtr(500)})
	assert.ErrorIs(t, err, appErrors.ErrOutOfRange)

	err = ValidateValues(models.PolicyValues{DailyQuota: models.IntPtr(2001)})
	assert.ErrorIs(t, err, appErrors.ErrOutOfRange)

	err = ValidateValues(models.PolicyValues{MaxPagesPerJob: models.IntPtr(0)})
	assert.ErrorIs(t, err, appErrors.ErrOutOfRange)

	err = ValidateValues(models.PolicyValues{MaxCopiesPerDoc: models.IntPtr(3)}, models.FieldMaxAttemptsPerDay)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	err = ValidateValues(models.PolicyValues{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	require.NoError(t, ValidateValues(models.PolicyValues{AllowColorPrinting: models.BoolPtr(true)}))
}

func TestResolve(t *testing.T) {
	global := globalRule()
	assert.Equal(t, global, Resolve(global, nil))

	override := &models.PolicyRule{
		Scope:             models.PolicyScopeUserOverride,
		UserEPF:           func() *string { s := "50005"; return &s }(),
		MaxAttemptsPerDay: 20,
		MaxCopiesPerDoc:   10,
		DailyQuota:        models.IntPtr(1000),
	}
	got := Resolve(global, override)
	want := *override
	want.MaxPagesPerJob = global.MaxPagesPerJob
	want.AllowColorPrinting = global.AllowColorPrinting
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("resolved rule mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyValues(t *testing.T) {
	got := ApplyValues(globalRule(), models.PolicyValues{MaxAttemptsPerDay: models.IntPtr(7), AllowColorPrinting: models.BoolPtr(true)})
	assert.Equal(t, 7, got.MaxAttemptsPerDay)
	assert.Equal(t, 5, got.MaxCopiesPerDoc)
	assert.True(t, *got.AllowColorPrinting)
}
