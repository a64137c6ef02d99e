package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
	appErrors "github.com/s22001503-hash/ouslpms-monorepo/pkg/errors"
)

func TestJustify(t *testing.T) {
	next, err := Justify(Created, "urgent exam papers")
	require.NoError(t, err)
	assert.Equal(t, Justifying, next)

	next, err = Justify(Created, "   ")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Equal(t, Justifying, next)

	_, err = Justify(Approved, "late")
	assert.ErrorIs(t, err, appErrors.ErrAlreadyDecided)

	_, err = Justify(Pending, "more")
	assert.ErrorIs(t, err, appErrors.ErrPreconditionFailed)
}

func TestSubmit(t *testing.T) {
	next, err := Submit(Justifying, "urgent")
	require.NoError(t, err)
	assert.Equal(t, Pending, next)

	next, err = Submit(Justifying, "")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Equal(t, Justifying, next)

	next, err = Submit(Created, "urgent")
	require.NoError(t, err)
	assert.Equal(t, Pending, next)

	next, err = Submit(Created, " ")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Equal(t, Justifying, next)

	_, err = Submit(Pending, "urgent")
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	_, err = Submit(Rejected, "urgent")
	assert.ErrorIs(t, err, appErrors.ErrAlreadyDecided)
}

func TestDecide(t *testing.T) {
	next, err := Decide(Pending, Decision{Approve: true, DeciderRole: models.RoleHOD})
	require.NoError(t, err)
	assert.Equal(t, Approved, next)

	next, err = Decide(Pending, Decision{Approve: false, Notes: "not justified", DeciderRole: models.RoleVC})
	require.NoError(t, err)
	assert.Equal(t, Rejected, next)

	next, err = Decide(Pending, Decision{Approve: false, DeciderRole: models.RoleDean})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Equal(t, Pending, next)

	_, err = Decide(Pending, Decision{Approve: true, DeciderRole: models.RoleAdmin})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	for _, s := range []State{Approved, Rejected} {
		next, err = Decide(s, Decision{Approve: true, DeciderRole: models.RoleVC})
		assert.ErrorIs(t, err, appErrors.ErrAlreadyDecided)
		assert.Equal(t, s, next)
	}

	for _, s := range []State{Created, Justifying} {
		_, err = Decide(s, Decision{Approve: true, DeciderRole: models.RoleVC})
		assert.ErrorIs(t, err, appErrors.ErrPreconditionFailed)
	}
}

func TestEscalationScenario(t *testing.T) {
	state := Created
	state, err := Justify(state, "urgent")
	require.NoError(t, err)
	state, err = Submit(state, "urgent")
	require.NoError(t, err)
	state, err = Decide(state, Decision{Approve: true, Notes: "ok", DeciderRole: models.RoleHOD})
	require.NoError(t, err)
	assert.Equal(t, Approved, state)

	_, err = Decide(state, Decision{Approve: true, Notes: "ok", DeciderRole: models.RoleHOD})
	assert.ErrorIs(t, err, appErrors.ErrAlreadyDecided)
}

func TestCanDecide(t *testing.T) {
	assert.True(t, CanDecide(models.RoleHOD))
	assert.True(t, CanDecide(models.RoleDean))
	assert.True(t, CanDecide(models.RoleVC))
	assert.False(t, CanDecide(models.RoleAdmin))
	assert.False(t, CanDecide(models.RoleUser))
}

func TestProposalStateMapping(t *testing.T) {
	assert.Equal(t, Pending, ProposalState(models.ProposalStatusPending))
	assert.Equal(t, models.ProposalStatusRejected, ProposalStatusOf(ProposalState(models.ProposalStatusRejected)))
	assert.Equal(t, models.ProposalStatusApproved, ProposalStatusOf(Approved))
}
