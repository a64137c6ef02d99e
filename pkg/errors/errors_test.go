package errors

import (
	"database/sql"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneKeepsCodeAndMatchesTemplate(t *testing.T) {
	err := Clone(ErrAlreadyDecided, "proposal already approved")
	require.Equal(t, "ALREADY_DECIDED", err.Code)
	require.Equal(t, http.StatusConflict, err.Status)
	assert.True(t, errors.Is(err, ErrAlreadyDecided))
	assert.False(t, errors.Is(err, ErrConflict))
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(sql.ErrConnDone)
	require.Equal(t, ErrInternal.Code, appErr.Code)
	assert.ErrorIs(t, appErr, sql.ErrConnDone)
	assert.Nil(t, FromError(nil))
}

func TestNetworkError(t *testing.T) {
	err := Network(errors.New("dial tcp: refused"), "classifier")
	assert.Equal(t, http.StatusBadGateway, err.Status)
	assert.Contains(t, err.Error(), "classifier unreachable")
	assert.True(t, errors.Is(err, ErrNetwork))
}
