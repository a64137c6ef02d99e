package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/s22001503-hash/ouslpms-monorepo/pkg/errors"
)

func TestHTTPPrintExecutorReturnsJobID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/print", r.URL.Path)
		var job ExecuteJob
		require.NoError(t, json.NewDecoder(r.Body).Decode(&job))
		assert.Equal(t, "print-1", job.RequestID)
		assert.Equal(t, 2, job.Copies)
		_, _ = w.Write([]byte(`{"jobId":"printer-77"}`))
	}))
	defer srv.Close()

	exec := NewHTTPPrintExecutor(srv.URL, time.Second, nil)
	id, err := exec.Execute(context.Background(), ExecuteJob{RequestID: "print-1", Copies: 2, UserEPF: "50005"})
	require.NoError(t, err)
	assert.Equal(t, "printer-77", id)
}

func TestHTTPPrintExecutorFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "jammed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	exec := NewHTTPPrintExecutor(srv.URL, time.Second, nil)
	_, err := exec.Execute(context.Background(), ExecuteJob{RequestID: "print-1", Copies: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrNetwork)
	assert.Contains(t, err.Error(), "jammed")
}

func TestLoggingPrintExecutor(t *testing.T) {
	id, err := NewLoggingPrintExecutor(nil).Execute(context.Background(), ExecuteJob{RequestID: "print-1"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "local-"))
}
