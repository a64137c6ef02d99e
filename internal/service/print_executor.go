package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/s22001503-hash/ouslpms-monorepo/pkg/errors"
)

// ExecuteJob is the payload handed to the printer backend.
type ExecuteJob struct {
	RequestID   string `json:"requestId"`
	DocumentURL string `json:"documentUrl"`
	Copies      int    `json:"copies"`
	Color       bool   `json:"color"`
	UserEPF     string `json:"userEpf"`
}

// PrintExecutor sends an approved document to the printers and returns the backend job id.
type PrintExecutor interface {
	Execute(ctx context.Context, job ExecuteJob) (string, error)
}

// HTTPPrintExecutor posts jobs to the print backend.
type HTTPPrintExecutor struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

// NewHTTPPrintExecutor builds an executor for baseURL.
func NewHTTPPrintExecutor(baseURL string, timeout time.Duration, client *http.Client) *HTTPPrintExecutor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPPrintExecutor{baseURL: strings.TrimRight(baseURL, "/"), timeout: timeout, client: client}
}

// Execute submits the job. Any transport or non-2xx failure is a NetworkError.
func (e *HTTPPrintExecutor) Execute(ctx context.Context, job ExecuteJob) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	body, err := json.Marshal(job)
	if err != nil {
		return "", appErrors.Internal(err, "failed to encode print job")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/print", bytes.NewReader(body))
	if err != nil {
		return "", appErrors.Internal(err, "failed to build print job request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", appErrors.Network(err, "print executor")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", appErrors.Network(fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))), "print executor")
	}

	var payload struct {
		JobID string `json:"jobId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", appErrors.Network(fmt.Errorf("decode response: %w", err), "print executor")
	}
	if payload.JobID == "" {
		return "", appErrors.Network(fmt.Errorf("empty job id"), "print executor")
	}
	return payload.JobID, nil
}

// LoggingPrintExecutor accepts every job without printing. Used when no
// executor URL is configured.
type LoggingPrintExecutor struct {
	logger *zap.Logger
}

// NewLoggingPrintExecutor builds the development executor.
func NewLoggingPrintExecutor(logger *zap.Logger) *LoggingPrintExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingPrintExecutor{logger: logger}
}

// Execute logs the job and returns a generated id.
func (e *LoggingPrintExecutor) Execute(ctx context.Context, job ExecuteJob) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := "local-" + uuid.NewString()
	e.logger.Info("print job accepted",
		zap.String("job_id", id),
		zap.String("request_id", job.RequestID),
		zap.String("user_epf", job.UserEPF),
		zap.Int("copies", job.Copies),
		zap.Bool("color", job.Color),
	)
	return id, nil
}
