package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"go.uber.org/zap"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/dto"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/policy"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/repository"
	appErrors "github.com/s22001503-hash/ouslpms-monorepo/pkg/errors"
	"github.com/s22001503-hash/ouslpms-monorepo/pkg/jobs"
	"github.com/s22001503-hash/ouslpms-monorepo/pkg/storage"
)

// ClassificationJobType tags queue jobs produced by uploads.
const ClassificationJobType = "classify_print"

const (
	reasonCancelledByRequester = "cancelled by requester"
	reasonSharedDigitally      = "shared digitally instead of printing"
	textLinesPerPage           = 55
)

type printStore interface {
	Create(ctx context.Context, req *models.PrintRequest) error
	GetByID(ctx context.Context, id string) (*models.PrintRequest, error)
	List(ctx context.Context, filter models.PrintFilter) ([]models.PrintRequest, error)
	SaveOutcome(ctx context.Context, id string, outcome models.PrintOutcome) error
	Transition(ctx context.Context, params repository.TransitionParams) error
	TransitionTx(ctx context.Context, ext sqlx.ExtContext, params repository.TransitionParams) error
	ExecutedHashToday(ctx context.Context, epf, fileHash string, dayStart time.Time) (bool, error)
}

type usageStore interface {
	Get(ctx context.Context, epf, day string) (*models.UsageCounter, error)
	CopiesForDocument(ctx context.Context, epf, day, fileHash string) (int, error)
	IncrementTx(ctx context.Context, ext sqlx.ExtContext, inc models.UsageIncrement) (*models.UsageCounter, error)
	ReleaseTx(ctx context.Context, ext sqlx.ExtContext, inc models.UsageIncrement) error
}

type effectivePolicyReader interface {
	EffectivePolicy(ctx context.Context, epf string) (models.PolicyRule, error)
}

type printDispatcher interface {
	Enqueue(job jobs.Job) error
	Cancel(jobID string) bool
}

type linkSigner interface {
	Sign(resourceID, key string) (string, time.Time, error)
	Verify(token string) (storage.SignedLink, error)
}

// PrintServiceConfig bounds uploads and fixes the policy day.
type PrintServiceConfig struct {
	MaxFileSize   int64
	AllowedMIMEs  []string
	Location      *time.Location
	PublicBaseURL string
}

// PrintServiceDeps groups the collaborators of PrintService.
type PrintServiceDeps struct {
	Prints   printStore
	Usage    usageStore
	Policies effectivePolicyReader
	Store    storage.Store
	Signer   linkSigner
	Queue    printDispatcher
	Executor PrintExecutor
	Tx       transactor
	Audit    auditLogger
	Cache    dashboardInvalidator
	Metrics  *MetricsService
}

// PrintService owns the print request lifecycle from upload to execution.
type PrintService struct {
	deps   PrintServiceDeps
	eval   *printEvaluator
	cfg    PrintServiceConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewPrintService constructs the service.
func NewPrintService(deps PrintServiceDeps, cfg PrintServiceConfig, logger *zap.Logger) *PrintService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 20 * 1024 * 1024
	}
	svc := &PrintService{deps: deps, cfg: cfg, logger: logger, now: time.Now}
	svc.eval = &printEvaluator{prints: deps.Prints, usage: deps.Usage, policies: deps.Policies, loc: cfg.Location, now: func() time.Time { return svc.now() }}
	return svc
}

// Upload stores the document, records it as pending_classification and
// queues classification.
func (s *PrintService) Upload(ctx context.Context, actor *models.JWTClaims, in dto.UploadInput) (*dto.PrintJobResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if in.Copies == 0 {
		in.Copies = 1
	}
	if in.Copies < 1 {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, "copies must be at least 1")
	}
	if in.Body == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	if in.Size > s.cfg.MaxFileSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes", s.cfg.MaxFileSize))
	}
	data, err := io.ReadAll(io.LimitReader(in.Body, s.cfg.MaxFileSize+1))
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "failed to read uploaded file")
	}
	if len(data) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is empty")
	}
	if int64(len(data)) > s.cfg.MaxFileSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes", s.cfg.MaxFileSize))
	}

	contentType := detectContentType(in.ContentType, data)
	if !s.mimeAllowed(contentType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file type %s is not allowed", contentType))
	}
	pages, err := countPages(contentType, data)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "could not read the document pages")
	}
	sum := sha256.Sum256(data)

	req := &models.PrintRequest{
		ID:           uuid.NewString(),
		RequesterEPF: actor.UserID,
		FileName:     filepath.Base(in.FileName),
		ContentType:  contentType,
		FileHash:     hex.EncodeToString(sum[:]),
		SizeBytes:    int64(len(data)),
		Pages:        pages,
		Copies:       in.Copies,
		Color:        in.Color,
		Status:       models.PrintStatusPendingClassification,
	}
	req.DocumentKey = fmt.Sprintf("%s/%s%s", actor.UserID, req.ID, strings.ToLower(filepath.Ext(req.FileName)))

	if err := s.deps.Store.Put(ctx, req.DocumentKey, bytes.NewReader(data), contentType); err != nil {
		return nil, appErrors.Internal(err, "failed to store document")
	}
	if err := s.deps.Prints.Create(ctx, req); err != nil {
		if delErr := s.deps.Store.Delete(ctx, req.DocumentKey); delErr != nil {
			s.logger.Warn("failed to remove orphaned document", zap.String("key", req.DocumentKey), zap.Error(delErr))
		}
		return nil, appErrors.Internal(err, "failed to create print request")
	}
	if err := s.deps.Queue.Enqueue(jobs.Job{ID: req.ID, Type: ClassificationJobType}); err != nil {
		reason := "failed to queue classification"
		if tErr := s.deps.Prints.Transition(ctx, repository.TransitionParams{
			ID:            req.ID,
			From:          []models.PrintStatus{models.PrintStatusPendingClassification},
			To:            models.PrintStatusCancelled,
			FailureReason: &reason,
		}); tErr != nil {
			s.logger.Warn("failed to cancel unqueued print", zap.String("print_id", req.ID), zap.Error(tErr))
		}
		return nil, appErrors.Internal(err, reason)
	}

	s.emitAudit(ctx, actor.UserID, models.AuditActionPrintUpload, req.ID, map[string]any{
		"fileName": req.FileName,
		"pages":    req.Pages,
		"copies":   req.Copies,
		"color":    req.Color,
	})
	s.invalidateDashboards(ctx)
	return toPrintJobResponse(req), nil
}

// Get returns one print request. Requesters see their own, admins and senior
// approvers see all.
func (s *PrintService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*dto.PrintJobResponse, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canView(actor, req); err != nil {
		return nil, err
	}
	return toPrintJobResponse(req), nil
}

// ListMine lists the actor's print requests, optionally by status.
func (s *PrintService) ListMine(ctx context.Context, actor *models.JWTClaims, status string, limit, offset int) ([]dto.PrintJobResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.PrintFilter{RequesterEPF: actor.UserID, Limit: limit, Offset: offset}
	if status != "" && status != "all" {
		filter.Status = models.PrintStatus(status)
	}
	requests, err := s.deps.Prints.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list print requests")
	}
	out := make([]dto.PrintJobResponse, 0, len(requests))
	for i := range requests {
		out = append(out, *toPrintJobResponse(&requests[i]))
	}
	return out, nil
}

// Cancel withdraws a print that has not been executed. An in-flight
// classification is aborted.
func (s *PrintService) Cancel(ctx context.Context, actor *models.JWTClaims, id string) (*dto.PrintJobResponse, error) {
	req, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("print request is already %s", req.Status))
	}
	if req.Status == models.PrintStatusPendingClassification {
		s.deps.Queue.Cancel(req.ID)
	}
	if err := s.cancel(ctx, req.ID, reasonCancelledByRequester); err != nil {
		// the aborted classification job may have cancelled the row first
		if !errors.Is(err, appErrors.ErrPreconditionFailed) || !s.isCancelled(ctx, req.ID) {
			return nil, err
		}
	}
	s.emitAudit(ctx, actor.UserID, models.AuditActionPrintCancel, req.ID, nil)
	s.invalidateDashboards(ctx)
	return s.Get(ctx, actor, id)
}

// Execute sends an approved print to the executor. The print and its usage
// are reserved in a committed transaction first; the executor is called
// outside it and a refusal releases the reservation. Never retried.
func (s *PrintService) Execute(ctx context.Context, actor *models.JWTClaims, id string) (*dto.PrintJobResponse, error) {
	req, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if req.Status != models.PrintStatusApproved || req.Classification == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "only approved prints can be executed")
	}

	decision, rule, err := s.eval.evaluate(ctx, req, *req.Classification, req.DuplicateSimilarity)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		s.deps.Metrics.RecordEvaluation(string(decision.Reason))
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("print is no longer allowed: %s", decision.Reason))
	}

	link, err := s.documentURL(req)
	if err != nil {
		return nil, err
	}
	day, _ := s.eval.day()
	usage := models.UsageIncrement{
		UserEPF:     req.RequesterEPF,
		Day:         day,
		FileHash:    req.FileHash,
		Pages:       req.Pages * req.Copies,
		Copies:      req.Copies,
		MaxAttempts: rule.MaxAttemptsPerDay,
		Enforce:     !req.Exempt,
	}

	if err := s.reserveExecution(ctx, req.ID, usage); err != nil {
		return nil, err
	}

	jobID, execErr := s.deps.Executor.Execute(ctx, ExecuteJob{
		RequestID:   req.ID,
		DocumentURL: link,
		Copies:      req.Copies,
		Color:       req.Color,
		UserEPF:     req.RequesterEPF,
	})
	s.deps.Metrics.RecordExecution(execErr)
	if execErr != nil {
		s.logger.Warn("print execution failed", zap.String("print_id", req.ID), zap.Error(execErr))
		// release even when the caller has gone away
		if err := s.releaseExecution(context.WithoutCancel(ctx), req.ID, usage); err != nil {
			s.logger.Error("failed to release print reservation", zap.String("print_id", req.ID), zap.Error(err))
		}
		var appErr *appErrors.Error
		if errors.As(execErr, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Internal(execErr, "failed to execute print")
	}

	if err := s.deps.Prints.Transition(ctx, repository.TransitionParams{
		ID:            req.ID,
		From:          []models.PrintStatus{models.PrintStatusExecuted},
		To:            models.PrintStatusExecuted,
		ExecutorJobID: &jobID,
	}); err != nil {
		s.logger.Warn("failed to record executor job", zap.String("print_id", req.ID), zap.String("job_id", jobID), zap.Error(err))
	}

	s.emitAudit(ctx, actor.UserID, models.AuditActionPrintExecute, req.ID, map[string]any{"copies": req.Copies, "exempt": req.Exempt, "jobId": jobID})
	s.invalidateDashboards(ctx)
	return s.Get(ctx, actor, id)
}

func (s *PrintService) reserveExecution(ctx context.Context, id string, usage models.UsageIncrement) error {
	executedAt := s.now().UTC()
	return s.deps.Tx.WithinTx(ctx, func(ext sqlx.ExtContext) error {
		if err := s.deps.Prints.TransitionTx(ctx, ext, repository.TransitionParams{
			ID:         id,
			From:       []models.PrintStatus{models.PrintStatusApproved},
			To:         models.PrintStatusExecuted,
			ExecutedAt: &executedAt,
		}); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrPreconditionFailed, "print request changed, reload and retry")
			}
			return appErrors.Internal(err, "failed to mark print executed")
		}
		if _, err := s.deps.Usage.IncrementTx(ctx, ext, usage); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrPreconditionFailed, "daily print limit reached")
			}
			return appErrors.Internal(err, "failed to record usage")
		}
		return nil
	})
}

func (s *PrintService) releaseExecution(ctx context.Context, id string, usage models.UsageIncrement) error {
	return s.deps.Tx.WithinTx(ctx, func(ext sqlx.ExtContext) error {
		if err := s.deps.Prints.TransitionTx(ctx, ext, repository.TransitionParams{
			ID:              id,
			From:            []models.PrintStatus{models.PrintStatusExecuted},
			To:              models.PrintStatusApproved,
			ClearExecutedAt: true,
		}); err != nil {
			return fmt.Errorf("reopen print request: %w", err)
		}
		return s.deps.Usage.ReleaseTx(ctx, ext, usage)
	})
}

// Share issues a signed download link in place of printing and cancels the print.
func (s *PrintService) Share(ctx context.Context, actor *models.JWTClaims, id string) (*dto.ShareResponse, error) {
	req, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if req.Status != models.PrintStatusApproved && req.Status != models.PrintStatusBlocked {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "only classified prints can be shared")
	}
	token, expiresAt, err := s.deps.Signer.Sign(req.ID, req.DocumentKey)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign document link")
	}
	if err := s.cancel(ctx, req.ID, reasonSharedDigitally); err != nil {
		return nil, err
	}
	s.emitAudit(ctx, actor.UserID, models.AuditActionPrintShare, req.ID, map[string]any{"expiresAt": expiresAt})
	s.invalidateDashboards(ctx)
	return &dto.ShareResponse{URL: s.downloadURL(token), ExpiresAt: expiresAt}, nil
}

// Download opens the document behind a signed token.
func (s *PrintService) Download(ctx context.Context, token string) (io.ReadCloser, *models.PrintRequest, error) {
	link, err := s.deps.Signer.Verify(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "download link expired")
		}
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid download link")
	}
	req, err := s.load(ctx, link.ResourceID)
	if err != nil {
		return nil, nil, err
	}
	if req.DocumentKey != link.Key {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid download link")
	}
	rc, err := s.deps.Store.Open(ctx, req.DocumentKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, nil, appErrors.Internal(err, "failed to open document")
	}
	return rc, req, nil
}

// RecoverPending re-queues prints left in pending_classification, e.g. after a restart.
func (s *PrintService) RecoverPending(ctx context.Context) {
	pending, err := s.deps.Prints.List(ctx, models.PrintFilter{Status: models.PrintStatusPendingClassification, Limit: 200})
	if err != nil {
		s.logger.Warn("failed to list pending prints", zap.Error(err))
		return
	}
	for _, req := range pending {
		if err := s.deps.Queue.Enqueue(jobs.Job{ID: req.ID, Type: ClassificationJobType}); err != nil {
			s.logger.Warn("failed to requeue pending print", zap.String("print_id", req.ID), zap.Error(err))
		}
	}
}

func (s *PrintService) cancel(ctx context.Context, id, reason string) error {
	err := s.deps.Prints.Transition(ctx, repository.TransitionParams{
		ID: id,
		From: []models.PrintStatus{
			models.PrintStatusPendingClassification,
			models.PrintStatusBlocked,
			models.PrintStatusApproved,
		},
		To:            models.PrintStatusCancelled,
		FailureReason: &reason,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "print request can no longer be cancelled")
		}
		return appErrors.Internal(err, "failed to cancel print request")
	}
	return nil
}

func (s *PrintService) isCancelled(ctx context.Context, id string) bool {
	req, err := s.deps.Prints.GetByID(ctx, id)
	return err == nil && req.Status == models.PrintStatusCancelled
}

func (s *PrintService) documentURL(req *models.PrintRequest) (string, error) {
	token, _, err := s.deps.Signer.Sign(req.ID, req.DocumentKey)
	if err != nil {
		return "", appErrors.Internal(err, "failed to sign document link")
	}
	return s.downloadURL(token), nil
}

func (s *PrintService) downloadURL(token string) string {
	return s.cfg.PublicBaseURL + "/print/documents/" + token
}

func (s *PrintService) load(ctx context.Context, id string) (*models.PrintRequest, error) {
	req, err := s.deps.Prints.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "print request not found")
		}
		return nil, appErrors.Internal(err, "failed to load print request")
	}
	return req, nil
}

func (s *PrintService) owned(ctx context.Context, actor *models.JWTClaims, id string) (*models.PrintRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.RequesterEPF != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return req, nil
}

func (s *PrintService) mimeAllowed(contentType string) bool {
	if len(s.cfg.AllowedMIMEs) == 0 {
		return true
	}
	for _, allowed := range s.cfg.AllowedMIMEs {
		if strings.EqualFold(allowed, contentType) {
			return true
		}
	}
	return false
}

func (s *PrintService) emitAudit(ctx context.Context, actorID, action, printID string, values any) {
	if s.deps.Audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   models.AuditResourcePrint,
		ResourceID: &printID,
		NewValues:  marshalAudit(values),
		IPAddress:  "system",
		UserAgent:  "print-service",
	}
	if err := s.deps.Audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func (s *PrintService) invalidateDashboards(ctx context.Context) {
	if s.deps.Cache == nil {
		return
	}
	s.deps.Cache.InvalidateDashboards(ctx)
}

// printEvaluator gathers fresh policy and usage for one evaluation.
type printEvaluator struct {
	prints   printStore
	usage    usageStore
	policies effectivePolicyReader
	loc      *time.Location
	now      func() time.Time
}

// day returns the policy day key and its start instant.
func (e *printEvaluator) day() (string, time.Time) {
	local := e.now().In(e.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, e.loc)
	return start.Format("2006-01-02"), start
}

func (e *printEvaluator) evaluate(ctx context.Context, req *models.PrintRequest, label models.Classification, similarity float64) (policy.Decision, models.PolicyRule, error) {
	rule, err := e.policies.EffectivePolicy(ctx, req.RequesterEPF)
	if err != nil {
		return policy.Decision{}, rule, err
	}
	day, _ := e.day()
	counter, err := e.usage.Get(ctx, req.RequesterEPF, day)
	if err != nil {
		return policy.Decision{}, rule, appErrors.Internal(err, "failed to load usage")
	}
	copiesToday, err := e.usage.CopiesForDocument(ctx, req.RequesterEPF, day, req.FileHash)
	if err != nil {
		return policy.Decision{}, rule, appErrors.Internal(err, "failed to load document copies")
	}
	decision, err := policy.Evaluate(policy.Input{
		Classification:      label,
		RequestedCopies:     req.Copies,
		CopiesToday:         copiesToday,
		RequestedPages:      req.Pages,
		Color:               req.Color,
		Usage:               policy.Usage{AttemptsToday: counter.Attempts, PagesToday: counter.Pages},
		Policy:              rule,
		DuplicateSimilarity: similarity,
		Exempt:              req.Exempt,
	})
	return decision, rule, err
}

// similarity bumps the classifier score to 100 for an exact re-print today.
func (e *printEvaluator) similarity(ctx context.Context, req *models.PrintRequest, reported float64) (float64, error) {
	_, start := e.day()
	printed, err := e.prints.ExecutedHashToday(ctx, req.RequesterEPF, req.FileHash, start)
	if err != nil {
		return reported, err
	}
	if printed {
		return 100, nil
	}
	return reported, nil
}

func canView(actor *models.JWTClaims, req *models.PrintRequest) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if req.RequesterEPF == actor.UserID || actor.Role == models.RoleAdmin || actor.Role.IsSeniorApprover() {
		return nil
	}
	return appErrors.ErrForbidden
}

func toPrintJobResponse(req *models.PrintRequest) *dto.PrintJobResponse {
	resp := &dto.PrintJobResponse{PrintRequest: *req}
	if req.Classification != nil && !req.Status.Terminal() {
		resp.DuplicateWarning = policy.DuplicateWarningFor(*req.Classification, req.DuplicateSimilarity)
		if resp.DuplicateWarning != nil && req.Warning != nil {
			resp.DuplicateWarning.Message = *req.Warning
		}
	}
	return resp
}

func detectContentType(declared string, data []byte) string {
	if mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(declared)); err == nil && mediaType != "application/octet-stream" {
		return mediaType
	}
	sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return sniffed
}

func countPages(contentType string, data []byte) (int, error) {
	switch {
	case contentType == "application/pdf":
		return api.PageCount(bytes.NewReader(data), nil)
	case strings.HasPrefix(contentType, "text/"):
		lines := bytes.Count(data, []byte("\n")) + 1
		return (lines + textLinesPerPage - 1) / textLinesPerPage, nil
	default:
		return 1, nil
	}
}
