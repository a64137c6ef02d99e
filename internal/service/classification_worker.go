package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/repository"
	"github.com/s22001503-hash/ouslpms-monorepo/pkg/jobs"
	"github.com/s22001503-hash/ouslpms-monorepo/pkg/storage"
)

const maxClassifierText = 64 * 1024

// ClassificationWorker bridges queue jobs to the classifier and evaluator.
type ClassificationWorker struct {
	prints     printStore
	store      storage.Store
	classifier Classifier
	summarizer Summarizer
	eval       *printEvaluator
	audit      auditLogger
	cache      dashboardInvalidator
	metrics    *MetricsService
	logger     *zap.Logger
}

// ClassificationWorkerOption configures optional collaborators.
type ClassificationWorkerOption func(*ClassificationWorker)

// WithSummarizer adds executive summaries to allowed official documents.
func WithSummarizer(s Summarizer) ClassificationWorkerOption {
	return func(w *ClassificationWorker) { w.summarizer = s }
}

// WithWorkerAudit records blocked prints in the audit log.
func WithWorkerAudit(a auditLogger) ClassificationWorkerOption {
	return func(w *ClassificationWorker) { w.audit = a }
}

// WithWorkerCache invalidates dashboards after each outcome.
func WithWorkerCache(c dashboardInvalidator) ClassificationWorkerOption {
	return func(w *ClassificationWorker) { w.cache = c }
}

// WithWorkerMetrics records evaluation outcomes.
func WithWorkerMetrics(m *MetricsService) ClassificationWorkerOption {
	return func(w *ClassificationWorker) { w.metrics = m }
}

// NewClassificationWorker constructs a worker.
func NewClassificationWorker(prints printStore, usage usageStore, policies effectivePolicyReader, store storage.Store, classifier Classifier, loc *time.Location, logger *zap.Logger, opts ...ClassificationWorkerOption) *ClassificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	w := &ClassificationWorker{
		prints:     prints,
		store:      store,
		classifier: classifier,
		eval:       &printEvaluator{prints: prints, usage: usage, policies: policies, loc: loc, now: time.Now},
		logger:     logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Handle classifies and evaluates one print request. Returning an error lets
// the queue retry.
func (w *ClassificationWorker) Handle(ctx context.Context, job jobs.Job) error {
	req, err := w.prints.GetByID(ctx, job.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			w.logger.Info("print request vanished before classification", zap.String("print_id", job.ID))
			return nil
		}
		return err
	}
	if req.Status != models.PrintStatusPendingClassification {
		return nil
	}

	text := w.extractText(ctx, req)
	result, err := w.classifier.Classify(ctx, ClassifyRequest{
		FileName: req.FileName,
		FileHash: req.FileHash,
		UserEPF:  req.RequesterEPF,
		Pages:    req.Pages,
		Text:     text,
	})
	if err != nil {
		return err
	}
	similarity, err := w.eval.similarity(ctx, req, result.DuplicateSimilarity)
	if err != nil {
		return err
	}
	decision, _, err := w.eval.evaluate(ctx, req, result.Label, similarity)
	if err != nil {
		return err
	}

	outcome := models.PrintOutcome{
		Classification:      result.Label,
		Confidence:          result.Confidence,
		DuplicateSimilarity: similarity,
		Status:              models.PrintStatusApproved,
		EscalationEligible:  decision.EscalationEligible,
	}
	if !decision.Allowed {
		reason, details := decision.Reason, decision.Details
		outcome.Status = models.PrintStatusBlocked
		outcome.BlockReason = &reason
		outcome.BlockDetails = &details
	}
	if decision.Warning != nil {
		msg := decision.Warning.Message
		outcome.Warning = &msg
	}
	if decision.Allowed && result.Label == models.ClassificationOfficial && w.summarizer != nil {
		summary, err := w.summarizer.Summarize(ctx, req.FileName, text)
		switch {
		case err != nil:
			w.logger.Warn("executive summary failed", zap.String("print_id", req.ID), zap.Error(err))
		case summary != "":
			outcome.Summary = &summary
		}
	}

	if err := w.prints.SaveOutcome(ctx, req.ID, outcome); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			w.logger.Info("print cancelled during classification", zap.String("print_id", req.ID))
			return nil
		}
		return err
	}

	w.metrics.RecordEvaluation(string(decision.Reason))
	w.logger.Info("print classified",
		zap.String("print_id", req.ID),
		zap.String("classification", string(result.Label)),
		zap.String("source", result.Source),
		zap.String("status", string(outcome.Status)),
	)
	if !decision.Allowed {
		w.emitBlocked(ctx, req, decision.Reason)
	}
	w.invalidateDashboards(ctx)
	return nil
}

// HandleFailure cancels a print whose classification exhausted its retries.
func (w *ClassificationWorker) HandleFailure(ctx context.Context, job jobs.Job, cause error) {
	reason := "classification failed: " + cause.Error()
	if errors.Is(cause, jobs.ErrCancelled) {
		reason = reasonCancelledByRequester
	}
	err := w.prints.Transition(ctx, repository.TransitionParams{
		ID:            job.ID,
		From:          []models.PrintStatus{models.PrintStatusPendingClassification},
		To:            models.PrintStatusCancelled,
		FailureReason: &reason,
	})
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		w.logger.Warn("failed to cancel unclassified print", zap.String("print_id", job.ID), zap.Error(err))
		return
	}
	w.invalidateDashboards(ctx)
}

// extractText returns the leading text of plain-text documents. Other formats
// are classified by name.
func (w *ClassificationWorker) extractText(ctx context.Context, req *models.PrintRequest) string {
	if !strings.HasPrefix(req.ContentType, "text/") || w.store == nil {
		return ""
	}
	rc, err := w.store.Open(ctx, req.DocumentKey)
	if err != nil {
		w.logger.Warn("failed to open document for classification", zap.String("print_id", req.ID), zap.Error(err))
		return ""
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxClassifierText))
	if err != nil {
		return ""
	}
	return strings.ToValidUTF8(string(data), "")
}

func (w *ClassificationWorker) emitBlocked(ctx context.Context, req *models.PrintRequest, reason models.BlockReason) {
	if w.audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     &req.RequesterEPF,
		Action:     models.AuditActionPrintBlocked,
		Resource:   models.AuditResourcePrint,
		ResourceID: &req.ID,
		NewValues:  marshalAudit(map[string]string{"reason": string(reason)}),
		IPAddress:  "system",
		UserAgent:  "classification-worker",
	}
	if err := w.audit.CreateAuditLog(ctx, entry); err != nil {
		w.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func (w *ClassificationWorker) invalidateDashboards(ctx context.Context) {
	if w.cache == nil {
		return
	}
	w.cache.InvalidateDashboards(ctx)
}
