package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
	appErrors "github.com/s22001503-hash/ouslpms-monorepo/pkg/errors"
)

// Classification sources reported in results and metrics.
const (
	ClassifierSourceRemote  = "remote"
	ClassifierSourceKeyword = "keyword"
)

// ClassifyRequest is the document description sent to a classifier.
type ClassifyRequest struct {
	FileName string `json:"fileName"`
	FileHash string `json:"fileHash"`
	UserEPF  string `json:"userEpf"`
	Pages    int    `json:"pages"`
	Text     string `json:"text,omitempty"`
}

// ClassificationResult is a normalised classifier answer.
type ClassificationResult struct {
	Label               models.Classification
	Confidence          float64
	DuplicateSimilarity float64
	Source              string
}

// Classifier labels a document.
type Classifier interface {
	Classify(ctx context.Context, req ClassifyRequest) (*ClassificationResult, error)
}

type classifyResponse struct {
	Classification      string  `json:"classification"`
	Confidence          float64 `json:"confidence"`
	DuplicateSimilarity float64 `json:"duplicateSimilarity"`
}

// ClassifierGateway calls the remote classification service and falls back to
// the keyword classifier when the service cannot be reached.
type ClassifierGateway struct {
	baseURL  string
	timeout  time.Duration
	client   *http.Client
	fallback Classifier
	metrics  *MetricsService
	logger   *zap.Logger
}

// ClassifierGatewayOption configures the gateway.
type ClassifierGatewayOption func(*ClassifierGateway)

// WithClassifierHTTPClient swaps the HTTP client, mainly for tests.
func WithClassifierHTTPClient(client *http.Client) ClassifierGatewayOption {
	return func(g *ClassifierGateway) {
		if client != nil {
			g.client = client
		}
	}
}

// WithClassifierFallback sets the classifier used when the remote call fails.
func WithClassifierFallback(fallback Classifier) ClassifierGatewayOption {
	return func(g *ClassifierGateway) { g.fallback = fallback }
}

// WithClassifierMetrics records call latency and fallbacks.
func WithClassifierMetrics(m *MetricsService) ClassifierGatewayOption {
	return func(g *ClassifierGateway) { g.metrics = m }
}

// NewClassifierGateway builds a gateway for baseURL. An empty URL means the
// fallback answers every request.
func NewClassifierGateway(baseURL string, timeout time.Duration, logger *zap.Logger, opts ...ClassifierGatewayOption) *ClassifierGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	g := &ClassifierGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client:  &http.Client{},
		logger:  logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Classify asks the remote service for a label. Cancelling ctx aborts the call
// without falling back.
func (g *ClassifierGateway) Classify(ctx context.Context, req ClassifyRequest) (*ClassificationResult, error) {
	if g.baseURL == "" {
		return g.useFallback(ctx, req, errors.New("classifier url not configured"))
	}

	start := time.Now()
	result, err := g.classifyRemote(ctx, req)
	if g.metrics != nil {
		g.metrics.ObserveClassification(ClassifierSourceRemote, err, time.Since(start))
	}
	if err == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(err, appErrors.ErrInvalidClassification) {
		return nil, err
	}
	return g.useFallback(ctx, req, err)
}

func (g *ClassifierGateway) classifyRemote(ctx context.Context, req ClassifyRequest) (*ClassificationResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to encode classification request")
	}
	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, g.baseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to build classification request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, appErrors.Network(err, "classifier")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, appErrors.Network(fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))), "classifier")
	}

	var payload classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, appErrors.Network(fmt.Errorf("decode response: %w", err), "classifier")
	}
	label, ok := NormalizeClassification(payload.Classification)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidClassification, fmt.Sprintf("classifier returned unknown label %q", payload.Classification))
	}
	return &ClassificationResult{
		Label:               label,
		Confidence:          payload.Confidence,
		DuplicateSimilarity: payload.DuplicateSimilarity,
		Source:              ClassifierSourceRemote,
	}, nil
}

func (g *ClassifierGateway) useFallback(ctx context.Context, req ClassifyRequest, cause error) (*ClassificationResult, error) {
	if g.fallback == nil {
		var appErr *appErrors.Error
		if errors.As(cause, &appErr) {
			return nil, cause
		}
		return nil, appErrors.Network(cause, "classifier")
	}
	g.logger.Warn("classifier unavailable, using keyword rules",
		zap.String("file_hash", req.FileHash),
		zap.Error(cause),
	)
	start := time.Now()
	result, err := g.fallback.Classify(ctx, req)
	if g.metrics != nil {
		g.metrics.ObserveClassification(ClassifierSourceKeyword, err, time.Since(start))
	}
	return result, err
}

// NormalizeClassification maps classifier vocabulary onto the three labels.
func NormalizeClassification(raw string) (models.Classification, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "official", "office":
		return models.ClassificationOfficial, true
	case "personal":
		return models.ClassificationPersonal, true
	case "confidential", "sensitive":
		return models.ClassificationConfidential, true
	}
	return "", false
}
