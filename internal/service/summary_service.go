package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	defaultSummaryModel = "gemini-2.0-flash"
	maxSummaryInput     = 12000
)

// Summarizer produces a short executive summary of an official document.
type Summarizer interface {
	Summarize(ctx context.Context, fileName, text string) (string, error)
}

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GenAISummarizer asks Gemini for the summary.
type GenAISummarizer struct {
	models contentGenerator
	model  string
	logger *zap.Logger
}

// NewGenAISummarizer creates a summarizer backed by the Gemini API.
func NewGenAISummarizer(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GenAISummarizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("summary api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGenAISummarizer(client.Models, model, logger), nil
}

func newGenAISummarizer(models contentGenerator, model string, logger *zap.Logger) *GenAISummarizer {
	if model == "" {
		model = defaultSummaryModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenAISummarizer{models: models, model: model, logger: logger}
}

// Summarize returns a three sentence summary. Empty text yields an empty summary.
func (s *GenAISummarizer) Summarize(ctx context.Context, fileName, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	if len(text) > maxSummaryInput {
		text = text[:maxSummaryInput]
		for !utf8.ValidString(text) {
			text = text[:len(text)-1]
		}
	}
	prompt := fmt.Sprintf("Write an executive summary of at most three sentences for the university document %q.\n\n%s", fileName, text)
	resp, err := s.models.GenerateContent(ctx, s.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}
	summary := strings.TrimSpace(resp.Text())
	s.logger.Debug("document summarised", zap.String("file_name", fileName), zap.Int("chars", len(summary)))
	return summary, nil
}
