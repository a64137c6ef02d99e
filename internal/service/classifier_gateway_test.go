package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
	appErrors "github.com/s22001503-hash/ouslpms-monorepo/pkg/errors"
)

func newKeywordFallback(t *testing.T) *KeywordClassifier {
	t.Helper()
	k, err := NewKeywordClassifier("", nil)
	require.NoError(t, err)
	return k
}

func TestClassifierGatewayRemoteLabel(t *testing.T) {
	var received ClassifyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/classify", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"classification":"office","confidence":0.91,"duplicateSimilarity":87.5}`))
	}))
	defer srv.Close()

	gw := NewClassifierGateway(srv.URL, time.Second, nil)
	result, err := gw.Classify(context.Background(), ClassifyRequest{FileName: "minutes.pdf", FileHash: "abc", UserEPF: "50005", Pages: 3})
	require.NoError(t, err)
	assert.Equal(t, models.ClassificationOfficial, result.Label)
	assert.Equal(t, 87.5, result.DuplicateSimilarity)
	assert.Equal(t, ClassifierSourceRemote, result.Source)
	assert.Equal(t, "50005", received.UserEPF)
	assert.Equal(t, 3, received.Pages)
}

func TestClassifierGatewayUnknownLabel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"classification":"spam","confidence":0.4}`))
	}))
	defer srv.Close()

	gw := NewClassifierGateway(srv.URL, time.Second, nil, WithClassifierFallback(newKeywordFallback(t)))
	_, err := gw.Classify(context.Background(), ClassifyRequest{FileName: "x.pdf"})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInvalidClassification)
}

func TestClassifierGatewayFallsBackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	metrics := NewMetricsService()
	gw := NewClassifierGateway(srv.URL, time.Second, nil,
		WithClassifierFallback(newKeywordFallback(t)),
		WithClassifierMetrics(metrics),
	)
	result, err := gw.Classify(context.Background(), ClassifyRequest{FileName: "salary_sheet.pdf"})
	require.NoError(t, err)
	assert.Equal(t, models.ClassificationConfidential, result.Label)
	assert.Equal(t, ClassifierSourceKeyword, result.Source)
	assert.EqualValues(t, 1, metrics.Snapshot().ClassifierFallbacks)
}

func TestClassifierGatewayNetworkErrorWithoutFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	gw := NewClassifierGateway(srv.URL, time.Second, nil)
	_, err := gw.Classify(context.Background(), ClassifyRequest{FileName: "x.pdf"})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrNetwork)
}

func TestClassifierGatewayTimeoutFallsBack(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	gw := NewClassifierGateway(srv.URL, 50*time.Millisecond, nil, WithClassifierFallback(newKeywordFallback(t)))
	result, err := gw.Classify(context.Background(), ClassifyRequest{FileName: "quarterly report.pdf"})
	require.NoError(t, err)
	assert.Equal(t, ClassifierSourceKeyword, result.Source)
	assert.Equal(t, models.ClassificationOfficial, result.Label)
}

func TestClassifierGatewayCallerCancelDoesNotFallBack(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	gw := NewClassifierGateway(srv.URL, 5*time.Second, nil,
		WithClassifierHTTPClient(srv.Client()),
		WithClassifierFallback(newKeywordFallback(t)),
	)
	_, err := gw.Classify(ctx, ClassifyRequest{FileName: "x.pdf"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestClassifierGatewayWithoutURLUsesFallback(t *testing.T) {
	gw := NewClassifierGateway("", time.Second, nil, WithClassifierFallback(newKeywordFallback(t)))
	result, err := gw.Classify(context.Background(), ClassifyRequest{FileName: "birthday party invitation.docx"})
	require.NoError(t, err)
	assert.Equal(t, models.ClassificationPersonal, result.Label)
}

func TestNormalizeClassification(t *testing.T) {
	cases := map[string]models.Classification{
		"office":       models.ClassificationOfficial,
		" Official ":   models.ClassificationOfficial,
		"sensitive":    models.ClassificationConfidential,
		"CONFIDENTIAL": models.ClassificationConfidential,
		"personal":     models.ClassificationPersonal,
	}
	for raw, want := range cases {
		got, ok := NormalizeClassification(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
	_, ok := NormalizeClassification("other")
	assert.False(t, ok)
}

func TestKeywordClassifierRules(t *testing.T) {
	k := newKeywordFallback(t)
	ctx := context.Background()

	res, err := k.Classify(ctx, ClassifyRequest{FileName: "notes.txt", Text: "meeting agenda and project report, also my family photo"})
	require.NoError(t, err)
	assert.Equal(t, models.ClassificationOfficial, res.Label)

	res, err = k.Classify(ctx, ClassifyRequest{FileName: "notes.txt", Text: "department budget summary"})
	require.NoError(t, err)
	assert.Equal(t, models.ClassificationConfidential, res.Label)

	res, err = k.Classify(ctx, ClassifyRequest{FileName: "scan.pdf"})
	require.NoError(t, err)
	assert.Equal(t, models.ClassificationOfficial, res.Label)
	assert.Equal(t, 0.5, res.Confidence)
}

func TestKeywordClassifierReloadsRulesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("personal:\n  - invoice\n"), 0o600))

	k, err := NewKeywordClassifier(path, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, k.Watch(ctx))
	defer k.Close()

	res, err := k.Classify(ctx, ClassifyRequest{FileName: "invoice.pdf"})
	require.NoError(t, err)
	assert.Equal(t, models.ClassificationPersonal, res.Label)

	require.NoError(t, os.WriteFile(path, []byte("sensitive:\n  - invoice\n"), 0o600))
	require.Eventually(t, func() bool {
		res, err := k.Classify(ctx, ClassifyRequest{FileName: "invoice.pdf"})
		return err == nil && res.Label == models.ClassificationConfidential
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"invoice"}, k.Rules().Sensitive)

	require.NoError(t, os.WriteFile(path, []byte("sensitive: [\n"), 0o600))
	assert.Error(t, k.Reload())
	assert.Equal(t, []string{"invoice"}, k.Rules().Sensitive, "a broken file keeps the previous rules")
}

func TestParseKeywordRulesRejectsEmpty(t *testing.T) {
	_, err := ParseKeywordRules([]byte("sensitive: []\n"))
	require.Error(t, err)
}
