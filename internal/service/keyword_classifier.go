package service

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
)

//go:embed rules/keywords.yaml
var defaultKeywordRules []byte

// KeywordRules lists the phrases scored by the offline classifier.
type KeywordRules struct {
	Sensitive []string `yaml:"sensitive"`
	Office    []string `yaml:"office"`
	Personal  []string `yaml:"personal"`
}

// ParseKeywordRules decodes YAML rules and lower-cases every phrase.
func ParseKeywordRules(data []byte) (KeywordRules, error) {
	var rules KeywordRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return KeywordRules{}, fmt.Errorf("parse keyword rules: %w", err)
	}
	if len(rules.Sensitive)+len(rules.Office)+len(rules.Personal) == 0 {
		return KeywordRules{}, fmt.Errorf("parse keyword rules: no keywords defined")
	}
	rules.Sensitive = normalizeKeywords(rules.Sensitive)
	rules.Office = normalizeKeywords(rules.Office)
	rules.Personal = normalizeKeywords(rules.Personal)
	return rules, nil
}

// KeywordClassifier labels documents by keyword matches when the remote
// classifier is unavailable.
type KeywordClassifier struct {
	mu      sync.RWMutex
	rules   KeywordRules
	path    string
	logger  *zap.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewKeywordClassifier loads the embedded rules, or rulesFile when set.
func NewKeywordClassifier(rulesFile string, logger *zap.Logger) (*KeywordClassifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	k := &KeywordClassifier{path: rulesFile, logger: logger}
	if rulesFile == "" {
		rules, err := ParseKeywordRules(defaultKeywordRules)
		if err != nil {
			return nil, err
		}
		k.rules = rules
		return k, nil
	}
	if err := k.Reload(); err != nil {
		return nil, err
	}
	return k, nil
}

// Rules returns a copy of the active rules.
func (k *KeywordClassifier) Rules() KeywordRules {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return KeywordRules{
		Sensitive: append([]string(nil), k.rules.Sensitive...),
		Office:    append([]string(nil), k.rules.Office...),
		Personal:  append([]string(nil), k.rules.Personal...),
	}
}

// Reload re-reads the rules file. A broken file keeps the previous rules.
func (k *KeywordClassifier) Reload() error {
	if k.path == "" {
		return nil
	}
	data, err := os.ReadFile(k.path)
	if err != nil {
		return fmt.Errorf("read keyword rules: %w", err)
	}
	rules, err := ParseKeywordRules(data)
	if err != nil {
		return err
	}
	k.mu.Lock()
	k.rules = rules
	k.mu.Unlock()
	k.logger.Info("keyword rules loaded",
		zap.String("path", k.path),
		zap.Int("sensitive", len(rules.Sensitive)),
		zap.Int("office", len(rules.Office)),
		zap.Int("personal", len(rules.Personal)),
	)
	return nil
}

// Watch reloads the rules file whenever it is written or replaced. It is a
// no-op for the embedded rules and returns once the watcher is running.
func (k *KeywordClassifier) Watch(ctx context.Context) error {
	if k.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create rules watcher: %w", err)
	}
	// editors replace files on save, so watch the directory
	if err := watcher.Add(filepath.Dir(k.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch rules dir: %w", err)
	}
	k.watcher = watcher
	k.done = make(chan struct{})
	go k.run(ctx)
	return nil
}

// Close stops the watcher.
func (k *KeywordClassifier) Close() error {
	if k.watcher == nil {
		return nil
	}
	err := k.watcher.Close()
	<-k.done
	return err
}

func (k *KeywordClassifier) run(ctx context.Context) {
	defer close(k.done)
	target := filepath.Clean(k.path)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-k.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if err := k.Reload(); err != nil {
				k.logger.Warn("keyword rules reload failed", zap.String("path", k.path), zap.Error(err))
			}
		case err, ok := <-k.watcher.Errors:
			if !ok {
				return
			}
			k.logger.Warn("keyword rules watcher error", zap.Error(err))
		}
	}
}

// Classify scores the file name and extracted text against the rules.
func (k *KeywordClassifier) Classify(ctx context.Context, req ClassifyRequest) (*ClassificationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := strings.ToLower(req.FileName + "\n" + req.Text)

	k.mu.RLock()
	sensitive := countMatches(text, k.rules.Sensitive)
	office := countMatches(text, k.rules.Office)
	personal := countMatches(text, k.rules.Personal)
	k.mu.RUnlock()

	result := &ClassificationResult{Source: ClassifierSourceKeyword}
	switch {
	case sensitive > 0:
		result.Label = models.ClassificationConfidential
		result.Confidence = scoreConfidence(sensitive, 0)
	case office > personal:
		result.Label = models.ClassificationOfficial
		result.Confidence = scoreConfidence(office, personal)
	case personal > 0:
		result.Label = models.ClassificationPersonal
		result.Confidence = scoreConfidence(personal, office)
	default:
		result.Label = models.ClassificationOfficial
		result.Confidence = 0.5
	}
	return result, nil
}

func countMatches(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			n++
		}
	}
	return n
}

func scoreConfidence(winner, other int) float64 {
	c := 0.6 + 0.1*float64(winner-other)
	if c > 0.95 {
		return 0.95
	}
	return c
}

func normalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, kw := range in {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
