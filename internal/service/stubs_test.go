package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/policy"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/repository"
	appErrors "github.com/s22001503-hash/ouslpms-monorepo/pkg/errors"
	"github.com/s22001503-hash/ouslpms-monorepo/pkg/jobs"
)

// txStub runs fn without a database and replays registered undo steps when it fails.
type txStub struct {
	calls int
	undo  []func()
}

func (t *txStub) WithinTx(ctx context.Context, fn func(ext sqlx.ExtContext) error) error {
	t.calls++
	t.undo = nil
	if err := fn(nil); err != nil {
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
		t.undo = nil
		return err
	}
	t.undo = nil
	return nil
}

func (t *txStub) onRollback(f func()) {
	if t != nil {
		t.undo = append(t.undo, f)
	}
}

type auditRecorder struct {
	logs []*models.AuditLog
}

func (a *auditRecorder) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func (a *auditRecorder) actions() []string {
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

type cacheRecorder struct {
	calls int
}

func (c *cacheRecorder) InvalidateDashboards(ctx context.Context) {
	c.calls++
}

type policyStoreStub struct {
	global    *models.PolicyRule
	overrides map[string]*models.PolicyRule
	tx        *txStub
}

func newPolicyStoreStub(tx *txStub) *policyStoreStub {
	return &policyStoreStub{
		global: &models.PolicyRule{
			ID:                 "global",
			Scope:              models.PolicyScopeGlobal,
			MaxAttemptsPerDay:  5,
			MaxCopiesPerDoc:    5,
			MaxPagesPerJob:     models.IntPtr(100),
			DailyQuota:         models.IntPtr(500),
			AllowColorPrinting: models.BoolPtr(false),
		},
		overrides: make(map[string]*models.PolicyRule),
		tx:        tx,
	}
}

func (p *policyStoreStub) GetGlobal(ctx context.Context) (*models.PolicyRule, error) {
	if p.global == nil {
		return nil, sql.ErrNoRows
	}
	rule := *p.global
	return &rule, nil
}

func (p *policyStoreStub) GetOverride(ctx context.Context, epf string) (*models.PolicyRule, error) {
	rule, ok := p.overrides[epf]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *rule
	return &copy, nil
}

func (p *policyStoreStub) ListOverrides(ctx context.Context) ([]models.SpecialPolicy, error) {
	keys := make([]string, 0, len(p.overrides))
	for k := range p.overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]models.SpecialPolicy, 0, len(keys))
	for _, k := range keys {
		out = append(out, models.SpecialPolicy{PolicyRule: *p.overrides[k]})
	}
	return out, nil
}

func (p *policyStoreStub) ReplaceGlobalTx(ctx context.Context, ext sqlx.ExtContext, values models.PolicyValues, proposalID, modifiedBy string) (*models.PolicyRule, error) {
	prev := *p.global
	rule := policy.ApplyValues(prev, values)
	rule.ProposalID = &proposalID
	rule.ModifiedBy = &modifiedBy
	p.global = &rule
	p.tx.onRollback(func() { p.global = &prev })
	out := rule
	return &out, nil
}

func (p *policyStoreStub) UpsertOverrideTx(ctx context.Context, ext sqlx.ExtContext, rule *models.PolicyRule) (*models.PolicyRule, error) {
	epf := *rule.UserEPF
	prev, existed := p.overrides[epf]
	stored := *rule
	stored.Scope = models.PolicyScopeUserOverride
	p.overrides[epf] = &stored
	p.tx.onRollback(func() {
		if existed {
			p.overrides[epf] = prev
		} else {
			delete(p.overrides, epf)
		}
	})
	out := stored
	return &out, nil
}

func (p *policyStoreStub) DeleteOverrideTx(ctx context.Context, ext sqlx.ExtContext, epf string) error {
	prev, ok := p.overrides[epf]
	if !ok {
		return sql.ErrNoRows
	}
	delete(p.overrides, epf)
	p.tx.onRollback(func() { p.overrides[epf] = prev })
	return nil
}

type proposalStoreStub struct {
	items map[string]*models.PolicyProposal
	seq   int
	tx    *txStub
}

func newProposalStoreStub(tx *txStub) *proposalStoreStub {
	return &proposalStoreStub{items: make(map[string]*models.PolicyProposal), tx: tx}
}

func (p *proposalStoreStub) Create(ctx context.Context, proposal *models.PolicyProposal) error {
	return p.CreateTx(ctx, nil, proposal)
}

func (p *proposalStoreStub) CreateTx(ctx context.Context, ext sqlx.ExtContext, proposal *models.PolicyProposal) error {
	if proposal.Type == models.ProposalTypeGlobalChange {
		if pending, _ := p.HasPending(ctx, proposal.ProposedBy, proposal.Type); pending {
			return fmt.Errorf("create proposal: %w", repository.ErrDuplicate)
		}
	}
	p.seq++
	proposal.ID = fmt.Sprintf("proposal-%d", p.seq)
	if proposal.Status == "" {
		proposal.Status = models.ProposalStatusPending
	}
	proposal.CreatedAt = time.Now().UTC()
	stored := *proposal
	p.items[proposal.ID] = &stored
	return nil
}

func (p *proposalStoreStub) GetByID(ctx context.Context, id string) (*models.PolicyProposal, error) {
	item, ok := p.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *item
	return &copy, nil
}

func (p *proposalStoreStub) List(ctx context.Context, filter models.ProposalFilter) ([]models.PolicyProposal, error) {
	out := make([]models.PolicyProposal, 0)
	for _, item := range p.items {
		if filter.Type != "" && item.Type != filter.Type {
			continue
		}
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		if filter.ProposedBy != "" && item.ProposedBy != filter.ProposedBy {
			continue
		}
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (p *proposalStoreStub) HasPending(ctx context.Context, proposedBy string, proposalType models.ProposalType) (bool, error) {
	for _, item := range p.items {
		if item.ProposedBy == proposedBy && item.Type == proposalType && item.Status == models.ProposalStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (p *proposalStoreStub) DecideTx(ctx context.Context, ext sqlx.ExtContext, decision models.ProposalDecision) error {
	item, ok := p.items[decision.ProposalID]
	if !ok || item.Status != models.ProposalStatusPending {
		return sql.ErrNoRows
	}
	prev := *item
	item.Status = decision.Status
	item.DecidedBy = &decision.DecidedBy
	item.DecidedAt = &decision.DecidedAt
	item.DecisionNotes = decision.Notes
	p.tx.onRollback(func() { *item = prev })
	return nil
}

type userStoreStub struct {
	users map[string]*models.User
}

func newUserStoreStub(users ...models.User) *userStoreStub {
	s := &userStoreStub{users: make(map[string]*models.User)}
	for i := range users {
		u := users[i]
		s.users[u.EPF] = &u
	}
	return s
}

func (u *userStoreStub) FindByEPF(ctx context.Context, epf string) (*models.User, error) {
	user, ok := u.users[epf]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *user
	return &out, nil
}

func (u *userStoreStub) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	out := make([]models.User, 0, len(u.users))
	for _, user := range u.users {
		if filter.Role != nil && user.Role != *filter.Role {
			continue
		}
		out = append(out, *user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EPF < out[j].EPF })
	return out, len(out), nil
}

func (u *userStoreStub) Create(ctx context.Context, user *models.User) error {
	for _, existing := range u.users {
		if existing.EPF == user.EPF || existing.Email == user.Email {
			return fmt.Errorf("create user %s: %w", user.EPF, repository.ErrDuplicate)
		}
	}
	stored := *user
	u.users[user.EPF] = &stored
	return nil
}

func (u *userStoreStub) Delete(ctx context.Context, epf string) error {
	if _, ok := u.users[epf]; !ok {
		return sql.ErrNoRows
	}
	delete(u.users, epf)
	return nil
}

func (u *userStoreStub) UpdatePassword(ctx context.Context, epf, passwordHash string, updatedAt time.Time) error {
	user, ok := u.users[epf]
	if !ok {
		return sql.ErrNoRows
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = updatedAt
	return nil
}

type approvalStoreStub struct {
	items map[string]*models.ApprovalRequest
	seq   int
	tx    *txStub
}

func newApprovalStoreStub(tx *txStub) *approvalStoreStub {
	return &approvalStoreStub{items: make(map[string]*models.ApprovalRequest), tx: tx}
}

func (a *approvalStoreStub) Create(ctx context.Context, req *models.ApprovalRequest) error {
	for _, item := range a.items {
		if item.PrintRequestID == req.PrintRequestID && item.Status != models.ApprovalStatusRejected {
			return fmt.Errorf("create approval request: %w", repository.ErrDuplicate)
		}
	}
	a.seq++
	req.ID = fmt.Sprintf("approval-%d", a.seq)
	if req.Status == "" {
		req.Status = models.ApprovalStatusCreated
	}
	stored := *req
	a.items[req.ID] = &stored
	return nil
}

func (a *approvalStoreStub) GetByID(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	item, ok := a.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *item
	return &copy, nil
}

func (a *approvalStoreStub) List(ctx context.Context, filter models.ApprovalFilter) ([]models.ApprovalRequest, error) {
	out := make([]models.ApprovalRequest, 0)
	for _, item := range a.items {
		if filter.RequesterEPF != "" && item.RequesterEPF != filter.RequesterEPF {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, item.Status) {
			continue
		}
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (a *approvalStoreStub) UpdateJustification(ctx context.Context, params repository.UpdateJustificationParams) error {
	item, ok := a.items[params.ID]
	if !ok || item.Status != params.From {
		return sql.ErrNoRows
	}
	item.Status = params.To
	item.Justification = params.Justification
	if params.SubmittedAt != nil {
		item.SubmittedAt = params.SubmittedAt
	}
	return nil
}

func (a *approvalStoreStub) DecideTx(ctx context.Context, ext sqlx.ExtContext, params repository.ApprovalDecisionParams) error {
	item, ok := a.items[params.ID]
	if !ok || item.Status != models.ApprovalStatusPending {
		return sql.ErrNoRows
	}
	prev := *item
	item.Status = params.Status
	item.DecidedBy = &params.DecidedBy
	item.DecidedAt = &params.DecidedAt
	item.DecisionNotes = params.Notes
	a.tx.onRollback(func() { *item = prev })
	return nil
}

func containsStatus(list []models.ApprovalStatus, status models.ApprovalStatus) bool {
	for _, s := range list {
		if s == status {
			return true
		}
	}
	return false
}

type printStoreStub struct {
	mu    sync.Mutex
	items map[string]*models.PrintRequest
	tx    *txStub
}

func newPrintStoreStub(tx *txStub) *printStoreStub {
	return &printStoreStub{items: make(map[string]*models.PrintRequest), tx: tx}
}

func (p *printStoreStub) Create(ctx context.Context, req *models.PrintRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if req.Status == "" {
		req.Status = models.PrintStatusPendingClassification
	}
	req.CreatedAt = time.Now().UTC()
	stored := *req
	p.items[req.ID] = &stored
	return nil
}

func (p *printStoreStub) GetByID(ctx context.Context, id string) (*models.PrintRequest, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	item, ok := p.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *item
	return &copy, nil
}

func (p *printStoreStub) List(ctx context.Context, filter models.PrintFilter) ([]models.PrintRequest, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.PrintRequest, 0)
	for _, item := range p.items {
		if filter.RequesterEPF != "" && item.RequesterEPF != filter.RequesterEPF {
			continue
		}
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (p *printStoreStub) SaveOutcome(ctx context.Context, id string, outcome models.PrintOutcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	item, ok := p.items[id]
	if !ok || item.Status != models.PrintStatusPendingClassification {
		return sql.ErrNoRows
	}
	label := outcome.Classification
	item.Classification = &label
	item.Confidence = outcome.Confidence
	item.DuplicateSimilarity = outcome.DuplicateSimilarity
	item.Status = outcome.Status
	item.BlockReason = outcome.BlockReason
	item.BlockDetails = outcome.BlockDetails
	item.EscalationEligible = outcome.EscalationEligible
	item.Warning = outcome.Warning
	item.Summary = outcome.Summary
	return nil
}

func (p *printStoreStub) Transition(ctx context.Context, params repository.TransitionParams) error {
	return p.TransitionTx(ctx, nil, params)
}

func (p *printStoreStub) TransitionTx(ctx context.Context, ext sqlx.ExtContext, params repository.TransitionParams) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(params.From) == 0 {
		return fmt.Errorf("transition print request: no source status")
	}
	item, ok := p.items[params.ID]
	if !ok {
		return sql.ErrNoRows
	}
	allowed := false
	for _, from := range params.From {
		if item.Status == from {
			allowed = true
		}
	}
	if !allowed {
		return sql.ErrNoRows
	}
	prev := *item
	item.Status = params.To
	if params.FailureReason != nil {
		item.FailureReason = params.FailureReason
	}
	if params.Exempt != nil {
		item.Exempt = *params.Exempt
	}
	if params.ExecutorJobID != nil {
		item.ExecutorJobID = params.ExecutorJobID
	}
	if params.ExecutedAt != nil {
		item.ExecutedAt = params.ExecutedAt
	}
	if params.ClearExecutedAt {
		item.ExecutedAt = nil
	}
	p.tx.onRollback(func() {
		p.mu.Lock()
		*item = prev
		p.mu.Unlock()
	})
	return nil
}

func (p *printStoreStub) ExecutedHashToday(ctx context.Context, epf, fileHash string, dayStart time.Time) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, item := range p.items {
		if item.RequesterEPF == epf && item.FileHash == fileHash && item.Status == models.PrintStatusExecuted &&
			item.ExecutedAt != nil && !item.ExecutedAt.Before(dayStart) {
			return true, nil
		}
	}
	return false, nil
}

func (p *printStoreStub) put(req models.PrintRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items[req.ID] = &req
}

type usageStoreStub struct {
	counters map[string]*models.UsageCounter
	copies   map[string]int
	tx       *txStub
}

func newUsageStoreStub(tx *txStub) *usageStoreStub {
	return &usageStoreStub{counters: make(map[string]*models.UsageCounter), copies: make(map[string]int), tx: tx}
}

func (u *usageStoreStub) set(epf, day string, attempts, pages int) {
	u.counters[epf+"|"+day] = &models.UsageCounter{UserEPF: epf, Day: day, Attempts: attempts, Pages: pages}
}

func (u *usageStoreStub) Get(ctx context.Context, epf, day string) (*models.UsageCounter, error) {
	if c, ok := u.counters[epf+"|"+day]; ok {
		copy := *c
		return &copy, nil
	}
	return &models.UsageCounter{UserEPF: epf, Day: day}, nil
}

func (u *usageStoreStub) CopiesForDocument(ctx context.Context, epf, day, fileHash string) (int, error) {
	return u.copies[epf+"|"+day+"|"+fileHash], nil
}

func (u *usageStoreStub) IncrementTx(ctx context.Context, ext sqlx.ExtContext, inc models.UsageIncrement) (*models.UsageCounter, error) {
	key := inc.UserEPF + "|" + inc.Day
	counter, ok := u.counters[key]
	if !ok {
		counter = &models.UsageCounter{UserEPF: inc.UserEPF, Day: inc.Day}
	}
	if inc.Enforce && counter.Attempts >= inc.MaxAttempts {
		return nil, sql.ErrNoRows
	}
	prev := *counter
	counter.Attempts++
	counter.Pages += inc.Pages
	u.counters[key] = counter
	copyKey := key + "|" + inc.FileHash
	u.copies[copyKey] += inc.Copies
	u.tx.onRollback(func() {
		*counter = prev
		u.copies[copyKey] -= inc.Copies
	})
	out := *counter
	return &out, nil
}

func (u *usageStoreStub) ReleaseTx(ctx context.Context, ext sqlx.ExtContext, inc models.UsageIncrement) error {
	counter, ok := u.counters[inc.UserEPF+"|"+inc.Day]
	if !ok {
		return sql.ErrNoRows
	}
	counter.Attempts--
	counter.Pages -= inc.Pages
	u.copies[inc.UserEPF+"|"+inc.Day+"|"+inc.FileHash] -= inc.Copies
	return nil
}

type printQueueStub struct {
	jobs      []jobs.Job
	cancelled []string
	err       error
	onCancel  func(jobID string)
}

func (q *printQueueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *printQueueStub) Cancel(jobID string) bool {
	q.cancelled = append(q.cancelled, jobID)
	if q.onCancel != nil {
		q.onCancel(jobID)
	}
	return true
}

type executorStub struct {
	jobs   []ExecuteJob
	err    error
	during func()
}

func (e *executorStub) Execute(ctx context.Context, job ExecuteJob) (string, error) {
	if e.during != nil {
		e.during()
	}
	if e.err != nil {
		return "", e.err
	}
	e.jobs = append(e.jobs, job)
	return fmt.Sprintf("printer-%d", len(e.jobs)), nil
}

type classifierStub struct {
	result ClassificationResult
	err    error
	calls  int
	last   ClassifyRequest
	during func()
}

func (c *classifierStub) Classify(ctx context.Context, req ClassifyRequest) (*ClassificationResult, error) {
	c.calls++
	c.last = req
	if c.during != nil {
		c.during()
	}
	if c.err != nil {
		return nil, c.err
	}
	out := c.result
	return &out, nil
}

type summarizerStub struct {
	summary string
}

func (s *summarizerStub) Summarize(ctx context.Context, fileName, text string) (string, error) {
	return s.summary, nil
}

func claims(epf string, role models.UserRole) *models.JWTClaims {
	return &models.JWTClaims{UserID: epf, Role: role}
}

// memoryCacheRepo is a JSON round-tripping CacheRepository.
type memoryCacheRepo struct {
	store map[string][]byte
}

func (m *memoryCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	payload, ok := m.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (m *memoryCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if m.store == nil {
		m.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.store[key] = payload
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.store {
		if strings.HasPrefix(key, prefix) {
			delete(m.store, key)
		}
	}
	return nil
}
