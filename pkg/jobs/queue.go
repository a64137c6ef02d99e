package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job represents a queued background task.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// FailureHandler is invoked once a job has exhausted its retries.
type FailureHandler func(context.Context, Job, error)

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
	OnFailure  FailureHandler
}

// ErrCancelled is reported to the failure handler for jobs cancelled while running.
var ErrCancelled = errors.New("job cancelled")

// Queue is a lightweight in-memory job dispatcher backed by goroutines.
// Jobs can be cancelled by ID while queued or running.
type Queue struct {
	name      string
	handler   Handler
	onFailure FailureHandler

	workers    int
	bufferSize int
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger

	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool

	pending   map[string]struct{}
	cancelled map[string]struct{}
	running   map[string]context.CancelFunc
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 16
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:       name,
		handler:    handler,
		onFailure:  cfg.OnFailure,
		workers:    cfg.Workers,
		bufferSize: cfg.BufferSize,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger,
		jobs:       make(chan Job, cfg.BufferSize),
		pending:    make(map[string]struct{}),
		cancelled:  make(map[string]struct{}),
		running:    make(map[string]context.CancelFunc),
	}
}

// Start begins worker consumption. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i + 1)
	}
	q.started = true
	q.logger.Sugar().Infow("queue started", "queue", q.name, "workers", q.workers)
}

// Stop cancels workers and waits for them to exit.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Sugar().Infow("queue stopped", "queue", q.name)
}

// Enqueue pushes a job onto the queue.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	ctx := q.ctx
	started := q.started
	if started && job.ID != "" {
		q.pending[job.ID] = struct{}{}
	}
	q.mu.Unlock()

	if !started {
		return fmt.Errorf("queue %s not started", q.name)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		q.forget(job.ID)
		return fmt.Errorf("queue %s stopped: %w", q.name, ctx.Err())
	case q.jobs <- job:
		return nil
	}
}

// Cancel stops a queued or running job. It reports whether the job was known.
func (q *Queue) Cancel(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if cancel, ok := q.running[jobID]; ok {
		cancel()
		return true
	}
	if _, ok := q.pending[jobID]; ok {
		q.cancelled[jobID] = struct{}{}
		return true
	}
	return false
}

func (q *Queue) worker(workerID int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.run(workerID, job)
		}
	}
}

func (q *Queue) run(workerID int, job Job) {
	q.mu.Lock()
	delete(q.pending, job.ID)
	if _, skip := q.cancelled[job.ID]; skip {
		delete(q.cancelled, job.ID)
		q.mu.Unlock()
		q.logger.Sugar().Infow("job cancelled before start", "queue", q.name, "job_id", job.ID)
		return
	}
	jobCtx, cancel := context.WithCancel(q.ctx)
	if job.ID != "" {
		q.running[job.ID] = cancel
	}
	q.mu.Unlock()

	err := q.handler(jobCtx, job)

	q.mu.Lock()
	delete(q.running, job.ID)
	q.mu.Unlock()
	cancelled := jobCtx.Err() != nil && q.ctx.Err() == nil
	cancel()

	if err == nil {
		return
	}
	if cancelled {
		q.logger.Sugar().Infow("job cancelled while running", "queue", q.name, "worker", workerID, "job_id", job.ID)
		if q.onFailure != nil {
			q.onFailure(q.ctx, job, ErrCancelled)
		}
		return
	}
	q.handleFailure(job, err)
}

func (q *Queue) handleFailure(job Job, err error) {
	job.Attempt++
	if job.Attempt > q.maxRetries {
		q.logger.Sugar().Errorw("job exceeded retries", "queue", q.name, "job_id", job.ID, "type", job.Type, "error", err)
		if q.onFailure != nil && q.ctx.Err() == nil {
			q.onFailure(q.ctx, job, err)
		}
		return
	}
	q.logger.Sugar().Warnw("job failed, retrying", "queue", q.name, "job_id", job.ID, "type", job.Type, "attempt", job.Attempt, "error", err)

	q.mu.Lock()
	if job.ID != "" {
		q.pending[job.ID] = struct{}{}
	}
	q.mu.Unlock()

	q.wg.Add(1)
	go func(j Job) {
		defer q.wg.Done()
		timer := time.NewTimer(q.retryDelay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			q.forget(j.ID)
			return
		case <-timer.C:
			if err := q.Enqueue(j); err != nil {
				q.logger.Sugar().Errorw("failed to requeue job", "queue", q.name, "job_id", j.ID, "error", err)
			}
		}
	}(job)
}

func (q *Queue) forget(jobID string) {
	q.mu.Lock()
	delete(q.pending, jobID)
	delete(q.cancelled, jobID)
	q.mu.Unlock()
}
