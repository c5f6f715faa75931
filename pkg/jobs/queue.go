package jobs

import (
	"context"
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
	Enqueued time.Time
}

// Handler processes a job. The handler owns all failure reporting; the queue
// never re-runs a job because downstream ledger writes are not replay-safe.
type Handler func(context.Context, Job) error

// QueueConfig configures queue behaviour.
type QueueConfig struct {
	BufferSize int
	Logger     *zap.Logger
}

// Queue is a serial in-memory dispatcher: one goroutine consumes jobs in
// submission order, so two jobs never run concurrently.
type Queue struct {
	name    string
	handler Handler

	bufferSize int
	logger     *zap.Logger

	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 16
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:       name,
		handler:    handler,
		bufferSize: cfg.BufferSize,
		logger:     cfg.Logger,
		jobs:       make(chan Job, cfg.BufferSize),
	}
}

// Start begins serial consumption. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.wg.Add(1)
	go q.run()
	q.started = true
	q.logger.Sugar().Infow("queue started", "queue", q.name)
}

// Stop cancels the worker and waits for it to exit.
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
	q.mu.Unlock()

	if !started {
		return fmt.Errorf("queue %s not started", q.name)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("queue %s stopped: %w", q.name, ctx.Err())
	case q.jobs <- job:
		return nil
	}
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			if err := q.handler(q.ctx, job); err != nil {
				q.logger.Sugar().Errorw("job failed", "queue", q.name, "job_id", job.ID, "type", job.Type, "error", err)
			}
		}
	}
}
