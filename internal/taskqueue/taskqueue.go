// Package taskqueue is the bounded, explicit task queue design note §9
// calls for: ingestion enqueues reconciliation work instead of spawning a
// bare goroutine, and the queue applies backpressure (block the caller)
// only once it is saturated above a high-water mark — "drop-oldest is
// unacceptable" per the same design note, since a dropped reconciliation
// would leave a decision stale.
package taskqueue

import (
	"context"
	"log"
)

// Kind distinguishes the two reconciliation triggers from spec §4.2.
type Kind string

const (
	KindPayment Kind = "PAYMENT"
	KindPermit  Kind = "PERMIT"
)

// Task is one fire-and-forget reconciliation trigger.
type Task struct {
	Kind   Kind
	VRM    string
	SiteID string
	// Payment fields (Kind == KindPayment).
	PaymentID         string
	PaymentStart      *int64 // unix seconds, to keep Task comparable/loggable
	PaymentExpiry     *int64
	// Permit fields (Kind == KindPermit).
	PermitActive *bool
}

// Handler processes one Task. It returns nothing, so a handler logs its
// own failures; nothing is propagated back to the enqueuing caller —
// reconciliation failures are DownstreamFailure per spec §7.
type Handler func(ctx context.Context, t Task)

// Queue is a bounded in-process worker pool whose handler either runs
// reconciliation directly or forwards each task to a CloudTasksDispatcher
// (production); tests build it with New. Enqueue blocks once the number of
// pending tasks reaches HighWaterMark.
type Queue struct {
	tasks         chan Task
	handler       Handler
	highWaterMark int
	logger        *log.Logger
	done          chan struct{}
}

// Config controls queue sizing.
type Config struct {
	// Concurrency is how many tasks are processed at once.
	Concurrency int
	// HighWaterMark is the pending-task count above which Enqueue blocks
	// the caller instead of accepting more work.
	HighWaterMark int
}

// DefaultConfig matches spec §5/§9 defaults: enough concurrency to drain
// bursts, backpressure only once genuinely saturated.
func DefaultConfig() Config {
	return Config{Concurrency: 8, HighWaterMark: 5000}
}

// New starts a Queue with cfg workers draining into handler.
func New(cfg Config, handler Handler) *Queue {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.HighWaterMark <= 0 {
		cfg.HighWaterMark = 1
	}

	q := &Queue{
		tasks:         make(chan Task, cfg.HighWaterMark),
		handler:       handler,
		highWaterMark: cfg.HighWaterMark,
		logger:        log.New(log.Writer(), "[TASKQUEUE] ", log.LstdFlags),
		done:          make(chan struct{}),
	}

	for i := 0; i < cfg.Concurrency; i++ {
		go q.worker()
	}
	return q
}

func (q *Queue) worker() {
	for {
		select {
		case t, ok := <-q.tasks:
			if !ok {
				return
			}
			q.handler(context.Background(), t)
		case <-q.done:
			return
		}
	}
}

// Enqueue submits t. It returns immediately unless the queue is at its
// high-water mark, in which case it blocks the caller — per design note §9,
// the ingestion response may be delayed here rather than the task being
// dropped. If ctx is cancelled while blocked, the task is not enqueued and
// the cancellation is logged.
func (q *Queue) Enqueue(ctx context.Context, t Task) {
	select {
	case q.tasks <- t:
	case <-ctx.Done():
		q.logger.Printf("enqueue cancelled for %s/%s: %v", t.SiteID, t.VRM, ctx.Err())
	}
}

// Pending reports the current queue depth, for metrics/health checks.
func (q *Queue) Pending() int { return len(q.tasks) }

// Stop signals all workers to exit after finishing their current task.
func (q *Queue) Stop() { close(q.done) }
