// Package scheduler implements the Scheduled Re-evaluator (C6): a 30-minute
// cron pass over stale ENFORCEMENT_CANDIDATE decisions, and exposes the
// session-expiry sweep from C3 behind the same singleton-job guard, per
// spec §4.6/§4.3. Both passes are guarded by the Job Lock (C12) so only one
// replica runs a given job at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anpr/compliance-core/internal/anpr/domain"
	"github.com/anpr/compliance-core/internal/anpr/rules"
	"github.com/anpr/compliance-core/internal/anpr/session"
	"github.com/anpr/compliance-core/internal/audit"
	"github.com/anpr/compliance-core/internal/joblock"
	"github.com/anpr/compliance-core/internal/metrics"
	"github.com/anpr/compliance-core/internal/store"
)

// ReevaluationBatchSize is the spec §4.6 per-pass cap.
const ReevaluationBatchSize = 500

// ReevaluationInterval is the spec §4.6 cron cadence.
const ReevaluationInterval = 30 * time.Minute

// ExpiryInterval is the spec §4.3 hourly stale-session sweep cadence.
const ExpiryInterval = time.Hour

const (
	jobReevaluation = "decision-reevaluation"
	jobExpiry       = "session-expiry"
)

// BatchSummary is the spec §4.6 per-pass report.
type BatchSummary struct {
	Considered int
	Updated    int
}

// Scheduler owns the two recurring jobs. locker may be nil, in which case
// both jobs run unguarded — acceptable for a single-instance deployment or
// tests, but not for production multi-replica wiring.
type Scheduler struct {
	decisions     store.DecisionStore
	sessions      store.SessionStore
	engine        *rules.Engine
	reconstructor *session.Reconstructor
	locker        *joblock.Locker
	audit         audit.Sink
	metrics       *metrics.Metrics
}

// New builds a Scheduler.
func New(decisions store.DecisionStore, sessions store.SessionStore, engine *rules.Engine, reconstructor *session.Reconstructor,
	locker *joblock.Locker, sink audit.Sink, m *metrics.Metrics) *Scheduler {
	return &Scheduler{decisions: decisions, sessions: sessions, engine: engine, reconstructor: reconstructor, locker: locker, audit: sink, metrics: m}
}

// Run starts both recurring jobs against their respective tickers and
// blocks until ctx is cancelled. Intended to be launched once from
// cmd/anprsvc in its own goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	reevalTicker := time.NewTicker(ReevaluationInterval)
	expiryTicker := time.NewTicker(ExpiryInterval)
	defer reevalTicker.Stop()
	defer expiryTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reevalTicker.C:
			if _, err := s.RunReevaluation(ctx); err != nil {
				s.logFailure(ctx, jobReevaluation, err)
			}
		case <-expiryTicker.C:
			if _, err := s.RunExpirySweep(ctx); err != nil {
				s.logFailure(ctx, jobExpiry, err)
			}
		}
	}
}

// RunReevaluation executes one pass of spec §4.6's scheduled re-evaluator.
func (s *Scheduler) RunReevaluation(ctx context.Context) (BatchSummary, error) {
	if s.locker != nil {
		handle, err := s.locker.Acquire(ctx, jobReevaluation, ReevaluationInterval)
		if errors.Is(err, joblock.ErrAlreadyRunning) {
			return BatchSummary{}, nil // another replica already holds it
		}
		if err != nil {
			return BatchSummary{}, fmt.Errorf("scheduler: acquire %s lock: %w", jobReevaluation, err)
		}
		defer handle.Release(ctx)
	}

	start := time.Now()
	candidates, err := s.decisions.FindCandidatesForReevaluation(ctx, ReevaluationBatchSize)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("scheduler: find reevaluation candidates: %w", err)
	}

	summary := BatchSummary{Considered: len(candidates)}
	for _, d := range candidates {
		if s.reevaluateOne(ctx, d) {
			summary.Updated++
		}
	}

	if s.metrics != nil {
		s.metrics.ScheduledJobDuration.WithLabelValues(jobReevaluation).Observe(time.Since(start).Seconds())
	}
	s.publishBatchSummary(ctx, jobReevaluation, summary)
	return summary, nil
}

func (s *Scheduler) reevaluateOne(ctx context.Context, d domain.Decision) bool {
	sess, err := s.sessions.Get(ctx, d.SessionID)
	if err != nil || sess == nil {
		return false
	}
	updated, applied, err := s.engine.Evaluate(ctx, *sess, "AUTO_REEVALUATED")
	if err != nil || !applied {
		return false
	}
	return updated.Outcome != d.Outcome
}

// RunExpirySweep executes one pass of spec §4.3's scheduled session-expiry
// sweep.
func (s *Scheduler) RunExpirySweep(ctx context.Context) (int, error) {
	if s.locker != nil {
		handle, err := s.locker.Acquire(ctx, jobExpiry, ExpiryInterval)
		if errors.Is(err, joblock.ErrAlreadyRunning) {
			return 0, nil // another replica already holds it
		}
		if err != nil {
			return 0, fmt.Errorf("scheduler: acquire %s lock: %w", jobExpiry, err)
		}
		defer handle.Release(ctx)
	}

	start := time.Now()
	count, err := s.reconstructor.ExpireStale(ctx, time.Now())
	if s.metrics != nil {
		s.metrics.ScheduledJobDuration.WithLabelValues(jobExpiry).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return count, fmt.Errorf("scheduler: expiry sweep: %w", err)
	}
	return count, nil
}

func (s *Scheduler) publishBatchSummary(ctx context.Context, job string, summary BatchSummary) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Publish(ctx, audit.Record{
		EntityType: "ScheduledJob",
		EntityID:   job,
		Action:     audit.ActionDecisionAutoReevaluated,
		Actor:      "scheduler",
		ActorType:  audit.ActorScheduler,
		Details: map[string]interface{}{
			"considered": summary.Considered,
			"updated":    summary.Updated,
		},
		Timestamp: time.Now(),
	})
}

func (s *Scheduler) logFailure(ctx context.Context, job string, err error) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Publish(ctx, audit.Record{
		EntityType: "ScheduledJob",
		EntityID:   job,
		Action:     audit.ActionDecisionAutoReevaluated,
		Actor:      "scheduler",
		ActorType:  audit.ActorScheduler,
		Details:    map[string]interface{}{"error": err.Error()},
		Timestamp:  time.Now(),
	})
}
