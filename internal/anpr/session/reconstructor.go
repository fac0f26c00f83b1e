// Package session implements the Session Reconstructor (C3): the
// per-(site, plate) state machine that turns a stream of ENTRY/EXIT
// Movements into PROVISIONAL, COMPLETED, and EXPIRED Sessions, per spec
// §4.3. On every COMPLETED transition it hands the session to the Rule
// Engine (C4) for evaluation.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/anpr/compliance-core/internal/anpr/domain"
	"github.com/anpr/compliance-core/internal/anpr/rules"
	"github.com/anpr/compliance-core/internal/apperr"
	"github.com/anpr/compliance-core/internal/audit"
	"github.com/anpr/compliance-core/internal/metrics"
	"github.com/anpr/compliance-core/internal/store"
	"github.com/google/uuid"
)

// DefaultStaleThreshold is the spec §4.3 default age at which an open
// session is force-expired by the scheduled sweep.
const DefaultStaleThreshold = 24 * time.Hour

// MaxExpirySweep bounds a single scheduled-expiry pass.
const MaxExpirySweep = 1000

// Reconstructor owns the Session state machine.
type Reconstructor struct {
	sessions store.SessionStore
	engine   *rules.Engine
	audit    audit.Sink
	metrics  *metrics.Metrics

	staleThreshold time.Duration
}

// New builds a Reconstructor. metrics may be nil in tests that don't assert
// on counters.
func New(sessions store.SessionStore, engine *rules.Engine, sink audit.Sink, m *metrics.Metrics) *Reconstructor {
	return &Reconstructor{
		sessions:       sessions,
		engine:         engine,
		audit:          sink,
		metrics:        m,
		staleThreshold: DefaultStaleThreshold,
	}
}

// WithStaleThreshold overrides the default 24h expiry age, mainly for tests.
func (r *Reconstructor) WithStaleThreshold(d time.Duration) *Reconstructor {
	r.staleThreshold = d
	return r
}

// Observe feeds one resolved Movement into the state machine. Movements
// flagged RequiresReview or Discarded are skipped entirely per spec §4.3 and
// never reach this method from the ingestion pipeline, but the guard is
// repeated here defensively since the reconstructor may also be invoked
// directly from review resubmission (spec §4.8).
func (r *Reconstructor) Observe(ctx context.Context, m domain.Movement) error {
	if m.RequiresReview || m.Discarded {
		return nil
	}
	switch m.Direction {
	case domain.DirectionEntry:
		return r.onEntry(ctx, m)
	case domain.DirectionExit:
		return r.onExit(ctx, m)
	default:
		return apperr.Validation("session.observe", "movement has unresolved direction")
	}
}

func (r *Reconstructor) onEntry(ctx context.Context, m domain.Movement) error {
	open, err := r.sessions.FindOpen(ctx, m.SiteID, m.VRM)
	if err != nil {
		return fmt.Errorf("session: find open: %w", err)
	}
	if open != nil {
		// Open -> ENTRY: duplicate-entry suppression.
		r.recordDuplicate(ctx, m)
		return nil
	}

	sess := &domain.Session{
		ID:              uuid.NewString(),
		SiteID:          m.SiteID,
		VRM:             m.VRM,
		StartTime:       m.Timestamp,
		EntryMovementID: m.ID,
		Status:          domain.SessionProvisional,
	}
	if err := r.sessions.InsertOpen(ctx, sess); err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			// Lost the race to open a session: treat exactly like the
			// already-open case the FindOpen check above would have hit.
			r.recordDuplicate(ctx, m)
			return nil
		}
		return fmt.Errorf("session: insert open: %w", err)
	}

	if r.metrics != nil {
		r.metrics.SessionsOpened.WithLabelValues("opened").Inc()
	}
	r.publish(ctx, audit.ActionSessionCreated, sess.ID, sess.SiteID, sess.VRM, nil)
	return nil
}

func (r *Reconstructor) recordDuplicate(ctx context.Context, m domain.Movement) {
	if r.metrics != nil {
		r.metrics.SessionsOpened.WithLabelValues("duplicate_skipped").Inc()
		r.metrics.DuplicateEntrySkips.WithLabelValues(m.SiteID).Inc()
	}
	r.publish(ctx, audit.ActionDuplicateEntrySkipped, m.ID, m.SiteID, m.VRM, nil)
}

func (r *Reconstructor) onExit(ctx context.Context, m domain.Movement) error {
	open, err := r.sessions.FindOpen(ctx, m.SiteID, m.VRM)
	if err != nil {
		return fmt.Errorf("session: find open: %w", err)
	}
	if open == nil {
		// NoOpen -> EXIT: orphan exit, nothing to close.
		r.publish(ctx, audit.ActionMovementDuplicate, m.ID, m.SiteID, m.VRM,
			map[string]interface{}{"reason": "orphan_exit_no_open_session"})
		return nil
	}
	if m.Timestamp.Before(open.StartTime) {
		// Open -> EXIT before start: refuse to close, session stays open.
		r.publish(ctx, audit.ActionMovementDuplicate, m.ID, m.SiteID, m.VRM,
			map[string]interface{}{"reason": "orphan_exit_before_session_start", "sessionId": open.ID})
		return nil
	}

	closed, err := r.sessions.Close(ctx, open.ID, m.Timestamp, m.ID)
	if err != nil {
		return fmt.Errorf("session: close: %w", err)
	}

	if r.metrics != nil {
		r.metrics.SessionsClosed.WithLabelValues("completed").Inc()
		if closed.DurationMinutes != nil {
			r.metrics.SessionDuration.Observe(float64(*closed.DurationMinutes))
		}
	}
	r.publish(ctx, audit.ActionSessionCompleted, closed.ID, closed.SiteID, closed.VRM, nil)

	if _, _, err := r.engine.Evaluate(ctx, *closed, ""); err != nil {
		return fmt.Errorf("session: evaluate closed session: %w", err)
	}
	return nil
}

// ExpireStale runs the spec §4.3 scheduled sweep: any session open since
// before now-staleThreshold is force-expired without rule evaluation, up to
// MaxExpirySweep per pass.
func (r *Reconstructor) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-r.staleThreshold)
	stale, err := r.sessions.FindStaleOpen(ctx, cutoff, MaxExpirySweep)
	if err != nil {
		return 0, fmt.Errorf("session: find stale open: %w", err)
	}

	expired := 0
	for _, sess := range stale {
		if _, err := r.sessions.Expire(ctx, sess.ID, now); err != nil {
			return expired, fmt.Errorf("session: expire %s: %w", sess.ID, err)
		}
		expired++
		if r.metrics != nil {
			r.metrics.SessionsClosed.WithLabelValues("expired").Inc()
		}
		r.publish(ctx, audit.ActionSessionExpired, sess.ID, sess.SiteID, sess.VRM, nil)
	}
	return expired, nil
}

func (r *Reconstructor) publish(ctx context.Context, action audit.Action, entityID, siteID, vrm string, details map[string]interface{}) {
	if r.audit == nil {
		return
	}
	_ = r.audit.Publish(ctx, audit.Record{
		EntityType: "Session",
		EntityID:   entityID,
		Action:     action,
		Actor:      "session-reconstructor",
		ActorType:  audit.ActorSystem,
		SiteID:     siteID,
		VRM:        vrm,
		Details:    details,
		Timestamp:  time.Now(),
	})
}
