// Package reconciliation implements the Reconciliation Service (C5): it
// re-runs the Rule Engine against already-completed Sessions whenever new
// evidence (a late payment or permit) arrives, per spec §4.5. Every
// resulting Decision write still goes through DecisionStore.UpsertIfMutable,
// so a human-reviewed Decision can never be overwritten here.
package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/anpr/compliance-core/internal/anpr/domain"
	"github.com/anpr/compliance-core/internal/anpr/rules"
	"github.com/anpr/compliance-core/internal/audit"
	"github.com/anpr/compliance-core/internal/metrics"
	"github.com/anpr/compliance-core/internal/store"
	"github.com/anpr/compliance-core/internal/taskqueue"
)

// Result is the spec §4.5 return shape for onPayment/onPermit/onSite.
type Result struct {
	SessionsReevaluated int
	DecisionsUpdated    int
}

// Service runs reconciliation passes over completed Sessions.
type Service struct {
	sessions store.SessionStore
	engine   *rules.Engine
	audit    audit.Sink
	metrics  *metrics.Metrics
}

// New builds a reconciliation Service.
func New(sessions store.SessionStore, engine *rules.Engine, sink audit.Sink, m *metrics.Metrics) *Service {
	return &Service{sessions: sessions, engine: engine, audit: sink, metrics: m}
}

// OnPayment implements spec §4.5's onPayment operation.
func (s *Service) OnPayment(ctx context.Context, vrm, siteID string, start, expiry time.Time) error {
	sessions, err := s.sessions.FindCompletedOverlapping(ctx, vrm, siteID, start, expiry)
	if err != nil {
		return fmt.Errorf("reconciliation: find overlapping sessions: %w", err)
	}
	s.reevaluate(ctx, sessions, "payment")
	return nil
}

// OnPermit implements spec §4.5's onPermit operation. A permit being
// deactivated is a no-op: a removed permit never retroactively creates an
// enforcement decision for a session that was already compliant.
func (s *Service) OnPermit(ctx context.Context, vrm, siteID string, active bool) error {
	if !active {
		return nil
	}
	sessions, err := s.sessions.FindCompletedForVRM(ctx, vrm, siteID)
	if err != nil {
		return fmt.Errorf("reconciliation: find sessions for vrm: %w", err)
	}
	s.reevaluate(ctx, sessions, "permit")
	return nil
}

// OnSite implements spec §4.5's bulk onSite admin operation.
func (s *Service) OnSite(ctx context.Context, siteID string, limit int) (Result, error) {
	sessions, err := s.sessions.FindCompletedBySite(ctx, siteID, limit)
	if err != nil {
		return Result{}, fmt.Errorf("reconciliation: find sessions for site: %w", err)
	}
	return s.reevaluate(ctx, sessions, "site"), nil
}

// reevaluate re-invokes the Rule Engine for each session, counting an
// update only when UpsertIfMutable actually applied a change.
func (s *Service) reevaluate(ctx context.Context, sessions []domain.Session, trigger string) Result {
	result := Result{SessionsReevaluated: len(sessions)}

	for _, sess := range sessions {
		before, err := s.engine.Decisions().FindBySession(ctx, sess.ID)
		if err != nil {
			continue
		}
		d, applied, err := s.engine.Evaluate(ctx, sess, "RECONCILED:"+trigger)
		if err != nil {
			continue
		}
		changed := applied && (before == nil || before.Outcome != d.Outcome)
		if changed {
			result.DecisionsUpdated++
			if s.metrics != nil {
				s.metrics.DecisionsReconciled.WithLabelValues(trigger).Inc()
			}
		}
	}

	if s.metrics != nil {
		s.metrics.ReconciliationRuns.WithLabelValues(trigger).Inc()
	}
	s.publishSummary(ctx, trigger, result)
	return result
}

func (s *Service) publishSummary(ctx context.Context, trigger string, result Result) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Publish(ctx, audit.Record{
		EntityType: "Reconciliation",
		EntityID:   trigger,
		Action:     audit.ActionReconciliationTriggered,
		Actor:      "reconciliation-service",
		ActorType:  audit.ActorSystem,
		Details: map[string]interface{}{
			"trigger":             trigger,
			"sessionsReevaluated": result.SessionsReevaluated,
			"decisionsUpdated":    result.DecisionsUpdated,
		},
		Timestamp: time.Now(),
	})
}

// Handler adapts the Service onto a taskqueue.Handler, so the ingestion
// pipeline's fire-and-forget dispatch and a real reconciliation worker both
// go through the same entry point.
func (s *Service) Handler() taskqueue.Handler {
	return func(ctx context.Context, t taskqueue.Task) {
		switch t.Kind {
		case taskqueue.KindPayment:
			if t.PaymentStart == nil || t.PaymentExpiry == nil {
				return
			}
			start := time.Unix(*t.PaymentStart, 0).UTC()
			expiry := time.Unix(*t.PaymentExpiry, 0).UTC()
			_ = s.OnPayment(ctx, t.VRM, t.SiteID, start, expiry)
		case taskqueue.KindPermit:
			if t.PermitActive == nil {
				return
			}
			_ = s.OnPermit(ctx, t.VRM, t.SiteID, *t.PermitActive)
		}
	}
}
