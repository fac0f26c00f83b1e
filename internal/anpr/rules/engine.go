// Package rules implements the Rule Engine (C4): a fixed ordered cascade
// that evaluates one completed Session into a Decision, per spec §4.4.
package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/anpr/compliance-core/internal/anpr/domain"
	"github.com/anpr/compliance-core/internal/apperr"
	"github.com/anpr/compliance-core/internal/audit"
	"github.com/anpr/compliance-core/internal/store"
	"github.com/google/uuid"
)

// Rule-applied tags, spec §4.4.
const (
	RuleEnforcementDisabled           = "ENFORCEMENT_DISABLED"
	RuleValidPermit                   = "VALID_PERMIT"
	RuleWithinGrace                   = "WITHIN_GRACE"
	RuleIncompleteSession             = "INCOMPLETE_SESSION"
	RuleValidPayment                  = "VALID_PAYMENT"
	RuleOverstay                      = "OVERSTAY"
	RuleOverstayWithinGrace           = "OVERSTAY_WITHIN_GRACE"
	RuleNoValidPayment                = "NO_VALID_PAYMENT"
	RuleUnauthorisedParking           = "UNAUTHORISED_PARKING"
	RuleEnforcementDisabledRetroactive = "ENFORCEMENT_DISABLED_RETROACTIVE"
)

// SuspensionLookup is the C7 interface the Rule Engine consults for clause 1.
type SuspensionLookup interface {
	IsDisabled(ctx context.Context, siteID string, t time.Time) (bool, error)
}

// Engine evaluates sessions against permits, payments, and suspensions.
type Engine struct {
	sites       store.SiteStore
	permits     store.PermitStore
	payments    store.PaymentStore
	decisions   store.DecisionStore
	suspensions SuspensionLookup
	audit       audit.Sink
}

// New builds a rule Engine.
func New(sites store.SiteStore, permits store.PermitStore, payments store.PaymentStore,
	decisions store.DecisionStore, suspensions SuspensionLookup, sink audit.Sink) *Engine {
	return &Engine{sites: sites, permits: permits, payments: payments, decisions: decisions, suspensions: suspensions, audit: sink}
}

// Decisions exposes the underlying DecisionStore so callers (reconciliation,
// the scheduled re-evaluator) can inspect a Decision before re-running
// Evaluate, without each holding their own copy of the store wiring.
func (e *Engine) Decisions() store.DecisionStore { return e.decisions }

// verdict is the engine's internal pre-Decision result.
type verdict struct {
	outcome domain.Outcome
	rule    string
	params  map[string]interface{}
}

// Evaluate runs the fixed cascade of spec §4.4 against sess and writes the
// resulting Decision, respecting the human-reviewed freeze. reasonTag,
// when non-empty, is appended to the rationale (" | RECONCILED: ..." or
// " | AUTO_REEVALUATED: ...") as spec §4.4's write semantics require.
func (e *Engine) Evaluate(ctx context.Context, sess domain.Session, reasonTag string) (*domain.Decision, bool, error) {
	site, err := e.sites.Get(ctx, sess.SiteID)
	if err != nil {
		return nil, false, fmt.Errorf("rules: load site %s: %w", sess.SiteID, err)
	}
	if site == nil {
		return nil, false, apperr.NotFound("rules.evaluate", "site not found: "+sess.SiteID)
	}

	v, err := e.cascade(ctx, *site, sess)
	if err != nil {
		return nil, false, err
	}

	rationale := fmt.Sprintf("%s: %s", v.rule, narrativeFor(v))
	if reasonTag != "" {
		rationale += " | " + reasonTag
	}

	d := &domain.Decision{
		SessionID:   sess.ID,
		Outcome:     v.outcome,
		RuleApplied: v.rule,
		Rationale:   rationale,
		Status:      domain.DecisionNew,
		Params:      v.params,
	}

	existing, err := e.decisions.FindBySession(ctx, sess.ID)
	if err != nil {
		return nil, false, fmt.Errorf("rules: load existing decision: %w", err)
	}
	if existing != nil {
		// Append-only rationale audit trail: carry forward prior text. The
		// mutable status itself (NEW or CANDIDATE) is preserved as-is; only
		// an operator transitions it out of that pair.
		d.Rationale = existing.Rationale + " | " + d.Rationale
		d.Status = existing.Status
	}

	result, applied, err := e.decisions.UpsertIfMutable(ctx, d)
	if err != nil {
		return nil, false, fmt.Errorf("rules: upsert decision: %w", err)
	}

	e.publishAudit(ctx, sess, result, applied, existing != nil)
	return result, applied, nil
}

func (e *Engine) publishAudit(ctx context.Context, sess domain.Session, d *domain.Decision, applied, wasExisting bool) {
	if !applied {
		return
	}
	action := audit.ActionDecisionCreated
	if wasExisting {
		action = audit.ActionDecisionReconciled
	}
	_ = e.audit.Publish(ctx, audit.Record{
		EntityType: "Decision",
		EntityID:   d.ID,
		Action:     action,
		Actor:      "rule-engine",
		ActorType:  audit.ActorSystem,
		SiteID:     sess.SiteID,
		VRM:        sess.VRM,
		Details: map[string]interface{}{
			"outcome": d.Outcome,
			"rule":    d.RuleApplied,
		},
		Timestamp: time.Now(),
	})
}

func narrativeFor(v verdict) string {
	switch v.rule {
	case RuleEnforcementDisabled:
		return "an active enforcement suspension covers the session start"
	case RuleValidPermit:
		return "a valid permit covers the session start"
	case RuleWithinGrace:
		return "session duration is within the combined entry/exit grace period"
	case RuleIncompleteSession:
		return "session has no exit and exceeds the grace window"
	case RuleValidPayment:
		return "a single payment covers the mandatory window"
	case RuleOverstay:
		return fmt.Sprintf("payment expired %v minutes before exit, exceeding the overstay threshold", v.params["overstayMinutes"])
	case RuleOverstayWithinGrace:
		return "payment expired before exit but within the overstay grace period"
	case RuleNoValidPayment:
		return "no covering payment found; site history shows prior payments"
	case RuleUnauthorisedParking:
		return "no covering payment or permit; site has no payment history"
	default:
		return ""
	}
}

// cascade implements spec §4.4's fixed ordered clauses 1-7.
func (e *Engine) cascade(ctx context.Context, site domain.Site, sess domain.Session) (verdict, error) {
	grace := site.Grace
	if grace == (domain.GracePeriods{}) {
		grace = domain.DefaultGracePeriods()
	}

	// Clause 1: enforcement suspended.
	disabled, err := e.suspensions.IsDisabled(ctx, sess.SiteID, sess.StartTime)
	if err != nil {
		return verdict{}, fmt.Errorf("rules: check suspension: %w", err)
	}
	if disabled {
		return verdict{outcome: domain.OutcomeCompliant, rule: RuleEnforcementDisabled}, nil
	}

	// Clause 2: valid permit. Payments are not consulted once this matches.
	permits, err := e.permits.FindApplicable(ctx, sess.VRM, sess.SiteID, sess.StartTime)
	if err != nil {
		return verdict{}, fmt.Errorf("rules: load permits: %w", err)
	}
	for _, p := range permits {
		if p.AppliesAt(sess.SiteID, sess.StartTime) {
			return verdict{outcome: domain.OutcomeCompliant, rule: RuleValidPermit}, nil
		}
	}

	graceTotal := time.Duration(grace.EntryMinutes+grace.ExitMinutes) * time.Minute

	// Clause 3: incomplete session.
	if sess.EndTime == nil {
		duration := time.Since(sess.StartTime)
		if duration <= graceTotal {
			return verdict{outcome: domain.OutcomeCompliant, rule: RuleWithinGrace}, nil
		}
		return verdict{outcome: domain.OutcomeRequiresReview, rule: RuleIncompleteSession}, nil
	}

	mandatoryStart := sess.StartTime.Add(time.Duration(grace.EntryMinutes) * time.Minute)
	mandatoryEnd := sess.EndTime.Add(-time.Duration(grace.ExitMinutes) * time.Minute)

	// Clause 4: single covering payment.
	payments, err := e.payments.FindCovering(ctx, sess.VRM, sess.SiteID, mandatoryStart, mandatoryEnd)
	if err != nil {
		return verdict{}, fmt.Errorf("rules: load payments: %w", err)
	}
	for _, p := range payments {
		if !p.StartTime.After(mandatoryStart) && !p.ExpiryTime.Before(mandatoryEnd) {
			return verdict{outcome: domain.OutcomeCompliant, rule: RuleValidPayment}, nil
		}
	}

	// Clause 5: short stay.
	duration := sess.EndTime.Sub(sess.StartTime)
	if duration <= graceTotal {
		return verdict{outcome: domain.OutcomeCompliant, rule: RuleWithinGrace}, nil
	}

	// Clause 6: overstay — a payment that paid for part of the stay but
	// expired before exit.
	for _, p := range payments {
		if p.StartTime.After(mandatoryEnd) {
			continue
		}
		if !(p.ExpiryTime.After(mandatoryStart) && p.ExpiryTime.Before(mandatoryEnd)) {
			continue
		}
		over := mandatoryEnd.Sub(p.ExpiryTime).Minutes()
		if over > float64(grace.OverstayMinutes) {
			return verdict{
				outcome: domain.OutcomeEnforcementCandidate,
				rule:    RuleOverstay,
				params: map[string]interface{}{
					"overstayMinutes":   over,
					"overstayThreshold": grace.OverstayMinutes,
					"paymentId":         p.ID,
				},
			}, nil
		}
		return verdict{outcome: domain.OutcomeCompliant, rule: RuleOverstayWithinGrace}, nil
	}

	// Clause 7: unauthorised, branching on site payment model.
	switch site.Enforcement {
	case domain.EnforcementPayAndDisplay, domain.EnforcementMixed:
		return verdict{outcome: domain.OutcomeEnforcementCandidate, rule: RuleNoValidPayment}, nil
	case domain.EnforcementPermitOnly:
		return verdict{outcome: domain.OutcomeEnforcementCandidate, rule: RuleUnauthorisedParking}, nil
	default: // AUTO
		existed, err := e.payments.ExistsForSite(ctx, sess.SiteID)
		if err != nil {
			return verdict{}, fmt.Errorf("rules: check site payment history: %w", err)
		}
		if existed {
			return verdict{outcome: domain.OutcomeEnforcementCandidate, rule: RuleNoValidPayment}, nil
		}
		return verdict{outcome: domain.OutcomeEnforcementCandidate, rule: RuleUnauthorisedParking}, nil
	}
}

// NewDecisionID is a small helper kept here so callers never import
// google/uuid just to stub a Decision's ID in tests.
func NewDecisionID() string { return uuid.NewString() }
