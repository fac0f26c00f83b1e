package rules_test

import (
	"context"
	"testing"
	"time"

	"github.com/anpr/compliance-core/internal/anpr/domain"
	"github.com/anpr/compliance-core/internal/anpr/rules"
	"github.com/anpr/compliance-core/internal/audit"
	"github.com/anpr/compliance-core/internal/store/memstore"
	"github.com/stretchr/testify/require"
)

type noopSuspensions struct{ disabled bool }

func (n noopSuspensions) IsDisabled(context.Context, string, time.Time) (bool, error) {
	return n.disabled, nil
}

func newEngine(t *testing.T, enforcement domain.EnforcementType, suspended bool) (*rules.Engine, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	st.Sites.Put(domain.Site{
		ID: "S1", Name: "Site One", Active: true,
		Grace:       domain.GracePeriods{EntryMinutes: 10, ExitMinutes: 10, OverstayMinutes: 15},
		Enforcement: enforcement,
	})
	sink := audit.NewMemorySink()
	return rules.New(st.Sites, st.Permits, st.Payments, st.Decisions, noopSuspensions{disabled: suspended}, sink), st
}

func closeSession(t *testing.T, ctx context.Context, st *memstore.Store, vrm string, start, end time.Time) domain.Session {
	t.Helper()
	sess := &domain.Session{SiteID: "S1", VRM: vrm, StartTime: start}
	require.NoError(t, st.Sessions.InsertOpen(ctx, sess))
	closed, err := st.Sessions.Close(ctx, sess.ID, end, "exit-movement")
	require.NoError(t, err)
	return *closed
}

// Scenario 1: permit beats payment.
func TestScenarioPermitBeatsPayment(t *testing.T) {
	engine, st := newEngine(t, domain.EnforcementPayAndDisplay, false)
	ctx := context.Background()
	start := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	sess := closeSession(t, ctx, st, "AB12CDE", start, end)

	require.NoError(t, st.Permits.Upsert(ctx, &domain.Permit{
		VRM: "AB12CDE", SiteID: "S1", Type: domain.PermitResident, Active: true, StartDate: start.Add(-24 * time.Hour),
	}, ""))

	d, _, err := engine.Evaluate(ctx, sess, "")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeCompliant, d.Outcome)
	require.Equal(t, rules.RuleValidPermit, d.RuleApplied)
}

// Scenario 2: grace coverage.
func TestScenarioGraceCoverage(t *testing.T) {
	engine, st := newEngine(t, domain.EnforcementPayAndDisplay, false)
	ctx := context.Background()
	start := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(15 * time.Minute)
	sess := closeSession(t, ctx, st, "AB12CDE", start, end)

	d, _, err := engine.Evaluate(ctx, sess, "")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeCompliant, d.Outcome)
	require.Equal(t, rules.RuleWithinGrace, d.RuleApplied)
}

// Scenario 3: enforcement candidate.
func TestScenarioEnforcementCandidateNoValidPayment(t *testing.T) {
	engine, st := newEngine(t, domain.EnforcementPayAndDisplay, false)
	ctx := context.Background()
	start := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(120 * time.Minute)
	sess := closeSession(t, ctx, st, "AB12CDE", start, end)

	require.NoError(t, st.Payments.Insert(ctx, &domain.Payment{
		VRM: "ZZ99ZZZ", SiteID: "S1", StartTime: start.Add(-time.Hour), ExpiryTime: start.Add(-30 * time.Minute),
		Source: "app", ExternalReference: "unrelated",
	}))

	d, _, err := engine.Evaluate(ctx, sess, "")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeEnforcementCandidate, d.Outcome)
	require.Equal(t, rules.RuleNoValidPayment, d.RuleApplied)
}

// Scenario 3b: AUTO enforcement with no site payment history at all.
func TestScenarioUnauthorisedParkingWhenNoSitePaymentHistory(t *testing.T) {
	engine, st := newEngine(t, domain.EnforcementAuto, false)
	ctx := context.Background()
	start := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(120 * time.Minute)
	sess := closeSession(t, ctx, st, "AB12CDE", start, end)

	d, _, err := engine.Evaluate(ctx, sess, "")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeEnforcementCandidate, d.Outcome)
	require.Equal(t, rules.RuleUnauthorisedParking, d.RuleApplied)
}

// Scenario 4: payment reconciliation appends rationale.
func TestScenarioReconciliationAppendsRationale(t *testing.T) {
	engine, st := newEngine(t, domain.EnforcementPayAndDisplay, false)
	ctx := context.Background()
	start := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(120 * time.Minute)
	sess := closeSession(t, ctx, st, "AB12CDE", start, end)

	first, _, err := engine.Evaluate(ctx, sess, "")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeEnforcementCandidate, first.Outcome)

	require.NoError(t, st.Payments.Insert(ctx, &domain.Payment{
		VRM: "AB12CDE", SiteID: "S1", StartTime: start.Add(-5 * time.Minute), ExpiryTime: end.Add(5 * time.Minute),
		Source: "app", ExternalReference: "ref-4",
	}))

	second, applied, err := engine.Evaluate(ctx, sess, "RECONCILED:payment")
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, domain.OutcomeCompliant, second.Outcome)
	require.Contains(t, second.Rationale, "RECONCILED:payment")
	require.Contains(t, second.Rationale, first.Rationale)
}

// Scenario 5: human lock freezes an APPROVED decision.
func TestScenarioHumanLockFreezesApprovedDecision(t *testing.T) {
	engine, st := newEngine(t, domain.EnforcementPayAndDisplay, false)
	ctx := context.Background()
	start := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(120 * time.Minute)
	sess := closeSession(t, ctx, st, "AB12CDE", start, end)

	d, _, err := engine.Evaluate(ctx, sess, "")
	require.NoError(t, err)

	d.Status = domain.DecisionApproved
	_, applied, err := st.Decisions.UpsertIfMutable(ctx, d)
	require.NoError(t, err)
	require.True(t, applied)

	require.NoError(t, st.Payments.Insert(ctx, &domain.Payment{
		VRM: "AB12CDE", SiteID: "S1", StartTime: start.Add(-5 * time.Minute), ExpiryTime: end.Add(5 * time.Minute),
		Source: "app", ExternalReference: "ref-5",
	}))

	result, applied, err := engine.Evaluate(ctx, sess, "RECONCILED:payment")
	require.NoError(t, err)
	require.False(t, applied, "an APPROVED decision must not be mutated")
	require.Equal(t, domain.DecisionApproved, result.Status)
	require.Equal(t, domain.OutcomeEnforcementCandidate, result.Outcome)
}

// Scenario 7: retroactive suspension, exercised end-to-end via the store.
func TestScenarioRetroactiveSuspension(t *testing.T) {
	engine, st := newEngine(t, domain.EnforcementPayAndDisplay, false)
	ctx := context.Background()
	start := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(120 * time.Minute)
	sess := closeSession(t, ctx, st, "AB12CDE", start, end)

	d, _, err := engine.Evaluate(ctx, sess, "")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeEnforcementCandidate, d.Outcome)
	require.Equal(t, domain.DecisionNew, d.Status)

	windowStart := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)
	windowEnd := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	updated, err := st.Decisions.RetroactivelyResolveBySuspension(ctx, "S1", windowStart, &windowEnd)
	require.NoError(t, err)
	require.Equal(t, 1, updated)

	final, err := st.Decisions.FindBySession(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeCompliant, final.Outcome)
	require.Equal(t, "ENFORCEMENT_DISABLED_RETROACTIVE", final.RuleApplied)
	require.Equal(t, domain.DecisionAutoResolved, final.Status)
}

// Boundary: duration == grace total exactly => WITHIN_GRACE.
func TestBoundaryExactGraceTotal(t *testing.T) {
	engine, st := newEngine(t, domain.EnforcementPayAndDisplay, false)
	ctx := context.Background()
	start := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(20 * time.Minute) // G_entry(10) + G_exit(10)
	sess := closeSession(t, ctx, st, "AB12CDE", start, end)

	d, _, err := engine.Evaluate(ctx, sess, "")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeCompliant, d.Outcome)
	require.Equal(t, rules.RuleWithinGrace, d.RuleApplied)
}

// Boundary: payment expiry == mandatoryEnd exactly => VALID_PAYMENT.
func TestBoundaryPaymentExpiryExactlyAtMandatoryEnd(t *testing.T) {
	engine, st := newEngine(t, domain.EnforcementPayAndDisplay, false)
	ctx := context.Background()
	start := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(60 * time.Minute)
	sess := closeSession(t, ctx, st, "AB12CDE", start, end)

	mandatoryEnd := end.Add(-10 * time.Minute)
	require.NoError(t, st.Payments.Insert(ctx, &domain.Payment{
		VRM: "AB12CDE", SiteID: "S1", StartTime: start, ExpiryTime: mandatoryEnd,
		Source: "app", ExternalReference: "ref-boundary",
	}))

	d, _, err := engine.Evaluate(ctx, sess, "")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeCompliant, d.Outcome)
	require.Equal(t, rules.RuleValidPayment, d.RuleApplied)
}

// Boundary: overstay == grace overstay minutes exactly => OVERSTAY_WITHIN_GRACE.
func TestBoundaryOverstayExactlyAtGrace(t *testing.T) {
	engine, st := newEngine(t, domain.EnforcementPayAndDisplay, false)
	ctx := context.Background()
	start := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(60 * time.Minute)
	sess := closeSession(t, ctx, st, "AB12CDE", start, end)

	mandatoryStart := start.Add(10 * time.Minute)
	mandatoryEnd := end.Add(-10 * time.Minute)
	expiry := mandatoryEnd.Add(-15 * time.Minute) // exactly OverstayMinutes early

	require.NoError(t, st.Payments.Insert(ctx, &domain.Payment{
		VRM: "AB12CDE", SiteID: "S1", StartTime: mandatoryStart, ExpiryTime: expiry,
		Source: "app", ExternalReference: "ref-overstay",
	}))

	d, _, err := engine.Evaluate(ctx, sess, "")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeCompliant, d.Outcome)
	require.Equal(t, rules.RuleOverstayWithinGrace, d.RuleApplied)
}

func TestEnforcementSuspendedShortCircuitsCascade(t *testing.T) {
	engine, st := newEngine(t, domain.EnforcementPayAndDisplay, true)
	ctx := context.Background()
	start := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(120 * time.Minute)
	sess := closeSession(t, ctx, st, "AB12CDE", start, end)

	d, _, err := engine.Evaluate(ctx, sess, "")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeCompliant, d.Outcome)
	require.Equal(t, rules.RuleEnforcementDisabled, d.RuleApplied)
}

func TestIncompleteSessionWithinGrace(t *testing.T) {
	engine, st := newEngine(t, domain.EnforcementPayAndDisplay, false)
	ctx := context.Background()
	sess := domain.Session{ID: "open-1", SiteID: "S1", VRM: "AB12CDE", StartTime: time.Now().Add(-5 * time.Minute)}
	_ = st

	d, _, err := engine.Evaluate(ctx, sess, "")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeCompliant, d.Outcome)
	require.Equal(t, rules.RuleWithinGrace, d.RuleApplied)
}

func TestIncompleteSessionBeyondGraceRequiresReview(t *testing.T) {
	engine, st := newEngine(t, domain.EnforcementPayAndDisplay, false)
	ctx := context.Background()
	sess := domain.Session{ID: "open-2", SiteID: "S1", VRM: "AB12CDE", StartTime: time.Now().Add(-48 * time.Hour)}
	_ = st

	d, _, err := engine.Evaluate(ctx, sess, "")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeRequiresReview, d.Outcome)
	require.Equal(t, rules.RuleIncompleteSession, d.RuleApplied)
}
