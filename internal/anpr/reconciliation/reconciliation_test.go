package reconciliation_test

import (
	"context"
	"testing"
	"time"

	"github.com/anpr/compliance-core/internal/anpr/domain"
	"github.com/anpr/compliance-core/internal/anpr/reconciliation"
	"github.com/anpr/compliance-core/internal/anpr/rules"
	"github.com/anpr/compliance-core/internal/audit"
	"github.com/anpr/compliance-core/internal/store/memstore"
	"github.com/stretchr/testify/require"
)

type noopSuspensions struct{}

func (noopSuspensions) IsDisabled(context.Context, string, time.Time) (bool, error) { return false, nil }

func TestOnPaymentFlipsEnforcementCandidateToCompliant(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	st.Sites.Put(domain.Site{ID: "site-1", Active: true, Grace: domain.DefaultGracePeriods(), Enforcement: domain.EnforcementPayAndDisplay})

	start := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Hour)
	sess := &domain.Session{SiteID: "site-1", VRM: "AB12CDE", StartTime: start}
	require.NoError(t, st.Sessions.InsertOpen(ctx, sess))
	closed, err := st.Sessions.Close(ctx, sess.ID, end, "exit-movement")
	require.NoError(t, err)

	sink := audit.NewMemorySink()
	engine := rules.New(st.Sites, st.Permits, st.Payments, st.Decisions, noopSuspensions{}, sink)
	_, _, err = engine.Evaluate(ctx, *closed, "")
	require.NoError(t, err)

	dec, err := st.Decisions.FindBySession(ctx, closed.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeEnforcementCandidate, dec.Outcome)

	require.NoError(t, st.Payments.Insert(ctx, &domain.Payment{
		VRM: "AB12CDE", SiteID: "site-1",
		StartTime: start, ExpiryTime: end.Add(time.Hour),
		Source: "app", ExternalReference: "ref-1",
	}))

	svc := reconciliation.New(st.Sessions, engine, sink, nil)
	result, err := svc.OnSite(ctx, "site-1", 10)
	require.NoError(t, err)
	require.Equal(t, 1, result.SessionsReevaluated)
	require.Equal(t, 1, result.DecisionsUpdated)

	dec, err = st.Decisions.FindBySession(ctx, closed.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeCompliant, dec.Outcome)
}

func TestOnPermitNoopWhenInactive(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	sink := audit.NewMemorySink()
	engine := rules.New(st.Sites, st.Permits, st.Payments, st.Decisions, noopSuspensions{}, sink)
	svc := reconciliation.New(st.Sessions, engine, sink, nil)

	require.NoError(t, svc.OnPermit(ctx, "AB12CDE", "site-1", false))
}

func TestReconciliationNeverOverwritesHumanReviewedDecision(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	st.Sites.Put(domain.Site{ID: "site-1", Active: true, Grace: domain.DefaultGracePeriods(), Enforcement: domain.EnforcementPayAndDisplay})

	start := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Hour)
	sess := &domain.Session{SiteID: "site-1", VRM: "AB12CDE", StartTime: start}
	require.NoError(t, st.Sessions.InsertOpen(ctx, sess))
	closed, err := st.Sessions.Close(ctx, sess.ID, end, "exit-movement")
	require.NoError(t, err)

	sink := audit.NewMemorySink()
	engine := rules.New(st.Sites, st.Permits, st.Payments, st.Decisions, noopSuspensions{}, sink)
	dec, _, err := engine.Evaluate(ctx, *closed, "")
	require.NoError(t, err)

	dec.Status = domain.DecisionApproved
	dec.Outcome = domain.OutcomeEnforcementCandidate
	_, applied, err := st.Decisions.UpsertIfMutable(ctx, dec)
	require.NoError(t, err)
	require.True(t, applied)

	require.NoError(t, st.Payments.Insert(ctx, &domain.Payment{
		VRM: "AB12CDE", SiteID: "site-1", StartTime: start, ExpiryTime: end.Add(time.Hour), Source: "app", ExternalReference: "ref-2",
	}))

	svc := reconciliation.New(st.Sessions, engine, sink, nil)
	result, err := svc.OnSite(ctx, "site-1", 10)
	require.NoError(t, err)
	require.Equal(t, 0, result.DecisionsUpdated, "an APPROVED decision must never be overwritten")

	final, err := st.Decisions.FindBySession(ctx, closed.ID)
	require.NoError(t, err)
	require.Equal(t, domain.DecisionApproved, final.Status)
	require.Equal(t, domain.OutcomeEnforcementCandidate, final.Outcome)
}
