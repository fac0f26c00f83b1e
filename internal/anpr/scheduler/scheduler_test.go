package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/anpr/compliance-core/internal/anpr/domain"
	"github.com/anpr/compliance-core/internal/anpr/rules"
	"github.com/anpr/compliance-core/internal/anpr/scheduler"
	"github.com/anpr/compliance-core/internal/anpr/session"
	"github.com/anpr/compliance-core/internal/audit"
	"github.com/anpr/compliance-core/internal/store/memstore"
	"github.com/stretchr/testify/require"
)

type noopSuspensions struct{}

func (noopSuspensions) IsDisabled(context.Context, string, time.Time) (bool, error) { return false, nil }

func TestRunReevaluationRevisitsCandidates(t *testing.T) {
	st := memstore.New()
	st.Sites.Put(domain.Site{ID: "site-1", Active: true, Grace: domain.DefaultGracePeriods(), Enforcement: domain.EnforcementPayAndDisplay})

	sink := audit.NewMemorySink()
	engine := rules.New(st.Sites, st.Permits, st.Payments, st.Decisions, noopSuspensions{}, sink)
	reconstructor := session.New(st.Sessions, engine, sink, nil)
	sched := scheduler.New(st.Decisions, st.Sessions, engine, reconstructor, nil, sink, nil)

	start := time.Now().Add(-3 * time.Hour)
	sess := &domain.Session{ID: "sess-1", SiteID: "site-1", VRM: "AB12CDE", StartTime: start, Status: domain.SessionProvisional}
	require.NoError(t, st.Sessions.InsertOpen(context.Background(), sess))
	end := start.Add(2 * time.Hour)
	_, err := st.Sessions.Close(context.Background(), "sess-1", end, "exit-movement-1")
	require.NoError(t, err)

	_, _, err = st.Decisions.UpsertIfMutable(context.Background(), &domain.Decision{
		SessionID:   "sess-1",
		Outcome:     domain.OutcomeEnforcementCandidate,
		RuleApplied: "OVERSTAY",
		Rationale:   "overstayed grace period",
		Status:      domain.DecisionCandidate,
	})
	require.NoError(t, err)

	summary, err := sched.RunReevaluation(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Considered)
}

func TestRunExpirySweepExpiresStaleOpenSessions(t *testing.T) {
	st := memstore.New()
	st.Sites.Put(domain.Site{ID: "site-1", Active: true, Grace: domain.DefaultGracePeriods(), Enforcement: domain.EnforcementPayAndDisplay})

	sink := audit.NewMemorySink()
	engine := rules.New(st.Sites, st.Permits, st.Payments, st.Decisions, noopSuspensions{}, sink)
	reconstructor := session.New(st.Sessions, engine, sink, nil)
	sched := scheduler.New(st.Decisions, st.Sessions, engine, reconstructor, nil, sink, nil)

	stale := &domain.Session{
		ID: "sess-stale", SiteID: "site-1", VRM: "AB12CDE",
		StartTime: time.Now().Add(-48 * time.Hour), Status: domain.SessionProvisional,
	}
	require.NoError(t, st.Sessions.InsertOpen(context.Background(), stale))

	count, err := sched.RunExpirySweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
