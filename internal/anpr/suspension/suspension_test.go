package suspension_test

import (
	"context"
	"testing"
	"time"

	"github.com/anpr/compliance-core/internal/anpr/domain"
	"github.com/anpr/compliance-core/internal/anpr/suspension"
	"github.com/anpr/compliance-core/internal/audit"
	"github.com/anpr/compliance-core/internal/store/memstore"
	"github.com/stretchr/testify/require"
)

func TestCreateRejectsShortReason(t *testing.T) {
	st := memstore.New()
	reg := suspension.New(st.Suspensions, st.Decisions, audit.NewMemorySink())
	_, err := reg.Create(context.Background(), "site-1", time.Now(), nil, "too short", "op1")
	require.Error(t, err)
}

func TestCreateRejectsEndBeforeStart(t *testing.T) {
	st := memstore.New()
	reg := suspension.New(st.Suspensions, st.Decisions, audit.NewMemorySink())
	start := time.Now()
	end := start.Add(-time.Hour)
	_, err := reg.Create(context.Background(), "site-1", start, &end, "roadworks closure for resurfacing", "op1")
	require.Error(t, err)
}

func TestCreateRetroactivelyResolvesCoveredCandidates(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()

	start := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Hour)
	sess := &domain.Session{SiteID: "site-1", VRM: "AB12CDE", StartTime: start}
	require.NoError(t, st.Sessions.InsertOpen(ctx, sess))
	closed, err := st.Sessions.Close(ctx, sess.ID, end, "exit-movement")
	require.NoError(t, err)

	_, applied, err := st.Decisions.UpsertIfMutable(ctx, &domain.Decision{
		SessionID: closed.ID, Outcome: domain.OutcomeEnforcementCandidate,
		RuleApplied: "NO_VALID_PAYMENT", Status: domain.DecisionNew,
	})
	require.NoError(t, err)
	require.True(t, applied)

	reg := suspension.New(st.Suspensions, st.Decisions, audit.NewMemorySink())
	windowStart := start.Add(-time.Hour)
	windowEnd := end.Add(time.Hour)
	_, err = reg.Create(ctx, "site-1", windowStart, &windowEnd, "planned closure for resurfacing works", "op1")
	require.NoError(t, err)

	dec, err := st.Decisions.FindBySession(ctx, closed.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeCompliant, dec.Outcome)
	require.Equal(t, domain.DecisionAutoResolved, dec.Status)
}

func TestIsDisabledReflectsActiveSuspension(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	reg := suspension.New(st.Suspensions, st.Decisions, audit.NewMemorySink())

	now := time.Now()
	disabled, err := reg.IsDisabled(ctx, "site-1", now)
	require.NoError(t, err)
	require.False(t, disabled)

	_, err = reg.Create(ctx, "site-1", now.Add(-time.Hour), nil, "ongoing resurfacing works at site", "op1")
	require.NoError(t, err)

	disabled, err = reg.IsDisabled(ctx, "site-1", now)
	require.NoError(t, err)
	require.True(t, disabled)
}
