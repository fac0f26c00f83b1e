package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/anpr/compliance-core/internal/anpr/domain"
	"github.com/anpr/compliance-core/internal/anpr/rules"
	"github.com/anpr/compliance-core/internal/anpr/session"
	"github.com/anpr/compliance-core/internal/audit"
	"github.com/anpr/compliance-core/internal/store/memstore"
	"github.com/stretchr/testify/require"
)

func newHarness(t *testing.T) (*session.Reconstructor, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	st.Sites.Put(domain.Site{
		ID:          "site-1",
		Name:        "Test Site",
		Active:      true,
		Grace:       domain.DefaultGracePeriods(),
		Enforcement: domain.EnforcementPayAndDisplay,
	})
	sink := audit.NewMemorySink()
	engine := rules.New(st.Sites, st.Permits, st.Payments, st.Decisions, noopSuspensions{}, sink)
	return session.New(st.Sessions, engine, sink, nil), st
}

type noopSuspensions struct{}

func (noopSuspensions) IsDisabled(context.Context, string, time.Time) (bool, error) { return false, nil }

func TestEntryOpensProvisionalSession(t *testing.T) {
	r, st := newHarness(t)
	ctx := context.Background()
	start := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

	err := r.Observe(ctx, domain.Movement{ID: "m1", SiteID: "site-1", VRM: "AB12CDE", Timestamp: start, Direction: domain.DirectionEntry})
	require.NoError(t, err)

	open, err := st.Sessions.FindOpen(ctx, "site-1", "AB12CDE")
	require.NoError(t, err)
	require.NotNil(t, open)
	require.Equal(t, domain.SessionProvisional, open.Status)
	require.True(t, open.StartTime.Equal(start))
}

func TestDuplicateEntrySuppressed(t *testing.T) {
	r, st := newHarness(t)
	ctx := context.Background()
	start := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, r.Observe(ctx, domain.Movement{ID: "m1", SiteID: "site-1", VRM: "AB12CDE", Timestamp: start, Direction: domain.DirectionEntry}))
	require.NoError(t, r.Observe(ctx, domain.Movement{ID: "m2", SiteID: "site-1", VRM: "AB12CDE", Timestamp: start.Add(time.Minute), Direction: domain.DirectionEntry}))

	all, err := st.Sessions.FindStaleOpen(ctx, start.Add(48*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, all, 1, "second entry must not open a second session")
}

func TestExitClosesSessionAndEvaluates(t *testing.T) {
	r, st := newHarness(t)
	ctx := context.Background()
	start := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	exit := start.Add(30 * time.Minute)

	require.NoError(t, r.Observe(ctx, domain.Movement{ID: "m1", SiteID: "site-1", VRM: "AB12CDE", Timestamp: start, Direction: domain.DirectionEntry}))
	require.NoError(t, r.Observe(ctx, domain.Movement{ID: "m2", SiteID: "site-1", VRM: "AB12CDE", Timestamp: exit, Direction: domain.DirectionExit}))

	open, err := st.Sessions.FindOpen(ctx, "site-1", "AB12CDE")
	require.NoError(t, err)
	require.Nil(t, open, "session must be closed after exit")

	stale, err := st.Sessions.FindStaleOpen(ctx, exit.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 0)
}

func TestOrphanExitBeforeSessionStartLeavesSessionOpen(t *testing.T) {
	r, st := newHarness(t)
	ctx := context.Background()
	start := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	before := start.Add(-time.Hour)

	require.NoError(t, r.Observe(ctx, domain.Movement{ID: "m1", SiteID: "site-1", VRM: "AB12CDE", Timestamp: start, Direction: domain.DirectionEntry}))
	require.NoError(t, r.Observe(ctx, domain.Movement{ID: "m2", SiteID: "site-1", VRM: "AB12CDE", Timestamp: before, Direction: domain.DirectionExit}))

	open, err := st.Sessions.FindOpen(ctx, "site-1", "AB12CDE")
	require.NoError(t, err)
	require.NotNil(t, open, "session must remain open when exit precedes start")
}

func TestOrphanExitWithNoOpenSessionIsIgnored(t *testing.T) {
	r, _ := newHarness(t)
	ctx := context.Background()
	require.NoError(t, r.Observe(ctx, domain.Movement{ID: "m1", SiteID: "site-1", VRM: "ZZ99ZZZ", Timestamp: time.Now(), Direction: domain.DirectionExit}))
}

func TestExpireStaleForceExpiresWithoutRuleEngine(t *testing.T) {
	r, st := newHarness(t)
	ctx := context.Background()
	start := time.Now().Add(-48 * time.Hour)

	require.NoError(t, r.Observe(ctx, domain.Movement{ID: "m1", SiteID: "site-1", VRM: "AB12CDE", Timestamp: start, Direction: domain.DirectionEntry}))

	count, err := r.ExpireStale(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, count)

	open, err := st.Sessions.FindOpen(ctx, "site-1", "AB12CDE")
	require.NoError(t, err)
	require.Nil(t, open)

	dec, err := st.Decisions.FindBySession(ctx, "")
	require.NoError(t, err)
	require.Nil(t, dec)
}

func TestMovementsRequiringReviewAreSkipped(t *testing.T) {
	r, st := newHarness(t)
	ctx := context.Background()
	require.NoError(t, r.Observe(ctx, domain.Movement{
		ID: "m1", SiteID: "site-1", VRM: "???????", Timestamp: time.Now(),
		Direction: domain.DirectionEntry, RequiresReview: true,
	}))

	open, err := st.Sessions.FindOpen(ctx, "site-1", "???????")
	require.NoError(t, err)
	require.Nil(t, open)
}
