package review_test

import (
	"context"
	"testing"
	"time"

	"github.com/anpr/compliance-core/internal/anpr/domain"
	"github.com/anpr/compliance-core/internal/anpr/platevalidator"
	"github.com/anpr/compliance-core/internal/anpr/review"
	"github.com/anpr/compliance-core/internal/anpr/rules"
	"github.com/anpr/compliance-core/internal/anpr/session"
	"github.com/anpr/compliance-core/internal/audit"
	"github.com/anpr/compliance-core/internal/store/memstore"
	"github.com/stretchr/testify/require"
)

type noopSuspensions struct{}

func (noopSuspensions) IsDisabled(context.Context, string, time.Time) (bool, error) { return false, nil }

func newWorkflow(t *testing.T) (*review.Workflow, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	st.Sites.Put(domain.Site{ID: "site-1", Active: true, Grace: domain.DefaultGracePeriods(), Enforcement: domain.EnforcementPayAndDisplay})
	sink := audit.NewMemorySink()
	engine := rules.New(st.Sites, st.Permits, st.Payments, st.Decisions, noopSuspensions{}, sink)
	recon := session.New(st.Sessions, engine, sink, nil)
	validator := platevalidator.New()
	wf := review.New(st.Reviews, st.Movements, validator, recon, sink)
	return wf, st
}

func seedPendingReview(t *testing.T, ctx context.Context, st *memstore.Store, vrm string) *domain.PlateReview {
	t.Helper()
	m := &domain.Movement{
		SiteID: "site-1", VRM: vrm, Timestamp: time.Now(), Direction: domain.DirectionEntry, RequiresReview: true,
	}
	require.NoError(t, st.Movements.Insert(ctx, m))
	r := &domain.PlateReview{
		MovementID: m.ID, OriginalVRM: vrm, NormalizedVRM: vrm, SiteID: "site-1",
		Timestamp: m.Timestamp, ReviewStatus: domain.ReviewPending,
	}
	require.NoError(t, st.Reviews.Insert(ctx, r))
	return r
}

func TestApproveClearsRequiresReviewAndResubmits(t *testing.T) {
	wf, st := newWorkflow(t)
	ctx := context.Background()
	r := seedPendingReview(t, ctx, st, "AB12CDE")

	approved, err := wf.Approve(ctx, r.ID, "reviewer-1")
	require.NoError(t, err)
	require.Equal(t, domain.ReviewApproved, approved.ReviewStatus)

	m, err := st.Movements.Get(ctx, r.MovementID)
	require.NoError(t, err)
	require.False(t, m.RequiresReview)

	open, err := st.Sessions.FindOpen(ctx, "site-1", "AB12CDE")
	require.NoError(t, err)
	require.NotNil(t, open, "resubmitted movement should open a session")
}

func TestApproveTwiceFailsWithInvalidTransition(t *testing.T) {
	wf, st := newWorkflow(t)
	ctx := context.Background()
	r := seedPendingReview(t, ctx, st, "AB12CDE")

	_, err := wf.Approve(ctx, r.ID, "reviewer-1")
	require.NoError(t, err)

	_, err = wf.Approve(ctx, r.ID, "reviewer-1")
	require.Error(t, err)
}

func TestCorrectRewritesMovementVRM(t *testing.T) {
	wf, st := newWorkflow(t)
	ctx := context.Background()
	r := seedPendingReview(t, ctx, st, "I812CDE")

	corrected, err := wf.Correct(ctx, r.ID, "reviewer-1", "AB12CDE")
	require.NoError(t, err)
	require.Equal(t, domain.ReviewCorrected, corrected.ReviewStatus)
	require.NotNil(t, corrected.CorrectedVRM)
	require.Equal(t, "AB12CDE", *corrected.CorrectedVRM)

	m, err := st.Movements.Get(ctx, r.MovementID)
	require.NoError(t, err)
	require.Equal(t, "AB12CDE", m.VRM)
	require.False(t, m.RequiresReview)
}

func TestCorrectRejectsInvalidFormat(t *testing.T) {
	wf, st := newWorkflow(t)
	ctx := context.Background()
	r := seedPendingReview(t, ctx, st, "???????")

	_, err := wf.Correct(ctx, r.ID, "reviewer-1", "!!!!!!!")
	require.Error(t, err)
}

func TestDiscardLeavesMovementRequiresReview(t *testing.T) {
	wf, st := newWorkflow(t)
	ctx := context.Background()
	r := seedPendingReview(t, ctx, st, "AB12CDE")

	discarded, err := wf.Discard(ctx, r.ID, "reviewer-1", "confirmed false positive read")
	require.NoError(t, err)
	require.Equal(t, domain.ReviewDiscarded, discarded.ReviewStatus)

	m, err := st.Movements.Get(ctx, r.MovementID)
	require.NoError(t, err)
	require.True(t, m.RequiresReview)

	open, err := st.Sessions.FindOpen(ctx, "site-1", "AB12CDE")
	require.NoError(t, err)
	require.Nil(t, open)
}

func TestBulkDiscardByReasonIsBestEffort(t *testing.T) {
	wf, st := newWorkflow(t)
	ctx := context.Background()

	r1 := seedPendingReview(t, ctx, st, "AB12CDE")
	r1.SuspicionReasons = []string{"ALL_SAME_CHARACTER"}
	require.NoError(t, st.Reviews.Update(ctx, r1))

	r2 := seedPendingReview(t, ctx, st, "CD34EFG")
	r2.SuspicionReasons = []string{"ALL_SAME_CHARACTER"}
	require.NoError(t, st.Reviews.Update(ctx, r2))

	result := wf.BulkDiscardByReason(ctx, "ALL_SAME_CHARACTER", 10)
	require.Equal(t, 2, result.Discarded)
	require.Equal(t, 0, result.Failed)
}
