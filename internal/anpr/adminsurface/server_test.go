package adminsurface_test

import (
	"context"
	"testing"
	"time"

	"github.com/anpr/compliance-core/internal/anpr/adminsurface"
	"github.com/anpr/compliance-core/internal/anpr/domain"
	"github.com/anpr/compliance-core/internal/anpr/platevalidator"
	"github.com/anpr/compliance-core/internal/anpr/reconciliation"
	"github.com/anpr/compliance-core/internal/anpr/review"
	"github.com/anpr/compliance-core/internal/anpr/rules"
	"github.com/anpr/compliance-core/internal/anpr/session"
	"github.com/anpr/compliance-core/internal/anpr/suspension"
	"github.com/anpr/compliance-core/internal/audit"
	"github.com/anpr/compliance-core/internal/store/memstore"
	"github.com/anpr/compliance-core/pb/anpradmin"
	"github.com/stretchr/testify/require"
)

type noopSuspensions struct{}

func (noopSuspensions) IsDisabled(context.Context, string, time.Time) (bool, error) { return false, nil }

func newServer(t *testing.T) (*adminsurface.Server, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	st.Sites.Put(domain.Site{ID: "site-1", Active: true, Grace: domain.DefaultGracePeriods(), Enforcement: domain.EnforcementPayAndDisplay})
	sink := audit.NewMemorySink()
	engine := rules.New(st.Sites, st.Permits, st.Payments, st.Decisions, noopSuspensions{}, sink)
	recon := reconciliation.New(st.Sessions, engine, sink, nil)
	susp := suspension.New(st.Suspensions, st.Decisions, sink)
	sessRecon := session.New(st.Sessions, engine, sink, nil)
	reviews := review.New(st.Reviews, st.Movements, platevalidator.New(), sessRecon, sink)
	return adminsurface.New(recon, susp, reviews), st
}

func TestTriggerSiteReconciliationRequiresSiteID(t *testing.T) {
	srv, _ := newServer(t)
	_, err := srv.TriggerSiteReconciliation(context.Background(), &anpradmin.TriggerSiteReconciliationRequest{})
	require.Error(t, err)
}

func TestCreateAndEndSuspensionRoundTrip(t *testing.T) {
	srv, _ := newServer(t)
	ctx := context.Background()

	created, err := srv.CreateSuspension(ctx, &anpradmin.CreateSuspensionRequest{
		SiteID: "site-1", StartDate: time.Now(), Reason: "planned closure for resurfacing works", CreatedBy: "op1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.SuspensionID)

	ended, err := srv.EndSuspension(ctx, &anpradmin.EndSuspensionRequest{
		SuspensionID: created.SuspensionID, Reason: "works finished early", EndedBy: "op1",
	})
	require.NoError(t, err)
	require.Equal(t, created.SuspensionID, ended.SuspensionID)
}

func TestBulkDiscardReviewsRequiresReasonTag(t *testing.T) {
	srv, _ := newServer(t)
	_, err := srv.BulkDiscardReviews(context.Background(), &anpradmin.BulkDiscardReviewsRequest{})
	require.Error(t, err)
}

func TestTriggerSiteReconciliationRunsAgainstSite(t *testing.T) {
	srv, _ := newServer(t)
	resp, err := srv.TriggerSiteReconciliation(context.Background(), &anpradmin.TriggerSiteReconciliationRequest{SiteID: "site-1"})
	require.NoError(t, err)
	require.Equal(t, int32(0), resp.SessionsReevaluated)
}
