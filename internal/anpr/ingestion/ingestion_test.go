package ingestion_test

import (
	"context"
	"testing"
	"time"

	"github.com/anpr/compliance-core/internal/anpr/domain"
	"github.com/anpr/compliance-core/internal/anpr/ingestion"
	"github.com/anpr/compliance-core/internal/anpr/platevalidator"
	"github.com/anpr/compliance-core/internal/anpr/rules"
	"github.com/anpr/compliance-core/internal/anpr/session"
	"github.com/anpr/compliance-core/internal/audit"
	"github.com/anpr/compliance-core/internal/store/memstore"
	"github.com/stretchr/testify/require"
)

type noopSuspensions struct{}

func (noopSuspensions) IsDisabled(context.Context, string, time.Time) (bool, error) { return false, nil }

type noopReconciler struct{}

func (noopReconciler) OnPayment(context.Context, string, string, time.Time, time.Time) error {
	return nil
}
func (noopReconciler) OnPermit(context.Context, string, string, bool) error { return nil }

func newPipeline(t *testing.T) (*ingestion.Pipeline, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	st.Sites.Put(domain.Site{
		ID:     "site-1",
		Active: true,
		Grace:  domain.DefaultGracePeriods(),
		Cameras: []domain.Camera{
			{ID: "cam-1", TowardsDirection: domain.DirectionEntry, AwayDirection: domain.DirectionExit},
		},
		Enforcement: domain.EnforcementPayAndDisplay,
	})
	sink := audit.NewMemorySink()
	engine := rules.New(st.Sites, st.Permits, st.Payments, st.Decisions, noopSuspensions{}, sink)
	reconstructor := session.New(st.Sessions, engine, sink, nil)
	pipeline := ingestion.New(st.Sites, st.Movements, st.Payments, st.Permits, st.Reviews,
		platevalidator.New(), reconstructor, nil, noopReconciler{}, sink, nil)
	return pipeline, st
}

func TestIngestMovementUnknownSiteFails(t *testing.T) {
	pipeline, _ := newPipeline(t)
	_, err := pipeline.IngestMovement(context.Background(), ingestion.RawMovement{
		SiteID: "no-such-site", VRM: "AB12CDE", Timestamp: time.Now(), CameraID: "cam-1", RawSignal: "TOWARDS",
	})
	require.Error(t, err)
}

func TestIngestMovementRequiresVRM(t *testing.T) {
	pipeline, _ := newPipeline(t)
	_, err := pipeline.IngestMovement(context.Background(), ingestion.RawMovement{SiteID: "site-1"})
	require.Error(t, err)
}

func TestIngestMovementNewThenDuplicate(t *testing.T) {
	pipeline, _ := newPipeline(t)
	ts := time.Now()

	first, err := pipeline.IngestMovement(context.Background(), ingestion.RawMovement{
		SiteID: "site-1", VRM: "ab12cde", Timestamp: ts, CameraID: "cam-1", RawSignal: "TOWARDS",
	})
	require.NoError(t, err)
	require.True(t, first.IsNew)
	require.Equal(t, domain.DirectionEntry, first.Movement.Direction)

	second, err := pipeline.IngestMovement(context.Background(), ingestion.RawMovement{
		SiteID: "site-1", VRM: "AB12CDE", Timestamp: ts, CameraID: "cam-1", RawSignal: "TOWARDS",
	})
	require.NoError(t, err)
	require.False(t, second.IsNew)
	require.Equal(t, first.Movement.ID, second.Movement.ID)
}

func TestIngestPaymentDedupesByExternalReference(t *testing.T) {
	pipeline, _ := newPipeline(t)
	raw := ingestion.RawPayment{
		VRM: "ab12cde", SiteID: "site-1", Amount: 2.50,
		StartTime: time.Now(), ExpiryTime: time.Now().Add(time.Hour),
		Source: "paybyphone", ExternalReference: "ext-1",
	}

	first, err := pipeline.IngestPayment(context.Background(), raw)
	require.NoError(t, err)

	second, err := pipeline.IngestPayment(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestIngestPermitUpserts(t *testing.T) {
	pipeline, _ := newPipeline(t)
	permit, err := pipeline.IngestPermit(context.Background(), ingestion.RawPermit{
		VRM: "ab12cde", SiteID: "site-1", Type: domain.PermitResident, Active: true,
		StartDate: time.Now(), ExternalID: "permit-ext-1",
	})
	require.NoError(t, err)
	require.True(t, permit.Active)
}
