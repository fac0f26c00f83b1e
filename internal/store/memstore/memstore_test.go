package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/anpr/compliance-core/internal/anpr/domain"
	"github.com/stretchr/testify/require"
)

// A re-ingested global permit (no external id) must collapse onto the
// existing natural-key row instead of accumulating a stale duplicate —
// the in-memory equivalent of the permits_natural_key constraint pgstore
// relies on.
func TestPermitsUpsertCollapsesByNaturalKeyOnReingest(t *testing.T) {
	permits := NewPermits()
	ctx := context.Background()

	first := &domain.Permit{
		VRM: "AB12CDE", SiteID: "", Type: domain.PermitResident,
		Active: true, StartDate: time.Now(),
	}
	require.NoError(t, permits.Upsert(ctx, first, ""))

	second := &domain.Permit{
		VRM: "AB12CDE", SiteID: "", Type: domain.PermitResident,
		Active: false, StartDate: first.StartDate,
	}
	require.NoError(t, permits.Upsert(ctx, second, ""))

	require.Equal(t, first.ID, second.ID)
	require.Len(t, permits.rows, 1)
	require.False(t, permits.rows[second.ID].Active)
}
