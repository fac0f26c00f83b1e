// Package siteconfig is the read-only C13 component: Sites are created and
// updated externally (spec §3) and the core only ever reads them, cached
// with a short TTL so a transient read failure never blocks ingestion.
package siteconfig

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anpr/compliance-core/internal/anpr/domain"
	"github.com/anpr/compliance-core/internal/circuitbreaker"
	"github.com/anpr/compliance-core/internal/config"
	supabase "github.com/supabase-community/supabase-go"
)

// row mirrors the externally-managed "sites" table shape, matching the
// teacher's per-table struct-plus-json-tags style in internal/database.
type row struct {
	SiteID        string       `json:"site_id"`
	Name          string       `json:"name"`
	Active        bool         `json:"active"`
	EntryGraceMin int          `json:"entry_grace_minutes"`
	ExitGraceMin  int          `json:"exit_grace_minutes"`
	OverstayMin   int          `json:"overstay_grace_minutes"`
	Enforcement   string       `json:"enforcement_type"`
	Cameras       []cameraRow  `json:"cameras"`
}

type cameraRow struct {
	ID               string `json:"id"`
	TowardsDirection string `json:"towards_direction"`
	AwayDirection    string `json:"away_direction"`
}

func (r row) toDomain() domain.Site {
	site := domain.Site{
		ID:     r.SiteID,
		Name:   r.Name,
		Active: r.Active,
		Grace: domain.GracePeriods{
			EntryMinutes:    nonZero(r.EntryGraceMin, 10),
			ExitMinutes:     nonZero(r.ExitGraceMin, 10),
			OverstayMinutes: nonZero(r.OverstayMin, 15),
		},
		Enforcement: domain.EnforcementType(r.Enforcement),
	}
	for _, c := range r.Cameras {
		site.Cameras = append(site.Cameras, domain.Camera{
			ID:               c.ID,
			TowardsDirection: domain.Direction(c.TowardsDirection),
			AwayDirection:    domain.Direction(c.AwayDirection),
		})
	}
	return site
}

func nonZero(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// Reader is a read-only, cached Site config client implementing
// store.SiteStore.
type Reader struct {
	client    *supabase.Client
	ttl       time.Duration
	overrides *config.OverridesManager
	breaker   *circuitbreaker.CircuitBreaker

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	site     domain.Site
	fetched  time.Time
}

// NewReader wraps an already-constructed Supabase client. overrides may be
// nil; when set, it seeds sites the client has never successfully fetched,
// so a site with a locally-authored fallback survives a cold start with no
// Supabase connectivity at all. breaker may be nil; when set, it trips after
// repeated Supabase failures so a degraded Supabase doesn't pile up a retry
// on every ingested movement.
func NewReader(client *supabase.Client, ttl time.Duration, overrides *config.OverridesManager, breaker *circuitbreaker.CircuitBreaker) *Reader {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Reader{client: client, ttl: ttl, overrides: overrides, breaker: breaker, cache: make(map[string]cacheEntry)}
}

// Get returns the Site config for siteID, refreshing from Supabase if the
// cached copy is older than the TTL. On a read failure it falls back to the
// last good cached copy, and if none exists yet, to a locally-configured
// override, rather than failing the caller.
func (r *Reader) Get(ctx context.Context, siteID string) (*domain.Site, error) {
	r.mu.RLock()
	entry, ok := r.cache[siteID]
	r.mu.RUnlock()

	if ok && time.Since(entry.fetched) < r.ttl {
		site := entry.site
		return &site, nil
	}

	fresh, err := r.fetch(ctx, siteID)
	if err != nil {
		if ok {
			site := entry.site
			return &site, nil
		}
		if site, found := r.overrideSite(siteID); found {
			return &site, nil
		}
		return nil, fmt.Errorf("siteconfig: fetch %s: %w", siteID, err)
	}
	if fresh == nil {
		if site, found := r.overrideSite(siteID); found {
			return &site, nil
		}
		return nil, nil
	}

	r.mu.Lock()
	r.cache[siteID] = cacheEntry{site: *fresh, fetched: time.Now()}
	r.mu.Unlock()

	return fresh, nil
}

func (r *Reader) overrideSite(siteID string) (domain.Site, bool) {
	if r.overrides == nil {
		return domain.Site{}, false
	}
	ov, ok := r.overrides.Get(siteID)
	if !ok {
		return domain.Site{}, false
	}
	return domain.Site{
		ID:     siteID,
		Name:   ov.Name,
		Active: ov.Active,
		Grace: domain.GracePeriods{
			EntryMinutes:    nonZero(ov.EntryGraceMin, 10),
			ExitMinutes:     nonZero(ov.ExitGraceMin, 10),
			OverstayMinutes: nonZero(ov.OverstayGraceMin, 15),
		},
		Enforcement: domain.EnforcementType(ov.Enforcement),
	}, true
}

func (r *Reader) fetch(ctx context.Context, siteID string) (*domain.Site, error) {
	if r.client == nil {
		return nil, fmt.Errorf("siteconfig: no supabase client configured")
	}
	var rows []row
	doFetch := func() (interface{}, error) {
		_, err := r.client.From("sites").
			Select("*", "", false).
			Eq("site_id", siteID).
			ExecuteTo(&rows)
		return nil, err
	}

	var err error
	if r.breaker != nil {
		_, err = r.breaker.ExecuteContext(ctx, func(context.Context) (interface{}, error) { return doFetch() })
	} else {
		_, err = doFetch()
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	site := rows[0].toDomain()
	return &site, nil
}
