// Package store defines the persistence interfaces the core depends on.
// Production wiring is Postgres-backed (internal/store/pgstore); tests use
// the in-memory implementations in internal/store/memstore. No package in
// internal/anpr imports database/sql directly — they depend only on these
// interfaces, matching the teacher's per-entity repository style in
// internal/database/supabase.go.
package store

import (
	"context"
	"time"

	"github.com/anpr/compliance-core/internal/anpr/domain"
)

// MovementStore persists Movements.
type MovementStore interface {
	// FindByNaturalKey looks up a Movement by its (site, vrm, timestamp)
	// identity for dedupe, per spec §4.2.
	FindByNaturalKey(ctx context.Context, siteID, vrm string, ts time.Time) (*domain.Movement, error)
	Insert(ctx context.Context, m *domain.Movement) error
	Update(ctx context.Context, m *domain.Movement) error
	Get(ctx context.Context, id string) (*domain.Movement, error)
}

// SessionStore persists Sessions. InsertOpen must fail with a Conflict
// (apperr.KindConflict) when the (site, vrm) open-session partial unique
// index is violated, per spec §5.
type SessionStore interface {
	// FindOpen returns the current open session (EndTime == nil) for
	// (site, vrm), or nil if none exists.
	FindOpen(ctx context.Context, siteID, vrm string) (*domain.Session, error)
	// InsertOpen creates a new PROVISIONAL session. Returns an
	// apperr.KindConflict error if a concurrent insert already holds the
	// (site, vrm) open slot.
	InsertOpen(ctx context.Context, s *domain.Session) error
	// Close transitions a session to COMPLETED, setting EndTime,
	// DurationMinutes, and ExitMovementID.
	Close(ctx context.Context, sessionID string, endTime time.Time, exitMovementID string) (*domain.Session, error)
	// Expire transitions a session to EXPIRED without invoking the rule
	// engine, per spec §4.3.
	Expire(ctx context.Context, sessionID string, now time.Time) (*domain.Session, error)
	// FindStaleOpen returns up to limit sessions open since before the
	// cutoff, for the scheduled expiry sweep (spec §4.3/§4.6).
	FindStaleOpen(ctx context.Context, cutoff time.Time, limit int) ([]domain.Session, error)
	// FindCompletedOverlapping returns COMPLETED sessions for (vrm, siteID)
	// whose [StartTime, EndTime] interval overlaps [from, to], for
	// reconciliation (spec §4.5).
	FindCompletedOverlapping(ctx context.Context, vrm, siteID string, from, to time.Time) ([]domain.Session, error)
	// FindCompletedForVRM returns COMPLETED sessions for a VRM, optionally
	// scoped to a site (empty siteID = all sites), for permit
	// reconciliation (spec §4.5 onPermit).
	FindCompletedForVRM(ctx context.Context, vrm, siteID string) ([]domain.Session, error)
	// FindCompletedBySite returns up to limit COMPLETED sessions for a
	// site, for the bulk onSite admin operation.
	FindCompletedBySite(ctx context.Context, siteID string, limit int) ([]domain.Session, error)
	Get(ctx context.Context, id string) (*domain.Session, error)
}

// PermitStore persists Permits.
type PermitStore interface {
	// Upsert writes a Permit keyed by external board item id when present,
	// else by (vrm, siteId, type), per spec §4.2.
	Upsert(ctx context.Context, p *domain.Permit, externalID string) error
	// FindApplicable returns permits that could apply at time t for
	// (vrm, siteID) — global or site-scoped, active, in date range.
	FindApplicable(ctx context.Context, vrm, siteID string, t time.Time) ([]domain.Permit, error)
}

// PaymentStore persists Payments.
type PaymentStore interface {
	// FindByDedupeKey looks up a Payment by (externalReference, source).
	FindByDedupeKey(ctx context.Context, externalRef, source string) (*domain.Payment, error)
	Insert(ctx context.Context, p *domain.Payment) error
	// FindCovering returns payments for (vrm, siteId) whose window could
	// cover [mandatoryStart, mandatoryEnd] or part of it, for rule
	// evaluation (spec §4.4 clauses 4 and 6).
	FindCovering(ctx context.Context, vrm, siteID string, mandatoryStart, mandatoryEnd time.Time) ([]domain.Payment, error)
	// ExistsForSite reports whether any payment has ever been recorded for
	// a site, used by the unauthorised-parking clause (spec §4.4 clause 7).
	ExistsForSite(ctx context.Context, siteID string) (bool, error)
}

// DecisionStore persists Decisions, enforcing the one-decision-per-session
// invariant.
type DecisionStore interface {
	FindBySession(ctx context.Context, sessionID string) (*domain.Decision, error)
	// UpsertIfMutable inserts a new Decision, or updates an existing one
	// only if its current Status.Mutable() is true. It returns the
	// resulting Decision and whether an update/insert actually happened
	// (false means a human-reviewed Decision was left untouched).
	UpsertIfMutable(ctx context.Context, d *domain.Decision) (result *domain.Decision, applied bool, err error)
	// FindCandidatesForReevaluation returns up to limit unreviewed
	// ENFORCEMENT_CANDIDATE decisions whose session has an EndTime,
	// oldest first, for the scheduled re-evaluator (spec §4.6).
	FindCandidatesForReevaluation(ctx context.Context, limit int) ([]domain.Decision, error)
	// RetroactivelyResolveBySuspension bulk-flips unreviewed
	// ENFORCEMENT_CANDIDATE decisions for sessions in [start, end] at
	// siteID to COMPLIANT/ENFORCEMENT_DISABLED_RETROACTIVE/AUTO_RESOLVED,
	// in one statement, per spec §4.7. Returns the count updated.
	RetroactivelyResolveBySuspension(ctx context.Context, siteID string, start time.Time, end *time.Time) (int, error)
}

// PlateReviewStore persists PlateReviews.
type PlateReviewStore interface {
	Insert(ctx context.Context, r *domain.PlateReview) error
	Get(ctx context.Context, id string) (*domain.PlateReview, error)
	FindByMovement(ctx context.Context, movementID string) (*domain.PlateReview, error)
	Update(ctx context.Context, r *domain.PlateReview) error
	// FindPendingByReason returns up to limit PENDING reviews carrying the
	// given suspicion reason tag, for bulkDiscardByReason (spec §4.8).
	FindPendingByReason(ctx context.Context, reason string, limit int) ([]domain.PlateReview, error)
}

// SuspensionStore persists EnforcementSuspensions.
type SuspensionStore interface {
	Insert(ctx context.Context, s *domain.EnforcementSuspension) error
	End(ctx context.Context, id string, endDate time.Time) (*domain.EnforcementSuspension, error)
	// MostRecentActiveAt returns the most-recent active suspension
	// applying to siteID at t, or nil, per spec §4.4 clause 1.
	MostRecentActiveAt(ctx context.Context, siteID string, t time.Time) (*domain.EnforcementSuspension, error)
}

// SiteStore resolves Site configuration. Sites are authored externally
// (spec §3); the core only reads them.
type SiteStore interface {
	Get(ctx context.Context, siteID string) (*domain.Site, error)
}
