// Package memstore implements the internal/store interfaces entirely
// in-memory, for unit tests that exercise component logic without a live
// Postgres/Redis instance — grounded on the pack's use of hand-written fake
// stores alongside sqlmock-based ones for store-layer testing.
//
// Each entity gets its own small store type (Movements, Sessions, Permits,
// Payments, Decisions, Reviews, Suspensions, Sites) because the
// internal/store interfaces share method names (Insert, Get, Update) that a
// single struct could not implement more than once. Store bundles one of
// each for tests that need the whole graph wired together.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/anpr/compliance-core/internal/anpr/domain"
	"github.com/anpr/compliance-core/internal/apperr"
	"github.com/google/uuid"
)

// Store bundles one in-memory store per entity so tests can wire a single
// value into every component under test. Decisions is joined against
// Sessions so FindCandidatesForReevaluation and
// RetroactivelyResolveBySuspension see real session state.
type Store struct {
	Movements   *Movements
	Sessions    *Sessions
	Permits     *Permits
	Payments    *Payments
	Decisions   *Decisions
	Reviews     *Reviews
	Suspensions *Suspensions
	Sites       *Sites
}

// New builds an empty, fully-wired Store.
func New() *Store {
	sessions := NewSessions()
	return &Store{
		Movements:   NewMovements(),
		Sessions:    sessions,
		Permits:     NewPermits(),
		Payments:    NewPayments(),
		Decisions:   NewDecisions(sessions),
		Reviews:     NewReviews(),
		Suspensions: NewSuspensions(),
		Sites:       NewSites(),
	}
}

// ---- Sites ----

// Sites is an in-memory store.SiteStore. Sites are externally managed in
// production; tests seed them directly with Put.
type Sites struct {
	mu    sync.Mutex
	sites map[string]domain.Site
}

func NewSites() *Sites { return &Sites{sites: make(map[string]domain.Site)} }

func (s *Sites) Put(site domain.Site) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sites[site.ID] = site
}

func (s *Sites) Get(_ context.Context, siteID string) (*domain.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	site, ok := s.sites[siteID]
	if !ok {
		return nil, nil
	}
	cp := site
	return &cp, nil
}

// ---- Movements ----

type Movements struct {
	mu   sync.Mutex
	rows map[string]domain.Movement
}

func NewMovements() *Movements { return &Movements{rows: make(map[string]domain.Movement)} }

func (m *Movements) FindByNaturalKey(_ context.Context, siteID, vrm string, ts time.Time) (*domain.Movement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.SiteID == siteID && row.VRM == vrm && row.Timestamp.Equal(ts) {
			cp := row
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Movements) Insert(_ context.Context, mv *domain.Movement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mv.ID == "" {
		mv.ID = uuid.NewString()
	}
	m.rows[mv.ID] = *mv
	return nil
}

func (m *Movements) Update(_ context.Context, mv *domain.Movement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[mv.ID] = *mv
	return nil
}

func (m *Movements) Get(_ context.Context, id string) (*domain.Movement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	cp := row
	return &cp, nil
}

// ---- Sessions ----

type Sessions struct {
	mu   sync.Mutex
	rows map[string]domain.Session
}

func NewSessions() *Sessions { return &Sessions{rows: make(map[string]domain.Session)} }

func (s *Sessions) FindOpen(_ context.Context, siteID, vrm string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.SiteID == siteID && row.VRM == vrm && row.EndTime == nil {
			cp := row
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Sessions) InsertOpen(_ context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rows {
		if existing.SiteID == sess.SiteID && existing.VRM == sess.VRM && existing.EndTime == nil {
			return apperr.Conflict("session.insert_open", "open session already exists for site/vrm")
		}
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	sess.Status = domain.SessionProvisional
	s.rows[sess.ID] = *sess
	return nil
}

func (s *Sessions) Close(_ context.Context, sessionID string, endTime time.Time, exitMovementID string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.rows[sessionID]
	if !ok {
		return nil, apperr.NotFound("session.close", "session not found")
	}
	end := endTime
	sess.EndTime = &end
	duration := int64(endTime.Sub(sess.StartTime).Minutes())
	sess.DurationMinutes = &duration
	exitID := exitMovementID
	sess.ExitMovementID = &exitID
	sess.Status = domain.SessionCompleted
	s.rows[sessionID] = sess
	cp := sess
	return &cp, nil
}

func (s *Sessions) Expire(_ context.Context, sessionID string, now time.Time) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.rows[sessionID]
	if !ok {
		return nil, apperr.NotFound("session.expire", "session not found")
	}
	end := now
	sess.EndTime = &end
	duration := int64(now.Sub(sess.StartTime).Minutes())
	sess.DurationMinutes = &duration
	sess.Status = domain.SessionExpired
	s.rows[sessionID] = sess
	cp := sess
	return &cp, nil
}

func (s *Sessions) FindStaleOpen(_ context.Context, cutoff time.Time, limit int) ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Session
	for _, row := range s.rows {
		if row.EndTime == nil && !row.StartTime.After(cutoff) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Sessions) FindCompletedOverlapping(_ context.Context, vrm, siteID string, from, to time.Time) ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Session
	for _, row := range s.rows {
		if row.VRM != vrm || row.SiteID != siteID || row.Status != domain.SessionCompleted || row.EndTime == nil {
			continue
		}
		if row.StartTime.After(to) || row.EndTime.Before(from) {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *Sessions) FindCompletedForVRM(_ context.Context, vrm, siteID string) ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Session
	for _, row := range s.rows {
		if row.VRM != vrm || row.Status != domain.SessionCompleted {
			continue
		}
		if siteID != "" && row.SiteID != siteID {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *Sessions) FindCompletedBySite(_ context.Context, siteID string, limit int) ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Session
	for _, row := range s.rows {
		if row.SiteID == siteID && row.Status == domain.SessionCompleted {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Sessions) Get(_ context.Context, id string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	cp := row
	return &cp, nil
}

// ---- Permits ----

type Permits struct {
	mu   sync.Mutex
	rows map[string]domain.Permit
}

func NewPermits() *Permits { return &Permits{rows: make(map[string]domain.Permit)} }

func (p *Permits) Upsert(_ context.Context, permit *domain.Permit, externalID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if externalID != "" {
		for id, existing := range p.rows {
			if existing.Source == externalID {
				permit.ID = id
				p.rows[id] = *permit
				return nil
			}
		}
	} else {
		for id, existing := range p.rows {
			if existing.VRM == permit.VRM && existing.SiteID == permit.SiteID && existing.Type == permit.Type {
				permit.ID = id
				p.rows[id] = *permit
				return nil
			}
		}
	}
	if permit.ID == "" {
		permit.ID = uuid.NewString()
	}
	p.rows[permit.ID] = *permit
	return nil
}

func (p *Permits) FindApplicable(_ context.Context, vrm, siteID string, t time.Time) ([]domain.Permit, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Permit
	for _, row := range p.rows {
		if row.VRM != vrm {
			continue
		}
		if !row.IsGlobal() && row.SiteID != siteID {
			continue
		}
		if row.AppliesAt(siteID, t) {
			out = append(out, row)
		}
	}
	return out, nil
}

// ---- Payments ----

type Payments struct {
	mu   sync.Mutex
	rows map[string]domain.Payment
}

func NewPayments() *Payments { return &Payments{rows: make(map[string]domain.Payment)} }

func (p *Payments) FindByDedupeKey(_ context.Context, externalRef, source string) (*domain.Payment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, row := range p.rows {
		if row.ExternalReference == externalRef && row.Source == source {
			cp := row
			return &cp, nil
		}
	}
	return nil, nil
}

func (p *Payments) Insert(_ context.Context, payment *domain.Payment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	p.rows[payment.ID] = *payment
	return nil
}

func (p *Payments) FindCovering(_ context.Context, vrm, siteID string, mandatoryStart, mandatoryEnd time.Time) ([]domain.Payment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Payment
	for _, row := range p.rows {
		if row.VRM != vrm || row.SiteID != siteID {
			continue
		}
		if row.StartTime.After(mandatoryEnd) || row.ExpiryTime.Before(mandatoryStart) {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (p *Payments) ExistsForSite(_ context.Context, siteID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, row := range p.rows {
		if row.SiteID == siteID {
			return true, nil
		}
	}
	return false, nil
}

// ---- Decisions ----

type Decisions struct {
	mu       sync.Mutex
	rows     map[string]domain.Decision // keyed by SessionID
	sessions *Sessions
}

// NewDecisions takes the Sessions store it must join against for
// FindCandidatesForReevaluation and RetroactivelyResolveBySuspension.
func NewDecisions(sessions *Sessions) *Decisions {
	return &Decisions{rows: make(map[string]domain.Decision), sessions: sessions}
}

func (d *Decisions) FindBySession(_ context.Context, sessionID string) (*domain.Decision, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	row, ok := d.rows[sessionID]
	if !ok {
		return nil, nil
	}
	cp := row
	return &cp, nil
}

func (d *Decisions) UpsertIfMutable(_ context.Context, dec *domain.Decision) (*domain.Decision, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	existing, ok := d.rows[dec.SessionID]
	if !ok {
		if dec.ID == "" {
			dec.ID = uuid.NewString()
		}
		dec.UpdatedAt = time.Now()
		d.rows[dec.SessionID] = *dec
		cp := *dec
		return &cp, true, nil
	}

	if !existing.Status.Mutable() {
		cp := existing
		return &cp, false, nil
	}

	dec.ID = existing.ID
	dec.UpdatedAt = time.Now()
	d.rows[dec.SessionID] = *dec
	cp := *dec
	return &cp, true, nil
}

func (d *Decisions) FindCandidatesForReevaluation(_ context.Context, limit int) ([]domain.Decision, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []domain.Decision
	for sessionID, row := range d.rows {
		if row.Outcome != domain.OutcomeEnforcementCandidate || !row.Status.Mutable() {
			continue
		}
		if d.sessions != nil {
			d.sessions.mu.Lock()
			sess, ok := d.sessions.rows[sessionID]
			d.sessions.mu.Unlock()
			if !ok || sess.EndTime == nil {
				continue
			}
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *Decisions) RetroactivelyResolveBySuspension(_ context.Context, siteID string, start time.Time, end *time.Time) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	count := 0
	for sessionID, row := range d.rows {
		if d.sessions == nil {
			break
		}
		d.sessions.mu.Lock()
		sess, ok := d.sessions.rows[sessionID]
		d.sessions.mu.Unlock()
		if !ok || sess.SiteID != siteID {
			continue
		}
		if sess.StartTime.Before(start) {
			continue
		}
		if end != nil && sess.StartTime.After(*end) {
			continue
		}
		if row.Outcome != domain.OutcomeEnforcementCandidate || row.Status != domain.DecisionNew {
			continue
		}
		row.Outcome = domain.OutcomeCompliant
		row.RuleApplied = "ENFORCEMENT_DISABLED_RETROACTIVE"
		row.Status = domain.DecisionAutoResolved
		row.Rationale += " | RETROACTIVE: suspension covers session start"
		row.UpdatedAt = time.Now()
		d.rows[sessionID] = row
		count++
	}
	return count, nil
}

// ---- PlateReviews ----

type Reviews struct {
	mu   sync.Mutex
	rows map[string]domain.PlateReview
}

func NewReviews() *Reviews { return &Reviews{rows: make(map[string]domain.PlateReview)} }

func (r *Reviews) Insert(_ context.Context, row *domain.PlateReview) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	r.rows[row.ID] = *row
	return nil
}

func (r *Reviews) Get(_ context.Context, id string) (*domain.PlateReview, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	cp := row
	return &cp, nil
}

func (r *Reviews) FindByMovement(_ context.Context, movementID string) (*domain.PlateReview, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.MovementID == movementID {
			cp := row
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *Reviews) Update(_ context.Context, row *domain.PlateReview) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[row.ID] = *row
	return nil
}

func (r *Reviews) FindPendingByReason(_ context.Context, reason string, limit int) ([]domain.PlateReview, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.PlateReview
	for _, row := range r.rows {
		if row.ReviewStatus != domain.ReviewPending {
			continue
		}
		for _, tag := range row.SuspicionReasons {
			if tag == reason {
				out = append(out, row)
				break
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- EnforcementSuspensions ----

type Suspensions struct {
	mu   sync.Mutex
	rows map[string]domain.EnforcementSuspension
}

func NewSuspensions() *Suspensions {
	return &Suspensions{rows: make(map[string]domain.EnforcementSuspension)}
}

func (s *Suspensions) Insert(_ context.Context, sus *domain.EnforcementSuspension) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sus.ID == "" {
		sus.ID = uuid.NewString()
	}
	s.rows[sus.ID] = *sus
	return nil
}

func (s *Suspensions) End(_ context.Context, id string, endDate time.Time) (*domain.EnforcementSuspension, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sus, ok := s.rows[id]
	if !ok {
		return nil, apperr.NotFound("suspension.end", "suspension not found")
	}
	end := endDate
	sus.EndDate = &end
	s.rows[id] = sus
	cp := sus
	return &cp, nil
}

func (s *Suspensions) MostRecentActiveAt(_ context.Context, siteID string, t time.Time) (*domain.EnforcementSuspension, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *domain.EnforcementSuspension
	for _, row := range s.rows {
		if row.SiteID != siteID || !row.AppliesAt(t) {
			continue
		}
		if best == nil || row.StartDate.After(best.StartDate) {
			cp := row
			best = &cp
		}
	}
	return best, nil
}
