// Package ingestion implements the Ingestion Pipeline (C2): the three
// idempotent entry points that turn external camera, payment, and permit
// feeds into core-owned records, per spec §4.2. Movements that pass
// validation are handed synchronously to the Session Reconstructor (C3);
// payments and permits trigger an asynchronous Reconciliation (C5) dispatch
// through the task queue so the ingest call itself never blocks on it.
package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anpr/compliance-core/internal/anpr/domain"
	"github.com/anpr/compliance-core/internal/anpr/platevalidator"
	"github.com/anpr/compliance-core/internal/anpr/session"
	"github.com/anpr/compliance-core/internal/apperr"
	"github.com/anpr/compliance-core/internal/audit"
	"github.com/anpr/compliance-core/internal/metrics"
	"github.com/anpr/compliance-core/internal/store"
	"github.com/anpr/compliance-core/internal/taskqueue"
	"github.com/google/uuid"
)

// RawMovement is the camera-feed payload shape, spec §6.
type RawMovement struct {
	SiteID     string
	VRM        string
	Timestamp  time.Time
	CameraID   string
	RawSignal  string // TOWARDS, AWAY, ENTRY, EXIT, IN, OUT, or unrecognized
	Confidence *float64
	Images     []domain.Image
	RawPayload map[string]interface{}
}

// RawPayment is the payment-feed payload shape, spec §4.2.
type RawPayment struct {
	VRM               string
	SiteID            string
	Amount            float64
	StartTime         time.Time
	ExpiryTime        time.Time
	Source            string
	ExternalReference string
}

// RawPermit is the permit-feed payload shape, spec §4.2.
type RawPermit struct {
	VRM        string
	SiteID     string // empty = global
	Type       domain.PermitType
	Active     bool
	StartDate  time.Time
	EndDate    *time.Time
	ExternalID string
	Metadata   map[string]interface{}
}

// MovementResult reports whether ingestMovement created a new record.
type MovementResult struct {
	Movement domain.Movement
	IsNew    bool
}

// Reconciler is the seam into Reconciliation (C5) that ingestPayment and
// ingestPermit dispatch onto, through the task queue.
type Reconciler interface {
	OnPayment(ctx context.Context, vrm, siteID string, startTime, expiryTime time.Time) error
	OnPermit(ctx context.Context, vrm, siteID string, active bool) error
}

// Pipeline wires the Plate Validator, Session Reconstructor, and
// Reconciliation dispatch behind the three spec §4.2 operations.
type Pipeline struct {
	sites    store.SiteStore
	movements store.MovementStore
	payments store.PaymentStore
	permits  store.PermitStore
	reviews  store.PlateReviewStore

	validator     *platevalidator.Validator
	reconstructor *session.Reconstructor
	queue         *taskqueue.Queue
	reconciler    Reconciler
	audit         audit.Sink
	metrics       *metrics.Metrics
}

// New builds a Pipeline. queue may be nil, in which case reconciliation
// dispatch runs inline (used in tests and in single-instance deployments
// without Cloud Tasks configured).
func New(
	sites store.SiteStore,
	movements store.MovementStore,
	payments store.PaymentStore,
	permits store.PermitStore,
	reviews store.PlateReviewStore,
	validator *platevalidator.Validator,
	reconstructor *session.Reconstructor,
	queue *taskqueue.Queue,
	reconciler Reconciler,
	sink audit.Sink,
	m *metrics.Metrics,
) *Pipeline {
	return &Pipeline{
		sites: sites, movements: movements, payments: payments, permits: permits, reviews: reviews,
		validator: validator, reconstructor: reconstructor, queue: queue, reconciler: reconciler,
		audit: sink, metrics: m,
	}
}

// IngestMovement implements spec §4.2's ingestMovement operation.
func (p *Pipeline) IngestMovement(ctx context.Context, raw RawMovement) (*MovementResult, error) {
	if raw.VRM == "" {
		return nil, apperr.Validation("ingestion.movement", "movement has no VRM")
	}

	site, err := p.sites.Get(ctx, raw.SiteID)
	if err != nil {
		return nil, fmt.Errorf("ingestion: load site: %w", err)
	}
	if site == nil {
		return nil, apperr.NotFound("ingestion.movement", "SITE_NOT_FOUND: "+raw.SiteID)
	}

	vrm := platevalidator.Normalize(raw.VRM)
	direction := resolveDirection(*site, raw.CameraID, raw.RawSignal)

	existing, err := p.movements.FindByNaturalKey(ctx, raw.SiteID, vrm, raw.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("ingestion: dedupe lookup: %w", err)
	}
	if existing != nil {
		patched := patchRemoteImages(*existing, raw.Images)
		if err := p.movements.Update(ctx, &patched); err != nil {
			return nil, fmt.Errorf("ingestion: patch duplicate movement: %w", err)
		}
		if p.metrics != nil {
			p.metrics.MovementsIngested.WithLabelValues("duplicate").Inc()
		}
		return &MovementResult{Movement: patched, IsNew: false}, nil
	}

	m := domain.Movement{
		ID:         uuid.NewString(),
		SiteID:     raw.SiteID,
		VRM:        vrm,
		Timestamp:  raw.Timestamp,
		CameraID:   raw.CameraID,
		Direction:  direction,
		RawPayload: raw.RawPayload,
		Images:     raw.Images,
		Confidence: raw.Confidence,
		CreatedAt:  time.Now(),
	}

	suspicion := p.validator.DetectSuspicious(vrm, raw.Confidence)
	if suspicion.IsSuspicious {
		m.RequiresReview = true
	}

	if err := p.movements.Insert(ctx, &m); err != nil {
		return nil, fmt.Errorf("ingestion: insert movement: %w", err)
	}

	if p.metrics != nil {
		p.metrics.MovementsIngested.WithLabelValues("new").Inc()
	}
	p.publish(ctx, audit.ActionMovementIngested, m.ID, m.SiteID, m.VRM, map[string]interface{}{"direction": string(direction)})

	if m.RequiresReview {
		validation := p.validator.Validate(vrm)
		review := &domain.PlateReview{
			ID:               uuid.NewString(),
			MovementID:       m.ID,
			OriginalVRM:      raw.VRM,
			NormalizedVRM:    vrm,
			SiteID:           m.SiteID,
			Timestamp:        m.Timestamp,
			SuspicionReasons: suspicion.Reasons,
			ValidationStatus: validation.Status,
			ReviewStatus:     domain.ReviewPending,
			Images:           raw.Images,
		}
		if err := p.reviews.Insert(ctx, review); err != nil {
			return nil, fmt.Errorf("ingestion: insert plate review: %w", err)
		}
		if p.metrics != nil {
			p.metrics.PlateReviewsCreated.Inc()
		}
		p.publish(ctx, audit.ActionPlateReviewCreated, review.ID, m.SiteID, m.VRM,
			map[string]interface{}{"reasons": suspicion.Reasons})
		return &MovementResult{Movement: m, IsNew: true}, nil
	}

	if m.Discarded {
		return &MovementResult{Movement: m, IsNew: true}, nil
	}

	// Synchronous hand-off to the Session Reconstructor. Per spec §4.2, a
	// downstream failure here must not fail the ingestion call itself.
	if err := p.reconstructor.Observe(ctx, m); err != nil {
		_ = p.publish(ctx, audit.ActionMovementDuplicate, m.ID, m.SiteID, m.VRM,
			map[string]interface{}{"sessionHandoffError": err.Error()})
	}

	return &MovementResult{Movement: m, IsNew: true}, nil
}

// IngestPayment implements spec §4.2's ingestPayment operation.
func (p *Pipeline) IngestPayment(ctx context.Context, raw RawPayment) (*domain.Payment, error) {
	existing, err := p.payments.FindByDedupeKey(ctx, raw.ExternalReference, raw.Source)
	if err != nil {
		return nil, fmt.Errorf("ingestion: payment dedupe lookup: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	payment := &domain.Payment{
		ID:                uuid.NewString(),
		VRM:               platevalidator.Normalize(raw.VRM),
		SiteID:            raw.SiteID,
		Amount:            raw.Amount,
		StartTime:         raw.StartTime,
		ExpiryTime:        raw.ExpiryTime,
		Source:            raw.Source,
		ExternalReference: raw.ExternalReference,
	}
	if err := p.payments.Insert(ctx, payment); err != nil {
		return nil, fmt.Errorf("ingestion: insert payment: %w", err)
	}
	p.publish(ctx, audit.ActionPaymentIngested, payment.ID, payment.SiteID, payment.VRM, nil)

	start, expiry := payment.StartTime.Unix(), payment.ExpiryTime.Unix()
	p.dispatchReconciliation(ctx, taskqueue.Task{
		Kind:          taskqueue.KindPayment,
		VRM:           payment.VRM,
		SiteID:        payment.SiteID,
		PaymentID:     payment.ID,
		PaymentStart:  &start,
		PaymentExpiry: &expiry,
	}, func(ctx context.Context) error {
		return p.reconciler.OnPayment(ctx, payment.VRM, payment.SiteID, payment.StartTime, payment.ExpiryTime)
	})

	return payment, nil
}

// IngestPermit implements spec §4.2's ingestPermit operation.
func (p *Pipeline) IngestPermit(ctx context.Context, raw RawPermit) (*domain.Permit, error) {
	permit := &domain.Permit{
		VRM:       platevalidator.Normalize(raw.VRM),
		SiteID:    raw.SiteID,
		Type:      raw.Type,
		Active:    raw.Active,
		StartDate: raw.StartDate,
		EndDate:   raw.EndDate,
		Source:    raw.ExternalID,
		Metadata:  raw.Metadata,
	}
	if err := p.permits.Upsert(ctx, permit, raw.ExternalID); err != nil {
		return nil, fmt.Errorf("ingestion: upsert permit: %w", err)
	}
	p.publish(ctx, audit.ActionPermitIngested, permit.ID, permit.SiteID, permit.VRM, nil)

	active := permit.Active
	p.dispatchReconciliation(ctx, taskqueue.Task{
		Kind:         taskqueue.KindPermit,
		VRM:          permit.VRM,
		SiteID:       permit.SiteID,
		PermitActive: &active,
	}, func(ctx context.Context) error {
		return p.reconciler.OnPermit(ctx, permit.VRM, permit.SiteID, permit.Active)
	})

	return permit, nil
}

// dispatchReconciliation enqueues task through the queue when one is
// configured — the queue's own Handler (wired by the reconciliation
// package at construction) interprets it — else runs fn inline. Either way
// a failure is logged via the audit sink, never returned to the ingest
// caller, per spec §4.2.
func (p *Pipeline) dispatchReconciliation(ctx context.Context, task taskqueue.Task, fn func(context.Context) error) {
	if p.queue != nil {
		p.queue.Enqueue(ctx, task)
		return
	}
	if err := fn(ctx); err != nil {
		p.publish(ctx, audit.ActionReconciliationTriggered, "", task.SiteID, task.VRM,
			map[string]interface{}{"inlineError": err.Error()})
	}
}

func (p *Pipeline) publish(ctx context.Context, action audit.Action, entityID, siteID, vrm string, details map[string]interface{}) error {
	if p.audit == nil {
		return nil
	}
	return p.audit.Publish(ctx, audit.Record{
		EntityType: "Movement",
		EntityID:   entityID,
		Action:     action,
		Actor:      "ingestion-pipeline",
		ActorType:  audit.ActorSystem,
		SiteID:     siteID,
		VRM:        vrm,
		Details:    details,
		Timestamp:  time.Now(),
	})
}

// resolveDirection implements spec §4.2's three-step direction resolution.
func resolveDirection(site domain.Site, cameraID, rawSignal string) domain.Direction {
	signal := strings.ToUpper(strings.TrimSpace(rawSignal))

	if cam, ok := site.CameraByID(cameraID); ok {
		switch signal {
		case "TOWARDS":
			return cam.TowardsDirection
		case "AWAY":
			return cam.AwayDirection
		}
	}

	switch signal {
	case "TOWARDS", "ENTRY", "IN":
		return domain.DirectionEntry
	case "AWAY", "EXIT", "OUT":
		return domain.DirectionExit
	default:
		return domain.DirectionUnknown
	}
}

// patchRemoteImages applies spec §4.2's dedupe-patch rule: only image URLs
// that previously pointed to a remote host (http/https) may be replaced by
// a re-ingest of the same natural key.
func patchRemoteImages(existing domain.Movement, incoming []domain.Image) domain.Movement {
	if len(incoming) == 0 {
		return existing
	}
	patched := make([]domain.Image, len(existing.Images))
	copy(patched, existing.Images)

	for _, img := range incoming {
		for i, old := range patched {
			if old.Type == img.Type && isRemoteURL(old.URL) {
				patched[i] = img
			}
		}
	}
	existing.Images = patched
	return existing
}

func isRemoteURL(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}
