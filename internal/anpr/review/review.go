// Package review implements the Plate-Review Workflow (C8): operator
// actions on a PENDING PlateReview, per spec §4.8. Every action requires
// the review to still be PENDING; otherwise it fails with INVALID_TRANSITION
// so a review can never be actioned twice.
package review

import (
	"context"
	"fmt"
	"time"

	"github.com/anpr/compliance-core/internal/anpr/domain"
	"github.com/anpr/compliance-core/internal/anpr/platevalidator"
	"github.com/anpr/compliance-core/internal/anpr/session"
	"github.com/anpr/compliance-core/internal/apperr"
	"github.com/anpr/compliance-core/internal/audit"
	"github.com/anpr/compliance-core/internal/store"
)

// BulkResult reports per-item outcomes of bulkDiscardByReason, per spec
// §4.8's "non-transactional best-effort loop with per-item failure
// isolation".
type BulkResult struct {
	Discarded int
	Failed    int
}

// Workflow applies operator decisions to PlateReviews and resubmits the
// underlying Movement to the Session Reconstructor when a review resolves
// to a usable VRM.
type Workflow struct {
	reviews       store.PlateReviewStore
	movements     store.MovementStore
	validator     *platevalidator.Validator
	reconstructor *session.Reconstructor
	audit         audit.Sink
}

// New builds a Workflow.
func New(reviews store.PlateReviewStore, movements store.MovementStore, validator *platevalidator.Validator,
	reconstructor *session.Reconstructor, sink audit.Sink) *Workflow {
	return &Workflow{reviews: reviews, movements: movements, validator: validator, reconstructor: reconstructor, audit: sink}
}

// Approve implements spec §4.8's approve operation.
func (w *Workflow) Approve(ctx context.Context, reviewID, reviewerID string) (*domain.PlateReview, error) {
	review, m, err := w.loadPending(ctx, reviewID)
	if err != nil {
		return nil, err
	}

	review.ReviewStatus = domain.ReviewApproved
	if err := w.reviews.Update(ctx, review); err != nil {
		return nil, fmt.Errorf("review: update approved: %w", err)
	}

	m.RequiresReview = false
	if err := w.movements.Update(ctx, m); err != nil {
		return nil, fmt.Errorf("review: clear requiresReview: %w", err)
	}

	w.publish(ctx, audit.ActionPlateReviewApproved, review, reviewerID, nil)
	w.resubmit(ctx, *m)
	return review, nil
}

// Correct implements spec §4.8's correct operation. newVRM becomes the
// VRM used in all subsequent matching for this Movement.
func (w *Workflow) Correct(ctx context.Context, reviewID, reviewerID, newVRM string) (*domain.PlateReview, error) {
	review, m, err := w.loadPending(ctx, reviewID)
	if err != nil {
		return nil, err
	}

	normalized := platevalidator.Normalize(newVRM)
	if v := w.validator.Validate(normalized); v.Status == domain.ValidationInvalid {
		return nil, apperr.Validation("review.correct", "corrected VRM does not match any known plate format")
	}

	corrected := normalized
	review.ReviewStatus = domain.ReviewCorrected
	review.CorrectedVRM = &corrected
	if err := w.reviews.Update(ctx, review); err != nil {
		return nil, fmt.Errorf("review: update corrected: %w", err)
	}

	m.VRM = normalized
	m.RequiresReview = false
	if err := w.movements.Update(ctx, m); err != nil {
		return nil, fmt.Errorf("review: rewrite movement vrm: %w", err)
	}

	w.publish(ctx, audit.ActionPlateReviewCorrected, review, reviewerID, map[string]interface{}{"correctedVrm": normalized})
	w.resubmit(ctx, *m)
	return review, nil
}

// Discard implements spec §4.8's discard operation. The Movement is left
// requiresReview=true and is never resubmitted.
func (w *Workflow) Discard(ctx context.Context, reviewID, reviewerID, reason string) (*domain.PlateReview, error) {
	review, _, err := w.loadPending(ctx, reviewID)
	if err != nil {
		return nil, err
	}

	review.ReviewStatus = domain.ReviewDiscarded
	review.DiscardReason = reason
	if err := w.reviews.Update(ctx, review); err != nil {
		return nil, fmt.Errorf("review: update discarded: %w", err)
	}

	w.publish(ctx, audit.ActionPlateReviewDiscarded, review, reviewerID, map[string]interface{}{"reason": reason})
	return review, nil
}

// BulkDiscardByReason implements spec §4.8's bulkDiscardByReason operation:
// a best-effort loop where one item's failure does not abort the rest.
func (w *Workflow) BulkDiscardByReason(ctx context.Context, tag string, limit int) BulkResult {
	pending, err := w.reviews.FindPendingByReason(ctx, tag, limit)
	if err != nil {
		return BulkResult{}
	}

	result := BulkResult{}
	for _, r := range pending {
		if _, err := w.Discard(ctx, r.ID, "system:bulk-discard", "bulk discard by reason: "+tag); err != nil {
			result.Failed++
			continue
		}
		result.Discarded++
	}
	return result
}

func (w *Workflow) loadPending(ctx context.Context, reviewID string) (*domain.PlateReview, *domain.Movement, error) {
	review, err := w.reviews.Get(ctx, reviewID)
	if err != nil {
		return nil, nil, fmt.Errorf("review: load: %w", err)
	}
	if review == nil {
		return nil, nil, apperr.NotFound("review.load", "plate review not found: "+reviewID)
	}
	if review.ReviewStatus != domain.ReviewPending {
		return nil, nil, apperr.Conflict("review.load", "INVALID_TRANSITION: review is not PENDING")
	}

	m, err := w.movements.Get(ctx, review.MovementID)
	if err != nil {
		return nil, nil, fmt.Errorf("review: load movement: %w", err)
	}
	if m == nil {
		return nil, nil, apperr.NotFound("review.load", "movement not found: "+review.MovementID)
	}
	return review, m, nil
}

// resubmit hands the now-clean Movement back to the Session Reconstructor.
// A failure here is logged, never surfaced — the review action itself
// already persisted successfully.
func (w *Workflow) resubmit(ctx context.Context, m domain.Movement) {
	if err := w.reconstructor.Observe(ctx, m); err != nil {
		if w.audit == nil {
			return
		}
		_ = w.audit.Publish(ctx, audit.Record{
			EntityType: "Movement",
			EntityID:   m.ID,
			Action:     audit.ActionMovementDuplicate,
			Actor:      "review-workflow",
			ActorType:  audit.ActorSystem,
			SiteID:     m.SiteID,
			VRM:        m.VRM,
			Details:    map[string]interface{}{"resubmitError": err.Error()},
			Timestamp:  time.Now(),
		})
	}
}

func (w *Workflow) publish(ctx context.Context, action audit.Action, review *domain.PlateReview, actor string, details map[string]interface{}) {
	if w.audit == nil || review == nil {
		return
	}
	_ = w.audit.Publish(ctx, audit.Record{
		EntityType: "PlateReview",
		EntityID:   review.ID,
		Action:     action,
		Actor:      actor,
		ActorType:  audit.ActorOperator,
		SiteID:     review.SiteID,
		VRM:        review.NormalizedVRM,
		Details:    details,
		Timestamp:  time.Now(),
	})
}
