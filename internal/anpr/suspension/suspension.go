// Package suspension implements the Enforcement-Suspension Registry (C7):
// operator-declared per-site windows during which the Rule Engine treats
// every session as compliant, per spec §4.7. Creating a suspension
// retroactively resolves any ENFORCEMENT_CANDIDATE decision it now covers
// in one bulk statement.
package suspension

import (
	"context"
	"fmt"
	"time"

	"github.com/anpr/compliance-core/internal/anpr/domain"
	"github.com/anpr/compliance-core/internal/apperr"
	"github.com/anpr/compliance-core/internal/audit"
	"github.com/anpr/compliance-core/internal/store"
	"github.com/google/uuid"
)

const minReasonLength = 10

// Registry owns EnforcementSuspension lifecycle and is the
// rules.SuspensionLookup the Rule Engine consults.
type Registry struct {
	suspensions store.SuspensionStore
	decisions   store.DecisionStore
	audit       audit.Sink
}

// New builds a Registry.
func New(suspensions store.SuspensionStore, decisions store.DecisionStore, sink audit.Sink) *Registry {
	return &Registry{suspensions: suspensions, decisions: decisions, audit: sink}
}

// Create implements spec §4.7's create operation.
func (r *Registry) Create(ctx context.Context, siteID string, startDate time.Time, endDate *time.Time, reason, createdBy string) (*domain.EnforcementSuspension, error) {
	if endDate != nil && !endDate.After(startDate) {
		return nil, apperr.Validation("suspension.create", "endDate must be after startDate")
	}
	if len(reason) < minReasonLength {
		return nil, apperr.Validation("suspension.create", fmt.Sprintf("reason must be at least %d characters", minReasonLength))
	}

	sus := &domain.EnforcementSuspension{
		ID:        uuid.NewString(),
		SiteID:    siteID,
		StartDate: startDate,
		EndDate:   endDate,
		Reason:    reason,
		CreatedBy: createdBy,
		Active:    true,
	}
	if err := r.suspensions.Insert(ctx, sus); err != nil {
		return nil, fmt.Errorf("suspension: insert: %w", err)
	}

	updated, err := r.decisions.RetroactivelyResolveBySuspension(ctx, siteID, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("suspension: retroactive resolve: %w", err)
	}

	r.publish(ctx, audit.ActionRuleCreated, sus.ID, siteID, map[string]interface{}{
		"startDate":         startDate,
		"endDate":           endDate,
		"reason":            reason,
		"createdBy":         createdBy,
		"decisionsResolved": updated,
	})
	if updated > 0 {
		r.publish(ctx, audit.ActionRetroactiveUpdateApplied, sus.ID, siteID, map[string]interface{}{"decisionsResolved": updated})
	}

	return sus, nil
}

// End implements spec §4.7's end operation. It never reverses prior
// retroactive flips.
func (r *Registry) End(ctx context.Context, id, reason, endedBy string) (*domain.EnforcementSuspension, error) {
	sus, err := r.suspensions.End(ctx, id, time.Now())
	if err != nil {
		return nil, fmt.Errorf("suspension: end: %w", err)
	}
	r.publish(ctx, audit.ActionRuleEnded, sus.ID, sus.SiteID, map[string]interface{}{"reason": reason, "endedBy": endedBy})
	return sus, nil
}

// IsDisabled implements rules.SuspensionLookup, spec §4.7's isDisabled
// lookup, consulted by the Rule Engine's clause 1.
func (r *Registry) IsDisabled(ctx context.Context, siteID string, t time.Time) (bool, error) {
	sus, err := r.suspensions.MostRecentActiveAt(ctx, siteID, t)
	if err != nil {
		return false, fmt.Errorf("suspension: lookup: %w", err)
	}
	return sus != nil, nil
}

func (r *Registry) publish(ctx context.Context, action audit.Action, entityID, siteID string, details map[string]interface{}) {
	if r.audit == nil {
		return
	}
	_ = r.audit.Publish(ctx, audit.Record{
		EntityType: "EnforcementSuspension",
		EntityID:   entityID,
		Action:     action,
		Actor:      "suspension-registry",
		ActorType:  audit.ActorOperator,
		SiteID:     siteID,
		Details:    details,
		Timestamp:  time.Now(),
	})
}
