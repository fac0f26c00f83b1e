// Package audit implements the core's append-only audit sink (spec §6).
// The core never reads audit records back — Sink is write-only by design.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Action is one tag from the spec §6 audit vocabulary.
type Action string

const (
	ActionMovementIngested         Action = "MOVEMENT_INGESTED"
	ActionMovementDuplicate        Action = "MOVEMENT_DUPLICATE_DETECTED"
	ActionDuplicateEntrySkipped    Action = "DUPLICATE_ENTRY_SKIPPED"
	ActionSessionCreated           Action = "SESSION_CREATED"
	ActionSessionCompleted         Action = "SESSION_COMPLETED"
	ActionSessionExpired           Action = "SESSION_EXPIRED"
	ActionDecisionCreated          Action = "DECISION_CREATED"
	ActionDecisionReconciled       Action = "DECISION_RECONCILED"
	ActionDecisionAutoReevaluated  Action = "DECISION_AUTO_REEVALUATED"
	ActionEnforcementReviewed      Action = "ENFORCEMENT_REVIEWED"
	ActionPaymentIngested          Action = "PAYMENT_INGESTED"
	ActionPermitIngested           Action = "PERMIT_INGESTED"
	ActionReconciliationTriggered  Action = "RECONCILIATION_TRIGGERED"
	ActionRuleCreated              Action = "RULE_CREATED"
	ActionRuleUpdated              Action = "RULE_UPDATED"
	ActionRuleEnded                Action = "RULE_ENDED"
	ActionRetroactiveUpdateApplied Action = "RETROACTIVE_UPDATE_APPLIED"
	ActionPlateReviewCreated       Action = "PLATE_REVIEW_CREATED"
	ActionPlateReviewApproved      Action = "PLATE_REVIEW_APPROVED"
	ActionPlateReviewCorrected     Action = "PLATE_REVIEW_CORRECTED"
	ActionPlateReviewDiscarded     Action = "PLATE_REVIEW_DISCARDED"
)

// ActorType distinguishes automated writers from human operators.
type ActorType string

const (
	ActorSystem    ActorType = "SYSTEM"
	ActorScheduler ActorType = "SCHEDULER"
	ActorOperator  ActorType = "OPERATOR"
)

// Record is one audit-sink entry, matching spec §6's outbound shape.
type Record struct {
	EntityType   string                 `json:"entityType"`
	EntityID     string                 `json:"entityId"`
	Action       Action                 `json:"action"`
	Actor        string                 `json:"actor"`
	ActorType    ActorType              `json:"actorType"`
	SiteID       string                 `json:"siteId,omitempty"`
	VRM          string                 `json:"vrm,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
	ParentAuditID string                `json:"parentAuditId,omitempty"`
}

// CloudEvent is the CloudEvents 1.0 envelope every audit Record is wrapped
// in before publishing, mirroring the teacher's events.CloudEvent shape.
type CloudEvent struct {
	SpecVersion string    `json:"specversion"`
	Type        string    `json:"type"`
	Source      string    `json:"source"`
	ID          string    `json:"id"`
	Time        time.Time `json:"time"`
	Subject     string    `json:"subject,omitempty"`
	Data        Record    `json:"data"`
}

func wrap(source string, r Record) *CloudEvent {
	return &CloudEvent{
		SpecVersion: "1.0",
		Type:        "anpr." + string(r.Action),
		Source:      source,
		ID:          "audit-" + uuid.NewString(),
		Time:        time.Now(),
		Subject:     fmt.Sprintf("%s/%s", r.EntityType, r.EntityID),
		Data:        r,
	}
}

// Sink publishes audit records. Publish must never return an error that
// the caller treats as fatal — failures are DownstreamFailure per spec §7
// and are logged by the implementation, not surfaced.
type Sink interface {
	Publish(ctx context.Context, r Record) error
}

// JSON serializes a CloudEvent-wrapped record with source "anpr-core".
func (r Record) JSON() ([]byte, error) {
	return json.Marshal(wrap("anpr-core", r))
}
