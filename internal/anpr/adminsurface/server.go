// Package adminsurface implements the Admin Surface (C16): a thin gRPC
// service exposing the operator-facing batch/admin operations spec.md
// already names, grounded on the teacher's PlanManager in
// internal/plan/grpc_handler.go (a Go struct embedding the Unimplemented
// server and forwarding each RPC straight into domain logic).
package adminsurface

import (
	"context"
	"fmt"

	"github.com/anpr/compliance-core/internal/anpr/reconciliation"
	"github.com/anpr/compliance-core/internal/anpr/review"
	"github.com/anpr/compliance-core/internal/anpr/suspension"
	"github.com/anpr/compliance-core/pb/anpradmin"
)

// Server adapts the core's Reconciliation Service, Suspension Registry, and
// Plate-Review Workflow onto the AdminServiceServer RPC surface. It holds
// no state of its own.
type Server struct {
	anpradmin.UnimplementedAdminServiceServer

	reconciler *reconciliation.Service
	suspensions *suspension.Registry
	reviews     *review.Workflow
}

// New builds a Server.
func New(reconciler *reconciliation.Service, suspensions *suspension.Registry, reviews *review.Workflow) *Server {
	return &Server{reconciler: reconciler, suspensions: suspensions, reviews: reviews}
}

func (s *Server) TriggerSiteReconciliation(ctx context.Context, req *anpradmin.TriggerSiteReconciliationRequest) (*anpradmin.TriggerSiteReconciliationResponse, error) {
	if req.SiteID == "" {
		return nil, fmt.Errorf("adminsurface: site_id is required")
	}
	limit := int(req.Limit)
	if limit <= 0 {
		limit = 500
	}
	result, err := s.reconciler.OnSite(ctx, req.SiteID, limit)
	if err != nil {
		return nil, fmt.Errorf("adminsurface: trigger site reconciliation: %w", err)
	}
	return &anpradmin.TriggerSiteReconciliationResponse{
		SessionsReevaluated: int32(result.SessionsReevaluated),
		DecisionsUpdated:    int32(result.DecisionsUpdated),
	}, nil
}

func (s *Server) CreateSuspension(ctx context.Context, req *anpradmin.CreateSuspensionRequest) (*anpradmin.CreateSuspensionResponse, error) {
	created, err := s.suspensions.Create(ctx, req.SiteID, req.StartDate, req.EndDate, req.Reason, req.CreatedBy)
	if err != nil {
		return nil, fmt.Errorf("adminsurface: create suspension: %w", err)
	}
	return &anpradmin.CreateSuspensionResponse{SuspensionID: created.ID}, nil
}

func (s *Server) EndSuspension(ctx context.Context, req *anpradmin.EndSuspensionRequest) (*anpradmin.EndSuspensionResponse, error) {
	ended, err := s.suspensions.End(ctx, req.SuspensionID, req.Reason, req.EndedBy)
	if err != nil {
		return nil, fmt.Errorf("adminsurface: end suspension: %w", err)
	}
	return &anpradmin.EndSuspensionResponse{SuspensionID: ended.ID}, nil
}

func (s *Server) BulkDiscardReviews(ctx context.Context, req *anpradmin.BulkDiscardReviewsRequest) (*anpradmin.BulkDiscardReviewsResponse, error) {
	if req.ReasonTag == "" {
		return nil, fmt.Errorf("adminsurface: reason_tag is required")
	}
	limit := int(req.Limit)
	if limit <= 0 {
		limit = 100
	}
	result := s.reviews.BulkDiscardByReason(ctx, req.ReasonTag, limit)
	return &anpradmin.BulkDiscardReviewsResponse{
		Discarded: int32(result.Discarded),
		Failed:    int32(result.Failed),
	}, nil
}
