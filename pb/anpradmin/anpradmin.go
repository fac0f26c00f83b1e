// Package anpradmin declares the wire types and service interface for the
// Admin Surface (C16), hand-written in the style of the teacher's pb/mock.go
// rather than protoc-generated, since no protoc step runs in this build.
package anpradmin

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

// TriggerSiteReconciliationRequest asks the core to re-run the Rule Engine
// over a site's completed sessions (spec §4.5 onSite).
type TriggerSiteReconciliationRequest struct {
	SiteID string
	Limit  int32
}

type TriggerSiteReconciliationResponse struct {
	SessionsReevaluated int32
	DecisionsUpdated    int32
}

// CreateSuspensionRequest opens an Enforcement Suspension window (spec §4.7).
type CreateSuspensionRequest struct {
	SiteID    string
	StartDate time.Time
	EndDate   *time.Time
	Reason    string
	CreatedBy string
}

type CreateSuspensionResponse struct {
	SuspensionID string
}

// EndSuspensionRequest closes an open Enforcement Suspension early.
type EndSuspensionRequest struct {
	SuspensionID string
	Reason       string
	EndedBy      string
}

type EndSuspensionResponse struct {
	SuspensionID string
}

// BulkDiscardReviewsRequest discards every PENDING PlateReview carrying a
// given suspicion reason tag (spec §4.8 bulkDiscardByReason).
type BulkDiscardReviewsRequest struct {
	ReasonTag string
	Limit     int32
}

type BulkDiscardReviewsResponse struct {
	Discarded int32
	Failed    int32
}

// AdminServiceServer is the operator control-plane surface this process
// owns directly, per spec §1/§4.16. It is not a controller over ingestion.
type AdminServiceServer interface {
	TriggerSiteReconciliation(context.Context, *TriggerSiteReconciliationRequest) (*TriggerSiteReconciliationResponse, error)
	CreateSuspension(context.Context, *CreateSuspensionRequest) (*CreateSuspensionResponse, error)
	EndSuspension(context.Context, *EndSuspensionRequest) (*EndSuspensionResponse, error)
	BulkDiscardReviews(context.Context, *BulkDiscardReviewsRequest) (*BulkDiscardReviewsResponse, error)
}

// UnimplementedAdminServiceServer can be embedded to satisfy
// AdminServiceServer for partial implementations, matching the teacher's
// Unimplemented* convention.
type UnimplementedAdminServiceServer struct{}

func (UnimplementedAdminServiceServer) TriggerSiteReconciliation(context.Context, *TriggerSiteReconciliationRequest) (*TriggerSiteReconciliationResponse, error) {
	return nil, nil
}

func (UnimplementedAdminServiceServer) CreateSuspension(context.Context, *CreateSuspensionRequest) (*CreateSuspensionResponse, error) {
	return nil, nil
}

func (UnimplementedAdminServiceServer) EndSuspension(context.Context, *EndSuspensionRequest) (*EndSuspensionResponse, error) {
	return nil, nil
}

func (UnimplementedAdminServiceServer) BulkDiscardReviews(context.Context, *BulkDiscardReviewsRequest) (*BulkDiscardReviewsResponse, error) {
	return nil, nil
}

const serviceName = "anpradmin.AdminService"

func _AdminService_TriggerSiteReconciliation_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(TriggerSiteReconciliationRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServiceServer).TriggerSiteReconciliation(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/TriggerSiteReconciliation"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdminServiceServer).TriggerSiteReconciliation(ctx, req.(*TriggerSiteReconciliationRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _AdminService_CreateSuspension_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CreateSuspensionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServiceServer).CreateSuspension(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/CreateSuspension"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdminServiceServer).CreateSuspension(ctx, req.(*CreateSuspensionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _AdminService_EndSuspension_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(EndSuspensionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServiceServer).EndSuspension(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/EndSuspension"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdminServiceServer).EndSuspension(ctx, req.(*EndSuspensionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _AdminService_BulkDiscardReviews_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(BulkDiscardReviewsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServiceServer).BulkDiscardReviews(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/BulkDiscardReviews"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdminServiceServer).BulkDiscardReviews(ctx, req.(*BulkDiscardReviewsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// adminServiceDesc is the hand-written equivalent of a protoc-gen-go-grpc
// _ServiceDesc, registered against the "json" codec declared in codec.go.
var adminServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*AdminServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "TriggerSiteReconciliation", Handler: _AdminService_TriggerSiteReconciliation_Handler},
		{MethodName: "CreateSuspension", Handler: _AdminService_CreateSuspension_Handler},
		{MethodName: "EndSuspension", Handler: _AdminService_EndSuspension_Handler},
		{MethodName: "BulkDiscardReviews", Handler: _AdminService_BulkDiscardReviews_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "anpradmin.proto",
}

// RegisterAdminServiceServer attaches srv to s.
func RegisterAdminServiceServer(s grpc.ServiceRegistrar, srv AdminServiceServer) {
	s.RegisterService(&adminServiceDesc, srv)
}

// AdminServiceClient is the client stub cmd/anprctl dials against.
type AdminServiceClient interface {
	TriggerSiteReconciliation(ctx context.Context, in *TriggerSiteReconciliationRequest, opts ...grpc.CallOption) (*TriggerSiteReconciliationResponse, error)
	CreateSuspension(ctx context.Context, in *CreateSuspensionRequest, opts ...grpc.CallOption) (*CreateSuspensionResponse, error)
	EndSuspension(ctx context.Context, in *EndSuspensionRequest, opts ...grpc.CallOption) (*EndSuspensionResponse, error)
	BulkDiscardReviews(ctx context.Context, in *BulkDiscardReviewsRequest, opts ...grpc.CallOption) (*BulkDiscardReviewsResponse, error)
}

type adminServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewAdminServiceClient wraps an already-dialed connection. Callers must
// dial with grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName))
// so requests are encoded with the json codec this package registers.
func NewAdminServiceClient(cc grpc.ClientConnInterface) AdminServiceClient {
	return &adminServiceClient{cc: cc}
}

func (c *adminServiceClient) TriggerSiteReconciliation(ctx context.Context, in *TriggerSiteReconciliationRequest, opts ...grpc.CallOption) (*TriggerSiteReconciliationResponse, error) {
	out := new(TriggerSiteReconciliationResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/TriggerSiteReconciliation", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminServiceClient) CreateSuspension(ctx context.Context, in *CreateSuspensionRequest, opts ...grpc.CallOption) (*CreateSuspensionResponse, error) {
	out := new(CreateSuspensionResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/CreateSuspension", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminServiceClient) EndSuspension(ctx context.Context, in *EndSuspensionRequest, opts ...grpc.CallOption) (*EndSuspensionResponse, error) {
	out := new(EndSuspensionResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/EndSuspension", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminServiceClient) BulkDiscardReviews(ctx context.Context, in *BulkDiscardReviewsRequest, opts ...grpc.CallOption) (*BulkDiscardReviewsResponse, error) {
	out := new(BulkDiscardReviewsResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/BulkDiscardReviews", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// DialOption returns the call option every client dial must pass so
// requests are encoded with this package's json codec.
func DialOption() grpc.DialOption {
	return grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName))
}
