package server

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/server/interceptors"
	sessiondomain "github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/domain"
)

const (
	ProfileServiceName                        = "vitsdept.portal.v1.ProfileService"
	ProfileService_WhoAmI_FullMethodName      = "/" + ProfileServiceName + "/WhoAmI"
	ProfileService_ListDevices_FullMethodName = "/" + ProfileServiceName + "/ListDevices"
)

// ProfileServer is the protected service dashboards call with a session token. Responses
// are google.protobuf.Struct so clients need no generated stubs.
type ProfileServer interface {
	WhoAmI(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
	ListDevices(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
}

// ActiveLister lists a user's live sessions. *sessionservice.Manager satisfies it.
type ActiveLister interface {
	ListActive(ctx context.Context, userID string) []*sessiondomain.Session
}

type profileServer struct {
	sessions ActiveLister
}

// NewProfileServer returns a ProfileServer. ListDevices returns Unimplemented when sessions is nil.
func NewProfileServer(sessions ActiveLister) ProfileServer {
	return &profileServer{sessions: sessions}
}

// WhoAmI returns the identity AuthUnary validated for this call.
func (s *profileServer) WhoAmI(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	id, ok := interceptors.IdentityFrom(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing or invalid session")
	}
	fields := map[string]interface{}{
		"user_id":         id.UserID,
		"role":            string(id.Role),
		"name":            id.Name,
		"email":           id.Email,
		"phone":           id.Phone,
		"role_identifier": id.RoleIdentifier,
		"department":      id.Department,
		"degraded":        interceptors.IsDegraded(ctx),
	}
	if len(id.DisplayFields) > 0 {
		extra := make(map[string]interface{}, len(id.DisplayFields))
		for k, v := range id.DisplayFields {
			extra[k] = v
		}
		fields["display_fields"] = extra
	}
	return toStruct(fields)
}

// ListDevices returns the caller's live sessions without their tokens.
func (s *profileServer) ListDevices(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	id, ok := interceptors.IdentityFrom(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing or invalid session")
	}
	if s.sessions == nil {
		return nil, status.Error(codes.Unimplemented, "device listing not configured")
	}
	list := s.sessions.ListActive(ctx, id.UserID)
	devices := make([]interface{}, 0, len(list))
	for _, sess := range list {
		devices = append(devices, map[string]interface{}{
			"session_id":    sess.ID,
			"device":        sess.DeviceDescriptor,
			"login_time":    sess.CreatedAt.UTC().Format(time.RFC3339),
			"last_activity": sess.LastActivityAt.UTC().Format(time.RFC3339),
			"expires_at":    sess.ExpiresAt.UTC().Format(time.RFC3339),
		})
	}
	return toStruct(map[string]interface{}{"devices": devices})
}

func toStruct(m map[string]interface{}) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return st, nil
}

func _ProfileService_WhoAmI_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProfileServer).WhoAmI(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ProfileService_WhoAmI_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ProfileServer).WhoAmI(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _ProfileService_ListDevices_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProfileServer).ListDevices(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ProfileService_ListDevices_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ProfileServer).ListDevices(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// ProfileService_ServiceDesc is the grpc.ServiceDesc for ProfileService.
var ProfileService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ProfileServiceName,
	HandlerType: (*ProfileServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "WhoAmI", Handler: _ProfileService_WhoAmI_Handler},
		{MethodName: "ListDevices", Handler: _ProfileService_ListDevices_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "vitsdept/portal/v1/profile.proto",
}
