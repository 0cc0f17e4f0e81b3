package server

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/health"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/server/interceptors"
	sessiondomain "github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/domain"
	sessionservice "github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/service"
)

// Sessions is what the server needs from the session manager.
type Sessions interface {
	Validate(ctx context.Context, token string) (sessionservice.Validation, error)
	ListActive(ctx context.Context, userID string) []*sessiondomain.Session
}

// Deps holds service dependencies for the gRPC server.
type Deps struct {
	// Sessions validates Bearer tokens and lists devices. Required for NewServer.
	Sessions Sessions
	// Health publishes serving status. If nil, the health service is not registered.
	Health *health.Checker
	Logger zerolog.Logger
}

// PublicMethods are callable without a session token.
var PublicMethods = map[string]bool{
	healthpb.Health_Check_FullMethodName: true,
	"/grpc.health.v1.Health/List":        true,
}

// RegisterServices registers every service with s.
//
// Services:
//   - grpc.health.v1.Health             → internal/health
//   - vitsdept.portal.v1.ProfileService → profileServer
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	if deps.Health != nil {
		healthpb.RegisterHealthServer(s, deps.Health.Server())
	}
	var lister ActiveLister
	if deps.Sessions != nil {
		lister = deps.Sessions
	}
	s.RegisterService(&ProfileService_ServiceDesc, NewProfileServer(lister))
}

// NewServer returns a grpc.Server with tracing, request logging and session authentication
// installed and every service registered.
func NewServer(deps Deps, opts ...grpc.ServerOption) *grpc.Server {
	logger := deps.Logger.With().Str("component", "grpc").Logger()
	opts = append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.LoggingUnary(logger, PublicMethods),
			interceptors.AuthUnary(deps.Sessions, PublicMethods),
		),
	}, opts...)
	s := grpc.NewServer(opts...)
	RegisterServices(s, deps)
	return s
}
