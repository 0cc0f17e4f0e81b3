package interceptors

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	sessionservice "github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/service"
)

// SessionTokenHeader carries a raw session token for clients that cannot set Authorization.
const SessionTokenHeader = "x-session-token"

var errUnauthenticated = status.Error(codes.Unauthenticated, "missing or invalid session")

// SessionValidator validates a session token. *sessionservice.Manager satisfies it.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (sessionservice.Validation, error)
}

// AuthUnary validates the caller's session before every RPC not listed in publicMethods and
// stores the resolved identity in the context. Public methods still get the identity when the
// caller sends a token that validates.
func AuthUnary(sessions SessionValidator, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		public := publicMethods[info.FullMethod]
		token := sessionToken(ctx)
		if token != "" {
			if v, err := sessions.Validate(ctx, token); err == nil {
				return handler(WithIdentity(ctx, v.Identity, v.Degraded), req)
			}
		}
		if !public {
			return nil, errUnauthenticated
		}
		return handler(ctx, req)
	}
}

// sessionToken returns the token from "authorization: Bearer <token>", falling back to the
// x-session-token header. A malformed Authorization value yields "".
func sessionToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get("authorization"); len(vals) > 0 {
		scheme, token, found := strings.Cut(strings.TrimSpace(vals[0]), " ")
		if !found || !strings.EqualFold(scheme, "bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	if vals := md.Get(SessionTokenHeader); len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}
