package interceptors

import (
	"context"

	sessiondomain "github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/domain"
)

type contextKey struct{ name string }

var (
	identityKey = contextKey{"identity"}
	degradedKey = contextKey{"degraded"}
	recordKey   = contextKey{"record"}
)

// callRecord lets LoggingUnary see the identity set further down the chain.
type callRecord struct {
	userID string
}

// WithIdentity returns a context carrying the validated identity of the caller. degraded
// records that the identity came from the device cache rather than the durable store.
func WithIdentity(ctx context.Context, identity sessiondomain.Identity, degraded bool) context.Context {
	if rec, ok := ctx.Value(recordKey).(*callRecord); ok {
		rec.userID = identity.UserID
	}
	ctx = context.WithValue(ctx, identityKey, identity)
	ctx = context.WithValue(ctx, degradedKey, degraded)
	return ctx
}

// IdentityFrom returns the identity set by WithIdentity and true; otherwise a zero identity and false.
func IdentityFrom(ctx context.Context) (sessiondomain.Identity, bool) {
	v, ok := ctx.Value(identityKey).(sessiondomain.Identity)
	return v, ok
}

// GetUserID returns the caller's user id and true if an identity is set.
func GetUserID(ctx context.Context) (string, bool) {
	id, ok := IdentityFrom(ctx)
	if !ok {
		return "", false
	}
	return id.UserID, true
}

// IsDegraded reports whether the caller was validated from the device cache.
func IsDegraded(ctx context.Context) bool {
	v, _ := ctx.Value(degradedKey).(bool)
	return v
}
