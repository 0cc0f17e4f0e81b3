package engine

import (
	"context"
	"errors"

	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/domain"
)

// ErrForbidden is returned by callers that act on a denied decision.
var ErrForbidden = errors.New("not allowed to revoke these sessions")

// RevocationInput describes a logout-everywhere request or a device listing.
type RevocationInput struct {
	Actor        domain.Identity
	TargetUserID string
	ActiveCount  int
}

// RevocationDecision is the policy outcome for a RevocationInput.
type RevocationDecision struct {
	// AllowRevokeAll reports whether Actor may end every session of TargetUserID.
	AllowRevokeAll bool
	// OfferLogoutEverywhere reports whether the UI should offer "log out everywhere".
	OfferLogoutEverywhere bool
}

// Evaluator evaluates session revocation policy.
type Evaluator interface {
	EvaluateRevocation(ctx context.Context, in RevocationInput) (RevocationDecision, error)
}
