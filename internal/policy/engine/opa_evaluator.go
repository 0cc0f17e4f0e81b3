package engine

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog"
)

const policyQuery = "data.vitsdept.sessions"

// DefaultRevocationPolicy lets users end their own sessions, lets admins and department
// heads end anyone's, and offers "log out everywhere" only with more than one live session.
const DefaultRevocationPolicy = `package vitsdept.sessions

default allow_revoke_all := false

allow_revoke_all if {
	input.actor.user_id != ""
	input.actor.user_id == input.target_user_id
}

allow_revoke_all if {
	input.actor.role in {"admin", "hod"}
}

default offer_logout_everywhere := false

offer_logout_everywhere if {
	input.active_count > 1
}
`

// OPAEvaluator evaluates revocation policy with an in-process OPA Rego query prepared once.
type OPAEvaluator struct {
	query  rego.PreparedEvalQuery
	logger zerolog.Logger
}

// NewOPAEvaluator compiles policy, or DefaultRevocationPolicy when policy is empty.
// The policy must define package vitsdept.sessions.
func NewOPAEvaluator(ctx context.Context, policy string, logger zerolog.Logger) (*OPAEvaluator, error) {
	if policy == "" {
		policy = DefaultRevocationPolicy
	}
	q, err := rego.New(
		rego.Query(policyQuery),
		rego.Module("revocation.rego", policy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile revocation policy: %w", err)
	}
	return &OPAEvaluator{query: q, logger: logger.With().Str("component", "policy").Logger()}, nil
}

// EvaluateRevocation evaluates the policy. A decision missing from the result counts as false.
func (e *OPAEvaluator) EvaluateRevocation(ctx context.Context, in RevocationInput) (RevocationDecision, error) {
	input := map[string]interface{}{
		"actor": map[string]interface{}{
			"user_id":    in.Actor.UserID,
			"role":       string(in.Actor.Role),
			"department": in.Actor.Department,
		},
		"target_user_id": in.TargetUserID,
		"active_count":   in.ActiveCount,
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return RevocationDecision{}, fmt.Errorf("eval revocation policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		e.logger.Warn().Msg("revocation policy returned no result, denying")
		return RevocationDecision{}, nil
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return RevocationDecision{}, fmt.Errorf("revocation policy returned %T", rs[0].Expressions[0].Value)
	}
	out := RevocationDecision{}
	out.AllowRevokeAll, _ = doc["allow_revoke_all"].(bool)
	out.OfferLogoutEverywhere, _ = doc["offer_logout_everywhere"].(bool)
	return out, nil
}

// HealthCheck verifies the prepared policy still evaluates.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.EvaluateRevocation(ctx, RevocationInput{})
	return err
}
