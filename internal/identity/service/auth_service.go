package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/identity/domain"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/policy/engine"
	sessiondomain "github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/domain"
	sessionservice "github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/service"
)

// SessionManager is the part of the session manager the login flow needs.
type SessionManager interface {
	Create(ctx context.Context, identity sessiondomain.Identity) (string, error)
	Validate(ctx context.Context, token string) (sessionservice.Validation, error)
	Revoke(ctx context.Context, token string)
	RevokeAll(ctx context.Context, userID string) int64
	RevokeUser(ctx context.Context, userID string) int64
	ListActive(ctx context.Context, userID string) []*sessiondomain.Session
}

// Authenticator verifies a password for a login in one role's directory.
type Authenticator interface {
	Authenticate(ctx context.Context, role sessiondomain.Role, login, password string) (*domain.Profile, error)
}

// LoginResult is the outcome of a successful Login.
type LoginResult struct {
	Token    string
	Identity sessiondomain.Identity
	// ActiveSessions counts this user's live sessions including the new one. It is zero
	// when the durable store could not be read.
	ActiveSessions int
	// OfferLogoutEverywhere is the policy's advice to show a "log out everywhere" action.
	OfferLogoutEverywhere bool
}

// AuthService implements login, logout and logout-everywhere on top of the session manager.
type AuthService struct {
	auth     Authenticator
	sessions SessionManager
	policy   engine.Evaluator
	logger   zerolog.Logger
}

// NewAuthService returns an AuthService. A nil policy allows users to end only their own
// sessions and offers "log out everywhere" with more than one live session.
func NewAuthService(auth Authenticator, sessions SessionManager, policy engine.Evaluator, logger zerolog.Logger) *AuthService {
	return &AuthService{
		auth:     auth,
		sessions: sessions,
		policy:   policy,
		logger:   logger.With().Str("component", "auth").Logger(),
	}
}

// Login verifies the password and starts a session. The session is created even when the
// durable store is down; the token then validates only on this device.
func (s *AuthService) Login(ctx context.Context, role sessiondomain.Role, loginID, password string) (*LoginResult, error) {
	p, err := s.auth.Authenticate(ctx, role, loginID, password)
	if err != nil {
		if !errors.Is(err, ErrInvalidCredentials) {
			s.logger.Warn().Err(err).Str("role", string(role)).Msg("directory lookup failed")
		}
		return nil, err
	}
	identity := p.Identity()
	token, err := s.sessions.Create(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	active := s.sessions.ListActive(ctx, identity.UserID)
	decision := s.decide(ctx, engine.RevocationInput{Actor: identity, TargetUserID: identity.UserID, ActiveCount: len(active)})
	return &LoginResult{
		Token:                 token,
		Identity:              identity,
		ActiveSessions:        len(active),
		OfferLogoutEverywhere: decision.OfferLogoutEverywhere,
	}, nil
}

// Logout ends the session behind token.
func (s *AuthService) Logout(ctx context.Context, token string) {
	s.sessions.Revoke(ctx, token)
}

// LogoutEverywhere ends every session of targetUserID, or of the caller when targetUserID
// is empty. The caller's token must validate and the policy must allow the request; when the
// policy cannot be evaluated only the caller's own sessions may be ended. Ending someone
// else's sessions leaves the caller's device signed in.
func (s *AuthService) LogoutEverywhere(ctx context.Context, token, targetUserID string) (int64, error) {
	v, err := s.sessions.Validate(ctx, token)
	if err != nil {
		return 0, err
	}
	if targetUserID == "" {
		targetUserID = v.Identity.UserID
	}
	in := engine.RevocationInput{
		Actor:        v.Identity,
		TargetUserID: targetUserID,
		ActiveCount:  len(s.sessions.ListActive(ctx, targetUserID)),
	}
	if !s.decide(ctx, in).AllowRevokeAll {
		s.logger.Info().
			Str("actor", v.Identity.UserID).
			Str("target", targetUserID).
			Msg("logout everywhere denied")
		return 0, engine.ErrForbidden
	}
	if targetUserID != v.Identity.UserID {
		return s.sessions.RevokeUser(ctx, targetUserID), nil
	}
	return s.sessions.RevokeAll(ctx, targetUserID), nil
}

// Devices lists the live sessions of the user behind token.
func (s *AuthService) Devices(ctx context.Context, token string) ([]*sessiondomain.Session, error) {
	v, err := s.sessions.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.sessions.ListActive(ctx, v.Identity.UserID), nil
}

// decide evaluates advisory policy for display. Evaluation errors fall back to the default rules.
func (s *AuthService) decide(ctx context.Context, in engine.RevocationInput) engine.RevocationDecision {
	if s.policy == nil {
		return defaultDecision(in)
	}
	d, err := s.policy.EvaluateRevocation(ctx, in)
	if err != nil {
		s.logger.Warn().Err(err).Msg("revocation policy failed, using defaults")
		return defaultDecision(in)
	}
	return d
}

func defaultDecision(in engine.RevocationInput) engine.RevocationDecision {
	return engine.RevocationDecision{
		AllowRevokeAll:        in.Actor.UserID != "" && in.Actor.UserID == in.TargetUserID,
		OfferLogoutEverywhere: in.ActiveCount > 1,
	}
}
