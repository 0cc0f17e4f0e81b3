// Package service implements the session lifecycle: issuing, validating and revoking
// sessions across the durable store and the device-local cache.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/audit"
	auditdomain "github.com/theshubhamgundu/vitsdeptaids-sub001/internal/audit/domain"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/security"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/cache"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/device"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/domain"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/repository"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/telemetry"
	telemetrydomain "github.com/theshubhamgundu/vitsdeptaids-sub001/internal/telemetry/domain"
)

const (
	DefaultStoreTimeout   = 4 * time.Second
	DefaultRevokeAttempts = 2
	revokeBackoff         = 200 * time.Millisecond
	backgroundTimeout     = 5 * time.Second
)

// ErrInvalidIdentity is returned by Create for an identity without a user id or with an unknown role.
var ErrInvalidIdentity = errors.New("invalid session identity")

// IdentityResolver fetches the current profile behind a session. It returns
// domain.ErrNotFound when the user no longer exists in the directory for that role.
type IdentityResolver interface {
	Resolve(ctx context.Context, userID string, role domain.Role) (domain.Identity, error)
}

// TokenIssuer mints session tokens.
type TokenIssuer interface {
	Issue() string
}

// DeviceDescriber summarizes the local device for session listings.
type DeviceDescriber interface {
	Describe() string
}

// Config holds the lifecycle tunables.
type Config struct {
	// TTL is the fixed session lifetime from creation. Activity does not extend it.
	TTL time.Duration
	// StoreTimeout bounds every durable store call; a timeout counts as the store being unavailable.
	StoreTimeout time.Duration
	// RevokeAttempts is how many times Revoke and RevokeAll try the durable store. At least 2.
	RevokeAttempts int
}

// DefaultConfig returns a 30 day TTL, a 4s store timeout and two revoke attempts.
func DefaultConfig() Config {
	return Config{TTL: domain.DefaultTTL, StoreTimeout: DefaultStoreTimeout, RevokeAttempts: DefaultRevokeAttempts}
}

// Options wires a Manager. Repo, Mirror and Resolver are required.
type Options struct {
	Repo     repository.Repository
	Mirror   *cache.Mirror
	Resolver IdentityResolver
	Issuer   TokenIssuer
	Device   DeviceDescriber
	Clock    func() time.Time
	Config   Config
	Logger   zerolog.Logger
	Metrics  *telemetry.SessionMetrics
	Events   telemetry.EventEmitter
	Audit    audit.AuditLogger
}

// Validation is a successful Validate result. Degraded is set when the identity came
// from the device cache because the durable store could not answer.
type Validation struct {
	Identity domain.Identity
	Degraded bool
}

// Manager is the sole writer of session state for one device. It is safe for concurrent use;
// no per-token locking is done because the durable store's row updates are enough.
type Manager struct {
	repo     repository.Repository
	mirror   *cache.Mirror
	resolver IdentityResolver
	issuer   TokenIssuer
	device   DeviceDescriber
	now      func() time.Time
	cfg      Config
	logger   zerolog.Logger
	metrics  *telemetry.SessionMetrics
	events   telemetry.EventEmitter
	audit    audit.AuditLogger

	wg sync.WaitGroup
}

// NewManager returns a Manager. Zero config fields fall back to DefaultConfig values.
func NewManager(opts Options) (*Manager, error) {
	if opts.Repo == nil || opts.Mirror == nil || opts.Resolver == nil {
		return nil, errors.New("session: repo, mirror and resolver are required")
	}
	def := DefaultConfig()
	cfg := opts.Config
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = def.StoreTimeout
	}
	if cfg.RevokeAttempts < 2 {
		cfg.RevokeAttempts = def.RevokeAttempts
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	issuer := opts.Issuer
	if issuer == nil {
		issuer = security.NewTokenIssuer(now)
	}
	describer := opts.Device
	if describer == nil {
		describer = device.NewFingerprinter(nil)
	}
	return &Manager{
		repo:     opts.Repo,
		mirror:   opts.Mirror,
		resolver: opts.Resolver,
		issuer:   issuer,
		device:   describer,
		now:      now,
		cfg:      cfg,
		logger:   opts.Logger.With().Str("component", "session").Logger(),
		metrics:  opts.Metrics,
		events:   opts.Events,
		audit:    opts.Audit,
	}, nil
}

// Create issues a session for an already authenticated identity and returns its token.
// A durable store outage does not fail the call: the session is then held in the
// device cache only and validates in degraded mode on this device.
func (m *Manager) Create(ctx context.Context, identity domain.Identity) (string, error) {
	if identity.UserID == "" || !identity.Role.Valid() {
		return "", ErrInvalidIdentity
	}
	now := m.now()
	s := &domain.Session{
		Token:            m.issuer.Issue(),
		UserID:           identity.UserID,
		Role:             identity.Role,
		DeviceDescriptor: m.device.Describe(),
		CreatedAt:        now,
		LastActivityAt:   now,
		ExpiresAt:        now.Add(m.cfg.TTL),
		IsActive:         true,
	}

	degraded := false
	storeCtx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	err := m.repo.Create(storeCtx, s)
	cancel()
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrStoreUnavailable) || errors.Is(err, context.DeadlineExceeded):
		degraded = true
		m.logger.Warn().Err(err).Str("user_id", s.UserID).Msg("durable store unavailable, session held in device cache only")
	default:
		return "", fmt.Errorf("create session: %w", err)
	}

	if err := m.mirror.Save(ctx, s.Token, identity, now, s.ExpiresAt); err != nil {
		ev := m.logger.Warn()
		if degraded {
			ev = m.logger.Error()
		}
		ev.Err(err).Str("user_id", s.UserID).Msg("device cache write failed")
	}

	m.metrics.Created(ctx, degraded)
	action := auditdomain.ActionLogin
	if degraded {
		action = auditdomain.ActionLoginDegraded
	}
	m.record(ctx, s, action, telemetrydomain.EventSessionCreated, degraded, 0)
	return s.Token, nil
}

// Validate checks token and returns the current identity behind it. Every rejection is
// domain.ErrInvalid; callers must treat it as logged out.
//
// The durable store is authoritative when it answers. An inactive row is terminal and an
// expired row is revoked on the spot. Only when the store is unreachable, or has no row
// at all, is the device cache consulted, and then only for the token it mirrors.
func (m *Manager) Validate(ctx context.Context, token string) (Validation, error) {
	if token == "" {
		m.metrics.Validated(ctx, telemetry.OutcomeInvalid)
		return Validation{}, domain.ErrInvalid
	}
	now := m.now()

	storeCtx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	s, err := m.repo.GetByToken(storeCtx, token)
	cancel()
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		return m.validateFromCache(ctx, token, now, "no durable row")
	case errors.Is(err, domain.ErrStoreUnavailable) || errors.Is(err, context.DeadlineExceeded):
		m.logger.Warn().Err(err).Msg("durable store unavailable, validating from device cache")
		return m.validateFromCache(ctx, token, now, "durable store unavailable")
	default:
		m.logger.Warn().Err(err).Msg("session lookup failed")
		return m.reject(ctx, telemetry.OutcomeInvalid)
	}

	if !s.IsActive {
		m.clearMirrorIf(ctx, token)
		return m.reject(ctx, telemetry.OutcomeInvalid)
	}
	if s.Expired(now) {
		m.revoke(ctx, token)
		m.record(ctx, s, auditdomain.ActionExpired, telemetrydomain.EventSessionExpired, false, 1)
		m.metrics.Validated(ctx, telemetry.OutcomeExpired)
		return Validation{}, fmt.Errorf("%w: %w", domain.ErrInvalid, domain.ErrExpired)
	}

	m.touch(token, now)

	resolveCtx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	identity, err := m.resolver.Resolve(resolveCtx, s.UserID, s.Role)
	cancel()
	if errors.Is(err, domain.ErrNotFound) {
		m.logger.Info().Str("user_id", s.UserID).Str("role", string(s.Role)).Msg("session identity no longer in directory")
		return m.reject(ctx, telemetry.OutcomeInvalid)
	}
	if err != nil {
		m.logger.Warn().Err(err).Str("user_id", s.UserID).Msg("identity lookup failed, validating from device cache")
		return m.validateFromCache(ctx, token, now, "directory unavailable")
	}

	if err := m.mirror.Save(ctx, token, identity, now, s.ExpiresAt); err != nil {
		m.logger.Warn().Err(err).Msg("device cache refresh failed")
	}
	m.metrics.Validated(ctx, telemetry.OutcomeValid)
	return Validation{Identity: identity}, nil
}

func (m *Manager) validateFromCache(ctx context.Context, token string, now time.Time, reason string) (Validation, error) {
	identity, ok, err := m.mirror.Load(ctx, token, now)
	if err != nil {
		m.logger.Warn().Err(err).Msg("device cache read failed")
	}
	if !ok {
		return m.reject(ctx, telemetry.OutcomeInvalid)
	}
	m.logger.Debug().Str("user_id", identity.UserID).Str("reason", reason).Msg("degraded validation")
	m.metrics.Validated(ctx, telemetry.OutcomeDegraded)
	return Validation{Identity: identity, Degraded: true}, nil
}

func (m *Manager) reject(ctx context.Context, outcome string) (Validation, error) {
	m.metrics.Validated(ctx, outcome)
	return Validation{}, domain.ErrInvalid
}

// Revoke ends the session for token. The durable write is retried and, if the store stays
// unreachable, logged rather than returned. The device cache is cleared when it mirrors token.
func (m *Manager) Revoke(ctx context.Context, token string) {
	if token == "" {
		return
	}
	s := m.revoke(ctx, token)
	if s == nil {
		s = &domain.Session{Token: token}
	} else {
		m.metrics.Revoked(ctx, 1, "one")
	}
	m.record(ctx, s, auditdomain.ActionLogout, telemetrydomain.EventSessionRevoked, false, 1)
}

func (m *Manager) revoke(ctx context.Context, token string) *domain.Session {
	var s *domain.Session
	err := m.withRetry(ctx, func(ctx context.Context) error {
		var err error
		s, err = m.repo.Deactivate(ctx, token)
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		m.logger.Debug().Msg("revoke: no durable row for token")
	default:
		m.logger.Warn().Err(err).Msg("revoke: durable store unavailable, session may stay active there")
	}
	m.clearMirrorIf(ctx, token)
	return s
}

// RevokeAll ends every session of userID and returns how many durable rows it deactivated.
// The device cache is always cleared, whoever it belonged to.
func (m *Manager) RevokeAll(ctx context.Context, userID string) int64 {
	n := m.revokeUser(ctx, userID)
	if err := m.mirror.Clear(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("device cache clear failed")
	}
	m.metrics.Revoked(ctx, n, "all")
	m.record(ctx, &domain.Session{UserID: userID}, auditdomain.ActionLogoutAll, telemetrydomain.EventSessionsRevoked, false, n)
	return n
}

// RevokeUser ends every durable session of userID on behalf of someone else and leaves
// this device's cache alone. Another device still holding one of those tokens in its
// own cache learns of the revocation on its next durable check.
func (m *Manager) RevokeUser(ctx context.Context, userID string) int64 {
	n := m.revokeUser(ctx, userID)
	m.metrics.Revoked(ctx, n, "user")
	m.record(ctx, &domain.Session{UserID: userID}, auditdomain.ActionLogoutAll, telemetrydomain.EventSessionsRevoked, false, n)
	return n
}

func (m *Manager) revokeUser(ctx context.Context, userID string) int64 {
	var n int64
	err := m.withRetry(ctx, func(ctx context.Context) error {
		var err error
		n, err = m.repo.DeactivateByUser(ctx, userID)
		return err
	})
	if err != nil {
		m.logger.Warn().Err(err).Str("user_id", userID).Msg("revoke all: durable store unavailable, sessions may stay active there")
	}
	return n
}

// ListActive returns the user's unexpired active sessions. It is advisory: on a store
// outage it returns an empty list and the caller undercounts.
func (m *Manager) ListActive(ctx context.Context, userID string) []*domain.Session {
	storeCtx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()
	list, err := m.repo.ListActiveByUser(storeCtx, userID)
	if err != nil {
		m.logger.Warn().Err(err).Str("user_id", userID).Msg("list sessions failed")
		return []*domain.Session{}
	}
	now := m.now()
	out := make([]*domain.Session, 0, len(list))
	for _, s := range list {
		if !s.Expired(now) {
			out = append(out, s)
		}
	}
	return out
}

// ReapExpired deactivates every active session past its expiry and returns the count.
// It is safe to run alongside Validate, which does its own expiry check.
func (m *Manager) ReapExpired(ctx context.Context) (int64, error) {
	storeCtx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()
	n, err := m.repo.DeactivateExpired(storeCtx, m.now())
	if err != nil {
		return 0, fmt.Errorf("reap expired sessions: %w", err)
	}
	if n > 0 {
		m.metrics.Reaped(ctx, n)
		m.record(ctx, &domain.Session{}, auditdomain.ActionReaped, telemetrydomain.EventSessionsReaped, false, n)
	}
	return n, nil
}

// CurrentToken returns the token this device's cache mirrors, or "".
func (m *Manager) CurrentToken(ctx context.Context) string {
	token, err := m.mirror.Token(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("device cache read failed")
	}
	return token
}

// Wait blocks until background touches and audit writes have finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// withRetry runs op against the durable store with a per-attempt timeout. Only availability
// failures are retried. Cancelling ctx does not abort it: a logout must reach the store.
func (m *Manager) withRetry(ctx context.Context, op func(context.Context) error) error {
	ctx = context.WithoutCancel(ctx)
	backoff := retry.WithMaxRetries(uint64(m.cfg.RevokeAttempts-1), retry.NewConstant(revokeBackoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
		defer cancel()
		err := op(attemptCtx)
		if errors.Is(err, domain.ErrStoreUnavailable) || errors.Is(err, context.DeadlineExceeded) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (m *Manager) clearMirrorIf(ctx context.Context, token string) {
	if _, err := m.mirror.ClearIf(ctx, token); err != nil {
		m.logger.Warn().Err(err).Msg("device cache clear failed")
	}
}

// touch advances last activity in the background. A lost update is cosmetic.
func (m *Manager) touch(token string, at time.Time) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.StoreTimeout)
		defer cancel()
		if err := m.repo.Touch(ctx, token, at); err != nil {
			m.logger.Debug().Err(err).Msg("touch failed")
		}
	}()
}

// record writes the audit entry in the background and emits the lifecycle event.
func (m *Manager) record(ctx context.Context, s *domain.Session, action string, eventType telemetrydomain.EventType, degraded bool, count int64) {
	var tokenHash string
	if s.Token != "" {
		tokenHash = security.HashToken(s.Token)
	}
	if m.audit != nil {
		e := audit.Event{
			UserID:    s.UserID,
			Role:      string(s.Role),
			Action:    action,
			TokenHash: tokenHash,
			Device:    s.DeviceDescriptor,
		}
		if count > 1 || action == auditdomain.ActionLogoutAll || action == auditdomain.ActionReaped {
			e.Metadata = fmt.Sprintf(`{"count":%d}`, count)
		}
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), backgroundTimeout)
			defer cancel()
			m.audit.LogEvent(bg, e)
		}()
	}
	telemetry.EmitAsync(m.events, &telemetrydomain.SessionEvent{
		Type:       eventType,
		UserID:     s.UserID,
		Role:       string(s.Role),
		TokenHash:  tokenHash,
		Device:     s.DeviceDescriptor,
		Count:      count,
		Degraded:   degraded,
		OccurredAt: m.now().UTC(),
	})
}
