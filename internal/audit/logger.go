// Package audit records the session audit trail. Writes are best-effort.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/audit/domain"
	auditrepo "github.com/theshubhamgundu/vitsdeptaids-sub001/internal/audit/repository"
)

// writeTimeout bounds one audit insert, independent of the caller's deadline.
const writeTimeout = 3 * time.Second

// Event is the caller-supplied part of an audit entry.
type Event struct {
	UserID    string
	Role      string
	Action    string
	TokenHash string
	Device    string
	Metadata  string
}

// AuditLogger writes a single audit event. LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, e Event)
}

// Logger implements AuditLogger using the audit repository.
type Logger struct {
	repo   auditrepo.Repository
	logger zerolog.Logger
	now    func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo. repo may be nil; LogEvent is then a no-op.
func NewLogger(repo auditrepo.Repository, logger zerolog.Logger) *Logger {
	return &Logger{repo: repo, logger: logger.With().Str("component", "audit").Logger(), now: time.Now}
}

// LogEvent writes one audit log entry. The write survives cancellation of ctx.
func (l *Logger) LogEvent(ctx context.Context, e Event) {
	if l == nil || l.repo == nil {
		return
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    e.UserID,
		Role:      e.Role,
		Action:    e.Action,
		TokenHash: e.TokenHash,
		Device:    e.Device,
		Metadata:  e.Metadata,
		CreatedAt: l.now().UTC(),
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := l.repo.Create(writeCtx, entry); err != nil {
		l.logger.Warn().Err(err).Str("action", e.Action).Str("user_id", e.UserID).Msg("failed to log event")
	}
}
