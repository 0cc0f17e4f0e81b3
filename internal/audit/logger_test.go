package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/audit/domain"
)

// mockAuditRepo implements the audit repository interface for tests.
type mockAuditRepo struct {
	mu        sync.Mutex
	entries   []*domain.AuditLog
	createErr error
	ctxErr    error
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctxErr = ctx.Err()
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.AuditLog, error) {
	return nil, nil
}

func TestLogger_LogEvent_Success(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, zerolog.Nop())

	logger.LogEvent(context.Background(), Event{
		UserID: "user-1", Role: "faculty", Action: domain.ActionLogin,
		TokenHash: "abc", Device: "linux/amd64", Metadata: `{"degraded":false}`,
	})

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.UserID != "user-1" || entry.Role != "faculty" || entry.Action != domain.ActionLogin {
		t.Errorf("entry = %+v", entry)
	}
	if entry.TokenHash != "abc" || entry.Device != "linux/amd64" || entry.Metadata != `{"degraded":false}` {
		t.Errorf("entry = %+v", entry)
	}
	if entry.ID == "" {
		t.Error("entry ID should be set")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("entry CreatedAt should be set")
	}
}

func TestLogger_LogEvent_SurvivesCancelledContext(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	logger.LogEvent(ctx, Event{UserID: "user-1", Action: domain.ActionLogout})

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	if repo.ctxErr != nil {
		t.Errorf("write context should not inherit cancellation, got %v", repo.ctxErr)
	}
}

func TestLogger_LogEvent_RepositoryError(t *testing.T) {
	repo := &mockAuditRepo{createErr: errors.New("database error")}
	logger := NewLogger(repo, zerolog.Nop())

	// Should not panic or return error - best-effort logging
	logger.LogEvent(context.Background(), Event{Action: domain.ActionReaped})
}

func TestLogger_LogEvent_NilRepo(t *testing.T) {
	NewLogger(nil, zerolog.Nop()).LogEvent(context.Background(), Event{Action: domain.ActionLogin})

	var l *Logger
	l.LogEvent(context.Background(), Event{Action: domain.ActionLogin})
}
