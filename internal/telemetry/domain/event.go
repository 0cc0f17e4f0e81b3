package domain

import "time"

// EventType names a session lifecycle transition.
type EventType string

const (
	EventSessionCreated  EventType = "session_created"
	EventSessionRevoked  EventType = "session_revoked"
	EventSessionsRevoked EventType = "sessions_revoked_all"
	EventSessionExpired  EventType = "session_expired"
	EventSessionsReaped  EventType = "sessions_reaped"
)

// SessionEvent is one lifecycle record. It never carries the raw token; TokenHash
// correlates events for the same session.
type SessionEvent struct {
	Type       EventType `json:"type"`
	UserID     string    `json:"user_id,omitempty"`
	Role       string    `json:"role,omitempty"`
	TokenHash  string    `json:"token_hash,omitempty"`
	Device     string    `json:"device,omitempty"`
	Count      int64     `json:"count,omitempty"`
	Degraded   bool      `json:"degraded,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
