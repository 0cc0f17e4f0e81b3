package cache

import (
	"context"
	"errors"
	"time"

	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/security"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/domain"
)

// Keys used in the device Store.
const (
	KeyToken    = "current_session_token"
	KeyIdentity = "current_session_identity"
)

// Mirror is the point-in-time copy of the device's current session: one token and the
// identity last validated for it. The identity is sealed and bound to the token, so a
// pair that was partially overwritten or edited on disk never loads.
type Mirror struct {
	store  Store
	sealer *security.CacheSealer
}

// NewMirror returns a Mirror over store.
func NewMirror(store Store, sealer *security.CacheSealer) *Mirror {
	return &Mirror{store: store, sealer: sealer}
}

// Save overwrites the mirror with token and identity. The sealed payload stops
// loading after expiresAt.
func (m *Mirror) Save(ctx context.Context, token string, identity domain.Identity, now, expiresAt time.Time) error {
	sealed, err := m.sealer.Seal(token, identity, now, expiresAt)
	if err != nil {
		return err
	}
	if err := m.store.Put(ctx, KeyIdentity, sealed); err != nil {
		return err
	}
	return m.store.Put(ctx, KeyToken, token)
}

// Token returns the mirrored token, or "" when none is held.
func (m *Mirror) Token(ctx context.Context) (string, error) {
	token, ok, err := m.store.Get(ctx, KeyToken)
	if err != nil || !ok {
		return "", err
	}
	return token, nil
}

// Load returns the cached identity when the mirrored token equals token and its seal
// is intact and unexpired at now.
func (m *Mirror) Load(ctx context.Context, token string, now time.Time) (domain.Identity, bool, error) {
	mirrored, err := m.Token(ctx)
	if err != nil {
		return domain.Identity{}, false, err
	}
	if !security.TokenEqual(mirrored, token) {
		return domain.Identity{}, false, nil
	}
	sealed, ok, err := m.store.Get(ctx, KeyIdentity)
	if err != nil || !ok {
		return domain.Identity{}, false, err
	}
	identity, err := m.sealer.Open(sealed, token, now)
	if errors.Is(err, security.ErrInvalidSeal) {
		return domain.Identity{}, false, nil
	}
	if err != nil {
		return domain.Identity{}, false, err
	}
	return identity, true, nil
}

// Clear removes both keys. Both removals are attempted even if the first fails.
func (m *Mirror) Clear(ctx context.Context) error {
	return errors.Join(m.store.Remove(ctx, KeyToken), m.store.Remove(ctx, KeyIdentity))
}

// ClearIf clears the mirror only when it holds token. It reports whether it cleared.
func (m *Mirror) ClearIf(ctx context.Context, token string) (bool, error) {
	mirrored, err := m.Token(ctx)
	if err != nil {
		return false, err
	}
	if !security.TokenEqual(mirrored, token) {
		return false, nil
	}
	return true, m.Clear(ctx)
}
