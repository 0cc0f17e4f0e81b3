package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/identity/domain"
	sessiondomain "github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/domain"
	sessionservice "github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/service"
)

type memDirectory struct {
	mu       sync.Mutex
	profiles []*domain.Profile
	err      error
}

func (d *memDirectory) GetByID(_ context.Context, role sessiondomain.Role, userID string) (*domain.Profile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	for _, p := range d.profiles {
		if p.Role == role && p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, sessiondomain.ErrNotFound
}

func (d *memDirectory) GetByLogin(_ context.Context, role sessiondomain.Role, login string) (*domain.Profile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	for _, p := range d.profiles {
		if p.Role == role && (p.RoleIdentifier == login || p.Email == login) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, sessiondomain.ErrNotFound
}

func (d *memDirectory) Create(_ context.Context, p *domain.Profile) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *p
	d.profiles = append(d.profiles, &cp)
	return nil
}

// fakeSessions is a minimal session manager keyed by token.
type fakeSessions struct {
	mu       sync.Mutex
	next     int
	sessions map[string]sessiondomain.Identity
	revoked  []string
	// cleared counts RevokeAll calls, which also clear the calling device.
	cleared int
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]sessiondomain.Identity)}
}

func (f *fakeSessions) Create(_ context.Context, identity sessiondomain.Identity) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	token := fmt.Sprintf("tok-%d", f.next)
	f.sessions[token] = identity
	return token, nil
}

func (f *fakeSessions) Validate(_ context.Context, token string) (sessionservice.Validation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.sessions[token]
	if !ok {
		return sessionservice.Validation{}, sessiondomain.ErrInvalid
	}
	return sessionservice.Validation{Identity: id}, nil
}

func (f *fakeSessions) Revoke(_ context.Context, token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, token)
	f.revoked = append(f.revoked, token)
}

func (f *fakeSessions) RevokeAll(ctx context.Context, userID string) int64 {
	n := f.RevokeUser(ctx, userID)
	f.mu.Lock()
	f.cleared++
	f.mu.Unlock()
	return n
}

func (f *fakeSessions) RevokeUser(_ context.Context, userID string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for tok, id := range f.sessions {
		if id.UserID == userID {
			delete(f.sessions, tok)
			n++
		}
	}
	return n
}

func (f *fakeSessions) ListActive(_ context.Context, userID string) []*sessiondomain.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*sessiondomain.Session{}
	for tok, id := range f.sessions {
		if id.UserID == userID {
			out = append(out, &sessiondomain.Session{Token: tok, UserID: id.UserID, Role: id.Role, IsActive: true})
		}
	}
	return out
}
