package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/audit"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/security"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/cache"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/device"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/domain"
)

// memRepo is an in-memory durable store shared by every simulated device in a test.
type memRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	// down makes every call fail as if the backend were unreachable.
	down bool
	// block makes every call wait for its context to end.
	block bool
	// failDeactivate fails this many Deactivate/DeactivateByUser calls before succeeding.
	failDeactivate  int
	deactivateCalls int
	// stallDeactivate makes this many Deactivate/DeactivateByUser calls wait for their
	// context deadline before succeeding calls resume.
	stallDeactivate int
}

func newMemRepo() *memRepo {
	return &memRepo{sessions: make(map[string]*domain.Session)}
}

func (r *memRepo) setDown(down bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.down = down
}

func (r *memRepo) gate(ctx context.Context) error {
	r.mu.Lock()
	block, down := r.block, r.down
	r.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if down {
		return domain.ErrStoreUnavailable
	}
	return nil
}

func (r *memRepo) Create(ctx context.Context, s *domain.Session) error {
	if err := r.gate(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == "" {
		s.ID = "row-" + s.Token
	}
	cp := *s
	r.sessions[s.Token] = &cp
	return nil
}

func (r *memRepo) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	if err := r.gate(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[token]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memRepo) Touch(ctx context.Context, token string, at time.Time) error {
	if err := r.gate(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[token]
	if !ok || !s.IsActive {
		return domain.ErrNotFound
	}
	if at.After(s.LastActivityAt) {
		s.LastActivityAt = at
	}
	return nil
}

// deactivateAttempt counts a deactivation and applies the configured stall or failure.
func (r *memRepo) deactivateAttempt(ctx context.Context) error {
	r.mu.Lock()
	r.deactivateCalls++
	stall := r.stallDeactivate > 0
	if stall {
		r.stallDeactivate--
	}
	fail := !stall && r.failDeactivate > 0
	if fail {
		r.failDeactivate--
	}
	r.mu.Unlock()
	if stall {
		<-ctx.Done()
		return ctx.Err()
	}
	if fail {
		return domain.ErrStoreUnavailable
	}
	return nil
}

func (r *memRepo) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deactivateCalls
}

func (r *memRepo) Deactivate(ctx context.Context, token string) (*domain.Session, error) {
	if err := r.gate(ctx); err != nil {
		return nil, err
	}
	if err := r.deactivateAttempt(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[token]
	if !ok {
		return nil, domain.ErrNotFound
	}
	s.IsActive = false
	cp := *s
	return &cp, nil
}

func (r *memRepo) ListActiveByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	if err := r.gate(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Session
	for _, s := range r.sessions {
		if s.UserID == userID && s.IsActive {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memRepo) DeactivateByUser(ctx context.Context, userID string) (int64, error) {
	if err := r.gate(ctx); err != nil {
		return 0, err
	}
	if err := r.deactivateAttempt(ctx); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if s.UserID == userID && s.IsActive {
			s.IsActive = false
			n++
		}
	}
	return n, nil
}

func (r *memRepo) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := r.gate(ctx); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if s.IsActive && s.Expired(now) {
			s.IsActive = false
			n++
		}
	}
	return n, nil
}

func (r *memRepo) row(token string) *domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[token]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

// fakeDirectory resolves identities from a map.
type fakeDirectory struct {
	mu         sync.Mutex
	identities map[string]domain.Identity
	err        error
}

func newFakeDirectory(ids ...domain.Identity) *fakeDirectory {
	d := &fakeDirectory{identities: make(map[string]domain.Identity)}
	for _, id := range ids {
		d.identities[id.UserID] = id
	}
	return d
}

func (d *fakeDirectory) Resolve(_ context.Context, userID string, role domain.Role) (domain.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return domain.Identity{}, d.err
	}
	id, ok := d.identities[userID]
	if !ok || id.Role != role {
		return domain.Identity{}, domain.ErrNotFound
	}
	return id, nil
}

func (d *fakeDirectory) remove(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.identities, userID)
}

// testClock is a settable clock shared by every device in a test.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// recordingAudit collects audit actions.
type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *recordingAudit) LogEvent(_ context.Context, e audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

func (a *recordingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.events))
	for i, e := range a.events {
		out[i] = e.Action
	}
	return out
}

// world is one shared durable store and directory with any number of devices.
type world struct {
	t     *testing.T
	repo  *memRepo
	dir   *fakeDirectory
	clock *testClock
	audit *recordingAudit
	cfg   Config
}

func newWorld(t *testing.T, ids ...domain.Identity) *world {
	t.Helper()
	return &world{
		t:     t,
		repo:  newMemRepo(),
		dir:   newFakeDirectory(ids...),
		clock: newTestClock(),
		audit: &recordingAudit{},
		cfg:   Config{StoreTimeout: 100 * time.Millisecond, RevokeAttempts: 2},
	}
}

// device returns a Manager with its own local cache, as a separate device would have.
func (w *world) device(name string) *Manager {
	w.t.Helper()
	sealer, err := security.NewTestSealer()
	if err != nil {
		w.t.Fatalf("NewTestSealer: %v", err)
	}
	m, err := NewManager(Options{
		Repo:     w.repo,
		Mirror:   cache.NewMirror(cache.NewMemoryStore(), sealer),
		Resolver: w.dir,
		Device:   device.NewFingerprinter(device.Static(device.Signals{Platform: name})),
		Clock:    w.clock.Now,
		Config:   w.cfg,
		Logger:   zerolog.Nop(),
		Audit:    w.audit,
	})
	if err != nil {
		w.t.Fatalf("NewManager: %v", err)
	}
	w.t.Cleanup(m.Wait)
	return m
}
