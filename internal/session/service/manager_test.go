package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	auditdomain "github.com/theshubhamgundu/vitsdeptaids-sub001/internal/audit/domain"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/security"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/cache"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/domain"
)

var (
	student = domain.Identity{
		UserID:         "u1",
		Role:           domain.RoleStudent,
		Name:           "Asha Rao",
		Email:          "asha@example.edu",
		RoleIdentifier: "21AD001",
		Department:     "AI&DS",
	}
	faculty = domain.Identity{UserID: "f1", Role: domain.RoleFaculty, Name: "K. Prasad", RoleIdentifier: "EMP042"}
)

const day = 24 * time.Hour

func mustCreate(t *testing.T, m *Manager, id domain.Identity) string {
	t.Helper()
	token, err := m.Create(context.Background(), id)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if token == "" {
		t.Fatal("Create returned empty token")
	}
	return token
}

func assertValid(t *testing.T, m *Manager, token string, want domain.Identity, wantDegraded bool) {
	t.Helper()
	got, err := m.Validate(context.Background(), token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !got.Identity.Equal(want) {
		t.Errorf("identity = %+v, want %+v", got.Identity, want)
	}
	if got.Degraded != wantDegraded {
		t.Errorf("degraded = %v, want %v", got.Degraded, wantDegraded)
	}
}

func assertInvalid(t *testing.T, m *Manager, token string) {
	t.Helper()
	if _, err := m.Validate(context.Background(), token); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("Validate err = %v, want ErrInvalid", err)
	}
}

func TestNewManager_RequiresCollaborators(t *testing.T) {
	if _, err := NewManager(Options{}); err == nil {
		t.Fatal("NewManager without repo, mirror and resolver should fail")
	}
}

func TestNewManager_ConfigDefaults(t *testing.T) {
	w := newWorld(t)
	w.cfg = Config{RevokeAttempts: 1}
	m := w.device("laptop")
	if m.cfg.TTL != domain.DefaultTTL || m.cfg.StoreTimeout != DefaultStoreTimeout || m.cfg.RevokeAttempts != 2 {
		t.Errorf("cfg = %+v, want defaults with at least two revoke attempts", m.cfg)
	}
}

func TestCreate_ValidateRoundTrip(t *testing.T) {
	w := newWorld(t, student)
	m := w.device("laptop")

	token := mustCreate(t, m, student)
	assertValid(t, m, token, student, false)

	row := w.repo.row(token)
	if row == nil {
		t.Fatal("session row not written")
	}
	if !row.IsActive || row.UserID != "u1" || row.Role != domain.RoleStudent {
		t.Errorf("row = %+v", row)
	}
	if !row.ExpiresAt.Equal(w.clock.Now().Add(30 * day)) {
		t.Errorf("ExpiresAt = %v, want creation + 30 days", row.ExpiresAt)
	}
	if !row.CreatedAt.Equal(row.LastActivityAt) {
		t.Error("CreatedAt and LastActivityAt should start equal")
	}
	if row.DeviceDescriptor == "" {
		t.Error("device descriptor should be recorded")
	}
	if got := m.CurrentToken(context.Background()); got != token {
		t.Errorf("CurrentToken = %q, want the new token", got)
	}
}

func TestCreate_RejectsIncompleteIdentity(t *testing.T) {
	w := newWorld(t)
	m := w.device("laptop")
	for _, id := range []domain.Identity{{Role: domain.RoleStudent}, {UserID: "u1", Role: "janitor"}} {
		if _, err := m.Create(context.Background(), id); !errors.Is(err, ErrInvalidIdentity) {
			t.Errorf("Create(%+v) err = %v, want ErrInvalidIdentity", id, err)
		}
	}
}

func TestValidate_EmptyToken(t *testing.T) {
	w := newWorld(t, student)
	assertInvalid(t, w.device("laptop"), "")
}

func TestValidate_UnknownToken(t *testing.T) {
	w := newWorld(t, student)
	m := w.device("laptop")
	mustCreate(t, m, student)
	assertInvalid(t, m, "sess_forged")
}

func TestValidate_RefreshesIdentity(t *testing.T) {
	w := newWorld(t, student)
	m := w.device("laptop")
	token := mustCreate(t, m, student)

	renamed := student
	renamed.Phone = "+91 90000 00000"
	w.dir.mu.Lock()
	w.dir.identities["u1"] = renamed
	w.dir.mu.Unlock()

	assertValid(t, m, token, renamed, false)

	// The refreshed profile is what the cache serves during an outage.
	w.repo.setDown(true)
	assertValid(t, m, token, renamed, true)
}

func TestRevoke_IsTerminal(t *testing.T) {
	w := newWorld(t, student)
	m := w.device("laptop")
	token := mustCreate(t, m, student)

	m.Revoke(context.Background(), token)

	for i := 0; i < 3; i++ {
		assertInvalid(t, m, token)
	}
	if m.CurrentToken(context.Background()) != "" {
		t.Error("revoke should clear the device cache")
	}
	w.repo.setDown(true)
	assertInvalid(t, m, token)
}

func TestRevoke_OtherTokenKeepsMirror(t *testing.T) {
	w := newWorld(t, student)
	m := w.device("laptop")
	first := mustCreate(t, m, student)
	second := mustCreate(t, m, student)

	m.Revoke(context.Background(), first)

	if m.CurrentToken(context.Background()) != second {
		t.Error("revoking a token the cache does not hold must keep the cache")
	}
	assertInvalid(t, m, first)
	assertValid(t, m, second, student, false)
}

func TestRevoke_RetriesDurableStore(t *testing.T) {
	w := newWorld(t, student)
	m := w.device("laptop")
	token := mustCreate(t, m, student)
	w.repo.failDeactivate = 1

	m.Revoke(context.Background(), token)

	if w.repo.deactivateCalls != 2 {
		t.Errorf("deactivate calls = %d, want 2", w.repo.deactivateCalls)
	}
	if row := w.repo.row(token); row.IsActive {
		t.Error("row should be inactive after retried revoke")
	}
}

func TestRevoke_RetriesAfterTimeout(t *testing.T) {
	w := newWorld(t, student)
	m := w.device("laptop")
	token := mustCreate(t, m, student)
	w.repo.stallDeactivate = 1

	start := time.Now()
	m.Revoke(context.Background(), token)

	if got := w.repo.calls(); got != 2 {
		t.Errorf("deactivate calls = %d, want 2", got)
	}
	if elapsed := time.Since(start); elapsed < w.cfg.StoreTimeout {
		t.Errorf("revoke returned after %s, before the first attempt timed out", elapsed)
	}
	if row := w.repo.row(token); row.IsActive {
		t.Error("row should be inactive after the retry that followed a timeout")
	}
	assertInvalid(t, m, token)
}

func TestRevokeAll_RetriesAfterTimeout(t *testing.T) {
	w := newWorld(t, student)
	laptop, phone := w.device("laptop"), w.device("phone")
	first := mustCreate(t, laptop, student)
	second := mustCreate(t, phone, student)
	w.repo.stallDeactivate = 1

	n := laptop.RevokeAll(context.Background(), student.UserID)

	if n != 2 {
		t.Errorf("RevokeAll = %d, want 2", n)
	}
	if got := w.repo.calls(); got != 2 {
		t.Errorf("deactivate calls = %d, want 2", got)
	}
	for _, token := range []string{first, second} {
		if row := w.repo.row(token); row.IsActive {
			t.Errorf("row %s should be inactive after the retry that followed a timeout", token)
		}
	}
	assertInvalid(t, phone, second)
}

func TestRevoke_SurvivesCancelledContext(t *testing.T) {
	w := newWorld(t, student)
	m := w.device("laptop")
	token := mustCreate(t, m, student)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m.Revoke(ctx, token)

	if row := w.repo.row(token); row.IsActive {
		t.Error("a cancelled caller must not leave the session active")
	}
}

func TestRevoke_DurableOutageStillClearsDevice(t *testing.T) {
	w := newWorld(t, student)
	m := w.device("laptop")
	token := mustCreate(t, m, student)
	w.repo.setDown(true)

	m.Revoke(context.Background(), token)

	if w.repo.deactivateCalls != 0 {
		t.Errorf("deactivate reached the store while down: %d", w.repo.deactivateCalls)
	}
	assertInvalid(t, m, token)
}

func TestRevokeAll_InvalidatesEveryDevice(t *testing.T) {
	w := newWorld(t, student)
	devices := []*Manager{w.device("laptop"), w.device("phone"), w.device("lab-pc")}
	tokens := make([]string, len(devices))
	for i, d := range devices {
		tokens[i] = mustCreate(t, d, student)
	}
	if n := len(devices[0].ListActive(context.Background(), "u1")); n != 3 {
		t.Fatalf("ListActive = %d, want 3", n)
	}

	if n := devices[0].RevokeAll(context.Background(), "u1"); n != 3 {
		t.Errorf("RevokeAll = %d, want 3", n)
	}

	for i, d := range devices {
		for _, tok := range tokens {
			if _, err := d.Validate(context.Background(), tok); !errors.Is(err, domain.ErrInvalid) {
				t.Errorf("device %d: token still valid after RevokeAll", i)
			}
		}
	}
	if n := len(devices[0].ListActive(context.Background(), "u1")); n != 0 {
		t.Errorf("ListActive after RevokeAll = %d, want 0", n)
	}
}

func TestRevokeAll_AlwaysClearsDevice(t *testing.T) {
	w := newWorld(t, student, faculty)
	m := w.device("shared-pc")
	mustCreate(t, m, faculty)

	m.RevokeAll(context.Background(), "u1")

	if m.CurrentToken(context.Background()) != "" {
		t.Error("RevokeAll must clear the device cache even for another user's session")
	}
}

func TestRevokeUser_KeepsCallerDevice(t *testing.T) {
	w := newWorld(t, student, faculty)
	office, laptop := w.device("office"), w.device("laptop")
	ftoken := mustCreate(t, office, faculty)
	stoken := mustCreate(t, laptop, student)

	if n := office.RevokeUser(context.Background(), "u1"); n != 1 {
		t.Errorf("RevokeUser = %d, want 1", n)
	}
	if got := office.CurrentToken(context.Background()); got != ftoken {
		t.Errorf("caller device token = %q, want it kept", got)
	}
	assertValid(t, office, ftoken, faculty, false)
	assertInvalid(t, laptop, stoken)
}

func TestRevokeAll_OtherUserUntouched(t *testing.T) {
	w := newWorld(t, student, faculty)
	laptop, phone := w.device("laptop"), w.device("phone")
	mustCreate(t, laptop, student)
	ftoken := mustCreate(t, phone, faculty)

	laptop.RevokeAll(context.Background(), "u1")

	assertValid(t, phone, ftoken, faculty, false)
}

func TestCreate_DurableOutage(t *testing.T) {
	w := newWorld(t, student)
	laptop, phone := w.device("laptop"), w.device("phone")
	w.repo.setDown(true)

	token, err := laptop.Create(context.Background(), student)
	if err != nil {
		t.Fatalf("Create during outage: %v", err)
	}
	if token == "" {
		t.Fatal("Create during outage returned empty token")
	}

	assertValid(t, laptop, token, student, true)
	assertInvalid(t, phone, token)

	// Store back, row never written: the laptop still answers from its cache.
	w.repo.setDown(false)
	if w.repo.row(token) != nil {
		t.Fatal("no row should exist for a cache-only session")
	}
	assertValid(t, laptop, token, student, true)
	assertInvalid(t, phone, token)
}

func TestCreate_BlockedStoreTimesOut(t *testing.T) {
	w := newWorld(t, student)
	w.cfg.StoreTimeout = 30 * time.Millisecond
	m := w.device("laptop")
	w.repo.block = true

	start := time.Now()
	token, err := m.Create(context.Background(), student)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	assertValid(t, m, token, student, true)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("create + validate took %v with a hung store", elapsed)
	}
}

func TestValidate_PassiveExpiry(t *testing.T) {
	w := newWorld(t, student)
	m := w.device("laptop")
	token := mustCreate(t, m, student)

	w.clock.Advance(1 * day)
	assertValid(t, m, token, student, false)

	w.clock.Advance(30 * day)
	_, err := m.Validate(context.Background(), token)
	if !errors.Is(err, domain.ErrInvalid) || !errors.Is(err, domain.ErrExpired) {
		t.Fatalf("Validate after expiry err = %v, want ErrInvalid wrapping ErrExpired", err)
	}
	for _, s := range m.ListActive(context.Background(), "u1") {
		if s.Token == token {
			t.Error("expired session still listed as active")
		}
	}
	if row := w.repo.row(token); row.IsActive {
		t.Error("expired session should be deactivated on validate")
	}
	if m.CurrentToken(context.Background()) != "" {
		t.Error("expired session should be cleared from the device cache")
	}
	assertInvalid(t, m, token)
}

func TestValidate_ExpiredCacheOnlySession(t *testing.T) {
	w := newWorld(t, student)
	m := w.device("laptop")
	w.repo.setDown(true)
	token := mustCreate(t, m, student)

	w.clock.Advance(31 * day)
	assertInvalid(t, m, token)
}

func TestListActive_HidesUnreapedExpired(t *testing.T) {
	w := newWorld(t, student)
	m := w.device("laptop")
	mustCreate(t, m, student)
	w.clock.Advance(29 * day)
	fresh := mustCreate(t, m, student)
	w.clock.Advance(2 * day)

	list := m.ListActive(context.Background(), "u1")
	if len(list) != 1 || list[0].Token != fresh {
		t.Errorf("ListActive = %v, want only the fresh session", list)
	}
}

func TestListActive_OutageReturnsEmpty(t *testing.T) {
	w := newWorld(t, student)
	m := w.device("laptop")
	mustCreate(t, m, student)
	w.repo.setDown(true)

	list := m.ListActive(context.Background(), "u1")
	if list == nil || len(list) != 0 {
		t.Errorf("ListActive during outage = %v, want empty non-nil", list)
	}
}

func TestValidate_ConcurrentDevices(t *testing.T) {
	w := newWorld(t, student)
	origin := w.device("laptop")
	token := mustCreate(t, origin, student)
	devices := []*Manager{origin, w.device("phone"), w.device("tablet")}

	var wg sync.WaitGroup
	errs := make(chan error, 30)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(d *Manager) {
			defer wg.Done()
			got, err := d.Validate(context.Background(), token)
			if err != nil {
				errs <- err
				return
			}
			if !got.Identity.Equal(student) || got.Degraded {
				errs <- errors.New("unexpected identity or degraded result")
			}
		}(devices[i%len(devices)])
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestCreate_TwoSessionsAreIndependent(t *testing.T) {
	w := newWorld(t, student)
	laptop, phone := w.device("laptop"), w.device("phone")
	a := mustCreate(t, laptop, student)
	b := mustCreate(t, phone, student)
	if a == b {
		t.Fatal("two creates returned the same token")
	}
	assertValid(t, laptop, a, student, false)
	assertValid(t, phone, b, student, false)

	laptop.Revoke(context.Background(), a)

	assertInvalid(t, laptop, a)
	assertValid(t, phone, b, student, false)
}

func TestValidate_IdentityRemovedFromDirectory(t *testing.T) {
	w := newWorld(t, student)
	m := w.device("laptop")
	token := mustCreate(t, m, student)

	w.dir.remove("u1")

	assertInvalid(t, m, token)
	if row := w.repo.row(token); !row.IsActive {
		t.Error("a missing identity rejects the call without revoking the session")
	}
}

func TestValidate_DirectoryOutageUsesCache(t *testing.T) {
	w := newWorld(t, student)
	laptop, phone := w.device("laptop"), w.device("phone")
	token := mustCreate(t, laptop, student)
	w.dir.err = errors.New("directory unreachable")

	assertValid(t, laptop, token, student, true)
	assertInvalid(t, phone, token)
}

func TestValidate_TouchesLastActivity(t *testing.T) {
	w := newWorld(t, student)
	m := w.device("laptop")
	token := mustCreate(t, m, student)
	created := w.repo.row(token).LastActivityAt

	w.clock.Advance(time.Hour)
	assertValid(t, m, token, student, false)
	m.Wait()

	row := w.repo.row(token)
	if !row.LastActivityAt.Equal(created.Add(time.Hour)) {
		t.Errorf("LastActivityAt = %v, want %v", row.LastActivityAt, created.Add(time.Hour))
	}
	if !row.ExpiresAt.Equal(created.Add(30 * day)) {
		t.Error("activity must not extend expiry")
	}
}

func TestReapExpired(t *testing.T) {
	w := newWorld(t, student, faculty)
	m := w.device("laptop")
	a := mustCreate(t, m, student)
	b := mustCreate(t, m, faculty)
	w.clock.Advance(10 * day)
	c := mustCreate(t, m, student)
	w.clock.Advance(25 * day)

	n, err := m.ReapExpired(context.Background())
	if err != nil {
		t.Fatalf("ReapExpired: %v", err)
	}
	if n != 2 {
		t.Errorf("ReapExpired = %d, want 2", n)
	}
	for _, tok := range []string{a, b} {
		if w.repo.row(tok).IsActive {
			t.Error("expired row still active after reap")
		}
	}
	if !w.repo.row(c).IsActive {
		t.Error("unexpired row reaped")
	}

	w.repo.setDown(true)
	if _, err := m.ReapExpired(context.Background()); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("ReapExpired during outage err = %v, want ErrStoreUnavailable", err)
	}
}

func TestAuditTrail(t *testing.T) {
	w := newWorld(t, student)
	m := w.device("laptop")
	token := mustCreate(t, m, student)
	m.Revoke(context.Background(), token)
	w.repo.setDown(true)
	mustCreate(t, m, student)
	w.repo.setDown(false)
	m.RevokeAll(context.Background(), "u1")
	m.Wait()

	got := map[string]int{}
	for _, a := range w.audit.actions() {
		got[a]++
	}
	for _, want := range []string{auditdomain.ActionLogin, auditdomain.ActionLogout, auditdomain.ActionLoginDegraded, auditdomain.ActionLogoutAll} {
		if got[want] != 1 {
			t.Errorf("audit %s = %d, want 1 (all: %v)", want, got[want], w.audit.actions())
		}
	}
	for _, e := range w.audit.events {
		if e.Action == auditdomain.ActionLogin && (e.TokenHash == "" || e.TokenHash == token) {
			t.Error("audit must carry the token hash, never the token")
		}
	}
}

type failingStore struct{}

func (failingStore) Put(context.Context, string, string) error { return errors.New("disk full") }
func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk full")
}
func (failingStore) Remove(context.Context, string) error { return errors.New("disk full") }

func TestCreate_CacheFailureIsNotFatal(t *testing.T) {
	w := newWorld(t, student)
	sealer, err := security.NewTestSealer()
	if err != nil {
		t.Fatalf("NewTestSealer: %v", err)
	}
	m, err := NewManager(Options{
		Repo:     w.repo,
		Mirror:   cache.NewMirror(failingStore{}, sealer),
		Resolver: w.dir,
		Clock:    w.clock.Now,
		Config:   w.cfg,
		Logger:   zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	token := mustCreate(t, m, student)
	assertValid(t, m, token, student, false)
	m.Revoke(context.Background(), token)
	assertInvalid(t, m, token)
}
