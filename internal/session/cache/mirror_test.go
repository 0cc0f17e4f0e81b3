package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/security"
	"github.com/theshubhamgundu/vitsdeptaids-sub001/internal/session/domain"
)

func newTestMirror(t *testing.T, store Store) *Mirror {
	t.Helper()
	sealer, err := security.NewTestSealer()
	if err != nil {
		t.Fatalf("NewTestSealer: %v", err)
	}
	return NewMirror(store, sealer)
}

var testIdentity = domain.Identity{UserID: "u1", Role: domain.RoleStudent, Name: "Asha"}

func TestMirror_SaveLoad(t *testing.T) {
	ctx := context.Background()
	m := newTestMirror(t, NewMemoryStore())
	now := time.Now()

	if err := m.Save(ctx, "tok-1", testIdentity, now, now.Add(time.Hour)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if tok, _ := m.Token(ctx); tok != "tok-1" {
		t.Errorf("Token = %q, want tok-1", tok)
	}
	got, ok, err := m.Load(ctx, "tok-1", now)
	if err != nil || !ok {
		t.Fatalf("Load = %v, %v", ok, err)
	}
	if !got.Equal(testIdentity) {
		t.Errorf("Load identity = %+v, want %+v", got, testIdentity)
	}
}

func TestMirror_LoadMisses(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("empty", func(t *testing.T) {
		m := newTestMirror(t, NewMemoryStore())
		if _, ok, err := m.Load(ctx, "tok-1", now); ok || err != nil {
			t.Errorf("Load on empty = %v, %v", ok, err)
		}
	})
	t.Run("other token", func(t *testing.T) {
		m := newTestMirror(t, NewMemoryStore())
		_ = m.Save(ctx, "tok-1", testIdentity, now, now.Add(time.Hour))
		if _, ok, _ := m.Load(ctx, "tok-2", now); ok {
			t.Error("Load with another token should miss")
		}
	})
	t.Run("expired", func(t *testing.T) {
		m := newTestMirror(t, NewMemoryStore())
		_ = m.Save(ctx, "tok-1", testIdentity, now, now.Add(time.Hour))
		if _, ok, _ := m.Load(ctx, "tok-1", now.Add(2*time.Hour)); ok {
			t.Error("Load after expiry should miss")
		}
	})
	t.Run("token swapped on disk", func(t *testing.T) {
		store := NewMemoryStore()
		m := newTestMirror(t, store)
		_ = m.Save(ctx, "tok-1", testIdentity, now, now.Add(time.Hour))
		_ = store.Put(ctx, KeyToken, "tok-forged")
		if _, ok, _ := m.Load(ctx, "tok-forged", now); ok {
			t.Error("identity sealed for tok-1 must not load for another token")
		}
	})
	t.Run("tampered identity", func(t *testing.T) {
		store := NewMemoryStore()
		m := newTestMirror(t, store)
		_ = m.Save(ctx, "tok-1", testIdentity, now, now.Add(time.Hour))
		_ = store.Put(ctx, KeyIdentity, "garbage")
		if _, ok, err := m.Load(ctx, "tok-1", now); ok || err != nil {
			t.Errorf("Load tampered = %v, %v; want miss without error", ok, err)
		}
	})
}

func TestMirror_Clear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := newTestMirror(t, store)
	now := time.Now()
	_ = m.Save(ctx, "tok-1", testIdentity, now, now.Add(time.Hour))

	cleared, err := m.ClearIf(ctx, "tok-2")
	if err != nil || cleared {
		t.Fatalf("ClearIf(other) = %v, %v; want false", cleared, err)
	}
	if tok, _ := m.Token(ctx); tok != "tok-1" {
		t.Fatal("ClearIf with another token must keep the mirror")
	}

	cleared, err = m.ClearIf(ctx, "tok-1")
	if err != nil || !cleared {
		t.Fatalf("ClearIf(own) = %v, %v; want true", cleared, err)
	}
	for _, k := range []string{KeyToken, KeyIdentity} {
		if _, ok, _ := store.Get(ctx, k); ok {
			t.Errorf("key %s still present after clear", k)
		}
	}
}

type failingStore struct{ err error }

func (f failingStore) Put(context.Context, string, string) error { return f.err }
func (f failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, f.err
}
func (f failingStore) Remove(context.Context, string) error { return f.err }

func TestMirror_StoreErrors(t *testing.T) {
	ctx := context.Background()
	full := errors.New("no space left on device")
	m := newTestMirror(t, failingStore{err: full})
	now := time.Now()

	if err := m.Save(ctx, "tok-1", testIdentity, now, now.Add(time.Hour)); !errors.Is(err, full) {
		t.Errorf("Save err = %v, want %v", err, full)
	}
	if _, _, err := m.Load(ctx, "tok-1", now); !errors.Is(err, full) {
		t.Errorf("Load err = %v, want %v", err, full)
	}
	if err := m.Clear(ctx); !errors.Is(err, full) {
		t.Errorf("Clear err = %v, want %v", err, full)
	}
}
