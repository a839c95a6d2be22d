package session_test

import (
	"errors"
	"testing"
	"time"

	"github.com/urivet/urivet/internal/session"
)

func TestStore_issueAndGet(t *testing.T) {
	store := session.NewStore(nil, time.Hour)

	token, state, err := store.Issue()
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if token == "" {
		t.Fatal("expected a non-empty token")
	}

	got, err := store.Get(token)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != state {
		t.Error("Get must return the same state issued")
	}
}

func TestStore_rejectsForgedToken(t *testing.T) {
	store := session.NewStore([]byte("secret-a"), time.Hour)
	other := session.NewStore([]byte("secret-b"), time.Hour)

	token, _, err := other.Issue()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(token); !errors.Is(err, session.ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for a token signed with a different secret, got %v", err)
	}
}

func TestStore_rejectsGarbageToken(t *testing.T) {
	store := session.NewStore(nil, time.Hour)
	if _, err := store.Get("not-a-token"); !errors.Is(err, session.ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestStore_evictPrunesIdleSessions(t *testing.T) {
	store := session.NewStore(nil, time.Nanosecond)

	if _, _, err := store.Issue(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)

	if n := store.Evict(); n != 1 {
		t.Errorf("Evict = %d, want 1", n)
	}
	if store.Len() != 0 {
		t.Errorf("Len = %d after evict, want 0", store.Len())
	}
}

func TestState_clearKey(t *testing.T) {
	state := &session.State{}
	if state.ClearKey() {
		t.Error("ClearKey on empty state should report false")
	}
}

func TestState_independentHistories(t *testing.T) {
	state := &session.State{}
	state.Lookups.Push(session.LookupResult{URI: "http://example.com"})
	if state.Scans.Len() != 0 {
		t.Error("scan history must not be affected by lookup pushes")
	}
}
