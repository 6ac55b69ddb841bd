package trial

import (
	"testing"
	"time"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store := NewFileStore(t.TempDir())

	state, err := store.Load("user-1")
	if err != nil {
		t.Fatalf("load before save: %v", err)
	}
	if state != nil {
		t.Fatalf("expected nil state before save, got %+v", state)
	}

	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := store.Save("user-1", &State{StartedAt: &started}); err != nil {
		t.Fatalf("save: %v", err)
	}

	state, err = store.Load("user-1")
	if err != nil {
		t.Fatalf("load after save: %v", err)
	}
	if state == nil || state.StartedAt == nil || !state.StartedAt.Equal(started) {
		t.Fatalf("loaded state %+v, want startedAt=%v", state, started)
	}
}

func TestFileStoreIsolatesUsers(t *testing.T) {
	store := NewFileStore(t.TempDir())

	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := store.Save("user-a", &State{StartedAt: &started}); err != nil {
		t.Fatalf("save: %v", err)
	}

	state, err := store.Load("user-b")
	if err != nil {
		t.Fatalf("load other user: %v", err)
	}
	if state != nil {
		t.Fatalf("expected no state for other user, got %+v", state)
	}
}

func TestFileStoreRejectsUnsafeUserIDs(t *testing.T) {
	store := NewFileStore(t.TempDir())

	for _, id := range []string{"", "../escape", "a/b", "user 1", "x\x00y"} {
		if _, err := store.Load(id); err == nil {
			t.Fatalf("Load(%q) accepted unsafe user ID", id)
		}
		if err := store.Save(id, &State{}); err == nil {
			t.Fatalf("Save(%q) accepted unsafe user ID", id)
		}
	}
}
