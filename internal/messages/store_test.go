package messages

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	pebblestore "github.com/oxbow-io/oxbow/internal/storage/pebble"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func TestPutGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := Message{
		ID:             "m1",
		ChatID:         "c1",
		Role:           "assistant",
		Content:        json.RawMessage(`[{"type":"text","text":"hi"}]`),
		ActiveStreamID: "s1",
		UpdatedAtMs:    1000,
	}
	if err := s.Put(ctx, m); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ChatID != "c1" || got.ActiveStreamID != "s1" || string(got.Content) != string(m.Content) {
		t.Fatalf("got: %+v", got)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing: %v", err)
	}
	if err := s.Put(ctx, Message{}); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("empty id: %v", err)
	}
}

func TestClearActiveStream(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, Message{ID: "m1", ActiveStreamID: "s1", UpdatedAtMs: 1000}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.ClearActiveStream(ctx, "m1", 2000); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, err := s.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ActiveStreamID != "" || got.UpdatedAtMs != 2000 {
		t.Fatalf("got: %+v", got)
	}

	// Idempotent: clearing again leaves the record alone.
	if err := s.ClearActiveStream(ctx, "m1", 3000); err != nil {
		t.Fatalf("clear twice: %v", err)
	}
	got, _ = s.Get(ctx, "m1")
	if got.UpdatedAtMs != 2000 {
		t.Fatalf("second clear mutated record: %+v", got)
	}

	if err := s.ClearActiveStream(ctx, "missing", 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing: %v", err)
	}
}
