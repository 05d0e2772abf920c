package bufsvc

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/oxbow-io/oxbow/internal/config"
	pebblestore "github.com/oxbow-io/oxbow/internal/storage/pebble"
	"github.com/oxbow-io/oxbow/internal/streambuf"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	reg := streambuf.NewRegistry(streambuf.Options{DB: db})
	t.Cleanup(reg.Close)
	return New(reg, config.Default())
}

func TestAppendFinalizeResume(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	n, err := s.Append(ctx, "s1", []streambuf.AppendEvent{
		{ID: "a", Payload: []byte("1")},
		{ID: "b", Payload: []byte("2")},
	})
	if err != nil || n != 2 {
		t.Fatalf("append: n=%d err=%v", n, err)
	}
	if err := s.Finalize(ctx, "s1"); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	sub, err := s.Resume("s1", "a")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !sub.Finalized || len(sub.Replay) != 1 || sub.Replay[0].ID != "b" {
		t.Fatalf("sub: finalized=%v replay=%+v", sub.Finalized, sub.Replay)
	}
	if _, err := s.Append(ctx, "s1", []streambuf.AppendEvent{{ID: "c", Payload: []byte("3")}}); !errors.Is(err, streambuf.ErrFinalized) {
		t.Fatalf("append after finalize: %v", err)
	}
}

func TestAppendRejectsOversizedBlock(t *testing.T) {
	s := newTestService(t)
	big := make([]byte, config.Default().MaxBlockBytes+1)
	_, err := s.Append(context.Background(), "s1", []streambuf.AppendEvent{{ID: "a", Payload: big}})
	if !errors.Is(err, streambuf.ErrInvalidEvent) {
		t.Fatalf("oversized block: %v", err)
	}
}

func TestTailFilter(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	if _, err := s.Append(ctx, "s1", []streambuf.AppendEvent{
		{ID: "a", Payload: []byte(`{"kind":"delta","n":1}`)},
		{ID: "b", Payload: []byte(`{"kind":"done","n":2}`)},
		{ID: "c", Payload: []byte(`{"kind":"delta","n":3}`)},
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	sub, match, err := s.Tail("s1", `json.kind == "delta"`)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	defer sub.Cancel()
	var got []string
	for _, ev := range sub.Replay {
		if match(ev) {
			got = append(got, ev.ID)
		}
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("filtered: %v", got)
	}

	if _, _, err := s.Tail("s1", "this is not CEL ["); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestTailFilterVariables(t *testing.T) {
	cases := []struct {
		expr string
		want bool
	}{
		{`id == "a"`, true},
		{`seq == 1`, true},
		{`size > 2`, true},
		{`text.contains("hello")`, true},
		{`created_ms > 0 && created_ms <= now_ms`, true},
		{`id == "other"`, false},
	}
	ev := streambuf.Event{ID: "a", Seq: 1, CreatedAtMs: time.Now().UnixMilli() - 5, Payload: []byte(`{"text":"hello"}`)}
	for _, c := range cases {
		f, err := newCELFilter(c.expr)
		if err != nil {
			t.Fatalf("compile %q: %v", c.expr, err)
		}
		if got := f.Eval(ev); got != c.want {
			t.Fatalf("eval %q = %v, want %v", c.expr, got, c.want)
		}
	}
	// Empty expression matches everything.
	f, err := newCELFilter("  ")
	if err != nil || !f.Eval(ev) {
		t.Fatalf("empty filter: err=%v", err)
	}
}

func TestIngest(t *testing.T) {
	s := newTestService(t)
	src := strings.NewReader("id: e1\ndata: one\n\nid: e2\ndata: two\n\n")
	if err := s.Ingest(context.Background(), "s1", src); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	sub, err := s.Resume("s1", "")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !sub.Finalized {
		t.Fatal("stream not finalized after ingest")
	}
	if len(sub.Replay) != 2 || sub.Replay[0].ID != "e1" || sub.Replay[1].ID != "e2" {
		t.Fatalf("replay: %+v", sub.Replay)
	}
}

func TestStats(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	if _, err := s.Append(ctx, "s1", []streambuf.AppendEvent{{ID: "a", Payload: []byte("1")}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	st, err := s.Stats("s1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Events != 1 || st.Finalized {
		t.Fatalf("stats: %+v", st)
	}
	if s.Open() != 1 {
		t.Fatalf("open buffers: %d", s.Open())
	}
}
