package pebblestore

import (
	"bytes"
	"errors"
	"testing"

	"github.com/cockroachdb/pebble"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Options{DataDir: t.TempDir(), Fsync: FsyncModeAlways})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSetGetDelete(t *testing.T) {
	db := newTestDB(t)
	key := []byte("k1")
	if err := db.Set(key, []byte("v1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := db.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, []byte("v1")) {
		t.Fatalf("value: %q", got)
	}
	if err := db.Delete(key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get(key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeletePrefix(t *testing.T) {
	db := newTestDB(t)
	for _, k := range []string{"sb/a/e/1", "sb/a/e/2", "sb/a/m", "sb/b/e/1"} {
		if err := db.Set([]byte(k), []byte("x")); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	if err := db.DeletePrefix([]byte("sb/a/")); err != nil {
		t.Fatalf("delete prefix: %v", err)
	}
	for _, k := range []string{"sb/a/e/1", "sb/a/e/2", "sb/a/m"} {
		if _, err := db.Get([]byte(k)); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s should be gone, got %v", k, err)
		}
	}
	if _, err := db.Get([]byte("sb/b/e/1")); err != nil {
		t.Fatalf("sibling prefix should survive: %v", err)
	}
}

func TestBatchCommitAtomic(t *testing.T) {
	db := newTestDB(t)
	b := db.NewBatch()
	defer b.Close()
	if err := b.Set([]byte("a"), []byte("1"), nil); err != nil {
		t.Fatalf("batch set: %v", err)
	}
	if err := b.Set([]byte("b"), []byte("2"), nil); err != nil {
		t.Fatalf("batch set: %v", err)
	}
	if err := db.CommitBatch(t.Context(), b); err != nil {
		t.Fatalf("commit: %v", err)
	}
	for _, k := range []string{"a", "b"} {
		if _, err := db.Get([]byte(k)); err != nil {
			t.Fatalf("get %s: %v", k, err)
		}
	}
}

func TestPrefixUpperBound(t *testing.T) {
	cases := []struct {
		in   []byte
		want []byte
	}{
		{[]byte("sb/a/"), []byte("sb/a0")},
		{[]byte{0x01, 0xFF}, []byte{0x02}},
		{[]byte{0xFF, 0xFF}, nil},
	}
	for _, c := range cases {
		got := PrefixUpperBound(c.in)
		if !bytes.Equal(got, c.want) {
			t.Fatalf("bound(%v): got %v want %v", c.in, got, c.want)
		}
	}
}

func TestIterRange(t *testing.T) {
	db := newTestDB(t)
	for _, k := range []string{"p/1", "p/2", "q/1"} {
		if err := db.Set([]byte(k), []byte("x")); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	it, err := db.NewIter(&pebble.IterOptions{LowerBound: []byte("p/"), UpperBound: PrefixUpperBound([]byte("p/"))})
	if err != nil {
		t.Fatalf("iter: %v", err)
	}
	defer it.Close()
	n := 0
	for ok := it.First(); ok; ok = it.Next() {
		n++
	}
	if n != 2 {
		t.Fatalf("expected 2 keys under p/, got %d", n)
	}
}
