package runtime

import (
	"context"
	"testing"

	cfgpkg "github.com/oxbow-io/oxbow/internal/config"
	pebblestore "github.com/oxbow-io/oxbow/internal/storage/pebble"
	"github.com/oxbow-io/oxbow/internal/streambuf"
)

func TestOpenCheckHealthClose(t *testing.T) {
	rt, err := Open(Options{
		DataDir: t.TempDir(),
		Fsync:   pebblestore.FsyncModeNever,
		Config:  cfgpkg.Default(),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}

	b, err := rt.Buffers().Get("s1")
	if err != nil {
		t.Fatalf("buffer: %v", err)
	}
	if _, err := b.Append(context.Background(), []streambuf.AppendEvent{{ID: "a", Payload: []byte("1")}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if rt.Messages() == nil || rt.Metrics() == nil || rt.DB() == nil {
		t.Fatal("runtime components missing")
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
