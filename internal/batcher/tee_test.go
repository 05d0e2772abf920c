package batcher

import (
	"io"
	"strings"
	"testing"
	"time"
)

func TestTeeCopiesAllBytes(t *testing.T) {
	const input = "id: 1\ndata: a\n\nid: 2\ndata: b\n\n"
	primary, side := Tee(strings.NewReader(input))

	got, err := io.ReadAll(primary)
	if err != nil {
		t.Fatalf("primary: %v", err)
	}
	if string(got) != input {
		t.Fatalf("primary bytes: %q", got)
	}

	side2, err := io.ReadAll(side)
	if err != nil {
		t.Fatalf("side: %v", err)
	}
	if string(side2) != input {
		t.Fatalf("side bytes: %q", side2)
	}
}

func TestTeePrimaryNeverBlocksOnSide(t *testing.T) {
	// Nothing reads the side; the primary must still drain the source.
	input := strings.Repeat("id: 1\ndata: a\n\n", 1000)
	primary, _ := Tee(strings.NewReader(input))

	done := make(chan struct{})
	go func() {
		_, _ = io.ReadAll(primary)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("primary blocked on unread side")
	}
}

func TestTeeSideSeesChunksBeforeEOF(t *testing.T) {
	pr, pw := io.Pipe()
	primary, side := Tee(pr)

	go func() {
		buf := make([]byte, 16)
		for {
			if _, err := primary.Read(buf); err != nil {
				return
			}
		}
	}()

	if _, err := pw.Write([]byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 16)
	n, err := side.Read(buf)
	if err != nil || string(buf[:n]) != "hello" {
		t.Fatalf("side read: %q err=%v", buf[:n], err)
	}

	pw.Close()
	if _, err := side.Read(buf); err != io.EOF {
		t.Fatalf("side after close: %v", err)
	}
}
