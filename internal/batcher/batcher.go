package batcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/oxbow-io/oxbow/internal/streambuf"
	logpkg "github.com/oxbow-io/oxbow/pkg/log"
)

// Sink receives the batched events. The buffers service implements it on
// top of a stream buffer.
type Sink interface {
	Append(ctx context.Context, events []streambuf.AppendEvent) error
	Finalize(ctx context.Context) error
}

// Options tunes batching behavior. Zero values fall back to the defaults.
type Options struct {
	// BatchSize is the number of blocks that forces an immediate flush.
	BatchSize int
	// FlushDelay bounds how long a partial batch may sit before flushing.
	FlushDelay time.Duration
	// SlowAppend is the latency above which a flush is logged as slow.
	SlowAppend time.Duration
	Logger     logpkg.Logger
}

const (
	defaultBatchSize  = 24
	defaultFlushDelay = 120 * time.Millisecond
	defaultSlowAppend = 80 * time.Millisecond
)

// Batcher accumulates blocks and flushes them to the sink in batches.
type Batcher struct {
	sink Sink
	opts Options

	mu      sync.Mutex
	ctx     context.Context
	pending []streambuf.AppendEvent
	timer   *time.Timer
	dropped int
}

// New creates a batcher for one stream's sink.
func New(sink Sink, opts Options) *Batcher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = defaultFlushDelay
	}
	if opts.SlowAppend <= 0 {
		opts.SlowAppend = defaultSlowAppend
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger()
	}
	return &Batcher{sink: sink, opts: opts, ctx: context.Background()}
}

// Run consumes src until it ends, flushes whatever is pending, and
// finalizes the sink. The returned error is a read failure on src; sink
// failures are logged and swallowed so the primary delivery path is never
// affected. A read failure still flushes and finalizes, preserving what
// arrived before the break.
func (b *Batcher) Run(ctx context.Context, src io.Reader) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	var buf []byte
	chunk := make([]byte, 4096)
	for {
		n, err := src.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			blocks, rest := SplitBlocks(buf)
			b.enqueue(blocks)
			buf = append(buf[:0], rest...)
		}
		if err != nil {
			if len(bytes.TrimSpace(buf)) > 0 {
				b.enqueue([][]byte{buf})
			}
			b.mu.Lock()
			b.flushLocked()
			b.mu.Unlock()
			b.finalize(ctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// enqueue keys each block by its id line and schedules a flush. Blocks
// without an id cannot be deduplicated on replay and are dropped.
func (b *Batcher) enqueue(blocks [][]byte) {
	if len(blocks) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, block := range blocks {
		id := ExtractBlockID(block)
		if id == "" {
			b.dropped++
			b.opts.Logger.Debug("dropping block without id", logpkg.Int("size", len(block)))
			continue
		}
		payload := append([]byte(nil), block...)
		b.pending = append(b.pending, streambuf.AppendEvent{ID: id, Payload: payload})
	}
	if len(b.pending) >= b.opts.BatchSize {
		b.flushLocked()
		return
	}
	if len(b.pending) > 0 && b.timer == nil {
		b.timer = time.AfterFunc(b.opts.FlushDelay, b.flushTimer)
	}
}

func (b *Batcher) flushTimer() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

// flushLocked ships the pending batch. Flushes run under the mutex so
// batches reach the sink in arrival order. Callers hold b.mu.
func (b *Batcher) flushLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if len(b.pending) == 0 {
		return
	}
	batch := b.pending
	b.pending = nil

	start := time.Now()
	err := b.sink.Append(b.ctx, batch)
	elapsed := time.Since(start)
	if err != nil {
		b.opts.Logger.Error("batch append failed",
			logpkg.Int("events", len(batch)), logpkg.Err(err))
		return
	}
	if elapsed > b.opts.SlowAppend {
		b.opts.Logger.Warn("slow batch append",
			logpkg.Int("events", len(batch)), logpkg.Dur("elapsed", elapsed))
	}
}

func (b *Batcher) finalize(ctx context.Context) {
	if err := b.sink.Finalize(ctx); err != nil {
		b.opts.Logger.Error("finalize failed", logpkg.Err(err))
	}
}

// Dropped reports how many id-less blocks were discarded.
func (b *Batcher) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
