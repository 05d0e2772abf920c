package bufsvc

import (
	"context"
	"io"
	"time"

	"github.com/oxbow-io/oxbow/internal/batcher"
	"github.com/oxbow-io/oxbow/internal/config"
	"github.com/oxbow-io/oxbow/internal/streambuf"
	logpkg "github.com/oxbow-io/oxbow/pkg/log"
)

// Service provides append/finalize/resume/tail/stats over the buffer
// registry, plus raw SSE ingest through the block batcher.
type Service struct {
	reg    *streambuf.Registry
	logger logpkg.Logger
	cfg    config.Config
}

// New returns a Service using a default logger.
func New(reg *streambuf.Registry, cfg config.Config) *Service {
	return NewWithLogger(reg, cfg, nil)
}

// NewWithLogger constructs the service with an injected logger.
func NewWithLogger(reg *streambuf.Registry, cfg config.Config, logger logpkg.Logger) *Service {
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("buffers"))
	}
	if cfg.AppendBatchSize == 0 {
		cfg = config.Default()
	}
	return &Service{reg: reg, logger: logger, cfg: cfg}
}

// Append merges events into the stream's buffer and returns the post-merge
// event count.
func (s *Service) Append(ctx context.Context, stream string, events []streambuf.AppendEvent) (int, error) {
	if max := s.cfg.MaxBlockBytes; max > 0 {
		for _, ev := range events {
			if len(ev.Payload) > max {
				return 0, streambuf.ErrInvalidEvent
			}
		}
	}
	b, err := s.reg.Get(stream)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	n, err := b.Append(ctx, events)
	s.observe("append", stream, start, err)
	return n, err
}

// Finalize marks the stream complete.
func (s *Service) Finalize(ctx context.Context, stream string) error {
	b, err := s.reg.Get(stream)
	if err != nil {
		return err
	}
	start := time.Now()
	err = b.Finalize(ctx)
	s.observe("finalize", stream, start, err)
	return err
}

// Resume opens a replay-then-live subscription from the given cursor.
func (s *Service) Resume(stream, lastEventID string) (*streambuf.Subscription, error) {
	b, err := s.reg.Get(stream)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	sub, err := b.Resume(lastEventID)
	s.observe("resume", stream, start, err)
	return sub, err
}

// Tail opens a full-replay subscription plus a match predicate compiled
// from the optional CEL expression. Callers apply the predicate to both the
// replay slice and the live channel.
func (s *Service) Tail(stream, filterExpr string) (*streambuf.Subscription, func(streambuf.Event) bool, error) {
	filter, err := newCELFilter(filterExpr)
	if err != nil {
		return nil, nil, err
	}
	sub, err := s.Resume(stream, "")
	if err != nil {
		return nil, nil, err
	}
	return sub, filter.Eval, nil
}

// Stats snapshots one buffer.
func (s *Service) Stats(stream string) (streambuf.Stats, error) {
	b, err := s.reg.Get(stream)
	if err != nil {
		return streambuf.Stats{}, err
	}
	return b.Stats(), nil
}

// Open reports how many buffers are currently live in memory.
func (s *Service) Open() int { return s.reg.Len() }

// Sink returns a batcher sink bound to one stream, for ingest paths that
// tee a producer's SSE bytes into the buffer.
func (s *Service) Sink(stream string) batcher.Sink {
	return &streamSink{svc: s, stream: stream}
}

// Ingest consumes a raw SSE byte stream, batching its blocks into the
// buffer and finalizing when the input ends. Returns the read error, if
// any; sink failures are logged by the batcher and swallowed.
func (s *Service) Ingest(ctx context.Context, stream string, src io.Reader) error {
	b := batcher.New(s.Sink(stream), batcher.Options{
		BatchSize:  s.cfg.AppendBatchSize,
		FlushDelay: s.cfg.FlushDelay(),
		SlowAppend: s.cfg.SlowOp(),
		Logger:     s.logger.With(logpkg.Str("stream", stream)),
	})
	return b.Run(ctx, src)
}

func (s *Service) observe(op, stream string, start time.Time, err error) {
	elapsed := time.Since(start)
	if err != nil {
		s.logger.Debug("operation failed",
			logpkg.Str("op", op), logpkg.Str("stream", stream), logpkg.Err(err))
		return
	}
	if elapsed > s.cfg.SlowOp() {
		s.logger.Warn("slow operation",
			logpkg.Str("op", op), logpkg.Str("stream", stream), logpkg.Dur("elapsed", elapsed))
	}
}

type streamSink struct {
	svc    *Service
	stream string
}

func (k *streamSink) Append(ctx context.Context, events []streambuf.AppendEvent) error {
	_, err := k.svc.Append(ctx, k.stream, events)
	return err
}

func (k *streamSink) Finalize(ctx context.Context) error {
	return k.svc.Finalize(ctx, k.stream)
}
