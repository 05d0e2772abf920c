package streambuf

import (
	"sync"
	"time"

	pebblestore "github.com/oxbow-io/oxbow/internal/storage/pebble"
	logpkg "github.com/oxbow-io/oxbow/pkg/log"
)

// Options configures a Registry and the buffers it opens.
type Options struct {
	DB          *pebblestore.DB
	Retention   time.Duration
	ListenerBuf int
	Logger      logpkg.Logger
	Observer    Observer
	// Clock is injectable for tests; defaults to time.Now.
	Clock func() time.Time

	onExpire func(id string)
}

// Registry hands out the single live Buffer per stream id. Buffers are
// opened lazily on first touch and dropped when they expire.
type Registry struct {
	opts Options

	mu      sync.Mutex
	buffers map[string]*Buffer
	closed  bool
}

// NewRegistry creates a registry over an open store.
func NewRegistry(opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger()
	}
	if opts.Observer == nil {
		opts.Observer = NoopObserver{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Retention <= 0 {
		opts.Retention = 10 * time.Minute
	}
	if opts.ListenerBuf <= 0 {
		opts.ListenerBuf = 1024
	}
	r := &Registry{opts: opts, buffers: map[string]*Buffer{}}
	r.opts.onExpire = r.drop
	return r
}

// Get returns the buffer for id, opening it if needed. Concurrent callers
// for the same id always get the same instance.
func (r *Registry) Get(id string) (*Buffer, error) {
	if id == "" {
		return nil, ErrInvalidStream
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if b, ok := r.buffers[id]; ok {
		return b, nil
	}
	b, err := openBuffer(r.opts, id)
	if err != nil {
		return nil, err
	}
	r.buffers[id] = b
	return b, nil
}

// Len reports the number of currently open buffers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffers)
}

// drop removes an expired buffer so the next touch of the id starts fresh.
func (r *Registry) drop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.buffers, id)
}

// Close stops every open buffer's timer and detaches its listeners. The
// persisted state is left intact for the next open.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	buffers := make([]*Buffer, 0, len(r.buffers))
	for _, b := range r.buffers {
		buffers = append(buffers, b)
	}
	r.buffers = map[string]*Buffer{}
	r.mu.Unlock()

	for _, b := range buffers {
		b.stop()
	}
}
