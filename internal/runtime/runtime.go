// Package runtime wires storage, configuration, and the domain components
// for a single-node instance.
package runtime

import (
	"context"
	"errors"
	"time"

	cfgpkg "github.com/oxbow-io/oxbow/internal/config"
	"github.com/oxbow-io/oxbow/internal/messages"
	"github.com/oxbow-io/oxbow/internal/metrics"
	pebblestore "github.com/oxbow-io/oxbow/internal/storage/pebble"
	"github.com/oxbow-io/oxbow/internal/streambuf"
	logpkg "github.com/oxbow-io/oxbow/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	Logger        logpkg.Logger
}

// Runtime wires the store, the buffer registry, and the message store.
type Runtime struct {
	db       *pebblestore.DB
	config   cfgpkg.Config
	logger   logpkg.Logger
	metrics  *metrics.Metrics
	registry *streambuf.Registry
	msgs     *messages.Store
}

// Open initializes the underlying storage and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger()
	}
	m := metrics.New()
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       opts.DataDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Metrics:       m,
	})
	if err != nil {
		return nil, err
	}
	reg := streambuf.NewRegistry(streambuf.Options{
		DB:          db,
		Retention:   opts.Config.Retention(),
		ListenerBuf: opts.Config.ListenerBuf,
		Logger:      opts.Logger.With(logpkg.Component("streambuf")),
		Observer:    m,
	})
	return &Runtime{
		db:       db,
		config:   opts.Config,
		logger:   opts.Logger,
		metrics:  m,
		registry: reg,
		msgs:     messages.NewStore(db),
	}, nil
}

// Close stops the registry and closes the store.
func (r *Runtime) Close() error {
	if r.registry != nil {
		r.registry.Close()
	}
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth performs a simple health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// Buffers returns the stream buffer registry.
func (r *Runtime) Buffers() *streambuf.Registry { return r.registry }

// Messages returns the message store.
func (r *Runtime) Messages() *messages.Store { return r.msgs }

// Metrics returns the shared instrumentation.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// Logger returns the root logger.
func (r *Runtime) Logger() logpkg.Logger { return r.logger }
