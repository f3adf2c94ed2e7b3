package runtime

import (
	"context"
	"errors"
	"time"

	cfgpkg "github.com/mailroom-sh/mailroom/internal/config"
	"github.com/mailroom-sh/mailroom/internal/delivery"
	"github.com/mailroom-sh/mailroom/internal/idempotency"
	"github.com/mailroom-sh/mailroom/internal/issue"
	pebblestore "github.com/mailroom-sh/mailroom/internal/storage/pebble"
	"github.com/mailroom-sh/mailroom/internal/subscriber"
	"github.com/mailroom-sh/mailroom/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	DataDir string
	Fsync   pebblestore.FsyncMode
	Config  cfgpkg.Config
	Logger  log.Logger
}

// Runtime wires storage, config, and the domain stores for a single-node
// instance. Everything shares one pebble keyspace so cross-store writes can
// commit in one batch.
type Runtime struct {
	db     *pebblestore.DB
	config cfgpkg.Config

	issues      *issue.Store
	idempotency *idempotency.Store
	subscribers *subscriber.Store
	queue       *delivery.Queue
}

// Open initializes the underlying storage and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	db, err := pebblestore.Open(pebblestore.Options{DataDir: opts.DataDir, Fsync: opts.Fsync})
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger()
	}
	d := opts.Config.Delivery
	rt := &Runtime{
		db:          db,
		config:      opts.Config,
		issues:      issue.NewStore(db),
		idempotency: idempotency.NewStore(db),
		subscribers: subscriber.NewStore(db),
		queue: delivery.OpenQueue(db, delivery.Policy{
			MaxAttempts:     d.MaxAttempts,
			BackoffBase:     time.Duration(d.BackoffBaseMs) * time.Millisecond,
			BackoffCap:      time.Duration(d.BackoffCapMs) * time.Millisecond,
			Lease:           time.Duration(d.LeaseMs) * time.Millisecond,
			CompletedRetain: d.CompletedRetain,
			CompletedMaxAge: time.Duration(d.CompletedMaxAgeH) * time.Hour,
		}, logger),
	}
	return rt, nil
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	r.queue.StopSweeper()
	return r.db.Close()
}

// CheckHealth performs a simple health check against the store.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	_ = ctx
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	it.Close()
	return nil
}

// Issues returns the issue store.
func (r *Runtime) Issues() *issue.Store { return r.issues }

// Idempotency returns the idempotency store.
func (r *Runtime) Idempotency() *idempotency.Store { return r.idempotency }

// Subscribers returns the subscriber store.
func (r *Runtime) Subscribers() *subscriber.Store { return r.subscribers }

// Queue returns the delivery queue.
func (r *Runtime) Queue() *delivery.Queue { return r.queue }

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
