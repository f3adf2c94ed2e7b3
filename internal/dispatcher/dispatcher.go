// Package dispatcher drains the delivery queue: a pool of workers claims
// due tasks, sends them through the transport and resolves each attempt's
// outcome back into the queue.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mailroom-sh/mailroom/internal/delivery"
	"github.com/mailroom-sh/mailroom/internal/issue"
	"github.com/mailroom-sh/mailroom/internal/transport"
	"github.com/mailroom-sh/mailroom/pkg/log"
)

// Options tunes the worker pool.
type Options struct {
	// Workers is the pool size.
	Workers int
	// IdleInterval is how long a worker sleeps when the queue is empty.
	IdleInterval time.Duration
	// RatePerSec caps sends across the whole pool. 0 disables the cap.
	RatePerSec float64
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.IdleInterval <= 0 {
		o.IdleInterval = time.Second
	}
	return o
}

// Dispatcher runs the delivery worker pool.
type Dispatcher struct {
	queue   *delivery.Queue
	issues  *issue.Store
	sender  transport.Sender
	limiter *rate.Limiter
	logger  log.Logger
	opts    Options

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Dispatcher. Start must be called before it does any work.
func New(queue *delivery.Queue, issues *issue.Store, sender transport.Sender, opts Options, logger log.Logger) *Dispatcher {
	opts = opts.withDefaults()
	var limiter *rate.Limiter
	if opts.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), 1)
	}
	return &Dispatcher{
		queue:   queue,
		issues:  issues,
		sender:  sender,
		limiter: limiter,
		logger:  logger.WithComponent("dispatcher"),
		opts:    opts,
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	if d.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	for i := 0; i < d.opts.Workers; i++ {
		worker := fmt.Sprintf("worker-%d", i)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.run(ctx, worker)
		}()
	}
	d.logger.Info("dispatcher started", log.Int("workers", d.opts.Workers))
}

// Stop cancels the workers and waits for them to exit. A task mid-send is
// abandoned to its lease; the sweep returns it to the queue.
func (d *Dispatcher) Stop() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	d.cancel = nil
	d.wg.Wait()
	d.logger.Info("dispatcher stopped")
}

func (d *Dispatcher) run(ctx context.Context, worker string) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for {
		if ctx.Err() != nil {
			return
		}
		task, err := d.queue.ClaimOne(ctx, worker, 0)
		if err != nil {
			d.logger.Error("claim failed", log.Str("worker", worker), log.Err(err))
			d.idle(ctx, rng)
			continue
		}
		if task == nil {
			d.idle(ctx, rng)
			continue
		}
		d.deliver(ctx, worker, task)
	}
}

// idle sleeps for the idle interval with jitter so workers don't poll in
// lockstep.
func (d *Dispatcher) idle(ctx context.Context, rng *rand.Rand) {
	wait := d.opts.IdleInterval + time.Duration(rng.Int63n(int64(d.opts.IdleInterval/4+1)))
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}

func (d *Dispatcher) deliver(ctx context.Context, worker string, task *delivery.Task) {
	ref := task.Ref()

	iss, err := d.issues.Get(ctx, task.IssueID)
	if err != nil {
		if errors.Is(err, issue.ErrNotFound) {
			// a task without its issue record can never deliver
			d.resolve(ctx, worker, ref, delivery.Permanent("issue record missing: "+task.IssueID))
			return
		}
		// storage hiccup, worth another attempt
		d.resolve(ctx, worker, ref, delivery.Transient("issue lookup failed: "+err.Error()))
		return
	}
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			// shutting down; the lease expires and the sweep requeues
			return
		}
	}
	out := d.sender.Send(ctx, transport.Message{
		To:       task.Recipient,
		Subject:  iss.Title,
		HTMLBody: iss.HTMLBody,
		TextBody: iss.TextBody,
	})
	d.resolve(ctx, worker, ref, out)
}

func (d *Dispatcher) resolve(ctx context.Context, worker string, ref delivery.Ref, out delivery.Outcome) {
	err := d.queue.Resolve(ctx, worker, ref, out, 0)
	switch {
	case err == nil:
	case errors.Is(err, delivery.ErrLeaseLost):
		d.logger.Debug("dropped result for lost lease",
			log.Str("worker", worker), log.Str("issue", ref.IssueID), log.Str("recipient", ref.Recipient))
	default:
		d.logger.Error("resolve failed",
			log.Str("worker", worker), log.Str("issue", ref.IssueID),
			log.Str("recipient", ref.Recipient), log.Err(err))
	}
}
