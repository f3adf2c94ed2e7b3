package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/mailroom-sh/mailroom/internal/storage/pebble"
	"github.com/mailroom-sh/mailroom/pkg/log"
)

// ErrLeaseLost is returned by Resolve when the caller no longer holds the
// task's lease: it expired and the sweep reclaimed the task, or another
// worker now owns it. The caller's result is discarded.
var ErrLeaseLost = errors.New("delivery: lease lost")

// Policy holds the retry and lease parameters for a queue.
type Policy struct {
	MaxAttempts     int
	BackoffBase     time.Duration
	BackoffCap      time.Duration
	Lease           time.Duration
	CompletedRetain int
	CompletedMaxAge time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 5
	}
	if p.BackoffBase <= 0 {
		p.BackoffBase = time.Second
	}
	if p.BackoffCap <= 0 {
		p.BackoffCap = time.Minute
	}
	if p.Lease <= 0 {
		p.Lease = 30 * time.Second
	}
	if p.CompletedRetain <= 0 {
		p.CompletedRetain = 1000
	}
	if p.CompletedMaxAge <= 0 {
		p.CompletedMaxAge = 24 * time.Hour
	}
	return p
}

// Queue is the durable delivery task queue. Enqueues are staged into a
// caller-owned batch so they commit atomically with the records that caused
// them; claims and resolutions commit their own batches.
type Queue struct {
	db     *pebblestore.DB
	policy Policy
	logger log.Logger

	// mu serializes claims so no two workers acquire the same task.
	mu sync.Mutex

	// doneCount tracks the completed buffer size; guarded by mu.
	doneCount int

	sweepStop chan struct{}
}

// OpenQueue initializes a Queue over the given store.
func OpenQueue(db *pebblestore.DB, policy Policy, logger log.Logger) *Queue {
	q := &Queue{db: db, policy: policy.withDefaults(), logger: logger.WithComponent("delivery")}
	q.doneCount = q.countPrefix(donePrefix)
	return q
}

// Policy returns the queue's effective policy.
func (q *Queue) Policy() Policy { return q.policy }

// AppendEnqueue stages a new pending task for ref into b. The task key is
// the ref, so re-staging an existing (issue, recipient) pair overwrites
// rather than duplicates. If nowMs <= 0, time.Now().UnixMilli() is used.
func (q *Queue) AppendEnqueue(b *pebble.Batch, ref Ref, nowMs int64) error {
	if len(ref.IssueID) != issueIDHexLen || ref.Recipient == "" {
		return fmt.Errorf("delivery: invalid task ref %q", ref.String())
	}
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}
	t := Task{
		IssueID:        ref.IssueID,
		Recipient:      ref.Recipient,
		State:          StatePending,
		ExecuteAfterMs: nowMs,
		EnqueuedAtMs:   nowMs,
		UpdatedAtMs:    nowMs,
	}
	val, err := json.Marshal(t)
	if err != nil {
		return err
	}
	if err := b.Set(taskKey(ref), val, nil); err != nil {
		return err
	}
	return b.Set(readyKey(nowMs, ref), nil, nil)
}

func (q *Queue) getTask(ref Ref) (Task, error) {
	val, err := q.db.Get(taskKey(ref))
	if err != nil {
		return Task{}, err
	}
	var t Task
	if err := json.Unmarshal(val, &t); err != nil {
		return Task{}, fmt.Errorf("delivery: corrupt task %s: %w", ref, err)
	}
	return t, nil
}

func stageTask(b *pebble.Batch, t Task) error {
	val, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return b.Set(taskKey(t.Ref()), val, nil)
}

// ClaimOne atomically claims the oldest due pending task for worker and
// returns it under a lease. Returns (nil, nil) when nothing is due. The
// claim commits before the caller attempts delivery, so a crash mid-attempt
// leaves a lease for the sweep to reclaim instead of a lost task.
func (q *Queue) ClaimOne(ctx context.Context, worker string, nowMs int64) (*Task, error) {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	lo := []byte(readyPrefix)
	hi := prefixUpperBound(readyPrefix)
	iter, err := q.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	for ok := iter.First(); ok; ok = iter.Next() {
		due, ref, okKey := splitTimedKey(readyPrefix, iter.Key())
		if !okKey {
			_ = q.db.Delete(append([]byte{}, iter.Key()...))
			continue
		}
		if due > nowMs {
			// keys sort by due time; everything after this is in the future
			return nil, nil
		}
		t, err := q.getTask(ref)
		if err != nil {
			// stray index entry without a task record
			_ = q.db.Delete(readyKey(due, ref))
			continue
		}
		if t.State != StatePending {
			_ = q.db.Delete(readyKey(due, ref))
			continue
		}

		t.State = StateInFlight
		t.Attempts++
		t.UpdatedAtMs = nowMs
		exp := nowMs + q.policy.Lease.Milliseconds()
		lease := Lease{Worker: worker, ClaimedAtMs: nowMs, ExpiresAtMs: exp}
		lval, err := json.Marshal(lease)
		if err != nil {
			return nil, err
		}

		b := q.db.NewBatch()
		defer b.Close()
		if err := b.Delete(readyKey(due, ref), nil); err != nil {
			return nil, err
		}
		if err := stageTask(b, t); err != nil {
			return nil, err
		}
		if err := b.Set(leaseKey(ref), lval, nil); err != nil {
			return nil, err
		}
		if err := b.Set(leaseExpKey(exp, ref), nil, nil); err != nil {
			return nil, err
		}
		if err := q.db.CommitBatch(ctx, b); err != nil {
			return nil, err
		}
		return &t, nil
	}
	return nil, nil
}

// Resolve records the outcome of a delivery attempt by worker for ref and
// transitions the task. Success retires the task into the completed buffer.
// A transient failure reschedules with backoff until attempts are exhausted,
// then fails terminally; a permanent failure fails terminally at once.
func (q *Queue) Resolve(ctx context.Context, worker string, ref Ref, out Outcome, nowMs int64) error {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	lval, err := q.db.Get(leaseKey(ref))
	if err != nil {
		if pebblestore.IsNotFound(err) {
			return ErrLeaseLost
		}
		return err
	}
	var lease Lease
	if err := json.Unmarshal(lval, &lease); err != nil {
		return fmt.Errorf("delivery: corrupt lease %s: %w", ref, err)
	}
	if lease.Worker != worker {
		return ErrLeaseLost
	}
	t, err := q.getTask(ref)
	if err != nil {
		return err
	}
	if t.State != StateInFlight {
		return ErrLeaseLost
	}

	b := q.db.NewBatch()
	defer b.Close()
	if err := b.Delete(leaseKey(ref), nil); err != nil {
		return err
	}
	if err := b.Delete(leaseExpKey(lease.ExpiresAtMs, ref), nil); err != nil {
		return err
	}

	switch out.Kind {
	case Success:
		if err := b.Delete(taskKey(ref), nil); err != nil {
			return err
		}
		entry := CompletedEntry{
			IssueID:    ref.IssueID,
			Recipient:  ref.Recipient,
			Worker:     worker,
			Attempts:   t.Attempts,
			DoneAtMs:   nowMs,
			DurationMs: nowMs - t.EnqueuedAtMs,
			EnqueuedMs: t.EnqueuedAtMs,
		}
		eval, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		if err := b.Set(doneKey(nowMs, ref), eval, nil); err != nil {
			return err
		}
		if err := q.stageCompletedTrim(b, nowMs); err != nil {
			return err
		}
	case TransientFailure:
		t.LastError = out.Reason
		t.UpdatedAtMs = nowMs
		if t.Attempts >= q.policy.MaxAttempts {
			t.State = StateFailed
			if err := b.Set(failedKey(ref), nil, nil); err != nil {
				return err
			}
			q.logger.Warn("task failed: retries exhausted",
				log.Str("issue", ref.IssueID), log.Str("recipient", ref.Recipient),
				log.Int("attempts", t.Attempts), log.Str("last_error", out.Reason))
		} else {
			t.State = StatePending
			t.ExecuteAfterMs = nowMs + q.policy.backoffFor(t.Attempts).Milliseconds()
			if err := b.Set(readyKey(t.ExecuteAfterMs, ref), nil, nil); err != nil {
				return err
			}
		}
		if err := stageTask(b, t); err != nil {
			return err
		}
	case PermanentFailure:
		t.State = StateFailed
		t.LastError = out.Reason
		t.UpdatedAtMs = nowMs
		if err := b.Set(failedKey(ref), nil, nil); err != nil {
			return err
		}
		if err := stageTask(b, t); err != nil {
			return err
		}
		q.logger.Warn("task failed permanently",
			log.Str("issue", ref.IssueID), log.Str("recipient", ref.Recipient),
			log.Str("reason", out.Reason))
	default:
		return fmt.Errorf("delivery: unknown outcome kind %d", out.Kind)
	}

	return q.db.CommitBatch(ctx, b)
}

// Get loads a task record.
func (q *Queue) Get(ctx context.Context, ref Ref) (Task, error) {
	_ = ctx
	return q.getTask(ref)
}
