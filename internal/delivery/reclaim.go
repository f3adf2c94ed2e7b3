package delivery

import (
	"context"
	"math/rand"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/mailroom-sh/mailroom/pkg/log"
)

// ReclaimExpired scans the lease expiry index and returns tasks whose lease
// has run out to availability, so work claimed by a crashed or stalled
// worker is retried. Tasks that already used their last attempt fail
// terminally instead of looping forever. Returns the number of reclaimed
// tasks. If nowMs <= 0, time.Now().UnixMilli() is used.
func (q *Queue) ReclaimExpired(ctx context.Context, nowMs int64, max int) (int, error) {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	lo := []byte(leaseExpPrefix)
	hi := prefixUpperBound(leaseExpPrefix)
	iter, err := q.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	b := q.db.NewBatch()
	defer b.Close()
	reclaimed := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		exp, ref, okKey := splitTimedKey(leaseExpPrefix, iter.Key())
		if !okKey {
			_ = b.Delete(append([]byte{}, iter.Key()...), nil)
			continue
		}
		if exp > nowMs {
			break
		}
		if err := b.Delete(leaseExpKey(exp, ref), nil); err != nil {
			return reclaimed, err
		}
		if err := b.Delete(leaseKey(ref), nil); err != nil {
			return reclaimed, err
		}
		t, err := q.getTask(ref)
		if err != nil || t.State != StateInFlight {
			// lease already resolved or task gone; just drop the index
			continue
		}
		t.LastError = "lease expired"
		t.UpdatedAtMs = nowMs
		if t.Attempts >= q.policy.MaxAttempts {
			t.State = StateFailed
			if err := b.Set(failedKey(ref), nil, nil); err != nil {
				return reclaimed, err
			}
			q.logger.Warn("task failed: lease expired on final attempt",
				log.Str("issue", ref.IssueID), log.Str("recipient", ref.Recipient),
				log.Int("attempts", t.Attempts))
		} else {
			t.State = StatePending
			t.ExecuteAfterMs = nowMs + q.policy.backoffFor(t.Attempts).Milliseconds()
			if err := b.Set(readyKey(t.ExecuteAfterMs, ref), nil, nil); err != nil {
				return reclaimed, err
			}
		}
		if err := stageTask(b, t); err != nil {
			return reclaimed, err
		}
		reclaimed++
		if max > 0 && reclaimed >= max {
			break
		}
	}
	if reclaimed == 0 {
		return 0, nil
	}
	if err := q.db.CommitBatch(ctx, b); err != nil {
		return 0, err
	}
	q.logger.Debug("reclaimed expired leases", log.Int("count", reclaimed))
	return reclaimed, nil
}

// StartSweeper runs a background loop that reclaims expired leases and ages
// out the completed buffer. The tick is jittered so multiple queues on one
// store do not sweep in lockstep.
func (q *Queue) StartSweeper(interval time.Duration, maxPerTick int) {
	if q.sweepStop != nil {
		return
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if maxPerTick <= 0 {
		maxPerTick = 1024
	}
	q.sweepStop = make(chan struct{})
	stop := q.sweepStop
	go func() {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		for {
			select {
			case <-stop:
				return
			case <-time.After(interval + time.Duration(rng.Int63n(int64(interval/10+1)))):
				now := time.Now().UnixMilli()
				if _, err := q.ReclaimExpired(context.Background(), now, maxPerTick); err != nil {
					q.logger.Error("lease reclaim sweep failed", log.Err(err))
				}
				if _, err := q.TrimCompletedByAge(context.Background(), now); err != nil {
					q.logger.Error("completed buffer trim failed", log.Err(err))
				}
			}
		}
	}()
}

// StopSweeper stops the background sweeper.
func (q *Queue) StopSweeper() {
	if q.sweepStop != nil {
		close(q.sweepStop)
		q.sweepStop = nil
	}
}
