package delivery

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/pebble"
)

// stageCompletedTrim stages deletions of the oldest completed entries so
// that after this batch commits (which adds one entry) the buffer holds at
// most CompletedRetain. Caller holds q.mu; doneCount is adjusted for the
// batch being committed.
func (q *Queue) stageCompletedTrim(b *pebble.Batch, nowMs int64) error {
	excess := q.doneCount + 1 - q.policy.CompletedRetain
	deleted := 0
	if excess > 0 {
		lo := []byte(donePrefix)
		hi := prefixUpperBound(donePrefix)
		iter, err := q.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
		if err != nil {
			return err
		}
		defer iter.Close()
		for ok := iter.First(); ok && deleted < excess; ok = iter.Next() {
			if err := b.Delete(append([]byte{}, iter.Key()...), nil); err != nil {
				return err
			}
			deleted++
		}
	}
	q.doneCount += 1 - deleted
	return nil
}

// TrimCompletedByAge deletes completed entries older than CompletedMaxAge.
// Run periodically by the sweeper.
func (q *Queue) TrimCompletedByAge(ctx context.Context, nowMs int64) (int, error) {
	cutoff := nowMs - q.policy.CompletedMaxAge.Milliseconds()
	q.mu.Lock()
	defer q.mu.Unlock()

	lo := []byte(donePrefix)
	hi := prefixUpperBound(donePrefix)
	iter, err := q.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	b := q.db.NewBatch()
	defer b.Close()
	trimmed := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		doneAt, _, okKey := splitTimedKey(donePrefix, iter.Key())
		if okKey && doneAt >= cutoff {
			// entries sort by done time; the rest are younger
			break
		}
		if err := b.Delete(append([]byte{}, iter.Key()...), nil); err != nil {
			return 0, err
		}
		trimmed++
	}
	if trimmed == 0 {
		return 0, nil
	}
	if err := q.db.CommitBatch(ctx, b); err != nil {
		return 0, err
	}
	q.doneCount -= trimmed
	if q.doneCount < 0 {
		q.doneCount = 0
	}
	return trimmed, nil
}

// ListCompleted returns up to limit completed entries, newest first.
func (q *Queue) ListCompleted(ctx context.Context, limit int) ([]CompletedEntry, error) {
	_ = ctx
	if limit <= 0 {
		limit = 100
	}
	lo := []byte(donePrefix)
	hi := prefixUpperBound(donePrefix)
	iter, err := q.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := make([]CompletedEntry, 0, limit)
	for ok := iter.Last(); ok && len(out) < limit; ok = iter.Prev() {
		var e CompletedEntry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
