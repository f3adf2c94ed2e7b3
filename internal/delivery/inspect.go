package delivery

import (
	"context"

	"github.com/cockroachdb/pebble"
)

// Stats summarizes the queue's task population by state.
type Stats struct {
	Pending   int `json:"pending"`
	InFlight  int `json:"in_flight"`
	Failed    int `json:"failed"`
	Completed int `json:"completed"`
}

func (q *Queue) countPrefix(prefix string) int {
	lo := []byte(prefix)
	hi := prefixUpperBound(prefix)
	iter, err := q.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return 0
	}
	defer iter.Close()
	n := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		n++
	}
	return n
}

// Stats counts tasks per state. Pending includes tasks scheduled for a
// future retry.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	_ = ctx
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Pending:   q.countPrefix(readyPrefix),
		InFlight:  q.countPrefix(leasePrefix),
		Failed:    q.countPrefix(failedPrefix),
		Completed: q.doneCount,
	}, nil
}

// ListFailed returns up to limit terminally failed tasks, with their final
// attempt counts and last errors, for operator inspection.
func (q *Queue) ListFailed(ctx context.Context, limit int) ([]Task, error) {
	_ = ctx
	if limit <= 0 {
		limit = 100
	}
	lo := []byte(failedPrefix)
	hi := prefixUpperBound(failedPrefix)
	iter, err := q.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := make([]Task, 0, limit)
	for ok := iter.First(); ok && len(out) < limit; ok = iter.Next() {
		ref, err := ParseRef(string(iter.Key()[len(failedPrefix):]))
		if err != nil {
			continue
		}
		t, err := q.getTask(ref)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}
