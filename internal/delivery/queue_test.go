package delivery

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	pebblestore "github.com/mailroom-sh/mailroom/internal/storage/pebble"
	"github.com/mailroom-sh/mailroom/pkg/log"
)

func openTestQueue(t *testing.T, policy Policy) *Queue {
	t.Helper()
	dir := t.TempDir()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return OpenQueue(db, policy, log.NewLogger(log.WithLevel(log.ErrorLevel)))
}

func testIssueID(n int) string { return fmt.Sprintf("%032x", n) }

func enqueueOne(t *testing.T, q *Queue, ref Ref, nowMs int64) {
	t.Helper()
	b := q.db.NewBatch()
	defer b.Close()
	if err := q.AppendEnqueue(b, ref, nowMs); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.db.CommitBatch(context.Background(), b); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestClaimReturnsOldestDue(t *testing.T) {
	q := openTestQueue(t, Policy{})
	ctx := context.Background()
	r1 := Ref{IssueID: testIssueID(1), Recipient: "a@example.com"}
	r2 := Ref{IssueID: testIssueID(1), Recipient: "b@example.com"}
	enqueueOne(t, q, r2, 2000)
	enqueueOne(t, q, r1, 1000)

	got, err := q.ClaimOne(ctx, "w1", 3000)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got == nil || got.Ref() != r1 {
		t.Fatalf("expected oldest task first, got %+v", got)
	}
	if got.State != StateInFlight || got.Attempts != 1 {
		t.Fatalf("claimed task state = %s attempts = %d", got.State, got.Attempts)
	}
}

func TestClaimSkipsFutureTasks(t *testing.T) {
	q := openTestQueue(t, Policy{})
	ctx := context.Background()
	ref := Ref{IssueID: testIssueID(1), Recipient: "a@example.com"}
	enqueueOne(t, q, ref, 5000)

	got, err := q.ClaimOne(ctx, "w1", 1000)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got != nil {
		t.Fatalf("claimed a task not yet due: %+v", got)
	}
	got, err = q.ClaimOne(ctx, "w1", 5000)
	if err != nil || got == nil {
		t.Fatalf("expected claim at due time, got %+v err %v", got, err)
	}
}

func TestClaimExclusive(t *testing.T) {
	q := openTestQueue(t, Policy{})
	ctx := context.Background()
	const tasks = 8
	for i := 0; i < tasks; i++ {
		enqueueOne(t, q, Ref{IssueID: testIssueID(1), Recipient: fmt.Sprintf("u%d@example.com", i)}, 1000)
	}

	var mu sync.Mutex
	seen := map[Ref]int{}
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for {
				tk, err := q.ClaimOne(ctx, fmt.Sprintf("w%d", w), 2000)
				if err != nil {
					t.Errorf("claim: %v", err)
					return
				}
				if tk == nil {
					return
				}
				mu.Lock()
				seen[tk.Ref()]++
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	if len(seen) != tasks {
		t.Fatalf("claimed %d distinct tasks, want %d", len(seen), tasks)
	}
	for ref, n := range seen {
		if n != 1 {
			t.Fatalf("task %s claimed %d times", ref, n)
		}
	}
}

func TestResolveSuccessRetiresTask(t *testing.T) {
	q := openTestQueue(t, Policy{})
	ctx := context.Background()
	ref := Ref{IssueID: testIssueID(1), Recipient: "a@example.com"}
	enqueueOne(t, q, ref, 1000)
	tk, _ := q.ClaimOne(ctx, "w1", 1000)
	if tk == nil {
		t.Fatal("claim came back empty")
	}
	if err := q.Resolve(ctx, "w1", ref, Succeed(), 1500); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := q.Get(ctx, ref); !pebblestore.IsNotFound(err) {
		t.Fatalf("task record should be gone, err = %v", err)
	}
	done, err := q.ListCompleted(ctx, 10)
	if err != nil || len(done) != 1 {
		t.Fatalf("completed = %v err %v", done, err)
	}
	if done[0].Recipient != ref.Recipient || done[0].Attempts != 1 {
		t.Fatalf("completed entry %+v", done[0])
	}
	st, _ := q.Stats(ctx)
	if st.Pending != 0 || st.InFlight != 0 || st.Failed != 0 || st.Completed != 1 {
		t.Fatalf("stats %+v", st)
	}
}

func TestTransientRetriesThenFailsTerminally(t *testing.T) {
	q := openTestQueue(t, Policy{MaxAttempts: 3, BackoffBase: time.Second, BackoffCap: time.Minute})
	ctx := context.Background()
	ref := Ref{IssueID: testIssueID(1), Recipient: "a@example.com"}
	enqueueOne(t, q, ref, 1000)

	now := int64(1000)
	for attempt := 1; attempt <= 3; attempt++ {
		tk, err := q.ClaimOne(ctx, "w1", now)
		if err != nil || tk == nil {
			t.Fatalf("attempt %d claim: %+v %v", attempt, tk, err)
		}
		if tk.Attempts != attempt {
			t.Fatalf("attempt %d: task attempts = %d", attempt, tk.Attempts)
		}
		if err := q.Resolve(ctx, "w1", ref, Transient("smtp 451"), now); err != nil {
			t.Fatalf("resolve: %v", err)
		}
		// max backoff is cap * 1.5 with jitter; jump past it
		now += 2 * time.Minute.Milliseconds()
	}

	tk, err := q.ClaimOne(ctx, "w1", now)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if tk != nil {
		t.Fatalf("task should be terminal, claimed %+v", tk)
	}
	failed, err := q.ListFailed(ctx, 10)
	if err != nil || len(failed) != 1 {
		t.Fatalf("failed = %v err %v", failed, err)
	}
	if failed[0].State != StateFailed || failed[0].Attempts != 3 || failed[0].LastError != "smtp 451" {
		t.Fatalf("failed task %+v", failed[0])
	}
}

func TestBackoffDelaysRetry(t *testing.T) {
	q := openTestQueue(t, Policy{MaxAttempts: 5, BackoffBase: 10 * time.Second, BackoffCap: time.Minute})
	ctx := context.Background()
	ref := Ref{IssueID: testIssueID(1), Recipient: "a@example.com"}
	enqueueOne(t, q, ref, 1000)
	if tk, _ := q.ClaimOne(ctx, "w1", 1000); tk == nil {
		t.Fatal("claim came back empty")
	}
	if err := q.Resolve(ctx, "w1", ref, Transient("timeout"), 1000); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	// min backoff for attempt 1 is base/2 = 5s
	if tk, _ := q.ClaimOne(ctx, "w1", 2000); tk != nil {
		t.Fatalf("retry came due before backoff: %+v", tk)
	}
	tk, _ := q.ClaimOne(ctx, "w1", 1000+2*time.Minute.Milliseconds())
	if tk == nil {
		t.Fatal("retry never came due")
	}
	if tk.Attempts != 2 {
		t.Fatalf("attempts = %d", tk.Attempts)
	}
}

func TestBackoffRespectsCap(t *testing.T) {
	p := Policy{BackoffBase: time.Second, BackoffCap: 30 * time.Second}
	for attempt := 1; attempt <= 12; attempt++ {
		for i := 0; i < 50; i++ {
			d := p.backoffFor(attempt)
			if d > p.BackoffCap {
				t.Fatalf("attempt %d: backoff %v exceeds cap %v", attempt, d, p.BackoffCap)
			}
			if d < p.BackoffBase/2 {
				t.Fatalf("attempt %d: backoff %v below half the base", attempt, d)
			}
		}
	}
}

func TestPermanentFailsImmediately(t *testing.T) {
	q := openTestQueue(t, Policy{MaxAttempts: 5})
	ctx := context.Background()
	ref := Ref{IssueID: testIssueID(1), Recipient: "bad@example.com"}
	enqueueOne(t, q, ref, 1000)
	if tk, _ := q.ClaimOne(ctx, "w1", 1000); tk == nil {
		t.Fatal("claim came back empty")
	}
	if err := q.Resolve(ctx, "w1", ref, Permanent("smtp 550"), 1100); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	failed, _ := q.ListFailed(ctx, 10)
	if len(failed) != 1 || failed[0].Attempts != 1 || failed[0].LastError != "smtp 550" {
		t.Fatalf("failed = %+v", failed)
	}
	if tk, _ := q.ClaimOne(ctx, "w1", 1000+time.Hour.Milliseconds()); tk != nil {
		t.Fatalf("permanently failed task claimed again: %+v", tk)
	}
}

func TestReclaimExpiredLease(t *testing.T) {
	q := openTestQueue(t, Policy{MaxAttempts: 5, Lease: time.Second, BackoffBase: time.Millisecond, BackoffCap: time.Millisecond})
	ctx := context.Background()
	ref := Ref{IssueID: testIssueID(1), Recipient: "a@example.com"}
	enqueueOne(t, q, ref, 1000)
	if tk, _ := q.ClaimOne(ctx, "w1", 1000); tk == nil {
		t.Fatal("claim came back empty")
	}

	// before expiry nothing reclaims
	n, err := q.ReclaimExpired(ctx, 1500, 0)
	if err != nil || n != 0 {
		t.Fatalf("reclaim before expiry: n=%d err=%v", n, err)
	}
	n, err = q.ReclaimExpired(ctx, 3000, 0)
	if err != nil || n != 1 {
		t.Fatalf("reclaim after expiry: n=%d err=%v", n, err)
	}

	// original worker's late resolve is rejected
	if err := q.Resolve(ctx, "w1", ref, Succeed(), 3100); err != ErrLeaseLost {
		t.Fatalf("late resolve err = %v, want ErrLeaseLost", err)
	}

	tk, _ := q.ClaimOne(ctx, "w2", 3000+time.Second.Milliseconds())
	if tk == nil {
		t.Fatal("reclaimed task never became claimable")
	}
	if tk.Attempts != 2 || tk.LastError != "lease expired" {
		t.Fatalf("reclaimed task %+v", tk)
	}
}

func TestReclaimExhaustedAttemptsFails(t *testing.T) {
	q := openTestQueue(t, Policy{MaxAttempts: 1, Lease: time.Second})
	ctx := context.Background()
	ref := Ref{IssueID: testIssueID(1), Recipient: "a@example.com"}
	enqueueOne(t, q, ref, 1000)
	if tk, _ := q.ClaimOne(ctx, "w1", 1000); tk == nil {
		t.Fatal("claim came back empty")
	}
	if _, err := q.ReclaimExpired(ctx, 5000, 0); err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	failed, _ := q.ListFailed(ctx, 10)
	if len(failed) != 1 || failed[0].LastError != "lease expired" {
		t.Fatalf("failed = %+v", failed)
	}
}

func TestCompletedBufferRetention(t *testing.T) {
	q := openTestQueue(t, Policy{CompletedRetain: 3})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		ref := Ref{IssueID: testIssueID(1), Recipient: fmt.Sprintf("u%d@example.com", i)}
		now := int64(1000 * (i + 1))
		enqueueOne(t, q, ref, now)
		if tk, _ := q.ClaimOne(ctx, "w1", now); tk == nil {
			t.Fatalf("claim %d came back empty", i)
		}
		if err := q.Resolve(ctx, "w1", ref, Succeed(), now); err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
	}
	done, err := q.ListCompleted(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(done) != 3 {
		t.Fatalf("retained %d entries, want 3", len(done))
	}
	// newest first; oldest two were trimmed
	if done[0].Recipient != "u4@example.com" || done[2].Recipient != "u2@example.com" {
		t.Fatalf("unexpected retention window: %+v", done)
	}
}

func TestTrimCompletedByAge(t *testing.T) {
	q := openTestQueue(t, Policy{CompletedMaxAge: time.Hour})
	ctx := context.Background()
	base := int64(1_000_000)
	for i, now := range []int64{base, base + time.Minute.Milliseconds()} {
		ref := Ref{IssueID: testIssueID(1), Recipient: fmt.Sprintf("u%d@example.com", i)}
		enqueueOne(t, q, ref, now)
		if tk, _ := q.ClaimOne(ctx, "w1", now); tk == nil {
			t.Fatal("claim came back empty")
		}
		if err := q.Resolve(ctx, "w1", ref, Succeed(), now); err != nil {
			t.Fatalf("resolve: %v", err)
		}
	}
	// first entry ages out, second survives
	n, err := q.TrimCompletedByAge(ctx, base+time.Hour.Milliseconds()+1000)
	if err != nil || n != 1 {
		t.Fatalf("trim n=%d err=%v", n, err)
	}
	done, _ := q.ListCompleted(ctx, 10)
	if len(done) != 1 || done[0].Recipient != "u1@example.com" {
		t.Fatalf("survivors = %+v", done)
	}
}

func TestSweeperReclaimsInBackground(t *testing.T) {
	q := openTestQueue(t, Policy{MaxAttempts: 5, Lease: 50 * time.Millisecond, BackoffBase: time.Millisecond, BackoffCap: time.Millisecond})
	ctx := context.Background()
	ref := Ref{IssueID: testIssueID(1), Recipient: "a@example.com"}
	enqueueOne(t, q, ref, 0)
	if tk, _ := q.ClaimOne(ctx, "w1", 0); tk == nil {
		t.Fatal("claim came back empty")
	}
	q.StartSweeper(20*time.Millisecond, 32)
	defer q.StopSweeper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if tk, _ := q.ClaimOne(ctx, "w2", 0); tk != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("sweeper never reclaimed the expired lease")
}

func TestParseRefRoundTrip(t *testing.T) {
	ref := Ref{IssueID: testIssueID(42), Recipient: "who@example.com"}
	got, err := ParseRef(ref.String())
	if err != nil || got != ref {
		t.Fatalf("got %+v err %v", got, err)
	}
	if _, err := ParseRef("short"); err == nil {
		t.Fatal("expected error for malformed ref")
	}
}
