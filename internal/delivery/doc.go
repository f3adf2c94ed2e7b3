// Package delivery implements the durable per-recipient delivery task
// queue.
//
// Each task is one obligation to deliver one issue to one recipient, keyed
// by (issue, recipient) so fan-out is structurally duplicate-free. Tasks
// move through pending -> inflight -> done|failed. A claim takes the oldest
// due pending task under a lease; the claim commits before the delivery
// attempt runs, so a crashed worker leaves a lease behind for the sweep to
// reclaim rather than a lost task.
//
// Outcomes are a closed classification: success retires the task into a
// bounded completed buffer, a transient failure reschedules it with capped
// exponential backoff until attempts run out, and a permanent failure
// retires it to the failed set immediately. Failed tasks keep their record,
// attempt count and last error for operator inspection.
//
// All state lives in a single pebble keyspace; enqueues are staged into a
// caller-owned batch so they commit atomically with whatever caused them.
package delivery
