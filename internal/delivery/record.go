package delivery

import (
	"fmt"
	"strings"
)

// State is a delivery task's lifecycle state.
type State string

// Task states. Pending and InFlight are transient; Done and Failed are
// terminal.
const (
	StatePending  State = "pending"
	StateInFlight State = "inflight"
	StateDone     State = "done"
	StateFailed   State = "failed"
)

// Ref identifies one delivery task: one issue to one recipient. Uniqueness
// per (issue, recipient) is structural: the task key is the ref.
type Ref struct {
	IssueID   string
	Recipient string
}

// String renders the ref as "{issueID}/{recipient}".
func (r Ref) String() string { return r.IssueID + "/" + r.Recipient }

// issueIDHexLen is the fixed width of an issue id in hex form, which makes
// refs parseable from key suffixes regardless of recipient content.
const issueIDHexLen = 32

// ParseRef decodes a "{issueID}/{recipient}" string.
func ParseRef(s string) (Ref, error) {
	if len(s) < issueIDHexLen+2 || s[issueIDHexLen] != '/' {
		return Ref{}, fmt.Errorf("delivery: malformed task ref %q", s)
	}
	return Ref{IssueID: s[:issueIDHexLen], Recipient: s[issueIDHexLen+1:]}, nil
}

// Task is one durable obligation to deliver one issue to one recipient.
// Mutated only by the worker holding its claim, or by the reclaim sweep once
// the claim's lease has expired.
type Task struct {
	IssueID        string `json:"issue_id"`
	Recipient      string `json:"recipient"`
	State          State  `json:"state"`
	Attempts       int    `json:"attempts"`
	ExecuteAfterMs int64  `json:"execute_after_ms"`
	LastError      string `json:"last_error,omitempty"`
	EnqueuedAtMs   int64  `json:"enqueued_at_ms"`
	UpdatedAtMs    int64  `json:"updated_at_ms"`
}

// Ref returns the task's identity.
func (t Task) Ref() Ref { return Ref{IssueID: t.IssueID, Recipient: t.Recipient} }

// Lease records exclusive ownership of an in-flight task.
type Lease struct {
	Worker      string `json:"worker"`
	ClaimedAtMs int64  `json:"claimed_at_ms"`
	ExpiresAtMs int64  `json:"expires_at_ms"`
}

// CompletedEntry is a retired Done task kept in a bounded buffer for
// operator visibility.
type CompletedEntry struct {
	IssueID    string `json:"issue_id"`
	Recipient  string `json:"recipient"`
	Worker     string `json:"worker"`
	Attempts   int    `json:"attempts"`
	DoneAtMs   int64  `json:"done_at_ms"`
	DurationMs int64  `json:"duration_ms"`
	EnqueuedMs int64  `json:"enqueued_ms"`
}

// OutcomeKind classifies the result of one delivery attempt. The enumeration
// is closed: every raw transport error maps to exactly one of the failure
// kinds.
type OutcomeKind int

const (
	// Success retires the task.
	Success OutcomeKind = iota
	// TransientFailure reschedules the task with backoff until attempts run
	// out, then fails it terminally.
	TransientFailure
	// PermanentFailure fails the task terminally on first sight.
	PermanentFailure
)

// String returns a short name for logging.
func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case TransientFailure:
		return "transient"
	case PermanentFailure:
		return "permanent"
	default:
		return "unknown"
	}
}

// Outcome is the resolved result of one delivery attempt.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

// Succeed constructs a Success outcome.
func Succeed() Outcome { return Outcome{Kind: Success} }

// Transient constructs a TransientFailure outcome.
func Transient(reason string) Outcome {
	return Outcome{Kind: TransientFailure, Reason: strings.TrimSpace(reason)}
}

// Permanent constructs a PermanentFailure outcome.
func Permanent(reason string) Outcome {
	return Outcome{Kind: PermanentFailure, Reason: strings.TrimSpace(reason)}
}
