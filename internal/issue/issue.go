package issue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/mailroom-sh/mailroom/internal/storage/pebble"
)

// Issue is one newsletter broadcast. Created once by an accepted publish
// command and immutable thereafter; the dispatcher only ever reads it.
type Issue struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	HTMLBody    string `json:"html_body"`
	TextBody    string `json:"text_body"`
	CreatedAtMs int64  `json:"created_at_ms"`
}

// ErrNotFound is returned when an issue id has no record.
var ErrNotFound = fmt.Errorf("issue not found")

// Store persists Issue records.
type Store struct {
	db *pebblestore.DB
}

// NewStore creates a Store over the shared database.
func NewStore(db *pebblestore.DB) *Store {
	return &Store{db: db}
}

// AppendCreate stages the issue record into the caller's batch. The caller
// owns the commit; publish uses this to keep the issue, its delivery tasks,
// and the idempotency record in one atomic unit.
func (s *Store) AppendCreate(b *pebble.Batch, iss Issue) error {
	if iss.ID == "" {
		return fmt.Errorf("issue: empty id")
	}
	val, err := json.Marshal(iss)
	if err != nil {
		return fmt.Errorf("issue: encode %s: %w", iss.ID, err)
	}
	return b.Set(Key(iss.ID), val, nil)
}

// Get loads an issue by id.
func (s *Store) Get(_ context.Context, issueID string) (Issue, error) {
	val, err := s.db.Get(Key(issueID))
	if err != nil {
		if pebblestore.IsNotFound(err) {
			return Issue{}, fmt.Errorf("%w: id=%s", ErrNotFound, issueID)
		}
		return Issue{}, err
	}
	var iss Issue
	if err := json.Unmarshal(val, &iss); err != nil {
		return Issue{}, fmt.Errorf("issue: decode %s: %w", issueID, err)
	}
	return iss, nil
}
