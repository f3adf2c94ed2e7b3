package idempotency

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/mailroom-sh/mailroom/internal/storage/pebble"
)

// Record is the durable result of one accepted command, keyed by
// (owner, idempotency key). It is written exactly once, in the same batch as
// the side effects it guards, and never mutated; replays read it verbatim.
type Record struct {
	OwnerID     string `json:"owner_id"`
	Key         string `json:"key"`
	Status      int    `json:"status"`
	Body        []byte `json:"body"`
	CreatedAtMs int64  `json:"created_at_ms"`
}

// Store persists idempotency records.
type Store struct {
	db *pebblestore.DB
}

// NewStore creates a Store over the shared database.
func NewStore(db *pebblestore.DB) *Store {
	return &Store{db: db}
}

// Get returns the record for (ownerID, key), or ok=false when the command
// has not been seen.
func (s *Store) Get(_ context.Context, ownerID, key string) (Record, bool, error) {
	val, err := s.db.Get(Key(ownerID, key))
	if err != nil {
		if pebblestore.IsNotFound(err) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	var rec Record
	if err := json.Unmarshal(val, &rec); err != nil {
		return Record{}, false, fmt.Errorf("idempotency: decode (%s, %s): %w", ownerID, key, err)
	}
	return rec, true, nil
}

// AppendPut stages the record into the caller's batch. The caller commits it
// together with the side effects the record stands for.
func (s *Store) AppendPut(b *pebble.Batch, rec Record) error {
	if rec.OwnerID == "" || rec.Key == "" {
		return fmt.Errorf("idempotency: empty owner or key")
	}
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("idempotency: encode (%s, %s): %w", rec.OwnerID, rec.Key, err)
	}
	return b.Set(Key(rec.OwnerID, rec.Key), val, nil)
}
