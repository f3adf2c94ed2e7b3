package subscriber

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/mailroom-sh/mailroom/internal/storage/pebble"
)

var (
	// ErrNotFound is returned when no subscriber matches.
	ErrNotFound = errors.New("subscriber: not found")
	// ErrTokenInvalid is returned when a confirmation token matches no
	// pending subscriber.
	ErrTokenInvalid = errors.New("subscriber: invalid confirmation token")
)

// Directory is the read side consumed by issue fan-out.
type Directory interface {
	ListConfirmed(ctx context.Context) ([]Subscriber, error)
}

// Store persists subscribers and their confirmation tokens.
//
// Keyspace:
//
//	sub/email/{email}  subscriber record (JSON)
//	sub/token/{token}  pending confirmation token -> email
type Store struct {
	db *pebblestore.DB
}

// NewStore wraps a Store around db.
func NewStore(db *pebblestore.DB) *Store { return &Store{db: db} }

var _ Directory = (*Store)(nil)

func emailKey(email string) []byte { return []byte("sub/email/" + email) }
func tokenKey(token string) []byte { return []byte("sub/token/" + token) }

func newToken() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

// Add registers email as a pending subscriber and returns the confirmation
// token. Re-adding an existing pending subscriber rotates the token;
// re-adding a confirmed one is a no-op and returns an empty token.
func (s *Store) Add(ctx context.Context, email, name string) (string, error) {
	if err := ValidateEmail(email); err != nil {
		return "", err
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}
	nowMs := time.Now().UnixMilli()

	existing, found, err := s.get(email)
	if err != nil {
		return "", err
	}
	if found && existing.Status == StatusConfirmed {
		return "", nil
	}

	token, err := newToken()
	if err != nil {
		return "", err
	}
	sub := Subscriber{Email: email, Name: name, Status: StatusPending, Token: token, CreatedAtMs: nowMs}
	if found {
		sub.CreatedAtMs = existing.CreatedAtMs
		sub.Name = name
	}
	val, err := json.Marshal(sub)
	if err != nil {
		return "", err
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(emailKey(email), val, nil); err != nil {
		return "", err
	}
	if err := b.Set(tokenKey(token), []byte(email), nil); err != nil {
		return "", err
	}
	// rotating the token retires the superseded one
	if found && existing.Token != "" {
		if err := b.Delete(tokenKey(existing.Token), nil); err != nil {
			return "", err
		}
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return "", err
	}
	return token, nil
}

// Confirm flips the subscriber behind token to confirmed and burns the
// token. Confirming an already-burned token returns ErrTokenInvalid.
func (s *Store) Confirm(ctx context.Context, token string) (Subscriber, error) {
	if token == "" {
		return Subscriber{}, ErrTokenInvalid
	}
	emailRaw, err := s.db.Get(tokenKey(token))
	if err != nil {
		if pebblestore.IsNotFound(err) {
			return Subscriber{}, ErrTokenInvalid
		}
		return Subscriber{}, err
	}
	email := string(emailRaw)
	sub, found, err := s.get(email)
	if err != nil {
		return Subscriber{}, err
	}
	if !found {
		return Subscriber{}, fmt.Errorf("subscriber: token %q points at missing record %q", token, email)
	}
	sub.Status = StatusConfirmed
	sub.Token = ""
	sub.ConfirmedAtMs = time.Now().UnixMilli()
	val, err := json.Marshal(sub)
	if err != nil {
		return Subscriber{}, err
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(emailKey(email), val, nil); err != nil {
		return Subscriber{}, err
	}
	if err := b.Delete(tokenKey(token), nil); err != nil {
		return Subscriber{}, err
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return Subscriber{}, err
	}
	return sub, nil
}

func (s *Store) get(email string) (Subscriber, bool, error) {
	val, err := s.db.Get(emailKey(email))
	if err != nil {
		if pebblestore.IsNotFound(err) {
			return Subscriber{}, false, nil
		}
		return Subscriber{}, false, err
	}
	var sub Subscriber
	if err := json.Unmarshal(val, &sub); err != nil {
		return Subscriber{}, false, fmt.Errorf("subscriber: corrupt record %q: %w", email, err)
	}
	return sub, true, nil
}

// Get looks up one subscriber by email.
func (s *Store) Get(ctx context.Context, email string) (Subscriber, error) {
	_ = ctx
	sub, found, err := s.get(email)
	if err != nil {
		return Subscriber{}, err
	}
	if !found {
		return Subscriber{}, ErrNotFound
	}
	return sub, nil
}

// List returns all subscribers in email order.
func (s *Store) List(ctx context.Context) ([]Subscriber, error) {
	return s.list(ctx, func(Subscriber) bool { return true })
}

// ListConfirmed returns the confirmed subscribers in email order.
func (s *Store) ListConfirmed(ctx context.Context) ([]Subscriber, error) {
	return s.list(ctx, func(sub Subscriber) bool { return sub.Status == StatusConfirmed })
}

func (s *Store) list(_ context.Context, keep func(Subscriber) bool) ([]Subscriber, error) {
	lo := []byte("sub/email/")
	hi := []byte("sub/email0") // '0' is '/'+1
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []Subscriber
	for ok := iter.First(); ok; ok = iter.Next() {
		var sub Subscriber
		if err := json.Unmarshal(iter.Value(), &sub); err != nil {
			continue
		}
		if keep(sub) {
			out = append(out, sub)
		}
	}
	return out, nil
}
