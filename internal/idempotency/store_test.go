package idempotency

import (
	"bytes"
	"context"
	"testing"

	pebblestore "github.com/mailroom-sh/mailroom/internal/storage/pebble"
)

func openTestStore(t *testing.T) (*Store, *pebblestore.DB) {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), db
}

func TestMissThenHit(t *testing.T) {
	s, db := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "alice", "abc"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	rec := Record{OwnerID: "alice", Key: "abc", Status: 201, Body: []byte(`{"issue_id":"x"}`), CreatedAtMs: 7}
	b := db.NewBatch()
	if err := s.AppendPut(b, rec); err != nil {
		t.Fatalf("append put: %v", err)
	}
	if err := db.CommitBatch(ctx, b); err != nil {
		t.Fatalf("commit: %v", err)
	}
	b.Close()

	got, ok, err := s.Get(ctx, "alice", "abc")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got.Status != 201 || !bytes.Equal(got.Body, rec.Body) {
		t.Fatalf("stored response mutated: %+v", got)
	}
}

func TestKeysAreOwnerScoped(t *testing.T) {
	s, db := openTestStore(t)
	ctx := context.Background()

	b := db.NewBatch()
	_ = s.AppendPut(b, Record{OwnerID: "alice", Key: "k", Status: 201, Body: []byte("a")})
	if err := db.CommitBatch(ctx, b); err != nil {
		t.Fatalf("commit: %v", err)
	}
	b.Close()

	if _, ok, _ := s.Get(ctx, "bob", "k"); ok {
		t.Fatalf("bob must not see alice's record")
	}
}

func TestAppendPutValidates(t *testing.T) {
	s, db := openTestStore(t)
	b := db.NewBatch()
	defer b.Close()
	if err := s.AppendPut(b, Record{Key: "k"}); err == nil {
		t.Fatalf("expected error for empty owner")
	}
}
