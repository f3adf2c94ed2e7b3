package issue

import (
	"context"
	"errors"
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

func TestCreateAndGet(t *testing.T) {
	s, db := openTestStore(t)
	ctx := context.Background()

	iss := Issue{ID: "0001", Title: "Hello", HTMLBody: "<p>hi</p>", TextBody: "hi", CreatedAtMs: 42}
	b := db.NewBatch()
	if err := s.AppendCreate(b, iss); err != nil {
		t.Fatalf("append create: %v", err)
	}
	if err := db.CommitBatch(ctx, b); err != nil {
		t.Fatalf("commit: %v", err)
	}
	b.Close()

	got, err := s.Get(ctx, "0001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != iss {
		t.Fatalf("got %+v want %+v", got, iss)
	}
}

func TestGetMissing(t *testing.T) {
	s, _ := openTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestAppendCreateRejectsEmptyID(t *testing.T) {
	s, db := openTestStore(t)
	b := db.NewBatch()
	defer b.Close()
	if err := s.AppendCreate(b, Issue{Title: "x"}); err == nil {
		t.Fatalf("expected error for empty id")
	}
}
