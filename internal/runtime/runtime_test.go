package runtime

import (
	"context"
	"testing"

	cfgpkg "github.com/mailroom-sh/mailroom/internal/config"
	pebblestore "github.com/mailroom-sh/mailroom/internal/storage/pebble"
)

func TestOpenCloseHealth(t *testing.T) {
	dir := t.TempDir()
	rt, err := Open(Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways, Config: cfgpkg.Default()})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	defer rt.Close()
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestStoresShareOneKeyspace(t *testing.T) {
	dir := t.TempDir()
	rt, err := Open(Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways, Config: cfgpkg.Default()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()

	ctx := context.Background()
	token, err := rt.Subscribers().Add(ctx, "a@example.com", "A")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := rt.Subscribers().Confirm(ctx, token); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if st, err := rt.Queue().Stats(ctx); err != nil || st.Pending != 0 {
		t.Fatalf("stats %+v err %v", st, err)
	}
}

func TestQueuePolicyFollowsConfig(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.Delivery.MaxAttempts = 7
	rt, err := Open(Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways, Config: cfg})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	if got := rt.Queue().Policy().MaxAttempts; got != 7 {
		t.Fatalf("MaxAttempts = %d", got)
	}
}
