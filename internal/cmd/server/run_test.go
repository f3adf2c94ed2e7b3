package serverrun

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	cfgpkg "github.com/mailroom-sh/mailroom/internal/config"
	pebblestore "github.com/mailroom-sh/mailroom/internal/storage/pebble"
)

func TestGetenvDefault(t *testing.T) {
	_ = os.Setenv("MAILROOM_TEST_VAR", "env_value")
	t.Cleanup(func() { _ = os.Unsetenv("MAILROOM_TEST_VAR") })
	if got := getenvDefault("MAILROOM_TEST_VAR", "default"); got != "env_value" {
		t.Fatalf("got %q", got)
	}
	if got := getenvDefault("MAILROOM_TEST_VAR_UNSET", "default"); got != "default" {
		t.Fatalf("got %q", got)
	}
}

func TestDataDirFallback(t *testing.T) {
	opts := Options{DataDir: ""}
	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}
	if opts.DataDir == "" {
		t.Fatal("DataDir should be set after fallback")
	}
	if !filepath.IsAbs(opts.DataDir) && !filepath.HasPrefix(opts.DataDir, "./") {
		t.Fatalf("DataDir should be absolute or relative to cwd, got %s", opts.DataDir)
	}
}

// TestRunIntegration verifies Run starts and shuts down cleanly. Minimal by
// design since Run binds a real listener.
func TestRunIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	opts := Options{
		DataDir:  t.TempDir(),
		HTTPAddr: "127.0.0.1:0",
		Fsync:    pebblestore.FsyncModeNever,
		Config:   cfgpkg.Default(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := Run(ctx, opts); err != nil && err != context.DeadlineExceeded && err != context.Canceled {
		t.Fatalf("run: %v", err)
	}
}
