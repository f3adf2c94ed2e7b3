package serverrun

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	cfgpkg "github.com/mailroom-sh/mailroom/internal/config"
	"github.com/mailroom-sh/mailroom/internal/dispatcher"
	"github.com/mailroom-sh/mailroom/internal/publisher"
	"github.com/mailroom-sh/mailroom/internal/runtime"
	httpserver "github.com/mailroom-sh/mailroom/internal/server/http"
	pebblestore "github.com/mailroom-sh/mailroom/internal/storage/pebble"
	"github.com/mailroom-sh/mailroom/internal/transport"
	logpkg "github.com/mailroom-sh/mailroom/pkg/log"
)

func getenvDefault(key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

// swappable in tests
var getenv = func(key string) string { return os.Getenv(key) }

type Options struct {
	DataDir       string
	HTTPAddr      string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
}

// Run starts the runtime, the delivery dispatcher, the lease sweeper and
// the HTTP server, and blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	// Be robust to callers that don't pass a signal-aware context: layer a
	// local signal context over the provided one.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}
	if opts.HTTPAddr == "" {
		opts.HTTPAddr = opts.Config.HTTPAddr
	}

	// Build process-wide logger using env/ApplyConfig; defaults: level=info, format=text
	logCfg := &logpkg.Config{
		Level:  getenvDefault("MAILROOM_LOG_LEVEL", "info"),
		Format: getenvDefault("MAILROOM_LOG_FORMAT", "text"),
	}
	procLogger, err := logpkg.ApplyConfig(logCfg)
	if err != nil {
		lvl := logpkg.InfoLevel
		if l, e := logpkg.ParseLevel(logCfg.Level); e == nil {
			lvl = l
		}
		procLogger = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}

	// Redirect stdlib logs (e.g., Pebble) to our logger
	logpkg.RedirectStdLog(procLogger)

	storeDir := filepath.Join(opts.DataDir, "store")
	rt, err := runtime.Open(runtime.Options{
		DataDir: storeDir,
		Fsync:   opts.Fsync,
		Config:  opts.Config,
		Logger:  procLogger,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := opts.Config
	procLogger.Info("starting mailroom server",
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("data_dir", opts.DataDir),
		logpkg.Str("level", logCfg.Level),
		logpkg.Str("format", logCfg.Format),
		logpkg.Int("workers", cfg.Delivery.Workers),
		logpkg.Bool("email_configured", cfg.Email.Endpoint != ""),
	)

	var sender transport.Sender
	if cfg.Email.Endpoint != "" {
		sender = transport.NewEmailClient(
			cfg.Email.Endpoint,
			cfg.Email.ServerToken,
			cfg.Email.From,
			time.Duration(cfg.Email.TimeoutMs)*time.Millisecond,
			procLogger,
		)
	} else {
		sender = transport.NewLogSender(procLogger)
	}

	proc := publisher.NewProcessor(rt.DB(), rt.Issues(), rt.Idempotency(), rt.Subscribers(), rt.Queue(), procLogger)

	disp := dispatcher.New(rt.Queue(), rt.Issues(), sender, dispatcher.Options{
		Workers:      cfg.Delivery.Workers,
		IdleInterval: time.Duration(cfg.Delivery.IdleIntervalMs) * time.Millisecond,
		RatePerSec:   float64(cfg.Delivery.RatePerSec),
	}, procLogger)
	disp.Start()

	rt.Queue().StartSweeper(time.Duration(cfg.Delivery.SweepIntervalMs)*time.Millisecond, 0)

	hsrv := httpserver.New(rt, proc, procLogger)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, opts.HTTPAddr); err != nil && sctx.Err() == nil {
			procLogger.Error("http server error", logpkg.Err(err))
		}
	}()

	<-sctx.Done()
	// Shut the API down first so no new submissions race the drain, then
	// stop the workers before closing the store.
	hsrv.Close()
	wg.Wait()
	disp.Stop()
	rt.Queue().StopSweeper()
	return nil
}
