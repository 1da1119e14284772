package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskdash/internal/api"
	"taskdash/internal/config"
	"taskdash/internal/core"
	"taskdash/internal/logging"
	taskdashmcp "taskdash/internal/mcp"
	"taskdash/internal/metrics"
	"taskdash/internal/notify"
	"taskdash/internal/store"
	"taskdash/internal/taskservice"
)

// daemon bundles the long-lived components shared by every run mode.
type daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	client   *taskservice.Client
	metrics  *metrics.Metrics
	notifier notify.Notifier
	janitor  *core.Janitor
	location *time.Location
}

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	// stdout carries the MCP protocol in mcp mode.
	logger := logging.New(cfg.Log.Level)
	if cfg.Server.Mode != config.ModeHTTP {
		logger = logging.NewWithWriter(os.Stderr, cfg.Log.Level)
	}

	d, err := newDaemon(cfg, logger)
	if err != nil {
		logger.Error("start", "err", err)
		os.Exit(1)
	}
	defer d.store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.janitor.Start(ctx)

	switch cfg.Server.Mode {
	case config.ModeHTTP:
		d.runHTTP(nil)
	case config.ModeMCP:
		d.runMCP(cancel)
	case config.ModeBoth:
		d.runBoth()
	}
	d.stopJanitor()
	logger.Info("shutdown complete")
}

func newDaemon(cfg *config.Config, logger *slog.Logger) (*daemon, error) {
	storeInst, err := store.Open(context.Background(), cfg.StateDir)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	client, err := taskservice.New(taskservice.Options{
		BaseURL:          cfg.Service.URL,
		Timeout:          cfg.Service.Timeout,
		Logger:           logger,
		Metrics:          m,
		BreakerThreshold: uint32(cfg.Service.BreakerThreshold),
		BreakerCooldown:  cfg.Service.BreakerCooldown,
	})
	if err != nil {
		storeInst.Close()
		return nil, err
	}

	var notifiers []notify.Notifier
	if cfg.Notification.Bark.Enabled && cfg.Notification.Bark.URL != "" {
		bark, err := notify.NewBarkNotifier(cfg.Notification.Bark.URL)
		if err != nil {
			logger.Warn("bark notifier disabled", "err", err)
		} else {
			notifiers = append(notifiers, bark)
		}
	}
	var notifier notify.Notifier = &notify.NoOpNotifier{}
	notifierCount := 0
	if len(notifiers) > 0 {
		multi := notify.NewMultiNotifier(notifiers...)
		notifier, notifierCount = multi, multi.Len()
	}

	core.SetTimestampLocation(cfg.Location())
	logger.Info("task service configured", "url", cfg.Service.URL, "timeout", cfg.Service.Timeout, "notifiers", notifierCount)
	return &daemon{
		cfg:      cfg,
		logger:   logger,
		store:    storeInst,
		client:   client,
		metrics:  m,
		notifier: notifier,
		janitor:  core.NewJanitor(storeInst, logger, cfg.Drafts.TTL, cfg.Drafts.PruneInterval),
		location: cfg.Location(),
	}, nil
}

func (d *daemon) newMCP() *taskdashmcp.Server {
	return taskdashmcp.NewServer(d.client, d.logger, d.location, d.cfg.Service.Token)
}

func (d *daemon) newHTTP(mcpHandler http.Handler) (*api.Server, error) {
	return api.NewServer(api.Options{
		Addr:       d.cfg.Server.Addr,
		Tasks:      d.client,
		Drafts:     d.store,
		MCP:        mcpHandler,
		Metrics:    d.metrics,
		Notifier:   d.notifier,
		Logger:     d.logger,
		Location:   d.location,
		CookieName: d.cfg.Auth.CookieName,
		LoginURL:   d.cfg.Auth.LoginURL,
	})
}

// runHTTP serves the dashboard until a signal arrives, the server fails or
// extra reports an error.
func (d *daemon) runHTTP(extra <-chan error) {
	server, err := d.newHTTP(d.newMCP().HTTPHandler())
	if err != nil {
		d.logger.Error("create server", "err", err)
		os.Exit(1)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		d.logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		d.logger.Error("server error", "err", err)
	case err := <-extra:
		d.logger.Error("mcp server error", "err", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), d.cfg.Server.ShutdownGrace)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		d.logger.Error("server shutdown", "err", err)
	}
}

// runMCP serves MCP on stdio until the input closes or a signal arrives.
func (d *daemon) runMCP(cancel context.CancelFunc) {
	if d.cfg.Service.Token == "" {
		d.logger.Warn("no service token configured; task service calls will be rejected")
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		d.logger.Info("received signal, shutting down...")
		cancel()
		d.stopJanitor()
		os.Exit(0)
	}()

	if err := d.newMCP().ServeStdio(); err != nil {
		d.logger.Error("mcp server error", "err", err)
		os.Exit(1)
	}
}

// runBoth serves MCP on stdio next to the HTTP server.
func (d *daemon) runBoth() {
	mcpErr := make(chan error, 1)
	go func() {
		if err := d.newMCP().ServeStdio(); err != nil {
			mcpErr <- err
		}
	}()
	d.runHTTP(mcpErr)
}

func (d *daemon) stopJanitor() {
	stopCtx := d.janitor.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(d.cfg.Server.ShutdownGrace):
		d.logger.Warn("janitor stop timed out")
	}
}
