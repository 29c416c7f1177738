// Package main runs the drive-folder dashboard server: folder registry,
// sync commands and the live update stream.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/media-admin/livefeed/internal/api"
	"github.com/media-admin/livefeed/internal/audit"
	"github.com/media-admin/livefeed/internal/auth"
	"github.com/media-admin/livefeed/internal/command"
	"github.com/media-admin/livefeed/internal/config"
	"github.com/media-admin/livefeed/internal/drive"
	"github.com/media-admin/livefeed/internal/feed"
	"github.com/media-admin/livefeed/internal/folder"
	"github.com/media-admin/livefeed/internal/logging"
)

// version is set at build time via -ldflags "-X main.version=v1.0.0".
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to YAML config (defaults to $"+config.ConfigFileEnv+")")
	noAuth := flag.Bool("no-auth", false, "serve without token checks (local development only)")
	flag.Parse()

	if err := run(*configPath, *noAuth); err != nil {
		fmt.Fprintf(os.Stderr, "livefeed: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, noAuth bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if !noAuth {
		if err := config.ValidateServer(cfg); err != nil {
			return err
		}
	}

	logs := logging.NewManager()
	if err := logs.Configure(cfg.Logging); err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	defer func() { _ = logs.Close() }()
	logger := logs.Logger("main")
	logger.Info("starting livefeed", "version", version, "addr", cfg.Server.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := folder.Open(ctx, cfg.Server.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open folder store: %w", err)
	}
	defer func() { _ = store.Close() }()
	folders := folder.NewManager(store, nil, logs.Logger("folder"))
	logger.Info("folder store opened", "path", cfg.Server.DatabasePath)

	hub := feed.NewHub(&cfg.Timing,
		feed.WithLogger(logs.Logger("feed")),
		feed.WithSnapshot(func() any {
			list, err := folders.List(context.Background())
			if err != nil {
				return map[string]any{"folders": 0}
			}
			return map[string]any{"folders": len(list.Items)}
		}))

	auditLogger, err := audit.NewLogger(cfg.Server.AuditDir)
	if err != nil {
		return fmt.Errorf("failed to initialize audit logger: %w", err)
	}
	defer func() { _ = auditLogger.Close() }()

	orchestrator := command.NewOrchestrator(folders, drive.NewLocalDir(cfg.Server.MediaRoot), hub, &cfg.Timing,
		command.WithAuditLogger(auditLogger),
		command.WithLogger(logs.Logger("command")))

	opts := []api.Option{
		api.WithLogger(logs.Logger("api")),
		api.WithSyncLimit(cfg.Server.SyncRate, cfg.Server.SyncBurst),
	}
	if noAuth {
		logger.Warn("authentication disabled")
	} else {
		verifier, err := auth.NewVerifierFromConfig(cfg.Auth)
		if err != nil {
			return fmt.Errorf("failed to create token verifier: %w", err)
		}
		opts = append(opts, api.WithAuth(auth.NewMiddleware(verifier, logs.Logger("auth"))))
	}
	server := api.NewServer(hub, orchestrator, folders, opts...)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(cfg.Server.Addr)
	}()

	// SIGHUP reopens log files after external rotation.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for running := true; running; {
		select {
		case <-hup:
			if err := logs.Rotate(); err != nil {
				logger.Warn("log rotation failed", "error", err)
			}
			if err := auditLogger.Rotate(); err != nil {
				logger.Warn("audit rotation failed", "error", err)
			}
		case <-ctx.Done():
			logger.Info("shutdown requested")
			running = false
		case err := <-serverErr:
			if err != nil {
				logger.Error("server failed", "error", err)
				hub.Stop()
				return err
			}
			running = false
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Streams end first so Shutdown does not wait on them.
	hub.Stop()
	logger.Info("update hub stopped")

	if err := server.Stop(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("error stopping HTTP server", "error", err)
	}
	logger.Info("livefeed shutdown complete")
	return nil
}
