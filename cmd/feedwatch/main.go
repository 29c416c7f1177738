// Package main follows the live update stream and prints one line per
// folder update. It is the command-line counterpart of the dashboard's
// browser subscription.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/media-admin/livefeed/internal/config"
	"github.com/media-admin/livefeed/internal/liveupdate"
	"github.com/media-admin/livefeed/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (defaults to $"+config.ConfigFileEnv+")")
	endpoint := flag.String("endpoint", "", "stream URL (overrides watch.endpoint)")
	transport := flag.String("transport", "", "sse or ws (overrides watch.transport)")
	folderID := flag.String("folder", "", "only print updates for this folder")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "feedwatch: %v\n", err)
		os.Exit(1)
	}
	if *endpoint != "" {
		cfg.Watch.Endpoint = *endpoint
	}
	if *transport != "" {
		cfg.Watch.Transport = *transport
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, *folderID, os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "feedwatch: %v\n", err)
		os.Exit(1)
	}
}

// outputBacklog bounds the lines waiting to be printed.
const outputBacklog = 64

// watcher turns updates into output lines. onEvent runs on the transport
// goroutine and never blocks it.
type watcher struct {
	folder  string
	lines   chan string
	dropped atomic.Uint64
	logger  *slog.Logger
	now     func() time.Time
}

func newWatcher(folder string, backlog int, logger *slog.Logger) *watcher {
	return &watcher{
		folder: folder,
		lines:  make(chan string, backlog),
		logger: logger,
		now:    time.Now,
	}
}

func (w *watcher) onEvent(e liveupdate.UpdateEvent) {
	if w.folder != "" && e.EntityID != w.folder {
		return
	}
	select {
	case w.lines <- formatUpdate(w.now(), e):
	default:
		w.dropped.Add(1)
		w.logger.Warn("output backlog full, dropping update", "folder_id", e.EntityID)
	}
}

// run follows cfg.Watch.Endpoint and prints updates to out until ctx ends.
func run(ctx context.Context, cfg *config.Config, folderID string, out io.Writer) error {
	dialer, err := newDialer(cfg)
	if err != nil {
		return err
	}

	logs := logging.NewManager()
	if err := logs.Configure(cfg.Logging); err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	defer func() { _ = logs.Close() }()
	logger := logs.Logger("feedwatch")

	w := newWatcher(folderID, outputBacklog, logger)
	channel := liveupdate.New(dialer,
		liveupdate.WithRetryDelay(cfg.Timing.RetryDelay),
		liveupdate.WithLogger(logger))
	channel.Start(cfg.Watch.Endpoint, w.onEvent)
	defer channel.Stop()

	logger.Info("watching", "endpoint", cfg.Watch.Endpoint, "transport", cfg.Watch.Transport)
	for {
		select {
		case line := <-w.lines:
			fmt.Fprintln(out, line)
		case <-ctx.Done():
			stats := channel.Stats()
			logger.Info("stopped", "updates", stats.Delivered, "dropped", w.dropped.Load(), "reconnects", stats.Reconnects)
			return nil
		}
	}
}

// newDialer builds the transport named by cfg.Watch.Transport. The idle
// timeout matches the server heartbeat timeout so a silent stream is
// treated as lost.
func newDialer(cfg *config.Config) (liveupdate.Dialer, error) {
	switch cfg.Watch.Transport {
	case "", "sse":
		return &liveupdate.SSEDialer{
			Token:       cfg.Watch.Token,
			IdleTimeout: cfg.Timing.HeartbeatTimeout,
		}, nil
	case "ws":
		return &liveupdate.WSDialer{
			Token:       cfg.Watch.Token,
			IdleTimeout: cfg.Timing.HeartbeatTimeout,
		}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Watch.Transport)
	}
}

// formatUpdate renders an update as "<time> folder=<id> key=value ...",
// keys sorted, folder_id omitted from the list.
func formatUpdate(at time.Time, e liveupdate.UpdateEvent) string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		if k != "folder_id" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "%s folder=%s", at.Format(time.TimeOnly), e.EntityID)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
	}
	return b.String()
}
