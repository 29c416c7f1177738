package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/media-admin/livefeed/internal/clock"
	"github.com/media-admin/livefeed/internal/config"
	"github.com/media-admin/livefeed/internal/drive"
	"github.com/media-admin/livefeed/internal/feed"
	"github.com/media-admin/livefeed/internal/folder"
)

// Audit action names.
const (
	ActionAdd    = "addFolder"
	ActionSync   = "syncFolder"
	ActionDelete = "deleteFolder"
)

// Orchestrator routes validated API intents to the registry and the video
// source.
type Orchestrator struct {
	folders     FolderRegistry
	source      drive.Source
	publisher   Publisher
	config      *config.TimingConfig
	auditLogger AuditLogger
	clock       clock.Clock
	logger      *slog.Logger

	mu      sync.Mutex
	syncing map[string]bool
}

var (
	_ OrchestratorPort = (*Orchestrator)(nil)
	_ FolderRegistry   = (*folder.Manager)(nil)
	_ Publisher        = (*feed.Hub)(nil)
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAuditLogger sets the audit logger.
func WithAuditLogger(logger AuditLogger) Option {
	return func(o *Orchestrator) { o.auditLogger = logger }
}

// WithClock sets the clock used to measure command latency.
func WithClock(clk clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = clk }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// NewOrchestrator creates a command orchestrator.
func NewOrchestrator(folders FolderRegistry, source drive.Source, publisher Publisher, timingConfig *config.TimingConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		folders:   folders,
		source:    source,
		publisher: publisher,
		config:    timingConfig,
		clock:     clock.Real{},
		logger:    slog.Default(),
		syncing:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "command")
	return o
}

// AddFolder registers a folder and announces it with a zero video count.
func (o *Orchestrator) AddFolder(ctx context.Context, idOrURL, name string) (folder.Folder, error) {
	start := o.clock.Now()

	f, err := o.folders.Add(ctx, idOrURL, name)
	if err != nil {
		o.logAudit(ctx, ActionAdd, idOrURL, map[string]any{"name": name}, err, start)
		return folder.Folder{}, err
	}

	o.logAudit(ctx, ActionAdd, f.ID, map[string]any{"name": f.Name}, nil, start)
	o.publish(f.ID, map[string]any{
		"name":        f.Name,
		"video_count": f.VideoCount,
		"created":     true,
	})
	return f, nil
}

// SyncFolder counts the folder's videos, stores the result and publishes
// {"folder_id", "video_count", "last_synced"}. A second sync of the same
// folder while one is running fails with ErrBusy.
func (o *Orchestrator) SyncFolder(ctx context.Context, folderID string) (folder.Folder, error) {
	start := o.clock.Now()

	if _, err := o.folders.Get(ctx, folderID); err != nil {
		o.logAudit(ctx, ActionSync, folderID, nil, err, start)
		return folder.Folder{}, err
	}

	if o.source == nil {
		o.logAudit(ctx, ActionSync, folderID, nil, ErrUnavailable, start)
		return folder.Folder{}, ErrUnavailable
	}

	if !o.beginSync(folderID) {
		o.logAudit(ctx, ActionSync, folderID, nil, ErrBusy, start)
		return folder.Folder{}, ErrBusy
	}
	defer o.endSync(folderID)

	syncCtx, cancel := context.WithTimeout(ctx, o.config.CommandTimeoutSync)
	defer cancel()

	count, err := o.source.CountVideos(syncCtx, folderID)
	if err != nil {
		if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			err = drive.NormalizeError(err, folderID)
		}
		o.logger.Warn("sync failed", "folder_id", folderID, "error", err)
		o.logAudit(ctx, ActionSync, folderID, nil, err, start)
		return folder.Folder{}, fmt.Errorf("count videos in %s: %w", folderID, err)
	}

	f, err := o.folders.RecordSync(ctx, folderID, count)
	if err != nil {
		o.logAudit(ctx, ActionSync, folderID, map[string]any{"videoCount": count}, err, start)
		return folder.Folder{}, err
	}

	o.logAudit(ctx, ActionSync, folderID, map[string]any{"videoCount": count}, nil, start)
	o.publish(folderID, map[string]any{
		"video_count": f.VideoCount,
		"last_synced": f.LastSynced.UTC().Format(time.RFC3339),
	})
	o.logger.Info("folder synced", "folder_id", folderID, "video_count", count, "latency", o.clock.Now().Sub(start))
	return f, nil
}

// DeleteFolder removes a folder and publishes {"folder_id", "deleted": true}.
func (o *Orchestrator) DeleteFolder(ctx context.Context, folderID string) error {
	start := o.clock.Now()

	deleteCtx, cancel := context.WithTimeout(ctx, o.config.CommandTimeoutDelete)
	defer cancel()

	if err := o.folders.Remove(deleteCtx, folderID); err != nil {
		o.logAudit(ctx, ActionDelete, folderID, nil, err, start)
		return err
	}

	o.logAudit(ctx, ActionDelete, folderID, nil, nil, start)
	o.publish(folderID, map[string]any{"deleted": true})
	return nil
}

func (o *Orchestrator) beginSync(folderID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.syncing[folderID] {
		return false
	}
	o.syncing[folderID] = true
	return true
}

func (o *Orchestrator) endSync(folderID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.syncing, folderID)
}

// publish sends an update; a stopped or missing hub only costs a log line.
func (o *Orchestrator) publish(folderID string, fields map[string]any) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishFolder(folderID, fields); err != nil {
		o.logger.Warn("failed to publish folder update", "folder_id", folderID, "error", err)
	}
}

func (o *Orchestrator) logAudit(ctx context.Context, action, folderID string, params map[string]any, err error, start time.Time) {
	if o.auditLogger != nil {
		o.auditLogger.LogAction(ctx, action, folderID, params, err, o.clock.Now().Sub(start))
	}
}
