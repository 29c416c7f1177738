package command

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/media-admin/livefeed/internal/clock"
	"github.com/media-admin/livefeed/internal/config"
	"github.com/media-admin/livefeed/internal/drive"
	"github.com/media-admin/livefeed/internal/drive/fake"
	"github.com/media-admin/livefeed/internal/feed"
	"github.com/media-admin/livefeed/internal/folder"
)

// MockAuditLogger records audit calls.
type MockAuditLogger struct {
	mu      sync.Mutex
	Actions []AuditAction
}

type AuditAction struct {
	Action   string
	FolderID string
	Params   map[string]any
	Err      error
}

func (m *MockAuditLogger) LogAction(ctx context.Context, action, folderID string, params map[string]any, err error, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Actions = append(m.Actions, AuditAction{Action: action, FolderID: folderID, Params: params, Err: err})
}

func (m *MockAuditLogger) last(t *testing.T) AuditAction {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Actions) == 0 {
		t.Fatal("no audit records")
	}
	return m.Actions[len(m.Actions)-1]
}

// recordingPublisher captures published updates.
type recordingPublisher struct {
	mu      sync.Mutex
	updates []publishedUpdate
	err     error
}

type publishedUpdate struct {
	FolderID string
	Fields   map[string]any
}

func (p *recordingPublisher) PublishFolder(folderID string, fields map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, publishedUpdate{FolderID: folderID, Fields: fields})
	return p.err
}

func (p *recordingPublisher) all() []publishedUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedUpdate(nil), p.updates...)
}

type testEnv struct {
	orch      *Orchestrator
	folders   *folder.Manager
	source    *fake.Source
	publisher *recordingPublisher
	audit     *MockAuditLogger
	clock     *clock.Manual
}

func setupTestOrchestrator(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	store, err := folder.Open(ctx, filepath.Join(t.TempDir(), "folders.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	clk := clock.NewManualAt(time.Date(2025, 10, 3, 10, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		folders:   folder.NewManager(store, clk, logger),
		source:    fake.New(),
		publisher: &recordingPublisher{},
		audit:     &MockAuditLogger{},
		clock:     clk,
	}
	env.orch = NewOrchestrator(env.folders, env.source, env.publisher, config.LoadTimingBaseline(),
		WithAuditLogger(env.audit), WithClock(clk), WithLogger(logger))
	return env
}

func TestAddFolder(t *testing.T) {
	env := setupTestOrchestrator(t)
	ctx := context.Background()

	f, err := env.orch.AddFolder(ctx, "https://drive.google.com/drive/folders/abc123", "Lectures")
	if err != nil {
		t.Fatalf("AddFolder() failed: %v", err)
	}
	if f.ID != "abc123" {
		t.Errorf("Expected id abc123, got %q", f.ID)
	}

	updates := env.publisher.all()
	if len(updates) != 1 || updates[0].FolderID != "abc123" || updates[0].Fields["created"] != true {
		t.Errorf("Unexpected updates %+v", updates)
	}
	if a := env.audit.last(t); a.Action != ActionAdd || a.Err != nil {
		t.Errorf("Unexpected audit %+v", a)
	}

	if _, err := env.orch.AddFolder(ctx, "abc123", "again"); !errors.Is(err, folder.ErrExists) {
		t.Errorf("Expected ErrExists, got %v", err)
	}
	if a := env.audit.last(t); !errors.Is(a.Err, folder.ErrExists) {
		t.Errorf("Expected failed add in audit, got %+v", a)
	}
	if len(env.publisher.all()) != 1 {
		t.Error("A failed add must not publish")
	}
}

func TestSyncFolder(t *testing.T) {
	env := setupTestOrchestrator(t)
	ctx := context.Background()

	if _, err := env.orch.AddFolder(ctx, "abc123", "Lectures"); err != nil {
		t.Fatalf("AddFolder() failed: %v", err)
	}
	env.source.SetCount("abc123", 7)
	env.clock.Advance(time.Minute)

	f, err := env.orch.SyncFolder(ctx, "abc123")
	if err != nil {
		t.Fatalf("SyncFolder() failed: %v", err)
	}
	if f.VideoCount != 7 || !f.LastSynced.Equal(env.clock.Now()) {
		t.Errorf("Unexpected folder %+v", f)
	}

	updates := env.publisher.all()
	last := updates[len(updates)-1]
	if last.FolderID != "abc123" {
		t.Errorf("Expected update for abc123, got %q", last.FolderID)
	}
	if last.Fields["video_count"] != 7 || last.Fields["last_synced"] != "2025-10-03T10:01:00Z" {
		t.Errorf("Unexpected sync fields %v", last.Fields)
	}

	a := env.audit.last(t)
	if a.Action != ActionSync || a.Err != nil || a.Params["videoCount"] != 7 {
		t.Errorf("Unexpected audit %+v", a)
	}

	stored, _ := env.folders.Get(ctx, "abc123")
	if stored.VideoCount != 7 {
		t.Errorf("Sync result not persisted: %+v", stored)
	}
}

func TestSyncFolderErrors(t *testing.T) {
	env := setupTestOrchestrator(t)
	ctx := context.Background()
	_, _ = env.orch.AddFolder(ctx, "abc123", "Lectures")
	published := len(env.publisher.all())

	if _, err := env.orch.SyncFolder(ctx, "missing"); !errors.Is(err, folder.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown folder, got %v", err)
	}
	if _, err := env.orch.SyncFolder(ctx, "../x"); !errors.Is(err, folder.ErrInvalid) {
		t.Errorf("Expected ErrInvalid, got %v", err)
	}

	env.source.Fail("abc123", errors.New("permission denied"))
	if _, err := env.orch.SyncFolder(ctx, "abc123"); !errors.Is(err, drive.ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
	if a := env.audit.last(t); !errors.Is(a.Err, drive.ErrUnavailable) {
		t.Errorf("Expected audited failure, got %+v", a)
	}

	if len(env.publisher.all()) != published {
		t.Error("Failed syncs must not publish")
	}
}

func TestSyncFolderWithoutSource(t *testing.T) {
	env := setupTestOrchestrator(t)
	ctx := context.Background()
	_, _ = env.orch.AddFolder(ctx, "abc123", "Lectures")
	env.orch.source = nil

	if _, err := env.orch.SyncFolder(ctx, "abc123"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
}

func TestSyncFolderTimeout(t *testing.T) {
	env := setupTestOrchestrator(t)
	ctx := context.Background()
	_, _ = env.orch.AddFolder(ctx, "abc123", "Lectures")
	env.source.SetCount("abc123", 1)

	timing := config.LoadTimingBaseline()
	timing.CommandTimeoutSync = 20 * time.Millisecond
	env.orch.config = timing

	release := env.source.Block()
	defer release()

	_, err := env.orch.SyncFolder(ctx, "abc123")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestSyncFolderBusy(t *testing.T) {
	env := setupTestOrchestrator(t)
	ctx := context.Background()
	_, _ = env.orch.AddFolder(ctx, "abc123", "Lectures")
	env.source.SetCount("abc123", 2)

	release := env.source.Block()
	done := make(chan error, 1)
	go func() {
		_, err := env.orch.SyncFolder(ctx, "abc123")
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for env.source.Calls("abc123") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first sync never reached the source")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := env.orch.SyncFolder(ctx, "abc123"); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy for a concurrent sync, got %v", err)
	}

	release()
	if err := <-done; err != nil {
		t.Errorf("First sync failed: %v", err)
	}

	if _, err := env.orch.SyncFolder(ctx, "abc123"); err != nil {
		t.Errorf("Sync after completion failed: %v", err)
	}
}

func TestDeleteFolder(t *testing.T) {
	env := setupTestOrchestrator(t)
	ctx := context.Background()
	_, _ = env.orch.AddFolder(ctx, "abc123", "Lectures")

	if err := env.orch.DeleteFolder(ctx, "abc123"); err != nil {
		t.Fatalf("DeleteFolder() failed: %v", err)
	}
	updates := env.publisher.all()
	last := updates[len(updates)-1]
	if last.FolderID != "abc123" || last.Fields["deleted"] != true {
		t.Errorf("Unexpected delete update %+v", last)
	}
	if a := env.audit.last(t); a.Action != ActionDelete || a.Err != nil {
		t.Errorf("Unexpected audit %+v", a)
	}

	if err := env.orch.DeleteFolder(ctx, "abc123"); !errors.Is(err, folder.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestPublishFailureDoesNotFailCommand(t *testing.T) {
	env := setupTestOrchestrator(t)
	env.publisher.err = feed.ErrHubStopped

	if _, err := env.orch.AddFolder(context.Background(), "abc123", "Lectures"); err != nil {
		t.Errorf("AddFolder() should succeed when publishing fails, got %v", err)
	}
}

func TestSyncPublishesThroughHub(t *testing.T) {
	env := setupTestOrchestrator(t)
	ctx := context.Background()

	hub := feed.NewHub(config.LoadTimingBaseline(), feed.WithClock(env.clock),
		feed.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	defer hub.Stop()
	env.orch.publisher = hub

	_, _ = env.orch.AddFolder(ctx, "abc123", "Lectures")
	env.source.SetCount("abc123", 1)
	if _, err := env.orch.SyncFolder(ctx, "abc123"); err != nil {
		t.Fatalf("SyncFolder() failed: %v", err)
	}

	if hub.LastID() != 2 {
		t.Errorf("Expected two published updates, hub last id %d", hub.LastID())
	}
}
