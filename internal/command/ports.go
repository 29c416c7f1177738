package command

import (
	"context"
	"errors"
	"time"

	"github.com/media-admin/livefeed/internal/folder"
)

// OrchestratorPort defines what the API needs from the orchestrator.
type OrchestratorPort interface {
	AddFolder(ctx context.Context, idOrURL, name string) (folder.Folder, error)
	SyncFolder(ctx context.Context, folderID string) (folder.Folder, error)
	DeleteFolder(ctx context.Context, folderID string) error
}

// FolderRegistry stores folders. Implemented by *folder.Manager.
type FolderRegistry interface {
	Add(ctx context.Context, idOrURL, name string) (folder.Folder, error)
	Get(ctx context.Context, id string) (folder.Folder, error)
	RecordSync(ctx context.Context, id string, videoCount int) (folder.Folder, error)
	Remove(ctx context.Context, id string) error
}

// Publisher fans folder updates out to subscribers. Implemented by
// *feed.Hub.
type Publisher interface {
	PublishFolder(folderID string, fields map[string]any) error
}

// AuditLogger writes audit records. Implemented by *audit.Logger.
type AuditLogger interface {
	LogAction(ctx context.Context, action, folderID string, params map[string]any, err error, latency time.Duration)
}

// ErrBusy indicates a sync for the same folder is already running.
var ErrBusy = errors.New("BUSY")

// ErrUnavailable indicates the orchestrator has no video source.
var ErrUnavailable = errors.New("UNAVAILABLE")
