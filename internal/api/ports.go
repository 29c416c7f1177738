package api

import (
	"context"
	"net/http"

	"github.com/media-admin/livefeed/internal/command"
	"github.com/media-admin/livefeed/internal/feed"
	"github.com/media-admin/livefeed/internal/folder"
)

// OrchestratorPort defines what the API needs from the orchestrator.
type OrchestratorPort interface {
	AddFolder(ctx context.Context, idOrURL, name string) (folder.Folder, error)
	SyncFolder(ctx context.Context, folderID string) (folder.Folder, error)
	DeleteFolder(ctx context.Context, folderID string) error
}

// FeedPort defines what the API needs from the update hub.
type FeedPort interface {
	Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error
	SubscribeWS(ctx context.Context, w http.ResponseWriter, r *http.Request) error
	ClientCount() int
}

// FolderReadPort defines the folder read operations.
type FolderReadPort interface {
	Get(ctx context.Context, id string) (folder.Folder, error)
	List(ctx context.Context) (*folder.FolderList, error)
}

var (
	_ OrchestratorPort = (*command.Orchestrator)(nil)
	_ FeedPort         = (*feed.Hub)(nil)
	_ FolderReadPort   = (*folder.Manager)(nil)
)
