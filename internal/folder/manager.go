//
//
package folder

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/media-admin/livefeed/internal/clock"
)

// validID matches Drive folder IDs. IDs double as directory names for local
// sources, so path separators and dots are never accepted.
var validID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

const maxNameLength = 255

// Manager validates folder operations on top of a Store.
type Manager struct {
	store  *Store
	clock  clock.Clock
	logger *slog.Logger
}

// NewManager creates a manager over store.
func NewManager(store *Store, clk clock.Clock, logger *slog.Logger) *Manager {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, clock: clk, logger: logger.With("component", "folder")}
}

// Add registers a folder. idOrURL is a bare folder ID or a Drive folder URL;
// an empty name defaults to the ID.
func (m *Manager) Add(ctx context.Context, idOrURL, name string) (Folder, error) {
	id, err := ExtractID(idOrURL)
	if err != nil {
		return Folder{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = id
	}
	if len(name) > maxNameLength {
		return Folder{}, fmt.Errorf("name longer than %d bytes: %w", maxNameLength, ErrInvalid)
	}

	f := Folder{ID: id, Name: name, CreatedAt: m.clock.Now().UTC()}
	if err := m.store.Insert(ctx, f); err != nil {
		return Folder{}, err
	}
	m.logger.Info("folder added", "folder_id", id, "name", name)
	return f, nil
}

// Get returns one folder.
func (m *Manager) Get(ctx context.Context, id string) (Folder, error) {
	if !validID.MatchString(id) {
		return Folder{}, fmt.Errorf("folder id %q: %w", id, ErrInvalid)
	}
	return m.store.Get(ctx, id)
}

// List returns every registered folder.
func (m *Manager) List(ctx context.Context) (*FolderList, error) {
	items, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return &FolderList{Items: items}, nil
}

// RecordSync stores a sync result and returns the updated folder.
func (m *Manager) RecordSync(ctx context.Context, id string, videoCount int) (Folder, error) {
	if videoCount < 0 {
		return Folder{}, fmt.Errorf("negative video count %d: %w", videoCount, ErrInvalid)
	}
	syncedAt := m.clock.Now().UTC().Truncate(time.Millisecond)
	if err := m.store.UpdateSync(ctx, id, videoCount, syncedAt); err != nil {
		return Folder{}, err
	}
	return m.store.Get(ctx, id)
}

// Remove deletes a folder.
func (m *Manager) Remove(ctx context.Context, id string) error {
	if !validID.MatchString(id) {
		return fmt.Errorf("folder id %q: %w", id, ErrInvalid)
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.logger.Info("folder removed", "folder_id", id)
	return nil
}

// ExtractID returns the folder ID from a bare ID or a Drive URL of the form
// .../folders/<id> or ...?id=<id>.
func ExtractID(idOrURL string) (string, error) {
	raw := strings.TrimSpace(idOrURL)
	if raw == "" {
		return "", fmt.Errorf("folder id cannot be empty: %w", ErrInvalid)
	}

	id := raw
	if strings.Contains(raw, "/") || strings.Contains(raw, "drive.google.com") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("parse folder url: %w", ErrInvalid)
		}
		switch {
		case strings.Contains(u.Path, "folders/"):
			id = strings.SplitN(u.Path[strings.Index(u.Path, "folders/")+len("folders/"):], "/", 2)[0]
		case u.Query().Get("id") != "":
			id = u.Query().Get("id")
		default:
			return "", fmt.Errorf("unrecognised Drive folder url %q: %w", raw, ErrInvalid)
		}
	}

	if !validID.MatchString(id) {
		return "", fmt.Errorf("folder id %q: %w", id, ErrInvalid)
	}
	return id, nil
}
