package folder

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the folder is not registered.
	ErrNotFound = errors.New("NOT_FOUND")

	// ErrInvalid indicates a malformed folder ID or name.
	ErrInvalid = errors.New("INVALID_FOLDER")

	// ErrExists indicates the folder is already registered.
	ErrExists = errors.New("FOLDER_EXISTS")
)

// Folder is a registered Drive folder and its last sync result.
type Folder struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	VideoCount int       `json:"videoCount"`
	LastSynced time.Time `json:"lastSynced,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Synced reports whether the folder has completed at least one sync.
func (f Folder) Synced() bool {
	return !f.LastSynced.IsZero()
}

// FolderList is the response body for the folder listing.
type FolderList struct {
	Items []Folder `json:"items"`
}
