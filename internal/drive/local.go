package drive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalDir counts videos in <Root>/<folderID>, the layout a Drive sync
// client leaves on disk. Subdirectories are included.
type LocalDir struct {
	Root string
}

// NewLocalDir returns a source rooted at root.
func NewLocalDir(root string) *LocalDir {
	return &LocalDir{Root: root}
}

// CountVideos walks the folder directory and counts video files.
func (l *LocalDir) CountVideos(ctx context.Context, folderID string) (int, error) {
	if folderID == "" || folderID != filepath.Base(folderID) || folderID == "." || folderID == ".." {
		return 0, &SourceError{Code: ErrNotFound, Original: fmt.Errorf("invalid folder id %q", folderID)}
	}

	dir := filepath.Join(l.Root, folderID)
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return 0, &SourceError{Code: ErrNotFound, Original: err, Details: dir}
	case err != nil:
		return 0, &SourceError{Code: ErrUnavailable, Original: err, Details: dir}
	case !info.IsDir():
		return 0, &SourceError{Code: ErrNotFound, Original: fmt.Errorf("%s is not a directory", dir), Details: dir}
	}

	count := 0
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.Type().IsRegular() && IsVideo(d.Name()) {
			count++
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		if errors.Is(err, fs.ErrPermission) {
			return 0, &SourceError{Code: ErrUnavailable, Original: err, Details: dir}
		}
		return 0, NormalizeError(err, dir)
	}
	return count, nil
}
