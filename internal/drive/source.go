package drive

import (
	"context"
	"path/filepath"
	"strings"
)

// Source reports how many videos a folder holds.
type Source interface {
	// CountVideos returns the number of video files in the folder.
	CountVideos(ctx context.Context, folderID string) (int, error)
}

// videoExtensions are the file types counted as videos.
var videoExtensions = map[string]bool{
	".mp4":  true,
	".m4v":  true,
	".mov":  true,
	".mkv":  true,
	".webm": true,
	".avi":  true,
	".wmv":  true,
	".mpg":  true,
	".mpeg": true,
}

// IsVideo reports whether name has a video file extension.
func IsVideo(name string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(name))]
}
