// Package fake provides an in-memory drive.Source for tests.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/media-admin/livefeed/internal/drive"
)

// Source is a drive.Source backed by a map of folder counts.
type Source struct {
	mu     sync.Mutex
	counts map[string]int
	errs   map[string]error
	block  chan struct{}
	calls  map[string]int
}

var _ drive.Source = (*Source)(nil)

// New creates an empty fake source.
func New() *Source {
	return &Source{
		counts: make(map[string]int),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

// SetCount sets the number of videos reported for folderID.
func (s *Source) SetCount(folderID string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[folderID] = count
	delete(s.errs, folderID)
}

// Fail makes CountVideos return err for folderID. The error is normalized
// the way a real backend error would be.
func (s *Source) Fail(folderID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[folderID] = drive.NormalizeError(err, folderID)
}

// Block makes every CountVideos call wait until the returned func is
// called or the context ends.
func (s *Source) Block() (release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{})
	s.block = ch
	var once sync.Once
	return func() {
		once.Do(func() { close(ch) })
	}
}

// Calls returns how many times folderID was counted.
func (s *Source) Calls(folderID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[folderID]
}

// CountVideos implements drive.Source.
func (s *Source) CountVideos(ctx context.Context, folderID string) (int, error) {
	s.mu.Lock()
	s.calls[folderID]++
	block := s.block
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errs[folderID]; ok {
		return 0, err
	}
	count, ok := s.counts[folderID]
	if !ok {
		return 0, &drive.SourceError{Code: drive.ErrNotFound, Original: fmt.Errorf("no folder %q", folderID)}
	}
	return count, nil
}
