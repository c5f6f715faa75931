package media

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// StagingStore spools uploaded section media to local disk until the commit
// run pushes it to the processing service. Files are keyed by draft session
// and section local ID, so concurrent sessions never collide.
type StagingStore struct {
	mu    sync.Mutex
	dir   string
	sizes map[string]int64
}

// NewStagingStore creates the staging directory if needed.
func NewStagingStore(dir string) (*StagingStore, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "editor-media-staging")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &StagingStore{dir: dir, sizes: make(map[string]int64)}, nil
}

func stagingName(courseID int64, author, localID string) string {
	return fmt.Sprintf("%d-%x-%s", courseID, author, localID)
}

// Stage spools r to disk, replacing any previous file for the same section.
func (s *StagingStore) Stage(courseID int64, author, localID string, r io.Reader) (int64, error) {
	name := stagingName(courseID, author, localID)
	f, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return 0, fmt.Errorf("create staged file: %w", err)
	}
	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(f.Name())
		return 0, fmt.Errorf("stage media: %w", err)
	}

	s.mu.Lock()
	s.sizes[name] = n
	s.mu.Unlock()
	return n, nil
}

// Open returns a reader over the staged bytes together with their size.
func (s *StagingStore) Open(courseID int64, author, localID string) (io.ReadCloser, int64, error) {
	name := stagingName(courseID, author, localID)

	s.mu.Lock()
	size, ok := s.sizes[name]
	s.mu.Unlock()
	if !ok {
		return nil, 0, fmt.Errorf("no staged media for section %s", localID)
	}

	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		return nil, 0, fmt.Errorf("open staged file: %w", err)
	}
	return f, size, nil
}

// Remove drops the staged file for one section.
func (s *StagingStore) Remove(courseID int64, author, localID string) {
	name := stagingName(courseID, author, localID)
	s.mu.Lock()
	delete(s.sizes, name)
	s.mu.Unlock()
	os.Remove(filepath.Join(s.dir, name))
}
