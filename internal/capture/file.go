package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// File replays a capture file as an unframed byte stream.
type File struct {
	path string

	mu     sync.Mutex
	opened bool
}

// NewFile creates a source reading path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Open opens the file for reading.
func (s *File) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open capture file %q: %w", s.path, err)
	}
	s.mu.Lock()
	s.opened = true
	s.mu.Unlock()
	return f, nil
}

// Stop is a no-op once opened; the reader is closed by its owner.
func (s *File) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return ErrNotStarted
	}
	return nil
}

// Path returns the replayed file.
func (s *File) Path() string {
	return s.path
}
