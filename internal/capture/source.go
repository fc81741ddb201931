package capture

import (
	"errors"
	"sync"
)

// ErrSourceNotOpen is returned when trying to read from a source that is not open.
var ErrSourceNotOpen = errors.New("frame source is not open")

// Source defines the interface for RGB-D frame providers.
type Source interface {
	Open() error
	Close() error
	ReadFrame() (*Frame, error)
	IsOpen() bool
}

// fileSource reads a fixed depth/color image pair from disk on every ReadFrame.
type fileSource struct {
	depthPath string
	colorPath string
	intr      Intrinsics
	mu        sync.Mutex
	running   bool
}

// NewFileSource creates a Source backed by a depth PNG and a color PNG.
// The files are read lazily so edits between reads are picked up.
func NewFileSource(depthPath, colorPath string, intr Intrinsics) Source {
	return &fileSource{
		depthPath: depthPath,
		colorPath: colorPath,
		intr:      intr,
	}
}

// Open marks the source readable. It fails with ErrIO if the intrinsics are unusable.
func (s *fileSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.intr.Validate(); err != nil {
		return errors.Join(ErrIO, err)
	}
	s.running = true
	return nil
}

// Close marks the source closed.
func (s *fileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

// ReadFrame loads the image pair.
func (s *fileSource) ReadFrame() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil, ErrSourceNotOpen
	}
	return LoadFrame(s.depthPath, s.colorPath, s.intr)
}

// IsOpen returns true if the source is open.
func (s *fileSource) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
