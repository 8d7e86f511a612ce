package capture

import (
	"context"
	"sync"

	"github.com/jackzampolin/pagecap/internal/sink"
)

// Screenshotter returns a PNG of the visible page.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// Saver stores a named file and returns its location.
type Saver interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// Single saves one-off captures as numbered PNGs.
type Single struct {
	Source Screenshotter
	Sink   Saver
	Prefix string

	mu sync.Mutex
	n  int
}

// CaptureOne screenshots the page and saves it as <prefix>_capture_<NNN>.png.
func (s *Single) CaptureOne(ctx context.Context) (string, error) {
	buf, err := s.Source.Screenshot(ctx)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.n++
	n := s.n
	s.mu.Unlock()

	return s.Sink.Save(ctx, sink.CaptureName(s.Prefix, n), buf)
}
