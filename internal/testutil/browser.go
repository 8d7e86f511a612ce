package testutil

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"time"

	"github.com/jackzampolin/pagecap/internal/imageprep"
	"github.com/jackzampolin/pagecap/internal/jobs"
)

// PNG returns a w x h gradient image encoded as PNG.
func PNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// FakeBrowser stands in for the Chrome tab. Every screenshot is the same
// small PNG.
type FakeBrowser struct {
	mu     sync.Mutex
	frame  []byte
	delay  time.Duration
	err    error
	shots  int
	closed bool
}

// NewFakeBrowser returns a browser whose screenshots are w x h.
func NewFakeBrowser(w, h int) *FakeBrowser {
	return &FakeBrowser{frame: PNG(w, h)}
}

// SetDelay makes each screenshot take d.
func (b *FakeBrowser) SetDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delay = d
}

// SetErr fails every screenshot with err; nil clears it.
func (b *FakeBrowser) SetErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

func (b *FakeBrowser) Screenshot(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	delay := b.delay
	b.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.New("browser closed")
	}
	if b.err != nil {
		return nil, b.err
	}
	b.shots++
	return b.frame, nil
}

func (b *FakeBrowser) CaptureFrame(ctx context.Context) (jobs.Frame, error) {
	buf, err := b.Screenshot(ctx)
	if err != nil {
		return jobs.Frame{}, err
	}
	return jobs.Frame{
		DataURI: imageprep.EncodeDataURI(imageprep.FormatPNG.MimeType(), buf),
		Format:  imageprep.FormatPNG,
	}, nil
}

func (b *FakeBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Shots returns how many screenshots were taken.
func (b *FakeBrowser) Shots() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.shots
}

// Closed reports whether Close was called.
func (b *FakeBrowser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// FakeTurner counts page turns.
type FakeTurner struct {
	Result string

	mu    sync.Mutex
	turns int
}

func (t *FakeTurner) Turn(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns++
	if t.Result == "" {
		return "key ArrowLeft", nil
	}
	return t.Result, nil
}

// Turns returns how many times Turn was called.
func (t *FakeTurner) Turns() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.turns
}
