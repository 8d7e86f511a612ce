// Package sink names and stores finished documents and single captures.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultPrefix is the file name prefix used when none is configured.
const DefaultPrefix = "kindle_book"

// ErrEmptyName is returned when a file name has no usable characters.
var ErrEmptyName = errors.New("sink: empty file name")

// Timestamp formats t as a UTC ISO-8601 instant with millisecond precision,
// with ':' and '.' replaced by '-' so it is safe in file names.
func Timestamp(t time.Time) string {
	iso := t.UTC().Format("2006-01-02T15:04:05.000Z")
	return strings.NewReplacer(":", "-", ".", "-").Replace(iso)
}

// PDFName returns the download name for a finished document. A part of 0
// means the run was not split and no part suffix is added.
func PDFName(prefix string, t time.Time, part int) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if part > 0 {
		return fmt.Sprintf("%s_%s_part%d.pdf", prefix, Timestamp(t), part)
	}
	return fmt.Sprintf("%s_%s.pdf", prefix, Timestamp(t))
}

// CaptureName returns the download name for the n-th single capture.
func CaptureName(prefix string, n int) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return fmt.Sprintf("%s_capture_%03d.png", prefix, n)
}

// Dir is a download sink backed by a local directory.
type Dir struct {
	path   string
	logger *slog.Logger
}

// NewDir returns a sink writing into path, creating it if needed.
func NewDir(path string, logger *slog.Logger) (*Dir, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}
	return &Dir{path: path, logger: logger.With("component", "sink")}, nil
}

// Path returns the sink directory.
func (d *Dir) Path() string {
	return d.path
}

// Save writes data under name and returns the final path. Existing files
// are never overwritten; a numeric suffix is added instead.
func (d *Dir) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name = filepath.Base(filepath.Clean(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", ErrEmptyName
	}

	tmp, err := os.CreateTemp(d.path, ".download-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}

	target, err := d.claim(name)
	if err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(target)
		return "", fmt.Errorf("failed to move %s into place: %w", name, err)
	}

	d.logger.Info("file saved", "path", target, "bytes", len(data))
	return target, nil
}

// SavePDF stores a finished document.
func (d *Dir) SavePDF(ctx context.Context, name string, pdf []byte) (string, error) {
	return d.Save(ctx, name, pdf)
}

// claim reserves a free path for name by creating it exclusively.
func (d *Dir) claim(name string) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 0; i < 1000; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", base, i, ext)
		}
		path := filepath.Join(d.path, candidate)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create %s: %w", candidate, err)
		}
		f.Close()
		return path, nil
	}
	return "", fmt.Errorf("no free file name for %s", name)
}
