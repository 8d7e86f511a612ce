package sink

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPDFName(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 7, 123_000_000, time.UTC)

	tests := []struct {
		name   string
		prefix string
		part   int
		want   string
	}{
		{"single file", "kindle_book", 0, "kindle_book_2024-03-09T14-05-07-123Z.pdf"},
		{"split part", "kindle_book", 3, "kindle_book_2024-03-09T14-05-07-123Z_part3.pdf"},
		{"default prefix", "", 1, "kindle_book_2024-03-09T14-05-07-123Z_part1.pdf"},
		{"custom prefix", "novel", 0, "novel_2024-03-09T14-05-07-123Z.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PDFName(tt.prefix, ts, tt.part); got != tt.want {
				t.Errorf("PDFName = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTimestampUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	ts := time.Date(2024, 1, 1, 2, 0, 0, 0, loc)
	if got := Timestamp(ts); got != "2024-01-01T00-00-00-000Z" {
		t.Errorf("Timestamp = %q", got)
	}
}

func TestCaptureName(t *testing.T) {
	if got := CaptureName("kindle", 7); got != "kindle_capture_007.png" {
		t.Errorf("CaptureName = %q", got)
	}
}

func TestDir_Save(t *testing.T) {
	root := filepath.Join(t.TempDir(), "downloads")
	d, err := NewDir(root, nil)
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	ctx := context.Background()

	first, err := d.SavePDF(ctx, "book.pdf", []byte("one"))
	if err != nil {
		t.Fatalf("SavePDF: %v", err)
	}
	if first != filepath.Join(root, "book.pdf") {
		t.Errorf("path = %s", first)
	}

	second, err := d.SavePDF(ctx, "book.pdf", []byte("two"))
	if err != nil {
		t.Fatalf("SavePDF: %v", err)
	}
	if second != filepath.Join(root, "book (1).pdf") {
		t.Errorf("second path = %s, want numbered copy", second)
	}

	data, _ := os.ReadFile(first)
	if string(data) != "one" {
		t.Errorf("first file overwritten: %q", data)
	}

	entries, _ := os.ReadDir(root)
	if len(entries) != 2 {
		t.Errorf("expected 2 files (no temp leftovers), got %d", len(entries))
	}
}

func TestDir_SaveStripsDirectories(t *testing.T) {
	root := t.TempDir()
	d, _ := NewDir(root, nil)

	path, err := d.Save(context.Background(), "../../escape.png", []byte("x"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Dir(path) != root {
		t.Errorf("file written outside sink: %s", path)
	}
}

func TestDir_SaveCancelled(t *testing.T) {
	d, _ := NewDir(t.TempDir(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Save(ctx, "a.pdf", nil); err == nil {
		t.Error("expected error for cancelled context")
	}
}
