package jobcfg

import (
	"context"
	"testing"
	"time"

	"github.com/jackzampolin/pagecap/internal/config"
	"github.com/jackzampolin/pagecap/internal/imageprep"
)

type staticSource struct{ cfg *config.Config }

func (s staticSource) Get() *config.Config { return s.cfg }

func ptr[T any](v T) *T { return &v }

func TestBuilder_Defaults(t *testing.T) {
	ctx := context.Background()

	t.Run("nil source uses compiled defaults", func(t *testing.T) {
		s := NewBuilder(nil, nil).Defaults(ctx)
		if s.Pages != 10 || s.WaitMs != 1500 || s.CaptureFormat != imageprep.FormatJPEG || s.JPEGQuality != 82 {
			t.Errorf("Defaults() = %+v", s)
		}
	})

	t.Run("reads configured capture section", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Capture.Pages = 300
		cfg.Capture.SplitLimit = 50
		cfg.Capture.Format = "png"

		s := NewBuilder(staticSource{cfg}, nil).Defaults(ctx)
		if s.Pages != 300 || s.SplitLimit != 50 || s.CaptureFormat != imageprep.FormatPNG {
			t.Errorf("Defaults() = %+v", s)
		}
	})
}

func TestBuilder_Settings(t *testing.T) {
	ctx := context.Background()
	b := NewBuilder(staticSource{config.DefaultConfig()}, nil)

	tests := []struct {
		name  string
		req   *Request
		check func(t *testing.T, got string, pages, quality, edge, split int, adaptive bool)
	}{
		{
			name: "overrides only provided fields",
			req:  &Request{Pages: ptr(25), SplitLimit: ptr(10)},
			check: func(t *testing.T, format string, pages, quality, edge, split int, _ bool) {
				if pages != 25 || split != 10 || quality != 82 || edge != 2200 || format != "jpeg" {
					t.Errorf("got pages=%d split=%d quality=%d edge=%d format=%s", pages, split, quality, edge, format)
				}
			},
		},
		{
			name: "clamps out of range values",
			req:  &Request{Pages: ptr(0), JPEGQuality: ptr(500), MaxLongEdge: ptr(10), SplitLimit: ptr(-4)},
			check: func(t *testing.T, _ string, pages, quality, edge, split int, _ bool) {
				if pages != 1 || quality != 100 || edge != 800 || split != 0 {
					t.Errorf("got pages=%d quality=%d edge=%d split=%d", pages, quality, edge, split)
				}
			},
		},
		{
			name: "unknown format falls back to jpeg",
			req:  &Request{CaptureFormat: ptr("webp")},
			check: func(t *testing.T, format string, _, _, _, _ int, _ bool) {
				if format != "jpeg" {
					t.Errorf("format = %s, want jpeg", format)
				}
			},
		},
		{
			name: "png and adaptive",
			req:  &Request{CaptureFormat: ptr("PNG"), AdaptiveDelay: ptr(true)},
			check: func(t *testing.T, format string, _, _, _, _ int, adaptive bool) {
				if format != "png" || !adaptive {
					t.Errorf("format = %s adaptive = %v", format, adaptive)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := b.Settings(ctx, tt.req)
			tt.check(t, string(s.CaptureFormat), s.Pages, s.JPEGQuality, s.MaxLongEdge, s.SplitLimit, s.AdaptiveDelay)
		})
	}

	t.Run("explicit zeros and negatives are clamped, not defaulted", func(t *testing.T) {
		s := b.Settings(ctx, &Request{JPEGQuality: ptr(0), CheckpointPages: ptr(-4), MaxLongEdge: ptr(0)})
		if s.JPEGQuality != 10 || s.CheckpointPages != 1 || s.MaxLongEdge != 800 {
			t.Errorf("got quality=%d checkpoint=%d edge=%d, want 10, 1, 800",
				s.JPEGQuality, s.CheckpointPages, s.MaxLongEdge)
		}
	})

	t.Run("max wait never below min wait", func(t *testing.T) {
		s := b.Settings(ctx, &Request{MinWaitMs: ptr(4000), MaxWaitMs: ptr(1000)})
		if s.MaxWaitMs != 4000 {
			t.Errorf("MaxWaitMs = %d, want 4000", s.MaxWaitMs)
		}
	})
}

func TestBuilder_HostConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Assembler.CallTimeout = 45 * time.Second
	cfg.Assembler.MailboxSize = 3
	cfg.Output.FilePrefix = "novel"

	b := NewBuilder(staticSource{cfg}, nil)
	hc := b.HostConfig(nil)
	if hc.CallTimeout != 45*time.Second || hc.QueueSize != 3 {
		t.Errorf("HostConfig() = %+v", hc)
	}
	if b.FilePrefix() != "novel" {
		t.Errorf("FilePrefix() = %q", b.FilePrefix())
	}
}
