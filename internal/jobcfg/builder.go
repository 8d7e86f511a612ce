// Package jobcfg builds run settings from configuration. It bridges the
// config and jobs packages, reading the config at START time so that
// hot-reloaded defaults apply to the next run. Fields set on a Request
// override the configured defaults.
package jobcfg

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/pagecap/internal/assembler"
	"github.com/jackzampolin/pagecap/internal/config"
	"github.com/jackzampolin/pagecap/internal/imageprep"
	"github.com/jackzampolin/pagecap/internal/jobs"
)

// Source provides the current configuration. *config.Manager implements it.
type Source interface {
	Get() *config.Config
}

// Request carries per-run overrides. Nil fields use the configured default.
type Request struct {
	Pages           *int    `json:"pages,omitempty"`
	WaitMs          *int    `json:"wait_ms,omitempty"`
	SplitLimit      *int    `json:"split_limit,omitempty"`
	CaptureFormat   *string `json:"capture_format,omitempty"`
	JPEGQuality     *int    `json:"jpeg_quality,omitempty"`
	MaxLongEdge     *int    `json:"max_long_edge,omitempty"`
	CheckpointPages *int    `json:"checkpoint_pages,omitempty"`
	AdaptiveDelay   *bool   `json:"adaptive_delay,omitempty"`
	MinWaitMs       *int    `json:"min_wait_ms,omitempty"`
	MaxWaitMs       *int    `json:"max_wait_ms,omitempty"`
}

// Builder reads run settings from the config source.
type Builder struct {
	source Source
	logger *slog.Logger
}

// NewBuilder creates a new builder that reads from the given source.
// A nil source uses config.DefaultConfig.
func NewBuilder(source Source, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{source: source, logger: logger}
}

func (b *Builder) config() *config.Config {
	if b.source != nil {
		if cfg := b.source.Get(); cfg != nil {
			return cfg
		}
	}
	return config.DefaultConfig()
}

// Defaults returns the configured settings without overrides, normalized.
func (b *Builder) Defaults(ctx context.Context) jobs.Settings {
	return b.Settings(ctx, nil)
}

// Settings merges req over the configured defaults and normalizes the result.
// Out-of-range values are clamped, never rejected.
func (b *Builder) Settings(ctx context.Context, req *Request) jobs.Settings {
	c := b.config().Capture
	s := jobs.Settings{
		Pages:           c.Pages,
		WaitMs:          c.WaitMs,
		SplitLimit:      c.SplitLimit,
		JPEGQuality:     c.JPEGQuality,
		MaxLongEdge:     c.MaxLongEdge,
		CheckpointPages: c.CheckpointPages,
		AdaptiveDelay:   c.AdaptiveDelay,
		MinWaitMs:       c.MinWaitMs,
		MaxWaitMs:       c.MaxWaitMs,
	}
	format := c.Format

	if req != nil {
		setInt(&s.Pages, req.Pages)
		setInt(&s.WaitMs, req.WaitMs)
		setInt(&s.SplitLimit, req.SplitLimit)
		setInt(&s.JPEGQuality, req.JPEGQuality)
		setInt(&s.MaxLongEdge, req.MaxLongEdge)
		setInt(&s.CheckpointPages, req.CheckpointPages)
		setInt(&s.MinWaitMs, req.MinWaitMs)
		setInt(&s.MaxWaitMs, req.MaxWaitMs)
		if req.AdaptiveDelay != nil {
			s.AdaptiveDelay = *req.AdaptiveDelay
		}
		if req.CaptureFormat != nil {
			format = *req.CaptureFormat
		}
	}

	if f, ok := imageprep.ParseFormat(format); ok {
		s.CaptureFormat = f
	} else {
		b.logger.DebugContext(ctx, "unknown capture format, using jpeg", "format", format)
		s.CaptureFormat = imageprep.FormatJPEG
	}
	return s.Normalize()
}

// HostConfig returns the assembler host settings.
func (b *Builder) HostConfig(logger *slog.Logger) assembler.HostConfig {
	a := b.config().Assembler
	return assembler.HostConfig{
		Name:        "assembler",
		Logger:      logger,
		QueueSize:   a.MailboxSize,
		CallTimeout: a.CallTimeout,
	}
}

// FilePrefix returns the configured output prefix.
func (b *Builder) FilePrefix() string {
	return b.config().Output.FilePrefix
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
