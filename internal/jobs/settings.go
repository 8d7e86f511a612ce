package jobs

import (
	"github.com/jackzampolin/pagecap/internal/assembler"
	"github.com/jackzampolin/pagecap/internal/imageprep"
)

// Settings are the parameters of one capture run.
type Settings struct {
	Pages      int `json:"pages"`
	WaitMs     int `json:"wait_ms"`
	SplitLimit int `json:"split_limit"`

	CaptureFormat   imageprep.Format `json:"capture_format"`
	JPEGQuality     int              `json:"jpeg_quality"`
	MaxLongEdge     int              `json:"max_long_edge"`
	CheckpointPages int              `json:"checkpoint_pages"`

	AdaptiveDelay bool `json:"adaptive_delay"`
	MinWaitMs     int  `json:"min_wait_ms"`
	MaxWaitMs     int  `json:"max_wait_ms"`
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Pages:           10,
		WaitMs:          1500,
		CaptureFormat:   imageprep.FormatJPEG,
		JPEGQuality:     assembler.DefaultQuality,
		MaxLongEdge:     assembler.DefaultMaxLongEdge,
		CheckpointPages: assembler.DefaultCheckpointPages,
		MinWaitMs:       900,
		MaxWaitMs:       3500,
	}
}

// Normalize clamps every field into its valid range. It never rejects input
// and never substitutes defaults: every field is treated as explicitly set.
func (s Settings) Normalize() Settings {
	out := s
	out.Pages = max(out.Pages, 1)
	out.WaitMs = max(out.WaitMs, 0)
	out.SplitLimit = max(out.SplitLimit, 0)
	out.MinWaitMs = max(out.MinWaitMs, 0)
	out.MaxWaitMs = max(out.MaxWaitMs, out.MinWaitMs)

	cfg := out.AssemblerConfig().Clamp()
	out.CaptureFormat = cfg.Format
	out.JPEGQuality = cfg.Quality
	out.MaxLongEdge = cfg.MaxLongEdge
	out.CheckpointPages = cfg.CheckpointPages
	return out
}

// AssemblerConfig returns the assembly portion of the settings.
func (s Settings) AssemblerConfig() assembler.Config {
	return assembler.Config{
		Format:          s.CaptureFormat,
		Quality:         s.JPEGQuality,
		MaxLongEdge:     s.MaxLongEdge,
		CheckpointPages: s.CheckpointPages,
	}
}

// NextWait returns the pause before the next page. With adaptive pacing the
// configured wait grows by 0.6 of the last processing time, bounded by
// [MinWaitMs, MaxWaitMs].
func (s Settings) NextWait(lastProcessingMs int64) int {
	if !s.AdaptiveDelay {
		return s.WaitMs
	}
	wait := s.WaitMs + int(0.6*float64(lastProcessingMs))
	return min(max(wait, s.MinWaitMs), s.MaxWaitMs)
}
