package jobs

import (
	"github.com/jackzampolin/pagecap/internal/assembler"
	"github.com/jackzampolin/pagecap/internal/imageprep"
)

// Recovery ladder bounds.
const (
	LadderQualityStep  = 10
	LadderQualityFloor = 35
	LadderEdgeStep     = 300
	LadderEdgeFloor    = 1200
	MaxFallbackStep    = 3
)

// Degrade applies the next recovery step to the session's assembly config.
// It returns the config to push to the assembler, or a *FatalError when the
// ladder cannot help any further. The step counter only ever increases.
func (s *Session) Degrade() (assembler.Config, error) {
	step := s.FallbackStep
	s.FallbackStep = min(step+1, MaxFallbackStep)
	cfg := s.Config

	switch step {
	case 0:
		if cfg.Format.Lossy() {
			if cfg.Quality > LadderQualityFloor {
				cfg.Quality = max(cfg.Quality-LadderQualityStep, LadderQualityFloor)
			}
		} else {
			cfg.Format = imageprep.FormatJPEG
			cfg.Quality = assembler.DefaultQuality
		}
	case 1:
		if cfg.MaxLongEdge > LadderEdgeFloor {
			cfg.MaxLongEdge = max(cfg.MaxLongEdge-LadderEdgeStep, LadderEdgeFloor)
		}
	case 2:
		if s.Settings.SplitLimit == 0 {
			return s.Config, fatal(ErrSplitRecommended,
				"pages keep failing at quality %d and max edge %dpx; enable split mode (for example split every 50 pages) and start again",
				cfg.Quality, cfg.MaxLongEdge)
		}
		return s.Config, fatal(ErrSplitInsufficient,
			"pages keep failing with split mode at %d pages per part; lower the split limit, quality or max edge and start again",
			s.Settings.SplitLimit)
	default:
		return s.Config, fatal(ErrRecoveryExhausted, "recovery exhausted; change the capture settings and start again")
	}

	s.Config = cfg.Clamp()
	return s.Config, nil
}
