// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/pagecap/internal/config"
	"github.com/jackzampolin/pagecap/internal/home"
	"github.com/jackzampolin/pagecap/internal/jobcfg"
	"github.com/jackzampolin/pagecap/internal/jobs"
)

// Capturer takes a one-off screenshot and saves it, returning where.
type Capturer interface {
	CaptureOne(ctx context.Context) (string, error)
}

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Controller  *jobs.Controller
	Broadcaster *jobs.Broadcaster
	Turner      jobs.PageTurner
	Capturer    Capturer
	Config      *config.Manager
	Builder     *jobcfg.Builder
	Logger      *slog.Logger
	Home        *home.Dir
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// ControllerFrom extracts the job controller from context.
func ControllerFrom(ctx context.Context) *jobs.Controller {
	if s := ServicesFrom(ctx); s != nil {
		return s.Controller
	}
	return nil
}

// BroadcasterFrom extracts the status fan-out from context.
func BroadcasterFrom(ctx context.Context) *jobs.Broadcaster {
	if s := ServicesFrom(ctx); s != nil {
		return s.Broadcaster
	}
	return nil
}

// TurnerFrom extracts the page turner from context.
func TurnerFrom(ctx context.Context) jobs.PageTurner {
	if s := ServicesFrom(ctx); s != nil {
		return s.Turner
	}
	return nil
}

// CapturerFrom extracts the single-page capturer from context.
func CapturerFrom(ctx context.Context) Capturer {
	if s := ServicesFrom(ctx); s != nil {
		return s.Capturer
	}
	return nil
}

// ConfigFrom extracts the config manager from context.
func ConfigFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Config
	}
	return nil
}

// BuilderFrom extracts the run settings builder from context.
func BuilderFrom(ctx context.Context) *jobcfg.Builder {
	if s := ServicesFrom(ctx); s != nil {
		return s.Builder
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}
