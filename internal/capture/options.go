package capture

import (
	"log/slog"
	"time"
)

// browserConfig holds internal configuration for a Browser.
type browserConfig struct {
	remoteURL       string
	startURL        string
	chromePath      string
	userDataDir     string
	autoDownload    bool
	headless        bool
	noSandbox       bool
	windowWidth     int
	windowHeight    int
	connectAttempts uint
	connectDelay    time.Duration
	targetMatch     []string
	logger          *slog.Logger
}

func defaultConfig() browserConfig {
	return browserConfig{
		windowWidth:     1600,
		windowHeight:    1200,
		connectAttempts: 5,
		connectDelay:    500 * time.Millisecond,
		targetMatch:     []string{"read.amazon."},
	}
}

// Option configures a [Browser].
type Option func(*browserConfig)

// WithRemoteURL attaches to an already running Chrome through its DevTools
// endpoint (for example http://127.0.0.1:9222) instead of launching one.
func WithRemoteURL(url string) Option {
	return func(c *browserConfig) {
		c.remoteURL = url
	}
}

// WithStartURL navigates a launched browser to url once it is up.
func WithStartURL(url string) Option {
	return func(c *browserConfig) {
		c.startURL = url
	}
}

// WithChromePath sets the Chrome or Chromium executable to launch.
func WithChromePath(path string) Option {
	return func(c *browserConfig) {
		c.chromePath = path
	}
}

// WithAutoDownload fetches a compatible Chromium when no executable is set.
func WithAutoDownload(enabled bool) Option {
	return func(c *browserConfig) {
		c.autoDownload = enabled
	}
}

// WithUserDataDir keeps the launched browser's profile (and reader login) in dir.
func WithUserDataDir(dir string) Option {
	return func(c *browserConfig) {
		c.userDataDir = dir
	}
}

// WithHeadless runs a launched browser without a window.
func WithHeadless(headless bool) Option {
	return func(c *browserConfig) {
		c.headless = headless
	}
}

// WithNoSandbox disables the Chrome sandbox. This is required when
// running as root, for example inside Docker containers.
func WithNoSandbox() Option {
	return func(c *browserConfig) {
		c.noSandbox = true
	}
}

// WithWindowSize sets the launched browser's window size in pixels.
func WithWindowSize(width, height int) Option {
	return func(c *browserConfig) {
		if width > 0 && height > 0 {
			c.windowWidth = width
			c.windowHeight = height
		}
	}
}

// WithConnectAttempts sets how many times target discovery is tried.
func WithConnectAttempts(n uint) Option {
	return func(c *browserConfig) {
		if n > 0 {
			c.connectAttempts = n
		}
	}
}

// WithTargetMatch sets URL substrings that identify the reader tab when
// attaching to a running browser. The first page target is used otherwise.
func WithTargetMatch(substrings ...string) Option {
	return func(c *browserConfig) {
		c.targetMatch = substrings
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *browserConfig) {
		c.logger = logger
	}
}
