package config

import (
	"errors"
	"sort"
	"strings"
)

// Entry describes a single configuration key.
type Entry struct {
	Key         string `json:"key" yaml:"key"`
	Value       any    `json:"value" yaml:"value"`
	Default     any    `json:"default" yaml:"default"`
	Description string `json:"description" yaml:"description"`
}

// DefaultEntries returns every known key with its default value.
// Values mirror DefaultConfig.
func DefaultEntries() []Entry {
	d := DefaultConfig()
	return []Entry{
		// Browser
		{Key: "browser.remote_url", Default: d.Browser.RemoteURL, Description: "DevTools URL of a running Chrome to attach to; empty launches one"},
		{Key: "browser.start_url", Default: d.Browser.StartURL, Description: "Page opened in a launched browser"},
		{Key: "browser.chrome_path", Default: d.Browser.ChromePath, Description: "Chrome executable; empty searches PATH"},
		{Key: "browser.auto_download", Default: d.Browser.AutoDownload, Description: "Download Chromium when no executable is configured"},
		{Key: "browser.headless", Default: d.Browser.Headless, Description: "Run a launched browser without a window"},
		{Key: "browser.no_sandbox", Default: d.Browser.NoSandbox, Description: "Disable the Chrome sandbox (containers)"},
		{Key: "browser.window_width", Default: d.Browser.WindowWidth, Description: "Window width in pixels"},
		{Key: "browser.window_height", Default: d.Browser.WindowHeight, Description: "Window height in pixels"},
		{Key: "browser.connect_attempts", Default: d.Browser.ConnectAttempts, Description: "Attempts to find the reader tab when attaching"},

		// Capture
		{Key: "capture.pages", Default: d.Capture.Pages, Description: "Pages to capture per run"},
		{Key: "capture.wait_ms", Default: d.Capture.WaitMs, Description: "Pause after each page turn"},
		{Key: "capture.split_limit", Default: d.Capture.SplitLimit, Description: "Pages per part; 0 writes one document"},
		{Key: "capture.format", Default: d.Capture.Format, Description: "Page image format (jpeg or png)"},
		{Key: "capture.jpeg_quality", Default: d.Capture.JPEGQuality, Description: "JPEG quality (10-100)"},
		{Key: "capture.max_long_edge", Default: d.Capture.MaxLongEdge, Description: "Longest page edge in pixels (min 800)"},
		{Key: "capture.checkpoint_pages", Default: d.Capture.CheckpointPages, Description: "Pages between checkpoints"},
		{Key: "capture.adaptive_delay", Default: d.Capture.AdaptiveDelay, Description: "Stretch the pause by processing time"},
		{Key: "capture.min_wait_ms", Default: d.Capture.MinWaitMs, Description: "Lower bound of the adaptive pause"},
		{Key: "capture.max_wait_ms", Default: d.Capture.MaxWaitMs, Description: "Upper bound of the adaptive pause"},

		// Turn
		{Key: "turn.direction", Default: d.Turn.Direction, Description: "Reading direction (rtl or ltr)"},
		{Key: "turn.selectors", Default: d.Turn.Selectors, Description: "Page-turn selectors tried before the arrow key"},

		// Assembler
		{Key: "assembler.call_timeout", Default: d.Assembler.CallTimeout, Description: "Timeout for one assembler round-trip"},
		{Key: "assembler.mailbox_size", Default: d.Assembler.MailboxSize, Description: "Queued assembler requests"},

		// Output
		{Key: "output.dir", Default: d.Output.Dir, Description: "Download directory; empty uses {home}/downloads"},
		{Key: "output.file_prefix", Default: d.Output.FilePrefix, Description: "File name prefix for PDFs and captures"},

		{Key: "log_level", Default: d.LogLevel, Description: "debug, info, warn or error"},
	}
}

// GetDefault returns the entry for key, or nil if the key is unknown.
func GetDefault(key string) *Entry {
	for _, entry := range DefaultEntries() {
		if entry.Key == key {
			return &entry
		}
	}
	return nil
}

// FilterEntries returns entries whose key starts with prefix, sorted by key.
func FilterEntries(entries []Entry, prefix string) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Key, prefix) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ErrUnknownKey is returned for keys not in DefaultEntries.
var ErrUnknownKey = errors.New("unknown config key")
