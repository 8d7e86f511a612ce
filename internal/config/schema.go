package config

import "time"

// Config holds pagecap configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Browser   BrowserCfg   `mapstructure:"browser" yaml:"browser"`
	Capture   CaptureCfg   `mapstructure:"capture" yaml:"capture"`
	Turn      TurnCfg      `mapstructure:"turn" yaml:"turn"`
	Assembler AssemblerCfg `mapstructure:"assembler" yaml:"assembler"`
	Output    OutputCfg    `mapstructure:"output" yaml:"output"`
	LogLevel  string       `mapstructure:"log_level" yaml:"log_level"`
}

// BrowserCfg configures the Chrome session.
type BrowserCfg struct {
	// RemoteURL attaches to a running Chrome (e.g. ws://127.0.0.1:9222/devtools/browser/...).
	// Empty launches a new browser.
	RemoteURL       string `mapstructure:"remote_url" yaml:"remote_url"`
	StartURL        string `mapstructure:"start_url" yaml:"start_url"`
	ChromePath      string `mapstructure:"chrome_path" yaml:"chrome_path"`
	AutoDownload    bool   `mapstructure:"auto_download" yaml:"auto_download"` // fetch Chromium when none is installed
	Headless        bool   `mapstructure:"headless" yaml:"headless"`
	NoSandbox       bool   `mapstructure:"no_sandbox" yaml:"no_sandbox"`
	WindowWidth     int    `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight    int    `mapstructure:"window_height" yaml:"window_height"`
	ConnectAttempts int    `mapstructure:"connect_attempts" yaml:"connect_attempts"`
}

// CaptureCfg holds the defaults for START requests.
type CaptureCfg struct {
	Pages           int    `mapstructure:"pages" yaml:"pages"`
	WaitMs          int    `mapstructure:"wait_ms" yaml:"wait_ms"`
	SplitLimit      int    `mapstructure:"split_limit" yaml:"split_limit"` // 0 = single document
	Format          string `mapstructure:"format" yaml:"format"`           // "jpeg" or "png"
	JPEGQuality     int    `mapstructure:"jpeg_quality" yaml:"jpeg_quality"`
	MaxLongEdge     int    `mapstructure:"max_long_edge" yaml:"max_long_edge"`
	CheckpointPages int    `mapstructure:"checkpoint_pages" yaml:"checkpoint_pages"`
	AdaptiveDelay   bool   `mapstructure:"adaptive_delay" yaml:"adaptive_delay"`
	MinWaitMs       int    `mapstructure:"min_wait_ms" yaml:"min_wait_ms"`
	MaxWaitMs       int    `mapstructure:"max_wait_ms" yaml:"max_wait_ms"`
}

// TurnCfg selects how pages are turned.
type TurnCfg struct {
	Direction string   `mapstructure:"direction" yaml:"direction"` // "rtl" or "ltr"
	Selectors []string `mapstructure:"selectors" yaml:"selectors"` // empty = built-in list for direction
}

// AssemblerCfg tunes the assembler goroutine.
type AssemblerCfg struct {
	CallTimeout time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
	MailboxSize int           `mapstructure:"mailbox_size" yaml:"mailbox_size"`
}

// OutputCfg controls where and how files are saved.
type OutputCfg struct {
	// Dir overrides {home}/downloads.
	Dir        string `mapstructure:"dir" yaml:"dir"`
	FilePrefix string `mapstructure:"file_prefix" yaml:"file_prefix"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserCfg{
			StartURL:        "https://read.amazon.com/",
			AutoDownload:    true,
			WindowWidth:     1600,
			WindowHeight:    1200,
			ConnectAttempts: 5,
		},
		Capture: CaptureCfg{
			Pages:           10,
			WaitMs:          1500,
			Format:          "jpeg",
			JPEGQuality:     82,
			MaxLongEdge:     2200,
			CheckpointPages: 20,
			MinWaitMs:       900,
			MaxWaitMs:       3500,
		},
		Turn: TurnCfg{
			Direction: "rtl",
		},
		Assembler: AssemblerCfg{
			CallTimeout: 2 * time.Minute,
			MailboxSize: 1,
		},
		Output: OutputCfg{
			FilePrefix: "kindle_book",
		},
		LogLevel: "info",
	}
}
