package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	v *viper.Viper

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
	logger    *slog.Logger
}

// NewManager creates a new config manager and loads initial config.
// cfgDir is searched for config.yaml when cfgFile is empty; it may be empty.
func NewManager(cfgFile, cfgDir string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
		logger:    slog.Default(),
	}

	if err := cm.initViper(cfgFile, cfgDir); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// SetLogger replaces the logger used for reload messages.
func (cm *Manager) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	cm.mu.Lock()
	cm.logger = logger.With("component", "config")
	cm.mu.Unlock()
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile, cfgDir string) error {
	v := cm.v
	for _, e := range DefaultEntries() {
		v.SetDefault(e.Key, e.Default)
	}

	// Environment variables with PAGECAP_ prefix, e.g. PAGECAP_CAPTURE_PAGES
	v.SetEnvPrefix("PAGECAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if cfgDir != "" {
			v.AddConfigPath(cfgDir)
		}
		v.AddConfigPath("$HOME/.pagecap")
	}

	// Try to read config file (not required)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// File returns the config file in use, or "" when running on defaults.
func (cm *Manager) File() string {
	if cm == nil {
		return ""
	}
	return cm.v.ConfigFileUsed()
}

// Entries returns every known key with its effective value.
// A nil Manager reports the defaults, matching what a run without
// configuration uses.
func (cm *Manager) Entries() []Entry {
	if cm == nil {
		entries := DefaultEntries()
		for i := range entries {
			entries[i].Value = entries[i].Default
		}
		return entries
	}
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	entries := DefaultEntries()
	for i := range entries {
		entries[i].Value = cm.v.Get(entries[i].Key)
	}
	return entries
}

// Lookup returns the entry for key with its effective value.
func (cm *Manager) Lookup(key string) (*Entry, error) {
	e := GetDefault(key)
	if e == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	if cm == nil {
		e.Value = e.Default
		return e, nil
	}
	cm.mu.RLock()
	e.Value = cm.v.Get(key)
	cm.mu.RUnlock()
	return e, nil
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			cm.mu.RLock()
			cm.logger.Warn("config reload failed", "file", e.Name, "error", err)
			cm.mu.RUnlock()
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		logger := cm.logger
		cm.mu.Unlock()

		logger.Info("config reloaded", "file", e.Name)
		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

// ParseLogLevel maps a log_level value to a slog level. Unknown values are info.
func ParseLogLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# pagecap configuration
# Every key can be overridden with a PAGECAP_ environment variable,
# e.g. PAGECAP_CAPTURE_PAGES=300 or PAGECAP_BROWSER_REMOTE_URL=ws://127.0.0.1:9222/...
# Changes under capture: apply to the next run when the server is watching this file.

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
