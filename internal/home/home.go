// Package home resolves the pagecap home directory and the files kept in it.
//
// Layout:
//
//	~/.pagecap/
//	  config.yaml
//	  downloads/         finished PDFs and single captures (default sink)
//	  browser/profile/   Chrome user data, so the reader login survives restarts
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the directory created under the user's home.
	DefaultDirName = ".pagecap"

	// EnvVar overrides the home directory when no explicit path is given.
	EnvVar = "PAGECAP_HOME"

	DownloadsDirName = "downloads"
	BrowserDirName   = "browser"
	ProfileDirName   = "profile"
	ConfigFileName   = "config.yaml"
)

// Dir is a resolved home directory. It does not touch the filesystem until
// EnsureExists is called.
type Dir struct {
	path string
}

// New resolves the home directory. An empty path falls back to $PAGECAP_HOME,
// then to ~/.pagecap.
func New(path string) (*Dir, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(userHome, DefaultDirName)
	}
	return &Dir{path: path}, nil
}

func (d *Dir) Path() string { return d.path }

// DownloadsPath is where documents land when output.dir is unset.
func (d *Dir) DownloadsPath() string {
	return filepath.Join(d.path, DownloadsDirName)
}

func (d *Dir) BrowserPath() string {
	return filepath.Join(d.path, BrowserDirName)
}

// ProfilePath is the Chrome user data directory.
func (d *Dir) ProfilePath() string {
	return filepath.Join(d.BrowserPath(), ProfileDirName)
}

func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// EnsureExists creates the home directory with its downloads and profile
// subdirectories.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{d.DownloadsPath(), d.ProfilePath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists reports whether config.yaml is present.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
