package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/pagecap/internal/api"
	"github.com/jackzampolin/pagecap/internal/config"
	"github.com/jackzampolin/pagecap/internal/home"
	"github.com/jackzampolin/pagecap/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "pagecap",
	Short: "Capture e-reader pages into PDF documents",
	Long: `pagecap drives a Chrome tab showing an e-reader, screenshots each page,
and assembles the pages into PDF files in your downloads folder.

A run:
  - Captures the visible page, then turns to the next one
  - Downscales and re-encodes each page (JPEG or PNG)
  - Checkpoints the document so memory stays bounded
  - Optionally splits long books into numbered parts
  - Steps down image quality when a page fails to encode or embed

Run "pagecap serve" for the HTTP API and control panel, or "pagecap run"
for a single run in the terminal.`,
	Version:      version.GitRelease,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.pagecap/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "pagecap home directory (default: ~/.pagecap)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "", "log level: debug, info, warn or error (default: log_level from config)",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}

// setup resolves the home directory, loads configuration and builds the
// logger shared by local commands.
func setup() (*home.Dir, *config.Manager, *slog.Logger, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, nil, nil, err
	}

	mgr, err := config.NewManager(cfgFile, h.Path())
	if err != nil {
		return nil, nil, nil, err
	}

	level := mgr.Get().LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.ParseLogLevel(level),
	}))
	mgr.SetLogger(logger)

	if f := mgr.File(); f != "" {
		logger.Debug("config loaded", "file", f)
	}
	return h, mgr, logger, nil
}
