package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/pagecap/internal/api"
	"github.com/jackzampolin/pagecap/internal/config"
	"github.com/jackzampolin/pagecap/internal/home"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and create the configuration file",
}

var configForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with every default",
	Long: `Write a config file with every default to the home directory
(~/.pagecap/config.yaml), or to --config when given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, exists := cfgFile, false
		if path == "" {
			h, err := home.New(homeDir)
			if err != nil {
				return err
			}
			if err := h.EnsureExists(); err != nil {
				return err
			}
			path, exists = h.ConfigPath(), h.ConfigExists()
		} else if _, err := os.Stat(path); err == nil {
			exists = true
		}

		if exists && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

var configShowPrefix string

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show every setting with its effective value and default.
Values come from the config file and PAGECAP_* environment variables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, mgr, _, err := setup()
		if err != nil {
			return err
		}
		return api.Output(map[string]any{
			"file":     mgr.File(),
			"settings": config.FilterEntries(mgr.Entries(), configShowPrefix),
		})
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")
	configShowCmd.Flags().StringVar(&configShowPrefix, "prefix", "", "Filter by key prefix (e.g., 'capture.')")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
