package main

import (
	"fmt"
	"os"

	"equiscore/internal/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configForce bool

// configCmd groups configuration helpers
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the EquiScore config file",
}

// configInitCmd writes the default configuration
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
		}

		if err := config.DefaultConfig().Save(configPath); err != nil {
			return err
		}
		logger.Debug("Config written", zap.String("path", configPath))
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", configPath)
		return nil
	},
}
