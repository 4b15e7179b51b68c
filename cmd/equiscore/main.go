package main

import (
	"fmt"
	"os"

	"equiscore/internal/config"
	"equiscore/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Loaded in PersistentPreRunE
	cfg *config.Config

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "equiscore",
	Short: "EquiScore - live equestrian results board",
	Long: `EquiScore reads the XML results feed written by the scoring software,
serves it as an HTML results table and as JSON, and pushes a notification
to every connected browser when the feed file changes.

Run without arguments to start the server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}

		if err := initLogging(cmd == boardCmd); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = logging.Base()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default behavior: serve
		return runServe(cmd, args)
	},
}

// initLogging sets up the shared logger. The board owns the terminal, so
// it logs to logging.file only, or not at all.
func initLogging(fullScreen bool) error {
	if !fullScreen {
		return logging.Initialize(cfg.Logging)
	}
	if cfg.Logging.File == "" {
		logging.Use(zap.NewNop(), cfg.Logging)
		return nil
	}
	return logging.Initialize(cfg.Logging, logging.WithoutStderr())
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "equiscore.yaml", "Path to the YAML config file")

	serveFlags(rootCmd)
	serveFlags(serveCmd)

	parseCmd.Flags().BoolVar(&parseTable, "table", false, "Print standings as a table instead of JSON")
	parseCmd.Flags().StringVar(&parseFlags, "flags", "", "Flag table (default: feed.flags_path from config)")

	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(boardCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
