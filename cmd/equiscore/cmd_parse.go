package main

import (
	"encoding/json"
	"fmt"

	"equiscore/cmd/equiscore/ui"
	"equiscore/internal/feed"

	"github.com/spf13/cobra"
)

var (
	parseTable bool
	parseFlags string
)

// parseCmd parses a feed once and prints it
var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Parse a results feed and print it",
	Long: `Parses the results feed once and prints the same JSON that /data serves,
or the standings as terminal tables with --table. Useful for checking a feed
before the event starts.

Examples:
  equiscore parse data/equiscore.xml
  equiscore parse --table`,
	Args: cobra.MaximumNArgs(1),
	RunE: runParse,
}

func runParse(cmd *cobra.Command, args []string) error {
	path := cfg.Feed.Path
	if len(args) == 1 {
		path = args[0]
	}
	flagsPath := cfg.Feed.FlagsPath
	if parseFlags != "" {
		flagsPath = parseFlags
	}

	comps, err := feed.ParseFile(path, loadFlagTable(flagsPath))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if parseTable {
		fmt.Fprint(out, ui.RenderStandings(comps, ui.DefaultStyles()))
		return nil
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(comps); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return nil
}
