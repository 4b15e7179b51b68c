package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"equiscore/cmd/equiscore/ui"
	"equiscore/internal/push"
	"equiscore/internal/store"
	"equiscore/internal/watcher"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// boardCmd shows a live scoreboard in the terminal
var boardCmd = &cobra.Command{
	Use:   "board [file]",
	Short: "Show live standings in the terminal",
	Long: `Opens a full-screen scoreboard for the results feed. The board watches the
feed file the same way the server does and redraws when it changes.

Keys: q quit, r refresh, arrows/pgup/pgdown scroll.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBoard,
}

func runBoard(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		cfg.Feed.Path = args[0]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results := store.New(cfg.Feed.Path, loadFlagTable(cfg.Feed.FlagsPath),
		store.WithRetry(cfg.Feed.ReloadRetries, cfg.GetRetryDelay()))
	if err := results.Load(ctx); err != nil {
		logger.Warn("Initial feed load failed", zap.String("feed", cfg.Feed.Path), zap.Error(err))
	}

	hub := push.NewHub()
	defer hub.Close()
	sub, err := hub.Subscribe()
	if err != nil {
		return err
	}

	fw, err := watcher.New(cfg.Feed.Path, results, hub, push.EventDataUpdated, cfg.GetDebounce())
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Start(ctx); err != nil {
		return err
	}

	model := ui.NewBoardModel(results, sub, cfg.Feed.Path, ui.DefaultStyles())
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer fw.Stop()
		_, err := program.Run()
		if err != nil && gctx.Err() != nil {
			// Interrupted by a signal
			return nil
		}
		return err
	})

	return g.Wait()
}
