package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"equiscore/internal/feed"
	"equiscore/internal/push"
	"equiscore/internal/store"
	"equiscore/internal/watcher"
	"equiscore/internal/web"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	serveAddr string
	serveFeed string
)

// serveCmd runs the HTTP server and the feed watcher
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the results board and watch the feed for changes",
	Long: `Loads the results feed, serves it on / (HTML), /data (JSON),
/events (server-sent events) and /ws (WebSocket), and reloads it whenever
the scoring software rewrites the file.

Example:
  equiscore serve --feed data/equiscore.xml --addr :5000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func serveFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: server.addr from config)")
	cmd.Flags().StringVar(&serveFeed, "feed", "", "Results feed XML file (default: feed.path from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveFeed != "" {
		cfg.Feed.Path = serveFeed
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flags := loadFlagTable(cfg.Feed.FlagsPath)
	results := store.New(cfg.Feed.Path, flags, store.WithRetry(cfg.Feed.ReloadRetries, cfg.GetRetryDelay()))
	if err := results.Load(ctx); err != nil {
		// Keep serving; the watcher picks the feed up once it appears.
		logger.Warn("Initial feed load failed", zap.String("feed", cfg.Feed.Path), zap.Error(err))
	}

	hub := push.NewHub()
	fw, err := watcher.New(cfg.Feed.Path, results, hub, push.EventDataUpdated, cfg.GetDebounce())
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	server, err := web.New(cfg, results, hub, fw)
	if err != nil {
		return err
	}

	logger.Info("Serving results board",
		zap.String("addr", cfg.Server.Addr),
		zap.String("feed", cfg.Feed.Path),
		zap.Int("competitions", len(results.Snapshot().Competitions)))

	g, gctx := errgroup.WithContext(ctx)
	if err := fw.Start(gctx); err != nil {
		return err
	}
	defer fw.Stop()

	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		fw.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Received shutdown signal, stopped")
	return nil
}

// loadFlagTable loads flags.json. A missing or broken table only costs the
// flag images, so it is logged and an empty table is used.
func loadFlagTable(path string) *feed.FlagTable {
	if path == "" {
		return feed.NewFlagTable(nil)
	}
	flags, err := feed.LoadFlags(path)
	if err != nil {
		logger.Warn("Flag table unavailable", zap.String("path", path), zap.Error(err))
		return feed.NewFlagTable(nil)
	}
	logger.Debug("Flag table loaded", zap.Int("codes", flags.Len()))
	return flags
}
