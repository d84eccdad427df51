package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/user/hookrelay/internal/config"
	"github.com/user/hookrelay/internal/gateway"
	"github.com/user/hookrelay/internal/session"
)

var (
	syncWindowHours int
	syncWatch       bool
)

func init() {
	syncCmd.Flags().IntVar(&syncWindowHours, "window", 0, "hours of history to sync (default: config, or since last run)")
	syncCmd.Flags().BoolVar(&syncWatch, "watch", false, "keep running and sync sessions as they change")
	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync stored editor sessions to the collector",
	Long: `Scans the editor's workspace storage for chat sessions, converts them
to exchanges, and delivers everything newer than the last successful run.
Progress is checkpointed after every exchange, so an interrupted run
resumes where it left off.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := runSync(ctx, cfg); err != nil {
			return err
		}
		if !syncWatch {
			return nil
		}

		root := storageRoot(cfg)
		slog.Info("watching for session changes", "root", root)
		watcher := session.NewWatcher(root, func(path string) {
			slog.Debug("session changed", "path", path)
			if err := runSync(ctx, cfg); err != nil {
				slog.Warn("sync pass failed", "error", err)
			}
		})
		return watcher.Start(ctx)
	},
}

// runSync performs one full discovery-parse-deliver pass.
func runSync(ctx context.Context, cfg *config.Config) error {
	root := storageRoot(cfg)
	watermark := gateway.NewWatermark(cfg.Sync.StateDir)

	cutoff := syncCutoff(watermark, cfg)
	slog.Info("syncing sessions", "root", root, "since", cutoff.Format(time.RFC3339))

	files, err := session.FindSessionFiles(root, cutoff)
	if err != nil {
		return fmt.Errorf("discover session files: %w", err)
	}
	if len(files) == 0 {
		slog.Info("no session files to sync")
		return nil
	}

	exchanges := session.ParseAll(ctx, session.NewParser(), files, cfg.Sync.MaxParsers)
	exchanges = session.FilterSince(exchanges, cutoff)
	if len(exchanges) == 0 {
		slog.Info("no new exchanges to sync")
		return nil
	}

	checkpoint := gateway.NewCheckpoint(cfg.Sync.StateDir)
	doc, err := checkpoint.LoadOrCreate(exchanges)
	if err != nil {
		return fmt.Errorf("prepare checkpoint: %w", err)
	}

	client := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, cfg.Gateway.Integration)
	syncer := gateway.NewSyncer(gateway.WithRetry(client), checkpoint)

	sent, failed := syncer.Sync(ctx, doc)
	slog.Info("sync finished", "sent", sent, "failed", failed)

	if failed == 0 {
		ts, ok := session.LatestInitialized(exchanges)
		if !ok {
			ts = time.Now().UTC()
		}
		if err := watermark.Write(ts); err != nil {
			slog.Warn("watermark update failed", "error", err)
		}
	}
	return nil
}

func storageRoot(cfg *config.Config) string {
	if cfg.Sync.StorageRoot != "" {
		return cfg.Sync.StorageRoot
	}
	return session.StorageRoot()
}

// syncCutoff prefers the watermark of the last successful run; the window
// only bounds the first run or an explicit override.
func syncCutoff(watermark *gateway.Watermark, cfg *config.Config) time.Time {
	if syncWindowHours > 0 {
		return time.Now().UTC().Add(-time.Duration(syncWindowHours) * time.Hour)
	}
	if ts, ok := watermark.Read(); ok {
		return ts
	}
	return time.Now().UTC().Add(-time.Duration(cfg.Sync.WindowHours) * time.Hour)
}
