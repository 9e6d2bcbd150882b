package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the OCR result cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the cache backend and how many results it holds",
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Drop every cached OCR result",
	Long: `Drop every cached OCR result. Purging is never needed for correctness:
fingerprints bind each result to the engine version that produced it, so
an upgraded engine simply stops finding the old entries. Purge to reclaim
the space they occupy.`,
	Args: cobra.NoArgs,
	RunE: runCachePurge,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd, cachePurgeCmd)
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cache, err := openCache(cfg, nil)
	if err != nil {
		return err
	}
	defer cache.Close()

	fmt.Printf("Backend:  %s\n", describeCacheBackend())
	if cfg.Cache.Backend == "none" {
		fmt.Println("Entries:  none persisted; results live only for one process")
		return nil
	}
	n, err := cache.StoreCount(ctx)
	if err != nil {
		return fmt.Errorf("counting cache entries: %w", err)
	}
	fmt.Printf("Entries:  %d\n", n)
	return nil
}

func runCachePurge(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache, err := openCache(cfg, nil)
	if err != nil {
		return err
	}
	defer cache.Close()

	removed, err := cache.PurgeAll(ctx)
	if err != nil {
		return fmt.Errorf("purging cache: %w", err)
	}
	fmt.Printf("Dropped %d cached results from the %s backend.\n", removed, cfg.Cache.Backend)
	return nil
}

func describeCacheBackend() string {
	switch cfg.Cache.Backend {
	case "bolt":
		return fmt.Sprintf("bolt (%s)", cfg.Cache.Dir)
	case "redis":
		return fmt.Sprintf("redis (%s)", cfg.Cache.Redis.Addr)
	default:
		return cfg.Cache.Backend
	}
}
