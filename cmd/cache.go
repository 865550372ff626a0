package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/dataverse-agent/internal/cache"
	"github.com/kyleking/dataverse-agent/internal/config"
)

func CacheCommand() *cli.Command {
	return &cli.Command{
		Name:        "cache",
		Usage:       "Inspect or clear the metadata cache",
		Description: `The metadata cache is used only when a metadata TTL is configured (--metadata-ttl or DATAVERSE_AGENT_METADATA_CACHE_TTL).`,
		Commands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "Display cache statistics",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withFileCache(ctx, cmd, func(c *cache.FileCache) error {
						return runCacheStatsWithCache(ctx, output(cmd), c)
					})
				},
			},
			{
				Name:  "cleanup",
				Usage: "Remove expired cache entries",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withFileCache(ctx, cmd, func(c *cache.FileCache) error {
						return runCacheCleanupWithCache(ctx, output(cmd), c)
					})
				},
			},
			{
				Name:  "clear",
				Usage: "Remove every cache entry",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withFileCache(ctx, cmd, func(c *cache.FileCache) error {
						return runCacheClearWithCache(ctx, output(cmd), c)
					})
				},
			},
		},
	}
}

func withFileCache(ctx context.Context, cmd *cli.Command, fn func(*cache.FileCache) error) error {
	cfg, err := loadConfig(ctx, cmd)
	if err != nil {
		return err
	}

	// No background cleanup for one-shot maintenance
	c, err := cache.NewFileCache(cfg.Cache.Directory, cfg.Cache.MaxSizeMB, config.Duration(cfg.Cache.MetadataTTL), 0)
	if err != nil {
		return err
	}
	defer c.Close()

	fmt.Fprintf(output(cmd), "Cache directory: %s\n", c.Directory())

	return fn(c)
}

func runCacheStatsWithCache(ctx context.Context, w io.Writer, c cache.Cache) error {
	stats, err := c.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get cache statistics: %w", err)
	}

	fmt.Fprintf(w, "Cache Statistics\n")
	fmt.Fprintf(w, "================\n\n")
	fmt.Fprintf(w, "Entries: %d\n", stats.TotalEntries)
	fmt.Fprintf(w, "Size: %.2f MB\n", float64(stats.TotalSize)/(1024*1024))

	return nil
}

func runCacheCleanupWithCache(ctx context.Context, w io.Writer, c cache.Cache) error {
	removed, err := c.Cleanup(ctx)
	if err != nil {
		return fmt.Errorf("failed to clean up cache: %w", err)
	}

	fmt.Fprintf(w, "Removed %d expired entries.\n", removed)

	return nil
}

func runCacheClearWithCache(ctx context.Context, w io.Writer, c cache.Cache) error {
	stats, err := c.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get cache statistics: %w", err)
	}

	if stats.TotalEntries == 0 {
		fmt.Fprintln(w, "Cache is already empty.")
		return nil
	}

	if err := c.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	fmt.Fprintf(w, "Removed %d entries.\n", stats.TotalEntries)

	return nil
}
