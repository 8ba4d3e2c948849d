package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/bruwatch/internal/parsecache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the parsed-file cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache size and age",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withCache(func(store *parsecache.Store) error {
			stats, err := store.Stats()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cache: %s\n%s\n", store.Path(), stats)
			return nil
		})
	},
}

var cachePruneAge time.Duration

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove entries older than --older-than (default cache.max_age)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		age := cachePruneAge
		if age <= 0 {
			age = cfg.Cache.MaxAge
		}
		if age <= 0 {
			return fmt.Errorf("nothing to prune: no maximum age configured")
		}
		return withCache(func(store *parsecache.Store) error {
			n, err := store.Prune(age)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d entries older than %s\n", n, age)
			return nil
		})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [collection]",
	Short: "Remove every entry, or only those of one collection",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(func(store *parsecache.Store) error {
			if len(args) == 1 {
				root, err := filepath.Abs(args[0])
				if err != nil {
					return fmt.Errorf("invalid collection path %q: %w", args[0], err)
				}
				if err := store.InvalidateCollection(root); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cache cleared for %s\n", root)
				return nil
			}
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd, cachePruneCmd, cacheClearCmd)

	cachePruneCmd.Flags().DurationVar(&cachePruneAge, "older-than", 0, "Maximum entry age")
}

// withCache opens the configured cache without startup pruning.
func withCache(fn func(store *parsecache.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Cache.Enabled {
		return fmt.Errorf("the parse cache is disabled (cache.enabled=false)")
	}
	store, err := parsecache.Open(cfg.Cache.Path, 0, newLogger(cfg.Log))
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer store.Close()
	return fn(store)
}
