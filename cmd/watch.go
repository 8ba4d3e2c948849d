package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/bruwatch/internal/bru"
	"github.com/conneroisu/bruwatch/internal/collection"
	"github.com/conneroisu/bruwatch/internal/config"
	"github.com/conneroisu/bruwatch/internal/interfaces"
	"github.com/conneroisu/bruwatch/internal/logging"
	"github.com/conneroisu/bruwatch/internal/parsecache"
	"github.com/conneroisu/bruwatch/internal/pipeline"
	"github.com/conneroisu/bruwatch/internal/publish"
	"github.com/conneroisu/bruwatch/internal/registry"
	"github.com/conneroisu/bruwatch/internal/router"
	"github.com/conneroisu/bruwatch/internal/secrets"
	"github.com/conneroisu/bruwatch/internal/snapshot"
	"github.com/conneroisu/bruwatch/internal/types"
	"github.com/conneroisu/bruwatch/internal/uid"
	"github.com/conneroisu/bruwatch/internal/websocket"
)

var watchCmd = &cobra.Command{
	Use:     "watch [collection...]",
	Aliases: []string{"w"},
	Short:   "Watch collections and serve their tree over WebSocket",
	Long: `Watch one or more Bruno collection directories. Every change is parsed
and published to connected UI clients on ws://<host>:<port>/ws.

Examples:
  bruwatch watch ./api                    # Watch one collection
  bruwatch watch ./api ./admin --console  # Also print every update
  bruwatch watch ./api --polling          # Never use native file watches
  bruwatch watch ./api --no-server        # Print updates without serving`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

var (
	watchConsole  bool
	watchNoServer bool
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().Bool("polling", false, "Use the polling watcher for every collection")
	watchCmd.Flags().BoolVar(&watchConsole, "console", false, "Print every published update")
	watchCmd.Flags().BoolVar(&watchNoServer, "no-server", false, "Do not start the WebSocket server (implies --console)")
	watchCmd.Flags().String("host", "", "Server host (overrides server.host)")
	watchCmd.Flags().Int("port", 0, "Server port (overrides server.port)")
	watchCmd.Flags().Bool("sync", false, "Parse request files inline instead of on worker threads")
}

// applyWatchFlags copies explicitly set flags over the configuration.
func applyWatchFlags(flags *pflag.FlagSet) {
	if flags.Changed("host") {
		host, _ := flags.GetString("host")
		viper.Set("server.host", host)
	}
	if flags.Changed("port") {
		port, _ := flags.GetInt("port")
		viper.Set("server.port", port)
	}
	if sync, _ := flags.GetBool("sync"); sync {
		viper.Set("parsing.worker_threads", false)
	}
	if polling, _ := flags.GetBool("polling"); polling {
		viper.Set("watcher.force_polling", true)
	}
}

// app is every long-lived component of a watch run.
type app struct {
	logger  logging.Logger
	pool    *pipeline.Pool
	cache   *parsecache.Store
	watcher *collection.Watcher
	hub     *websocket.Hub
	sink    *publish.MultiSink
	reg     *registry.CollectionRegistry
	events  <-chan registry.CollectionEvent
}

func runWatch(cmd *cobra.Command, args []string) error {
	applyWatchFlags(cmd.Flags())
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	roots, err := resolveRoots(args)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log)
	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eg, egctx := errgroup.WithContext(ctx)

	if a.pool != nil {
		a.pool.Start(egctx)
		defer a.pool.Stop()
	}

	eg.Go(func() error {
		return a.watcher.Run(egctx)
	})

	eg.Go(func() error {
		for _, root := range roots {
			req := collection.WatchRequest{
				Root:        root,
				BrunoConfig: readBrunoConfig(egctx, logger, root),
			}
			if err := a.watcher.AddWatcher(egctx, req); err != nil {
				return fmt.Errorf("failed to watch %s: %w", root.Pathname, err)
			}
		}
		return nil
	})

	if a.hub != nil {
		eg.Go(func() error {
			return a.hub.Serve(egctx, cfg.Server.Address(), a.watcher)
		})
	}

	if err := eg.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// buildApp wires the components from configuration. Stores that fail to
// open degrade to running without them.
func buildApp(cfg *config.Config, logger logging.Logger) (*app, error) {
	a := &app{logger: logger, sink: publish.NewMultiSink(), reg: registry.NewCollectionRegistry()}
	ctx := context.Background()
	parser := bru.New()
	ids := uid.NewCaches()

	var cache interfaces.ParseCache
	if cfg.Cache.Enabled {
		store, err := parsecache.Open(cfg.Cache.Path, cfg.Cache.MaxAge, logger)
		if err != nil {
			logger.Warn(ctx, err, "Parse cache unavailable, continuing without it", "path", cfg.Cache.Path)
		} else {
			a.cache = store
			cache = store
		}
	}

	var secretStore interfaces.SecretStore
	if store, err := secrets.NewFileStore(cfg.Secrets.Path, cfg.Secrets.Key); err != nil {
		logger.Warn(ctx, err, "Secret store unavailable, secrets will not be decrypted", "path", cfg.Secrets.Path)
	} else {
		secretStore = store
	}

	if cfg.Parsing.WorkerThreads {
		a.pool = pipeline.NewPool(cfg.Parsing.Workers, cfg.Parsing.QueueSize, parser, pipeline.NewMetrics(), logger)
	}
	pipe := pipeline.New(pipeline.Config{
		WorkerThreads:      cfg.Parsing.WorkerThreads,
		LargeFileThreshold: cfg.Parsing.LargeFileThreshold,
	}, parser, a.pool, cache, ids, logger)

	r := router.New(router.Options{
		Parser:   parser,
		Secrets:  secretStore,
		Cache:    cache,
		Registry: a.reg,
		IDs:      ids,
		Sink:     a.sink,
		Logger:   logger,
	})

	a.watcher = collection.New(collection.Options{
		Router:    r,
		Pipeline:  pipe,
		Snapshots: snapshot.NewFileStore(cfg.Snapshot.Path),
		Cache:     cache,
		IDs:       ids,
		Sink:      a.sink,
		Watch:     cfg.Watcher,
		Logger:    logger,
	})

	if watchConsole || watchNoServer {
		a.sink.Add(publish.NewConsoleSink(nil))
	}
	if !watchNoServer {
		a.hub = websocket.NewHub(websocket.NewOriginPolicy(cfg.Server.AllowedOrigins), a.watcher, logger)
		a.events = a.reg.Watch()
		a.hub.Follow(a.events)
		a.sink.Add(a.hub)
	}
	return a, nil
}

func (a *app) close() {
	if a.events != nil {
		a.reg.UnWatch(a.events)
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn(context.Background(), err, "Failed to close parse cache")
		}
	}
}

// resolveRoots turns CLI paths into collection roots with ids that stay
// the same across runs for the same directory.
func resolveRoots(paths []string) ([]types.CollectionRoot, error) {
	roots := make([]types.CollectionRoot, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("invalid collection path %q: %w", p, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("collection %q: %w", p, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("collection %q is not a directory", p)
		}
		roots = append(roots, types.CollectionRoot{
			UID:      collectionUID(abs),
			Pathname: abs,
		})
	}
	return roots, nil
}

func collectionUID(abs string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+uid.Normalize(abs))).String()
}

// readBrunoConfig loads bruno.json ahead of the watch so its ignore list
// applies from the first scan.
func readBrunoConfig(ctx context.Context, logger logging.Logger, root types.CollectionRoot) *types.BrunoConfig {
	path := filepath.Join(root.Pathname, types.BrunoConfigName)
	content, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	cfg, err := router.DecodeBrunoConfig(content, root.Pathname)
	if err != nil {
		logger.Warn(ctx, err, "Ignoring invalid bruno.json", "path", path)
		return nil
	}
	return cfg
}
