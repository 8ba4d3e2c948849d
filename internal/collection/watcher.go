// Package collection runs the watch sessions of every collection on one
// event loop. Filesystem events, watcher errors, readiness signals, parse
// completions and external commands are all posted to the loop as
// closures, so the loading tracker and the session table are only ever
// touched from a single goroutine.
package collection

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/conneroisu/bruwatch/internal/config"
	"github.com/conneroisu/bruwatch/internal/errors"
	"github.com/conneroisu/bruwatch/internal/interfaces"
	"github.com/conneroisu/bruwatch/internal/loading"
	"github.com/conneroisu/bruwatch/internal/logging"
	"github.com/conneroisu/bruwatch/internal/pipeline"
	"github.com/conneroisu/bruwatch/internal/router"
	"github.com/conneroisu/bruwatch/internal/types"
	"github.com/conneroisu/bruwatch/internal/uid"
	"github.com/conneroisu/bruwatch/internal/watcher"
)

// ErrStopped is returned by calls made after the loop has exited.
var ErrStopped = errors.NewInternalError(errors.ErrCodeInternalError, "collection watcher is not running", nil)

// Options configures a Watcher. Snapshots and Cache may be nil.
type Options struct {
	Router    *router.Router
	Pipeline  *pipeline.Pipeline
	Snapshots interfaces.SnapshotStore
	Cache     interfaces.ParseCache
	IDs       *uid.Caches
	Sink      interfaces.Sink
	// Factory creates path watchers; watcher.New when nil.
	Factory watcher.Factory
	Watch   config.WatcherConfig
	Logger  logging.Logger
}

// WatchRequest starts watching one collection.
type WatchRequest struct {
	Root         types.CollectionRoot
	ForcePolling bool
	// BrunoConfig, when known at start, contributes its ignore list.
	BrunoConfig *types.BrunoConfig
}

// Watcher owns every watch session.
type Watcher struct {
	router    *router.Router
	pipeline  *pipeline.Pipeline
	snapshots interfaces.SnapshotStore
	cache     interfaces.ParseCache
	ids       *uid.Caches
	sink      interfaces.Sink
	factory   watcher.Factory
	watch     config.WatcherConfig
	logger    logging.Logger
	errs      *errors.ErrorHandler

	box     *mailbox
	stopped chan struct{}

	// Owned by the loop.
	ctx      context.Context
	tracker  *loading.Tracker
	sessions map[string]*session
}

// New creates a watcher. Call Run to start its loop.
func New(opts Options) *Watcher {
	if opts.IDs == nil {
		opts.IDs = uid.NewCaches()
	}
	if opts.Sink == nil {
		opts.Sink = interfaces.SinkFunc(func(types.Message) {})
	}
	if opts.Factory == nil {
		opts.Factory = watcher.New
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	logger := opts.Logger.WithComponent("collection")
	return &Watcher{
		router:    opts.Router,
		pipeline:  opts.Pipeline,
		snapshots: opts.Snapshots,
		cache:     opts.Cache,
		ids:       opts.IDs,
		sink:      opts.Sink,
		factory:   opts.Factory,
		watch:     opts.Watch,
		logger:    logger,
		errs:      errors.NewErrorHandler(logger),
		box:       newMailbox(),
		stopped:   make(chan struct{}),
		ctx:       context.Background(),
		tracker:   loading.NewTracker(),
		sessions:  make(map[string]*session),
	}
}

// Run services the loop until ctx is cancelled, then closes every session.
func (w *Watcher) Run(ctx context.Context) error {
	w.ctx = ctx
	defer w.shutdown()

	w.logger.Info(ctx, "Collection watcher started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "Collection watcher stopping", "sessions", len(w.sessions))
			return nil
		case <-w.box.signal:
			for _, fn := range w.box.drain() {
				w.exec(fn)
			}
		}
	}
}

func (w *Watcher) exec(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			err := errors.NewInternalError(errors.ErrCodeInternalError, fmt.Sprintf("loop task panic: %v", rec), nil)
			w.errs.Handle(w.ctx, err, "Event loop task panicked")
		}
	}()
	fn()
}

func (w *Watcher) shutdown() {
	w.box.close()
	for id, s := range w.sessions {
		s.stop()
		w.tracker.Remove(id)
		delete(w.sessions, id)
	}
	close(w.stopped)
}

func (w *Watcher) post(fn func()) {
	w.box.post(fn)
}

// do runs fn on the loop and waits for it.
func (w *Watcher) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !w.box.post(func() { fn(); close(done) }) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-w.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AddWatcher starts a watch session for a collection, replacing any
// session for the same collection or root path. The indicator turns on at
// once; the path watcher itself starts after the configured delay.
func (w *Watcher) AddWatcher(ctx context.Context, req WatchRequest) error {
	if req.Root.UID == "" || req.Root.Pathname == "" {
		return errors.NewValidationError(errors.ErrCodeValidationFailed, "collection uid and path are required")
	}
	return w.do(ctx, func() { w.addWatcher(req) })
}

func (w *Watcher) addWatcher(req WatchRequest) {
	root := req.Root
	for id, s := range w.sessions {
		if id == root.UID || s.root.Pathname == root.Pathname {
			w.logger.Info(w.ctx, "Replacing watch session", "collection", id, "root", s.root.Pathname)
			w.removeSession(id)
		}
	}

	reg := w.router.Registry()
	reg.Register(root.UID, root.Pathname)
	ignore := append([]string{}, w.watch.Ignore...)
	ignore = append(ignore, root.IgnorePatterns...)
	if req.BrunoConfig != nil {
		reg.SetBrunoConfig(root.UID, req.BrunoConfig)
		ignore = append(ignore, req.BrunoConfig.Ignore...)
	}

	gen, eff := w.tracker.Start(root.UID)
	s := &session{
		w:    w,
		root: root,
		gen:  gen,
		opts: watcher.Options{
			Root:            root.Pathname,
			Ignore:          ignore,
			ForcePolling:    req.ForcePolling || w.watch.ForcePolling,
			Depth:           w.watch.Depth,
			StabilityWindow: w.watch.StabilityWindow,
			PollInterval:    w.watch.PollInterval,
			Logger:          w.logger,
		},
	}
	w.sessions[root.UID] = s
	w.logger.Info(w.ctx, "Watching collection", "collection", root.UID, "root", root.Pathname,
		"polling", s.opts.ForcePolling, "generation", gen)
	w.apply(s, eff)

	if w.watch.StartDelay <= 0 {
		w.start(s)
		return
	}
	s.timer = time.AfterFunc(w.watch.StartDelay, func() {
		w.post(func() {
			if w.current(s) {
				w.start(s)
			}
		})
	})
}

// RemoveWatcher stops the session of a collection and forgets its
// loading state. Parses already in flight complete but are discarded.
func (w *Watcher) RemoveWatcher(ctx context.Context, collectionUID string) error {
	return w.do(ctx, func() {
		if _, ok := w.sessions[collectionUID]; ok {
			w.removeSession(collectionUID)
			w.router.Registry().Remove(collectionUID)
		}
	})
}

func (w *Watcher) removeSession(id string) {
	s := w.sessions[id]
	s.stop()
	delete(w.sessions, id)
	w.tracker.Remove(id)
	w.logger.Info(w.ctx, "Stopped watching collection", "collection", id, "root", s.root.Pathname)
}

// HasWatcher reports whether pathname is the root of a watched collection.
func (w *Watcher) HasWatcher(ctx context.Context, pathname string) bool {
	found := false
	_ = w.do(ctx, func() {
		_, found = w.sessionFor(pathname, true)
	})
	return found
}

// WatchedRoots lists the watched collections ordered by path.
func (w *Watcher) WatchedRoots(ctx context.Context) ([]types.CollectionRoot, error) {
	var roots []types.CollectionRoot
	err := w.do(ctx, func() {
		for _, s := range w.sessions {
			roots = append(roots, s.root)
		}
	})
	sort.Slice(roots, func(i, j int) bool { return roots[i].Pathname < roots[j].Pathname })
	return roots, err
}

// IsLoading reports the indicator value of a collection.
func (w *Watcher) IsLoading(ctx context.Context, collectionUID string) (bool, error) {
	var busy bool
	err := w.do(ctx, func() { busy = w.tracker.IsLoading(collectionUID) })
	return busy, err
}

func (w *Watcher) current(s *session) bool {
	return w.sessions[s.root.UID] == s
}

// live reports whether pw is the active path watcher of a current session.
func (w *Watcher) live(s *session, pw watcher.PathWatcher) bool {
	return w.current(s) && s.pw == pw
}

// apply publishes what a tracker transition calls for.
func (w *Watcher) apply(s *session, eff loading.Effect) {
	if eff.Publish {
		w.sink.Publish(&types.LoadingStateUpdate{CollectionUID: s.root.UID, IsLoading: eff.IsLoading})
	}
	if eff.Hydrate {
		w.hydrate(s)
	}
}

func (w *Watcher) hydrate(s *session) {
	if w.snapshots == nil {
		return
	}
	snap, err := w.snapshots.GetSnapshot(s.root.Pathname)
	if err != nil {
		w.logger.Warn(w.ctx, err, "Failed to read UI snapshot", "collection", s.root.UID)
		return
	}
	w.sink.Publish(&types.SnapshotHydration{CollectionUID: s.root.UID, Snapshot: snap})
}
