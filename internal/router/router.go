// Package router dispatches classified watcher events to the handler of
// their file kind. Every handler fails soft: errors are logged and the
// event is dropped, so no single file can stop a watch.
package router

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/conneroisu/bruwatch/internal/errors"
	"github.com/conneroisu/bruwatch/internal/interfaces"
	"github.com/conneroisu/bruwatch/internal/logging"
	"github.com/conneroisu/bruwatch/internal/registry"
	"github.com/conneroisu/bruwatch/internal/types"
	"github.com/conneroisu/bruwatch/internal/uid"
	"github.com/conneroisu/bruwatch/internal/watcher"
)

// Requests receives request-file events. Request files go through the
// parsing pipeline, which the owner of the loading state drives.
type Requests interface {
	AddRequest(ctx context.Context, f types.WatchedFile)
	ChangeRequest(ctx context.Context, f types.WatchedFile)
}

// Target is the collection an event belongs to.
type Target struct {
	Root     types.CollectionRoot
	Requests Requests
}

// Action is what happened to a path.
type Action int

const (
	ActionAdd Action = iota
	ActionChange
	ActionUnlink
)

// String returns the string representation of the Action
func (a Action) String() string {
	switch a {
	case ActionAdd:
		return "add"
	case ActionChange:
		return "change"
	case ActionUnlink:
		return "unlink"
	default:
		return "unknown"
	}
}

// ActionOf maps a watcher event type to an action.
func ActionOf(t watcher.EventType) Action {
	switch t {
	case watcher.EventAdd, watcher.EventAddDir:
		return ActionAdd
	case watcher.EventChange:
		return ActionChange
	default:
		return ActionUnlink
	}
}

type handlerFunc func(r *Router, ctx context.Context, t Target, f types.WatchedFile)

// handlers holds the reaction of one file kind to each action.
type handlers struct {
	add    handlerFunc
	change handlerFunc
	unlink handlerFunc
}

func skip(*Router, context.Context, Target, types.WatchedFile) {}

// table covers every FileKind. Kinds with nothing to do use skip.
var table = map[types.FileKind]handlers{
	types.KindOther: {
		add: skip, change: skip, unlink: skip,
	},
	types.KindBrunoConfig: {
		add: (*Router).loadBrunoConfig, change: (*Router).loadBrunoConfig, unlink: skip,
	},
	types.KindDotEnv: {
		add: (*Router).loadDotEnv, change: (*Router).loadDotEnv, unlink: skip,
	},
	types.KindEnvironmentConfig: {
		add: (*Router).loadEnvironment, change: (*Router).loadEnvironment, unlink: (*Router).unlinkEnvironment,
	},
	types.KindCollectionRootFile: {
		add: (*Router).addRoot, change: (*Router).changeRoot, unlink: (*Router).unlinkFile,
	},
	types.KindFolderMetaFile: {
		add: (*Router).addRoot, change: (*Router).changeRoot, unlink: (*Router).unlinkFile,
	},
	types.KindRequestFile: {
		add: (*Router).addRequest, change: (*Router).changeRequest, unlink: (*Router).unlinkRequest,
	},
	types.KindDirectory: {
		add: (*Router).addDir, change: skip, unlink: (*Router).unlinkDir,
	},
	types.KindEnvironmentsDirectory: {
		add: skip, change: skip, unlink: skip,
	},
}

// Router routes events to handlers.
type Router struct {
	parser   interfaces.Parser
	secrets  interfaces.SecretStore
	cache    interfaces.ParseCache
	registry *registry.CollectionRegistry
	ids      *uid.Caches
	sink     interfaces.Sink
	logger   logging.Logger
	errs     *errors.ErrorHandler
}

// Options configures a Router. Secrets and Cache may be nil.
type Options struct {
	Parser   interfaces.Parser
	Secrets  interfaces.SecretStore
	Cache    interfaces.ParseCache
	Registry *registry.CollectionRegistry
	IDs      *uid.Caches
	Sink     interfaces.Sink
	Logger   logging.Logger
}

// New creates a router.
func New(opts Options) *Router {
	if opts.Registry == nil {
		opts.Registry = registry.NewCollectionRegistry()
	}
	if opts.IDs == nil {
		opts.IDs = uid.NewCaches()
	}
	if opts.Sink == nil {
		opts.Sink = interfaces.SinkFunc(func(types.Message) {})
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	logger := opts.Logger.WithComponent("router")
	return &Router{
		parser:   opts.Parser,
		secrets:  opts.Secrets,
		cache:    opts.Cache,
		registry: opts.Registry,
		ids:      opts.IDs,
		sink:     opts.Sink,
		logger:   logger,
		errs:     errors.NewErrorHandler(logger),
	}
}

// Registry returns the configuration registry the router writes to.
func (r *Router) Registry() *registry.CollectionRegistry {
	return r.registry
}

// Dispatch classifies ev and runs its handler. A panicking handler is
// logged and contained.
func (r *Router) Dispatch(ctx context.Context, t Target, ev watcher.Event) {
	f := watcher.ClassifyEvent(t.Root, ev)
	r.Handle(ctx, t, ActionOf(ev.Type), f)
}

// Handle runs the handler of f.Kind for action.
func (r *Router) Handle(ctx context.Context, t Target, action Action, f types.WatchedFile) {
	defer func() {
		if rec := recover(); rec != nil {
			err := errors.NewInternalError(errors.ErrCodeInternalError,
				fmt.Sprintf("handler panic: %v", rec), nil).WithPath(f.Pathname)
			r.errs.Handle(ctx, err, "Event handler panicked", "action", action.String(), "kind", f.Kind.String())
		}
	}()

	h, ok := table[f.Kind]
	if !ok {
		r.logger.Warn(ctx, nil, "No handler for file kind", "kind", f.Kind.String(), "path", f.Pathname)
		return
	}
	r.logger.Debug(ctx, "Routing event", "action", action.String(), "kind", f.Kind.String(), "path", f.Pathname)

	switch action {
	case ActionAdd:
		h.add(r, ctx, t, f)
	case ActionChange:
		h.change(r, ctx, t, f)
	case ActionUnlink:
		h.unlink(r, ctx, t, f)
	}
}

func (r *Router) publish(msg types.Message) {
	r.sink.Publish(msg)
}

func (r *Router) fail(ctx context.Context, t Target, f types.WatchedFile, err *errors.SyncError, msg string) {
	r.errs.Handle(ctx, err.WithCollection(t.Root.UID), msg, "kind", f.Kind.String())
}

func (r *Router) addRequest(ctx context.Context, t Target, f types.WatchedFile) {
	if t.Requests != nil {
		t.Requests.AddRequest(ctx, f)
	}
}

func (r *Router) changeRequest(ctx context.Context, t Target, f types.WatchedFile) {
	if t.Requests != nil {
		t.Requests.ChangeRequest(ctx, f)
	}
}

// trimExt returns the basename of path without its extension.
func trimExt(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
