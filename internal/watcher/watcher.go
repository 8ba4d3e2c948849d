// Package watcher reports add, change and unlink events for every path of a
// collection tree. Two backends share the same contract: native
// notifications through fsnotify and a polling walker used when the OS
// refuses more watches. Both report the initial tree as add events before
// signalling readiness, and both hold file events back until the file has
// been quiet for a stability window so that a half-written file is never
// reported.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/bruwatch/internal/errors"
	"github.com/conneroisu/bruwatch/internal/logging"
)

// EventType represents the type of file change
type EventType int

const (
	EventAdd EventType = iota
	EventChange
	EventUnlink
	EventAddDir
	EventUnlinkDir
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventAdd:
		return "add"
	case EventChange:
		return "change"
	case EventUnlink:
		return "unlink"
	case EventAddDir:
		return "addDir"
	case EventUnlinkDir:
		return "unlinkDir"
	default:
		return "unknown"
	}
}

// IsDir reports whether the event is about a directory.
func (e EventType) IsDir() bool {
	return e == EventAddDir || e == EventUnlinkDir
}

// Event represents a file change event
type Event struct {
	Type    EventType
	Path    string
	ModTime time.Time
	Size    int64
}

// PathWatcher is a running watch over one collection root.
type PathWatcher interface {
	Events() <-chan Event
	// Errors carries watch failures. Resource exhaustion is reported as a
	// resource_limit *errors.SyncError.
	Errors() <-chan error
	// Ready is closed once every path present at start has been reported.
	Ready() <-chan struct{}
	Close() error
}

// Factory creates a PathWatcher.
type Factory func(opts Options) (PathWatcher, error)

// Options configures a PathWatcher.
type Options struct {
	Root            string
	Ignore          []string
	ForcePolling    bool
	Depth           int
	StabilityWindow time.Duration
	PollInterval    time.Duration
	Logger          logging.Logger
}

// Default option values.
const (
	DefaultDepth           = 20
	DefaultStabilityWindow = 80 * time.Millisecond
	DefaultPollInterval    = 100 * time.Millisecond
)

func (o Options) withDefaults() Options {
	o.Root = filepath.Clean(o.Root)
	if o.Depth <= 0 {
		o.Depth = DefaultDepth
	}
	if o.StabilityWindow <= 0 {
		o.StabilityWindow = DefaultStabilityWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	return o
}

// New starts watching opts.Root with the native backend, or with the
// polling backend when opts.ForcePolling is set.
func New(opts Options) (PathWatcher, error) {
	opts = opts.withDefaults()
	if _, err := os.Stat(opts.Root); err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeReadFailed, opts.Root, "stat collection root")
	}
	if opts.ForcePolling {
		return newPollWatcher(opts), nil
	}
	return newFSWatcher(opts)
}

// base holds the state shared by both backends: the set of reported paths,
// the stability window and the outbound channels.
type base struct {
	opts   Options
	filter *Filter
	logger logging.Logger

	events chan Event
	errors chan error
	ready  chan struct{}
	done   chan struct{}
	once   sync.Once

	stab *stabilizer

	// mu serializes emission so that an unlink is never overtaken by a
	// stale add for the same path.
	mu sync.Mutex
	// known maps every reported path to whether it is a directory.
	known map[string]bool
}

func newBase(opts Options, backend string) *base {
	b := &base{
		opts:   opts,
		filter: NewFilter(opts.Root, opts.Ignore),
		logger: opts.Logger.WithComponent("watcher").With("root", opts.Root, "backend", backend),
		events: make(chan Event, 256),
		errors: make(chan error, 16),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
		known:  make(map[string]bool),
	}
	b.stab = newStabilizer(opts.StabilityWindow, b.flush)
	return b
}

func (b *base) Events() <-chan Event   { return b.events }
func (b *base) Errors() <-chan error   { return b.errors }
func (b *base) Ready() <-chan struct{} { return b.ready }

// shutdown stops the base and reports whether this call did it.
func (b *base) shutdown() bool {
	first := false
	b.once.Do(func() {
		first = true
		close(b.done)
		b.stab.stop()
	})
	return first
}

func (b *base) closed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

func (b *base) emit(ev Event) {
	select {
	case b.events <- ev:
	case <-b.done:
	}
}

func (b *base) report(err error) {
	select {
	case b.errors <- err:
	case <-b.done:
	}
}

// depth returns how many directories separate path from the root.
func (b *base) depth(path string) int {
	rel, err := filepath.Rel(b.opts.Root, path)
	if err != nil {
		return 0
	}
	return strings.Count(filepath.ToSlash(rel), "/")
}

// walk visits every entry at or below dir that is neither ignored nor
// deeper than the depth cap.
func (b *base) walk(dir string, visit func(path string, d fs.DirEntry) error) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if b.closed() {
			return filepath.SkipAll
		}
		if err != nil {
			if path == dir {
				return err
			}
			b.logger.Debug(context.Background(), "Skipping unreadable path", "path", path, "error", err.Error())
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path != b.opts.Root && (b.filter.Ignored(path) || b.depth(path) > b.opts.Depth) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		return visit(path, d)
	})
}

// announce reports a path discovered by a walk, once.
func (b *base) announce(path string, isDir bool, info fs.FileInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, seen := b.known[path]; seen {
		return
	}
	b.known[path] = isDir

	ev := Event{Type: EventAdd, Path: path}
	if isDir {
		ev.Type = EventAddDir
	} else if info != nil {
		ev.Size = info.Size()
		ev.ModTime = info.ModTime()
	}
	b.emit(ev)
}

// flush runs once a file has been quiet for the stability window.
func (b *base) flush(path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed() {
		return
	}
	_, seen := b.known[path]
	b.known[path] = false

	ev := Event{Type: EventAdd, Path: path, Size: info.Size(), ModTime: info.ModTime()}
	if seen {
		ev.Type = EventChange
	}
	b.emit(ev)
}

// removed reports the removal of path and, for a directory, of every
// reported path below it, deepest first.
func (b *base) removed(path string) {
	b.stab.cancel(path)

	b.mu.Lock()
	defer b.mu.Unlock()

	isDir, ok := b.known[path]
	if !ok {
		return
	}

	if isDir {
		prefix := path + string(filepath.Separator)
		var children []string
		for p := range b.known {
			if strings.HasPrefix(p, prefix) {
				children = append(children, p)
			}
		}
		sort.Sort(sort.Reverse(sort.StringSlice(children)))
		for _, child := range children {
			b.stab.cancel(child)
			b.emit(Event{Type: unlinkType(b.known[child]), Path: child})
			delete(b.known, child)
		}
	}

	delete(b.known, path)
	b.emit(Event{Type: unlinkType(isDir), Path: path})
}

func unlinkType(isDir bool) EventType {
	if isDir {
		return EventUnlinkDir
	}
	return EventUnlink
}

// watchError converts an error from adding a watch into the taxonomy.
func watchError(err error, path string) error {
	if errors.IsResourceLimit(err) {
		return errors.NewResourceLimitError("the OS refused to watch more paths", err).WithPath(path)
	}
	return errors.WrapIO(err, errors.ErrCodeWatchFailed, path, "watch path")
}
