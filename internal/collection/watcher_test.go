package collection

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/bruwatch/internal/bru"
	"github.com/conneroisu/bruwatch/internal/config"
	"github.com/conneroisu/bruwatch/internal/errors"
	"github.com/conneroisu/bruwatch/internal/pipeline"
	"github.com/conneroisu/bruwatch/internal/publish"
	"github.com/conneroisu/bruwatch/internal/router"
	"github.com/conneroisu/bruwatch/internal/testutils"
	"github.com/conneroisu/bruwatch/internal/types"
	"github.com/conneroisu/bruwatch/internal/uid"
	"github.com/conneroisu/bruwatch/internal/watcher"
)

// fakeWatcher is a scripted PathWatcher.
type fakeWatcher struct {
	opts   watcher.Options
	events chan watcher.Event
	errs   chan error
	ready  chan struct{}
	closed chan struct{}
	once   sync.Once
}

func (f *fakeWatcher) Events() <-chan watcher.Event { return f.events }
func (f *fakeWatcher) Errors() <-chan error         { return f.errs }
func (f *fakeWatcher) Ready() <-chan struct{}       { return f.ready }
func (f *fakeWatcher) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeWatcher) add(path string) {
	f.events <- watcher.Event{Type: watcher.EventAdd, Path: path}
}

type fakeFactory struct {
	mu      sync.Mutex
	created []*fakeWatcher
}

func (f *fakeFactory) New(opts watcher.Options) (watcher.PathWatcher, error) {
	fw := &fakeWatcher{
		opts:   opts,
		events: make(chan watcher.Event, 64),
		errs:   make(chan error, 4),
		ready:  make(chan struct{}),
		closed: make(chan struct{}),
	}
	f.mu.Lock()
	f.created = append(f.created, fw)
	f.mu.Unlock()
	return fw, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *fakeFactory) get(t *testing.T, i int) *fakeWatcher {
	t.Helper()
	require.Eventually(t, func() bool { return f.count() > i }, 2*time.Second, 5*time.Millisecond)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[i]
}

type memSnapshots struct {
	snap *types.Snapshot
}

func (m memSnapshots) GetSnapshot(string) (*types.Snapshot, error) { return m.snap, nil }

type harness struct {
	w       *Watcher
	sink    *publish.Recorder
	factory *fakeFactory
	ids     *uid.Caches
	root    string
}

func newHarness(t *testing.T, cfg pipeline.Config, workers bool) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	parser := bru.New()
	ids := uid.NewCaches()
	sink := publish.NewRecorder()
	var pool *pipeline.Pool
	if workers {
		pool = pipeline.NewPool(2, 16, parser, nil, nil)
		pool.Start(ctx)
		t.Cleanup(pool.Stop)
	}
	cfg.WorkerThreads = workers

	h := &harness{sink: sink, factory: &fakeFactory{}, ids: ids, root: t.TempDir()}
	h.w = New(Options{
		Router:    router.New(router.Options{Parser: parser, IDs: ids, Sink: sink}),
		Pipeline:  pipeline.New(cfg, parser, pool, nil, ids, nil),
		Snapshots: memSnapshots{snap: &types.Snapshot{Pathname: h.root, SelectedEnvironment: "dev"}},
		IDs:       ids,
		Sink:      sink,
		Factory:   h.factory.New,
		Watch:     config.WatcherConfig{},
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func (h *harness) watch(t *testing.T) *fakeWatcher {
	t.Helper()
	root := types.CollectionRoot{UID: "c1", Pathname: h.root}
	require.NoError(t, h.w.AddWatcher(context.Background(), WatchRequest{Root: root}))
	return h.factory.get(t, 0)
}

func (h *harness) writeRequest(t *testing.T, name string, seq int) string {
	t.Helper()
	return testutils.WriteFile(t, filepath.Join(h.root, name), testutils.RequestBru(name, seq))
}

func (h *harness) waitLoadingStates(t *testing.T, n int) []bool {
	t.Helper()
	require.Eventually(t, func() bool { return len(h.sink.LoadingStates("c1")) >= n }, 5*time.Second, 5*time.Millisecond)
	return h.sink.LoadingStates("c1")
}

func TestWorkerSequenceForTenFiles(t *testing.T) {
	h := newHarness(t, pipeline.Config{}, true)
	fw := h.watch(t)

	paths := make([]string, 10)
	for i := range paths {
		paths[i] = h.writeRequest(t, fmt.Sprintf("req%02d.bru", i), i+1)
		fw.add(paths[i])
	}
	close(fw.ready)

	states := h.waitLoadingStates(t, 2)
	assert.Equal(t, []bool{true, false}, states)

	byPath := map[string][]*types.TreeUpdate{}
	for _, u := range h.sink.TreeUpdates() {
		byPath[u.Meta.Pathname] = append(byPath[u.Meta.Pathname], u)
	}
	require.Len(t, byPath, 10)
	for _, p := range paths {
		seq := byPath[p]
		require.Len(t, seq, 3, p)
		for _, u := range seq {
			assert.Equal(t, types.UpdateAddFile, u.Kind)
			assert.Equal(t, h.ids.Requests.GetOrCreate(p), u.Meta.UID)
		}
		assert.True(t, seq[0].Partial)
		assert.False(t, seq[0].Loading)
		assert.False(t, seq[1].Partial)
		assert.True(t, seq[1].Loading)
		assert.False(t, seq[2].Partial)
		assert.False(t, seq[2].Loading)
		require.NotNil(t, seq[2].Request())
		assert.Equal(t, filepath.Base(p), seq[2].Request().Name)
	}

	// isLoading=false comes after every final record.
	finals, hydrations := 0, 0
	for _, m := range h.sink.Messages() {
		switch m := m.(type) {
		case *types.TreeUpdate:
			if !m.Partial && !m.Loading {
				finals++
			}
		case *types.LoadingStateUpdate:
			if !m.IsLoading {
				assert.Equal(t, 10, finals)
			}
		case *types.SnapshotHydration:
			hydrations++
		}
	}
	assert.Equal(t, 1, hydrations)
}

func TestEmptyCollectionSettlesAtReady(t *testing.T) {
	h := newHarness(t, pipeline.Config{}, false)
	fw := h.watch(t)
	close(fw.ready)

	assert.Equal(t, []bool{true, false}, h.waitLoadingStates(t, 2))
	require.Eventually(t, func() bool {
		for _, m := range h.sink.Messages() {
			if s, ok := m.(*types.SnapshotHydration); ok {
				return s.Snapshot != nil && s.Snapshot.SelectedEnvironment == "dev"
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestLateFileParsesSilently(t *testing.T) {
	h := newHarness(t, pipeline.Config{}, true)
	fw := h.watch(t)
	close(fw.ready)
	h.waitLoadingStates(t, 2)

	fw.add(h.writeRequest(t, "late.bru", 1))

	require.Eventually(t, func() bool {
		updates := h.sink.TreeUpdates()
		return len(updates) == 3 && !updates[2].Partial && !updates[2].Loading
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []bool{true, false}, h.sink.LoadingStates("c1"))
}

func TestSyncModeEmitsFinalRecordOnly(t *testing.T) {
	h := newHarness(t, pipeline.Config{}, false)
	fw := h.watch(t)
	path := h.writeRequest(t, "one.bru", 1)
	fw.add(path)
	close(fw.ready)

	h.waitLoadingStates(t, 2)
	updates := h.sink.TreeUpdates()
	require.Len(t, updates, 1)
	assert.False(t, updates[0].Partial)
	assert.Equal(t, path, updates[0].Meta.Pathname)
}

func TestResourceLimitRestartsOnce(t *testing.T) {
	h := newHarness(t, pipeline.Config{}, false)
	first := h.watch(t)
	assert.False(t, first.opts.ForcePolling)

	limit := errors.NewResourceLimitError("too many watches", syscall.ENOSPC)
	first.errs <- limit
	first.errs <- limit

	second := h.factory.get(t, 1)
	assert.True(t, second.opts.ForcePolling)
	require.Eventually(t, func() bool {
		select {
		case <-first.closed:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	second.errs <- limit
	second.errs <- errors.WrapIO(os.ErrPermission, errors.ErrCodeWatchFailed, h.root, "watch path")
	assert.Never(t, func() bool { return h.factory.count() > 2 }, 200*time.Millisecond, 10*time.Millisecond)

	// The restarted watcher still drives discovery.
	close(second.ready)
	assert.Equal(t, []bool{true, false}, h.waitLoadingStates(t, 2))
}

func TestOtherWatcherErrorsDoNotRestart(t *testing.T) {
	h := newHarness(t, pipeline.Config{}, false)
	fw := h.watch(t)

	fw.errs <- errors.WrapIO(os.ErrPermission, errors.ErrCodeWatchFailed, h.root, "watch path")

	assert.Never(t, func() bool { return h.factory.count() > 1 }, 200*time.Millisecond, 10*time.Millisecond)
}

func TestRemovedSessionDropsEvents(t *testing.T) {
	h := newHarness(t, pipeline.Config{}, false)
	fw := h.watch(t)
	ctx := context.Background()

	assert.True(t, h.w.HasWatcher(ctx, h.root))
	require.NoError(t, h.w.RemoveWatcher(ctx, "c1"))
	assert.False(t, h.w.HasWatcher(ctx, h.root))

	<-fw.closed
	roots, err := h.w.WatchedRoots(ctx)
	require.NoError(t, err)
	assert.Empty(t, roots)
	assert.Equal(t, []bool{true}, h.sink.LoadingStates("c1"))
}

func TestLoadFullLargeFile(t *testing.T) {
	h := newHarness(t, pipeline.Config{LargeFileThreshold: 16}, true)
	fw := h.watch(t)
	path := h.writeRequest(t, "big.bru", 1)
	fw.add(path)
	close(fw.ready)
	h.waitLoadingStates(t, 2)

	updates := h.sink.TreeUpdates()
	require.Len(t, updates, 1)
	assert.True(t, updates[0].Partial)

	require.NoError(t, h.w.LoadFull(context.Background(), "c1", path))
	require.Eventually(t, func() bool { return len(h.sink.TreeUpdates()) == 3 }, 2*time.Second, 5*time.Millisecond)

	updates = h.sink.TreeUpdates()
	assert.Equal(t, types.UpdateChange, updates[1].Kind)
	assert.True(t, updates[1].Loading)
	assert.Equal(t, types.UpdateChange, updates[2].Kind)
	assert.False(t, updates[2].Partial)
	assert.NotNil(t, updates[2].Request())

	err := h.w.LoadFull(context.Background(), "c1", filepath.Join(h.root, "bruno.json"))
	assert.Error(t, err)
	err = h.w.LoadFull(context.Background(), "nope", path)
	assert.Error(t, err)
}

func TestRenameAndDeleteKeepIDs(t *testing.T) {
	h := newHarness(t, pipeline.Config{}, false)
	fw := h.watch(t)
	ctx := context.Background()

	dir := filepath.Join(h.root, "users")
	file := testutils.WriteFile(t, filepath.Join(dir, "list.bru"), testutils.RequestBru("list", 1))
	fileID := h.ids.Requests.GetOrCreate(file)
	dirID := h.ids.Requests.GetOrCreate(dir)

	renamed := filepath.Join(h.root, "people")
	require.NoError(t, h.w.RenameItem(ctx, dir, renamed))
	_, err := os.Stat(filepath.Join(renamed, "list.bru"))
	require.NoError(t, err)
	assert.Equal(t, dirID, h.ids.Requests.GetOrCreate(renamed))
	assert.Equal(t, fileID, h.ids.Requests.GetOrCreate(filepath.Join(renamed, "list.bru")))

	assert.Error(t, h.w.RenameItem(ctx, filepath.Join(h.root, "missing.bru"), filepath.Join(h.root, "x.bru")))
	assert.Error(t, h.w.RenameItem(ctx, renamed, filepath.Join(t.TempDir(), "outside")))

	require.NoError(t, h.w.DeleteItem(ctx, renamed))
	_, err = os.Stat(renamed)
	assert.True(t, os.IsNotExist(err))

	// The ids outlive the delete until the watcher reports the unlinks.
	moved := filepath.Join(renamed, "list.bru")
	_, ok := h.ids.Requests.Lookup(moved)
	assert.True(t, ok)

	fw.events <- watcher.Event{Type: watcher.EventUnlink, Path: moved}
	fw.events <- watcher.Event{Type: watcher.EventUnlinkDir, Path: renamed}
	require.Eventually(t, func() bool { return len(h.sink.TreeUpdates()) == 2 }, 2*time.Second, 5*time.Millisecond)

	updates := h.sink.TreeUpdates()
	assert.Equal(t, types.UpdateUnlink, updates[0].Kind)
	assert.Equal(t, fileID, updates[0].Meta.UID)
	assert.Equal(t, types.UpdateUnlinkDir, updates[1].Kind)
	assert.Equal(t, dirID, updates[1].Meta.UID)
	_, ok = h.ids.Requests.Lookup(moved)
	assert.False(t, ok)
	_, ok = h.ids.Requests.Lookup(renamed)
	assert.False(t, ok)

	assert.Error(t, h.w.DeleteItem(ctx, h.root))
}

func TestGuardTripsOnce(t *testing.T) {
	var g ResourceLimitGuard
	limit := errors.NewResourceLimitError("limit", nil)

	assert.False(t, g.Trip(limit, true), "polling already forced")
	assert.False(t, g.Trip(errors.NewIOError(errors.ErrCodeReadFailed, "io", nil), false))
	assert.True(t, g.Trip(limit, false))
	assert.True(t, g.Tripped())
	assert.False(t, g.Trip(limit, false))
	assert.False(t, g.Trip(syscall.EMFILE, false))
}
