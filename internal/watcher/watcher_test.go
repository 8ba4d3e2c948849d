package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/bruwatch/internal/testutils"
)

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventAdd, "add"},
		{EventChange, "change"},
		{EventUnlink, "unlink"},
		{EventAddDir, "addDir"},
		{EventUnlinkDir, "unlinkDir"},
		{EventType(99), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

// collector drains a PathWatcher into a slice.
type collector struct {
	mu     sync.Mutex
	events []Event
	errs   []error
}

func collect(t *testing.T, w PathWatcher) *collector {
	t.Helper()
	c := &collector{}
	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	go func() {
		for {
			select {
			case <-stop:
				return
			case ev := <-w.Events():
				c.mu.Lock()
				c.events = append(c.events, ev)
				c.mu.Unlock()
			case err := <-w.Errors():
				c.mu.Lock()
				c.errs = append(c.errs, err)
				c.mu.Unlock()
			}
		}
	}()
	return c
}

func (c *collector) has(typ EventType, path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ev := range c.events {
		if ev.Type == typ && ev.Path == path {
			return true
		}
	}
	return false
}

func (c *collector) count(typ EventType, path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if ev.Type == typ && ev.Path == path {
			n++
		}
	}
	return n
}

func newTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	testutils.WriteFile(t, filepath.Join(root, "bruno.json"), `{"name":"c"}`)
	testutils.WriteFile(t, filepath.Join(root, "users", "get.bru"), "meta {\n  name: get\n}\n")
	testutils.WriteFile(t, filepath.Join(root, "node_modules", "x", "skip.bru"), "")
	testutils.WriteFile(t, filepath.Join(root, "dist", "skip.bru"), "")
	return root
}

func backends() map[string]bool {
	return map[string]bool{"fsnotify": false, "polling": true}
}

func TestInitialScanThenReady(t *testing.T) {
	for name, polling := range backends() {
		t.Run(name, func(t *testing.T) {
			root := newTree(t)
			w, err := New(Options{
				Root:            root,
				Ignore:          []string{"dist"},
				ForcePolling:    polling,
				StabilityWindow: 20 * time.Millisecond,
				PollInterval:    20 * time.Millisecond,
			})
			require.NoError(t, err)
			defer w.Close()

			c := collect(t, w)

			select {
			case <-w.Ready():
			case <-time.After(5 * time.Second):
				t.Fatal("watcher never became ready")
			}

			require.Eventually(t, func() bool {
				return c.has(EventAdd, filepath.Join(root, "users", "get.bru"))
			}, 2*time.Second, 10*time.Millisecond)
			assert.True(t, c.has(EventAdd, filepath.Join(root, "bruno.json")))
			assert.True(t, c.has(EventAddDir, filepath.Join(root, "users")))
			assert.False(t, c.has(EventAdd, filepath.Join(root, "node_modules", "x", "skip.bru")))
			assert.False(t, c.has(EventAdd, filepath.Join(root, "dist", "skip.bru")))
			assert.False(t, c.has(EventAddDir, root))
		})
	}
}

func TestChangeAndUnlink(t *testing.T) {
	for name, polling := range backends() {
		t.Run(name, func(t *testing.T) {
			root := newTree(t)
			w, err := New(Options{
				Root:            root,
				ForcePolling:    polling,
				StabilityWindow: 30 * time.Millisecond,
				PollInterval:    20 * time.Millisecond,
			})
			require.NoError(t, err)
			defer w.Close()

			c := collect(t, w)
			<-w.Ready()

			target := filepath.Join(root, "users", "get.bru")
			testutils.WriteFile(t, target, "meta {\n  name: changed\n}\n")
			require.Eventually(t, func() bool {
				return c.has(EventChange, target)
			}, 3*time.Second, 10*time.Millisecond)

			created := filepath.Join(root, "users", "post.bru")
			testutils.WriteFile(t, created, "meta {\n  name: post\n}\n")
			require.Eventually(t, func() bool {
				return c.has(EventAdd, created)
			}, 3*time.Second, 10*time.Millisecond)

			require.NoError(t, os.RemoveAll(filepath.Join(root, "users")))
			require.Eventually(t, func() bool {
				return c.has(EventUnlinkDir, filepath.Join(root, "users"))
			}, 3*time.Second, 10*time.Millisecond)
			assert.True(t, c.has(EventUnlink, target))
			assert.True(t, c.has(EventUnlink, created))
		})
	}
}

func TestRapidWritesCoalesce(t *testing.T) {
	root := newTree(t)
	w, err := New(Options{Root: root, StabilityWindow: 150 * time.Millisecond})
	require.NoError(t, err)
	defer w.Close()

	c := collect(t, w)
	<-w.Ready()

	target := filepath.Join(root, "users", "get.bru")
	for i := 0; i < 5; i++ {
		testutils.WriteFile(t, target, "meta {\n  name: v"+string(rune('a'+i))+"\n}\n")
		time.Sleep(20 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return c.has(EventChange, target)
	}, 3*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, c.count(EventChange, target))
}

func TestNewMissingRoot(t *testing.T) {
	_, err := New(Options{Root: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	root := newTree(t)
	w, err := New(Options{Root: root})
	require.NoError(t, err)

	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}

func TestDepthCap(t *testing.T) {
	root := t.TempDir()
	testutils.WriteFile(t, filepath.Join(root, "a", "shallow.bru"), "")
	testutils.WriteFile(t, filepath.Join(root, "a", "b", "c", "deep.bru"), "")

	w, err := New(Options{Root: root, Depth: 1, ForcePolling: true, PollInterval: 20 * time.Millisecond})
	require.NoError(t, err)
	defer w.Close()

	c := collect(t, w)
	<-w.Ready()

	require.Eventually(t, func() bool {
		return c.has(EventAdd, filepath.Join(root, "a", "shallow.bru"))
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, c.has(EventAdd, filepath.Join(root, "a", "b", "c", "deep.bru")))
}
