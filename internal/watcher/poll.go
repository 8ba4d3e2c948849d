package watcher

import (
	"context"
	"io/fs"
	"sort"
	"time"
)

type pollEntry struct {
	isDir   bool
	size    int64
	modTime time.Time
}

// pollWatcher is the fallback backend. It walks the tree on every tick and
// diffs the result against the previous walk. It holds no OS watches, so it
// keeps working when inotify limits are exhausted.
type pollWatcher struct {
	*base
	prev map[string]pollEntry
}

func newPollWatcher(opts Options) *pollWatcher {
	pw := &pollWatcher{base: newBase(opts, "polling")}
	go pw.run()
	return pw
}

// Close stops polling.
func (pw *pollWatcher) Close() error {
	pw.shutdown()
	return nil
}

func (pw *pollWatcher) run() {
	prev, err := pw.snapshot(true)
	if err != nil {
		pw.report(watchError(err, pw.opts.Root))
	}
	pw.prev = prev
	if pw.closed() {
		return
	}
	close(pw.ready)

	ticker := time.NewTicker(pw.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pw.done:
			return
		case <-ticker.C:
			pw.poll()
		}
	}
}

// snapshot walks the tree. When announce is set every entry is reported as
// discovered.
func (pw *pollWatcher) snapshot(announce bool) (map[string]pollEntry, error) {
	cur := make(map[string]pollEntry)
	err := pw.walk(pw.opts.Root, func(path string, d fs.DirEntry) error {
		if path == pw.opts.Root {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		cur[path] = pollEntry{isDir: d.IsDir(), size: info.Size(), modTime: info.ModTime()}
		if announce {
			pw.announce(path, d.IsDir(), info)
		}
		return nil
	})
	return cur, err
}

func (pw *pollWatcher) poll() {
	cur, err := pw.snapshot(false)
	if err != nil {
		pw.logger.Debug(context.Background(), "Poll walk failed", "error", err.Error())
	}

	paths := make([]string, 0, len(cur))
	for p := range cur {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		e := cur[p]
		old, existed := pw.prev[p]
		switch {
		case e.isDir:
			if !existed || !old.isDir {
				pw.announce(p, true, nil)
			}
		case !existed || old.isDir || old.size != e.size || !old.modTime.Equal(e.modTime):
			pw.stab.touch(p)
		}
	}

	gone := make([]string, 0)
	for p := range pw.prev {
		if _, ok := cur[p]; !ok {
			gone = append(gone, p)
		}
	}
	sort.Strings(gone)
	for _, p := range gone {
		pw.removed(p)
	}

	pw.prev = cur
}
