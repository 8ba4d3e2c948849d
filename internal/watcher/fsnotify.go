package watcher

import (
	"context"
	"io/fs"
	"os"

	"github.com/fsnotify/fsnotify"
)

// fsWatcher is the native backend. fsnotify watches are per directory, so
// every directory of the tree is added as it is discovered.
type fsWatcher struct {
	*base
	w *fsnotify.Watcher
}

func newFSWatcher(opts Options) (*fsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, watchError(err, opts.Root)
	}

	fw := &fsWatcher{
		base: newBase(opts, "fsnotify"),
		w:    w,
	}
	go fw.run()
	return fw, nil
}

// Close stops the watcher and releases every watch.
func (fw *fsWatcher) Close() error {
	if !fw.shutdown() {
		return nil
	}
	return fw.w.Close()
}

func (fw *fsWatcher) run() {
	if err := fw.scan(fw.opts.Root); err != nil {
		fw.report(watchError(err, fw.opts.Root))
	}
	if fw.closed() {
		return
	}
	close(fw.ready)
	fw.watchLoop()
}

// scan adds a watch for every directory at or below dir and reports every
// path it finds. A failed watch is reported and the walk continues, so
// existing files are still discovered.
func (fw *fsWatcher) scan(dir string) error {
	return fw.walk(dir, func(path string, d fs.DirEntry) error {
		if d.IsDir() {
			if err := fw.w.Add(path); err != nil {
				fw.report(watchError(err, path))
			}
			if path != fw.opts.Root {
				fw.announce(path, true, nil)
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		fw.announce(path, false, info)
		return nil
	})
}

func (fw *fsWatcher) watchLoop() {
	for {
		select {
		case <-fw.done:
			return
		case event, ok := <-fw.w.Events:
			if !ok {
				return
			}
			fw.handleFsnotifyEvent(event)
		case err, ok := <-fw.w.Errors:
			if !ok {
				return
			}
			fw.report(watchError(err, fw.opts.Root))
		}
	}
}

func (fw *fsWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	path := event.Name
	if fw.filter.Ignored(path) || fw.depth(path) > fw.opts.Depth {
		return
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		fw.removed(path)

	case event.Has(fsnotify.Create):
		info, err := os.Lstat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			if err := fw.scan(path); err != nil {
				fw.logger.Debug(context.Background(), "Directory vanished before scan", "path", path)
			}
			return
		}
		fw.stab.touch(path)

	case event.Has(fsnotify.Write):
		fw.mu.Lock()
		isDir := fw.known[path]
		fw.mu.Unlock()
		if !isDir {
			fw.stab.touch(path)
		}
	}
}
