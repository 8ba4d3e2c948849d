package collection

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/conneroisu/bruwatch/internal/errors"
	"github.com/conneroisu/bruwatch/internal/pipeline"
	"github.com/conneroisu/bruwatch/internal/types"
	"github.com/conneroisu/bruwatch/internal/validation"
	"github.com/conneroisu/bruwatch/internal/watcher"
)

// sessionFor returns the session whose root is path, or with rootOnly
// unset, whose tree contains path.
func (w *Watcher) sessionFor(path string, rootOnly bool) (*session, bool) {
	path = filepath.Clean(path)
	for _, s := range w.sessions {
		root := filepath.Clean(s.root.Pathname)
		if path == root {
			return s, true
		}
		if !rootOnly && strings.HasPrefix(path, root+string(filepath.Separator)) {
			return s, true
		}
	}
	return nil, false
}

// lookup finds the session owning path from outside the loop.
func (w *Watcher) lookup(ctx context.Context, path string) (*session, error) {
	var s *session
	if err := w.do(ctx, func() { s, _ = w.sessionFor(path, false) }); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errors.NewValidationError(errors.ErrCodeValidationFailed, "path is not inside a watched collection").WithPath(path)
	}
	return s, nil
}

// LoadFull fully parses a request file that was left partial, ahead of
// any queued parse, and publishes the result as a change. The returned
// error is recoverable when retrying may succeed.
func (w *Watcher) LoadFull(ctx context.Context, collectionUID, pathname string) error {
	var s *session
	if err := w.do(ctx, func() { s = w.sessions[collectionUID] }); err != nil {
		return err
	}
	if s == nil {
		return errors.NewValidationError(errors.ErrCodeValidationFailed, "collection is not watched").WithCollection(collectionUID)
	}
	if watcher.Classify(s.root.Pathname, pathname, false) != types.KindRequestFile {
		return errors.NewValidationError(errors.ErrCodeNotRequestFile, "not a request file").WithPath(pathname)
	}

	return w.pipeline.LoadFull(ctx, s.job(pathname), pipeline.Handle{
		Post: w.post,
		Emit: func(rec types.RequestRecord) {
			if w.current(s) {
				w.sink.Publish(rec.TreeUpdate(types.UpdateChange, s.root.UID))
			}
		},
	})
}

// RenameItem renames a file or directory on disk. Stable ids and cached
// parses are moved first, so the add events that follow the rename carry
// the ids the UI already knows.
func (w *Watcher) RenameItem(ctx context.Context, oldPath, newPath string) error {
	s, err := w.lookup(ctx, oldPath)
	if err != nil {
		return err
	}
	target, err := w.lookup(ctx, newPath)
	if err != nil {
		return err
	}
	if target != s {
		return errors.NewValidationError(errors.ErrCodeValidationFailed, "cannot move an item between collections").WithPath(newPath)
	}

	info, err := os.Stat(oldPath)
	if err != nil {
		return errors.WrapIO(err, errors.ErrCodeReadFailed, oldPath, "rename source")
	}
	if err := validation.ValidateRename(s.root.Pathname, oldPath, newPath, info.IsDir()); err != nil {
		return errors.NewValidationError(errors.ErrCodeValidationFailed, err.Error()).WithPath(newPath)
	}
	if _, err := os.Stat(newPath); err == nil {
		return errors.NewValidationError(errors.ErrCodeValidationFailed, "rename target already exists").WithPath(newPath)
	}

	files := []string{oldPath}
	if info.IsDir() {
		files = treeFiles(oldPath)
	}
	w.moveIDs(ctx, s, oldPath, newPath, files, info.IsDir())

	if err := os.Rename(oldPath, newPath); err != nil {
		moved := make([]string, len(files))
		for i, f := range files {
			moved[i] = newPath + strings.TrimPrefix(f, oldPath)
		}
		w.moveIDs(ctx, s, newPath, oldPath, moved, info.IsDir())
		return errors.WrapIO(err, errors.ErrCodeWriteFailed, oldPath, "rename")
	}

	w.logger.Info(ctx, "Renamed item", "from", oldPath, "to", newPath, "collection", s.root.UID)
	return nil
}

func (w *Watcher) moveIDs(ctx context.Context, s *session, from, to string, files []string, dir bool) {
	if dir {
		w.ids.Requests.MoveTree(from, to)
		for _, f := range files {
			w.ids.Examples.Move(f, to+strings.TrimPrefix(f, from))
		}
	} else {
		w.ids.Move(from, to)
	}

	if w.cache == nil {
		return
	}
	if err := w.cache.Move(s.root.Pathname, from, to); err != nil {
		w.logger.Warn(ctx, err, "Failed to move cached parses", "from", from, "to", to)
	}
}

// DeleteItem removes a file or directory. Stable ids and cached parses are
// released by the unlink events that follow, so the removal messages carry
// the ids the UI already knows.
func (w *Watcher) DeleteItem(ctx context.Context, path string) error {
	s, err := w.lookup(ctx, path)
	if err != nil {
		return err
	}
	if err := validation.ValidateItemPath(s.root.Pathname, path); err != nil {
		return errors.NewValidationError(errors.ErrCodeValidationFailed, err.Error()).WithPath(path)
	}

	if _, err := os.Lstat(path); err != nil {
		return errors.WrapIO(err, errors.ErrCodeReadFailed, path, "delete target")
	}
	if err := os.RemoveAll(path); err != nil {
		return errors.WrapIO(err, errors.ErrCodeWriteFailed, path, "delete")
	}

	w.logger.Info(ctx, "Deleted item", "path", path, "collection", s.root.UID)
	return nil
}

// treeFiles lists the files below dir.
func treeFiles(dir string) []string {
	var files []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	return files
}
