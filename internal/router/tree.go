package router

import (
	"context"
	"os"
	"path/filepath"

	"github.com/conneroisu/bruwatch/internal/errors"
	"github.com/conneroisu/bruwatch/internal/types"
	"github.com/conneroisu/bruwatch/internal/uid"
)

func (r *Router) addRoot(ctx context.Context, t Target, f types.WatchedFile) {
	r.loadRoot(ctx, t, f, types.UpdateAddFile)
}

func (r *Router) changeRoot(ctx context.Context, t Target, f types.WatchedFile) {
	r.loadRoot(ctx, t, f, types.UpdateChange)
}

// loadRoot parses collection.bru or folder.bru and publishes it flagged
// as a collection or folder root.
func (r *Router) loadRoot(ctx context.Context, t Target, f types.WatchedFile, kind types.UpdateKind) {
	content, err := os.ReadFile(f.Pathname)
	if err != nil {
		r.fail(ctx, t, f, errors.WrapIO(err, errors.ErrCodeReadFailed, f.Pathname, "failed to read root file"), "Root file unreadable")
		return
	}

	folder := f.Kind == types.KindFolderMetaFile
	var root *types.Root
	if folder {
		root, err = r.parser.ParseFolder(string(content))
	} else {
		root, err = r.parser.ParseCollection(string(content))
	}
	if err != nil {
		r.fail(ctx, t, f, errors.WrapParse(err, f.Pathname, "invalid root file"), "Root file rejected")
		return
	}
	uid.HydrateRoot(root)

	r.publish(&types.TreeUpdate{
		Kind: kind,
		Meta: types.FileMeta{
			CollectionUID:  t.Root.UID,
			Pathname:       f.Pathname,
			Name:           f.Name(),
			CollectionRoot: !folder,
			FolderRoot:     folder,
		},
		Data: root,
	})
}

func (r *Router) unlinkFile(_ context.Context, t Target, f types.WatchedFile) {
	r.publish(&types.TreeUpdate{
		Kind: types.UpdateUnlink,
		Meta: types.FileMeta{
			CollectionUID: t.Root.UID,
			Pathname:      f.Pathname,
			Name:          f.Name(),
			UID:           r.releaseID(f.Pathname),
		},
	})
}

// releaseID returns the id the UI knows for a removed path and drops the
// mapping. A path that never had an id gets a throwaway one.
func (r *Router) releaseID(path string) string {
	id, ok := r.ids.Requests.Lookup(path)
	if !ok {
		id = uid.NewID()
	}
	r.ids.Delete(path)
	return id
}

// unlinkRequest publishes the removal and drops the cached parse.
func (r *Router) unlinkRequest(ctx context.Context, t Target, f types.WatchedFile) {
	r.unlinkFile(ctx, t, f)
	if r.cache == nil {
		return
	}
	if err := r.cache.Invalidate(t.Root.Pathname, f.Pathname); err != nil {
		r.logger.Warn(ctx, err, "Failed to invalidate cached parse", "path", f.Pathname)
	}
}

func (r *Router) addDir(ctx context.Context, t Target, f types.WatchedFile) {
	r.publish(&types.TreeUpdate{
		Kind: types.UpdateAddDir,
		Meta: r.dirMeta(ctx, t, f, r.ids.Requests.GetOrCreate(f.Pathname)),
	})
}

// unlinkDir runs after the unlink of everything below the directory, so
// any id still cached under it belongs to nothing the UI can see.
func (r *Router) unlinkDir(ctx context.Context, t Target, f types.WatchedFile) {
	meta := r.dirMeta(ctx, t, f, r.releaseID(f.Pathname))
	r.ids.Requests.DeleteTree(f.Pathname)
	r.publish(&types.TreeUpdate{
		Kind: types.UpdateUnlinkDir,
		Meta: meta,
	})
}

// dirMeta names a directory after the meta block of its folder.bru when
// one can be read, and after its basename otherwise.
func (r *Router) dirMeta(ctx context.Context, t Target, f types.WatchedFile, id string) types.FileMeta {
	meta := types.FileMeta{
		CollectionUID: t.Root.UID,
		Pathname:      f.Pathname,
		Name:          f.Name(),
		UID:           id,
	}

	content, err := os.ReadFile(filepath.Join(f.Pathname, types.FolderMetaName))
	if err != nil {
		return meta
	}
	root, err := r.parser.ParseFolder(string(content))
	if err != nil {
		r.logger.Debug(ctx, "Ignoring unreadable folder meta", "path", f.Pathname, "error", err.Error())
		return meta
	}
	if root.Meta != nil {
		if root.Meta.Name != "" {
			meta.Name = root.Meta.Name
		}
		meta.Seq = root.Meta.Seq
	}
	return meta
}
