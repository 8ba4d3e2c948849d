package watcher

import (
	"path/filepath"

	"github.com/conneroisu/bruwatch/internal/types"
)

// Classify returns the kind of path inside the collection rooted at root.
// Rules are applied in order and the first match wins. The root itself is
// KindOther.
func Classify(root, path string, isDir bool) types.FileKind {
	root = filepath.Clean(root)
	path = filepath.Clean(path)
	if path == root {
		return types.KindOther
	}

	envDir := filepath.Join(root, types.EnvironmentsDir)
	if isDir {
		if path == envDir {
			return types.KindEnvironmentsDirectory
		}
		return types.KindDirectory
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	isBru := filepath.Ext(path) == types.RequestFileExt

	switch {
	case dir == root && base == types.DotEnvName:
		return types.KindDotEnv
	case dir == root && base == types.BrunoConfigName:
		return types.KindBrunoConfig
	case dir == envDir && isBru:
		return types.KindEnvironmentConfig
	case dir == root && base == types.CollectionRootName:
		return types.KindCollectionRootFile
	case base == types.FolderMetaName:
		return types.KindFolderMetaFile
	case isBru:
		return types.KindRequestFile
	default:
		return types.KindOther
	}
}

// ClassifyEvent classifies the path of ev for the collection c.
func ClassifyEvent(c types.CollectionRoot, ev Event) types.WatchedFile {
	return types.WatchedFile{
		Pathname:      ev.Path,
		Kind:          Classify(c.Pathname, ev.Path, ev.Type.IsDir()),
		CollectionUID: c.UID,
	}
}
