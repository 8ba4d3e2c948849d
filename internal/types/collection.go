// Package types provides the data model shared by the watcher, the parsing
// pipeline, the event router and the outbound transport. It has no
// dependencies on other internal packages so every layer can import it.
package types

import "path/filepath"

// RequestFileExt is the extension of request, folder, collection and
// environment files.
const RequestFileExt = ".bru"

// Well-known names inside a collection root.
const (
	BrunoConfigName    = "bruno.json"
	DotEnvName         = ".env"
	CollectionRootName = "collection.bru"
	FolderMetaName     = "folder.bru"
	EnvironmentsDir    = "environments"
)

// FileKind classifies a path inside a collection.
type FileKind int

const (
	KindOther FileKind = iota
	KindBrunoConfig
	KindDotEnv
	KindEnvironmentConfig
	KindCollectionRootFile
	KindFolderMetaFile
	KindRequestFile
	// KindDirectory is any folder item inside the collection.
	KindDirectory
	// KindEnvironmentsDirectory is <root>/environments, a generic directory
	// that folder handlers skip.
	KindEnvironmentsDirectory
)

// String returns the string representation of the FileKind
func (k FileKind) String() string {
	switch k {
	case KindBrunoConfig:
		return "bruno-config"
	case KindDotEnv:
		return "dotenv"
	case KindEnvironmentConfig:
		return "environment"
	case KindCollectionRootFile:
		return "collection-root"
	case KindFolderMetaFile:
		return "folder-meta"
	case KindRequestFile:
		return "request"
	case KindDirectory:
		return "directory"
	case KindEnvironmentsDirectory:
		return "environments-directory"
	case KindOther:
		return "other"
	default:
		return "unknown"
	}
}

// IsDir reports whether the kind describes a directory.
func (k FileKind) IsDir() bool {
	return k == KindDirectory || k == KindEnvironmentsDirectory
}

// AllKinds lists every FileKind. Handler tables are checked against it.
func AllKinds() []FileKind {
	return []FileKind{
		KindOther,
		KindBrunoConfig,
		KindDotEnv,
		KindEnvironmentConfig,
		KindCollectionRootFile,
		KindFolderMetaFile,
		KindRequestFile,
		KindDirectory,
		KindEnvironmentsDirectory,
	}
}

// CollectionRoot identifies one watched tree.
type CollectionRoot struct {
	UID            string   `json:"uid"`
	Pathname       string   `json:"pathname"`
	IgnorePatterns []string `json:"ignorePatterns,omitempty"`
}

// EnvironmentsPath returns <root>/environments.
func (c CollectionRoot) EnvironmentsPath() string {
	return filepath.Join(c.Pathname, EnvironmentsDir)
}

// WatchedFile is a classified path belonging to a collection.
type WatchedFile struct {
	Pathname      string   `json:"pathname"`
	Kind          FileKind `json:"kind"`
	CollectionUID string   `json:"collectionUid"`
}

// Name returns the basename of the file.
func (f WatchedFile) Name() string {
	return filepath.Base(f.Pathname)
}
