// Package snapshot persists per-collection UI state, such as the selected
// environment, so that it can be restored when a collection is mounted.
package snapshot

import (
	"path/filepath"

	"github.com/conneroisu/bruwatch/internal/errors"
	"github.com/conneroisu/bruwatch/internal/filestore"
	"github.com/conneroisu/bruwatch/internal/types"
)

type document struct {
	Collections []types.Snapshot `yaml:"collections"`
}

// FileStore is a YAML snapshot store.
type FileStore struct {
	file *filestore.File
}

// NewFileStore returns the store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{file: filestore.New(path)}
}

// GetSnapshot returns the stored state of a collection, or nil.
func (s *FileStore) GetSnapshot(pathname string) (*types.Snapshot, error) {
	var doc document
	if err := s.file.Load(&doc); err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeReadFailed, s.file.Path(), "failed to read UI snapshot")
	}
	key := filepath.Clean(pathname)
	for _, c := range doc.Collections {
		if filepath.Clean(c.Pathname) == key {
			snap := c
			return &snap, nil
		}
	}
	return nil, nil
}

// Save stores the state of a collection, replacing any previous one.
func (s *FileStore) Save(snap types.Snapshot) error {
	snap.Pathname = filepath.Clean(snap.Pathname)
	var doc document
	err := s.file.Update(&doc, func() error {
		for i := range doc.Collections {
			if filepath.Clean(doc.Collections[i].Pathname) == snap.Pathname {
				doc.Collections[i] = snap
				return nil
			}
		}
		doc.Collections = append(doc.Collections, snap)
		return nil
	})
	if err != nil {
		return errors.WrapIO(err, errors.ErrCodeWriteFailed, s.file.Path(), "failed to write UI snapshot")
	}
	return nil
}

// Remove drops the state of a collection.
func (s *FileStore) Remove(pathname string) error {
	key := filepath.Clean(pathname)
	var doc document
	err := s.file.Update(&doc, func() error {
		kept := doc.Collections[:0]
		for _, c := range doc.Collections {
			if filepath.Clean(c.Pathname) != key {
				kept = append(kept, c)
			}
		}
		doc.Collections = kept
		return nil
	})
	if err != nil {
		return errors.WrapIO(err, errors.ErrCodeWriteFailed, s.file.Path(), "failed to write UI snapshot")
	}
	return nil
}
