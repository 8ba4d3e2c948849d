// Package filestore reads and writes small YAML documents shared between
// processes. Every access holds a lock on "<path>.lock"; writes go to a
// temporary file that is renamed over the target so readers never see a
// partial document.
package filestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

// File is a YAML document guarded by a lock file.
type File struct {
	path string
	lock *flock.Flock
}

// New returns a handle for the document at path.
func New(path string) *File {
	return &File{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Path returns the document location.
func (f *File) Path() string {
	return f.path
}

// Load decodes the document into v under a shared lock. A missing
// document leaves v untouched and returns nil.
func (f *File) Load(v interface{}) error {
	if _, err := os.Stat(f.path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := f.lock.RLock(); err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", f.path, err)
	}
	defer func() { _ = f.lock.Unlock() }()

	return f.read(v)
}

// Update loads the document into v, applies fn, and writes v back, all
// under one exclusive lock. Nothing is written when fn fails.
func (f *File) Update(v interface{}, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", f.path, err)
	}
	if err := f.lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", f.path, err)
	}
	defer func() { _ = f.lock.Unlock() }()

	if err := f.read(v); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", f.path, err)
	}
	return AtomicWrite(f.path, data)
}

func (f *File) read(v interface{}) error {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", f.path, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", f.path, err)
	}
	return nil
}

// AtomicWrite writes data to path through a temporary file in the same
// directory followed by a rename.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	defer func() {
		if tempFile != nil {
			_ = tempFile.Close()
			_ = os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	// Stores may hold secrets.
	if err := os.Chmod(tempPath, 0o600); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}

	tempFile = nil
	return nil
}
