// Package validation checks paths received from outside the process before
// the collection watcher acts on them.
package validation

import (
	"fmt"
	"path/filepath"
	"strings"
)

// reservedChars are rejected in item names because at least one supported
// platform cannot store them.
const reservedChars = `<>:"|?*`

// ValidateItemPath checks that path is an absolute, clean path strictly
// inside root.
func ValidateItemPath(root, path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("path contains a NUL byte")
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("path must be absolute: %s", path)
	}

	cleanRoot := filepath.Clean(root)
	cleanPath := filepath.Clean(path)
	rel, err := filepath.Rel(cleanRoot, cleanPath)
	if err != nil {
		return fmt.Errorf("path is not inside the collection: %s", path)
	}
	if rel == "." {
		return fmt.Errorf("path is the collection root: %s", path)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path traversal detected: %s", path)
	}
	return nil
}

// ValidateItemName checks the last element of a path the UI wants to
// create or rename to.
func ValidateItemName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("invalid name %q", name)
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("name contains a path separator: %q", name)
	}
	if i := strings.IndexAny(name, reservedChars); i >= 0 {
		return fmt.Errorf("name contains reserved character %q", name[i])
	}
	for _, r := range name {
		if r < 32 {
			return fmt.Errorf("name contains a control character: %q", name)
		}
	}
	if strings.TrimRight(name, ". ") != name {
		return fmt.Errorf("name ends with a dot or space: %q", name)
	}
	return nil
}

// ValidateRename checks both ends of a rename inside root. The extension
// of a file must not change, so a request stays a request.
func ValidateRename(root, oldPath, newPath string, isDir bool) error {
	if err := ValidateItemPath(root, oldPath); err != nil {
		return err
	}
	if err := ValidateItemPath(root, newPath); err != nil {
		return err
	}
	if err := ValidateItemName(filepath.Base(newPath)); err != nil {
		return err
	}
	if !isDir && !strings.EqualFold(filepath.Ext(oldPath), filepath.Ext(newPath)) {
		return fmt.Errorf("rename changes the extension: %s -> %s", filepath.Ext(oldPath), filepath.Ext(newPath))
	}
	return nil
}
