// Package testutils holds fixtures shared by package tests: on-disk
// collections, request files and polling helpers.
package testutils

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conneroisu/bruwatch/internal/types"
)

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// WriteCollection writes files (slash separated, relative to root) in
// lexical order.
func WriteCollection(t *testing.T, root string, files map[string]string) {
	t.Helper()
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		WriteFile(t, filepath.Join(root, filepath.FromSlash(name)), files[name])
	}
}

// NewCollection creates a collection in a temp dir with a bruno.json plus
// the given files.
func NewCollection(t *testing.T, uid string, files map[string]string) types.CollectionRoot {
	t.Helper()
	root := t.TempDir()
	if _, ok := files[types.BrunoConfigName]; !ok {
		WriteFile(t, filepath.Join(root, types.BrunoConfigName), `{"version":"1","name":"`+uid+`","type":"collection"}`)
	}
	WriteCollection(t, root, files)
	return types.CollectionRoot{UID: uid, Pathname: root}
}

// RequestBru renders a small GET request file.
func RequestBru(name string, seq int) string {
	return fmt.Sprintf("meta {\n  name: %s\n  type: http\n  seq: %d\n}\n\nget {\n  url: {{baseUrl}}/%s\n  body: none\n  auth: none\n}\n", name, seq, name)
}

// WaitForFileChange fails the test unless path is modified after since
// within timeout.
func WaitForFileChange(t *testing.T, path string, since time.Time, timeout time.Duration) {
	t.Helper()
	require.Eventually(t, func() bool {
		info, err := os.Stat(path)
		return err == nil && info.ModTime().After(since)
	}, timeout, 10*time.Millisecond, "%s was not modified within %v", path, timeout)
}
