// Package uid maps file paths to stable opaque identifiers. Identifiers
// survive renames and moves only through an explicit Move; they are never
// derived from the path, so a path that is deleted and recreated gets a new
// identity.
package uid

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// Normalize returns the cache key for a path. Paths are cleaned and folded
// to NFC so that the same file reported in decomposed form (macOS) and
// composed form maps to the same entry.
func Normalize(path string) string {
	return norm.NFC.String(filepath.Clean(path))
}

// NewID returns a fresh opaque identifier.
func NewID() string {
	return uuid.NewString()
}

// Cache maps request file paths to identifiers.
type Cache struct {
	mu    sync.Mutex
	ids   map[string]string
	newID func() string
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		ids:   make(map[string]string),
		newID: NewID,
	}
}

// GetOrCreate returns the id bound to path, minting one if none exists.
func (c *Cache) GetOrCreate(path string) string {
	key := Normalize(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.ids[key]; ok {
		return id
	}
	id := c.newID()
	c.ids[key] = id
	return id
}

// Lookup returns the id bound to path without minting.
func (c *Cache) Lookup(path string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.ids[Normalize(path)]
	return id, ok
}

// Move re-keys the id bound to oldPath under newPath. It reports false and
// changes nothing when oldPath has no id.
func (c *Cache) Move(oldPath, newPath string) (string, bool) {
	oldKey, newKey := Normalize(oldPath), Normalize(newPath)

	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.ids[oldKey]
	if !ok {
		return "", false
	}
	delete(c.ids, oldKey)
	c.ids[newKey] = id
	return id, true
}

// MoveTree re-keys every id at or below oldDir to the same relative
// location below newDir. It returns the number of ids moved.
func (c *Cache) MoveTree(oldDir, newDir string) int {
	oldKey, newKey := Normalize(oldDir), Normalize(newDir)
	prefix := oldKey + string(filepath.Separator)

	c.mu.Lock()
	defer c.mu.Unlock()

	moved := make(map[string]string)
	for key, id := range c.ids {
		switch {
		case key == oldKey:
			moved[newKey] = id
		case strings.HasPrefix(key, prefix):
			moved[newKey+key[len(oldKey):]] = id
		default:
			continue
		}
		delete(c.ids, key)
	}
	for key, id := range moved {
		c.ids[key] = id
	}
	return len(moved)
}

// Delete drops the mapping for path.
func (c *Cache) Delete(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.ids, Normalize(path))
}

// DeleteTree drops the mapping for dir and every path below it.
func (c *Cache) DeleteTree(dir string) int {
	key := Normalize(dir)
	prefix := key + string(filepath.Separator)

	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k := range c.ids {
		if k == key || strings.HasPrefix(k, prefix) {
			delete(c.ids, k)
			n++
		}
	}
	return n
}

// Len returns the number of cached ids.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}

type exampleKey struct {
	path  string
	index int
}

// ExampleCache maps (path, index) pairs to the ids of response examples
// nested inside a request file.
type ExampleCache struct {
	mu    sync.Mutex
	ids   map[exampleKey]string
	newID func() string
}

// NewExampleCache creates an empty example cache.
func NewExampleCache() *ExampleCache {
	return &ExampleCache{
		ids:   make(map[exampleKey]string),
		newID: NewID,
	}
}

// GetOrCreate returns the id of the index-th example of path.
func (c *ExampleCache) GetOrCreate(path string, index int) string {
	key := exampleKey{Normalize(path), index}

	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.ids[key]; ok {
		return id
	}
	id := c.newID()
	c.ids[key] = id
	return id
}

// Sync replaces the example ids of path with uids, in order. Empty entries
// keep whatever id the index had. Indices beyond len(uids) are dropped.
func (c *ExampleCache) Sync(path string, uids []string) {
	p := Normalize(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.ids {
		if key.path == p && key.index >= len(uids) {
			delete(c.ids, key)
		}
	}
	for i, id := range uids {
		if id == "" {
			continue
		}
		c.ids[exampleKey{p, i}] = id
	}
}

// Move re-keys every example id of oldPath under newPath.
func (c *ExampleCache) Move(oldPath, newPath string) {
	oldP, newP := Normalize(oldPath), Normalize(newPath)

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, id := range c.ids {
		if key.path == oldP {
			delete(c.ids, key)
			c.ids[exampleKey{newP, key.index}] = id
		}
	}
}

// DeleteAll drops every example id of path.
func (c *ExampleCache) DeleteAll(path string) {
	p := Normalize(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.ids {
		if key.path == p {
			delete(c.ids, key)
		}
	}
}

// Caches bundles the request and example caches. One instance is created at
// startup and handed to every component that needs stable identities.
type Caches struct {
	Requests *Cache
	Examples *ExampleCache
}

// NewCaches creates empty request and example caches.
func NewCaches() *Caches {
	return &Caches{
		Requests: NewCache(),
		Examples: NewExampleCache(),
	}
}

// Move moves the request id and every example id of a file.
func (c *Caches) Move(oldPath, newPath string) {
	c.Requests.Move(oldPath, newPath)
	c.Examples.Move(oldPath, newPath)
}

// Delete drops the request id and every example id of a file.
func (c *Caches) Delete(path string) {
	c.Requests.Delete(path)
	c.Examples.DeleteAll(path)
}
