// Package registry keeps the last valid bruno.json and .env of every
// watched collection. A failed parse never reaches the registry, so the
// previous values stay in effect.
package registry

import (
	"sync"
	"time"

	"github.com/conneroisu/bruwatch/internal/types"
)

// CollectionRegistry manages the configuration of watched collections
type CollectionRegistry struct {
	collections map[string]*CollectionInfo
	mutex       sync.RWMutex
	watchers    []chan CollectionEvent
}

// CollectionInfo holds the configuration of one collection
type CollectionInfo struct {
	UID         string
	Pathname    string
	BrunoConfig *types.BrunoConfig
	ProcessEnv  map[string]string
	UpdatedAt   time.Time
}

// CollectionEvent represents a change in the registry
type CollectionEvent struct {
	Type       EventType
	Collection *CollectionInfo
	Timestamp  time.Time
}

// EventType represents the type of registry event
type EventType int

const (
	EventTypeRegistered EventType = iota
	EventTypeConfigUpdated
	EventTypeEnvUpdated
	EventTypeRemoved
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeRegistered:
		return "registered"
	case EventTypeConfigUpdated:
		return "config-updated"
	case EventTypeEnvUpdated:
		return "env-updated"
	case EventTypeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// NewCollectionRegistry creates a new collection registry
func NewCollectionRegistry() *CollectionRegistry {
	return &CollectionRegistry{
		collections: make(map[string]*CollectionInfo),
		watchers:    make([]chan CollectionEvent, 0),
	}
}

// Register adds a collection, or updates its path if it is known.
func (r *CollectionRegistry) Register(uid, pathname string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	info := r.entry(uid)
	info.Pathname = pathname
	r.notify(EventTypeRegistered, info)
}

// SetBrunoConfig stores the parsed bruno.json of a collection.
func (r *CollectionRegistry) SetBrunoConfig(uid string, cfg *types.BrunoConfig) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	info := r.entry(uid)
	info.BrunoConfig = cfg
	r.notify(EventTypeConfigUpdated, info)
}

// SetProcessEnv stores the parsed .env of a collection.
func (r *CollectionRegistry) SetProcessEnv(uid string, env map[string]string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	copied := make(map[string]string, len(env))
	for k, v := range env {
		copied[k] = v
	}
	info := r.entry(uid)
	info.ProcessEnv = copied
	r.notify(EventTypeEnvUpdated, info)
}

// entry returns the info of uid, creating it. The caller holds the lock.
func (r *CollectionRegistry) entry(uid string) *CollectionInfo {
	info, ok := r.collections[uid]
	if !ok {
		info = &CollectionInfo{UID: uid}
		r.collections[uid] = info
	}
	info.UpdatedAt = time.Now()
	return info
}

// Get retrieves a copy of the info of a collection
func (r *CollectionRegistry) Get(uid string) (CollectionInfo, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	info, exists := r.collections[uid]
	if !exists {
		return CollectionInfo{}, false
	}
	return *info, true
}

// BrunoConfig returns the last valid bruno.json of a collection, or nil.
func (r *CollectionRegistry) BrunoConfig(uid string) *types.BrunoConfig {
	info, _ := r.Get(uid)
	return info.BrunoConfig
}

// ProcessEnv returns the last valid .env of a collection, or nil.
func (r *CollectionRegistry) ProcessEnv(uid string) map[string]string {
	info, _ := r.Get(uid)
	return info.ProcessEnv
}

// GetAll returns all registered collections
func (r *CollectionRegistry) GetAll() []CollectionInfo {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]CollectionInfo, 0, len(r.collections))
	for _, info := range r.collections {
		result = append(result, *info)
	}
	return result
}

// Remove removes a collection from the registry
func (r *CollectionRegistry) Remove(uid string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	info, exists := r.collections[uid]
	if !exists {
		return
	}
	delete(r.collections, uid)
	r.notify(EventTypeRemoved, info)
}

// notify sends an event to every watcher. The caller holds the lock.
func (r *CollectionRegistry) notify(t EventType, info *CollectionInfo) {
	snapshot := *info
	event := CollectionEvent{
		Type:       t,
		Collection: &snapshot,
		Timestamp:  time.Now(),
	}
	for _, watcher := range r.watchers {
		select {
		case watcher <- event:
		default:
			// Skip if channel is full
		}
	}
}

// Watch returns a channel that receives registry events
func (r *CollectionRegistry) Watch() <-chan CollectionEvent {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ch := make(chan CollectionEvent, 100)
	r.watchers = append(r.watchers, ch)
	return ch
}

// UnWatch removes a watcher channel and closes it
func (r *CollectionRegistry) UnWatch(ch <-chan CollectionEvent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i, watcher := range r.watchers {
		if watcher == ch {
			close(watcher)
			r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
			break
		}
	}
}

// Count returns the number of registered collections
func (r *CollectionRegistry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.collections)
}
