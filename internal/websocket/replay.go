package websocket

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/bruwatch/internal/registry"
	"github.com/conneroisu/bruwatch/internal/types"
)

// replay is the latest state of every collection, sent to a client when it
// connects so it never depends on having seen earlier broadcasts. Entries
// carry the time they were published; a removed collection forgets what
// was published before its removal.
type replay struct {
	mu          sync.Mutex
	collections map[string]*collectionState
	forgotten   map[string]time.Time
	seq         uint64
}

type collectionState struct {
	config   *stamped
	env      *stamped
	snapshot *stamped
	loading  *stamped
	tree     map[string]*stamped
}

type stamped struct {
	msg types.Message
	at  time.Time
	seq uint64
}

func newReplay() *replay {
	return &replay{
		collections: make(map[string]*collectionState),
		forgotten:   make(map[string]time.Time),
	}
}

// collectionOf returns the collection a message belongs to, or "" for
// messages that are not part of any collection's state.
func collectionOf(msg types.Message) string {
	switch m := msg.(type) {
	case *types.TreeUpdate:
		return m.Meta.CollectionUID
	case *types.BrunoConfigUpdate:
		return m.CollectionUID
	case *types.ProcessEnvUpdate:
		return m.CollectionUID
	case *types.SnapshotHydration:
		return m.CollectionUID
	case *types.LoadingStateUpdate:
		return m.CollectionUID
	default:
		return ""
	}
}

// apply folds a published message into the state.
func (r *replay) apply(msg types.Message, at time.Time) {
	uid := collectionOf(msg)
	if uid == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.forgotten[uid]; ok && at.Before(t) {
		return
	}
	c, ok := r.collections[uid]
	if !ok {
		c = &collectionState{tree: make(map[string]*stamped)}
		r.collections[uid] = c
	}
	r.seq++
	entry := &stamped{msg: msg, at: at, seq: r.seq}

	switch m := msg.(type) {
	case *types.BrunoConfigUpdate:
		c.config = entry
	case *types.ProcessEnvUpdate:
		c.env = entry
	case *types.SnapshotHydration:
		c.snapshot = entry
	case *types.LoadingStateUpdate:
		c.loading = entry
	case *types.TreeUpdate:
		c.applyTree(m, entry)
	}
}

func (c *collectionState) applyTree(u *types.TreeUpdate, entry *stamped) {
	path := u.Meta.Pathname
	switch u.Kind {
	case types.UpdateUnlink, types.UpdateUnlinkEnvironmentFile:
		delete(c.tree, path)
		return
	case types.UpdateUnlinkDir:
		prefix := path + string(filepath.Separator)
		for p := range c.tree {
			if p == path || strings.HasPrefix(p, prefix) {
				delete(c.tree, p)
			}
		}
		return
	case types.UpdateChange:
		// A change of a file the client never saw is an add for it.
		copied := *u
		copied.Kind = types.UpdateAddFile
		entry.msg = &copied
	}

	// An update keeps the position of the item it replaces, so parents
	// stay ahead of their children.
	if prev, ok := c.tree[path]; ok {
		entry.seq = prev.seq
	}
	c.tree[path] = entry
}

// forget drops what was published for a collection before at, and ignores
// such messages should they still be on their way.
func (r *replay) forget(uid string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.forgotten[uid] = at
	c, ok := r.collections[uid]
	if !ok {
		return
	}
	for _, e := range []**stamped{&c.config, &c.env, &c.snapshot, &c.loading} {
		if *e != nil && (*e).at.Before(at) {
			*e = nil
		}
	}
	for p, e := range c.tree {
		if e.at.Before(at) {
			delete(c.tree, p)
		}
	}
}

// messages returns the state in the order a client needs it: per
// collection its configuration, then its tree, then its snapshot and
// finally its loading state.
func (r *replay) messages() []types.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	uids := make([]string, 0, len(r.collections))
	for uid := range r.collections {
		uids = append(uids, uid)
	}
	sort.Strings(uids)

	var out []types.Message
	for _, uid := range uids {
		c := r.collections[uid]
		for _, e := range []*stamped{c.config, c.env} {
			if e != nil {
				out = append(out, e.msg)
			}
		}

		tree := make([]*stamped, 0, len(c.tree))
		for _, e := range c.tree {
			tree = append(tree, e)
		}
		sort.Slice(tree, func(i, j int) bool { return tree[i].seq < tree[j].seq })
		for _, e := range tree {
			out = append(out, e.msg)
		}

		for _, e := range []*stamped{c.snapshot, c.loading} {
			if e != nil {
				out = append(out, e.msg)
			}
		}
	}
	return out
}

// Follow forgets the state of every collection removed from the registry
// until events is closed.
func (h *Hub) Follow(events <-chan registry.CollectionEvent) {
	go func() {
		for ev := range events {
			if ev.Type != registry.EventTypeRemoved || ev.Collection == nil {
				continue
			}
			h.state.forget(ev.Collection.UID, ev.Timestamp)
			h.logger.Debug(h.ctx, "Forgot collection state", "collection", ev.Collection.UID)
		}
	}()
}
