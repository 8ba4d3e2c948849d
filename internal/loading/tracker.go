// Package loading tracks, per collection, whether the UI should show a
// loading indicator. A collection moves through three phases:
//
//	Discovering  the initial walk is still reporting files
//	Processing   the walk is done but parses are still pending
//	Idle         nothing is pending
//
// isLoading is true in Discovering, and in Processing, which is never
// entered or kept with an empty pending set. Files arriving while Idle are
// parsed without the indicator unless RearmBurst of them are in flight at
// once. Each transition returns an Effect telling the caller what to
// publish; the tracker itself publishes nothing.
package loading

import "sort"

// RearmBurst is the number of parses started while Idle, and not yet
// finished, that brings the indicator back.
const RearmBurst = 5

// Phase is the loading phase of one collection.
type Phase int

const (
	PhaseDiscovering Phase = iota
	PhaseProcessing
	PhaseIdle
)

// String returns the string representation of the Phase
func (p Phase) String() string {
	switch p {
	case PhaseDiscovering:
		return "discovering"
	case PhaseProcessing:
		return "processing"
	case PhaseIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// Effect is the outcome of a transition.
type Effect struct {
	// Publish is set when isLoading changed and must be sent.
	Publish   bool
	IsLoading bool
	// Hydrate is set when the persisted UI snapshot should be sent.
	Hydrate bool
}

func publish(isLoading bool) Effect {
	return Effect{Publish: true, IsLoading: isLoading}
}

// State is the loading state of one collection.
type State struct {
	phase   Phase
	pending map[string]struct{}
	// late holds parses started while Idle, below the re-arm burst.
	late       map[string]struct{}
	generation uint64
}

func newState(generation uint64) *State {
	return &State{
		phase:      PhaseDiscovering,
		pending:    make(map[string]struct{}),
		late:       make(map[string]struct{}),
		generation: generation,
	}
}

// Phase returns the current phase.
func (s *State) Phase() Phase { return s.phase }

// Generation identifies the watch session the state belongs to.
func (s *State) Generation() uint64 { return s.generation }

// IsLoading derives the indicator value.
func (s *State) IsLoading() bool {
	return s.phase == PhaseDiscovering || (s.phase == PhaseProcessing && len(s.pending) > 0)
}

// Pending returns the pending paths in sorted order.
func (s *State) Pending() []string {
	out := make([]string, 0, len(s.pending))
	for p := range s.pending {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// addPending registers a path whose parse is starting. While Idle the path
// is parsed silently until RearmBurst such parses are in flight, which
// moves all of them to Processing.
func (s *State) addPending(path string) Effect {
	if s.phase != PhaseIdle {
		s.pending[path] = struct{}{}
		return Effect{}
	}

	s.late[path] = struct{}{}
	if len(s.late) < RearmBurst {
		return Effect{}
	}
	s.pending, s.late = s.late, make(map[string]struct{})
	s.phase = PhaseProcessing
	return publish(true)
}

// markProcessed removes a path whose parse finished. It is idempotent.
func (s *State) markProcessed(path string) Effect {
	delete(s.late, path)
	delete(s.pending, path)
	if s.phase == PhaseProcessing && len(s.pending) == 0 {
		s.phase = PhaseIdle
		return publish(false)
	}
	return Effect{}
}

// completeDiscovery handles the end of the initial walk.
func (s *State) completeDiscovery() Effect {
	if s.phase != PhaseDiscovering {
		return Effect{}
	}
	if len(s.pending) == 0 {
		s.phase = PhaseIdle
		return Effect{Publish: true, IsLoading: false, Hydrate: true}
	}
	s.phase = PhaseProcessing
	return Effect{Hydrate: true}
}

// Tracker holds the loading state of every watched collection. It is owned
// by a single goroutine and is not safe for concurrent use.
type Tracker struct {
	states  map[string]*State
	nextGen uint64
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{states: make(map[string]*State)}
}

// Start begins a watch session for a collection, replacing any previous
// state, and enters Discovering. The returned generation tags every
// completion of the session.
func (t *Tracker) Start(collectionUID string) (uint64, Effect) {
	t.nextGen++
	t.states[collectionUID] = newState(t.nextGen)
	return t.nextGen, publish(true)
}

// State returns the state of a collection.
func (t *Tracker) State(collectionUID string) (*State, bool) {
	s, ok := t.states[collectionUID]
	return s, ok
}

// Current reports whether generation is the live session of a collection.
func (t *Tracker) Current(collectionUID string, generation uint64) bool {
	s, ok := t.states[collectionUID]
	return ok && s.generation == generation
}

// AddPending registers a parse for path. Unknown collections are ignored.
func (t *Tracker) AddPending(collectionUID, path string) Effect {
	s, ok := t.states[collectionUID]
	if !ok {
		return Effect{}
	}
	return s.addPending(path)
}

// MarkProcessed records the end of a parse started in generation. Stale
// generations and unknown collections are ignored.
func (t *Tracker) MarkProcessed(collectionUID string, generation uint64, path string) Effect {
	if !t.Current(collectionUID, generation) {
		return Effect{}
	}
	return t.states[collectionUID].markProcessed(path)
}

// CompleteDiscovery handles the end of the initial walk of a collection.
func (t *Tracker) CompleteDiscovery(collectionUID string, generation uint64) Effect {
	if !t.Current(collectionUID, generation) {
		return Effect{}
	}
	return t.states[collectionUID].completeDiscovery()
}

// Remove drops the state of a collection.
func (t *Tracker) Remove(collectionUID string) {
	delete(t.states, collectionUID)
}

// IsLoading reports the indicator value of a collection.
func (t *Tracker) IsLoading(collectionUID string) bool {
	s, ok := t.states[collectionUID]
	return ok && s.IsLoading()
}
