// Package publish provides the sinks every UI-bound message goes through:
// fan-out to several sinks, an in-memory recorder, and a console printer.
package publish

import (
	"sync"

	"github.com/conneroisu/bruwatch/internal/interfaces"
	"github.com/conneroisu/bruwatch/internal/types"
)

// MultiSink publishes every message to each of its sinks in order.
type MultiSink struct {
	mu    sync.RWMutex
	sinks []interfaces.Sink
}

// NewMultiSink creates a fan-out over sinks. Nil sinks are skipped.
func NewMultiSink(sinks ...interfaces.Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		m.Add(s)
	}
	return m
}

// Add appends a sink.
func (m *MultiSink) Add(s interfaces.Sink) {
	if s == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
}

// Publish implements interfaces.Sink.
func (m *MultiSink) Publish(msg types.Message) {
	m.mu.RLock()
	sinks := m.sinks
	m.mu.RUnlock()

	for _, s := range sinks {
		s.Publish(msg)
	}
}

// Recorder keeps every published message. Tests use it to assert on
// message sequences.
type Recorder struct {
	mu       sync.Mutex
	messages []types.Message
	notify   chan struct{}
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

// Publish implements interfaces.Sink.
func (r *Recorder) Publish(msg types.Message) {
	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []types.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Message(nil), r.messages...)
}

// Updated is signalled after each publish. Signals coalesce.
func (r *Recorder) Updated() <-chan struct{} {
	return r.notify
}

// TreeUpdates returns the recorded tree updates.
func (r *Recorder) TreeUpdates() []*types.TreeUpdate {
	var out []*types.TreeUpdate
	for _, m := range r.Messages() {
		if u, ok := m.(*types.TreeUpdate); ok {
			out = append(out, u)
		}
	}
	return out
}

// LoadingStates returns the recorded isLoading values of a collection.
func (r *Recorder) LoadingStates(collectionUID string) []bool {
	var out []bool
	for _, m := range r.Messages() {
		if u, ok := m.(*types.LoadingStateUpdate); ok && u.CollectionUID == collectionUID {
			out = append(out, u.IsLoading)
		}
	}
	return out
}

// Reset drops every recorded message.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}
