package watcher

import (
	"sync"
	"time"
)

// stabilizer holds file events back until a path has been quiet for delay.
// Each new event for a path restarts its timer, so an autosave loop yields
// one event once the writes stop.
type stabilizer struct {
	delay   time.Duration
	fire    func(path string)
	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

func newStabilizer(delay time.Duration, fire func(path string)) *stabilizer {
	return &stabilizer{
		delay:  delay,
		fire:   fire,
		timers: make(map[string]*time.Timer),
	}
}

// touch records activity on path.
func (s *stabilizer) touch(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if t, ok := s.timers[path]; ok {
		t.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		if s.timers[path] != t {
			s.mu.Unlock()
			return
		}
		delete(s.timers, path)
		s.mu.Unlock()

		s.fire(path)
	})
	s.timers[path] = t
}

// cancel drops any pending event for path.
func (s *stabilizer) cancel(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[path]; ok {
		t.Stop()
		delete(s.timers, path)
	}
}

func (s *stabilizer) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *stabilizer) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for path, t := range s.timers {
		t.Stop()
		delete(s.timers, path)
	}
}
