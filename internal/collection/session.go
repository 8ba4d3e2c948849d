package collection

import (
	"context"
	"time"

	"github.com/conneroisu/bruwatch/internal/pipeline"
	"github.com/conneroisu/bruwatch/internal/router"
	"github.com/conneroisu/bruwatch/internal/types"
	"github.com/conneroisu/bruwatch/internal/watcher"
)

// session is one watch of one collection root. A polling restart replaces
// its path watcher but keeps the session, its generation and its guard.
type session struct {
	w     *Watcher
	root  types.CollectionRoot
	gen   uint64
	opts  watcher.Options
	guard ResourceLimitGuard

	pw       watcher.PathWatcher
	stopPump chan struct{}
	timer    *time.Timer
}

func (s *session) target() router.Target {
	return router.Target{Root: s.root, Requests: s}
}

func (s *session) job(path string) pipeline.Job {
	return pipeline.Job{CollectionUID: s.root.UID, CollectionPath: s.root.Pathname, Path: path}
}

// detach closes the active path watcher and its pump.
func (s *session) detach() {
	if s.pw == nil {
		return
	}
	close(s.stopPump)
	if err := s.pw.Close(); err != nil {
		s.w.logger.Warn(s.w.ctx, err, "Failed to close path watcher", "root", s.root.Pathname)
	}
	s.pw = nil
}

func (s *session) stop() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.detach()
}

// AddRequest registers the file as pending and runs it through the
// pipeline. The completion is matched to this session's generation, so a
// parse finishing after a restart of the collection is ignored.
func (s *session) AddRequest(ctx context.Context, f types.WatchedFile) {
	w := s.w
	w.apply(s, w.tracker.AddPending(s.root.UID, f.Pathname))

	gen := s.gen
	w.pipeline.Add(ctx, s.job(f.Pathname), pipeline.Handle{
		Post: w.post,
		Emit: func(rec types.RequestRecord) {
			if w.current(s) {
				w.sink.Publish(rec.TreeUpdate(types.UpdateAddFile, s.root.UID))
			}
		},
		Done: func() {
			if w.current(s) {
				w.apply(s, w.tracker.MarkProcessed(s.root.UID, gen, f.Pathname))
			}
		},
	})
}

// ChangeRequest re-parses a modified file. Changes do not touch the
// loading indicator.
func (s *session) ChangeRequest(ctx context.Context, f types.WatchedFile) {
	w := s.w
	w.pipeline.Change(ctx, s.job(f.Pathname), pipeline.Handle{
		Post: w.post,
		Emit: func(rec types.RequestRecord) {
			if w.current(s) {
				w.sink.Publish(rec.TreeUpdate(types.UpdateChange, s.root.UID))
			}
		},
	})
}

// start creates the path watcher of s. A creation failure caused by the
// watch limit gets the same single polling retry as a runtime error.
func (w *Watcher) start(s *session) {
	pw, err := w.factory(s.opts)
	if err != nil && s.guard.Trip(err, s.opts.ForcePolling) {
		logWatchLimit(w.ctx, w.logger, err, s.root.Pathname)
		s.opts.ForcePolling = true
		pw, err = w.factory(s.opts)
	}
	if err != nil {
		w.errs.Handle(w.ctx, err, "Failed to start watching collection", "collection", s.root.UID)
		// Nothing will be discovered; settle the indicator.
		w.apply(s, w.tracker.CompleteDiscovery(s.root.UID, s.gen))
		return
	}

	s.pw = pw
	s.stopPump = make(chan struct{})
	go w.pump(s, pw, s.stopPump)
}

// pump forwards everything pw reports to the loop. On readiness the
// buffered discovery events are forwarded first, so ready is never
// handled ahead of a file found by the initial walk.
func (w *Watcher) pump(s *session, pw watcher.PathWatcher, stop <-chan struct{}) {
	events, errs, ready := pw.Events(), pw.Errors(), pw.Ready()
	forward := func(ev watcher.Event) {
		w.post(func() { w.onEvent(s, pw, ev) })
	}

	for {
		select {
		case <-stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			forward(ev)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.post(func() { w.onError(s, pw, err) })
		case <-ready:
			ready = nil
		drain:
			for {
				select {
				case ev, ok := <-events:
					if !ok {
						break drain
					}
					forward(ev)
				default:
					break drain
				}
			}
			w.post(func() { w.onReady(s, pw) })
		}
	}
}

func (w *Watcher) onEvent(s *session, pw watcher.PathWatcher, ev watcher.Event) {
	if !w.live(s, pw) {
		return
	}
	w.router.Dispatch(w.ctx, s.target(), ev)
}

func (w *Watcher) onReady(s *session, pw watcher.PathWatcher) {
	if !w.live(s, pw) {
		return
	}
	w.logger.Debug(w.ctx, "Initial scan complete", "collection", s.root.UID, "polling", s.opts.ForcePolling)
	w.apply(s, w.tracker.CompleteDiscovery(s.root.UID, s.gen))
}

// onError restarts the session in polling mode on the first resource
// limit error. Any other error leaves the watcher running as it is.
func (w *Watcher) onError(s *session, pw watcher.PathWatcher, err error) {
	if !w.live(s, pw) {
		return
	}
	if !s.guard.Trip(err, s.opts.ForcePolling) {
		w.errs.Handle(w.ctx, err, "Watcher error", "collection", s.root.UID)
		return
	}

	logWatchLimit(w.ctx, w.logger, err, s.root.Pathname)
	s.detach()
	s.opts.ForcePolling = true
	w.start(s)
}
