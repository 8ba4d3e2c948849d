// Package pipeline turns request files into the records the UI renders.
//
// With worker threads enabled an added file yields up to three records: a
// metadata-only placeholder (partial), a loading record, and the final
// parse. Files at or above the large-file threshold stop after the
// placeholder until LoadFull is called for them. Full parses run on a
// fixed worker pool behind a bounded queue, so a slow parse never holds up
// the goroutine that services filesystem events.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/conneroisu/bruwatch/internal/config"
	"github.com/conneroisu/bruwatch/internal/errors"
	"github.com/conneroisu/bruwatch/internal/interfaces"
	"github.com/conneroisu/bruwatch/internal/logging"
	"github.com/conneroisu/bruwatch/internal/types"
	"github.com/conneroisu/bruwatch/internal/uid"
)

// Config selects the parse strategy.
type Config struct {
	// WorkerThreads enables placeholder records and pool parses.
	WorkerThreads bool
	// LargeFileThreshold is the size in bytes at which files are only
	// parsed on demand, and changes go through redaction.
	LargeFileThreshold int64
}

// Job identifies one request file of a collection.
type Job struct {
	CollectionUID  string
	CollectionPath string
	Path           string
}

// Handle routes the records of one job back to its owner. Emit and Done
// are always invoked through Post, in order, so the owner sees the
// records of a file in causal order. A nil Post calls directly.
type Handle struct {
	Post func(fn func())
	Emit func(rec types.RequestRecord)
	Done func()
}

func (h Handle) post(fn func()) {
	if h.Post == nil {
		fn()
		return
	}
	h.Post(fn)
}

func (h Handle) emit(rec types.RequestRecord) {
	if h.Emit == nil {
		return
	}
	h.post(func() { h.Emit(rec) })
}

func (h Handle) done() {
	if h.Done == nil {
		return
	}
	h.post(h.Done)
}

// Pipeline selects and runs the parse strategy for request files.
type Pipeline struct {
	cfg    Config
	parser TaskParser
	pool   *Pool
	cache  interfaces.ParseCache
	ids    *uid.Caches
	logger logging.Logger
	loads  singleflight.Group

	changes changeSeq
}

// changeSeq numbers the changes of each file so that only the completion
// of the latest one is published.
type changeSeq struct {
	mu     sync.Mutex
	next   uint64
	latest map[string]uint64
}

func (c *changeSeq) begin(path string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.latest == nil {
		c.latest = make(map[string]uint64)
	}
	c.next++
	c.latest[path] = c.next
	return c.next
}

// finish reports whether seq is still the latest change of path, and
// forgets the path when it is.
func (c *changeSeq) finish(path string, seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.latest[path] != seq {
		return false
	}
	delete(c.latest, path)
	return true
}

// New creates a pipeline. pool may be nil when worker threads are
// disabled; cache may be nil to disable the parse cache.
func New(cfg Config, parser TaskParser, pool *Pool, cache interfaces.ParseCache, ids *uid.Caches, logger logging.Logger) *Pipeline {
	if cfg.LargeFileThreshold <= 0 {
		cfg.LargeFileThreshold = config.DefaultLargeFileThreshold
	}
	if ids == nil {
		ids = uid.NewCaches()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Pipeline{
		cfg:    cfg,
		parser: parser,
		pool:   pool,
		cache:  cache,
		ids:    ids,
		logger: logger.WithComponent("pipeline"),
	}
}

// Config returns the active configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Add processes a newly discovered request file. In synchronous mode it
// runs to completion on the calling goroutine and emits at most one
// record; otherwise it returns at once and reports through h. h.Done is
// called exactly once in both modes, after the last record.
func (p *Pipeline) Add(ctx context.Context, job Job, h Handle) {
	if !p.cfg.WorkerThreads {
		p.addSync(ctx, job, h)
		return
	}
	go p.addAsync(ctx, job, h)
}

func (p *Pipeline) addSync(ctx context.Context, job Job, h Handle) {
	defer h.done()

	text, info, err := readFile(job.Path)
	if err != nil {
		p.logFailure(ctx, job, err)
		return
	}
	req, err := p.fullParse(ctx, job, text, info.ModTime(), TaskParse, false)
	if err != nil {
		p.logFailure(ctx, job, err)
		return
	}
	p.ids.HydrateRequest(req, job.Path)
	h.emit(p.record(job, req, info.Size(), false, false))
}

func (p *Pipeline) addAsync(ctx context.Context, job Job, h Handle) {
	defer h.done()

	text, info, err := readFile(job.Path)
	if err != nil {
		p.logFailure(ctx, job, err)
		h.emit(p.failed(job, 0, err))
		return
	}
	size := info.Size()

	meta, err := p.parser.ParseMeta(text)
	if err != nil {
		err = errors.WrapParse(err, job.Path, "metadata parse failed")
		p.logFailure(ctx, job, err)
		h.emit(p.failed(job, size, err))
		return
	}
	meta.UID = p.ids.Requests.GetOrCreate(job.Path)
	h.emit(p.record(job, meta, size, true, false))

	if size >= p.cfg.LargeFileThreshold {
		p.logger.Debug(ctx, "Large request left partial", "path", job.Path, "size", size)
		return
	}

	h.emit(p.record(job, meta, size, false, true))

	req, err := p.fullParse(ctx, job, text, info.ModTime(), TaskParse, false)
	if err != nil {
		p.logFailure(ctx, job, err)
		h.emit(p.failed(job, size, err))
		return
	}
	p.ids.HydrateRequest(req, job.Path)
	h.emit(p.record(job, req, size, false, false))
}

// Change re-parses a modified request file. Files at or above the
// large-file threshold go through redaction. A failure is logged and
// nothing is emitted. Changes are numbered in call order, and a
// completion is dropped once a later change of the same file was made,
// so a slow parse never overwrites a newer one.
func (p *Pipeline) Change(ctx context.Context, job Job, h Handle) {
	seq := p.changes.begin(uid.Normalize(job.Path))
	if !p.cfg.WorkerThreads {
		p.change(ctx, job, seq, h)
		return
	}
	go p.change(ctx, job, seq, h)
}

func (p *Pipeline) change(ctx context.Context, job Job, seq uint64, h Handle) {
	defer h.done()

	rec, ok := p.reparse(ctx, job)
	h.post(func() {
		if !p.changes.finish(uid.Normalize(job.Path), seq) {
			p.logger.Debug(ctx, "Dropped superseded change", "path", job.Path)
			return
		}
		if ok && h.Emit != nil {
			h.Emit(rec)
		}
	})
}

func (p *Pipeline) reparse(ctx context.Context, job Job) (types.RequestRecord, bool) {
	text, info, err := readFile(job.Path)
	if err != nil {
		p.logFailure(ctx, job, err)
		return types.RequestRecord{}, false
	}
	kind := TaskParse
	if info.Size() >= p.cfg.LargeFileThreshold {
		kind = TaskRedacted
	}
	req, err := p.fullParse(ctx, job, text, info.ModTime(), kind, false)
	if err != nil {
		p.logFailure(ctx, job, err)
		return types.RequestRecord{}, false
	}
	p.ids.HydrateRequest(req, job.Path)
	return p.record(job, req, info.Size(), false, false), true
}

// LoadFull parses a file on demand, ahead of queued work. It emits a
// loading record and then either the final record or a partial record
// carrying the error. Concurrent loads of one path share a single parse
// and report through the first caller's handle. The returned error is
// recoverable when a retry may succeed.
func (p *Pipeline) LoadFull(ctx context.Context, job Job, h Handle) error {
	_, err, _ := p.loads.Do(uid.Normalize(job.Path), func() (interface{}, error) {
		return nil, p.loadFull(ctx, job, h)
	})
	return err
}

func (p *Pipeline) loadFull(ctx context.Context, job Job, h Handle) error {
	text, info, err := readFile(job.Path)
	if err != nil {
		h.emit(p.failed(job, 0, err))
		return err
	}
	size := info.Size()

	meta, err := p.parser.ParseMeta(text)
	if err != nil {
		err = errors.WrapParse(err, job.Path, "metadata parse failed")
		h.emit(p.failed(job, size, err))
		return err
	}
	meta.UID = p.ids.Requests.GetOrCreate(job.Path)
	h.emit(p.record(job, meta, size, false, true))

	kind := TaskParse
	if size >= p.cfg.LargeFileThreshold {
		kind = TaskRedacted
	}
	req, err := p.fullParse(ctx, job, text, info.ModTime(), kind, true)
	if err != nil {
		p.logFailure(ctx, job, err)
		h.emit(p.failed(job, size, err))
		return err
	}
	p.ids.HydrateRequest(req, job.Path)
	h.emit(p.record(job, req, size, false, false))
	return nil
}

// fullParse returns a cached parse when the file is unchanged, otherwise
// parses on the pool, or inline when there is none, and caches the result.
func (p *Pipeline) fullParse(ctx context.Context, job Job, text string, modTime time.Time, kind TaskKind, priority bool) (*types.Request, error) {
	if p.cache != nil {
		if req, ok := p.cache.Get(job.CollectionPath, job.Path, modTime); ok {
			if p.pool != nil {
				p.pool.Metrics().RecordCacheHit()
			}
			return req, nil
		}
	}

	var (
		req *types.Request
		err error
	)
	if p.pool == nil {
		req, err = p.parseInline(kind, job.Path, text)
	} else {
		req, err = p.parseOnPool(ctx, kind, job.Path, text, priority)
	}
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		if cerr := p.cache.Put(job.CollectionPath, job.Path, modTime, req); cerr != nil {
			p.logger.Warn(ctx, cerr, "Parse cache write failed", "path", job.Path)
		}
	}
	return req, nil
}

func (p *Pipeline) parseInline(kind TaskKind, path, text string) (*types.Request, error) {
	var (
		req *types.Request
		err error
	)
	if kind == TaskRedacted {
		req, err = p.parser.ParseRedacted(text)
	} else {
		req, err = p.parser.ParseRequest(text)
	}
	if err != nil {
		return nil, errors.WrapParse(err, path, "request parse failed")
	}
	return req, nil
}

func (p *Pipeline) parseOnPool(ctx context.Context, kind TaskKind, path, text string, priority bool) (*types.Request, error) {
	submit := p.pool.Submit
	if priority {
		submit = p.pool.SubmitPriority
	}
	f, err := submit(ctx, kind, path, text)
	if err != nil {
		return nil, err
	}
	return f.Wait(ctx)
}

func (p *Pipeline) record(job Job, req *types.Request, size int64, partial, loading bool) types.RequestRecord {
	return types.RequestRecord{
		UID:      req.UID,
		Pathname: job.Path,
		Name:     filepath.Base(job.Path),
		Type:     req.Type,
		Size:     size,
		Partial:  partial,
		Loading:  loading,
		Data:     req,
	}
}

// failed builds the record of a file whose parse failed at any stage.
func (p *Pipeline) failed(job Job, size int64, err error) types.RequestRecord {
	name := filepath.Base(job.Path)
	data := &types.Request{
		UID:  p.ids.Requests.GetOrCreate(job.Path),
		Name: name,
		Type: types.RequestTypeHTTP,
	}
	rec := p.record(job, data, size, true, false)
	rec.Error = err
	return rec
}

func (p *Pipeline) logFailure(ctx context.Context, job Job, err error) {
	p.logger.Warn(ctx, err, "Request file failed to load",
		"path", job.Path, "collection", job.CollectionUID)
}

// readFile returns the content and current info of a file.
func readFile(path string) (string, os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", nil, errors.WrapIO(err, errors.ErrCodeReadFailed, path, "stat failed")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, errors.WrapIO(err, errors.ErrCodeReadFailed, path, "read failed")
	}
	return string(data), info, nil
}
