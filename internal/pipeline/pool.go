package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/conneroisu/bruwatch/internal/errors"
	"github.com/conneroisu/bruwatch/internal/interfaces"
	"github.com/conneroisu/bruwatch/internal/logging"
	"github.com/conneroisu/bruwatch/internal/types"
)

// TaskParser is what the workers need from the structural parser.
type TaskParser interface {
	interfaces.RequestParser
	interfaces.Redactor
}

// Pool runs parse tasks on a fixed number of workers fed by a TaskQueue.
// Workers only ever hand back a result value through the task's Future.
type Pool struct {
	// workers is the number of concurrent parse workers
	workers int
	queue   *TaskQueue
	parser  TaskParser
	metrics *Metrics
	logger  logging.Logger
	// workerWg synchronizes worker goroutine lifecycle
	workerWg sync.WaitGroup
	// cancel terminates all worker operations
	cancel context.CancelFunc
	mu     sync.Mutex
}

// NewPool creates a pool. Call Start before submitting.
func NewPool(workers, queueSize int, parser TaskParser, metrics *Metrics, logger logging.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Pool{
		workers: workers,
		queue:   NewTaskQueue(queueSize),
		parser:  parser,
		metrics: metrics,
		logger:  logger.WithComponent("pool"),
	}
}

// Start begins worker goroutines. Workers run until ctx ends or Stop is
// called.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.workerWg.Add(1)
		go p.worker(ctx)
	}
}

// Stop shuts the queue, fails waiting tasks and waits for the workers.
// A parse already running completes and resolves its future.
func (p *Pool) Stop() {
	p.queue.Close()

	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.workerWg.Wait()
}

// Submit queues a parse of text, blocking while the queue is full.
func (p *Pool) Submit(ctx context.Context, kind TaskKind, path, text string) (*Future, error) {
	t := &Task{Kind: kind, Path: path, Text: text, future: newFuture()}
	if err := p.queue.Enqueue(ctx, t); err != nil {
		return nil, err
	}
	return t.future, nil
}

// SubmitPriority queues a parse ahead of every regular task.
func (p *Pool) SubmitPriority(ctx context.Context, kind TaskKind, path, text string) (*Future, error) {
	t := &Task{Kind: kind, Path: path, Text: text, future: newFuture()}
	if err := p.queue.EnqueuePriority(ctx, t); err != nil {
		return nil, err
	}
	return t.future, nil
}

// Metrics returns the pool metrics.
func (p *Pool) Metrics() *Metrics {
	return p.metrics
}

// Stats returns current pool statistics.
func (p *Pool) Stats() PoolStats {
	return PoolStats{Workers: p.workers, Queue: p.queue.Stats()}
}

// PoolStats provides worker pool statistics.
type PoolStats struct {
	Workers int
	Queue   QueueStats
}

func (p *Pool) worker(ctx context.Context) {
	defer p.workerWg.Done()

	for {
		t, ok := p.queue.next(ctx)
		if !ok {
			return
		}
		op := logging.StartOperation(p.logger, "parse")
		req, err := p.process(t)
		p.metrics.RecordParse(t.Kind, op.Elapsed(), err)
		if err != nil {
			op.EndWithError(ctx, err, "path", t.Path, "kind", t.Kind.String())
		} else {
			op.End(ctx, "path", t.Path, "kind", t.Kind.String())
		}
		t.future.resolve(req, err)
	}
}

// process runs one task. A panicking parser fails the task, not the pool.
func (p *Pool) process(t *Task) (req *types.Request, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewInternalError(errors.ErrCodeInternalError,
				fmt.Sprintf("parser panic: %v", r), nil).WithPath(t.Path)
			p.logger.Error(context.Background(), err, "Parse task panicked", "path", t.Path)
		}
	}()

	switch t.Kind {
	case TaskRedacted:
		req, err = p.parser.ParseRedacted(t.Text)
	default:
		req, err = p.parser.ParseRequest(t.Text)
	}
	if err != nil {
		return nil, errors.WrapParse(err, t.Path, "request parse failed")
	}
	return req, nil
}
