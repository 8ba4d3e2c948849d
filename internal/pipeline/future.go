package pipeline

import (
	"context"
	"sync"

	"github.com/conneroisu/bruwatch/internal/types"
)

// Future is the pending result of a parse task.
type Future struct {
	done chan struct{}
	once sync.Once
	req  *types.Request
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// resolve sets the result. Only the first call has an effect.
func (f *Future) resolve(req *types.Request, err error) {
	f.once.Do(func() {
		f.req = req
		f.err = err
		close(f.done)
	})
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the result is available or ctx ends.
func (f *Future) Wait(ctx context.Context) (*types.Request, error) {
	select {
	case <-f.done:
		return f.req, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
