package adaptor

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Future is the one-shot completion of a read: the byte count on success
// or the read error. It resolves exactly once, on the goroutine that
// delivered the wire completion. Dropping a Future does not cancel the
// underlying request.
type Future struct {
	once sync.Once
	done chan struct{}
	n    int64
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// resolvedFuture returns a future already carrying n.
func resolvedFuture(n int64) *Future {
	f := newFuture()
	f.resolve(n, nil)
	return f
}

func (f *Future) resolve(n int64, err error) {
	f.once.Do(func() {
		f.n = n
		f.err = err
		close(f.done)
	})
}

// Done returns a channel closed when the future resolves.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks for resolution and returns the byte count read. A canceled
// context abandons the wait without canceling the request.
func (f *Future) Wait(ctx context.Context) (int64, error) {
	select {
	case <-f.done:
		return f.n, f.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// joinFutures composes a future resolving once both children resolve, with
// the summed byte count or the first error. The join runs off the
// submitter's goroutine.
func joinFutures(a, b *Future) *Future {
	f := newFuture()
	var na, nb int64
	g := new(errgroup.Group)
	g.Go(func() (err error) {
		na, err = a.Wait(context.Background())
		return err
	})
	g.Go(func() (err error) {
		nb, err = b.Wait(context.Background())
		return err
	})
	go func() {
		if err := g.Wait(); err != nil {
			f.resolve(0, err)
			return
		}
		f.resolve(na+nb, nil)
	}()
	return f
}
