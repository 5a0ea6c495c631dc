// Package future provides a minimal single-assignment Promise/Future pair and
// the continuation combinators (Map, FlatMap, Sequence) used to chain the
// multi-step pipeline lifecycle transitions without blocking.
//
// A Promise resolves at most once. A Future can be observed any number of
// times; each observer runs with the resolved value as soon as it is
// available. Combinators only register continuations: they never start
// goroutines of their own.
package future

import (
	"context"
	"errors"
	"sync"
)

// ErrAlreadyResolved is returned by Promise.Success when the promise was
// already resolved. The first value is never overwritten.
var ErrAlreadyResolved = errors.New("future: promise already resolved")

// Executor runs the resolution of a promise. The control loop passes an
// executor that enqueues the resolution into its message channel, so that
// observers always run on the loop regardless of which thread resolved the
// promise.
type Executor func(fn func())

// Inline runs fn on the calling goroutine.
func Inline(fn func()) { fn() }

type cell[T any] struct {
	exec Executor

	mu        sync.Mutex
	claimed   bool
	resolved  bool
	value     T
	observers []func(T)
	done      chan struct{}
}

// Future is the read side of a single-assignment cell.
type Future[T any] struct {
	c *cell[T]
}

// Promise is the write side of a single-assignment cell.
type Promise[T any] struct {
	c *cell[T]
}

// New creates a connected Promise/Future pair. A nil executor resolves inline.
func New[T any](exec Executor) (*Promise[T], Future[T]) {
	if exec == nil {
		exec = Inline
	}
	c := &cell[T]{
		exec: exec,
		done: make(chan struct{}),
	}
	return &Promise[T]{c: c}, Future[T]{c: c}
}

// Resolved returns a Future that already holds v.
func Resolved[T any](v T) Future[T] {
	p, f := New[T](nil)
	_ = p.Success(v)
	return f
}

// Future returns the read side of the promise.
func (p *Promise[T]) Future() Future[T] {
	return Future[T]{c: p.c}
}

// Success resolves the promise with v and runs every pending observer, in
// registration order, through the promise executor.
//
// Success may be called from any goroutine; concurrent callers race under the
// cell mutex and exactly one of them wins. Every other call returns
// ErrAlreadyResolved.
func (p *Promise[T]) Success(v T) error {
	c := p.c
	c.mu.Lock()
	if c.claimed {
		c.mu.Unlock()
		return ErrAlreadyResolved
	}
	c.claimed = true
	c.mu.Unlock()

	c.exec(func() { c.resolve(v) })
	return nil
}

func (c *cell[T]) resolve(v T) {
	c.mu.Lock()
	c.value = v
	c.resolved = true
	observers := c.observers
	c.observers = nil
	close(c.done)
	c.mu.Unlock()

	for _, fn := range observers {
		fn(v)
	}
}

// ForEach registers fn to run with the resolved value. If the future is
// already resolved, fn runs immediately on the calling goroutine.
func (f Future[T]) ForEach(fn func(T)) {
	c := f.c
	c.mu.Lock()
	if c.resolved {
		v := c.value
		c.mu.Unlock()
		fn(v)
		return
	}
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// Value returns the resolved value, if any.
func (f Future[T]) Value() (T, bool) {
	c := f.c
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.resolved
}

// Done returns a channel closed once the observers of the future have been
// released.
func (f Future[T]) Done() <-chan struct{} {
	return f.c.done
}

// Await blocks until the future resolves or ctx is done. It must not be
// called from the goroutine that drives the promise executor.
func Await[T any](ctx context.Context, f Future[T]) (T, error) {
	select {
	case <-f.Done():
		v, _ := f.Value()
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Map derives a Future holding fn applied to the value of f.
func Map[T, U any](f Future[T], fn func(T) U) Future[U] {
	p, out := New[U](nil)
	f.ForEach(func(v T) {
		_ = p.Success(fn(v))
	})
	return out
}

// FlatMap derives a Future resolved with the value of the Future returned by
// fn.
func FlatMap[T, U any](f Future[T], fn func(T) Future[U]) Future[U] {
	p, out := New[U](nil)
	f.ForEach(func(v T) {
		fn(v).ForEach(func(u U) {
			_ = p.Success(u)
		})
	})
	return out
}

// Sequence turns an ordered list of futures into a future of the ordered
// list of their values.
//
// The inputs are chained rather than joined: the continuation on fs[i+1] is
// registered only once fs[i] has resolved, so the output order matches the
// input order no matter in which order the inputs resolve.
func Sequence[T any](fs []Future[T]) Future[[]T] {
	return sequenceFrom(fs, 0, make([]T, 0, len(fs)))
}

func sequenceFrom[T any](fs []Future[T], i int, acc []T) Future[[]T] {
	if i == len(fs) {
		return Resolved(acc)
	}
	return FlatMap(fs[i], func(v T) Future[[]T] {
		return sequenceFrom(fs, i+1, append(acc, v))
	})
}
