package framebus

import (
	"context"
	"sync"

	"github.com/e7canasta/rov-video/internal/frame"
)

// Latest holds the most recent frame of a DropOld subscription.
type Latest struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frame  *frame.Frame
	seq    uint64
	seen   uint64
	closed bool
}

func newLatest() *Latest {
	h := &Latest{}
	h.cond = sync.NewCond(&h.mu)
	return h
}

func (h *Latest) set(f frame.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.frame = &f
	h.seq++
	h.cond.Broadcast()
}

// Receive blocks until a frame newer than the last received one is
// available, the receiver is closed, or ctx is done.
func (h *Latest) Receive(ctx context.Context) (frame.Frame, bool) {
	stop := context.AfterFunc(ctx, func() {
		h.mu.Lock()
		h.cond.Broadcast()
		h.mu.Unlock()
	})
	defer stop()

	h.mu.Lock()
	defer h.mu.Unlock()

	for h.seq == h.seen && !h.closed && ctx.Err() == nil {
		h.cond.Wait()
	}
	if h.closed || h.seq == h.seen {
		return frame.Frame{}, false
	}
	h.seen = h.seq
	return *h.frame, true
}

// TryReceive returns the latest frame without blocking.
func (h *Latest) TryReceive() (frame.Frame, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.frame == nil {
		return frame.Frame{}, false
	}
	return *h.frame, true
}

// Close wakes up blocked receivers.
func (h *Latest) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	h.cond.Broadcast()
}
