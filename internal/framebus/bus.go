// Package framebus distributes display frames to multiple subscribers.
//
// # Core Philosophy
//
// "Drop frames, never queue. Latency > Completeness."
//
// Publish runs on the media delivery thread and never blocks: a subscriber
// whose channel is full misses the frame. Subscribers that only care about
// the most recent frame use SubscribeLatest, and the bus itself keeps the
// last published frame so it can be re-emitted on demand.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
package framebus

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/e7canasta/rov-video/internal/frame"
)

var (
	// ErrSubscriberExists is returned when Subscribe is called with a duplicate id.
	ErrSubscriberExists = errors.New("framebus: subscriber id already exists")

	// ErrSubscriberNotFound is returned when Unsubscribe is called with unknown id.
	ErrSubscriberNotFound = errors.New("framebus: subscriber id not found")

	// ErrBusClosed is returned when operations are attempted on a closed bus.
	ErrBusClosed = errors.New("framebus: bus is closed")

	// ErrNilChannel is returned when Subscribe is given a nil channel.
	ErrNilChannel = errors.New("framebus: nil channel provided")
)

// DropPolicy defines how the bus handles frames when a subscriber cannot keep up
type DropPolicy int

const (
	// DropNew drops incoming frames if the subscriber channel is full
	DropNew DropPolicy = iota
	// DropOld replaces the held frame (latest-only)
	DropOld
)

// Stats contains global and per-subscriber metrics.
type Stats struct {
	TotalPublished uint64
	TotalSent      uint64
	TotalDropped   uint64
	Subscribers    map[string]SubscriberStats
}

// SubscriberStats tracks metrics for a single subscriber.
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

// DropRate returns the drop rate (0.0 to 1.0) across all subscribers.
func (s Stats) DropRate() float64 {
	total := s.TotalSent + s.TotalDropped
	if total == 0 {
		return 0.0
	}
	return float64(s.TotalDropped) / float64(total)
}

type subscriber struct {
	policy  DropPolicy
	ch      chan<- frame.Frame
	holder  *Latest
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Bus is the display fan-out.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	closed      bool

	totalPublished atomic.Uint64
	latest         *Latest
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[string]*subscriber),
		latest:      newLatest(),
	}
}

// Subscribe registers ch with the DropNew policy.
func (b *Bus) Subscribe(id string, ch chan<- frame.Frame) error {
	if ch == nil {
		return ErrNilChannel
	}
	return b.add(id, &subscriber{policy: DropNew, ch: ch})
}

// SubscribeLatest registers a latest-only receiver.
func (b *Bus) SubscribeLatest(id string) (*Latest, error) {
	h := newLatest()
	if err := b.add(id, &subscriber{policy: DropOld, holder: h}); err != nil {
		return nil, err
	}
	return h, nil
}

func (b *Bus) add(id string, s *subscriber) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return ErrSubscriberExists
	}
	b.subscribers[id] = s
	return nil
}

// Unsubscribe removes a subscriber. Latest-only receivers are closed; channels
// are left to their owner.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	s, exists := b.subscribers[id]
	if !exists {
		return ErrSubscriberNotFound
	}
	if s.holder != nil {
		s.holder.Close()
	}
	delete(b.subscribers, id)
	return nil
}

// Publish sends f to every subscriber without blocking and remembers it as
// the latest frame. Publishing on a closed bus is a no-op.
func (b *Bus) Publish(f frame.Frame) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	b.totalPublished.Add(1)
	b.latest.set(f)

	for _, s := range b.subscribers {
		switch s.policy {
		case DropNew:
			select {
			case s.ch <- f:
				s.sent.Add(1)
			default:
				s.dropped.Add(1)
			}
		case DropOld:
			s.holder.set(f)
			s.sent.Add(1)
		}
	}
}

// Latest returns the most recently published frame.
func (b *Bus) Latest() (frame.Frame, bool) {
	return b.latest.TryReceive()
}

// Stats returns a snapshot of the counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := Stats{
		TotalPublished: b.totalPublished.Load(),
		Subscribers:    make(map[string]SubscriberStats, len(b.subscribers)),
	}
	for id, s := range b.subscribers {
		sent, dropped := s.sent.Load(), s.dropped.Load()
		result.TotalSent += sent
		result.TotalDropped += dropped
		result.Subscribers[id] = SubscriberStats{Sent: sent, Dropped: dropped}
	}
	return result
}

// Close stops the bus. Close is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, s := range b.subscribers {
		if s.holder != nil {
			s.holder.Close()
		}
	}
	b.latest.Close()
	b.subscribers = nil
}
