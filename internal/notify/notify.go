// Package notify delivers user-visible notifications (pipeline running,
// recording changed, errors, warnings) to in-process subscribers and to the
// MQTT events topic.
package notify

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Kind identifies a notification.
type Kind string

const (
	KindPipelineRunning  Kind = "pipeline_running"
	KindRecordingChanged Kind = "recording_changed"
	KindError            Kind = "error"
	KindWarning          Kind = "warning"
	KindScreenshotSaved  Kind = "screenshot_saved"
)

// Event is one notification.
type Event struct {
	Kind     Kind      `msgpack:"kind" json:"kind"`
	Time     time.Time `msgpack:"time" json:"time"`
	Active   bool      `msgpack:"active,omitempty" json:"active,omitempty"` // running / recording
	Message  string    `msgpack:"message,omitempty" json:"message,omitempty"`
	Category string    `msgpack:"category,omitempty" json:"category,omitempty"`
	Path     string    `msgpack:"path,omitempty" json:"path,omitempty"`
	Session  string    `msgpack:"session,omitempty" json:"session,omitempty"`
}

// Notifier receives notifications. Notify must not block.
type Notifier interface {
	Notify(ev Event)
}

// Discard drops every notification.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Notify(Event) {}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(ev Event) {
	for _, n := range m {
		n.Notify(ev)
	}
}

// Hub delivers notifications to channel subscribers. A subscriber whose
// buffer is full misses the notification.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	nextID  int
	dropped atomic.Uint64
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel receiving notifications and a function that
// cancels the subscription and closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Notify delivers ev to every subscriber without blocking.
func (h *Hub) Notify(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
			slog.Warn("notify: subscriber full, dropping notification", "kind", ev.Kind)
		}
	}
}

// Dropped is the number of notifications lost to full subscribers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
