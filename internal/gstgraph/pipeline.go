package gstgraph

import (
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/rov-video/internal/media"
)

// Pipeline wraps a *gst.Pipeline and keeps the wrappers of its elements, so
// callers never look elements up by name.
type Pipeline struct {
	p *gst.Pipeline

	mu       sync.Mutex
	elements []media.Element
	watchers []func(media.Message)
	polling  bool
	done     chan struct{}
	once     sync.Once
}

func newPipeline(p *gst.Pipeline) *Pipeline {
	return &Pipeline{p: p, done: make(chan struct{})}
}

func (p *Pipeline) Name() string { return p.p.GetName() }

func (p *Pipeline) Add(elements ...media.Element) error {
	for _, el := range elements {
		raw, ok := unwrap(el)
		if !ok {
			return errors.New("foreign element")
		}
		if err := p.p.Add(raw); err != nil {
			return err
		}
		p.mu.Lock()
		p.elements = append(p.elements, el)
		p.mu.Unlock()
	}
	return nil
}

func (p *Pipeline) Remove(elements ...media.Element) error {
	for _, el := range elements {
		raw, ok := unwrap(el)
		if !ok {
			return errors.New("foreign element")
		}
		if err := p.p.Remove(raw); err != nil {
			return err
		}
		p.mu.Lock()
		for i, cur := range p.elements {
			if cur == el {
				p.elements = append(p.elements[:i], p.elements[i+1:]...)
				break
			}
		}
		p.mu.Unlock()
	}
	return nil
}

func (p *Pipeline) Elements() []media.Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]media.Element(nil), p.elements...)
}

func (p *Pipeline) SetState(s media.State) error {
	return p.p.SetState(toGstState(s))
}

func (p *Pipeline) CurrentState() media.State {
	return fromGstState(p.p.GetState())
}

func (p *Pipeline) SendEvent(ev media.Event) bool {
	return p.p.SendEvent(toGstEvent(ev))
}

// Watch registers fn for bus messages. The first call starts the polling
// goroutine, which runs until Dispose.
func (p *Pipeline) Watch(fn func(media.Message)) {
	p.mu.Lock()
	p.watchers = append(p.watchers, fn)
	start := !p.polling
	p.polling = true
	p.mu.Unlock()

	if start {
		go p.poll()
	}
}

func (p *Pipeline) poll() {
	bus := p.p.GetPipelineBus()
	for {
		select {
		case <-p.done:
			return
		default:
		}

		// Short timeout for responsive shutdown
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		var out media.Message
		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			out = media.Message{Type: media.MessageError, Source: msg.Source(), Err: gerr, Debug: gerr.DebugString()}
		case gst.MessageWarning:
			gerr := msg.ParseWarning()
			out = media.Message{Type: media.MessageWarning, Source: msg.Source(), Err: gerr, Debug: gerr.DebugString()}
		case gst.MessageEOS:
			out = media.Message{Type: media.MessageEOS, Source: msg.Source()}
		case gst.MessageStateChanged:
			if msg.Source() != p.Name() {
				continue
			}
			_, newState := msg.ParseStateChanged()
			out = media.Message{Type: media.MessageStateChanged, Source: msg.Source(), State: fromGstState(newState)}
		default:
			continue
		}

		p.mu.Lock()
		watchers := slices.Clone(p.watchers)
		p.mu.Unlock()
		for _, fn := range watchers {
			fn(out)
		}
	}
}

// Dispose sets the pipeline to null and stops the bus goroutine.
func (p *Pipeline) Dispose() {
	p.once.Do(func() {
		if err := p.p.SetState(gst.StateNull); err != nil {
			slog.Warn("gstgraph: failed to set pipeline to NULL", "pipeline", p.Name(), "error", err)
		}
		close(p.done)
		p.mu.Lock()
		for _, el := range p.elements {
			if e, ok := el.(*Element); ok {
				e.disconnect()
			}
		}
		p.elements = nil
		p.mu.Unlock()
	})
}
