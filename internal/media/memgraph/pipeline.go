package memgraph

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/e7canasta/rov-video/internal/media"
)

// Pipeline is an in-memory media.Pipeline.
type Pipeline struct {
	name    string
	backend *Backend

	mu       sync.Mutex
	elements []media.Element
	state    media.State
	watchers []func(media.Message)
	disposed bool
}

func (p *Pipeline) Name() string { return p.name }

func (p *Pipeline) Add(elements ...media.Element) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return errors.New("pipeline disposed")
	}
	for _, el := range elements {
		e, ok := unwrap(el)
		if !ok {
			return fmt.Errorf("foreign element %s", el.Name())
		}
		e.mu.Lock()
		if e.pipeline != nil {
			e.mu.Unlock()
			return fmt.Errorf("%s already has a parent", e.name)
		}
		e.pipeline = p
		e.mu.Unlock()
		p.elements = append(p.elements, el)
	}
	return nil
}

// Remove takes elements out of the pipeline, unlinking all their pads. Their
// state is left untouched.
func (p *Pipeline) Remove(elements ...media.Element) error {
	for _, el := range elements {
		e, ok := unwrap(el)
		if !ok || e.parentPipeline() != p {
			return fmt.Errorf("%s is not in %s", el.Name(), p.name)
		}
		e.mu.Lock()
		pads := append(append([]*Pad(nil), e.sinkPads...), e.srcPads...)
		e.pipeline = nil
		e.mu.Unlock()
		for _, pad := range pads {
			pad.unlinkAny()
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
	p.mu.Lock()
	p.state = s
	elements := append([]media.Element(nil), p.elements...)
	p.mu.Unlock()

	for _, el := range elements {
		_ = el.SetState(s)
	}
	p.post(media.Message{Type: media.MessageStateChanged, Source: p.name, State: s})
	return nil
}

func (p *Pipeline) CurrentState() media.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SendEvent hands ev to every source element.
func (p *Pipeline) SendEvent(ev media.Event) bool {
	if p.CurrentState() < media.StatePaused {
		return false
	}
	for _, el := range p.Elements() {
		if el.Kind() == media.KindSource {
			Unwrap(el).forward(item{event: &ev})
		}
	}
	return true
}

func (p *Pipeline) Watch(fn func(media.Message)) {
	p.mu.Lock()
	p.watchers = append(p.watchers, fn)
	p.mu.Unlock()
}

func (p *Pipeline) post(msg media.Message) {
	p.mu.Lock()
	watchers := slices.Clone(p.watchers)
	p.mu.Unlock()
	for _, fn := range watchers {
		fn(msg)
	}
}

// PostError posts an error message on the bus, as an element would.
func (p *Pipeline) PostError(source string, err error, debug string) {
	p.post(media.Message{Type: media.MessageError, Source: source, Err: err, Debug: debug})
}

// Source returns the source element, if any.
func (p *Pipeline) Source() *Element {
	for _, el := range p.Elements() {
		if el.Kind() == media.KindSource {
			return Unwrap(el)
		}
	}
	return nil
}

// Dispose brings the pipeline to null and releases it.
func (p *Pipeline) Dispose() {
	_ = p.SetState(media.StateNull)

	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	elements := p.elements
	p.elements = nil
	p.watchers = nil
	p.mu.Unlock()

	for _, el := range elements {
		if e, ok := unwrap(el); ok {
			e.mu.Lock()
			e.pipeline = nil
			e.mu.Unlock()
		}
	}
	p.backend.forget(p)
}
