package memgraph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/e7canasta/rov-video/internal/media"
)

type direction int

const (
	dirSrc direction = iota
	dirSink
)

// item is either a buffer or an event travelling downstream.
type item struct {
	buf   []byte
	event *media.Event
}

// Pad is an in-memory media.Pad.
type Pad struct {
	name   string
	dir    direction
	parent *Element

	mu      sync.Mutex
	peer    *Pad
	probes  []media.EventProbe
	caps    media.Caps
	hasCaps bool
}

func newPad(name string, dir direction, parent *Element) *Pad {
	return &Pad{name: name, dir: dir, parent: parent}
}

func (p *Pad) Name() string { return p.parent.name + ":" + p.name }

// Link connects a src pad to a sink pad of an element in the same pipeline.
func (p *Pad) Link(sink media.Pad) error {
	s, ok := sink.(*Pad)
	if !ok {
		return errors.New("foreign pad")
	}
	if p.dir != dirSrc || s.dir != dirSink {
		return errors.New("wrong direction")
	}
	pp, sp := p.parent.parentPipeline(), s.parent.parentPipeline()
	if pp == nil || pp != sp {
		return errors.New("wrong hierarchy")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.peer != nil || s.peer != nil {
		return errors.New("pad already linked")
	}
	p.peer = s
	s.peer = p
	return nil
}

// Unlink removes the link between p and sink.
func (p *Pad) Unlink(sink media.Pad) error {
	s, ok := sink.(*Pad)
	if !ok {
		return errors.New("foreign pad")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.peer != s {
		return fmt.Errorf("%s is not linked to %s", p.Name(), s.Name())
	}
	p.peer = nil
	s.peer = nil
	return nil
}

func (p *Pad) unlinkAny() {
	p.mu.Lock()
	peer := p.peer
	p.mu.Unlock()
	if peer == nil {
		return
	}
	if p.dir == dirSrc {
		_ = p.Unlink(peer)
	} else {
		_ = peer.Unlink(p)
	}
}

// IsLinked reports whether the pad has a peer.
func (p *Pad) IsLinked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peer != nil
}

func (p *Pad) Caps() (media.Caps, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.caps, p.hasCaps
}

func (p *Pad) setCaps(c media.Caps) {
	p.mu.Lock()
	p.caps = c
	p.hasCaps = true
	p.mu.Unlock()
}

// SendEvent injects ev. On a sink pad the event enters the element; on a src
// pad it is pushed to the peer.
func (p *Pad) SendEvent(ev media.Event) bool {
	if p.parent.currentState() == media.StateNull {
		return false
	}
	it := item{event: &ev}
	if p.dir == dirSink {
		p.receive(it)
		return true
	}
	return p.push(it)
}

func (p *Pad) AddEventProbe(fn media.EventProbe) {
	p.mu.Lock()
	p.probes = append(p.probes, fn)
	p.mu.Unlock()
}

// push sends it from a src pad to its peer. Unlinked pads drop the item.
func (p *Pad) push(it item) bool {
	if it.event != nil {
		p.runProbes(*it.event)
		if it.event.Type == media.EventCaps {
			p.setCaps(it.event.Caps)
		}
	}
	p.mu.Lock()
	peer := p.peer
	p.mu.Unlock()
	if peer == nil {
		return false
	}
	peer.receive(it)
	return true
}

// receive runs on the streaming goroutine that pushed it.
func (p *Pad) receive(it item) {
	if it.event != nil {
		p.runProbes(*it.event)
		if it.event.Type == media.EventCaps {
			p.setCaps(it.event.Caps)
		}
	}
	p.parent.handle(it)
}

func (p *Pad) runProbes(ev media.Event) {
	p.mu.Lock()
	probes := p.probes
	p.probes = nil
	p.mu.Unlock()

	kept := probes[:0:0]
	for _, fn := range probes {
		if fn(ev) != media.ProbeRemove {
			kept = append(kept, fn)
		}
	}

	p.mu.Lock()
	p.probes = append(kept, p.probes...)
	p.mu.Unlock()
}
