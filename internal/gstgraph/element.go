package gstgraph

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tinyzimmer/go-glib/glib"
	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/rov-video/internal/media"
)

// Element wraps a *gst.Element.
type Element struct {
	el      *gst.Element
	kind    media.Kind
	factory string

	mu      sync.Mutex
	signals []glib.SignalHandle
}

func (e *Element) Name() string     { return e.el.GetName() }
func (e *Element) Kind() media.Kind { return e.kind }
func (e *Element) Factory() string  { return e.factory }

// Raw returns the underlying GStreamer element.
func (e *Element) Raw() *gst.Element { return e.el }

func (e *Element) Link(dst media.Element) error {
	d, ok := unwrap(dst)
	if !ok {
		return errors.New("foreign element")
	}
	return e.el.Link(d)
}

func (e *Element) StaticPad(name string) media.Pad {
	p := e.el.GetStaticPad(name)
	if p == nil {
		return nil
	}
	return &Pad{p: p}
}

func (e *Element) RequestPad() (media.Pad, error) {
	p := e.el.GetRequestPad("src_%u")
	if p == nil {
		return nil, fmt.Errorf("%w: %s refused a request pad", media.ErrNoPad, e.Name())
	}
	return &Pad{p: p}, nil
}

func (e *Element) ReleasePad(pad media.Pad) error {
	p, ok := pad.(*Pad)
	if !ok {
		return errors.New("foreign pad")
	}
	e.el.ReleaseRequestPad(p.p)
	return nil
}

// OnPadAdded connects fn to the pad-added signal. fn runs on a streaming
// thread.
func (e *Element) OnPadAdded(fn func(media.Pad)) {
	h, err := e.el.Connect("pad-added", func(_ *gst.Element, p *gst.Pad) {
		fn(&Pad{p: p})
	})
	if err != nil {
		slog.Error("gstgraph: failed to connect pad-added", "element", e.Name(), "error", err)
		return
	}
	e.mu.Lock()
	e.signals = append(e.signals, h)
	e.mu.Unlock()
}

// disconnect drops every signal handler installed through the wrapper.
func (e *Element) disconnect() {
	e.mu.Lock()
	signals := e.signals
	e.signals = nil
	e.mu.Unlock()

	for _, h := range signals {
		e.el.HandlerDisconnect(h)
	}
}

func (e *Element) SyncStateWithParent() error {
	if !e.el.SyncStateWithParent() {
		return fmt.Errorf("%s could not sync state with parent", e.Name())
	}
	return nil
}

func (e *Element) SetState(s media.State) error {
	return e.el.SetState(toGstState(s))
}

func unwrap(el media.Element) (*gst.Element, bool) {
	switch v := el.(type) {
	case *Element:
		return v.el, true
	case *AppSink:
		return v.el, true
	default:
		return nil, false
	}
}

// Pad wraps a *gst.Pad.
type Pad struct {
	p *gst.Pad
}

func (p *Pad) Name() string { return p.p.GetName() }

func (p *Pad) Link(sink media.Pad) error {
	s, ok := sink.(*Pad)
	if !ok {
		return errors.New("foreign pad")
	}
	if ret := p.p.Link(s.p); ret != gst.PadLinkOK {
		return fmt.Errorf("pad link returned %v", ret)
	}
	return nil
}

func (p *Pad) Unlink(sink media.Pad) error {
	s, ok := sink.(*Pad)
	if !ok {
		return errors.New("foreign pad")
	}
	if !p.p.Unlink(s.p) {
		return fmt.Errorf("%s is not linked to %s", p.Name(), s.Name())
	}
	return nil
}

func (p *Pad) Caps() (media.Caps, bool) {
	caps := p.p.GetCurrentCaps()
	if caps == nil {
		return media.Caps{}, false
	}
	return fromGstCaps(caps), true
}

func (p *Pad) SendEvent(ev media.Event) bool {
	return p.p.SendEvent(toGstEvent(ev))
}

// AddEventProbe installs a downstream event probe. fn runs on a streaming
// thread.
func (p *Pad) AddEventProbe(fn media.EventProbe) {
	p.p.AddProbe(gst.PadProbeTypeEventDownstream, func(_ *gst.Pad, info *gst.PadProbeInfo) gst.PadProbeReturn {
		ev := info.GetEvent()
		if ev == nil {
			return gst.PadProbeOK
		}
		if fn(fromGstEvent(ev)) == media.ProbeRemove {
			return gst.PadProbeRemove
		}
		return gst.PadProbeOK
	})
}
