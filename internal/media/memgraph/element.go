package memgraph

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/e7canasta/rov-video/internal/media"
)

// Header and Trailer frame what the in-memory muxer writes, so tests can tell
// a finalized recording from a truncated one.
var (
	Header  = []byte("memgraph-mkv\n")
	Trailer = []byte("\nmemgraph-eos\n")
)

const defaultQueueSize = 200

// Element is an in-memory media.Element.
type Element struct {
	name      string
	factory   string
	kind      media.Kind
	props     map[string]any
	stallEOS  bool
	staticSrc bool

	mu       sync.Mutex
	pipeline *Pipeline
	state    media.State
	sinkPads []*Pad
	srcPads  []*Pad
	padSeq   int
	padAdded []func(media.Pad)

	// queue
	work    chan item
	stop    chan struct{}
	dropped int

	// muxer
	headerSent bool

	// filesink
	file      *os.File
	written   int64
	finalized bool

	// appsink
	callbacks media.SinkCallbacks
}

func (e *Element) Name() string          { return e.name }
func (e *Element) Kind() media.Kind      { return e.kind }
func (e *Element) Factory() string       { return e.factory }
func (e *Element) Property(k string) any { return e.props[k] }

// Link connects a free src pad of e to the sink pad of dst. Tees request a new
// output pad for every link.
func (e *Element) Link(dst media.Element) error {
	d, ok := unwrap(dst)
	if !ok {
		return errors.New("foreign element")
	}

	var src *Pad
	if e.kind == media.KindTee {
		p, err := e.RequestPad()
		if err != nil {
			return err
		}
		src = p.(*Pad)
	} else {
		src = e.freePad(dirSrc)
	}
	if src == nil {
		return fmt.Errorf("%s has no free src pad", e.name)
	}
	sink := d.freePad(dirSink)
	if sink == nil {
		return fmt.Errorf("%s has no free sink pad", d.name)
	}
	if err := src.Link(sink); err != nil {
		if e.kind == media.KindTee {
			_ = e.ReleasePad(src)
		}
		return err
	}
	return nil
}

func (e *Element) freePad(dir direction) *Pad {
	e.mu.Lock()
	pads := e.srcPads
	if dir == dirSink {
		pads = e.sinkPads
	}
	pads = append([]*Pad(nil), pads...)
	e.mu.Unlock()

	for _, p := range pads {
		if !p.IsLinked() {
			return p
		}
	}
	return nil
}

func (e *Element) StaticPad(name string) media.Pad {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range append(append([]*Pad(nil), e.sinkPads...), e.srcPads...) {
		if p.name == name {
			return p
		}
	}
	return nil
}

// RequestPad creates a new output pad on a tee.
func (e *Element) RequestPad() (media.Pad, error) {
	if e.kind != media.KindTee {
		return nil, fmt.Errorf("%s does not provide request pads", e.factory)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	p := newPad(fmt.Sprintf("src_%d", e.padSeq), dirSrc, e)
	e.padSeq++
	e.srcPads = append(e.srcPads, p)
	return p, nil
}

// ReleasePad unlinks and removes a requested pad.
func (e *Element) ReleasePad(pad media.Pad) error {
	p, ok := pad.(*Pad)
	if !ok || p.parent != e {
		return fmt.Errorf("pad does not belong to %s", e.name)
	}
	e.mu.Lock()
	idx := -1
	for i, sp := range e.srcPads {
		if sp == p {
			idx = i
			break
		}
	}
	if idx < 0 || e.kind != media.KindTee {
		e.mu.Unlock()
		return fmt.Errorf("%s is not a request pad of %s", p.Name(), e.name)
	}
	e.srcPads = append(e.srcPads[:idx], e.srcPads[idx+1:]...)
	e.mu.Unlock()

	p.unlinkAny()
	return nil
}

func (e *Element) OnPadAdded(fn func(media.Pad)) {
	e.mu.Lock()
	e.padAdded = append(e.padAdded, fn)
	e.mu.Unlock()
}

func (e *Element) SyncStateWithParent() error {
	p := e.parentPipeline()
	if p == nil {
		return fmt.Errorf("%s has no parent", e.name)
	}
	return e.SetState(p.CurrentState())
}

func (e *Element) SetState(s media.State) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = s

	if e.kind == media.KindQueue {
		switch {
		case s >= media.StatePaused && e.stop == nil:
			size := defaultQueueSize
			if n, ok := e.props["max-size-buffers"].(int); ok && n > 0 {
				size = n
			}
			e.work = make(chan item, size)
			e.stop = make(chan struct{})
			go e.run(e.work, e.stop)
		case s == media.StateNull && e.stop != nil:
			close(e.stop)
			e.work, e.stop = nil, nil
		}
	}
	if e.kind == media.KindFileSink && s == media.StateNull && e.file != nil {
		_ = e.file.Close()
		e.file = nil
	}
	return nil
}

func (e *Element) currentState() media.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Element) parentPipeline() *Pipeline {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pipeline
}

// handle processes an item that entered through a sink pad (or, for sources,
// an event sent to the pipeline). Elements below paused drop everything.
func (e *Element) handle(it item) {
	if e.currentState() < media.StatePaused {
		return
	}
	if it.event != nil && it.event.Type == media.EventEOS && e.stallEOS {
		return
	}

	switch e.kind {
	case media.KindQueue:
		e.enqueue(it)
	case media.KindDecoder:
		e.forward(withCaps(it, func(c *media.Caps) {
			c.Name = "video/x-raw"
			c.Format = "I420"
		}))
	case media.KindConverter:
		e.forward(withCaps(it, func(c *media.Caps) {
			c.Format = "RGB"
		}))
	case media.KindMuxer:
		e.mux(it)
	case media.KindFileSink:
		e.write(it)
	case media.KindAppSink:
		e.deliver(it)
	default:
		e.forward(it)
	}
}

func withCaps(it item, fn func(c *media.Caps)) item {
	if it.event == nil || it.event.Type != media.EventCaps {
		return it
	}
	ev := *it.event
	fn(&ev.Caps)
	return item{event: &ev}
}

func (e *Element) forward(it item) {
	e.mu.Lock()
	pads := append([]*Pad(nil), e.srcPads...)
	e.mu.Unlock()
	for _, p := range pads {
		p.push(it)
	}
}

func (e *Element) enqueue(it item) {
	e.mu.Lock()
	work, stop := e.work, e.stop
	leaky := isLeaky(e.props["leaky"])
	e.mu.Unlock()
	if work == nil {
		return
	}

	if leaky && it.event == nil {
		select {
		case work <- it:
		case <-stop:
		default:
			e.mu.Lock()
			e.dropped++
			e.mu.Unlock()
		}
		return
	}
	select {
	case work <- it:
	case <-stop:
	}
}

// run is the queue streaming goroutine.
func (e *Element) run(work chan item, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case it := <-work:
			e.forward(it)
		}
	}
}

func (e *Element) mux(it item) {
	if it.event != nil {
		if it.event.Type == media.EventEOS {
			e.forward(item{buf: Trailer})
		}
		e.forward(it)
		return
	}
	e.mu.Lock()
	first := !e.headerSent
	e.headerSent = true
	e.mu.Unlock()
	if first {
		e.forward(item{buf: Header})
	}
	e.forward(it)
}

func (e *Element) write(it item) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.file == nil && !e.finalized {
		loc, _ := e.props["location"].(string)
		f, err := os.Create(loc)
		if err != nil {
			return
		}
		e.file = f
	}
	if it.event != nil {
		if it.event.Type == media.EventEOS && e.file != nil {
			_ = e.file.Sync()
			_ = e.file.Close()
			e.file = nil
			e.finalized = true
		}
		return
	}
	if e.file != nil {
		n, _ := e.file.Write(it.buf)
		e.written += int64(n)
	}
}

func (e *Element) deliver(it item) {
	e.mu.Lock()
	cb := e.callbacks
	e.mu.Unlock()

	switch {
	case it.event == nil:
		if cb.OnSample != nil {
			cb.OnSample(sample(it.buf))
		}
	case it.event.Type == media.EventCaps:
		if cb.OnCaps != nil {
			cb.OnCaps(it.event.Caps)
		}
	case it.event.Type == media.EventEOS:
		if cb.OnEOS != nil {
			cb.OnEOS()
		}
		if p := e.parentPipeline(); p != nil {
			p.post(media.Message{Type: media.MessageEOS, Source: e.name})
		}
	}
}

// Negotiate announces caps from a source. Sources without a static output
// pad first expose a new dynamic pad and notify pad-added handlers.
func (e *Element) Negotiate(c media.Caps) {
	if !e.staticSrc {
		e.AddDynamicPad(c)
	}
	ev := media.Event{Type: media.EventCaps, Caps: c}
	e.forward(item{event: &ev})
}

// AddDynamicPad exposes a new output pad carrying c and runs the pad-added
// handlers on the calling goroutine.
func (e *Element) AddDynamicPad(c media.Caps) media.Pad {
	e.mu.Lock()
	p := newPad(fmt.Sprintf("recv_rtp_src_%d", e.padSeq), dirSrc, e)
	e.padSeq++
	p.caps, p.hasCaps = c, true
	e.srcPads = append(e.srcPads, p)
	handlers := slices.Clone(e.padAdded)
	e.mu.Unlock()

	for _, fn := range handlers {
		fn(p)
	}
	return p
}

// Push emits one buffer from a source.
func (e *Element) Push(buf []byte) {
	if e.currentState() < media.StatePaused {
		return
	}
	e.forward(item{buf: buf})
}

// RequestPadCount is the number of output pads currently requested on a tee.
func (e *Element) RequestPadCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.kind != media.KindTee {
		return 0
	}
	return len(e.srcPads)
}

// State is the current element state.
func (e *Element) State() media.State { return e.currentState() }

// Parent is the pipeline owning e, or nil.
func (e *Element) Parent() media.Pipeline {
	if p := e.parentPipeline(); p != nil {
		return p
	}
	return nil
}

// Finalized reports whether a file sink received end-of-stream.
func (e *Element) Finalized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finalized
}

// Dropped is the number of buffers a leaky queue discarded.
func (e *Element) Dropped() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// AppSink is the in-memory application sink.
type AppSink struct {
	*Element
}

func (a *AppSink) SetCallbacks(cb media.SinkCallbacks) {
	a.mu.Lock()
	a.callbacks = cb
	a.mu.Unlock()
}

type sample []byte

func (s sample) Map() ([]byte, func(), error) {
	return s, func() {}, nil
}

// Unwrap returns the in-memory element behind el.
func Unwrap(el media.Element) *Element {
	e, _ := unwrap(el)
	return e
}

func unwrap(el media.Element) (*Element, bool) {
	switch v := el.(type) {
	case *Element:
		return v, true
	case *AppSink:
		return v.Element, true
	default:
		return nil, false
	}
}

func isLeaky(v any) bool {
	switch l := v.(type) {
	case media.Arg:
		return l != "" && l != "no"
	case int:
		return l != 0
	}
	return false
}
