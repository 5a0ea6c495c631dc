// Package media is the typed graph model the pipeline is built on.
//
// Elements are created from an ElementSpec through a Backend, which owns a
// Registry mapping factory names (capabilities) to constructors. Callers keep
// the returned handles instead of looking elements up by name. Two backends
// exist: gstgraph (GStreamer through go-gst) and memgraph (in-memory, used by
// tests and dry runs).
package media

// Kind is the role of an element in the graph.
type Kind int

const (
	KindSource Kind = iota
	KindDepayloader
	KindParser
	KindDecoder
	KindTee
	KindQueue
	KindConverter
	KindMuxer
	KindFileSink
	KindAppSink
)

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindDepayloader:
		return "depayloader"
	case KindParser:
		return "parser"
	case KindDecoder:
		return "decoder"
	case KindTee:
		return "tee"
	case KindQueue:
		return "queue"
	case KindConverter:
		return "converter"
	case KindMuxer:
		return "muxer"
	case KindFileSink:
		return "filesink"
	case KindAppSink:
		return "appsink"
	default:
		return "unknown"
	}
}

// State mirrors the element state ladder of the media framework.
type State int

const (
	StateNull State = iota
	StateReady
	StatePaused
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateNull:
		return "null"
	case StateReady:
		return "ready"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// FlowReturn is returned from the streaming thread callbacks.
type FlowReturn int

const (
	FlowOK FlowReturn = iota
	FlowNotNegotiated
	FlowFlushing
	FlowEOS
	FlowError
)

func (f FlowReturn) String() string {
	switch f {
	case FlowOK:
		return "ok"
	case FlowNotNegotiated:
		return "not-negotiated"
	case FlowFlushing:
		return "flushing"
	case FlowEOS:
		return "eos"
	case FlowError:
		return "error"
	default:
		return "unknown"
	}
}

// ElementSpec describes an element to create.
//
// Properties are passed to the backend as-is, except "caps" which is given as
// a caps string and converted by the backend. Values must match the
// property's declared type (uint for guint properties); enum and flags
// properties are given as an Arg.
type ElementSpec struct {
	Kind       Kind
	Factory    string
	Name       string
	Properties map[string]any
}

// Arg is a property value in its string form, such as the enum nick
// "downstream" or the flags "tcp+udp". The backend parses it against the
// property's declared type.
type Arg string

// Caps is the subset of negotiated capabilities the core cares about.
type Caps struct {
	Name   string // structure name, e.g. "video/x-raw" or "application/x-rtp"
	Media  string // "video", "audio" for RTP caps
	Format string
	Width  int
	Height int
}

// HasDimensions reports whether the caps carry a usable frame size.
func (c Caps) HasDimensions() bool {
	return c.Width > 0 && c.Height > 0
}

// EventType identifies in-band events the core observes or injects.
type EventType int

const (
	EventEOS EventType = iota
	EventCaps
	EventCustomDownstream
)

// Event is an in-band event travelling through pads.
type Event struct {
	Type EventType
	Caps Caps   // set for EventCaps
	Name string // structure name for EventCustomDownstream
}

// EOS returns an end-of-stream event.
func EOS() Event { return Event{Type: EventEOS} }

// ProbeReturn tells the pad what to do with the probe after it ran.
type ProbeReturn int

const (
	ProbePass ProbeReturn = iota
	ProbeRemove
)

// EventProbe observes events crossing a pad. It runs on the streaming thread.
type EventProbe func(ev Event) ProbeReturn

// Pad is a port of an element.
type Pad interface {
	Name() string
	Link(sink Pad) error
	Unlink(sink Pad) error
	Caps() (Caps, bool)
	SendEvent(ev Event) bool
	AddEventProbe(fn EventProbe)
}

// Element is a node of the graph.
type Element interface {
	Name() string
	Kind() Kind
	Factory() string
	Link(dst Element) error
	StaticPad(name string) Pad
	RequestPad() (Pad, error)
	ReleasePad(pad Pad) error
	OnPadAdded(fn func(pad Pad))
	SyncStateWithParent() error
	SetState(s State) error
}

// Sample is one buffer pulled from an application sink. Map gives read-only
// access to the buffer memory until unmap is called.
type Sample interface {
	Map() (data []byte, unmap func(), err error)
}

// SinkCallbacks run on the streaming thread of an application sink.
type SinkCallbacks struct {
	OnCaps   func(caps Caps)
	OnSample func(sample Sample) FlowReturn
	OnEOS    func()
}

// AppSink is the terminal element handing decoded buffers to the application.
type AppSink interface {
	Element
	SetCallbacks(cb SinkCallbacks)
}

// MessageType classifies messages posted on the pipeline bus.
type MessageType int

const (
	MessageError MessageType = iota
	MessageWarning
	MessageEOS
	MessageStateChanged
)

// Message is a bus message. Watch callbacks may run on any goroutine.
type Message struct {
	Type   MessageType
	Source string
	Err    error
	Debug  string
	State  State
}

// Pipeline owns elements and drives their state.
type Pipeline interface {
	Name() string
	Add(elements ...Element) error
	Remove(elements ...Element) error
	Elements() []Element
	SetState(s State) error
	CurrentState() State
	SendEvent(ev Event) bool
	Watch(fn func(msg Message))
	Dispose()
}

// Backend creates pipelines and elements.
type Backend interface {
	Name() string
	NewPipeline(name string) (Pipeline, error)
	NewElement(spec ElementSpec) (Element, error)
}
