// Package memgraph is an in-memory media.Backend.
//
// It models the parts of a real media framework the core relies on: pads and
// links, tee request pads, dynamic source pads, event probes, queues running
// their own streaming goroutine, a muxer that writes a trailer on
// end-of-stream and a file sink. It is used by tests and by `rov-video probe
// --dry-run`.
package memgraph

import (
	"fmt"
	"sync"

	"github.com/e7canasta/rov-video/internal/media"
)

// Option configures a Backend.
type Option func(*Backend)

// StallEOS makes every element built from factory swallow end-of-stream
// events, simulating a stalled branch or source.
func StallEOS(factory string) Option {
	return func(b *Backend) {
		b.stalled[factory] = true
	}
}

// Backend is the in-memory media.Backend.
type Backend struct {
	reg *media.Registry

	mu        sync.Mutex
	stalled   map[string]bool
	pipelines map[*Pipeline]struct{}
	seq       int
}

// New returns a backend with every factory the core uses registered.
func New(opts ...Option) *Backend {
	b := &Backend{
		reg:       media.NewRegistry(),
		stalled:   make(map[string]bool),
		pipelines: make(map[*Pipeline]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	factories := map[string]media.Kind{
		"rtspsrc":      media.KindSource,
		"udpsrc":       media.KindSource,
		"rtph264depay": media.KindDepayloader,
		"rtph265depay": media.KindDepayloader,
		"h264parse":    media.KindParser,
		"h265parse":    media.KindParser,
		"avdec_h264":   media.KindDecoder,
		"avdec_h265":   media.KindDecoder,
		"tee":          media.KindTee,
		"queue":        media.KindQueue,
		"videoconvert": media.KindConverter,
		"matroskamux":  media.KindMuxer,
		"filesink":     media.KindFileSink,
		"appsink":      media.KindAppSink,
	}
	for factory, kind := range factories {
		b.reg.Register(kind, factory, b.construct)
	}
	return b
}

// Registry exposes the factory registry, e.g. to remove a capability.
func (b *Backend) Registry() *media.Registry {
	return b.reg
}

func (b *Backend) Name() string { return "memgraph" }

// NewPipeline creates an empty pipeline in the null state.
func (b *Backend) NewPipeline(name string) (media.Pipeline, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	if name == "" {
		name = fmt.Sprintf("pipeline%d", b.seq)
	}
	p := &Pipeline{name: name, backend: b}
	b.pipelines[p] = struct{}{}
	return p, nil
}

// NewElement creates an element through the registry.
func (b *Backend) NewElement(spec media.ElementSpec) (media.Element, error) {
	return b.reg.Make(spec)
}

// LivePipelines counts pipelines that were created and not disposed.
func (b *Backend) LivePipelines() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pipelines)
}

func (b *Backend) forget(p *Pipeline) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pipelines, p)
}

func (b *Backend) construct(spec media.ElementSpec) (media.Element, error) {
	b.mu.Lock()
	b.seq++
	name := spec.Name
	if name == "" {
		name = fmt.Sprintf("%s%d", spec.Factory, b.seq)
	}
	stall := b.stalled[spec.Factory]
	b.mu.Unlock()

	props := make(map[string]any, len(spec.Properties))
	for k, v := range spec.Properties {
		props[k] = v
	}
	e := &Element{
		name:      name,
		factory:   spec.Factory,
		kind:      spec.Kind,
		props:     props,
		stallEOS:  stall,
		staticSrc: spec.Factory != "rtspsrc",
	}
	switch spec.Kind {
	case media.KindSource:
		if e.staticSrc {
			e.srcPads = append(e.srcPads, newPad("src", dirSrc, e))
		}
	case media.KindTee:
		e.sinkPads = append(e.sinkPads, newPad("sink", dirSink, e))
	case media.KindFileSink:
		e.sinkPads = append(e.sinkPads, newPad("sink", dirSink, e))
	case media.KindAppSink:
		e.sinkPads = append(e.sinkPads, newPad("sink", dirSink, e))
		return &AppSink{Element: e}, nil
	default:
		e.sinkPads = append(e.sinkPads, newPad("sink", dirSink, e))
		e.srcPads = append(e.srcPads, newPad("src", dirSrc, e))
	}
	return e, nil
}
