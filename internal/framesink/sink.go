// Package framesink is the application sink callback of the display path.
//
// OnCaps and OnSample run on the media delivery thread. They never block
// and never panic: every failure turns into a flow return value.
package framesink

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/rov-video/internal/config"
	"github.com/e7canasta/rov-video/internal/frame"
	"github.com/e7canasta/rov-video/internal/framestats"
	"github.com/e7canasta/rov-video/internal/media"
	"github.com/e7canasta/rov-video/internal/postprocess"
)

// Publisher receives forwarded frames. Publish must not block.
type Publisher interface {
	Publish(f frame.Frame)
}

// ConfigSource provides the runtime configuration snapshot.
type ConfigSource interface {
	Snapshot() config.Runtime
}

// Observer is notified of every callback outcome, e.g. to export metrics.
type Observer interface {
	FrameForwarded(postProcess string, took time.Duration)
	FrameRejected(reason string)
}

// Stats are the callback counters.
type Stats struct {
	Forwarded     uint64
	NotNegotiated uint64
	Errors        uint64
	Width         int
	Height        int
	Delivery      framestats.Stats
}

// Sink turns decoded samples into frames.
type Sink struct {
	cfg      ConfigSource
	pub      Publisher
	observer Observer

	mu     sync.Mutex
	width  int
	height int

	seq           atomic.Uint64
	forwarded     atomic.Uint64
	notNegotiated atomic.Uint64
	errors        atomic.Uint64
	window        *framestats.Window
}

// New returns a sink publishing to pub.
func New(cfg ConfigSource, pub Publisher) *Sink {
	return &Sink{cfg: cfg, pub: pub, window: framestats.NewWindow(framestats.DefaultWindow)}
}

// SetObserver installs o. It must be called before the sink is attached.
func (s *Sink) SetObserver(o Observer) {
	s.observer = o
}

// Callbacks returns the application sink callbacks bound to s.
func (s *Sink) Callbacks() media.SinkCallbacks {
	return media.SinkCallbacks{
		OnCaps:   s.OnCaps,
		OnSample: s.OnSample,
	}
}

// Reset forgets the negotiated dimensions, for a new pipeline.
func (s *Sink) Reset() {
	s.mu.Lock()
	s.width, s.height = 0, 0
	s.mu.Unlock()
	s.window.Reset()
}

// OnCaps caches the negotiated frame size.
func (s *Sink) OnCaps(c media.Caps) {
	if !c.HasDimensions() {
		slog.Debug("framesink: caps without dimensions", "caps", c.Name)
		return
	}
	s.mu.Lock()
	s.width, s.height = c.Width, c.Height
	s.mu.Unlock()
	slog.Info("framesink: caps negotiated", "width", c.Width, "height", c.Height, "format", c.Format)
}

func (s *Sink) dimensions() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// OnSample forwards one sample to the publisher.
func (s *Sink) OnSample(sample media.Sample) (ret media.FlowReturn) {
	defer func() {
		if r := recover(); r != nil {
			s.reject("panic")
			slog.Error("framesink: recovered from panic in sample callback", "panic", r)
			ret = media.FlowError
		}
	}()

	w, h := s.dimensions()
	if w == 0 || h == 0 {
		s.notNegotiated.Add(1)
		s.reject("not_negotiated")
		return media.FlowNotNegotiated
	}

	data, unmap, err := sample.Map()
	if err != nil {
		s.reject("map")
		slog.Warn("framesink: failed to map sample", "error", err)
		return media.FlowError
	}
	defer unmap()

	view := frame.View{Width: w, Height: h, Format: frame.RGB, Data: data}
	if err := view.Validate(); err != nil {
		s.reject("size")
		slog.Warn("framesink: sample does not match caps", "error", err)
		return media.FlowError
	}

	cfg := s.cfg.Snapshot()
	started := time.Now()
	out, err := process(cfg.PostProcess, view)
	if err != nil {
		s.reject("postprocess")
		slog.Warn("framesink: post-process failed", "algorithm", cfg.PostProcess, "error", err)
		return media.FlowError
	}

	f := out.Copy()
	f.Seq = s.seq.Add(1)
	f.Timestamp = started
	f.PostProcess = cfg.PostProcess
	f.TraceID = uuid.New().String()

	s.pub.Publish(f)
	s.forwarded.Add(1)
	s.window.Add(started)
	if s.observer != nil {
		s.observer.FrameForwarded(cfg.PostProcess, time.Since(started))
	}

	slog.Debug("framesink: frame forwarded",
		"seq", f.Seq,
		"size_bytes", len(f.Data),
		"trace_id", f.TraceID,
	)
	return media.FlowOK
}

func process(name string, v frame.View) (frame.View, error) {
	fn, err := postprocess.Lookup(name)
	if err != nil {
		return frame.View{}, err
	}
	out, err := fn(v)
	if err != nil {
		return frame.View{}, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

func (s *Sink) reject(reason string) {
	if reason != "not_negotiated" {
		s.errors.Add(1)
	}
	if s.observer != nil {
		s.observer.FrameRejected(reason)
	}
}

// Stats returns the counters and the delivery statistics.
func (s *Sink) Stats() Stats {
	w, h := s.dimensions()
	return Stats{
		Forwarded:     s.forwarded.Load(),
		NotNegotiated: s.notNegotiated.Load(),
		Errors:        s.errors.Load(),
		Width:         w,
		Height:        h,
		Delivery:      s.window.Stats(time.Now()),
	}
}
