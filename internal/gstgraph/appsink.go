package gstgraph

import (
	"errors"
	"sync"
	"unsafe"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/rov-video/internal/media"
)

// AppSink wraps an appsink element. Caps are reported from a probe on its
// sink pad, before the first sample of a negotiation arrives.
type AppSink struct {
	*Element
	sink *app.Sink

	probeOnce sync.Once
	mu        sync.Mutex
	cb        media.SinkCallbacks
}

func newAppSink(e *Element) *AppSink {
	return &AppSink{Element: e, sink: app.SinkFromElement(e.el)}
}

func (a *AppSink) SetCallbacks(cb media.SinkCallbacks) {
	a.mu.Lock()
	a.cb = cb
	a.mu.Unlock()

	a.probeOnce.Do(func() {
		if pad := a.StaticPad("sink"); pad != nil {
			pad.AddEventProbe(func(ev media.Event) media.ProbeReturn {
				if ev.Type == media.EventCaps {
					if fn := a.callbacks().OnCaps; fn != nil {
						fn(ev.Caps)
					}
				}
				return media.ProbePass
			})
		}
	})

	a.sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			fn := a.callbacks().OnSample
			if fn == nil {
				return gst.FlowOK
			}
			s := sink.PullSample()
			if s == nil {
				return gst.FlowOK
			}
			return toGstFlow(fn(&sample{s: s}))
		},
		EOSFunc: func(*app.Sink) {
			if fn := a.callbacks().OnEOS; fn != nil {
				fn()
			}
		},
	})
}

func (a *AppSink) callbacks() media.SinkCallbacks {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cb
}

type sample struct {
	s *gst.Sample
}

// Map maps the sample buffer read-only. The slice aliases the mapped buffer
// memory without copying and must not be used after unmap is called.
func (s *sample) Map() ([]byte, func(), error) {
	buf := s.s.GetBuffer()
	if buf == nil {
		return nil, nil, errors.New("sample without buffer")
	}
	info := buf.Map(gst.MapRead)
	if info == nil {
		return nil, nil, errors.New("failed to map buffer")
	}
	if info.Size() == 0 {
		return nil, buf.Unmap, nil
	}
	return unsafe.Slice((*byte)(info.Data()), info.Size()), buf.Unmap, nil
}
