package gstgraph

import (
	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/rov-video/internal/media"
)

func toGstState(s media.State) gst.State {
	switch s {
	case media.StateReady:
		return gst.StateReady
	case media.StatePaused:
		return gst.StatePaused
	case media.StatePlaying:
		return gst.StatePlaying
	default:
		return gst.StateNull
	}
}

func fromGstState(s gst.State) media.State {
	switch s {
	case gst.StateReady:
		return media.StateReady
	case gst.StatePaused:
		return media.StatePaused
	case gst.StatePlaying:
		return media.StatePlaying
	default:
		return media.StateNull
	}
}

func toGstFlow(f media.FlowReturn) gst.FlowReturn {
	switch f {
	case media.FlowOK:
		return gst.FlowOK
	case media.FlowNotNegotiated:
		return gst.FlowNotNegotiated
	case media.FlowFlushing:
		return gst.FlowFlushing
	case media.FlowEOS:
		return gst.FlowEOS
	default:
		return gst.FlowError
	}
}

func toGstEvent(ev media.Event) *gst.Event {
	switch ev.Type {
	case media.EventCustomDownstream:
		return gst.NewCustomEvent(gst.EventTypeCustomDownstream, gst.NewStructure(ev.Name))
	case media.EventCaps:
		return gst.NewCapsEvent(gst.NewCapsFromString(capsString(ev.Caps)))
	default:
		return gst.NewEOSEvent()
	}
}

func fromGstEvent(ev *gst.Event) media.Event {
	switch ev.Type() {
	case gst.EventTypeEOS:
		return media.EOS()
	case gst.EventTypeCaps:
		return media.Event{Type: media.EventCaps, Caps: fromGstCaps(ev.ParseCaps())}
	default:
		out := media.Event{Type: media.EventCustomDownstream}
		if s := ev.GetStructure(); s != nil {
			out.Name = s.Name()
		}
		return out
	}
}

func fromGstCaps(caps *gst.Caps) media.Caps {
	if caps == nil || caps.GetSize() == 0 {
		return media.Caps{}
	}
	s := caps.GetStructureAt(0)
	c := media.Caps{Name: s.Name()}
	if v, err := s.GetValue("media"); err == nil {
		c.Media, _ = v.(string)
	}
	if v, err := s.GetValue("format"); err == nil {
		c.Format, _ = v.(string)
	}
	if v, err := s.GetValue("width"); err == nil {
		c.Width, _ = v.(int)
	}
	if v, err := s.GetValue("height"); err == nil {
		c.Height, _ = v.(int)
	}
	return c
}

func capsString(c media.Caps) string {
	s := c.Name
	if c.Media != "" {
		s += ",media=" + c.Media
	}
	if c.Format != "" {
		s += ",format=" + c.Format
	}
	return s
}
