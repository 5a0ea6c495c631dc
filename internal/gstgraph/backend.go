// Package gstgraph implements media.Backend on top of GStreamer through
// go-gst.
//
// Callbacks registered on pads and application sinks run on GStreamer
// streaming threads. Bus messages are polled by one goroutine per watched
// pipeline and handed to the watcher in arrival order.
package gstgraph

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/rov-video/internal/media"
)

var initOnce sync.Once

// Factories lists the element factories the pipeline core builds from.
var Factories = map[string]media.Kind{
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

// Backend creates GStreamer pipelines and elements.
type Backend struct {
	reg *media.Registry
}

// New initializes GStreamer (once per process) and registers every factory
// the installation provides. Factories that are not installed stay
// unregistered and surface as missing elements when built.
func New() *Backend {
	initOnce.Do(func() { gst.Init(nil) })

	b := &Backend{reg: media.NewRegistry()}
	for factory, kind := range Factories {
		if gst.Find(factory) == nil {
			slog.Warn("gstgraph: element factory not installed", "factory", factory)
			continue
		}
		b.reg.Register(kind, factory, construct)
	}
	return b
}

func (b *Backend) Name() string { return "gstreamer" }

// Registry exposes the factory registry.
func (b *Backend) Registry() *media.Registry { return b.reg }

func (b *Backend) NewPipeline(name string) (media.Pipeline, error) {
	p, err := gst.NewPipeline(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	return newPipeline(p), nil
}

func (b *Backend) NewElement(spec media.ElementSpec) (media.Element, error) {
	return b.reg.Make(spec)
}

func construct(spec media.ElementSpec) (media.Element, error) {
	var (
		el  *gst.Element
		err error
	)
	if spec.Name != "" {
		el, err = gst.NewElementWithName(spec.Factory, spec.Name)
	} else {
		el, err = gst.NewElement(spec.Factory)
	}
	if err != nil {
		return nil, err
	}

	for key, value := range spec.Properties {
		if err := setProperty(el, key, value); err != nil {
			return nil, fmt.Errorf("set %s.%s: %w", spec.Factory, key, err)
		}
	}

	e := &Element{el: el, kind: spec.Kind, factory: spec.Factory}
	if spec.Kind == media.KindAppSink {
		return newAppSink(e), nil
	}
	return e, nil
}

// setProperty applies one property. SetProperty only accepts a value of the
// property's exact GType, so enum and flags values go through
// gst_util_set_object_arg, which parses their nicks.
func setProperty(el *gst.Element, key string, value any) error {
	switch v := value.(type) {
	case media.Arg:
		if _, err := el.GetPropertyType(key); err != nil {
			return err
		}
		el.SetArg(key, string(v))
		return nil
	case string:
		if key == "caps" {
			return el.SetProperty(key, gst.NewCapsFromString(v))
		}
	}
	return el.SetProperty(key, value)
}
