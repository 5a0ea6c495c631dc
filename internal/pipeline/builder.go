// Package pipeline builds the static part of the media graph:
//
//	source → depay → tee(raw) → queue → parse → decode → tee(decoded) →
//	queue(leaky) → convert → appsink
//
// The raw tee is where the recording branch is attached. The decoded tee
// feeds the display path and accepts further decoded branches.
package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/e7canasta/rov-video/internal/media"
)

// TeeID selects one of the two fan-out junctions.
type TeeID int

const (
	TeeRaw TeeID = iota
	TeeDecoded
)

func (t TeeID) String() string {
	if t == TeeRaw {
		return "raw"
	}
	return "decoded"
}

// DisplayCaps is the caps filter of the application sink.
const DisplayCaps = "video/x-raw,format=RGB"

// rtpCaps are announced by the UDP source, which has no RTSP negotiation.
const rtpCaps = "application/x-rtp,media=video,clock-rate=90000,encoding-name=%s,payload=96"

// Graph is a built pipeline with handles to the elements the controller
// operates on.
type Graph struct {
	pipeline media.Pipeline
	source   Source
	src      media.Element
	depay    media.Element
	tees     [2]media.Element
	sink     media.AppSink
}

func (g *Graph) Pipeline() media.Pipeline     { return g.pipeline }
func (g *Graph) Source() Source               { return g.source }
func (g *Graph) SourceElement() media.Element { return g.src }
func (g *Graph) Tee(id TeeID) media.Element   { return g.tees[id] }
func (g *Graph) AppSink() media.AppSink       { return g.sink }
func (g *Graph) Codec() Codec                 { return g.source.Codec }

// Dispose brings the pipeline to null and releases it.
func (g *Graph) Dispose() {
	g.pipeline.Dispose()
}

// Build constructs the graph for streamURL. On any failure the partially
// built pipeline is disposed and a nil graph is returned.
func Build(b media.Backend, streamURL string) (*Graph, error) {
	src, err := ParseSource(streamURL)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	p, err := b.NewPipeline("rov-video")
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	g, err := assemble(b, p, src)
	if err != nil {
		p.Dispose()
		slog.Error("pipeline: build failed", "location", src.Redacted(), "error", err)
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	slog.Info("pipeline: built",
		"backend", b.Name(),
		"location", src.Redacted(),
		"transport", src.Transport,
		"codec", src.Codec,
		"elements", len(p.Elements()),
	)
	return g, nil
}

func assemble(b media.Backend, p media.Pipeline, src Source) (*Graph, error) {
	c := src.Codec
	specs := []media.ElementSpec{
		sourceSpec(src),
		{Kind: media.KindDepayloader, Factory: c.Depayloader(), Name: "depay"},
		{Kind: media.KindTee, Factory: "tee", Name: "tee_raw"},
		{Kind: media.KindQueue, Factory: "queue", Name: "queue_decode"},
		{Kind: media.KindParser, Factory: c.Parser(), Name: "parse"},
		{Kind: media.KindDecoder, Factory: c.Decoder(), Name: "decode"},
		{Kind: media.KindTee, Factory: "tee", Name: "tee_decoded"},
		{Kind: media.KindQueue, Factory: "queue", Name: "queue_display",
			Properties: map[string]any{"leaky": media.Arg("downstream")}}, // drop old frames
		{Kind: media.KindConverter, Factory: "videoconvert", Name: "convert"},
		{Kind: media.KindAppSink, Factory: "appsink", Name: "display",
			Properties: map[string]any{"caps": DisplayCaps, "sync": false}},
	}

	els := make([]media.Element, len(specs))
	for i, spec := range specs {
		el, err := b.NewElement(spec)
		if err != nil {
			return nil, err
		}
		els[i] = el
	}
	sink, ok := els[9].(media.AppSink)
	if !ok {
		return nil, fmt.Errorf("%s does not provide an application sink", specs[9].Factory)
	}

	// Elements must be owned by the pipeline before they can be linked.
	if err := p.Add(els...); err != nil {
		return nil, fmt.Errorf("add elements: %w", err)
	}

	g := &Graph{
		pipeline: p,
		source:   src,
		src:      els[0],
		depay:    els[1],
		tees:     [2]media.Element{els[2], els[6]},
		sink:     sink,
	}

	if err := linkSource(g); err != nil {
		return nil, err
	}
	if err := media.LinkChain(els[1], els[2]); err != nil {
		return nil, err
	}
	if err := linkTee(els[2], els[3]); err != nil {
		return nil, err
	}
	if err := media.LinkChain(els[3], els[4], els[5], els[6]); err != nil {
		return nil, err
	}
	if err := linkTee(els[6], els[7]); err != nil {
		return nil, err
	}
	if err := media.LinkChain(els[7], els[8], els[9]); err != nil {
		return nil, err
	}
	return g, nil
}

func sourceSpec(src Source) media.ElementSpec {
	if src.Transport == TransportUDP {
		return media.ElementSpec{
			Kind:    media.KindSource,
			Factory: "udpsrc",
			Name:    "source",
			Properties: map[string]any{
				"address": src.Host,
				"port":    src.Port,
				"caps":    fmt.Sprintf(rtpCaps, encodingName(src.Codec)),
			},
		}
	}

	props := map[string]any{
		"location": src.Location,
		"latency":  uint(0),
	}
	if src.User != "" {
		props["user-id"] = src.User
		props["user-pw"] = src.Password
	}
	if src.TCP {
		props["protocols"] = media.Arg("tcp")
	}
	return media.ElementSpec{Kind: media.KindSource, Factory: "rtspsrc", Name: "source", Properties: props}
}

func encodingName(c Codec) string {
	if c == H264 {
		return "H264"
	}
	return "H265"
}

// linkSource links the source to the depayloader, lazily when the source
// only exposes its output pad after negotiation.
func linkSource(g *Graph) error {
	if g.src.StaticPad("src") != nil {
		return media.LinkChain(g.src, g.depay)
	}

	sinkPad := g.depay.StaticPad("sink")
	if sinkPad == nil {
		return fmt.Errorf("%w: %s has no sink pad", media.ErrNoPad, g.depay.Name())
	}
	g.src.OnPadAdded(func(pad media.Pad) {
		caps, ok := pad.Caps()
		if !ok || caps.Media != "video" {
			slog.Debug("pipeline: ignoring source pad", "pad", pad.Name(), "media", caps.Media)
			return
		}
		if err := media.LinkPads(pad, sinkPad); err != nil {
			slog.Error("pipeline: failed to link source pad", "pad", pad.Name(), "error", err)
			return
		}
		slog.Debug("pipeline: source pad linked", "pad", pad.Name())
	})
	return nil
}

// linkTee links a newly requested tee output pad to the sink pad of next.
func linkTee(tee, next media.Element) error {
	pad, err := tee.RequestPad()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", media.ErrLinkFailed, tee.Name(), err)
	}
	if err := media.LinkPads(pad, next.StaticPad("sink")); err != nil {
		_ = tee.ReleasePad(pad)
		return err
	}
	return nil
}
