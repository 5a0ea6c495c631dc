// Package branch attaches sub-chains to a tee of a live pipeline and detaches
// them with an end-of-stream drain, so muxed output is finalized before the
// elements are torn down.
package branch

import (
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/e7canasta/rov-video/internal/media"
	"github.com/e7canasta/rov-video/internal/pipeline"
)

// Branch is a chain of elements hanging off a requested tee pad.
type Branch struct {
	tee      media.Element
	teePad   media.Pad
	elements []media.Element
}

// Tee is the junction the branch is attached to.
func (b *Branch) Tee() media.Element { return b.tee }

// Elements returns the branch elements in link order.
func (b *Branch) Elements() []media.Element {
	return append([]media.Element(nil), b.elements...)
}

// RecordingSpecs is the chain muxing the compressed stream into a Matroska
// file at path.
func RecordingSpecs(codec pipeline.Codec, path string) []media.ElementSpec {
	return []media.ElementSpec{
		{Kind: media.KindQueue, Factory: "queue"},
		{Kind: media.KindParser, Factory: codec.Parser()},
		{Kind: media.KindMuxer, Factory: "matroskamux"},
		{Kind: media.KindFileSink, Factory: "filesink", Properties: map[string]any{"location": path}},
	}
}

// Attach builds specs and links them to a new output pad of tee. Every new
// element, and the tee, is synced with the state of p so the branch joins the
// running graph. On failure everything added so far is rolled back.
func Attach(b media.Backend, p media.Pipeline, tee media.Element, specs []media.ElementSpec) (*Branch, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("branch: no elements to attach")
	}

	// Build everything first: a missing capability must not touch the graph.
	els := make([]media.Element, len(specs))
	for i, spec := range specs {
		el, err := b.NewElement(spec)
		if err != nil {
			return nil, fmt.Errorf("branch: %w", err)
		}
		els[i] = el
	}

	br := &Branch{tee: tee}
	fail := func(err error) (*Branch, error) {
		br.rollback(p)
		return nil, fmt.Errorf("branch: attach to %s: %w", tee.Name(), err)
	}

	if err := p.Add(els[0]); err != nil {
		return fail(err)
	}
	br.elements = append(br.elements, els[0])

	pad, err := tee.RequestPad()
	if err != nil {
		return fail(err)
	}
	br.teePad = pad

	if err := media.LinkPads(pad, els[0].StaticPad("sink")); err != nil {
		return fail(err)
	}

	for i := 1; i < len(els); i++ {
		if err := p.Add(els[i]); err != nil {
			return fail(err)
		}
		br.elements = append(br.elements, els[i])
		if err := media.LinkChain(els[i-1], els[i]); err != nil {
			return fail(err)
		}
	}

	for _, el := range br.elements {
		if err := el.SyncStateWithParent(); err != nil {
			return fail(err)
		}
	}
	if err := tee.SyncStateWithParent(); err != nil {
		return fail(err)
	}

	slog.Info("branch: attached",
		"tee", tee.Name(),
		"pad", pad.Name(),
		"elements", len(br.elements),
	)
	return br, nil
}

func (b *Branch) rollback(p media.Pipeline) {
	if b.teePad != nil {
		if len(b.elements) > 0 {
			if sink := b.elements[0].StaticPad("sink"); sink != nil {
				_ = b.teePad.Unlink(sink)
			}
		}
		_ = b.tee.ReleasePad(b.teePad)
		b.teePad = nil
	}
	if err := b.teardown(p); err != nil {
		slog.Warn("branch: rollback incomplete", "error", err)
	}
}

// teardown removes the elements from p and sets each to null.
func (b *Branch) teardown(p media.Pipeline) error {
	var result *multierror.Error
	for _, el := range b.elements {
		if err := p.Remove(el); err != nil {
			result = multierror.Append(result, fmt.Errorf("remove %s: %w", el.Name(), err))
		}
		if err := el.SetState(media.StateNull); err != nil {
			result = multierror.Append(result, fmt.Errorf("null %s: %w", el.Name(), err))
		}
	}
	b.elements = nil
	return result.ErrorOrNil()
}
