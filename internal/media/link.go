package media

import "fmt"

// LinkChain links every adjacent pair of elements. The elements must already
// belong to the same pipeline.
func LinkChain(elements ...Element) error {
	for i := 0; i+1 < len(elements); i++ {
		a, b := elements[i], elements[i+1]
		if err := a.Link(b); err != nil {
			return fmt.Errorf("%w: %s -> %s: %v", ErrLinkFailed, a.Name(), b.Name(), err)
		}
	}
	return nil
}

// LinkPads links src to sink with a descriptive error.
func LinkPads(src, sink Pad) error {
	if src == nil || sink == nil {
		return fmt.Errorf("%w: nil pad", ErrLinkFailed)
	}
	if err := src.Link(sink); err != nil {
		return fmt.Errorf("%w: %s -> %s: %v", ErrLinkFailed, src.Name(), sink.Name(), err)
	}
	return nil
}

// CountKind returns how many elements of kind the pipeline owns.
func CountKind(p Pipeline, kind Kind) int {
	n := 0
	for _, el := range p.Elements() {
		if el.Kind() == kind {
			n++
		}
	}
	return n
}
