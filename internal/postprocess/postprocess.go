// Package postprocess holds the frame post-process algorithms selectable at
// runtime: none, color (underwater color correction) and clahe (color
// correction followed by local contrast enhancement).
package postprocess

import (
	"fmt"
	"sort"

	"github.com/e7canasta/rov-video/internal/frame"
)

// Func transforms a frame. The returned view may alias the input when the
// algorithm does not change the pixels.
type Func func(v frame.View) (frame.View, error)

// None is the identity.
const None = "none"

var algorithms = map[string]Func{
	None:    Identity,
	"color": ColorCorrect,
	"clahe": ColorCorrectCLAHE,
}

// Lookup returns the algorithm registered under name. Empty means none.
func Lookup(name string) (Func, error) {
	if name == "" {
		name = None
	}
	fn, ok := algorithms[name]
	if !ok {
		return nil, fmt.Errorf("postprocess: unknown algorithm %q", name)
	}
	return fn, nil
}

// Names lists the registered algorithms, sorted.
func Names() []string {
	out := make([]string, 0, len(algorithms))
	for name := range algorithms {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Identity returns v unchanged.
func Identity(v frame.View) (frame.View, error) {
	return v, nil
}
