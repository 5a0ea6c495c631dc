// Package frame defines decoded video frames.
package frame

import (
	"fmt"
	"time"
)

// PixelFormat is the memory layout of a frame.
type PixelFormat int

const (
	// RGB is 8-bit, 3 channels, interleaved.
	RGB PixelFormat = iota
)

func (p PixelFormat) String() string {
	if p == RGB {
		return "RGB"
	}
	return "unknown"
}

// Channels is the number of interleaved channels.
func (p PixelFormat) Channels() int { return 3 }

// View is a zero-copy view over mapped buffer memory. It is only valid while
// the buffer stays mapped, i.e. for the duration of the sample callback.
type View struct {
	Width  int
	Height int
	Format PixelFormat
	Data   []byte
}

// Size is the number of bytes the dimensions require.
func (v View) Size() int {
	return v.Width * v.Height * v.Format.Channels()
}

// Validate checks that Data covers the dimensions.
func (v View) Validate() error {
	if v.Width <= 0 || v.Height <= 0 {
		return fmt.Errorf("frame: invalid dimensions %dx%d", v.Width, v.Height)
	}
	if len(v.Data) < v.Size() {
		return fmt.Errorf("frame: %d bytes for %dx%d %s, need %d", len(v.Data), v.Width, v.Height, v.Format, v.Size())
	}
	return nil
}

// Frame is a decoded image that owns its bytes and can outlive the callback.
type Frame struct {
	Seq         uint64
	Timestamp   time.Time
	Width       int
	Height      int
	Format      PixelFormat
	Data        []byte
	PostProcess string
	TraceID     string
}

// Copy returns a Frame holding a copy of the view bytes.
func (v View) Copy() Frame {
	data := make([]byte, v.Size())
	copy(data, v.Data)
	return Frame{
		Width:  v.Width,
		Height: v.Height,
		Format: v.Format,
		Data:   data,
	}
}

// View returns a view over the frame bytes.
func (f Frame) View() View {
	return View{Width: f.Width, Height: f.Height, Format: f.Format, Data: f.Data}
}
