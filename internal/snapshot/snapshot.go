// Package snapshot writes display frames to image files.
package snapshot

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/imgio"

	"github.com/e7canasta/rov-video/internal/frame"
)

// DefaultQuality is the JPEG quality used when Options.Quality is zero.
const DefaultQuality = 90

var ErrEmptyFrame = errors.New("snapshot: empty frame")

// Options tune the written image.
type Options struct {
	Quality    int     // JPEG quality, 1..100
	Brightness float64 // -1..1, 0 leaves the frame untouched
}

// Image converts an RGB frame to an image.RGBA.
func Image(f frame.Frame) (*image.RGBA, error) {
	v := f.View()
	if v.Width == 0 || v.Height == 0 {
		return nil, ErrEmptyFrame
	}
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, v.Width, v.Height))
	for i, j := 0, 0; i+2 < len(v.Data) && j+3 < len(img.Pix); i, j = i+3, j+4 {
		img.Pix[j] = v.Data[i]
		img.Pix[j+1] = v.Data[i+1]
		img.Pix[j+2] = v.Data[i+2]
		img.Pix[j+3] = 0xff
	}
	return img, nil
}

// Save writes f to path. The encoder follows the extension: .png writes
// PNG, anything else JPEG. Missing parent directories are created.
func Save(path string, f frame.Frame, opts Options) error {
	img, err := Image(f)
	if err != nil {
		return err
	}

	var out image.Image = img
	if opts.Brightness != 0 {
		out = adjust.Brightness(img, opts.Brightness)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
	}

	if err := imgio.Save(path, out, encoder(path, opts.Quality)); err != nil {
		return fmt.Errorf("snapshot: save %s: %w", path, err)
	}
	return nil
}

// Name returns a timestamped file name for a frame, e.g.
// "rov-20240102-150405.000-000042.jpg".
func Name(prefix string, f frame.Frame) string {
	ts := f.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return fmt.Sprintf("%s-%s-%06d.jpg", prefix, ts.Format("20060102-150405.000"), f.Seq)
}

func encoder(path string, quality int) imgio.Encoder {
	if strings.EqualFold(filepath.Ext(path), ".png") {
		return imgio.PNGEncoder()
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return imgio.JPEGEncoder(quality)
}
