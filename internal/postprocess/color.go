package postprocess

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/e7canasta/rov-video/internal/frame"
)

const (
	statsSize = 128 // side of the downsampled image used for channel statistics
	clipSigma = 3.0
	minSpan   = 1e-6 // in [0,1] units

	claheClipLimit = 2.0
	claheTiles     = 8
)

// ColorCorrect stretches every channel so that mean ± 3σ maps to [0,255].
// Statistics are computed on a nearest-neighbour downsample.
func ColorCorrect(v frame.View) (frame.View, error) {
	return apply(v, false)
}

// ColorCorrectCLAHE runs ColorCorrect and then per-channel CLAHE.
func ColorCorrectCLAHE(v frame.View) (frame.View, error) {
	return apply(v, true)
}

func apply(v frame.View, clahe bool) (frame.View, error) {
	if err := v.Validate(); err != nil {
		return frame.View{}, err
	}
	src, err := gocv.NewMatFromBytes(v.Height, v.Width, gocv.MatTypeCV8UC3, v.Data[:v.Size()])
	if err != nil {
		return frame.View{}, fmt.Errorf("postprocess: wrap frame: %w", err)
	}
	defer src.Close()

	channels := colorCorrect(src)
	defer closeAll(channels)

	if clahe {
		c := gocv.NewCLAHEWithParams(claheClipLimit, image.Pt(claheTiles, claheTiles))
		defer c.Close()
		for i := range channels {
			eq := gocv.NewMat()
			c.Apply(channels[i], &eq)
			channels[i].Close()
			channels[i] = eq
		}
	}

	out := gocv.NewMat()
	defer out.Close()
	gocv.Merge(channels, &out)

	return frame.View{
		Width:  v.Width,
		Height: v.Height,
		Format: v.Format,
		Data:   out.ToBytes(),
	}, nil
}

// colorCorrect returns the corrected 8-bit channels of src.
func colorCorrect(src gocv.Mat) []gocv.Mat {
	f := gocv.NewMat()
	defer f.Close()
	src.ConvertToWithParams(&f, gocv.MatTypeCV32FC3, 1.0/255, 0)

	small := gocv.NewMat()
	defer small.Close()
	gocv.Resize(f, &small, image.Pt(statsSize, statsSize), 0, 0, gocv.InterpolationNearestNeighbor)

	mean := gocv.NewMat()
	defer mean.Close()
	stddev := gocv.NewMat()
	defer stddev.Close()
	gocv.MeanStdDev(small, &mean, &stddev)

	planes := gocv.Split(f)
	defer closeAll(planes)

	out := make([]gocv.Mat, len(planes))
	for i, plane := range planes {
		m, s := mean.GetDoubleAt(i, 0), stddev.GetDoubleAt(i, 0)
		lo, hi := m-clipSigma*s, m+clipSigma*s

		// Flat channels have no range to stretch and keep their values.
		alpha, beta := 255.0, 0.0
		if span := hi - lo; span > minSpan {
			alpha = 255 / span
			beta = -lo * alpha
		}

		// The 8-bit conversion saturates, which is the clip to [lo, hi].
		out[i] = gocv.NewMat()
		plane.ConvertToWithParams(&out[i], gocv.MatTypeCV8U, float32(alpha), float32(beta))
	}
	return out
}

func closeAll(mats []gocv.Mat) {
	for _, m := range mats {
		m.Close()
	}
}
