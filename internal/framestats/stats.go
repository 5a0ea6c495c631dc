// Package framestats computes frame delivery rate statistics over a window
// of recent delivery timestamps.
package framestats

import (
	"math"
	"sync"
	"time"
)

const (
	// fpsStabilityThreshold is the maximum FPS standard deviation, as a
	// fraction of mean FPS, for the delivery to count as stable.
	fpsStabilityThreshold = 0.15

	// jitterStabilityThreshold is the maximum mean jitter, as a fraction of
	// the expected inter-frame interval.
	jitterStabilityThreshold = 0.20

	// DefaultWindow is the number of deliveries kept by a Window.
	DefaultWindow = 120
)

// Stats summarizes a series of frame deliveries.
type Stats struct {
	Frames     int
	Duration   time.Duration
	FPSMean    float64
	FPSStdDev  float64
	FPSMin     float64
	FPSMax     float64
	JitterMean float64 // seconds
	JitterMax  float64 // seconds
	IsStable   bool
}

// Calculate computes delivery statistics from frame timestamps.
//
// Stability requires the instantaneous FPS standard deviation to stay below
// 15% of the mean and the mean jitter below 20% of the expected interval.
func Calculate(times []time.Time, duration time.Duration) Stats {
	n := len(times)
	if n == 0 || duration <= 0 {
		return Stats{Frames: n, Duration: duration}
	}

	s := Stats{
		Frames:   n,
		Duration: duration,
		FPSMean:  float64(n) / duration.Seconds(),
	}

	instant := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		if dt := times[i].Sub(times[i-1]).Seconds(); dt > 0 {
			instant = append(instant, 1.0/dt)
		}
	}
	if len(instant) == 0 {
		return s
	}

	s.FPSMin, s.FPSMax = instant[0], instant[0]
	var sumSquares float64
	for _, fps := range instant {
		s.FPSMin = math.Min(s.FPSMin, fps)
		s.FPSMax = math.Max(s.FPSMax, fps)
		diff := fps - s.FPSMean
		sumSquares += diff * diff
	}
	s.FPSStdDev = math.Sqrt(sumSquares / float64(len(instant)))

	expected := 1.0 / s.FPSMean
	var jitterSum float64
	for i := 1; i < n; i++ {
		j := math.Abs(times[i].Sub(times[i-1]).Seconds() - expected)
		jitterSum += j
		s.JitterMax = math.Max(s.JitterMax, j)
	}
	s.JitterMean = jitterSum / float64(n-1)

	s.IsStable = s.FPSStdDev < s.FPSMean*fpsStabilityThreshold &&
		s.JitterMean < expected*jitterStabilityThreshold
	return s
}

// Window is a bounded ring of delivery timestamps, safe for one writer on
// the media thread and concurrent readers.
type Window struct {
	mu    sync.Mutex
	times []time.Time
	next  int
	full  bool
}

// NewWindow returns a window keeping the last size deliveries.
func NewWindow(size int) *Window {
	if size < 2 {
		size = DefaultWindow
	}
	return &Window{times: make([]time.Time, size)}
}

// Add records a delivery.
func (w *Window) Add(t time.Time) {
	w.mu.Lock()
	w.times[w.next] = t
	w.next = (w.next + 1) % len(w.times)
	if w.next == 0 {
		w.full = true
	}
	w.mu.Unlock()
}

// Reset forgets every delivery.
func (w *Window) Reset() {
	w.mu.Lock()
	w.next, w.full = 0, false
	w.mu.Unlock()
}

// Stats computes the statistics of the deliveries in the window, measured
// up to now.
func (w *Window) Stats(now time.Time) Stats {
	w.mu.Lock()
	var ordered []time.Time
	if w.full {
		ordered = append(append(ordered, w.times[w.next:]...), w.times[:w.next]...)
	} else {
		ordered = append(ordered, w.times[:w.next]...)
	}
	w.mu.Unlock()

	if len(ordered) == 0 {
		return Stats{}
	}
	return Calculate(ordered, now.Sub(ordered[0]))
}
