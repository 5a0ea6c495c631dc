package framesink

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/rov-video/internal/config"
	"github.com/e7canasta/rov-video/internal/frame"
	"github.com/e7canasta/rov-video/internal/media"
)

type recorder struct {
	mu     sync.Mutex
	frames []frame.Frame
}

func (r *recorder) Publish(f frame.Frame) {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
}

type bytesSample []byte

func (b bytesSample) Map() ([]byte, func(), error) { return b, func() {}, nil }

// mappedSample hands out its buffer without copying and zeroes it on
// unmap, the way a recycled buffer pool would.
type mappedSample struct {
	buf      []byte
	unmapped bool
}

func (m *mappedSample) Map() ([]byte, func(), error) {
	return m.buf, func() {
		clear(m.buf)
		m.unmapped = true
	}, nil
}

type failingSample struct{}

func (failingSample) Map() ([]byte, func(), error) { return nil, nil, errors.New("boom") }

type panickingSample struct{}

func (panickingSample) Map() ([]byte, func(), error) { panic("mapped memory gone") }

type countingObserver struct {
	forwarded int
	rejected  []string
}

func (o *countingObserver) FrameForwarded(string, time.Duration) { o.forwarded++ }
func (o *countingObserver) FrameRejected(reason string)          { o.rejected = append(o.rejected, reason) }

func newSink(algo string) (*Sink, *recorder) {
	rec := &recorder{}
	return New(config.NewShared(config.Runtime{PostProcess: algo}), rec), rec
}

func TestNoFrameBeforeCaps(t *testing.T) {
	s, rec := newSink("none")
	obs := &countingObserver{}
	s.SetObserver(obs)

	ret := s.OnSample(bytesSample(make([]byte, 12)))
	assert.Equal(t, media.FlowNotNegotiated, ret)
	assert.Empty(t, rec.frames)
	assert.Equal(t, uint64(1), s.Stats().NotNegotiated)
	assert.Equal(t, []string{"not_negotiated"}, obs.rejected)

	s.OnCaps(media.Caps{Name: "video/x-raw", Format: "RGB"}) // no dimensions yet
	assert.Equal(t, media.FlowNotNegotiated, s.OnSample(bytesSample(make([]byte, 12))))

	s.OnCaps(media.Caps{Name: "video/x-raw", Format: "RGB", Width: 2, Height: 2})
	assert.Equal(t, media.FlowOK, s.OnSample(bytesSample(make([]byte, 12))))
	require.Len(t, rec.frames, 1)
	assert.Equal(t, 2, rec.frames[0].Width)
	assert.Equal(t, 2, rec.frames[0].Height)
	assert.Equal(t, frame.RGB, rec.frames[0].Format)
	assert.Equal(t, 1, obs.forwarded)
}

func TestIdentityPostProcess(t *testing.T) {
	s, rec := newSink("none")
	s.OnCaps(media.Caps{Width: 4, Height: 1})

	in := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	orig := append([]byte(nil), in...)
	require.Equal(t, media.FlowOK, s.OnSample(bytesSample(in)))

	require.Len(t, rec.frames, 1)
	assert.True(t, bytes.Equal(orig, rec.frames[0].Data))

	// The forwarded frame owns its bytes.
	in[0] = 99
	assert.Equal(t, byte(1), rec.frames[0].Data[0])
}

func TestFailuresBecomeFlowErrors(t *testing.T) {
	s, rec := newSink("none")
	s.OnCaps(media.Caps{Width: 2, Height: 2})

	assert.Equal(t, media.FlowError, s.OnSample(failingSample{}))
	assert.Equal(t, media.FlowError, s.OnSample(panickingSample{}))
	assert.Equal(t, media.FlowError, s.OnSample(bytesSample(make([]byte, 5))), "short buffer")
	assert.Empty(t, rec.frames)
	assert.Equal(t, uint64(3), s.Stats().Errors)
}

func TestConfigSnapshotPerSample(t *testing.T) {
	shared := config.NewShared(config.Runtime{PostProcess: "none"})
	rec := &recorder{}
	s := New(shared, rec)
	s.OnCaps(media.Caps{Width: 1, Height: 1})

	require.Equal(t, media.FlowOK, s.OnSample(bytesSample{1, 2, 3}))
	shared.Update(func(r *config.Runtime) { r.PostProcess = "bogus" })
	assert.Equal(t, media.FlowError, s.OnSample(bytesSample{1, 2, 3}))

	require.Len(t, rec.frames, 1)
	assert.Equal(t, "none", rec.frames[0].PostProcess)
	assert.Equal(t, uint64(1), rec.frames[0].Seq)
}

func TestReset(t *testing.T) {
	s, _ := newSink("none")
	s.OnCaps(media.Caps{Width: 2, Height: 2})
	s.Reset()
	assert.Equal(t, media.FlowNotNegotiated, s.OnSample(bytesSample(make([]byte, 12))))
}

func TestFrameSurvivesUnmap(t *testing.T) {
	s, rec := newSink("none")
	s.OnCaps(media.Caps{Width: 2, Height: 1})

	sample := &mappedSample{buf: []byte{10, 20, 30, 40, 50, 60}}
	require.Equal(t, media.FlowOK, s.OnSample(sample))
	require.True(t, sample.unmapped, "sample must be unmapped before returning")

	require.Len(t, rec.frames, 1)
	assert.Equal(t, []byte{10, 20, 30, 40, 50, 60}, rec.frames[0].Data)
}
