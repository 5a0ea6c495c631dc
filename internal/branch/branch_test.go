package branch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/rov-video/internal/future"
	"github.com/e7canasta/rov-video/internal/media"
	"github.com/e7canasta/rov-video/internal/media/memgraph"
	"github.com/e7canasta/rov-video/internal/pipeline"
)

func running(t *testing.T, b *memgraph.Backend) *pipeline.Graph {
	t.Helper()
	g, err := pipeline.Build(b, "udp://0.0.0.0:5600")
	require.NoError(t, err)
	require.NoError(t, g.Pipeline().SetState(media.StatePlaying))
	t.Cleanup(g.Dispose)
	return g
}

func await(t *testing.T, f future.Future[Drain]) Drain {
	t.Helper()
	select {
	case <-f.Done():
		d, _ := f.Value()
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("detach never completed")
		return Drain{}
	}
}

func TestAttachDetach_PadCountAndOrphans(t *testing.T) {
	b := memgraph.New()
	g := running(t, b)
	tee := g.Tee(pipeline.TeeRaw)
	before := memgraph.Unwrap(tee).RequestPadCount()
	elementsBefore := len(g.Pipeline().Elements())

	path := filepath.Join(t.TempDir(), "out.mkv")
	br, err := Attach(b, g.Pipeline(), tee, RecordingSpecs(g.Codec(), path))
	require.NoError(t, err)
	assert.Equal(t, before+1, memgraph.Unwrap(tee).RequestPadCount())
	assert.Equal(t, 1, media.CountKind(g.Pipeline(), media.KindMuxer))
	for _, el := range br.Elements() {
		assert.Equal(t, media.StatePlaying, memgraph.Unwrap(el).State(), el.Name())
	}

	src := g.Pipeline().(*memgraph.Pipeline).Source()
	src.Push([]byte("nal"))

	elements := br.Elements()
	d := Detach(g.Pipeline(), br, future.Inline)
	drain := await(t, d.Done())
	assert.False(t, drain.Forced)
	assert.NoError(t, drain.Err)

	assert.Equal(t, before, memgraph.Unwrap(tee).RequestPadCount())
	assert.Equal(t, elementsBefore, len(g.Pipeline().Elements()), "no orphaned elements")
	for _, el := range elements {
		e := memgraph.Unwrap(el)
		assert.Nil(t, e.Parent(), el.Name())
		assert.Equal(t, media.StateNull, e.State(), el.Name())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(memgraph.Header)+"nal"+string(memgraph.Trailer), string(data))
	assert.False(t, d.Force(), "force after drain must lose")
}

func TestDetach_StalledDrainIsForced(t *testing.T) {
	b := memgraph.New(memgraph.StallEOS("matroskamux"))
	g := running(t, b)
	tee := g.Tee(pipeline.TeeRaw)

	br, err := Attach(b, g.Pipeline(), tee, RecordingSpecs(g.Codec(), filepath.Join(t.TempDir(), "x.mkv")))
	require.NoError(t, err)

	d := Detach(g.Pipeline(), br, future.Inline)
	select {
	case <-d.Done().Done():
		t.Fatal("detach completed although the drain stalled")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, 1, media.CountKind(g.Pipeline(), media.KindMuxer), "elements stay until drained")

	require.True(t, d.Force())
	assert.False(t, d.Force())
	drain := await(t, d.Done())
	assert.True(t, drain.Forced)
	assert.Zero(t, media.CountKind(g.Pipeline(), media.KindMuxer))
	assert.Zero(t, media.CountKind(g.Pipeline(), media.KindFileSink))
}

func TestAttach_MissingCapabilityLeavesGraphUntouched(t *testing.T) {
	b := memgraph.New()
	g := running(t, b)
	b.Registry().Unregister("matroskamux")
	tee := g.Tee(pipeline.TeeRaw)
	before := len(g.Pipeline().Elements())

	_, err := Attach(b, g.Pipeline(), tee, RecordingSpecs(g.Codec(), filepath.Join(t.TempDir(), "x.mkv")))
	require.ErrorIs(t, err, media.ErrMissingElement)
	assert.Equal(t, before, len(g.Pipeline().Elements()))
	assert.Equal(t, 1, memgraph.Unwrap(tee).RequestPadCount())
}

func TestAttach_RollbackOnLinkFailure(t *testing.T) {
	b := memgraph.New()
	g := running(t, b)
	tee := g.Tee(pipeline.TeeDecoded)
	before := len(g.Pipeline().Elements())

	// A file sink has no output, so linking anything after it fails.
	specs := []media.ElementSpec{
		{Kind: media.KindQueue, Factory: "queue"},
		{Kind: media.KindFileSink, Factory: "filesink", Properties: map[string]any{"location": filepath.Join(t.TempDir(), "y")}},
		{Kind: media.KindQueue, Factory: "queue"},
	}
	_, err := Attach(b, g.Pipeline(), tee, specs)
	require.ErrorIs(t, err, media.ErrLinkFailed)
	assert.Equal(t, before, len(g.Pipeline().Elements()))
	assert.Equal(t, 1, memgraph.Unwrap(tee).RequestPadCount())
}

func TestRecordingSpecs(t *testing.T) {
	specs := RecordingSpecs(pipeline.H264, "/tmp/out.mkv")
	require.Len(t, specs, 4)
	assert.Equal(t, "h264parse", specs[1].Factory)
	assert.Equal(t, media.KindFileSink, specs[3].Kind)
	assert.Equal(t, "/tmp/out.mkv", specs[3].Properties["location"])
}
