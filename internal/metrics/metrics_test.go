package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserver(t *testing.T) {
	m := New()

	m.FrameForwarded("", time.Millisecond)
	m.FrameForwarded("color", 2*time.Millisecond)
	m.FrameForwarded("color", 2*time.Millisecond)
	m.FrameRejected("not_negotiated")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesForwarded.WithLabelValues("none")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesForwarded.WithLabelValues("color")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesRejected.WithLabelValues("not_negotiated")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.PostProcess), "one histogram series")
	assert.Equal(t, uint64(3), postProcessSamples(t, m))
}

func postProcessSamples(t *testing.T, m *Metrics) uint64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "rov_video_post_process_seconds" {
			require.Len(t, mf.GetMetric(), 1)
			return mf.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	t.Fatal("post-process histogram not registered")
	return 0
}

func TestStateGauges(t *testing.T) {
	m := New()

	m.SetPipelineState(2)
	m.SetRecording(true)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PipelineState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordingActive))

	m.SetRecording(false)
	m.RecordingFinished(1024)
	m.RecordingFinished(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RecordingActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Recordings))
	assert.Equal(t, 1024.0, testutil.ToFloat64(m.RecordingBytes))
}

func TestHandler(t *testing.T) {
	m := New()
	m.BusError("network")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `rov_video_bus_errors_total{category="network"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
