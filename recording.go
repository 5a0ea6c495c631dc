package rovvideo

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/e7canasta/rov-video/internal/branch"
	"github.com/e7canasta/rov-video/internal/config"
	"github.com/e7canasta/rov-video/internal/future"
	"github.com/e7canasta/rov-video/internal/notify"
	"github.com/e7canasta/rov-video/internal/pipeline"
)

func (c *Controller) startRecording(path string) (Recording, error) {
	if c.state != PipelineRunning {
		return Recording{}, precondition("start recording", "pipeline is %s", c.state)
	}
	if c.rec != RecordingOff {
		return Recording{}, precondition("start recording", "recording is %s", c.rec)
	}

	path = c.recordingPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Recording{}, fmt.Errorf("rov-video: start recording: %w", err)
	}

	br, err := branch.Attach(c.backend, c.graph.Pipeline(), c.graph.Tee(pipeline.TeeRaw),
		branch.RecordingSpecs(c.graph.Codec(), path))
	if err != nil {
		slog.Error("rov-video: failed to attach recording", "path", path, "error", err)
		c.notifier.Notify(notify.Event{Kind: notify.KindError, Message: err.Error()})
		return Recording{}, err
	}

	session := Recording{ID: uuid.NewString(), Path: path, StartedAt: time.Now()}
	c.branch = br
	c.session = &session
	c.setRecording(RecordingActive)
	c.shared.Update(func(r *config.Runtime) { r.Recording = true })

	slog.Info("rov-video: recording started", "path", path, "session", session.ID, "codec", c.graph.Codec())
	c.notifier.Notify(notify.Event{
		Kind:    notify.KindRecordingChanged,
		Active:  true,
		Path:    path,
		Session: session.ID,
	})
	return session, nil
}

// stopRecording detaches the branch. With armTimer the drain is bounded by
// the drain timeout; inside StopPipeline the teardown timeout covers it.
func (c *Controller) stopRecording(armTimer bool) future.Future[RecordingResult] {
	session := *c.session
	c.setRecording(RecordingDraining)
	slog.Info("rov-video: stopping recording", "path", session.Path, "session", session.ID)

	d := branch.Detach(c.graph.Pipeline(), c.branch, c.box.post)
	c.detach = d
	if armTimer {
		c.drainTimer = time.AfterFunc(c.drainTimeout, func() {
			c.box.post(func() { c.onDrainTimeout(d) })
		})
	}

	c.recDone = future.Map(d.Done(), func(dr branch.Drain) RecordingResult {
		return c.finishRecording(session, dr)
	})
	return c.recDone
}

func (c *Controller) onDrainTimeout(d *branch.Detachment) {
	if c.detach != d || !d.Force() {
		return
	}
	c.metrics.DrainTimeouts.Inc()
	slog.Warn("rov-video: recording drain timeout, closing branch", "timeout", c.drainTimeout)
	c.notifier.Notify(notify.Event{
		Kind:    notify.KindWarning,
		Message: fmt.Sprintf("Recording did not finish within %s; the file may be truncated", c.drainTimeout),
	})
}

func (c *Controller) finishRecording(session Recording, dr branch.Drain) RecordingResult {
	if c.drainTimer != nil {
		c.drainTimer.Stop()
		c.drainTimer = nil
	}
	c.branch, c.session, c.detach = nil, nil, nil
	c.setRecording(RecordingOff)
	c.shared.Update(func(r *config.Runtime) { r.Recording = false })

	res := RecordingResult{
		Recording: session,
		Duration:  time.Since(session.StartedAt),
		Forced:    dr.Forced,
		Err:       dr.Err,
	}
	if fi, err := os.Stat(session.Path); err == nil {
		res.Bytes = fi.Size()
	}
	c.metrics.RecordingFinished(res.Bytes)

	slog.Info("rov-video: recording stopped",
		"path", session.Path,
		"session", session.ID,
		"duration", res.Duration,
		"size", humanize.Bytes(uint64(res.Bytes)),
		"forced", res.Forced,
	)
	c.notifier.Notify(notify.Event{
		Kind:    notify.KindRecordingChanged,
		Active:  false,
		Path:    session.Path,
		Session: session.ID,
	})
	return res
}

// recordingPath resolves path against the recordings directory. An empty
// path gets a timestamped name.
func (c *Controller) recordingPath(path string) string {
	if path == "" {
		path = fmt.Sprintf("rov-%s.mkv", time.Now().Format("20060102-150405"))
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.cfg.Recording.Dir, path)
}
