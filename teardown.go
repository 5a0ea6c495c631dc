package rovvideo

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/e7canasta/rov-video/internal/future"
	"github.com/e7canasta/rov-video/internal/media"
	"github.com/e7canasta/rov-video/internal/notify"
)

// teardown tracks one StopPipeline.
type teardown struct {
	promise *future.Promise[Stopped]
	started time.Time
	timer   *time.Timer

	// forced is set once the timeout expired; the end-of-stream wait is
	// skipped from then on.
	forced bool
	done   bool
}

// stopPipeline drains an active recording, then the main graph:
//
//	recording drained ──> main end-of-stream at the display sink ──> Idle
//
// Both steps are chained futures resolved on the control loop, and the
// whole sequence is bounded by the teardown timeout.
func (c *Controller) stopPipeline() (future.Future[Stopped], error) {
	if c.state != PipelineRunning {
		return future.Future[Stopped]{}, precondition("stop pipeline", "pipeline is %s", c.state)
	}
	c.setState(PipelineStopping)

	p, f := future.New[Stopped](future.Inline)
	td := &teardown{promise: p, started: time.Now()}
	c.stop = td
	td.timer = time.AfterFunc(c.teardownTimeout, func() {
		c.box.post(func() { c.onTeardownTimeout(td) })
	})

	slog.Info("rov-video: stopping pipeline", "recording", c.rec, "timeout", c.teardownTimeout)

	recording := c.recordingDrained()
	mainEOS := future.FlatMap(recording, func(struct{}) future.Future[struct{}] {
		return c.sendMainEOS(td)
	})
	future.Sequence([]future.Future[struct{}]{recording, mainEOS}).ForEach(func([]struct{}) {
		c.finishStop(td)
	})
	return f, nil
}

// recordingDrained returns a future resolved once no recording branch is
// left in the graph. A branch already draining from StopRecording is waited
// for under the teardown timeout instead of its own drain timeout.
func (c *Controller) recordingDrained() future.Future[struct{}] {
	switch c.rec {
	case RecordingActive:
		return future.Map(c.stopRecording(false), func(RecordingResult) struct{} { return struct{}{} })
	case RecordingDraining:
		if c.drainTimer != nil {
			c.drainTimer.Stop()
			c.drainTimer = nil
		}
		return future.Map(c.recDone, func(RecordingResult) struct{} { return struct{}{} })
	default:
		return future.Resolved(struct{}{})
	}
}

// sendMainEOS pushes end-of-stream through the graph and resolves once it
// reaches the display sink.
func (c *Controller) sendMainEOS(td *teardown) future.Future[struct{}] {
	if td.forced || td.done || c.graph == nil {
		return future.Resolved(struct{}{})
	}

	pad := c.graph.AppSink().StaticPad("sink")
	if pad == nil {
		slog.Warn("rov-video: display sink has no sink pad, skipping end-of-stream wait")
		return future.Resolved(struct{}{})
	}

	p, f := future.New[struct{}](c.box.post)
	pad.AddEventProbe(func(ev media.Event) media.ProbeReturn {
		if ev.Type != media.EventEOS {
			return media.ProbePass
		}
		_ = p.Success(struct{}{})
		return media.ProbeRemove
	})

	if !c.graph.Pipeline().SendEvent(media.EOS()) {
		slog.Warn("rov-video: pipeline refused end-of-stream, waiting for teardown timeout")
	} else {
		slog.Debug("rov-video: end-of-stream sent to pipeline")
	}
	return f
}

// onTeardownTimeout forces the stop. When a recording is still draining, the
// branch is removed first and the chain completes the stop; otherwise the
// pipeline is nulled right away.
func (c *Controller) onTeardownTimeout(td *teardown) {
	if td.done {
		return
	}
	td.forced = true
	c.metrics.TeardownTimeouts.Inc()

	msg := fmt.Sprintf("Pipeline did not stop within %s; forced to stop", c.teardownTimeout)
	slog.Warn("rov-video: teardown timeout, forcing pipeline to null",
		"timeout", c.teardownTimeout,
		"recording", c.rec,
	)
	c.notifier.Notify(notify.Event{Kind: notify.KindWarning, Message: msg})

	if c.detach != nil {
		c.detach.Force()
		return
	}
	c.finishStop(td)
}

func (c *Controller) finishStop(td *teardown) {
	if td.done {
		return
	}
	td.done = true
	td.timer.Stop()

	if c.branch != nil {
		// Only reachable on shutdown with a branch that could not be detached.
		c.branch, c.session, c.detach = nil, nil, nil
		c.setRecording(RecordingOff)
	}
	c.disposeGraph()
	c.setState(PipelineIdle)
	if c.stop == td {
		c.stop = nil
	}

	result := Stopped{Forced: td.forced, Duration: time.Since(td.started)}
	slog.Info("rov-video: pipeline stopped", "forced", result.Forced, "duration", result.Duration)
	c.notifier.Notify(notify.Event{Kind: notify.KindPipelineRunning, Active: false})
	_ = td.promise.Success(result)
}
