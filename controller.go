package rovvideo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/e7canasta/rov-video/internal/branch"
	"github.com/e7canasta/rov-video/internal/config"
	"github.com/e7canasta/rov-video/internal/framebus"
	"github.com/e7canasta/rov-video/internal/framesink"
	"github.com/e7canasta/rov-video/internal/future"
	"github.com/e7canasta/rov-video/internal/media"
	"github.com/e7canasta/rov-video/internal/metrics"
	"github.com/e7canasta/rov-video/internal/notify"
	"github.com/e7canasta/rov-video/internal/pipeline"
	"github.com/e7canasta/rov-video/internal/snapshot"
)

// Options configure a Controller.
type Options struct {
	// Backend creates the media graph (required)
	Backend media.Backend
	// Config provides the stream, recording and teardown settings.
	// Defaults to config.Default().
	Config *config.Config
	// Display receives every extracted frame. A new bus is created if nil.
	Display *framebus.Bus
	// Notifier receives user-visible notifications. Defaults to notify.Discard.
	Notifier notify.Notifier
	// Metrics receives counters and gauges. A private set is created if nil.
	Metrics *metrics.Metrics

	// TeardownTimeout overrides Config.Teardown.Timeout() when > 0
	TeardownTimeout time.Duration
	// DrainTimeout overrides Config.Teardown.DrainTimeout() when > 0
	DrainTimeout time.Duration
}

// Controller is the state controller of the video core. All state below the
// "loop" marker is owned by the control loop goroutine (Run).
type Controller struct {
	backend  media.Backend
	cfg      *config.Config
	shared   *config.Shared
	display  *framebus.Bus
	notifier notify.Notifier
	metrics  *metrics.Metrics
	sink     *framesink.Sink

	teardownTimeout time.Duration
	drainTimeout    time.Duration

	box     *mailbox
	running atomic.Bool
	done    chan struct{}

	// loop
	state      PipelineState
	rec        RecordingState
	graph      *pipeline.Graph
	gen        uint64
	started    time.Time
	branch     *branch.Branch
	session    *Recording
	detach     *branch.Detachment
	recDone    future.Future[RecordingResult]
	drainTimer *time.Timer
	stop       *teardown
}

// New creates a Controller. Run must be called for commands to be served.
func New(opts Options) (*Controller, error) {
	if opts.Backend == nil {
		return nil, errors.New("rov-video: backend is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := config.ValidatePostProcess(cfg.Stream.PostProcess); err != nil {
		return nil, err
	}

	c := &Controller{
		backend:         opts.Backend,
		cfg:             cfg,
		display:         opts.Display,
		notifier:        opts.Notifier,
		metrics:         opts.Metrics,
		teardownTimeout: opts.TeardownTimeout,
		drainTimeout:    opts.DrainTimeout,
		box:             newMailbox(),
		done:            make(chan struct{}),
	}
	if c.display == nil {
		c.display = framebus.New()
	}
	if c.notifier == nil {
		c.notifier = notify.Discard
	}
	if c.metrics == nil {
		c.metrics = metrics.New()
	}
	if c.teardownTimeout <= 0 {
		c.teardownTimeout = cfg.Teardown.Timeout()
	}
	if c.drainTimeout <= 0 {
		c.drainTimeout = cfg.Teardown.DrainTimeout()
	}

	c.shared = config.NewShared(config.Runtime{
		StreamURL:   cfg.Stream.URL,
		PostProcess: cfg.Stream.PostProcess,
	})
	c.sink = framesink.New(c.shared, c.display)
	c.sink.SetObserver(c.metrics)
	return c, nil
}

// RuntimeConfig returns a snapshot of the runtime configuration.
func (c *Controller) RuntimeConfig() config.Runtime {
	return c.shared.Snapshot()
}

// Display returns the bus frames are published on.
func (c *Controller) Display() *framebus.Bus {
	return c.display
}

// Run is the control loop. It serves commands until ctx is done, then tears
// the pipeline down without waiting for end-of-stream.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("rov-video: control loop already started")
	}
	defer close(c.done)

	slog.Info("rov-video: control loop started",
		"backend", c.backend.Name(),
		"teardown_timeout", c.teardownTimeout,
		"drain_timeout", c.drainTimeout,
	)

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			slog.Info("rov-video: control loop stopped")
			return nil
		case <-c.box.signal:
			for _, fn := range c.box.drain() {
				fn()
			}
		}
	}
}

// runPending executes queued messages until the mailbox is empty.
func (c *Controller) runPending() {
	for {
		fns := c.box.drain()
		if len(fns) == 0 {
			return
		}
		for _, fn := range fns {
			fn()
		}
	}
}

// call runs fn on the control loop and waits for its result.
func (c *Controller) call(ctx context.Context, fn func() error) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	errc := make(chan error, 1)
	c.box.post(func() { errc <- fn() })

	select {
	case err := <-errc:
		return err
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) StartPipeline(ctx context.Context) error {
	return c.call(ctx, c.startPipeline)
}

func (c *Controller) StopPipeline(ctx context.Context) (future.Future[Stopped], error) {
	var f future.Future[Stopped]
	err := c.call(ctx, func() error {
		var err error
		f, err = c.stopPipeline()
		return err
	})
	return f, err
}

func (c *Controller) StartRecording(ctx context.Context, path string) (Recording, error) {
	var rec Recording
	err := c.call(ctx, func() error {
		var err error
		rec, err = c.startRecording(path)
		return err
	})
	return rec, err
}

func (c *Controller) StopRecording(ctx context.Context) (future.Future[RecordingResult], error) {
	var f future.Future[RecordingResult]
	err := c.call(ctx, func() error {
		if c.rec != RecordingActive {
			return precondition("stop recording", "recording is %s", c.rec)
		}
		f = c.stopRecording(true)
		return nil
	})
	return f, err
}

func (c *Controller) RequestFrame(ctx context.Context) error {
	return c.call(ctx, func() error {
		if c.state != PipelineRunning {
			return precondition("request frame", "pipeline is %s", c.state)
		}
		f, ok := c.display.Latest()
		if !ok {
			return ErrNoFrame
		}
		c.display.Publish(f)
		slog.Debug("rov-video: frame re-published", "seq", f.Seq)
		return nil
	})
}

func (c *Controller) UpdateConfig(ctx context.Context, rt config.Runtime) error {
	if err := config.ValidatePostProcess(rt.PostProcess); err != nil {
		return err
	}
	if rt.StreamURL != "" {
		if _, err := pipeline.ParseSource(rt.StreamURL); err != nil {
			return err
		}
	}
	return c.call(ctx, func() error {
		prev := c.shared.Snapshot()
		rt.Recording = prev.Recording
		if rt.PostProcess == "" {
			rt.PostProcess = "none"
		}
		c.shared.Replace(rt)

		if rt.StreamURL != prev.StreamURL && c.state != PipelineIdle {
			slog.Info("rov-video: stream url updated, applies on next start", "state", c.state)
		}
		if rt.PostProcess != prev.PostProcess {
			slog.Info("rov-video: post-process changed", "from", prev.PostProcess, "to", rt.PostProcess)
		}
		return nil
	})
}

// SaveScreenshot encodes outside the control loop: it only reads the latest
// display frame, which the bus guards itself.
func (c *Controller) SaveScreenshot(ctx context.Context, path string) (string, error) {
	select {
	case <-c.done:
		return "", ErrClosed
	default:
	}

	f, ok := c.display.Latest()
	if !ok {
		return "", ErrNoFrame
	}
	if path == "" {
		path = snapshot.Name("rov", f)
	}
	if !filepath.IsAbs(path) && c.cfg.Recording.Dir != "" {
		path = filepath.Join(c.cfg.Recording.Dir, path)
	}
	if err := snapshot.Save(path, f, snapshot.Options{}); err != nil {
		c.notifier.Notify(notify.Event{Kind: notify.KindError, Message: err.Error(), Category: media.ErrCategoryStorage.String()})
		return "", err
	}

	slog.Info("rov-video: screenshot saved", "path", path, "seq", f.Seq)
	c.notifier.Notify(notify.Event{Kind: notify.KindScreenshotSaved, Path: path})
	return path, nil
}

func (c *Controller) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := c.call(ctx, func() error {
		rt := c.shared.Snapshot()
		st = Stats{
			Pipeline:    c.state,
			Recording:   c.rec,
			Backend:     c.backend.Name(),
			StreamURL:   redact(rt.StreamURL),
			PostProcess: rt.PostProcess,
			Frames:      c.sink.Stats(),
			Display:     c.display.Stats(),
		}
		if c.session != nil {
			s := *c.session
			st.Session = &s
		}
		if c.state == PipelineRunning {
			st.Uptime = time.Since(c.started)
		}
		return nil
	})
	return st, err
}

func (c *Controller) startPipeline() error {
	if c.state != PipelineIdle {
		return precondition("start pipeline", "pipeline is %s", c.state)
	}
	c.setState(PipelineStarting)

	rt := c.shared.Snapshot()
	g, err := pipeline.Build(c.backend, rt.StreamURL)
	if err != nil {
		c.setState(PipelineIdle)
		slog.Error("rov-video: failed to build pipeline", "url", redact(rt.StreamURL), "error", err)
		c.notifier.Notify(notify.Event{Kind: notify.KindError, Message: err.Error()})
		return err
	}

	c.sink.Reset()
	g.AppSink().SetCallbacks(c.sink.Callbacks())

	c.gen++
	gen := c.gen
	g.Pipeline().Watch(func(msg media.Message) {
		c.box.post(func() { c.onBusMessage(gen, msg) })
	})

	if err := g.Pipeline().SetState(media.StatePlaying); err != nil {
		g.Dispose()
		c.setState(PipelineIdle)
		err = fmt.Errorf("rov-video: start pipeline: %w", err)
		slog.Error("rov-video: failed to start pipeline", "error", err)
		c.notifier.Notify(notify.Event{Kind: notify.KindError, Message: err.Error()})
		return err
	}

	c.graph = g
	c.started = time.Now()
	c.setState(PipelineRunning)

	slog.Info("rov-video: pipeline running",
		"url", g.Source().Redacted(),
		"codec", g.Codec(),
		"backend", c.backend.Name(),
	)
	c.notifier.Notify(notify.Event{Kind: notify.KindPipelineRunning, Active: true})
	return nil
}

func (c *Controller) setState(s PipelineState) {
	c.state = s
	c.metrics.SetPipelineState(int(s))
}

func (c *Controller) setRecording(s RecordingState) {
	c.rec = s
	c.metrics.SetRecording(s != RecordingOff)
}

// disposeGraph releases the pipeline. Bus messages still in flight for it
// are ignored.
func (c *Controller) disposeGraph() {
	if c.graph == nil {
		return
	}
	c.graph.Dispose()
	c.graph = nil
	c.gen++
}

// shutdown forces everything down when the control loop exits.
func (c *Controller) shutdown() {
	if c.stop != nil {
		c.stop.forced = true
	}
	if c.rec == RecordingActive {
		c.stopRecording(false)
	}
	if c.detach != nil {
		c.detach.Force()
		c.runPending()
	}

	switch {
	case c.stop != nil:
		c.finishStop(c.stop)
	case c.graph != nil:
		c.disposeGraph()
		c.setState(PipelineIdle)
		c.notifier.Notify(notify.Event{Kind: notify.KindPipelineRunning, Active: false})
	}
	c.runPending()
}

func redact(raw string) string {
	src, err := pipeline.ParseSource(raw)
	if err != nil {
		return ""
	}
	return src.Redacted()
}
