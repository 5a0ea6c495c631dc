package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	rovvideo "github.com/e7canasta/rov-video"
	"github.com/e7canasta/rov-video/internal/config"
	"github.com/e7canasta/rov-video/internal/control"
	"github.com/e7canasta/rov-video/internal/frame"
	"github.com/e7canasta/rov-video/internal/framebus"
	"github.com/e7canasta/rov-video/internal/framestats"
	"github.com/e7canasta/rov-video/internal/future"
	"github.com/e7canasta/rov-video/internal/metrics"
	"github.com/e7canasta/rov-video/internal/notify"
)

type runOptions struct {
	autostart     bool
	record        string
	statsInterval time.Duration
}

func newRunCommand(cfg func() *config.Config) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the video core headless until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg(), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.autostart, "autostart", false, "start the pipeline on launch")
	cmd.Flags().StringVar(&opts.record, "record", "", "start recording to this path on launch (implies --autostart)")
	cmd.Flags().DurationVar(&opts.statsInterval, "stats-interval", 10*time.Second, "interval between stats reports (0 disables)")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, opts runOptions) error {
	slog.Info("rov-video: starting",
		"version", version,
		"instance_id", cfg.InstanceID,
		"backend", cfg.Backend,
		"mqtt", cfg.MQTT.Broker != "",
		"metrics", cfg.Metrics.Addr,
	)

	m := metrics.New()
	hub := notify.NewHub()
	notifiers := notify.Multi{hub}

	var client mqtt.Client
	if cfg.MQTT.Broker != "" {
		var err error
		client, err = control.Connect(ctx, cfg.MQTT)
		if err != nil {
			return err
		}
		defer client.Disconnect(250)
		notifiers = append(notifiers, notify.NewMQTTPublisher(client, cfg.MQTT.Topics.Events, cfg.MQTT.QoS))
	}

	display := framebus.New()
	defer display.Close()

	ctl, err := rovvideo.New(rovvideo.Options{
		Backend:  newBackend(cfg.Backend),
		Config:   cfg,
		Display:  display,
		Notifier: notifiers,
		Metrics:  m,
	})
	if err != nil {
		return err
	}

	// The control loop outlives the signal context so the pipeline can be
	// stopped gracefully first.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ctl.Run(loopCtx)
	})

	g.Go(func() error {
		<-ctx.Done()
		defer stopLoop()
		gracefulStop(ctl, cfg.Teardown.Timeout())
		return nil
	})

	if client != nil {
		handler := control.NewHandler(cfg.MQTT, client, commandCallbacks(ctx, ctl))
		g.Go(func() error {
			return handler.Run(ctx)
		})
	}

	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			slog.Info("rov-video: metrics server listening", "addr", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		logNotifications(ctx, hub)
		return nil
	})

	frames := make(chan frame.Frame, cfg.Display.BufferFrames)
	if err := display.Subscribe("headless", frames); err != nil {
		return err
	}
	g.Go(func() error {
		consumeDisplay(ctx, ctl, frames, opts.statsInterval)
		return nil
	})

	if opts.autostart || opts.record != "" {
		g.Go(func() error {
			autostart(ctx, ctl, opts.record)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("rov-video: exited with error", "error", err)
		return err
	}
	slog.Info("rov-video: stopped")
	return nil
}

func autostart(ctx context.Context, ctl *rovvideo.Controller, record string) {
	if err := ctl.StartPipeline(ctx); err != nil {
		slog.Error("rov-video: autostart failed", "error", err)
		return
	}
	if record == "" {
		return
	}
	if _, err := ctl.StartRecording(ctx, record); err != nil {
		slog.Error("rov-video: autostart recording failed", "error", err)
	}
}

// gracefulStop drains the pipeline (and any recording) before the control
// loop exits.
func gracefulStop(ctl *rovvideo.Controller, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout+2*time.Second)
	defer cancel()

	done, err := ctl.StopPipeline(ctx)
	if err != nil {
		if !errors.Is(err, rovvideo.ErrPrecondition) {
			slog.Warn("rov-video: graceful stop failed", "error", err)
		}
		return
	}
	stopped, err := future.Await(ctx, done)
	if err != nil {
		slog.Warn("rov-video: graceful stop did not complete", "error", err)
		return
	}
	slog.Info("rov-video: pipeline drained", "forced", stopped.Forced, "duration", stopped.Duration)
}

func logNotifications(ctx context.Context, hub *notify.Hub) {
	events, cancel := hub.Subscribe(32)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			switch ev.Kind {
			case notify.KindError:
				slog.Error("rov-video: notification", "kind", ev.Kind, "message", ev.Message, "category", ev.Category)
			case notify.KindWarning:
				slog.Warn("rov-video: notification", "kind", ev.Kind, "message", ev.Message)
			default:
				slog.Info("rov-video: notification", "kind", ev.Kind, "active", ev.Active, "path", ev.Path)
			}
		}
	}
}

// consumeDisplay stands in for the UI: it drains the display channel and
// periodically reports delivery statistics.
func consumeDisplay(ctx context.Context, ctl *rovvideo.Controller, frames <-chan frame.Frame, interval time.Duration) {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	window := framestats.NewWindow(framestats.DefaultWindow)
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-frames:
			window.Add(f.Timestamp)
		case now := <-tick:
			st, err := ctl.Stats(ctx)
			if err != nil {
				continue
			}
			delivered := window.Stats(now)
			slog.Info("rov-video: stats",
				"pipeline", st.Pipeline,
				"recording", st.Recording,
				"forwarded", st.Frames.Forwarded,
				"not_negotiated", st.Frames.NotNegotiated,
				"errors", st.Frames.Errors,
				"resolution", fmt.Sprintf("%dx%d", st.Frames.Width, st.Frames.Height),
				"fps_extracted", fmt.Sprintf("%.2f", st.Frames.Delivery.FPSMean),
				"fps_displayed", fmt.Sprintf("%.2f", delivered.FPSMean),
				"display_drop_rate", fmt.Sprintf("%.1f%%", st.Display.DropRate()),
				"post_process", st.PostProcess,
			)
		}
	}
}

func commandCallbacks(ctx context.Context, ctl *rovvideo.Controller) control.CommandCallbacks {
	return control.CommandCallbacks{
		OnGetStatus: func() map[string]interface{} {
			st, err := ctl.Stats(ctx)
			if err != nil {
				return map[string]interface{}{"error": err.Error()}
			}
			status := map[string]interface{}{
				"pipeline":     st.Pipeline.String(),
				"recording":    st.Recording.String(),
				"backend":      st.Backend,
				"stream_url":   st.StreamURL,
				"post_process": st.PostProcess,
				"uptime_s":     st.Uptime.Seconds(),
				"forwarded":    st.Frames.Forwarded,
				"width":        st.Frames.Width,
				"height":       st.Frames.Height,
				"fps":          st.Frames.Delivery.FPSMean,
			}
			if st.Session != nil {
				status["recording_path"] = st.Session.Path
				status["recording_id"] = st.Session.ID
			}
			return status
		},
		OnStartPipeline: func() error {
			return ctl.StartPipeline(ctx)
		},
		OnStopPipeline: func() error {
			_, err := ctl.StopPipeline(ctx)
			return err
		},
		OnStartRecording: func(path string) (string, error) {
			rec, err := ctl.StartRecording(ctx, path)
			return rec.Path, err
		},
		OnStopRecording: func() error {
			_, err := ctl.StopRecording(ctx)
			return err
		},
		OnRequestFrame: func() error {
			return ctl.RequestFrame(ctx)
		},
		OnSetPostProcess: func(name string) error {
			rt := ctl.RuntimeConfig()
			rt.PostProcess = name
			return ctl.UpdateConfig(ctx, rt)
		},
		OnSetStreamURL: func(url string) error {
			rt := ctl.RuntimeConfig()
			rt.StreamURL = url
			return ctl.UpdateConfig(ctx, rt)
		},
		OnSaveScreenshot: func(path string) (string, error) {
			return ctl.SaveScreenshot(ctx, path)
		},
	}
}
