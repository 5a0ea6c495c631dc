package rovvideo

import (
	"context"

	"github.com/e7canasta/rov-video/internal/config"
	"github.com/e7canasta/rov-video/internal/future"
)

// Console defines the command surface of the video core.
//
// Implementations must guarantee:
//   - Commands are serialized: the graph is never mutated by two commands at once
//   - A command issued in the wrong state fails with an error wrapping ErrPrecondition
//   - Returned futures resolve on the control loop and never hang past the
//     teardown timeout
//   - Stats() is safe to call from any goroutine
type Console interface {
	// StartPipeline builds the graph for the configured stream URL and sets
	// it playing.
	//
	// Returns an error if:
	//   - The pipeline is not Idle (ErrPrecondition)
	//   - The URL is invalid or an element capability is missing on the host
	//     ("missing element: avdec_h265"); no partial pipeline is retained
	//   - The pipeline refuses to start
	StartPipeline(ctx context.Context) error

	// StopPipeline starts the teardown and returns immediately.
	//
	// The returned future resolves once the pipeline is back to Idle. If a
	// recording is Active or Draining, its drain completes strictly before
	// the main end-of-stream is sent. If the teardown timeout expires, the
	// pipeline is forced to null and Stopped.Forced is set.
	//
	// Example:
	//   done, err := ctl.StopPipeline(ctx)
	//   if err != nil {
	//       return err // e.g. already Idle
	//   }
	//   stopped, _ := future.Await(ctx, done)
	StopPipeline(ctx context.Context) (future.Future[Stopped], error)

	// StartRecording attaches a recording branch writing a Matroska file to
	// path. Relative paths (and an empty path) are resolved in the
	// configured recordings directory.
	//
	// Requires a Running pipeline and no recording in progress.
	StartRecording(ctx context.Context, path string) (Recording, error)

	// StopRecording detaches the recording branch. The returned future
	// resolves once the branch drained and was removed, or after the drain
	// timeout with RecordingResult.Forced set. Callers that do not care about
	// completion may ignore it.
	StopRecording(ctx context.Context) (future.Future[RecordingResult], error)

	// RequestFrame re-publishes the most recent display frame.
	RequestFrame(ctx context.Context) error

	// UpdateConfig replaces the runtime configuration (stream URL and
	// post-process algorithm). The post-process applies from the next frame,
	// the stream URL from the next StartPipeline. The recording flag is owned
	// by the controller and ignored.
	UpdateConfig(ctx context.Context, rt config.Runtime) error

	// SaveScreenshot writes the most recent display frame to path and
	// returns the path written.
	SaveScreenshot(ctx context.Context, path string) (string, error)

	// Stats returns a snapshot of the controller state and counters.
	Stats(ctx context.Context) (Stats, error)
}

var _ Console = (*Controller)(nil)
