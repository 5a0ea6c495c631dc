package rovvideo

import (
	"time"

	"github.com/e7canasta/rov-video/internal/framebus"
	"github.com/e7canasta/rov-video/internal/framesink"
)

// PipelineState is the lifecycle state of the main pipeline.
type PipelineState int

const (
	PipelineIdle PipelineState = iota
	PipelineStarting
	PipelineRunning
	PipelineStopping
)

func (s PipelineState) String() string {
	switch s {
	case PipelineIdle:
		return "idle"
	case PipelineStarting:
		return "starting"
	case PipelineRunning:
		return "running"
	case PipelineStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// RecordingState is the lifecycle state of the recording branch.
type RecordingState int

const (
	RecordingOff RecordingState = iota
	RecordingActive
	RecordingDraining
)

func (s RecordingState) String() string {
	switch s {
	case RecordingOff:
		return "off"
	case RecordingActive:
		return "active"
	case RecordingDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Recording identifies one recording session.
type Recording struct {
	// ID is a random session identifier
	ID string
	// Path is the container file being written
	Path string
	// StartedAt is when the branch was attached
	StartedAt time.Time
}

// RecordingResult is the outcome of a finished recording.
type RecordingResult struct {
	Recording
	// Duration from attach to removal of the branch
	Duration time.Duration
	// Bytes written to Path
	Bytes int64
	// Forced is set when the drain timed out and the file may be truncated
	Forced bool
	// Err aggregates failures while removing the branch
	Err error
}

// Stopped is the outcome of StopPipeline.
type Stopped struct {
	// Forced is set when the teardown timeout expired
	Forced bool
	// Duration of the teardown
	Duration time.Duration
}

// Stats is a snapshot of the controller.
type Stats struct {
	Pipeline    PipelineState
	Recording   RecordingState
	Session     *Recording
	Backend     string
	StreamURL   string // credentials redacted
	PostProcess string
	Uptime      time.Duration
	Frames      framesink.Stats
	Display     framebus.Stats
}
