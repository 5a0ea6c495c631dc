package rovvideo

import (
	"errors"
	"fmt"
)

var (
	// ErrPrecondition is wrapped by every error returned for a command issued
	// in the wrong state, e.g. StopPipeline while Idle. It signals a caller
	// defect and is not worth retrying.
	ErrPrecondition = errors.New("precondition violated")
	// ErrClosed is returned once the control loop has exited.
	ErrClosed = errors.New("rov-video: controller is not running")
	// ErrNoFrame is returned when no frame has reached the display yet.
	ErrNoFrame = errors.New("rov-video: no frame available")
)

func precondition(op, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrPrecondition, op, fmt.Sprintf(format, args...))
}
