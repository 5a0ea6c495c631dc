package rovvideo

import (
	"log/slog"

	"github.com/e7canasta/rov-video/internal/media"
	"github.com/e7canasta/rov-video/internal/notify"
)

// onBusMessage handles a message of pipeline generation gen. Messages of a
// pipeline that was already disposed are dropped. Errors are surfaced, not
// recovered from: reconnection is left to the operator.
func (c *Controller) onBusMessage(gen uint64, msg media.Message) {
	if gen != c.gen {
		return
	}

	switch msg.Type {
	case media.MessageError:
		text := "unknown error"
		if msg.Err != nil {
			text = msg.Err.Error()
		}
		category := media.Classify(text, msg.Debug)
		c.metrics.BusError(category.String())

		slog.Error("rov-video: pipeline error",
			"source", msg.Source,
			"error", text,
			"debug", msg.Debug,
			"category", category.String(),
			"state", c.state,
			"recording", c.rec,
		)
		c.notifier.Notify(notify.Event{
			Kind:     notify.KindError,
			Message:  text,
			Category: category.String(),
		})

	case media.MessageWarning:
		slog.Warn("rov-video: pipeline warning", "source", msg.Source, "error", msg.Err, "debug", msg.Debug)

	case media.MessageEOS:
		slog.Debug("rov-video: end of stream reached the display", "state", c.state)

	case media.MessageStateChanged:
		slog.Debug("rov-video: pipeline state changed", "to", msg.State)
	}
}
