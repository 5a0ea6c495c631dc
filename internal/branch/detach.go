package branch

import (
	"log/slog"

	"github.com/e7canasta/rov-video/internal/future"
	"github.com/e7canasta/rov-video/internal/media"
)

// Drain is the outcome of a detach.
type Drain struct {
	// Forced is set when the end-of-stream never reached the end of the
	// branch and the detach was completed by Force.
	Forced bool
	// Err aggregates failures while removing the elements.
	Err error
}

// Detachment tracks an in-flight detach.
type Detachment struct {
	drained *future.Promise[bool]
	done    future.Future[Drain]
}

// Done resolves after the elements were removed and set to null.
func (d *Detachment) Done() future.Future[Drain] { return d.done }

// Force completes the detach without waiting for the drain. It reports
// whether it won against the end-of-stream probe.
func (d *Detachment) Force() bool {
	return d.drained.Success(true) == nil
}

// Detach unlinks br from its tee, releases the tee pad and pushes an
// end-of-stream into the branch. Once the end-of-stream reaches the input of
// the last element (or Force is called) the elements are removed from p and
// set to null. Continuations run through exec.
func Detach(p media.Pipeline, br *Branch, exec future.Executor) *Detachment {
	drained, f := future.New[bool](exec)
	d := &Detachment{drained: drained}

	first := br.elements[0].StaticPad("sink")
	last := br.elements[len(br.elements)-1].StaticPad("sink")

	if err := br.teePad.Unlink(first); err != nil {
		slog.Warn("branch: unlink from tee failed", "pad", br.teePad.Name(), "error", err)
	}
	if err := br.tee.ReleasePad(br.teePad); err != nil {
		slog.Warn("branch: release tee pad failed", "pad", br.teePad.Name(), "error", err)
	}
	br.teePad = nil

	last.AddEventProbe(func(ev media.Event) media.ProbeReturn {
		if ev.Type != media.EventEOS {
			return media.ProbePass
		}
		_ = drained.Success(false)
		return media.ProbeRemove
	})

	d.done = future.Map(f, func(forced bool) Drain {
		if forced {
			slog.Warn("branch: drain forced, output may be truncated", "tee", br.tee.Name())
		}
		err := br.teardown(p)
		if err != nil {
			slog.Error("branch: teardown failed", "error", err)
		} else {
			slog.Info("branch: detached", "tee", br.tee.Name(), "forced", forced)
		}
		return Drain{Forced: forced, Err: err}
	})

	if !first.SendEvent(media.EOS()) {
		slog.Warn("branch: end-of-stream refused by branch input", "pad", first.Name())
	}
	return d
}
