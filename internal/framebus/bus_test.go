package framebus

import (
	"context"
	"testing"
	"time"

	"github.com/e7canasta/rov-video/internal/frame"
)

// TestBasicPublishSubscribe verifies basic functionality.
func TestBasicPublishSubscribe(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch := make(chan frame.Frame, 10)
	if err := bus.Subscribe("display", ch); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	bus.Publish(frame.Frame{Seq: 1, Data: []byte("rgb")})

	select {
	case received := <-ch:
		if received.Seq != 1 {
			t.Errorf("Expected seq 1, got %d", received.Seq)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for frame")
	}
}

// TestNonBlockingPublish verifies Publish never blocks.
func TestNonBlockingPublish(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch := make(chan frame.Frame, 1)
	bus.Subscribe("slow", ch)

	done := make(chan bool)
	go func() {
		bus.Publish(frame.Frame{Seq: 1})
		bus.Publish(frame.Frame{Seq: 2}) // buffer full, dropped
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Publish blocked (should be non-blocking)")
	}

	if received := <-ch; received.Seq != 1 {
		t.Errorf("Expected seq 1, got %d", received.Seq)
	}

	stats := bus.Stats()
	sub := stats.Subscribers["slow"]
	if sub.Sent != 1 || sub.Dropped != 1 {
		t.Errorf("Expected 1 sent / 1 dropped, got %+v", sub)
	}
	if stats.TotalPublished != 2 {
		t.Errorf("Expected 2 published, got %d", stats.TotalPublished)
	}
	if rate := stats.DropRate(); rate != 0.5 {
		t.Errorf("Expected drop rate 0.5, got %f", rate)
	}
}

func TestSubscribeErrors(t *testing.T) {
	bus := New()

	if err := bus.Subscribe("a", nil); err != ErrNilChannel {
		t.Errorf("Expected ErrNilChannel, got %v", err)
	}
	bus.Subscribe("a", make(chan frame.Frame, 1))
	if err := bus.Subscribe("a", make(chan frame.Frame, 1)); err != ErrSubscriberExists {
		t.Errorf("Expected ErrSubscriberExists, got %v", err)
	}
	if err := bus.Unsubscribe("b"); err != ErrSubscriberNotFound {
		t.Errorf("Expected ErrSubscriberNotFound, got %v", err)
	}

	bus.Close()
	bus.Close()
	if err := bus.Subscribe("c", make(chan frame.Frame, 1)); err != ErrBusClosed {
		t.Errorf("Expected ErrBusClosed, got %v", err)
	}
	bus.Publish(frame.Frame{Seq: 1}) // no-op after close
}

func TestLatest(t *testing.T) {
	bus := New()
	defer bus.Close()

	if _, ok := bus.Latest(); ok {
		t.Fatal("Latest before any publish")
	}

	rx, err := bus.SubscribeLatest("ui")
	if err != nil {
		t.Fatalf("SubscribeLatest failed: %v", err)
	}

	for i := uint64(1); i <= 3; i++ {
		bus.Publish(frame.Frame{Seq: i})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f, ok := rx.Receive(ctx)
	if !ok || f.Seq != 3 {
		t.Fatalf("Expected latest seq 3, got %d (ok=%v)", f.Seq, ok)
	}
	if latest, _ := bus.Latest(); latest.Seq != 3 {
		t.Errorf("bus.Latest seq = %d, want 3", latest.Seq)
	}

	// Nothing newer: Receive waits until the context expires.
	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	if _, ok := rx.Receive(short); ok {
		t.Error("Receive returned a frame that was already seen")
	}
}
