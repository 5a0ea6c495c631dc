package notify

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"
)

// MQTTPublisher publishes notifications, msgpack encoded, to
// <topic>/<kind>.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
	qos    byte

	published atomic.Uint64
	errors    atomic.Uint64
}

// NewMQTTPublisher publishes through an already connected client.
func NewMQTTPublisher(client mqtt.Client, topic string, qos byte) *MQTTPublisher {
	return &MQTTPublisher{client: client, topic: topic, qos: qos}
}

// Encode returns the wire payload of ev.
func Encode(ev Event) ([]byte, error) {
	return msgpack.Marshal(ev)
}

// Decode parses a wire payload.
func Decode(payload []byte) (Event, error) {
	var ev Event
	err := msgpack.Unmarshal(payload, &ev)
	return ev, err
}

// Notify publishes ev asynchronously. Failures are logged and counted.
func (p *MQTTPublisher) Notify(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	payload, err := Encode(ev)
	if err != nil {
		p.errors.Add(1)
		slog.Error("notify: failed to encode notification", "kind", ev.Kind, "error", err)
		return
	}
	if !p.client.IsConnected() {
		p.errors.Add(1)
		slog.Debug("notify: mqtt not connected, notification dropped", "kind", ev.Kind)
		return
	}

	topic := fmt.Sprintf("%s/%s", p.topic, ev.Kind)
	token := p.client.Publish(topic, p.qos, false, payload)
	go func() {
		if !token.WaitTimeout(2 * time.Second) {
			p.errors.Add(1)
			slog.Warn("notify: publish timeout", "topic", topic)
			return
		}
		if err := token.Error(); err != nil {
			p.errors.Add(1)
			slog.Warn("notify: publish failed", "topic", topic, "error", err)
			return
		}
		p.published.Add(1)
		slog.Debug("notify: notification published", "topic", topic, "size", len(payload))
	}()
}

// Stats returns the published and failed counters.
func (p *MQTTPublisher) Stats() (published, errors uint64) {
	return p.published.Load(), p.errors.Load()
}
