package control

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/rov-video/internal/config"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic   string
	payload []byte
}

// fakeClient implements the parts of mqtt.Client the handler uses.
type fakeClient struct {
	mqtt.Client

	mu        sync.Mutex
	handler   mqtt.MessageHandler
	published chan published
}

func newFakeClient() *fakeClient {
	return &fakeClient{published: make(chan published, 16)}
}

func (c *fakeClient) IsConnected() bool { return true }

func (c *fakeClient) Subscribe(topic string, qos byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	c.handler = cb
	c.mu.Unlock()
	return doneToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) mqtt.Token { return doneToken{} }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.published <- published{topic: topic, payload: payload.([]byte)}
	return doneToken{}
}

func (c *fakeClient) deliver(payload string) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	h(c, fakeMessage{payload: []byte(payload)})
}

type fakeMessage struct {
	mqtt.Message
	payload []byte
}

func (m fakeMessage) Payload() []byte { return m.payload }

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Topics: config.MQTTTopics{Control: "rov/control/test", Events: "rov/events/test"},
	}
}

func TestHandleCommand(t *testing.T) {
	var gotPath, gotAlgorithm string
	h := NewHandler(testConfig(), newFakeClient(), CommandCallbacks{
		OnGetStatus:     func() map[string]interface{} { return map[string]interface{}{"pipeline": "idle"} },
		OnStartPipeline: func() error { return nil },
		OnStopPipeline:  func() error { return errors.New("precondition violated: pipeline is idle") },
		OnStartRecording: func(path string) (string, error) {
			gotPath = path
			return "/rec/" + path, nil
		},
		OnSetPostProcess: func(name string) error {
			gotAlgorithm = name
			return nil
		},
	})

	tests := []struct {
		name   string
		cmd    Command
		status string
		errMsg string
	}{
		{"status", Command{Command: "get_status"}, "success", ""},
		{"start", Command{Command: "start_pipeline"}, "success", ""},
		{"stop fails", Command{Command: "stop_pipeline"}, "error", "precondition violated: pipeline is idle"},
		{"record", Command{Command: "start_recording", Params: map[string]interface{}{"path": "a.mkv"}}, "success", ""},
		{"post process", Command{Command: "set_post_process", Params: map[string]interface{}{"algorithm": "clahe"}}, "success", ""},
		{"post process missing param", Command{Command: "set_post_process"}, "error", "missing or invalid 'algorithm' parameter (expected string)"},
		{"not implemented", Command{Command: "request_frame"}, "error", "request_frame not implemented"},
		{"unknown", Command{Command: "self_destruct"}, "error", "unknown command: self_destruct"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.handleCommand(tt.cmd)
			assert.Equal(t, tt.cmd.Command, resp.CommandAck)
			assert.Equal(t, tt.status, resp.Status)
			assert.Equal(t, tt.errMsg, resp.Error)
		})
	}

	assert.Equal(t, "a.mkv", gotPath)
	assert.Equal(t, "clahe", gotAlgorithm)
}

func TestRunRoundTrip(t *testing.T) {
	client := newFakeClient()
	h := NewHandler(testConfig(), client, CommandCallbacks{
		OnStartPipeline: func() error { return nil },
	})
	h.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.handler != nil
	}, time.Second, 5*time.Millisecond)

	client.deliver(`{"command":"start_pipeline"}`)
	client.deliver(`not json`)

	var got []Response
	for i := 0; i < 2; i++ {
		select {
		case p := <-client.published:
			assert.Equal(t, "rov/events/test/response", p.topic)
			var resp Response
			require.NoError(t, json.Unmarshal(p.payload, &resp))
			got = append(got, resp)
		case <-time.After(time.Second):
			t.Fatal("no response published")
		}
	}

	byAck := map[string]Response{}
	for _, r := range got {
		byAck[r.CommandAck] = r
	}
	assert.Equal(t, "success", byAck["start_pipeline"].Status)
	assert.Equal(t, "2024-01-02T03:04:05Z", byAck["start_pipeline"].Timestamp)
	assert.Equal(t, "invalid JSON", byAck["unknown"].Error)

	cancel()
	require.NoError(t, <-done)
}
