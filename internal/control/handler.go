// Package control is the MQTT command ingress of the video console. Commands
// arrive as JSON on the control topic and are answered on
// <events topic>/response.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/e7canasta/rov-video/internal/config"
)

// Command represents a control plane command
type Command struct {
	Command string                 `json:"command"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Response represents a command response
type Response struct {
	CommandAck string                 `json:"command_ack"`
	Status     string                 `json:"status"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Timestamp  string                 `json:"timestamp"`
}

// CommandCallbacks contains callback functions for commands. A nil callback
// answers "<command> not implemented".
type CommandCallbacks struct {
	OnGetStatus      func() map[string]interface{}
	OnStartPipeline  func() error
	OnStopPipeline   func() error
	OnStartRecording func(path string) (string, error)
	OnStopRecording  func() error
	OnRequestFrame   func() error
	OnSetPostProcess func(name string) error
	OnSetStreamURL   func(url string) error
	OnSaveScreenshot func(path string) (string, error)
}

// Handler handles control plane commands
type Handler struct {
	cfg       config.MQTTConfig
	client    mqtt.Client
	commands  chan Command
	callbacks CommandCallbacks
	now       func() time.Time
}

// NewHandler creates a new control plane handler
func NewHandler(cfg config.MQTTConfig, client mqtt.Client, callbacks CommandCallbacks) *Handler {
	return &Handler{
		cfg:       cfg,
		client:    client,
		commands:  make(chan Command, 10),
		callbacks: callbacks,
		now:       time.Now,
	}
}

// Run subscribes to the control topic and processes commands until ctx is
// done.
func (h *Handler) Run(ctx context.Context) error {
	topic := h.cfg.Topics.Control
	slog.Info("control: subscribing to control plane", "topic", topic, "qos", h.cfg.QoS)

	token := h.client.Subscribe(topic, h.cfg.QoS, h.messageHandler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("control plane subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control plane subscription failed: %w", err)
	}
	slog.Info("control: handler started")

	h.processCommands(ctx)

	if h.client.IsConnected() {
		h.client.Unsubscribe(topic).WaitTimeout(2 * time.Second)
	}
	slog.Info("control: handler stopped")
	return nil
}

// messageHandler is called when a control message is received
func (h *Handler) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		slog.Error("control: failed to parse command", "error", err)
		h.sendResponse(Response{
			CommandAck: "unknown",
			Status:     "error",
			Error:      "invalid JSON",
		})
		return
	}

	slog.Info("control: command received", "command", cmd.Command)

	select {
	case h.commands <- cmd:
	default:
		slog.Warn("control: command queue full, dropping command", "command", cmd.Command)
	}
}

func (h *Handler) processCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-h.commands:
			h.sendResponse(h.handleCommand(cmd))
		}
	}
}

// handleCommand executes a command
func (h *Handler) handleCommand(cmd Command) Response {
	resp := Response{CommandAck: cmd.Command}

	fail := func(err error) Response {
		resp.Status = "error"
		resp.Error = err.Error()
		return resp
	}
	notImplemented := func() Response {
		return fail(fmt.Errorf("%s not implemented", cmd.Command))
	}
	ok := func(data map[string]interface{}) Response {
		resp.Status = "success"
		resp.Data = data
		return resp
	}

	switch cmd.Command {
	case "get_status":
		if h.callbacks.OnGetStatus == nil {
			return notImplemented()
		}
		return ok(h.callbacks.OnGetStatus())

	case "start_pipeline":
		if h.callbacks.OnStartPipeline == nil {
			return notImplemented()
		}
		if err := h.callbacks.OnStartPipeline(); err != nil {
			return fail(err)
		}
		return ok(map[string]interface{}{"pipeline_running": true})

	case "stop_pipeline":
		if h.callbacks.OnStopPipeline == nil {
			return notImplemented()
		}
		if err := h.callbacks.OnStopPipeline(); err != nil {
			return fail(err)
		}
		return ok(map[string]interface{}{"message": "pipeline stopping"})

	case "start_recording":
		if h.callbacks.OnStartRecording == nil {
			return notImplemented()
		}
		path, _ := cmd.Params["path"].(string)
		written, err := h.callbacks.OnStartRecording(path)
		if err != nil {
			return fail(err)
		}
		return ok(map[string]interface{}{"recording": true, "path": written})

	case "stop_recording":
		if h.callbacks.OnStopRecording == nil {
			return notImplemented()
		}
		if err := h.callbacks.OnStopRecording(); err != nil {
			return fail(err)
		}
		return ok(map[string]interface{}{"message": "recording draining"})

	case "request_frame":
		if h.callbacks.OnRequestFrame == nil {
			return notImplemented()
		}
		if err := h.callbacks.OnRequestFrame(); err != nil {
			return fail(err)
		}
		return ok(nil)

	case "set_post_process":
		if h.callbacks.OnSetPostProcess == nil {
			return notImplemented()
		}
		name, valid := cmd.Params["algorithm"].(string)
		if !valid {
			return fail(fmt.Errorf("missing or invalid 'algorithm' parameter (expected string)"))
		}
		if err := h.callbacks.OnSetPostProcess(name); err != nil {
			return fail(err)
		}
		return ok(map[string]interface{}{"post_process": name})

	case "set_stream_url":
		if h.callbacks.OnSetStreamURL == nil {
			return notImplemented()
		}
		url, valid := cmd.Params["url"].(string)
		if !valid || url == "" {
			return fail(fmt.Errorf("missing or invalid 'url' parameter (expected string)"))
		}
		if err := h.callbacks.OnSetStreamURL(url); err != nil {
			return fail(err)
		}
		return ok(map[string]interface{}{"message": "stream url updated (restart pipeline to apply)"})

	case "save_screenshot":
		if h.callbacks.OnSaveScreenshot == nil {
			return notImplemented()
		}
		path, _ := cmd.Params["path"].(string)
		written, err := h.callbacks.OnSaveScreenshot(path)
		if err != nil {
			return fail(err)
		}
		return ok(map[string]interface{}{"path": written})

	default:
		return fail(fmt.Errorf("unknown command: %s", cmd.Command))
	}
}

func (h *Handler) sendResponse(resp Response) {
	resp.Timestamp = h.now().UTC().Format(time.RFC3339Nano)

	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("control: failed to marshal response", "error", err)
		return
	}

	topic := h.cfg.Topics.Events + "/response"
	token := h.client.Publish(topic, h.cfg.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		slog.Error("control: response publish timeout")
		return
	}
	if err := token.Error(); err != nil {
		slog.Error("control: failed to publish response", "error", err)
		return
	}

	slog.Debug("control: response sent", "command_ack", resp.CommandAck, "status", resp.Status)
}
