package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// PostProcessAlgorithms are the post-process names accepted in the stream
// config. "none" leaves frames untouched.
var PostProcessAlgorithms = []string{"none", "color", "clahe"}

// Validate checks the configuration and fills in defaults
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		cfg.InstanceID = "rov"
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	switch cfg.Backend {
	case "":
		cfg.Backend = "gstreamer"
	case "gstreamer", "memgraph":
	default:
		return fmt.Errorf("backend must be 'gstreamer' or 'memgraph', got '%s'", cfg.Backend)
	}

	switch strings.ToLower(cfg.LogLevel) {
	case "":
		cfg.LogLevel = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn or error, got '%s'", cfg.LogLevel)
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return fmt.Errorf("log_format must be 'text' or 'json', got '%s'", cfg.LogFormat)
	}

	if err := ValidatePostProcess(cfg.Stream.PostProcess); err != nil {
		return err
	}
	if cfg.Stream.PostProcess == "" {
		cfg.Stream.PostProcess = "none"
	}

	if cfg.Teardown.TimeoutS < 0 || cfg.Teardown.DrainTimeoutS < 0 {
		return fmt.Errorf("teardown timeouts must be >= 0")
	}
	if cfg.Teardown.TimeoutS == 0 {
		cfg.Teardown.TimeoutS = 10
	}
	if cfg.Teardown.DrainTimeoutS == 0 {
		cfg.Teardown.DrainTimeoutS = cfg.Teardown.TimeoutS
	}

	if cfg.Display.BufferFrames <= 0 {
		cfg.Display.BufferFrames = 5 // default
	}

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = fmt.Sprintf("rov-video-%s", cfg.InstanceID)
	}
	if cfg.MQTT.Topics.Control == "" {
		cfg.MQTT.Topics.Control = fmt.Sprintf("rov/control/%s", cfg.InstanceID)
	}
	if cfg.MQTT.Topics.Events == "" {
		cfg.MQTT.Topics.Events = fmt.Sprintf("rov/events/%s", cfg.InstanceID)
	}
	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}

	return nil
}

// ValidatePostProcess checks a post-process name. Empty means "none".
func ValidatePostProcess(name string) error {
	if name == "" || slices.Contains(PostProcessAlgorithms, name) {
		return nil
	}
	return fmt.Errorf("stream.post_process: unknown algorithm '%s' (must be one of %s)",
		name, strings.Join(PostProcessAlgorithms, ", "))
}
