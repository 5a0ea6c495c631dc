// Package config loads the rov-video YAML configuration and holds the
// runtime record shared between the control loop and the frame callback.
package config
