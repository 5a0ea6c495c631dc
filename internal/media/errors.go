package media

import (
	"errors"
	"strings"
)

var (
	// ErrMissingElement is returned when a factory is not available on the host.
	ErrMissingElement = errors.New("missing element")
	// ErrLinkFailed is returned when two elements or pads cannot be linked.
	ErrLinkFailed = errors.New("link failed")
	// ErrNoPad is returned when an expected pad does not exist.
	ErrNoPad = errors.New("no such pad")
)

// ErrorCategory represents the classification of bus errors for telemetry
type ErrorCategory int

const (
	// ErrCategoryNetwork indicates network-related failures (connection, timeout, DNS)
	ErrCategoryNetwork ErrorCategory = iota
	// ErrCategoryCodec indicates codec/stream failures (decode errors, format issues)
	ErrCategoryCodec
	// ErrCategoryAuth indicates authentication/authorization failures
	ErrCategoryAuth
	// ErrCategoryStorage indicates recording output failures (disk full, permissions)
	ErrCategoryStorage
	// ErrCategoryUnknown indicates unclassified errors
	ErrCategoryUnknown
)

// String returns a human-readable string representation of the error category
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryNetwork:
		return "network"
	case ErrCategoryCodec:
		return "codec"
	case ErrCategoryAuth:
		return "auth"
	case ErrCategoryStorage:
		return "storage"
	default:
		return "unknown"
	}
}

var (
	authKeywords = []string{
		"unauthorized", "401", "403", "forbidden", "authentication",
		"credentials", "password", "username",
	}
	storageKeywords = []string{
		"no space left", "could not open file", "permission denied",
		"read-only file system", "could not write",
	}
	codecKeywords = []string{
		"codec", "decode", "encode", "format", "negotiation", "caps",
		"h264", "h265", "not negotiated", "no decoder", "missing plugin",
	}
	networkKeywords = []string{
		"connection", "timeout", "unreachable", "network", "dns", "resolve",
		"socket", "tcp", "udp", "rtsp", "not found", "could not connect",
		"failed to connect",
	}
)

// Classify categorizes a bus error from its message and debug string.
//
// Priority: auth, storage, codec, network. Storage comes before codec and
// network so that a filesink failure during recording is not reported as a
// stream problem.
func Classify(message, debug string) ErrorCategory {
	combined := strings.ToLower(message + " " + debug)
	switch {
	case containsAny(combined, authKeywords):
		return ErrCategoryAuth
	case containsAny(combined, storageKeywords):
		return ErrCategoryStorage
	case containsAny(combined, codecKeywords):
		return ErrCategoryCodec
	case containsAny(combined, networkKeywords):
		return ErrCategoryNetwork
	default:
		return ErrCategoryUnknown
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
