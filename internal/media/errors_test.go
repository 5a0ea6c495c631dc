package media

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		message string
		debug   string
		want    ErrorCategory
	}{
		{"auth_401", "Unauthorized", "rtspsrc: 401", ErrCategoryAuth},
		{"network_timeout", "Could not open resource for reading", "tcp connection timeout", ErrCategoryNetwork},
		{"codec_not_negotiated", "Internal data stream error", "streaming stopped, reason not-negotiated (caps mismatch)", ErrCategoryCodec},
		{"storage_disk_full", "Error while writing to file", "No space left on device", ErrCategoryStorage},
		{"unknown", "something odd", "", ErrCategoryUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.message, tc.debug); got != tc.want {
				t.Errorf("Classify(%q, %q) = %s, want %s", tc.message, tc.debug, got, tc.want)
			}
		})
	}
}

func TestErrorCategory_String(t *testing.T) {
	for cat, want := range map[ErrorCategory]string{
		ErrCategoryNetwork: "network",
		ErrCategoryCodec:   "codec",
		ErrCategoryAuth:    "auth",
		ErrCategoryStorage: "storage",
		ErrCategoryUnknown: "unknown",
	} {
		if got := cat.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", cat, got, want)
		}
	}
}
