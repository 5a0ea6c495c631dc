package gstgraph

import (
	"testing"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/rov-video/internal/media"
)

func TestFromGstCaps(t *testing.T) {
	New()

	tests := []struct {
		caps string
		want media.Caps
	}{
		{
			caps: "video/x-raw,format=RGB,width=1920,height=1080",
			want: media.Caps{Name: "video/x-raw", Format: "RGB", Width: 1920, Height: 1080},
		},
		{
			caps: "application/x-rtp,media=video,encoding-name=H265",
			want: media.Caps{Name: "application/x-rtp", Media: "video"},
		},
		{
			caps: "application/x-rtp,media=audio",
			want: media.Caps{Name: "application/x-rtp", Media: "audio"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.caps, func(t *testing.T) {
			got := fromGstCaps(gst.NewCapsFromString(tt.caps))
			if got != tt.want {
				t.Errorf("fromGstCaps(%q) = %+v, want %+v", tt.caps, got, tt.want)
			}
		})
	}
}

func TestStateRoundTrip(t *testing.T) {
	for _, s := range []media.State{media.StateNull, media.StateReady, media.StatePaused, media.StatePlaying} {
		if got := fromGstState(toGstState(s)); got != s {
			t.Errorf("state %v round-tripped to %v", s, got)
		}
	}
}

func TestBackend_MissingFactory(t *testing.T) {
	b := New()
	b.Registry().Unregister("avdec_h265")

	_, err := b.NewElement(media.ElementSpec{Kind: media.KindDecoder, Factory: "avdec_h265"})
	if err == nil || err.Error() != "missing element: avdec_h265" {
		t.Fatalf("expected missing element error, got %v", err)
	}
}
