package pipeline

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Codec is the video codec carried by the stream.
type Codec string

const (
	H264 Codec = "h264"
	H265 Codec = "h265"
)

// DefaultCodec is used when the stream URL does not name one.
const DefaultCodec = H265

// Depayloader is the RTP depayloader factory for the codec.
func (c Codec) Depayloader() string { return "rtp" + string(c) + "depay" }

// Parser is the bitstream parser factory for the codec.
func (c Codec) Parser() string { return string(c) + "parse" }

// Decoder is the software decoder factory for the codec.
func (c Codec) Decoder() string { return "avdec_" + string(c) }

// Transport selects the source element.
type Transport string

const (
	TransportRTSP Transport = "rtsp"
	TransportUDP  Transport = "udp"
)

// Source describes the network source derived from a stream URL.
type Source struct {
	Transport Transport
	Location  string // URL without credentials or rov-video query parameters
	User      string
	Password  string
	Host      string
	Port      int
	TCP       bool
	Codec     Codec
}

// Redacted is the location safe for logs.
func (s Source) Redacted() string {
	return s.Location
}

// ParseSource derives the source configuration from a stream URL.
//
// Supported schemes: rtsp, rtsps and rtspt (TCP interleaved) for RTSP
// cameras, and udp for a raw RTP feed (udp://host:port). The optional query
// parameter codec selects h264 or h265.
func ParseSource(raw string) (Source, error) {
	if strings.TrimSpace(raw) == "" {
		return Source{}, fmt.Errorf("stream URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Source{}, fmt.Errorf("invalid stream URL: %w", err)
	}
	if u.Host == "" {
		return Source{}, fmt.Errorf("stream URL %q has no host", u.Redacted())
	}

	src := Source{Codec: DefaultCodec, Host: u.Hostname()}

	q := u.Query()
	if c := q.Get("codec"); c != "" {
		switch Codec(strings.ToLower(c)) {
		case H264:
			src.Codec = H264
		case H265:
			src.Codec = H265
		default:
			return Source{}, fmt.Errorf("unsupported codec %q (must be h264 or h265)", c)
		}
		q.Del("codec")
		u.RawQuery = q.Encode()
	}

	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return Source{}, fmt.Errorf("invalid port %q: %w", p, err)
		}
		src.Port = port
	}

	switch u.Scheme {
	case "rtsp", "rtsps":
		src.Transport = TransportRTSP
	case "rtspt":
		src.Transport = TransportRTSP
		src.TCP = true
		u.Scheme = "rtsp"
	case "udp":
		src.Transport = TransportUDP
		if src.Port == 0 {
			return Source{}, fmt.Errorf("udp stream URL needs a port")
		}
	default:
		return Source{}, fmt.Errorf("unsupported stream scheme %q", u.Scheme)
	}

	if u.User != nil {
		src.User = u.User.Username()
		src.Password, _ = u.User.Password()
		u.User = nil
	}
	src.Location = u.String()
	return src, nil
}
