// Package media abstracts local capture and display of audio/video streams.
// The call layer only sees the Gateway/Stream/Sink capabilities; the
// concrete Devices gateway captures through pion/mediadevices.
package media

import (
	"github.com/pion/webrtc/v4"
)

// Source is an opaque handle to something a Sink can render: either a
// locally captured Stream or a RemoteStream arriving over a peer link.
type Source interface {
	StreamID() string
}

// Stream is a locally captured media stream. Tracks are ready to be added
// to a peer connection. Stop releases the capture devices; the stream is
// unusable afterwards.
type Stream interface {
	Source
	Tracks() []webrtc.TrackLocal
	Stop()
}

// RemoteStream groups the remote tracks that share one upstream stream ID.
type RemoteStream struct {
	ID     string
	Tracks []*webrtc.TrackRemote
}

func (r RemoteStream) StreamID() string { return r.ID }

// Sink is a display surface that renders exactly one source at a time.
// Attach replaces any previously attached source.
type Sink interface {
	Attach(src Source)
	Detach()
}

// Constraints describes desired media or negotiation properties in the
// mandatory/optional shape signaling peers exchange. Mandatory keys must be
// honored; Optional entries are best-effort hints.
type Constraints struct {
	Mandatory map[string]any
	Optional  []map[string]any
}

// Mandatory constraint keys understood by the Devices gateway.
const (
	KeyMaxWidth     = "maxWidth"
	KeyMaxHeight    = "maxHeight"
	KeyMaxFrameRate = "maxFrameRate"
	KeyAudio        = "audio"
)

// Gateway acquires local capture streams and attaches sources to sinks.
type Gateway interface {
	Acquire(c Constraints) (Stream, error)
	Attach(sink Sink, src Source)
	Detach(sink Sink)
}
