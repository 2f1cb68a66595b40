// Package peerlink wraps the native peer connection primitive behind a
// small capability surface. The call layer drives negotiation through Link
// and never touches pion types beyond the SDP/ICE value structs.
package peerlink

import (
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/peercall/peercall/internal/media"
)

// Options tunes link construction. Zero values select the defaults below.
type Options struct {
	// ICE liveness timeouts. The stock 5 s disconnected timeout is far too
	// short for relay paths with brief outages during re-keying; 30 s gives
	// ICE time to recover without the user noticing a freeze.
	DisconnectedTimeout time.Duration // default 30s
	FailedTimeout       time.Duration // default 120s
	KeepAliveInterval   time.Duration // default 2s
}

// OfferOptions carries the negotiation hints merged from the session's
// constraint sets into one offer.
type OfferOptions struct {
	ReceiveAudio bool
	ReceiveVideo bool
}

// Link is one peer connection. Event callbacks must be registered before
// negotiation starts; they fire from transport goroutines.
type Link interface {
	SetRemoteDescription(desc webrtc.SessionDescription) error
	CreateOffer(opts OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	AddCandidate(c webrtc.ICECandidateInit) error
	AddStream(s media.Stream) error
	Close() error

	OnCandidate(fn func(webrtc.ICECandidateInit))
	OnRemoteStreamAdded(fn func(media.RemoteStream))
	OnRemoteStreamRemoved(fn func(media.RemoteStream))
}

// Factory constructs links. Construction failure is a value, not a panic:
// an unsupported or misconfigured transport stack reports through the
// returned error and the caller proceeds without a link.
type Factory interface {
	New(iceServers []webrtc.ICEServer, opts Options) (Link, error)
}
