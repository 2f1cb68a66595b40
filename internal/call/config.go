package call

import (
	"errors"

	"github.com/pion/webrtc/v4"

	"github.com/peercall/peercall/internal/media"
	"github.com/peercall/peercall/internal/peerlink"
	"github.com/peercall/peercall/internal/signal"
)

// Config describes one call attempt. It is read once at construction and
// immutable for the call's lifetime.
type Config struct {
	// ICEServers is the ordered STUN/TURN list used for candidate
	// gathering. Required, non-empty.
	ICEServers []webrtc.ICEServer

	// Channel is the signaling transport and Topic the rendezvous topic
	// both peers agreed on. Both required.
	Channel signal.Channel
	Topic   string

	// Display surfaces. RemoteSink shows the far side once connected;
	// LocalSink is an optional self-view.
	RemoteSink media.Sink
	LocalSink  media.Sink

	// Capture shape hints, forwarded to the media gateway as mandatory
	// constraints. Zero values leave the device defaults in place.
	VideoWidth     int
	VideoHeight    int
	VideoFrameRate int
	EnableAudio    bool

	// Lifecycle callbacks, each optional. OnReady, OnConnected and
	// OnTerminated fire at most once per call; OnError may fire multiple
	// times. When OnError is unset, errors go to the process log instead.
	OnReady      func()
	OnConnected  func()
	OnTerminated func()
	OnError      func(error)

	// Injected capability set. Left nil, the real stack is used:
	// pion/mediadevices capture and a pion/webrtc link factory.
	Gateway media.Gateway
	Factory peerlink.Factory

	// LinkOptions tunes peer link construction. Zero value is fine.
	LinkOptions peerlink.Options
}

func (c *Config) validate() error {
	if len(c.ICEServers) == 0 {
		return errors.New("No ICE servers specified.")
	}
	if c.Channel == nil {
		return errors.New("no signaling channel configured")
	}
	if c.Topic == "" {
		return errors.New("no signaling topic configured")
	}
	return nil
}

// applyDefaults fills the injectable capabilities with the production
// implementations.
func (c *Config) applyDefaults() {
	if c.Gateway == nil {
		c.Gateway = media.NewDevices()
	}
	if c.Factory == nil {
		c.Factory = peerlink.PionFactory{}
	}
}
