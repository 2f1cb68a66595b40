package call

import (
	"fmt"
	"log"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/peercall/peercall/internal/media"
	"github.com/peercall/peercall/internal/peerlink"
)

// handler owns one call's session: the topic subscription, the local
// stream and the peer link. It translates link events into outbound
// signaling and inbound signaling into link operations.
//
// The mutex guards session state; channel, gateway and link operations run
// outside it so a blocking transport never wedges dispatch. Exactly-once
// lifecycle callbacks are enforced with fired flags under the same mutex.
type handler struct {
	cfg Config

	mu         sync.Mutex
	caller     bool
	link       peerlink.Link
	stream     media.Stream
	subscribed bool
	torn       bool

	readyFired      bool
	connectedFired  bool
	terminatedFired bool
}

func newHandler(cfg Config) *handler {
	return &handler{cfg: cfg}
}

// reportError is the single failure path: every error ends up here exactly
// once and is never retried.
func (h *handler) reportError(err error) {
	if h.cfg.OnError != nil {
		h.cfg.OnError(err)
		return
	}
	log.Printf("CALL [%s]: %v", h.cfg.Topic, err)
}

// initialize subscribes to the rendezvous topic and then kicks off media
// acquisition. Subscription comes first so an offer arriving while capture
// is still opening devices is never missed.
func (h *handler) initialize(caller bool) {
	h.mu.Lock()
	h.caller = caller
	h.mu.Unlock()

	if err := h.cfg.Channel.Subscribe(h.cfg.Topic, h.onChannelMessage); err != nil {
		h.reportError(fmt.Errorf("subscribe to %q: %w", h.cfg.Topic, err))
		return
	}
	h.mu.Lock()
	h.subscribed = true
	h.mu.Unlock()

	go h.acquireMedia()
}

func (h *handler) acquireMedia() {
	stream, err := h.cfg.Gateway.Acquire(captureConstraints(&h.cfg))
	if err != nil {
		h.onMediaError(err)
		return
	}
	h.onMediaSuccess(stream)
}

// onMediaError reports the failure and stops forward progress. The session
// is deliberately not torn down: the subscription stays live and a local
// hangup remains the way out.
func (h *handler) onMediaError(err error) {
	h.reportError(fmt.Errorf("failed to get access to local media: %w", err))
}

// onMediaSuccess stores the stream, shows the self-view, creates the peer
// link and, on the caller side, originates the offer. OnReady fires once
// at the end regardless of role.
func (h *handler) onMediaSuccess(stream media.Stream) {
	h.mu.Lock()
	if h.torn {
		// Hangup won the race against capture.
		h.mu.Unlock()
		stream.Stop()
		return
	}
	h.stream = stream
	h.mu.Unlock()

	log.Printf("CALL [%s]: local media ready (stream %s)", h.cfg.Topic, stream.StreamID())
	h.cfg.Gateway.Attach(h.cfg.LocalSink, stream)

	link := h.createPeerLink()
	if link == nil {
		return
	}
	if err := link.AddStream(stream); err != nil {
		h.reportError(err)
		return
	}

	h.mu.Lock()
	caller := h.caller
	h.mu.Unlock()
	if caller {
		h.doCall(link)
	}
	h.fireReady()
}

// createPeerLink constructs the link and wires its three event reactions:
// gathered candidates go out as signaling, remote streams attach to and
// detach from the remote sink. Returns nil after a construction failure;
// no retry is attempted.
func (h *handler) createPeerLink() peerlink.Link {
	link, err := h.cfg.Factory.New(h.cfg.ICEServers, h.cfg.LinkOptions)
	if err != nil {
		h.reportError(fmt.Errorf("failed to create peer connection: %w", err))
		return nil
	}

	link.OnCandidate(h.onLocalCandidate)
	link.OnRemoteStreamAdded(h.onRemoteStreamAdded)
	link.OnRemoteStreamRemoved(h.onRemoteStreamRemoved)

	h.mu.Lock()
	if h.torn {
		h.mu.Unlock()
		_ = link.Close()
		return nil
	}
	h.link = link
	h.mu.Unlock()
	return link
}

func (h *handler) onLocalCandidate(c webrtc.ICECandidateInit) {
	label := 0
	if c.SDPMLineIndex != nil {
		label = int(*c.SDPMLineIndex)
	}
	id := ""
	if c.SDPMid != nil {
		id = *c.SDPMid
	}
	h.publish(encodeCandidate(label, id, c.Candidate))
}

func (h *handler) onRemoteStreamAdded(rs media.RemoteStream) {
	log.Printf("CALL [%s]: remote stream %s", h.cfg.Topic, rs.ID)
	h.cfg.Gateway.Attach(h.cfg.RemoteSink, rs)
	h.fireConnected()
}

func (h *handler) onRemoteStreamRemoved(rs media.RemoteStream) {
	log.Printf("CALL [%s]: remote stream %s removed", h.cfg.Topic, rs.ID)
	h.cfg.Gateway.Detach(h.cfg.RemoteSink)
}

// doCall originates the offer: reception hints are folded into the base
// offer constraints, the offer becomes the local description and goes out
// on the topic.
func (h *handler) doCall(link peerlink.Link) {
	merged := mergeConstraints(media.Constraints{}, media.Constraints{
		Mandatory: map[string]any{
			keyReceiveAudio: true,
			keyReceiveVideo: true,
		},
	})
	opts := peerlink.OfferOptions{
		ReceiveAudio: merged.Mandatory[keyReceiveAudio] == true,
		ReceiveVideo: merged.Mandatory[keyReceiveVideo] == true,
	}

	offer, err := link.CreateOffer(opts)
	if err != nil {
		h.reportError(fmt.Errorf("create offer: %w", err))
		return
	}
	if err := link.SetLocalDescription(offer); err != nil {
		h.reportError(fmt.Errorf("set local offer: %w", err))
		return
	}
	log.Printf("CALL [%s]: sending offer", h.cfg.Topic)
	h.publish(encodeSDP(typeOffer, offer.SDP))
}

// onChannelMessage dispatches one inbound signaling message. Unparseable
// payloads and unrecognized tags are ignored without comment; messages for
// a link that does not exist yet are dropped, not queued.
func (h *handler) onChannelMessage(_ string, data []byte) {
	msg, ok := parseMessage(data)
	if !ok {
		return
	}

	if msg.Type == typeBye {
		log.Printf("CALL [%s]: remote hangup", h.cfg.Topic)
		h.doHangup()
		return
	}

	h.mu.Lock()
	link := h.link
	h.mu.Unlock()
	if link == nil {
		log.Printf("CALL [%s]: dropping %q, no peer link yet", h.cfg.Topic, msg.Type)
		return
	}

	switch msg.Type {
	case typeOffer:
		h.handleOffer(link, msg)
	case typeAnswer:
		if err := link.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeAnswer,
			SDP:  msg.SDP,
		}); err != nil {
			h.reportError(fmt.Errorf("set remote answer: %w", err))
		}
	case typeCandidate:
		label := uint16(msg.Label)
		id := msg.ID
		if err := link.AddCandidate(webrtc.ICECandidateInit{
			Candidate:     msg.Candidate,
			SDPMid:        &id,
			SDPMLineIndex: &label,
		}); err != nil {
			h.reportError(fmt.Errorf("add remote candidate: %w", err))
		}
	}
}

// handleOffer applies the remote offer and replies with an answer on the
// same topic.
func (h *handler) handleOffer(link peerlink.Link, msg message) {
	if err := link.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  msg.SDP,
	}); err != nil {
		h.reportError(fmt.Errorf("set remote offer: %w", err))
		return
	}
	answer, err := link.CreateAnswer()
	if err != nil {
		h.reportError(fmt.Errorf("create answer: %w", err))
		return
	}
	if err := link.SetLocalDescription(answer); err != nil {
		h.reportError(fmt.Errorf("set local answer: %w", err))
		return
	}
	log.Printf("CALL [%s]: sending answer", h.cfg.Topic)
	h.publish(encodeSDP(typeAnswer, answer.SDP))
}

// hangupLocal is the local teardown trigger: one bye goes out before the
// session is dismantled.
func (h *handler) hangupLocal() {
	h.publish(encodeBye())
	h.doHangup()
}

// doHangup dismantles whatever parts of the session exist: close the link,
// drop the subscription, stop the local stream. Each step is guarded by
// its own state so doHangup is safe from any partial state and idempotent:
// repeat calls find everything already cleared. OnTerminated fires at most
// once across all invocations.
func (h *handler) doHangup() {
	h.mu.Lock()
	h.torn = true
	link := h.link
	h.link = nil
	stream := h.stream
	h.stream = nil
	subscribed := h.subscribed
	h.subscribed = false
	h.mu.Unlock()

	if link != nil {
		_ = link.Close()
	}
	if subscribed {
		h.cfg.Channel.Unsubscribe(h.cfg.Topic)
	}
	if stream != nil {
		h.cfg.Gateway.Detach(h.cfg.LocalSink)
		stream.Stop()
	}
	h.fireTerminated()
}

func (h *handler) publish(data []byte) {
	if err := h.cfg.Channel.Publish(h.cfg.Topic, data); err != nil {
		h.reportError(fmt.Errorf("publish to %q: %w", h.cfg.Topic, err))
	}
}

func (h *handler) fireReady() {
	h.mu.Lock()
	fired := h.readyFired
	h.readyFired = true
	h.mu.Unlock()
	if !fired && h.cfg.OnReady != nil {
		h.cfg.OnReady()
	}
}

func (h *handler) fireConnected() {
	h.mu.Lock()
	fired := h.connectedFired
	h.connectedFired = true
	h.mu.Unlock()
	if !fired && h.cfg.OnConnected != nil {
		h.cfg.OnConnected()
	}
}

func (h *handler) fireTerminated() {
	h.mu.Lock()
	fired := h.terminatedFired
	h.terminatedFired = true
	h.mu.Unlock()
	if !fired && h.cfg.OnTerminated != nil {
		h.cfg.OnTerminated()
	}
}
