package peerlink

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"github.com/peercall/peercall/internal/media"
)

// PionFactory builds links on pion/webrtc.
type PionFactory struct{}

var _ Factory = PionFactory{}

// New constructs a peer connection with default codecs and interceptors.
func (PionFactory) New(iceServers []webrtc.ICEServer, opts Options) (Link, error) {
	if opts.DisconnectedTimeout == 0 {
		opts.DisconnectedTimeout = 30 * time.Second
	}
	if opts.FailedTimeout == 0 {
		opts.FailedTimeout = 120 * time.Second
	}
	if opts.KeepAliveInterval == 0 {
		opts.KeepAliveInterval = 2 * time.Second
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("peerlink: register codecs: %w", err)
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, fmt.Errorf("peerlink: register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	se.SetICETimeouts(opts.DisconnectedTimeout, opts.FailedTimeout, opts.KeepAliveInterval)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	)

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("peerlink: create peer connection: %w", err)
	}

	l := &pionLink{
		id:     uuid.NewString()[:8],
		pc:     pc,
		remote: make(map[string]*media.RemoteStream),
	}
	l.wire()
	return l, nil
}

// pionLink adapts *webrtc.PeerConnection to Link. Remote tracks are grouped
// by their upstream stream ID so the stream-added event mirrors what the
// far side attached as one stream.
type pionLink struct {
	id string
	pc *webrtc.PeerConnection

	mu         sync.Mutex
	remote     map[string]*media.RemoteStream
	localAudio bool
	localVideo bool
	gone       bool

	onCandidate     func(webrtc.ICECandidateInit)
	onStreamAdded   func(media.RemoteStream)
	onStreamRemoved func(media.RemoteStream)
}

var _ Link = (*pionLink)(nil)

func (l *pionLink) wire() {
	l.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return // end of gathering
		}
		l.mu.Lock()
		fn := l.onCandidate
		l.mu.Unlock()
		if fn != nil {
			fn(cand.ToJSON())
		}
	})

	l.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Printf("LINK [%s]: remote track kind=%s stream=%s", l.id, track.Kind(), track.StreamID())
		l.mu.Lock()
		rs, ok := l.remote[track.StreamID()]
		if !ok {
			rs = &media.RemoteStream{ID: track.StreamID()}
			l.remote[track.StreamID()] = rs
		}
		rs.Tracks = append(rs.Tracks, track)
		snapshot := *rs
		fn := l.onStreamAdded
		l.mu.Unlock()
		if fn != nil {
			fn(snapshot)
		}
	})

	l.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Printf("LINK [%s]: ICE state %s", l.id, s)
	})

	l.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Printf("LINK [%s]: connection state %s", l.id, s)
		if s == webrtc.PeerConnectionStateDisconnected ||
			s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed {
			l.dropRemoteStreams()
		}
	})
}

// dropRemoteStreams fires the removed event once per known remote stream.
func (l *pionLink) dropRemoteStreams() {
	l.mu.Lock()
	if l.gone {
		l.mu.Unlock()
		return
	}
	l.gone = true
	streams := make([]media.RemoteStream, 0, len(l.remote))
	for _, rs := range l.remote {
		streams = append(streams, *rs)
	}
	fn := l.onStreamRemoved
	l.mu.Unlock()
	if fn == nil {
		return
	}
	for _, rs := range streams {
		fn(rs)
	}
}

func (l *pionLink) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return l.pc.SetRemoteDescription(desc)
}

func (l *pionLink) SetLocalDescription(desc webrtc.SessionDescription) error {
	return l.pc.SetLocalDescription(desc)
}

// CreateOffer builds the local offer. For each kind the merged constraints
// ask to receive but no local track covers, a recvonly transceiver is added
// first so the offer always carries valid m-lines with ICE credentials.
func (l *pionLink) CreateOffer(opts OfferOptions) (webrtc.SessionDescription, error) {
	l.mu.Lock()
	needAudio := opts.ReceiveAudio && !l.localAudio
	needVideo := opts.ReceiveVideo && !l.localVideo
	l.mu.Unlock()

	if needVideo {
		if _, err := l.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return webrtc.SessionDescription{}, fmt.Errorf("peerlink: add video transceiver: %w", err)
		}
	}
	if needAudio {
		if _, err := l.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return webrtc.SessionDescription{}, fmt.Errorf("peerlink: add audio transceiver: %w", err)
		}
	}
	return l.pc.CreateOffer(nil)
}

func (l *pionLink) CreateAnswer() (webrtc.SessionDescription, error) {
	return l.pc.CreateAnswer(nil)
}

func (l *pionLink) AddCandidate(c webrtc.ICECandidateInit) error {
	return l.pc.AddICECandidate(c)
}

// AddStream adds every track of the local stream to the connection.
func (l *pionLink) AddStream(s media.Stream) error {
	for _, track := range s.Tracks() {
		if _, err := l.pc.AddTrack(track); err != nil {
			return fmt.Errorf("peerlink: add track: %w", err)
		}
		l.mu.Lock()
		switch track.Kind() {
		case webrtc.RTPCodecTypeAudio:
			l.localAudio = true
		case webrtc.RTPCodecTypeVideo:
			l.localVideo = true
		}
		l.mu.Unlock()
	}
	return nil
}

func (l *pionLink) Close() error {
	l.dropRemoteStreams()
	return l.pc.Close()
}

func (l *pionLink) OnCandidate(fn func(webrtc.ICECandidateInit)) {
	l.mu.Lock()
	l.onCandidate = fn
	l.mu.Unlock()
}

func (l *pionLink) OnRemoteStreamAdded(fn func(media.RemoteStream)) {
	l.mu.Lock()
	l.onStreamAdded = fn
	l.mu.Unlock()
}

func (l *pionLink) OnRemoteStreamRemoved(fn func(media.RemoteStream)) {
	l.mu.Lock()
	l.onStreamRemoved = fn
	l.mu.Unlock()
}
