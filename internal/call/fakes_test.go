package call

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/peercall/peercall/internal/media"
	"github.com/peercall/peercall/internal/peerlink"
	"github.com/peercall/peercall/internal/signal"
)

// fakeChannel is an in-memory signal.Channel that records everything.
type fakeChannel struct {
	mu           sync.Mutex
	handlers     map[string]signal.Handler
	published    [][]byte
	unsubscribes int
	subscribeErr error
	publishErr   error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: make(map[string]signal.Handler)}
}

func (c *fakeChannel) Subscribe(topic string, fn signal.Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribeErr != nil {
		return c.subscribeErr
	}
	c.handlers[topic] = fn
	return nil
}

func (c *fakeChannel) Unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribes++
	delete(c.handlers, topic)
}

func (c *fakeChannel) Publish(topic string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, data)
	return nil
}

func (c *fakeChannel) subscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handlers[topic]
	return ok
}

// deliver simulates an inbound message from the remote peer.
func (c *fakeChannel) deliver(topic string, data []byte) {
	c.mu.Lock()
	fn := c.handlers[topic]
	c.mu.Unlock()
	if fn != nil {
		fn(topic, data)
	}
}

// sent decodes all published messages into generic maps.
func (c *fakeChannel) sent(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.published))
	for _, data := range c.published {
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("published message is not JSON: %v", err)
		}
		out = append(out, m)
	}
	return out
}

func (c *fakeChannel) sentOfType(t *testing.T, typ string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, m := range c.sent(t) {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

// fakeStream is a local stream handle.
type fakeStream struct {
	id      string
	mu      sync.Mutex
	stopped int
}

func (s *fakeStream) StreamID() string            { return s.id }
func (s *fakeStream) Tracks() []webrtc.TrackLocal { return nil }
func (s *fakeStream) Stop()                       { s.mu.Lock(); s.stopped++; s.mu.Unlock() }

func (s *fakeStream) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// fakeSink records attach/detach calls.
type fakeSink struct {
	mu       sync.Mutex
	attached []media.Source
	detaches int
}

func (s *fakeSink) Attach(src media.Source) {
	s.mu.Lock()
	s.attached = append(s.attached, src)
	s.mu.Unlock()
}

func (s *fakeSink) Detach() {
	s.mu.Lock()
	s.detaches++
	s.mu.Unlock()
}

// fakeGateway hands out a fakeStream, optionally failing or blocking until
// released so tests can poke at the pre-media window.
type fakeGateway struct {
	stream    *fakeStream
	err       error
	block     chan struct{} // non-nil: Acquire waits for close
	onAcquire func()
}

func (g *fakeGateway) Acquire(_ media.Constraints) (media.Stream, error) {
	if g.onAcquire != nil {
		g.onAcquire()
	}
	if g.block != nil {
		<-g.block
	}
	if g.err != nil {
		return nil, g.err
	}
	return g.stream, nil
}

func (g *fakeGateway) Attach(sink media.Sink, src media.Source) {
	if sink == nil || src == nil {
		return
	}
	sink.Attach(src)
}

func (g *fakeGateway) Detach(sink media.Sink) {
	if sink == nil {
		return
	}
	sink.Detach()
}

// fakeLink records negotiation operations and lets tests fire link events.
type fakeLink struct {
	mu            sync.Mutex
	remoteDescs   []webrtc.SessionDescription
	localDescs    []webrtc.SessionDescription
	candidates    []webrtc.ICECandidateInit
	streams       []media.Stream
	offerOpts     []peerlink.OfferOptions
	closed        int
	offerErr      error
	answerErr     error
	remoteDescErr error

	onCandidate     func(webrtc.ICECandidateInit)
	onStreamAdded   func(media.RemoteStream)
	onStreamRemoved func(media.RemoteStream)
}

func (l *fakeLink) SetRemoteDescription(d webrtc.SessionDescription) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.remoteDescErr != nil {
		return l.remoteDescErr
	}
	l.remoteDescs = append(l.remoteDescs, d)
	return nil
}

func (l *fakeLink) CreateOffer(opts peerlink.OfferOptions) (webrtc.SessionDescription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.offerErr != nil {
		return webrtc.SessionDescription{}, l.offerErr
	}
	l.offerOpts = append(l.offerOpts, opts)
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 fake-offer"}, nil
}

func (l *fakeLink) CreateAnswer() (webrtc.SessionDescription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.answerErr != nil {
		return webrtc.SessionDescription{}, l.answerErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 fake-answer"}, nil
}

func (l *fakeLink) SetLocalDescription(d webrtc.SessionDescription) error {
	l.mu.Lock()
	l.localDescs = append(l.localDescs, d)
	l.mu.Unlock()
	return nil
}

func (l *fakeLink) AddCandidate(c webrtc.ICECandidateInit) error {
	l.mu.Lock()
	l.candidates = append(l.candidates, c)
	l.mu.Unlock()
	return nil
}

func (l *fakeLink) AddStream(s media.Stream) error {
	l.mu.Lock()
	l.streams = append(l.streams, s)
	l.mu.Unlock()
	return nil
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	l.closed++
	l.mu.Unlock()
	return nil
}

func (l *fakeLink) OnCandidate(fn func(webrtc.ICECandidateInit)) {
	l.mu.Lock()
	l.onCandidate = fn
	l.mu.Unlock()
}

func (l *fakeLink) OnRemoteStreamAdded(fn func(media.RemoteStream)) {
	l.mu.Lock()
	l.onStreamAdded = fn
	l.mu.Unlock()
}

func (l *fakeLink) OnRemoteStreamRemoved(fn func(media.RemoteStream)) {
	l.mu.Lock()
	l.onStreamRemoved = fn
	l.mu.Unlock()
}

func (l *fakeLink) fireCandidate(c webrtc.ICECandidateInit) {
	l.mu.Lock()
	fn := l.onCandidate
	l.mu.Unlock()
	fn(c)
}

func (l *fakeLink) fireStreamAdded(rs media.RemoteStream) {
	l.mu.Lock()
	fn := l.onStreamAdded
	l.mu.Unlock()
	fn(rs)
}

func (l *fakeLink) closeCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// fakeFactory returns a prepared link or an error.
type fakeFactory struct {
	mu    sync.Mutex
	link  *fakeLink
	err   error
	calls int
}

func (f *fakeFactory) New(_ []webrtc.ICEServer, _ peerlink.Options) (peerlink.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.link, nil
}

func (f *fakeFactory) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fixture bundles the standard fakes behind a ready-to-use Config.
type fixture struct {
	channel *fakeChannel
	gateway *fakeGateway
	factory *fakeFactory
	link    *fakeLink
	stream  *fakeStream
	local   *fakeSink
	remote  *fakeSink

	ready      chan struct{}
	connected  chan struct{}
	terminated chan struct{}
	errs       chan error
}

func newFixture() *fixture {
	f := &fixture{
		channel:    newFakeChannel(),
		link:       &fakeLink{},
		stream:     &fakeStream{id: "local-stream"},
		local:      &fakeSink{},
		remote:     &fakeSink{},
		ready:      make(chan struct{}, 4),
		connected:  make(chan struct{}, 4),
		terminated: make(chan struct{}, 4),
		errs:       make(chan error, 16),
	}
	f.gateway = &fakeGateway{stream: f.stream}
	f.factory = &fakeFactory{link: f.link}
	return f
}

func (f *fixture) config() Config {
	return Config{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.example.org:3478"}}},
		Channel:    f.channel,
		Topic:      "room-42",
		LocalSink:  f.local,
		RemoteSink: f.remote,
		Gateway:    f.gateway,
		Factory:    f.factory,
		OnReady:    func() { f.ready <- struct{}{} },
		OnConnected: func() {
			f.connected <- struct{}{}
		},
		OnTerminated: func() {
			f.terminated <- struct{}{}
		},
		OnError: func(err error) { f.errs <- err },
	}
}

func waitFor(t *testing.T, ch chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func waitErr(t *testing.T, ch chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error callback")
		return nil
	}
}

func expectQuiet(t *testing.T, f *fixture) {
	t.Helper()
	select {
	case err := <-f.errs:
		t.Fatalf("unexpected error callback: %v", err)
	case <-f.ready:
		t.Fatal("unexpected OnReady")
	case <-f.connected:
		t.Fatal("unexpected OnConnected")
	case <-f.terminated:
		t.Fatal("unexpected OnTerminated")
	case <-time.After(100 * time.Millisecond):
	}
}

var errBoom = errors.New("boom")
