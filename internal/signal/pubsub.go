package signal

import (
	"context"
	"fmt"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	ma "github.com/multiformats/go-multiaddr"
)

var log = logging.Logger("signal")

func init() {
	// Silence noisy libp2p subsystems: dial failures and backoff errors
	// go to stderr by default and pollute terminal output.
	logging.SetLogLevel("swarm2", "error")
	logging.SetLogLevel("autonat", "warn")
}

const connectTimeout = 10 * time.Second

// Node is a libp2p-backed Channel. Each subscribed topic maps to one
// GossipSub topic; messages published by the node itself are filtered out
// before delivery so signaling never echoes back to its sender.
type Node struct {
	host host.Host
	ps   *pubsub.PubSub
	ctx  context.Context

	mu     sync.Mutex
	closed bool
	topics map[string]*joinedTopic
}

type joinedTopic struct {
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	cancel context.CancelFunc
}

type mdnsNotifee struct {
	h host.Host
}

func (n *mdnsNotifee) HandlePeerFound(pi peer.AddrInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	_ = n.h.Connect(ctx, pi)
}

// NewNode starts a libp2p host listening on listenPort and attaches a
// GossipSub router. When mdnsTag is non-empty, LAN peers carrying the same
// tag are discovered and dialed automatically.
func NewNode(ctx context.Context, listenPort int, mdnsTag string) (*Node, error) {
	h, err := libp2p.New(
		libp2p.ListenAddrStrings(fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", listenPort)),
	)
	if err != nil {
		return nil, fmt.Errorf("signal: create host: %w", err)
	}

	if mdnsTag != "" {
		md := mdns.NewMdnsService(h, mdnsTag, &mdnsNotifee{h: h})
		if err := md.Start(); err != nil {
			_ = h.Close()
			return nil, fmt.Errorf("signal: start mdns: %w", err)
		}
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("signal: create gossipsub: %w", err)
	}

	n := &Node{
		host:   h,
		ps:     ps,
		ctx:    ctx,
		topics: make(map[string]*joinedTopic),
	}
	log.Infow("node started", "id", h.ID().String(), "port", listenPort)
	return n, nil
}

// ID returns the node's peer ID string.
func (n *Node) ID() string { return n.host.ID().String() }

// Addrs returns the node's listen multiaddrs.
func (n *Node) Addrs() []ma.Multiaddr { return n.host.Addrs() }

// Connect dials the peer at the given multiaddr (with /p2p/ component).
// Used to bootstrap two nodes onto a shared mesh when mDNS is unavailable.
func (n *Node) Connect(ctx context.Context, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return fmt.Errorf("signal: parse multiaddr %q: %w", addr, err)
	}
	pi, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return fmt.Errorf("signal: peer info from %q: %w", addr, err)
	}
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	return n.host.Connect(ctx, *pi)
}

// join returns the GossipSub topic handle, joining it on first use.
// Caller must hold n.mu.
func (n *Node) join(topic string) (*joinedTopic, error) {
	if jt, ok := n.topics[topic]; ok {
		return jt, nil
	}
	t, err := n.ps.Join(topic)
	if err != nil {
		return nil, fmt.Errorf("signal: join topic %q: %w", topic, err)
	}
	jt := &joinedTopic{topic: t}
	n.topics[topic] = jt
	return jt, nil
}

// Subscribe attaches fn to the topic. Messages the node published itself
// are not delivered. No-op after Close.
func (n *Node) Subscribe(topic string, fn Handler) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	jt, err := n.join(topic)
	if err != nil {
		return err
	}
	if jt.sub != nil {
		return fmt.Errorf("signal: already subscribed to %q", topic)
	}
	sub, err := jt.topic.Subscribe()
	if err != nil {
		return fmt.Errorf("signal: subscribe %q: %w", topic, err)
	}
	ctx, cancel := context.WithCancel(n.ctx)
	jt.sub = sub
	jt.cancel = cancel

	go n.readLoop(ctx, topic, sub, fn)
	log.Infow("subscribed", "topic", topic)
	return nil
}

// readLoop pumps one subscription until it is cancelled, dropping messages
// the node sent itself. Echoed signaling (own SDP offers, own ICE
// candidates) would otherwise corrupt the negotiation on both ends.
func (n *Node) readLoop(ctx context.Context, topic string, sub *pubsub.Subscription, fn Handler) {
	self := n.host.ID()
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == self {
			continue
		}
		fn(topic, msg.Data)
	}
}

// Unsubscribe detaches the topic handler. The topic itself stays joined so
// a final message (such as a hangup notice) can still be published after
// the handler is gone. No-op if not subscribed or after Close.
func (n *Node) Unsubscribe(topic string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	jt, ok := n.topics[topic]
	if !ok || jt.sub == nil {
		return
	}
	jt.cancel()
	jt.sub.Cancel()
	jt.sub = nil
	jt.cancel = nil
	log.Infow("unsubscribed", "topic", topic)
}

// Publish sends data on the topic, joining it first if needed.
// No-op after Close.
func (n *Node) Publish(topic string, data []byte) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	jt, err := n.join(topic)
	n.mu.Unlock()
	if err != nil {
		return err
	}
	return jt.topic.Publish(n.ctx, data)
}

// Close cancels all subscriptions and shuts the host down. Idempotent.
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	for _, jt := range n.topics {
		if jt.sub != nil {
			jt.cancel()
			jt.sub.Cancel()
		}
		_ = jt.topic.Close()
	}
	n.topics = make(map[string]*joinedTopic)
	n.mu.Unlock()
	return n.host.Close()
}
