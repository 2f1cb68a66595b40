// Package signal provides the rendezvous messaging layer used during call
// setup. Two peers that share a topic name exchange small JSON messages
// through a Channel until their direct media link is negotiated.
//
// Two implementations exist: Node (libp2p GossipSub, fully decentralized)
// and WSChannel (websocket client against a central relay server).
package signal

// Handler receives one raw message published on a subscribed topic.
type Handler func(topic string, data []byte)

// Channel is the pub/sub surface call setup needs from the transport.
// Implementations deliver messages from a given sender in send order but
// make no cross-sender ordering or delivery guarantees. After the owning
// session is closed all three methods are silent no-ops, not errors.
type Channel interface {
	Subscribe(topic string, fn Handler) error
	Unsubscribe(topic string)
	Publish(topic string, data []byte) error
}
