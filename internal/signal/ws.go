package signal

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// wsEnvelope is the frame format spoken with the relay server. Cmd is set
// on client-to-server frames ("subscribe", "unsubscribe", "publish"); frames
// from the server carry only topic+payload.
type wsEnvelope struct {
	Cmd     string          `json:"cmd,omitempty"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSChannel is a Channel backed by a websocket connection to a relay
// server. The relay fans published payloads out to every other client
// subscribed to the same topic.
type WSChannel struct {
	conn *websocket.Conn

	writeMu sync.Mutex // gorilla allows one concurrent writer

	mu       sync.Mutex
	closed   bool
	handlers map[string]Handler
}

var _ Channel = (*WSChannel)(nil)
var _ Channel = (*Node)(nil)

// DialWS connects to the relay at url (ws:// or wss://) and starts the
// inbound read pump.
func DialWS(url string) (*WSChannel, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("signal: dial relay %s: %w", url, err)
	}
	c := &WSChannel{
		conn:     conn,
		handlers: make(map[string]Handler),
	}
	go c.readLoop()
	log.Infow("relay connected", "url", url)
	return c, nil
}

func (c *WSChannel) readLoop() {
	for {
		var env wsEnvelope
		if err := c.conn.ReadJSON(&env); err != nil {
			c.shutdown()
			return
		}
		c.mu.Lock()
		fn := c.handlers[env.Topic]
		c.mu.Unlock()
		if fn != nil {
			fn(env.Topic, []byte(env.Payload))
		}
	}
}

func (c *WSChannel) send(env wsEnvelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(env)
}

// Subscribe registers fn for the topic and tells the relay to start
// forwarding it. No-op after the connection is closed.
func (c *WSChannel) Subscribe(topic string, fn Handler) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if _, ok := c.handlers[topic]; ok {
		c.mu.Unlock()
		return fmt.Errorf("signal: already subscribed to %q", topic)
	}
	c.handlers[topic] = fn
	c.mu.Unlock()

	if err := c.send(wsEnvelope{Cmd: "subscribe", Topic: topic}); err != nil {
		c.mu.Lock()
		delete(c.handlers, topic)
		c.mu.Unlock()
		return fmt.Errorf("signal: subscribe %q: %w", topic, err)
	}
	return nil
}

// Unsubscribe drops the topic handler. No-op if not subscribed or closed.
func (c *WSChannel) Unsubscribe(topic string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if _, ok := c.handlers[topic]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.handlers, topic)
	c.mu.Unlock()

	_ = c.send(wsEnvelope{Cmd: "unsubscribe", Topic: topic})
}

// Publish sends data to every other subscriber of the topic.
// No-op after the connection is closed.
func (c *WSChannel) Publish(topic string, data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.send(wsEnvelope{Cmd: "publish", Topic: topic, Payload: json.RawMessage(data)})
}

func (c *WSChannel) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.handlers = make(map[string]Handler)
	c.mu.Unlock()
	_ = c.conn.Close()
}

// Close tears the relay connection down. Idempotent.
func (c *WSChannel) Close() error {
	c.shutdown()
	return nil
}
