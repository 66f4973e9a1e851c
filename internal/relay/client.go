package relay

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ReconnectDelay is the fixed interval between redial attempts. There is no
// backoff growth and no retry cap.
const ReconnectDelay = 3 * time.Second

// ErrDisconnected is returned by Send while the endpoint has no live
// connection. Messages sent during a disconnected interval are lost by
// design; reconnection does not replay them.
var ErrDisconnected = errors.New("relay: not connected")

// Scheduler defers a callback by a delay. The production implementation uses
// time.AfterFunc; tests inject their own to drive redials deterministically.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func())
}

type timerScheduler struct{}

func (timerScheduler) AfterFunc(d time.Duration, fn func()) { time.AfterFunc(d, fn) }

// Client is one endpoint of the relay channel, producer or consumer. It dials
// the hub, delivers inbound messages to the registered handler in arrival
// order, and redials forever at a fixed interval after an unexpected close.
type Client struct {
	url     string
	dialer  websocket.Dialer
	sched   Scheduler
	handler func(Message)

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	closed  bool
}

// NewClient constructs a Client for the given ws:// or wss:// URL.
func NewClient(url string) *Client {
	return &Client{
		url:    url,
		dialer: websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		sched:  timerScheduler{},
	}
}

// WithScheduler replaces the redial scheduler. Call before Connect.
func (c *Client) WithScheduler(s Scheduler) *Client {
	c.sched = s
	return c
}

// OnReceive registers the inbound message handler. Call before Connect. The
// handler is invoked once per delivered message, in the sender's send order.
func (c *Client) OnReceive(fn func(Message)) {
	c.handler = fn
}

// Connect dials the hub and starts the read loop. A failed dial is not fatal:
// it is logged and retried on the fixed schedule, matching the behavior of an
// unexpected close.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("relay: client closed")
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	c.redial()
	return nil
}

func (c *Client) redial() {
	c.mu.Lock()
	if c.closed || c.conn != nil {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	conn, resp, err := c.dialer.Dial(c.url, nil)
	if err != nil {
		if resp != nil {
			log.Printf("relay: dial %s failed with status %d: %v", c.url, resp.StatusCode, err)
		} else {
			log.Printf("relay: dial %s failed: %v", c.url, err)
		}
		c.sched.AfterFunc(ReconnectDelay, c.redial)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()
	log.Printf("relay: connected to %s", c.url)
	go c.readLoop(conn)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				log.Printf("relay: connection lost, retrying in %s: %v", ReconnectDelay, err)
				c.sched.AfterFunc(ReconnectDelay, c.redial)
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("relay: dropping malformed message: %v", err)
			continue
		}
		if c.handler != nil {
			c.handler(msg)
		}
	}
}

// Send delivers a message to all other connected peers via the hub.
func (c *Client) Send(msg Message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrDisconnected
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Connected reports whether a live connection exists.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close shuts the endpoint down and stops further redials.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}
