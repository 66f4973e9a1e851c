package relay

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub is the shared connection point of the relay channel. Every text frame
// received from one peer is fanned out to all other connected peers, never
// back to the sender. Peers that send malformed JSON keep their connection;
// the frame is logged and dropped.
type Hub struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	peers map[*peer]struct{}
}

type peer struct {
	conn *websocket.Conn
	// serializes writes so fan-out from concurrent senders cannot interleave
	// a single frame
	writeMu sync.Mutex
}

func (p *peer) write(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Producer and cashier pages are served from the same host;
				// allow any origin for local setups.
				return true
			},
		},
		peers: make(map[*peer]struct{}),
	}
}

// Serve upgrades the request to a WebSocket and runs the peer's read loop
// until the connection closes. One goroutine per peer reads frames in order,
// so per-sender delivery order is preserved.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("relay: ws upgrade error: %v", err)
		return err
	}
	p := &peer{conn: conn}
	h.add(p)
	defer func() {
		h.remove(p)
		_ = conn.Close()
	}()
	log.Printf("relay: peer connected (%d total)", h.PeerCount())

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			log.Printf("relay: peer disconnected: %v", err)
			return nil
		}
		if mt != websocket.TextMessage {
			continue
		}
		if !json.Valid(data) {
			log.Printf("relay: dropping malformed frame (%d bytes)", len(data))
			continue
		}
		h.broadcast(p, data)
	}
}

func (h *Hub) add(p *peer) {
	h.mu.Lock()
	h.peers[p] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(p *peer) {
	h.mu.Lock()
	delete(h.peers, p)
	h.mu.Unlock()
}

// PeerCount returns the number of connected peers.
func (h *Hub) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// broadcast delivers data to every peer except the sender. A failed write
// only affects that peer; its own read loop will tear the connection down.
func (h *Hub) broadcast(sender *peer, data []byte) {
	h.mu.Lock()
	targets := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		if p != sender {
			targets = append(targets, p)
		}
	}
	h.mu.Unlock()

	for _, p := range targets {
		if err := p.write(data); err != nil {
			log.Printf("relay: write to peer failed: %v", err)
		}
	}
}
