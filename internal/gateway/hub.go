// Package gateway serves the dashboard: REST endpoints over the rule,
// holding and reading stores, plus a WebSocket feed that fans alert events
// and live RSI readings out to connected clients as they arrive on the
// Redis channels.
package gateway

import (
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"momentum-systemv1/internal/metrics"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Hub tracks connected WebSocket clients and fans alert envelopes out to
// them. A client that cannot keep up is dropped rather than allowed to
// stall the feed for everyone else.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64

	replay *ReplayBuffer
	prom   *metrics.Metrics
}

// NewHub creates a hub whose replay buffer holds up to replayCap events.
// prom may be nil.
func NewHub(replayCap int, prom *metrics.Metrics) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		replay:  NewReplayBuffer(replayCap),
		prom:    prom,
	}
}

// HandleWS upgrades the connection, registers the client and queues the
// replay buffer so a fresh client sees recent events ahead of live traffic.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade: %v", err)
		return
	}

	client := &Client{hub: h, conn: conn, send: make(chan []byte, 256)}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.setClientGauge(count)
	log.Printf("[gateway] ws client connected (%d total)", count)

	for _, env := range h.replay.Recent(0) {
		select {
		case client.send <- env:
		default:
		}
	}

	go client.writePump()
	go client.readPump()
}

// BroadcastEvent envelopes one alert payload (already JSON) and fans it out
// to every connected client, retaining it for replay.
func (h *Hub) BroadcastEvent(data []byte) {
	seq := h.nextSeq()
	env := buildEnvelope("alert", data, time.Now().UTC(), seq)
	h.replay.Push(seq, env)
	h.fanOut(env)
}

// BroadcastReading fans one RSI reading out to every connected client.
// Readings skip the replay buffer: a fresh client gets its starting picture
// from the snapshot endpoints, not from stale frames.
func (h *Hub) BroadcastReading(data []byte) {
	env := buildEnvelope("rsi", data, time.Now().UTC(), h.nextSeq())
	h.fanOut(env)
}

func (h *Hub) nextSeq() int64 {
	h.mu.Lock()
	h.seq++
	seq := h.seq
	h.mu.Unlock()
	return seq
}

func (h *Hub) fanOut(env []byte) {
	var slow []*Client
	h.mu.RLock()
	for client := range h.clients {
		select {
		case client.send <- env:
			if h.prom != nil {
				h.prom.WSMessagesSent.Inc()
			}
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.Printf("[gateway] dropping slow ws client")
		if h.prom != nil {
			h.prom.WSDroppedClients.Inc()
		}
		h.RemoveClient(c)
		c.conn.Close()
	}
}

// RemoveClient unregisters a client and closes its send channel. Safe to
// call more than once for the same client.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	_, registered := h.clients[c]
	if registered {
		delete(h.clients, c)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if !registered {
		return
	}
	close(c.send)
	h.setClientGauge(count)
	log.Printf("[gateway] ws client disconnected (%d total)", count)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) setClientGauge(n int) {
	if h.prom != nil {
		h.prom.WSClients.Set(float64(n))
	}
}

// buildEnvelope hand-crafts the wire JSON. Payloads are already encoded, so
// this skips a re-marshal on every fan-out. seq lets clients spot gaps.
func buildEnvelope(msgType string, data []byte, ts time.Time, seq int64) []byte {
	buf := make([]byte, 0, len(msgType)+len(data)+96)
	buf = append(buf, `{"type":"`...)
	buf = append(buf, msgType...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = ts.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')
	return buf
}
