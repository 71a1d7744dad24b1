// Package broadcast fans score and pool updates out to websocket
// subscribers. The hub is non-blocking end to end: producers never wait on
// subscribers, and a subscriber that cannot keep up is disconnected rather
// than served a silently gapped stream. The reconnect replays a full
// snapshot, so a dropped client always comes back consistent.
package broadcast

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"solana-vote-tracker/internal/observability"
)

const (
	// Write deadline. After a write has timed out, the websocket state is
	// corrupt and all future writes will return an error.
	writeDeadline = 3 * time.Second

	// Per-client frame buffer. A client whose buffer is full is dropped.
	clientBuffer = 32

	// Hub inbox. Producers drop frames when the hub itself is this far
	// behind, which only happens if the hub goroutine is stuck.
	hubBuffer = 256
)

// wsConn is the subset of *websocket.Conn the hub needs. Narrowed for
// test fakes.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	NextReader() (messageType int, r io.Reader, err error)
	Close() error
	RemoteAddr() net.Addr
}

// Hub tracks subscribers and fans frames out to them.
type Hub struct {
	register   chan *client
	unregister chan *client
	resync     chan *client
	broadcast  chan []byte
	clients    map[*client]struct{}
	count      atomic.Int32
	done       chan struct{}
	log        *logrus.Entry
}

// NewHub creates a Hub. Call Run before serving connections.
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		resync:     make(chan *client),
		broadcast:  make(chan []byte, hubBuffer),
		clients:    make(map[*client]struct{}),
		done:       make(chan struct{}),
		log:        logrus.WithField("process", "broadcast"),
	}
}

// Run is the hub's main loop. It owns the clients set; register,
// unregister and fan-out all happen here, so no locking is needed.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for c := range h.clients {
			close(c.send)
		}
		h.clients = make(map[*client]struct{})
		h.count.Store(0)
		observability.UpdateBroadcastClients(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int32(len(h.clients)))
			observability.UpdateBroadcastClients(len(h.clients))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.count.Store(int32(len(h.clients)))
				observability.UpdateBroadcastClients(len(h.clients))
			}
		case c := <-h.resync:
			h.queueSnapshot(c)
		case frame := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- frame:
				default:
					// Stalled subscriber: drop it. Losing frames
					// instead would leave the client diverged with no
					// signal; the reconnect snapshot restores a
					// consistent view.
					h.drop(c)
					observability.RecordBroadcastDropped()
				}
			}
		}
	}
}

// queueSnapshot replays the full snapshot to one client's send buffer.
// A client without room for its own snapshot is stalled and gets dropped.
// Hub goroutine only.
func (h *Hub) queueSnapshot(c *client) {
	if _, ok := h.clients[c]; !ok || c.snapshot == nil {
		return
	}
	for _, frame := range c.snapshot() {
		select {
		case c.send <- frame:
		default:
			h.drop(c)
			observability.RecordBroadcastDropped()
			return
		}
	}
}

// drop removes a client and closes its send channel. Hub goroutine only.
func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	h.count.Store(int32(len(h.clients)))
	observability.UpdateBroadcastClients(len(h.clients))
	h.log.WithField("client", c.id).Warn("subscriber stalled, dropping")
}

// ClientCount reports the number of connected subscribers.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Broadcast queues a frame for fan-out. Never blocks; the frame is dropped
// if the hub inbox is full.
func (h *Hub) Broadcast(messageType string, frame []byte) {
	select {
	case h.broadcast <- frame:
		observability.RecordBroadcast(messageType)
	default:
		h.log.WithField("type", messageType).Warn("hub inbox full, frame dropped")
		observability.RecordBroadcastDropped()
	}
}

// ServeConn registers a connection and pumps frames until it closes.
// snapshot produces the full-state frames queued before the client sees
// any broadcast, so every new subscriber has a baseline to diff against;
// it is called again whenever the peer requests a resync. May be nil.
// Blocks until the peer disconnects.
func (h *Hub) ServeConn(conn wsConn, snapshot func() [][]byte) {
	var initial [][]byte
	if snapshot != nil {
		initial = snapshot()
	}

	c := &client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, clientBuffer+len(initial)),
		snapshot: snapshot,
		id:       conn.RemoteAddr().String(),
	}
	for _, frame := range initial {
		c.send <- frame
	}

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writeLoop()
	c.readLoop()
}
