package broadcast

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

type client struct {
	hub *Hub
	// data to be sent as a websocket.TextMessage frame
	// closing send terminates the write loop
	send chan []byte
	conn wsConn
	// snapshot rebuilds the full-state frames for resync requests
	snapshot func() [][]byte
	id       string
}

func (c *client) writeLoop() {
	defer func() {
		// rfc6455#section-5.3: close handshake before dropping TCP.
		_ = c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(time.Second))
		_ = c.conn.Close()
	}()

	for frame := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
			c.hub.log.WithField("client", c.id).WithError(err).Debug("set write deadline failed")
			break
		}

		// No ping cycle: frames flow on a regular basis, so a failed
		// write is the liveness signal.
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			c.hub.log.WithField("client", c.id).WithError(err).Debug("client write failed")
			break
		}
	}
}

// readLoop consumes inbound messages until the peer goes away. The only
// request a peer can make is {"type":"resync"}, which requeues the full
// snapshot instead of forcing a reconnect; everything else is drained and
// ignored.
func (c *client) readLoop() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
	}()

	for {
		_, r, err := c.conn.NextReader()
		if err != nil {
			return
		}

		var req struct {
			Type string `json:"type"`
		}
		if err := json.NewDecoder(r).Decode(&req); err != nil || req.Type != "resync" {
			continue
		}

		// The hub owns the send channel, so the replay has to happen on
		// its goroutine; queueing here could race its close of the channel.
		select {
		case c.hub.resync <- c:
		case <-c.hub.done:
			return
		}
	}
}
