package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client is one websocket connection. The fields below mu are owned by
// the connection's read goroutine.
type Client struct {
	ID   string
	Send chan []byte

	hub  *Hub
	conn *websocket.Conn

	// authParty is the party proven by the handshake token, if any.
	authParty string

	partyID  string
	role     string
	roomID   string
	roomRole string

	mu     sync.Mutex
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, authParty string, sendBuffer int) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Client{
		ID:        uuid.NewString(),
		Send:      make(chan []byte, sendBuffer),
		hub:       hub,
		conn:      conn,
		authParty: authParty,
	}
}

func (c *Client) PartyID() string {
	return c.partyID
}

// Deliver queues msg without blocking. A full queue marks the client as
// a slow consumer: the message is dropped and the client is closed.
func (c *Client) Deliver(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- msg:
		return true
	default:
		c.closed = true
		close(c.Send)
		c.hub.slowConsumer(c)
		return false
	}
}

// Close stops the write pump, which closes the connection. Safe to call
// more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

func (c *Client) sendEvent(ev Event) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		c.hub.logger.Error().Err(err).Str("type", ev.Type).Msg("failed to encode event")
		return false
	}
	return c.Deliver(data)
}

// ReadPump reads messages from the connection and dispatches them to
// the hub. It drives the disconnect path when the connection ends.
func (c *Client) ReadPump() {
	defer c.hub.Disconnect(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.hub.heartbeat(c)
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn().Err(err).Str("client_id", c.ID).Str("party_id", c.partyID).Msg("websocket closed unexpectedly")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.hub.sendError(c, "", ErrCodeBadMessage, "message is not valid JSON")
			continue
		}
		c.hub.Dispatch(c, msg)
	}
}

// WritePump writes queued events to the connection and pings the peer.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
