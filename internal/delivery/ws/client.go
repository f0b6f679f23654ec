package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lucasmnrd/requestline/internal/broadcast"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
	sendBuffer     = 64
)

// Client is one connected socket. Its channelID doubles as the identity
// requests and rate limit counters are keyed by; a reconnect gets a fresh
// channelID and with it a fresh rate limit window.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	channelID string
	eventID   string

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

// enqueue hands a frame to the write pump. Slow consumers drop frames
// rather than stall the hub, and frames arriving after the socket is
// unregistered are dropped. Action handlers run in their own goroutines
// and may outlive the connection, so the closed check and the send must
// happen under the same lock as closeSend.
func (c *Client) enqueue(raw []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- raw:
	default:
	}
}

// closeSend shuts the write pump down. Idempotent.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// emit serializes a notification and queues it on this client only.
func (c *Client) emit(name string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	env, err := json.Marshal(broadcast.Envelope{Name: name, Payload: raw})
	if err != nil {
		return
	}
	c.enqueue(env)
}

func (c *Client) readPump(ctx context.Context, h *Handler) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.l.Warnf(ctx, "ws.Client.readPump: channel %s: %v", c.channelID, err)
			}
			return
		}
		h.dispatch(ctx, c, raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case raw, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
