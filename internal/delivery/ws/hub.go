// Package ws is the realtime transport: a gorilla/websocket hub with
// per-event rooms and per-channel unicast. Every notification reaches the
// hub through the broadcast subscriber, so fan-out behaves the same no
// matter which process produced it.
package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/lucasmnrd/requestline/internal/broadcast"
	"github.com/lucasmnrd/requestline/pkg/logger"
)

type Hub struct {
	sub *broadcast.Subscriber
	l   logger.Logger

	mu       sync.RWMutex
	channels map[string]*Client              // channelID -> client
	rooms    map[string]map[*Client]struct{} // eventID -> members
}

func NewHub(sub *broadcast.Subscriber, l logger.Logger) *Hub {
	return &Hub{
		sub:      sub,
		l:        l,
		channels: make(map[string]*Client),
		rooms:    make(map[string]map[*Client]struct{}),
	}
}

// Run consumes the broadcast subscriber until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	return h.sub.Listen(ctx, h.deliver)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.channels[c.channelID] = c
	h.mu.Unlock()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.channels, c.channelID)
	if c.eventID != "" {
		if room, ok := h.rooms[c.eventID]; ok {
			delete(room, c)
			if len(room) == 0 {
				delete(h.rooms, c.eventID)
			}
		}
	}
	h.mu.Unlock()

	c.closeSend()
}

// join moves the client into an event room. A client belongs to at most
// one room; joining again replaces the previous membership.
func (h *Hub) join(c *Client, eID string) {
	h.mu.Lock()
	if c.eventID != "" && c.eventID != eID {
		if room, ok := h.rooms[c.eventID]; ok {
			delete(room, c)
			if len(room) == 0 {
				delete(h.rooms, c.eventID)
			}
		}
	}
	c.eventID = eID
	room, ok := h.rooms[eID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[eID] = room
	}
	room[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) deliver(d broadcast.Delivery) {
	raw, err := json.Marshal(d.Envelope)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if d.ChannelID != "" {
		if c, ok := h.channels[d.ChannelID]; ok {
			c.enqueue(raw)
		}
		return
	}

	for c := range h.rooms[d.RoomID] {
		c.enqueue(raw)
	}
}
