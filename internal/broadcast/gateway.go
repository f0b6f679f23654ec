// Package broadcast is the boundary between the coordination engine and the
// real-time transport. The engine publishes room and channel notifications
// through the Gateway; the websocket hub consumes them via a Subscriber.
// Delivery is best-effort and at-most-once: a channel that joins after a
// broadcast never receives it and must fetch current state on join.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/lucasmnrd/requestline/pkg/logger"
)

const (
	roomChannelPrefix    = "requestline:room:"
	unicastChannelPrefix = "requestline:chan:"
)

// Envelope is the serialized form of one notification.
type Envelope struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

type Gateway interface {
	// Broadcast delivers to every channel currently joined to the event's
	// room.
	Broadcast(ctx context.Context, eID, name string, payload any) error
	// Unicast delivers to a single channel.
	Unicast(ctx context.Context, channelID, name string, payload any) error
}

type redisGateway struct {
	cli *redis.Client
	l   logger.Logger
}

func NewRedisGateway(cli *redis.Client, l logger.Logger) Gateway {
	return &redisGateway{cli: cli, l: l}
}

func (g *redisGateway) Broadcast(ctx context.Context, eID, name string, payload any) error {
	return g.publish(ctx, roomChannelPrefix+eID, name, payload)
}

func (g *redisGateway) Unicast(ctx context.Context, channelID, name string, payload any) error {
	return g.publish(ctx, unicastChannelPrefix+channelID, name, payload)
}

func (g *redisGateway) publish(ctx context.Context, channel, name string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	data, err := json.Marshal(Envelope{Name: name, Payload: raw})
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := g.cli.Publish(ctx, channel, data).Err(); err != nil {
		g.l.Errorf(ctx, "redisGateway.publish: %v", err)
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	return nil
}
