package broadcast

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/lucasmnrd/requestline/pkg/logger"
)

// Delivery is one notification routed to either a room or a single channel.
type Delivery struct {
	// RoomID is set for room broadcasts, ChannelID for unicasts. Exactly
	// one of the two is non-empty.
	RoomID    string
	ChannelID string
	Envelope  Envelope
}

// Subscriber receives everything the gateway publishes. The websocket hub
// runs one subscriber and fans deliveries out to connected sockets.
type Subscriber struct {
	cli *redis.Client
	l   logger.Logger
}

func NewSubscriber(cli *redis.Client, l logger.Logger) *Subscriber {
	return &Subscriber{cli: cli, l: l}
}

// Listen subscribes to all room and unicast channels and invokes handle for
// every delivery until ctx is cancelled. Malformed messages are dropped.
func (s *Subscriber) Listen(ctx context.Context, handle func(Delivery)) error {
	sub := s.cli.PSubscribe(ctx, roomChannelPrefix+"*", unicastChannelPrefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				s.l.Warnf(ctx, "broadcast.Subscriber.Listen: dropping malformed message: %v", err)
				continue
			}

			d := Delivery{Envelope: env}
			switch {
			case strings.HasPrefix(msg.Channel, roomChannelPrefix):
				d.RoomID = strings.TrimPrefix(msg.Channel, roomChannelPrefix)
			case strings.HasPrefix(msg.Channel, unicastChannelPrefix):
				d.ChannelID = strings.TrimPrefix(msg.Channel, unicastChannelPrefix)
			default:
				continue
			}

			handle(d)
		}
	}
}
