package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"rapidride/internal/domain"
)

const (
	rideChannelPrefix = "relay:ride:"
	roleChannelPrefix = "relay:role:"
	seqKeyPrefix      = "relay:seq:"
)

// EventSink receives events fanned out by the bus on this instance.
type EventSink interface {
	DeliverToRide(e domain.Event, seq int64)
	DeliverToRole(role domain.Role, e domain.Event)
}

type busMessage struct {
	Name   domain.EventName `json:"name"`
	RideID string           `json:"rideId,omitempty"`
	Seq    int64            `json:"seq,omitempty"`
	Data   map[string]any   `json:"data"`
}

// EventBus carries relay events between instances over Redis Pub/Sub.
// Per-ride sequence numbers come from a shared counter so every instance
// stamps the same order.
type EventBus struct {
	client *redis.Client
	logger *slog.Logger
}

// NewEventBus creates a new EventBus.
func NewEventBus(client *redis.Client, logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{client: client, logger: logger}
}

// Publish stamps e with the next sequence number of its ride and publishes
// it to the ride's channel.
func (b *EventBus) Publish(ctx context.Context, e domain.Event) error {
	seq, err := b.client.Incr(ctx, seqKeyPrefix+e.RideID).Result()
	if err != nil {
		return fmt.Errorf("next seq for ride %s: %w", e.RideID, err)
	}
	return b.publish(ctx, rideChannelPrefix+e.RideID, newBusMessage(e, seq))
}

// PublishRole publishes e to every connection of role across instances.
func (b *EventBus) PublishRole(ctx context.Context, role domain.Role, e domain.Event) error {
	return b.publish(ctx, roleChannelPrefix+string(role), newBusMessage(e, 0))
}

func newBusMessage(e domain.Event, seq int64) busMessage {
	return busMessage{Name: e.Name, RideID: e.RideID, Seq: seq, Data: e.Data}
}

func (b *EventBus) publish(ctx context.Context, channel string, msg busMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channel, payload).Err()
}

// Run subscribes to all relay channels and hands each message to sink until
// ctx is cancelled.
func (b *EventBus) Run(ctx context.Context, sink EventSink) error {
	sub := b.client.PSubscribe(ctx, rideChannelPrefix+"*", roleChannelPrefix+"*")
	defer sub.Close()

	// Wait for the subscription to be confirmed before reporting ready.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe relay channels: %w", err)
	}
	b.logger.Info("relay event bus subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			b.dispatch(m, sink)
		}
	}
}

func (b *EventBus) dispatch(m *redis.Message, sink EventSink) {
	var msg busMessage
	if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
		b.logger.Warn("relay bus message dropped", "channel", m.Channel, "error", err)
		return
	}
	e := domain.Event{Name: msg.Name, RideID: msg.RideID, Data: msg.Data}

	switch {
	case strings.HasPrefix(m.Channel, rideChannelPrefix):
		sink.DeliverToRide(e, msg.Seq)
	case strings.HasPrefix(m.Channel, roleChannelPrefix):
		role, ok := domain.ParseRole(strings.TrimPrefix(m.Channel, roleChannelPrefix))
		if !ok {
			b.logger.Warn("relay bus role unknown", "channel", m.Channel)
			return
		}
		sink.DeliverToRole(role, e)
	}
}
