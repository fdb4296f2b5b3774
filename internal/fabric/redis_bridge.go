package fabric

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultBridgeChannel is the pub/sub channel shared by all pods.
const DefaultBridgeChannel = "sitewatch:fabric"

// envelope is the cross-pod wire shape. Origin lets each pod skip its own
// publications; without it every broadcast would be delivered twice
// locally.
type envelope struct {
	Origin string          `json:"origin"`
	Rooms  []string        `json:"rooms"`
	Frame  json.RawMessage `json:"frame"`
}

// RedisBridge carries room broadcasts between processes over Redis
// pub/sub. Each pod delivers a received frame only to its own in-process
// room members.
type RedisBridge struct {
	client  *redis.Client
	channel string
	origin  string
	bus     *Bus
	pubsub  *redis.PubSub
	cancel  context.CancelFunc
	logger  *slog.Logger
}

// NewRedisBridge wires the bridge onto the bus and starts the subscriber.
// An empty channel uses DefaultBridgeChannel.
func NewRedisBridge(client *redis.Client, channel string, bus *Bus) *RedisBridge {
	if channel == "" {
		channel = DefaultBridgeChannel
	}
	ctx, cancel := context.WithCancel(context.Background())
	rb := &RedisBridge{
		client:  client,
		channel: channel,
		origin:  uuid.New().String(),
		bus:     bus,
		pubsub:  client.Subscribe(ctx, channel),
		cancel:  cancel,
		logger:  slog.Default().With("component", "redis-bridge"),
	}
	bus.SetBridge(rb)
	go rb.listen(ctx)
	return rb
}

// Publish sends a frame to peer pods. A Redis outage degrades to
// local-only fan-out; the error is surfaced for logging but delivery to
// in-process members has already happened.
func (rb *RedisBridge) Publish(rooms []string, frame []byte) error {
	data, err := json.Marshal(envelope{Origin: rb.origin, Rooms: rooms, Frame: frame})
	if err != nil {
		return err
	}
	return rb.client.Publish(context.Background(), rb.channel, data).Err()
}

func (rb *RedisBridge) listen(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-rb.pubsub.Channel():
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				rb.logger.Warn("bad envelope", "error", err)
				continue
			}
			if env.Origin == rb.origin {
				continue
			}
			rb.bus.deliverLocal(env.Rooms, env.Frame)
		}
	}
}

// Close stops the subscriber.
func (rb *RedisBridge) Close() error {
	rb.cancel()
	return rb.pubsub.Close()
}
