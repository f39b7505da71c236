package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"kb-assistant/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Bus is the in-process event bus. Domain code publishes here; the consumer
// service fans events out to websockets and NATS. Publish returns once every
// subscriber acked, so subscribers must never publish back onto the bus.
type Bus struct {
	pubSub *gochannel.GoChannel
	topic  string
}

// envelope is the wire form of an event on the bus
type envelope struct {
	Type       string                 `json:"type"`
	Data       map[string]interface{} `json:"data"`
	OccurredAt time.Time              `json:"occurred_at"`
}

func New(topic string, logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Bus{
		// Blocking until ack keeps per-session event order intact
		pubSub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            256,
			BlockPublishUntilSubscriberAck: true,
		}, logger),
		topic: topic,
	}
}

func (b *Bus) Topic() string {
	return b.topic
}

// Publish implements events.Publisher
func (b *Bus) Publish(ctx context.Context, event events.Event) error {
	payload, err := Encode(event)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", event.EventType())
	if err := b.pubSub.Publish(b.topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.EventType(), err)
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubSub.Subscribe(ctx, b.topic)
}

func (b *Bus) Close() error {
	return b.pubSub.Close()
}

func Encode(event events.Event) ([]byte, error) {
	data, err := json.Marshal(envelope{
		Type:       event.EventType(),
		Data:       event.Payload(),
		OccurredAt: event.Timestamp(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %s: %w", event.EventType(), err)
	}
	return data, nil
}

func Decode(payload []byte) (events.BaseEvent, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return events.BaseEvent{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if env.Data == nil {
		env.Data = map[string]interface{}{}
	}
	return events.BaseEvent{Type: env.Type, Data: env.Data, OccurredAt: env.OccurredAt}, nil
}
