package service

import (
	"context"

	"kb-assistant/internal/pkg/logger"
	"kb-assistant/pkg/eventbus"
	"kb-assistant/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
)

// NotificationDelivery pushes real-time updates to presentation clients.
// Typically implemented by the WebSocket Hub.
type NotificationDelivery interface {
	Send(sessionID string, event events.Event)
	Broadcast(event events.Event)
}

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// mirroredTypes are the domain events worth sharing outside this process.
// UI chatter (toasts, progress ticks) stays local.
var mirroredTypes = map[string]bool{
	events.TypeKnowledgeBaseCreated: true,
	events.TypeKnowledgeBaseDeleted: true,
	events.TypeChatAnswered:         true,
	events.TypeRecallCompleted:      true,
}

type consumerService struct {
	bus      *eventbus.Bus
	delivery NotificationDelivery
	mirror   events.Publisher
	logger   logger.ILogger
}

// NewConsumerService wires the bus to delivery. mirror may be nil when NATS is off.
func NewConsumerService(bus *eventbus.Bus, delivery NotificationDelivery, mirror events.Publisher, log logger.ILogger) IConsumerService {
	return &consumerService{
		bus:      bus,
		delivery: delivery,
		mirror:   mirror,
		logger:   log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.bus.Subscribe(ctx)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	// Every outcome is acked: in-process redelivery cannot fix a bad payload or a closed socket
	defer msg.Ack()

	event, err := eventbus.Decode(msg.Payload)
	if err != nil {
		cs.logger.Error("CONSUMER", "Failed to decode event", map[string]interface{}{"error": err.Error()})
		return
	}

	if sessionID := events.SessionID(event); sessionID != "" {
		cs.delivery.Send(sessionID, event)
	} else {
		cs.delivery.Broadcast(event)
	}

	if cs.mirror != nil && mirroredTypes[event.EventType()] {
		if err := cs.mirror.Publish(ctx, event); err != nil {
			cs.logger.Warn("CONSUMER", "Failed to mirror event", map[string]interface{}{
				"type":  event.EventType(),
				"error": err.Error(),
			})
		}
	}
}
