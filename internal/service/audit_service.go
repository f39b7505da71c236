package service

import (
	"context"

	"kb-assistant/internal/pkg/logger"
	"kb-assistant/pkg/events"
	pktNats "kb-assistant/pkg/nats"
)

const auditDurableName = "kb-assistant-audit"

// EventStream is the durable side of the NATS mirror
type EventStream interface {
	Subscribe(ctx context.Context, subject, durableName string, handler pktNats.EventHandler) error
}

type IAuditService interface {
	Start(ctx context.Context) error
}

// auditService writes every mirrored domain event to the system log
type auditService struct {
	stream EventStream
	logger logger.ILogger
}

func NewAuditService(stream EventStream, log logger.ILogger) IAuditService {
	return &auditService{stream: stream, logger: log}
}

func (s *auditService) Start(ctx context.Context) error {
	return s.stream.Subscribe(ctx, pktNats.SubjectPrefix+".>", auditDurableName, s.handle)
}

func (s *auditService) handle(ctx context.Context, event events.Event) error {
	details := map[string]interface{}{
		"type":        event.EventType(),
		"session_id":  events.SessionID(event),
		"occurred_at": event.Timestamp(),
	}
	for _, key := range []string{"name", "total_chunks", "fragments", "query"} {
		if v, ok := event.Payload()[key]; ok {
			details[key] = v
		}
	}
	s.logger.Info("AUDIT", "Domain event", details)
	return nil
}
