package service

import (
	"context"

	"kb-assistant/internal/constant"
	"kb-assistant/internal/dto"
	"kb-assistant/internal/pkg/logger"
	"kb-assistant/pkg/events"
	"kb-assistant/pkg/rag/chat"
	"kb-assistant/pkg/rag/recall"
	"kb-assistant/pkg/rag/session"
	"kb-assistant/pkg/store"
)

type ISessionService interface {
	Create(ctx context.Context) (*store.Snapshot, error)
	Show(ctx context.Context, sessionID string) (*store.Snapshot, error)
	Delete(ctx context.Context, sessionID string) error
	SendMessage(ctx context.Context, sessionID string, req *dto.ChatRequest) (*dto.ChatResponse, error)
	ClearMessages(ctx context.Context, sessionID string) error
	RunRecall(ctx context.Context, sessionID string, req *dto.RecallRequest) (*dto.RecallResponse, error)
	DeleteKnowledgeBase(ctx context.Context, sessionID string) error
}

type sessionService struct {
	sessions  *session.Manager
	chat      *chat.Pipeline
	recall    *recall.Tester
	publisher events.Publisher
	logger    logger.ILogger
}

func NewSessionService(
	sessions *session.Manager,
	chatPipeline *chat.Pipeline,
	recallTester *recall.Tester,
	publisher events.Publisher,
	log logger.ILogger,
) ISessionService {
	return &sessionService{
		sessions:  sessions,
		chat:      chatPipeline,
		recall:    recallTester,
		publisher: publisher,
		logger:    log,
	}
}

func (s *sessionService) Create(ctx context.Context) (*store.Snapshot, error) {
	snapshot := s.sessions.Create().Snapshot()
	return &snapshot, nil
}

func (s *sessionService) Show(ctx context.Context, sessionID string) (*store.Snapshot, error) {
	sess, err := s.sessions.Load(sessionID)
	if err != nil {
		return nil, err
	}
	snapshot := sess.Snapshot()
	return &snapshot, nil
}

func (s *sessionService) Delete(ctx context.Context, sessionID string) error {
	return s.sessions.Delete(sessionID)
}

func (s *sessionService) SendMessage(ctx context.Context, sessionID string, req *dto.ChatRequest) (*dto.ChatResponse, error) {
	sess, err := s.sessions.Load(sessionID)
	if err != nil {
		return nil, err
	}

	exchange, err := s.chat.SendMessage(ctx, sess, req.Query)
	if err != nil {
		return nil, err
	}
	return &dto.ChatResponse{
		Sent:   exchange.Sent,
		Reply:  exchange.Reply,
		Failed: exchange.Failed,
	}, nil
}

func (s *sessionService) ClearMessages(ctx context.Context, sessionID string) error {
	sess, err := s.sessions.Load(sessionID)
	if err != nil {
		return err
	}
	sess.ClearMessages()
	s.publish(ctx, events.NewNotification(sessionID, events.LevelInfo, constant.MessagesClearedNotice))
	return nil
}

func (s *sessionService) RunRecall(ctx context.Context, sessionID string, req *dto.RecallRequest) (*dto.RecallResponse, error) {
	sess, err := s.sessions.Load(sessionID)
	if err != nil {
		return nil, err
	}

	fragments, err := s.recall.RunRecallTest(ctx, sess, req.Query)
	if err != nil {
		return nil, err
	}
	return &dto.RecallResponse{Query: req.Query, Fragments: fragments}, nil
}

func (s *sessionService) DeleteKnowledgeBase(ctx context.Context, sessionID string) error {
	sess, err := s.sessions.Load(sessionID)
	if err != nil {
		return err
	}

	kb := sess.KnowledgeBase()
	sess.DeleteKnowledgeBase()
	if kb == nil {
		return nil
	}

	s.logger.Info("SESSION", "Knowledge base deleted", map[string]interface{}{
		"session_id": sessionID,
		"name":       kb.Name,
	})
	s.publish(ctx, events.NewSessionEvent(events.TypeKnowledgeBaseDeleted, sessionID, map[string]interface{}{"name": kb.Name}))
	s.publish(ctx, events.NewNotification(sessionID, events.LevelInfo, constant.KnowledgeBaseDeletedNotice))
	return nil
}

func (s *sessionService) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
		s.logger.Warn("SESSION", "Failed to publish event", map[string]interface{}{
			"type":  e.EventType(),
			"error": err.Error(),
		})
	}
}
