package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"kb-assistant/internal/constant"
	"kb-assistant/internal/metrics"
	"kb-assistant/internal/pkg/logger"
	"kb-assistant/pkg/events"
	"kb-assistant/pkg/gateway"
	"kb-assistant/pkg/rag/fragment"
	"kb-assistant/pkg/store"

	"github.com/google/uuid"
)

const logModule = "CHAT"

var ErrEmptyMessage = errors.New("message must not be empty")

// Backend is the part of the gateway the pipeline needs
type Backend interface {
	Chat(ctx context.Context, req gateway.ChatRequest) (*gateway.ChatResponse, error)
}

// Exchange is one question/answer round. When the backend failed, Reply carries the
// fallback text and Err the cause. Discarded is set when the knowledge base changed
// while the answer was pending; the reply was not recorded.
type Exchange struct {
	Sent      store.Message `json:"sent"`
	Reply     store.Message `json:"reply"`
	Failed    bool          `json:"failed"`
	Discarded bool          `json:"discarded,omitempty"`
	Err       error         `json:"-"`
}

type Pipeline struct {
	backend     Backend
	publisher   events.Publisher
	logger      logger.ILogger
	defaultTopK int
}

func NewPipeline(backend Backend, publisher events.Publisher, log logger.ILogger, defaultTopK int) *Pipeline {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	if defaultTopK < 1 {
		defaultTopK = constant.DefaultTopK
	}
	return &Pipeline{
		backend:     backend,
		publisher:   publisher,
		logger:      log,
		defaultTopK: defaultTopK,
	}
}

// SendMessage records the user's message, asks the backend and records the answer.
// Backend failures never surface as an error: the reply degrades to the fallback text.
func (p *Pipeline) SendMessage(ctx context.Context, sess *store.Session, text string) (*Exchange, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	kb, generation := sess.KnowledgeBaseGeneration()
	sent := store.Message{
		ID:        uuid.NewString(),
		Content:   text,
		IsUser:    true,
		CreatedAt: time.Now(),
	}
	sess.AppendMessage(sent)

	sess.SetChatLoading(true)
	defer sess.SetChatLoading(false)

	req := gateway.ChatRequest{Query: text, TopK: p.defaultTopK}
	if kb != nil {
		name := kb.Name
		req.KBName = &name
		req.TopK = kb.TopK
	}

	resp, err := p.backend.Chat(ctx, req)
	if err != nil {
		p.logger.Error(logModule, "Chat request failed", map[string]interface{}{
			"session_id": sess.ID,
			"timeout":    gateway.IsTimeout(err),
			"error":      err.Error(),
		})
		reply := store.Message{
			ID:        uuid.NewString(),
			Content:   constant.ChatFallbackAnswer,
			CreatedAt: time.Now(),
		}
		if !sess.AppendMessageIf(generation, reply) {
			p.discarded(sess.ID)
			return &Exchange{Sent: sent, Reply: reply, Failed: true, Discarded: true, Err: err}, nil
		}
		p.publish(ctx, events.NewNotification(sess.ID, events.LevelError, constant.ChatFailedNotice))
		return &Exchange{Sent: sent, Reply: reply, Failed: true, Err: err}, nil
	}

	reply := store.Message{
		ID:        uuid.NewString(),
		Content:   resp.Answer,
		CreatedAt: time.Now(),
	}
	if fragments := fragment.FromSources(resp.Sources); len(fragments) > 0 {
		reply.DocumentFragments = fragments
	}
	if !sess.AppendMessageIf(generation, reply) {
		p.discarded(sess.ID)
		return &Exchange{Sent: sent, Reply: reply, Discarded: true}, nil
	}
	metrics.RetrievedFragments.Observe(float64(len(reply.DocumentFragments)))

	p.logger.Info(logModule, "Answer received", map[string]interface{}{
		"session_id": sess.ID,
		"knowledge":  req.KBName != nil,
		"fragments":  len(reply.DocumentFragments),
	})
	p.publish(ctx, events.NewSessionEvent(events.TypeChatAnswered, sess.ID, map[string]interface{}{
		"message_id": reply.ID,
		"fragments":  len(reply.DocumentFragments),
	}))
	return &Exchange{Sent: sent, Reply: reply}, nil
}

func (p *Pipeline) discarded(sessionID string) {
	p.logger.Warn(logModule, "Knowledge base changed while answering, reply dropped", map[string]interface{}{
		"session_id": sessionID,
	})
}

func (p *Pipeline) publish(ctx context.Context, e events.Event) {
	if err := p.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
		p.logger.Warn(logModule, "Failed to publish event", map[string]interface{}{
			"type":  e.EventType(),
			"error": err.Error(),
		})
	}
}
