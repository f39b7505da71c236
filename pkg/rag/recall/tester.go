package recall

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kb-assistant/internal/constant"
	"kb-assistant/internal/metrics"
	"kb-assistant/internal/pkg/logger"
	"kb-assistant/pkg/events"
	"kb-assistant/pkg/gateway"
	"kb-assistant/pkg/rag/fragment"
	"kb-assistant/pkg/store"
)

const logModule = "RECALL"

var (
	ErrNoKnowledgeBase      = errors.New("no active knowledge base")
	ErrEmptyQuery           = errors.New("query must not be empty")
	ErrKnowledgeBaseChanged = errors.New("knowledge base changed while the recall was in flight")
)

// Backend is the part of the gateway the tester needs
type Backend interface {
	Recall(ctx context.Context, req gateway.RecallRequest) (*gateway.RecallResponse, error)
}

// Tester runs retrieval-only queries against the session's knowledge base
type Tester struct {
	backend   Backend
	publisher events.Publisher
	logger    logger.ILogger
}

func NewTester(backend Backend, publisher events.Publisher, log logger.ILogger) *Tester {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Tester{backend: backend, publisher: publisher, logger: log}
}

// RunRecallTest replaces the session's last retrieved fragments with the result of query.
// On failure the collection is cleared.
func (t *Tester) RunRecallTest(ctx context.Context, sess *store.Session, query string) ([]store.DocumentFragment, error) {
	kb, generation := sess.KnowledgeBaseGeneration()
	if kb == nil {
		t.notify(ctx, sess.ID, events.LevelError, constant.RecallNoKnowledgeBaseNotice)
		return nil, ErrNoKnowledgeBase
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	resp, err := t.backend.Recall(ctx, gateway.RecallRequest{
		KBName: kb.Name,
		Query:  query,
		TopK:   kb.TopK,
	})
	if err != nil {
		sess.ReplaceRetrievedFragmentsIf(generation, nil)
		t.logger.Error(logModule, "Recall failed", map[string]interface{}{
			"session_id": sess.ID,
			"kb_name":    kb.Name,
			"error":      err.Error(),
		})
		t.notify(ctx, sess.ID, events.LevelError, constant.RecallFailedNotice)
		return nil, err
	}

	fragments := fragment.FromSources(resp.Results)
	if !sess.ReplaceRetrievedFragmentsIf(generation, fragments) {
		t.logger.Warn(logModule, "Knowledge base changed while recalling, results dropped", map[string]interface{}{
			"session_id": sess.ID,
			"kb_name":    kb.Name,
		})
		return nil, ErrKnowledgeBaseChanged
	}
	metrics.RetrievedFragments.Observe(float64(len(fragments)))

	t.logger.Info(logModule, "Recall completed", map[string]interface{}{
		"session_id": sess.ID,
		"kb_name":    kb.Name,
		"fragments":  len(fragments),
	})
	t.notify(ctx, sess.ID, events.LevelSuccess, fmt.Sprintf(constant.RecallResultNoticeFormat, len(fragments)))
	t.publish(ctx, events.NewSessionEvent(events.TypeRecallCompleted, sess.ID, map[string]interface{}{
		"query":     query,
		"fragments": len(fragments),
	}))
	return fragments, nil
}

func (t *Tester) notify(ctx context.Context, sessionID string, level events.Level, message string) {
	t.publish(ctx, events.NewNotification(sessionID, level, message))
}

func (t *Tester) publish(ctx context.Context, e events.Event) {
	if err := t.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
		t.logger.Warn(logModule, "Failed to publish event", map[string]interface{}{
			"type":  e.EventType(),
			"error": err.Error(),
		})
	}
}
