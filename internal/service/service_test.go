package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kb-assistant/internal/config"
	"kb-assistant/internal/dto"
	"kb-assistant/internal/pkg/logger"
	"kb-assistant/internal/repository/memory"
	"kb-assistant/pkg/eventbus"
	"kb-assistant/pkg/events"
	"kb-assistant/pkg/gateway"
	pktNats "kb-assistant/pkg/nats"
	"kb-assistant/pkg/rag/chat"
	"kb-assistant/pkg/rag/recall"
	"kb-assistant/pkg/rag/session"
	"kb-assistant/pkg/rag/workflow"
	"kb-assistant/pkg/retry"
	"kb-assistant/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDelivery struct {
	mu        sync.Mutex
	sent      map[string][]string
	broadcast []string
}

func (d *recordingDelivery) Send(sessionID string, e events.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sent == nil {
		d.sent = map[string][]string{}
	}
	d.sent[sessionID] = append(d.sent[sessionID], e.EventType())
}

func (d *recordingDelivery) Broadcast(e events.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.broadcast = append(d.broadcast, e.EventType())
}

func (d *recordingDelivery) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.broadcast)
	for _, s := range d.sent {
		n += len(s)
	}
	return n
}

type recordingPublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, e.EventType())
	return nil
}

func (p *recordingPublisher) snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.types...)
}

func TestConsumerRoutesEvents(t *testing.T) {
	bus := eventbus.New("test", nil)
	t.Cleanup(func() { _ = bus.Close() })
	delivery := &recordingDelivery{}
	mirror := &recordingPublisher{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, NewConsumerService(bus, delivery, mirror, logger.NewNopLogger()).Consume(ctx))

	require.NoError(t, bus.Publish(ctx, events.NewNotification("s1", events.LevelInfo, "hi")))
	require.NoError(t, bus.Publish(ctx, events.NewSessionEvent(events.TypeKnowledgeBaseCreated, "s1", nil)))
	require.NoError(t, bus.Publish(ctx, events.BaseEvent{Type: "GLOBAL", Data: map[string]interface{}{}, OccurredAt: time.Now()}))

	require.Eventually(t, func() bool { return delivery.count() == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{events.TypeNotification, events.TypeKnowledgeBaseCreated}, delivery.sent["s1"])
	assert.Equal(t, []string{"GLOBAL"}, delivery.broadcast)
	assert.Equal(t, []string{events.TypeKnowledgeBaseCreated}, mirror.snapshot())
}

type fakeBackend struct {
	recallResp *gateway.RecallResponse
	healthErrs []error
	healthHits int
}

func (f *fakeBackend) Upload(ctx context.Context, files []gateway.File) (*gateway.UploadResponse, error) {
	return &gateway.UploadResponse{Filenames: []string{"notes_1.md"}}, nil
}

func (f *fakeBackend) CreateKnowledgeBase(ctx context.Context, req gateway.CreateKnowledgeBaseRequest) (*gateway.CreateKnowledgeBaseResponse, error) {
	return &gateway.CreateKnowledgeBaseResponse{TotalChunks: 4}, nil
}

func (f *fakeBackend) Recall(ctx context.Context, req gateway.RecallRequest) (*gateway.RecallResponse, error) {
	return f.recallResp, nil
}

func (f *fakeBackend) Chat(ctx context.Context, req gateway.ChatRequest) (*gateway.ChatResponse, error) {
	return &gateway.ChatResponse{Answer: "ok"}, nil
}

func (f *fakeBackend) Health(ctx context.Context) error {
	f.healthHits++
	if len(f.healthErrs) == 0 {
		return nil
	}
	err := f.healthErrs[0]
	f.healthErrs = f.healthErrs[1:]
	return err
}

func (f *fakeBackend) HealthURL() string { return "http://rag/health" }

func newServices(backend *fakeBackend, pub events.Publisher) (ISessionService, IWorkflowService) {
	log := logger.NewNopLogger()
	manager := session.NewManager(memory.NewSessionRepository(time.Minute), memory.NewWorkflowRepository(), func(sess *store.Session) *workflow.Workflow {
		return workflow.New(workflow.Options{
			SessionID:        sess.ID,
			Config:           workflow.DefaultConfig(),
			Backend:          backend,
			Publisher:        pub,
			OnCommit:         sess.SetKnowledgeBase,
			ProgressInterval: time.Millisecond,
		})
	}, log)
	sessions := NewSessionService(manager, chat.NewPipeline(backend, pub, log, 3), recall.NewTester(backend, pub, log), pub, log)
	workflows := NewWorkflowService(manager, config.UploadConfig{MaxSize: 16, AcceptedTypes: []string{".md"}})
	return sessions, workflows
}

func TestWorkflowThenRecallThenDelete(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{recallResp: &gateway.RecallResponse{Results: []gateway.Source{{Content: "x", Score: 0}}}}
	pub := &recordingPublisher{}
	sessions, workflows := newServices(backend, pub)

	snap, err := sessions.Create(ctx)
	require.NoError(t, err)
	id := snap.ID

	_, err = sessions.RunRecall(ctx, id, &dto.RecallRequest{Query: "q"})
	assert.ErrorIs(t, err, recall.ErrNoKnowledgeBase)

	_, err = workflows.SelectFile(ctx, id, gateway.File{Name: "notes.md", Content: []byte("# hi")})
	require.NoError(t, err)
	_, err = workflows.Next(ctx, id)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		res, _ := workflows.Show(ctx, id)
		return res.State.Step == workflow.StepConfiguringParameters
	}, time.Second, time.Millisecond)

	_, err = workflows.Save(ctx, id)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		res, _ := workflows.Show(ctx, id)
		return res.State.Step == workflow.StepResult
	}, time.Second, time.Millisecond)

	confirmed, err := workflows.Confirm(ctx, id)
	require.NoError(t, err)
	assert.True(t, confirmed.Committed)

	res, err := sessions.RunRecall(ctx, id, &dto.RecallRequest{Query: "q"})
	require.NoError(t, err)
	assert.Len(t, res.Fragments, 1)
	assert.Equal(t, 1.0, res.Fragments[0].Relevance)

	_, err = sessions.SendMessage(ctx, id, &dto.ChatRequest{Query: "hello"})
	require.NoError(t, err)

	require.NoError(t, sessions.DeleteKnowledgeBase(ctx, id))
	snap, err = sessions.Show(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, snap.KnowledgeBase)
	assert.Empty(t, snap.Messages)
	assert.Empty(t, snap.RetrievedFragments)
	assert.Contains(t, pub.snapshot(), events.TypeKnowledgeBaseDeleted)
}

func TestUpdateParamsKeepsOmittedFields(t *testing.T) {
	ctx := context.Background()
	sessions, workflows := newServices(&fakeBackend{}, events.NopPublisher{})

	snap, err := sessions.Create(ctx)
	require.NoError(t, err)
	_, err = workflows.SelectFile(ctx, snap.ID, gateway.File{Name: "notes.md", Content: []byte("# hi")})
	require.NoError(t, err)
	_, err = workflows.Next(ctx, snap.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		res, _ := workflows.Show(ctx, snap.ID)
		return res.State.Step == workflow.StepConfiguringParameters
	}, time.Second, time.Millisecond)

	name := "refunds"
	res, err := workflows.UpdateParams(ctx, snap.ID, &dto.UpdateParamsRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "refunds", res.State.Params.Name)
	assert.Equal(t, 2048, res.State.Params.ChunkSize)
	assert.Equal(t, 100, res.State.Params.ChunkOverlap)
	assert.Equal(t, 3, res.State.Params.TopK)

	topK := 0
	res, err = workflows.UpdateParams(ctx, snap.ID, &dto.UpdateParamsRequest{TopK: &topK})
	require.NoError(t, err)
	assert.Equal(t, "refunds", res.State.Params.Name)
	assert.Equal(t, 1, res.State.Params.TopK)
}

func TestSelectFileRejectsOversizedFile(t *testing.T) {
	sessions, workflows := newServices(&fakeBackend{}, events.NopPublisher{})
	snap, _ := sessions.Create(context.Background())

	_, err := workflows.SelectFile(context.Background(), snap.ID, gateway.File{Name: "big.md", Content: make([]byte, 17)})
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestUnknownSession(t *testing.T) {
	sessions, workflows := newServices(&fakeBackend{}, events.NopPublisher{})

	_, err := sessions.Show(context.Background(), "missing")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	_, err = workflows.Show(context.Background(), "missing")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestHealthServiceRetries(t *testing.T) {
	backend := &fakeBackend{healthErrs: []error{errors.New("refused")}}
	svc := NewHealthService(backend, retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond}, logger.NewNopLogger())

	res := svc.CheckBackend(context.Background())
	assert.True(t, res.Healthy)
	assert.Equal(t, 2, backend.healthHits)
	assert.Equal(t, "http://rag/health", res.URL)

	backend = &fakeBackend{healthErrs: []error{errors.New("a"), errors.New("b"), errors.New("c")}}
	res = NewHealthService(backend, retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond}, logger.NewNopLogger()).CheckBackend(context.Background())
	assert.False(t, res.Healthy)
	assert.Equal(t, "c", res.Error)
}

type fakeStream struct {
	subject string
	durable string
	handler pktNats.EventHandler
}

func (f *fakeStream) Subscribe(_ context.Context, subject, durableName string, handler pktNats.EventHandler) error {
	f.subject, f.durable, f.handler = subject, durableName, handler
	return nil
}

func TestAuditSubscribesToEverySubject(t *testing.T) {
	stream := &fakeStream{}
	require.NoError(t, NewAuditService(stream, logger.NewNopLogger()).Start(context.Background()))

	assert.Equal(t, "kb_assistant.>", stream.subject)
	assert.Equal(t, auditDurableName, stream.durable)
	require.NotNil(t, stream.handler)

	evt := events.NewSessionEvent(events.TypeKnowledgeBaseCreated, "s1", map[string]interface{}{"name": "kb", "total_chunks": 4})
	assert.NoError(t, stream.handler(context.Background(), evt))
}
