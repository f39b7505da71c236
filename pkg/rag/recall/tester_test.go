package recall

import (
	"context"
	"errors"
	"sync"
	"testing"

	"kb-assistant/pkg/events"
	"kb-assistant/pkg/gateway"
	"kb-assistant/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	resp   *gateway.RecallResponse
	err    error
	calls  []gateway.RecallRequest
	during func()
}

func (f *fakeBackend) Recall(ctx context.Context, req gateway.RecallRequest) (*gateway.RecallResponse, error) {
	f.calls = append(f.calls, req)
	if f.during != nil {
		f.during()
	}
	return f.resp, f.err
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []string
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e.EventType() == events.TypeNotification {
		p.messages = append(p.messages, e.Payload()["message"].(string))
	}
	return nil
}

func sessionWithKB() *store.Session {
	sess := store.NewSession("s1")
	sess.SetKnowledgeBase(store.KnowledgeBase{Name: "notes_知识库", MaxChunkSize: 2048, MaxOverlap: 100, TopK: 3, IsCreated: true})
	return sess
}

func TestRecallScenarioB(t *testing.T) {
	backend := &fakeBackend{resp: &gateway.RecallResponse{Results: []gateway.Source{
		{Content: "refunds within 30 days", Score: 0.25},
		{Content: "contact support", Score: 1.0},
	}}}
	pub := &recordingPublisher{}
	sess := sessionWithKB()

	fragments, err := NewTester(backend, pub, nil).RunRecallTest(context.Background(), sess, "refund policy")
	require.NoError(t, err)

	require.Len(t, backend.calls, 1)
	assert.Equal(t, gateway.RecallRequest{KBName: "notes_知识库", Query: "refund policy", TopK: 3}, backend.calls[0])

	require.Len(t, fragments, 2)
	assert.Equal(t, 0.8, fragments[0].Relevance)
	assert.Equal(t, 1, fragments[0].Index)
	assert.Equal(t, 0.5, fragments[1].Relevance)
	assert.Equal(t, 2, fragments[1].Index)
	assert.Equal(t, fragments, sess.RetrievedFragments())
	assert.Equal(t, []string{"检索到 2 个相关文档片段"}, pub.messages)
}

func TestRecallIsIdempotentReplacement(t *testing.T) {
	backend := &fakeBackend{resp: &gateway.RecallResponse{Results: []gateway.Source{
		{Content: "a", Score: 0.1},
		{Content: "b", Score: 0.2},
		{Content: "c", Score: 0.3},
	}}}
	sess := sessionWithKB()
	tester := NewTester(backend, nil, nil)

	first, err := tester.RunRecallTest(context.Background(), sess, "q")
	require.NoError(t, err)
	second, err := tester.RunRecallTest(context.Background(), sess, "q")
	require.NoError(t, err)

	assert.Len(t, sess.RetrievedFragments(), 3)
	for i := range first {
		assert.Equal(t, first[i].Content, second[i].Content)
		assert.Equal(t, first[i].Relevance, second[i].Relevance)
		assert.Equal(t, first[i].Index, second[i].Index)
	}
}

func TestRecallWithoutKnowledgeBase(t *testing.T) {
	backend := &fakeBackend{}
	pub := &recordingPublisher{}
	sess := store.NewSession("s1")

	_, err := NewTester(backend, pub, nil).RunRecallTest(context.Background(), sess, "anything")
	assert.ErrorIs(t, err, ErrNoKnowledgeBase)
	assert.Empty(t, backend.calls)
	assert.Equal(t, []string{"请先创建知识库"}, pub.messages)
}

func TestRecallFailureClearsFragments(t *testing.T) {
	sess := sessionWithKB()
	sess.ReplaceRetrievedFragments([]store.DocumentFragment{{ID: "old", Index: 1}})
	backendErr := &gateway.Error{Op: gateway.OpRecall, StatusCode: 500, Body: "boom", Err: gateway.ErrUnexpectedStatus}
	pub := &recordingPublisher{}

	_, err := NewTester(&fakeBackend{err: backendErr}, pub, nil).RunRecallTest(context.Background(), sess, "q")
	require.Error(t, err)
	assert.True(t, errors.Is(err, gateway.ErrUnexpectedStatus))
	assert.Equal(t, "召回测试失败: boom", err.Error())
	assert.Empty(t, sess.RetrievedFragments())
	assert.NotNil(t, sess.RetrievedFragments())
	assert.Equal(t, []string{"召回测试失败，请重试"}, pub.messages)
}

func TestRecallRejectsBlankQuery(t *testing.T) {
	backend := &fakeBackend{}
	_, err := NewTester(backend, nil, nil).RunRecallTest(context.Background(), sessionWithKB(), "  ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Empty(t, backend.calls)
}

func TestRecallResolvingAfterDeleteIsDropped(t *testing.T) {
	sess := sessionWithKB()
	pub := &recordingPublisher{}
	backend := &fakeBackend{
		resp:   &gateway.RecallResponse{Results: []gateway.Source{{Content: "stale", Score: 0.1}}},
		during: sess.DeleteKnowledgeBase,
	}

	fragments, err := NewTester(backend, pub, nil).RunRecallTest(context.Background(), sess, "refund policy")
	assert.ErrorIs(t, err, ErrKnowledgeBaseChanged)
	assert.Nil(t, fragments)
	assert.Empty(t, sess.RetrievedFragments())
	assert.Empty(t, pub.messages)
}

func TestRecallFailureAfterReplacementKeepsNewResults(t *testing.T) {
	sess := sessionWithKB()
	fresh := []store.DocumentFragment{{ID: "new", Index: 1, Relevance: 0.9}}
	backend := &fakeBackend{
		err: errors.New("召回测试失败: boom"),
		during: func() {
			sess.SetKnowledgeBase(store.KnowledgeBase{Name: "other", TopK: 3, IsCreated: true})
			sess.ReplaceRetrievedFragments(fresh)
		},
	}

	_, err := NewTester(backend, &recordingPublisher{}, nil).RunRecallTest(context.Background(), sess, "q")
	require.Error(t, err)
	assert.Equal(t, fresh, sess.RetrievedFragments())
}
