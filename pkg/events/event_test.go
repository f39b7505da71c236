package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewNotification(t *testing.T) {
	e := NewNotification("abc", LevelError, "对话失败，请重试")

	assert.Equal(t, TypeNotification, e.EventType())
	assert.Equal(t, "abc", SessionID(e))
	assert.Equal(t, "error", e.Payload()["level"])
	assert.False(t, e.Timestamp().IsZero())
}

func TestNewSessionEventDoesNotAliasInput(t *testing.T) {
	data := map[string]interface{}{"name": "kb"}
	e := NewSessionEvent(TypeKnowledgeBaseCreated, "s1", data)

	assert.Equal(t, "s1", SessionID(e))
	_, leaked := data["session_id"]
	assert.False(t, leaked)
}

func TestSessionIDMissing(t *testing.T) {
	assert.Equal(t, "", SessionID(nil))
	assert.Equal(t, "", SessionID(BaseEvent{Data: map[string]interface{}{}}))
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), BaseEvent{}))
}

func TestNewBroadcastHasNoSession(t *testing.T) {
	e := NewBroadcast(LevelInfo, "maintenance at 22:00")
	assert.Equal(t, TypeSystemBroadcast, e.EventType())
	assert.Empty(t, SessionID(e))
	assert.Equal(t, "maintenance at 22:00", e.Payload()["message"])
}
