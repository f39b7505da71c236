package nats

import (
	"testing"

	"kb-assistant/pkg/events"

	"github.com/stretchr/testify/assert"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "kb_assistant.knowledge_base_created", Subject(events.TypeKnowledgeBaseCreated))
	assert.Equal(t, "kb_assistant.notification", Subject(events.TypeNotification))
}
