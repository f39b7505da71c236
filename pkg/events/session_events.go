package events

import "time"

const (
	TypeNotification         = "NOTIFICATION"
	TypeWorkflowUpdated      = "WORKFLOW_UPDATED"
	TypeKnowledgeBaseCreated = "KNOWLEDGE_BASE_CREATED"
	TypeKnowledgeBaseDeleted = "KNOWLEDGE_BASE_DELETED"
	TypeChatAnswered         = "CHAT_ANSWERED"
	TypeRecallCompleted      = "RECALL_COMPLETED"
	TypeSystemBroadcast      = "SYSTEM_BROADCAST"
)

// Level of a transient notification shown to the user
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

func NewNotification(sessionID string, level Level, message string) BaseEvent {
	return BaseEvent{
		Type: TypeNotification,
		Data: map[string]interface{}{
			"session_id": sessionID,
			"level":      string(level),
			"message":    message,
		},
		OccurredAt: time.Now(),
	}
}

// NewSessionEvent builds a domain event scoped to a session
func NewSessionEvent(eventType, sessionID string, data map[string]interface{}) BaseEvent {
	payload := make(map[string]interface{}, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	payload["session_id"] = sessionID
	return BaseEvent{
		Type:       eventType,
		Data:       payload,
		OccurredAt: time.Now(),
	}
}

// NewBroadcast builds a notice for every connected session
func NewBroadcast(level Level, message string) BaseEvent {
	return BaseEvent{
		Type: TypeSystemBroadcast,
		Data: map[string]interface{}{
			"level":   string(level),
			"message": message,
		},
		OccurredAt: time.Now(),
	}
}
