package dto

import (
	"time"

	"kb-assistant/pkg/rag/workflow"
	"kb-assistant/pkg/store"
)

type ChatRequest struct {
	Query string `json:"query" validate:"required,max=4000"`
}

type RecallRequest struct {
	Query string `json:"query" validate:"required,max=1000"`
}

type ChatResponse struct {
	Sent   store.Message `json:"sent"`
	Reply  store.Message `json:"reply"`
	Failed bool          `json:"failed"`
}

type RecallResponse struct {
	Query     string                   `json:"query"`
	Fragments []store.DocumentFragment `json:"fragments"`
}

// UpdateParamsRequest is a partial update: omitted fields keep their current value.
// Numeric values are clamped, not rejected.
type UpdateParamsRequest struct {
	Name         *string `json:"name" validate:"omitempty,max=100"`
	ChunkSize    *int    `json:"chunkSize"`
	ChunkOverlap *int    `json:"chunkOverlap"`
	TopK         *int    `json:"topK"`
}

type StepParamRequest struct {
	Field     string `json:"field" validate:"required,oneof=chunkSize chunkOverlap topK"`
	Direction int    `json:"direction" validate:"required,oneof=-1 1"`
}

type UploadConstraints struct {
	MaxSize           int      `json:"maxSize"`
	AcceptedTypes     []string `json:"acceptedTypes"`
	AcceptedMimeTypes []string `json:"acceptedMimeTypes"`
}

type WorkflowResponse struct {
	State       workflow.State    `json:"state"`
	Constraints UploadConstraints `json:"constraints"`
}

type ConfirmWorkflowResponse struct {
	Committed     bool                 `json:"committed"`
	KnowledgeBase *store.KnowledgeBase `json:"vectorDatabase"`
}

type BackendHealthResponse struct {
	Healthy   bool      `json:"healthy"`
	URL       string    `json:"url"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}
