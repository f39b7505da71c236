package gateway

import (
	"bytes"
	"encoding/json"
)

// File is one document blob sent to the upload endpoint
type File struct {
	Name        string
	ContentType string
	Content     []byte
}

type UploadResponse struct {
	Filenames []string `json:"filenames"`
	Message   string   `json:"message"`
}

// UnmarshalJSON also accepts the "messages" key the backend actually writes.
func (r *UploadResponse) UnmarshalJSON(data []byte) error {
	var raw struct {
		Filenames []string `json:"filenames"`
		Message   string   `json:"message"`
		Messages  string   `json:"messages"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Filenames = raw.Filenames
	r.Message = raw.Message
	if r.Message == "" {
		r.Message = raw.Messages
	}
	return nil
}

type CreateKnowledgeBaseRequest struct {
	KBName        string   `json:"kb_name"`
	ChunkSize     int      `json:"chunk_size"`
	ChunkOverlap  int      `json:"chunk_overlap"`
	FileFilenames []string `json:"file_filenames"`
}

type CreateKnowledgeBaseResponse struct {
	KBName      string `json:"kb_name"`
	TotalChunks int    `json:"total_chunks"`
	Message     string `json:"message"`
}

type RecallRequest struct {
	KBName string `json:"kb_name"`
	Query  string `json:"query"`
	TopK   int    `json:"top_k"`
}

type RecallResponse struct {
	Results []Source `json:"results"`
}

// ChatRequest carries a nil KBName as JSON null when no knowledge base is active
type ChatRequest struct {
	Query  string  `json:"query"`
	KBName *string `json:"kb_name"`
	TopK   int     `json:"top_k"`
}

type ChatResponse struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Source is a retrieved chunk. Score is a distance: lower means more similar.
type Source struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
	Score    float64  `json:"score"`
}

// Metadata flattens arbitrary JSON values into strings
type Metadata map[string]string

func (m *Metadata) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = nil
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(Metadata, len(raw))
	for key, value := range raw {
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			out[key] = s
			continue
		}
		out[key] = string(bytes.TrimSpace(value))
	}
	*m = out
	return nil
}
