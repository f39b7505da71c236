package store

import (
	"sync"
	"time"
)

// KnowledgeBase describes the vector index created on the RAG backend
type KnowledgeBase struct {
	Name         string `json:"name"`
	MaxChunkSize int    `json:"maxChunkSize"`
	MaxOverlap   int    `json:"maxOverlap"`
	TopK         int    `json:"topK"`
	IsCreated    bool   `json:"isCreated"`
	TotalChunks  *int   `json:"totalChunks,omitempty"`
}

// DocumentFragment is a scored excerpt returned by retrieval
type DocumentFragment struct {
	ID        string  `json:"id"`
	Content   string  `json:"content"`
	Relevance float64 `json:"relevance"`
	Index     int     `json:"index"`
}

// Message is one turn of the conversation
type Message struct {
	ID                string             `json:"id"`
	Content           string             `json:"content"`
	IsUser            bool               `json:"isUser"`
	DocumentFragments []DocumentFragment `json:"documentFragments,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
}

// Session represents the state owned by one browser session.
// All mutations go through its methods.
type Session struct {
	ID string

	mu                 sync.RWMutex
	knowledgeBase      *KnowledgeBase
	messages           []Message
	retrievedFragments []DocumentFragment
	chatLoading        bool
	createdAt          time.Time

	// bumped whenever the knowledge base is replaced or deleted
	kbGeneration uint64
}

// Snapshot is a read-only copy of the session state for rendering
type Snapshot struct {
	ID                 string             `json:"id"`
	KnowledgeBase      *KnowledgeBase     `json:"vectorDatabase"`
	Messages           []Message          `json:"messages"`
	RetrievedFragments []DocumentFragment `json:"retrievedFragments"`
	ChatLoading        bool               `json:"isChatLoading"`
	CreatedAt          time.Time          `json:"createdAt"`
}

func NewSession(id string) *Session {
	return &Session{
		ID:                 id,
		messages:           []Message{},
		retrievedFragments: []DocumentFragment{},
		createdAt:          time.Now(),
	}
}

// KnowledgeBase returns a copy of the active descriptor, or nil when none is live.
func (s *Session) KnowledgeBase() *KnowledgeBase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.knowledgeBase == nil {
		return nil
	}
	kb := *s.knowledgeBase
	return &kb
}

// SetKnowledgeBase replaces the active descriptor
func (s *Session) SetKnowledgeBase(kb KnowledgeBase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.knowledgeBase = &kb
	s.kbGeneration++
}

// KnowledgeBaseGeneration returns the active descriptor together with the generation
// it belongs to. Writes guarded by that generation fail once the knowledge base changes.
func (s *Session) KnowledgeBaseGeneration() (*KnowledgeBase, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.knowledgeBase == nil {
		return nil, s.kbGeneration
	}
	kb := *s.knowledgeBase
	return &kb, s.kbGeneration
}

// DeleteKnowledgeBase drops the descriptor together with the recall results and the
// chat history scoped to it.
func (s *Session) DeleteKnowledgeBase() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.knowledgeBase = nil
	s.retrievedFragments = []DocumentFragment{}
	s.messages = []Message{}
	s.kbGeneration++
}

func (s *Session) AppendMessage(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// AppendMessageIf appends msg only while the knowledge base is still at generation.
func (s *Session) AppendMessageIf(generation uint64, msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kbGeneration != generation {
		return false
	}
	s.messages = append(s.messages, msg)
	return true
}

func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) ClearMessages() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = []Message{}
}

// ReplaceRetrievedFragments swaps the whole "last recall" collection
func (s *Session) ReplaceRetrievedFragments(fragments []DocumentFragment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fragments == nil {
		fragments = []DocumentFragment{}
	}
	s.retrievedFragments = fragments
}

// ReplaceRetrievedFragmentsIf replaces the collection only while the knowledge base is
// still at generation.
func (s *Session) ReplaceRetrievedFragmentsIf(generation uint64, fragments []DocumentFragment) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kbGeneration != generation {
		return false
	}
	if fragments == nil {
		fragments = []DocumentFragment{}
	}
	s.retrievedFragments = fragments
	return true
}

func (s *Session) RetrievedFragments() []DocumentFragment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DocumentFragment, len(s.retrievedFragments))
	copy(out, s.retrievedFragments)
	return out
}

func (s *Session) SetChatLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatLoading = loading
}

func (s *Session) ChatLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chatLoading
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		ID:                 s.ID,
		Messages:           make([]Message, len(s.messages)),
		RetrievedFragments: make([]DocumentFragment, len(s.retrievedFragments)),
		ChatLoading:        s.chatLoading,
		CreatedAt:          s.createdAt,
	}
	if s.knowledgeBase != nil {
		kb := *s.knowledgeBase
		snap.KnowledgeBase = &kb
	}
	copy(snap.Messages, s.messages)
	copy(snap.RetrievedFragments, s.retrievedFragments)
	return snap
}
