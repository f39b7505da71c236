package session

import (
	"errors"
	"sync"

	"kb-assistant/internal/metrics"
	"kb-assistant/internal/pkg/logger"
	"kb-assistant/internal/repository/memory"
	"kb-assistant/pkg/rag/workflow"
	"kb-assistant/pkg/store"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("session not found")

// WorkflowFactory builds a fresh workflow owned by sess
type WorkflowFactory func(sess *store.Session) *workflow.Workflow

// Manager handles session lifecycle and the workflow each session owns
type Manager struct {
	sessionRepo  *memory.SessionRepository
	workflowRepo *memory.WorkflowRepository
	newWorkflow  WorkflowFactory
	logger       logger.ILogger

	mu sync.Mutex
}

// NewManager creates a new session manager
func NewManager(sessionRepo *memory.SessionRepository, workflowRepo *memory.WorkflowRepository, newWorkflow WorkflowFactory, log logger.ILogger) *Manager {
	if log == nil {
		log = logger.NewNopLogger()
	}
	m := &Manager{
		sessionRepo:  sessionRepo,
		workflowRepo: workflowRepo,
		newWorkflow:  newWorkflow,
		logger:       log,
	}
	sessionRepo.OnEvicted(func(sessionID string, _ *store.Session) {
		workflowRepo.Delete(sessionID)
		metrics.ActiveSessions.Set(float64(sessionRepo.Count()))
		m.logger.Info("SESSION", "Session dropped", map[string]interface{}{"session_id": sessionID})
	})
	return m
}

// Create starts an empty session
func (m *Manager) Create() *store.Session {
	sess := store.NewSession(uuid.NewString())
	m.sessionRepo.Save(sess)
	metrics.ActiveSessions.Set(float64(m.sessionRepo.Count()))
	m.logger.Info("SESSION", "Session created", map[string]interface{}{"session_id": sess.ID})
	return sess
}

// Load returns a live session and extends its lifetime
func (m *Manager) Load(sessionID string) (*store.Session, error) {
	sess, found := m.sessionRepo.Get(sessionID)
	if !found {
		return nil, ErrSessionNotFound
	}
	m.sessionRepo.Save(sess)
	return sess, nil
}

func (m *Manager) Delete(sessionID string) error {
	if _, found := m.sessionRepo.Get(sessionID); !found {
		return ErrSessionNotFound
	}
	m.sessionRepo.Delete(sessionID)
	return nil
}

// Workflow returns the session's workflow, creating it on first use
func (m *Manager) Workflow(sess *store.Session) *workflow.Workflow {
	if wf, ok := m.workflowRepo.Get(sess.ID); ok {
		return wf
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if wf, ok := m.workflowRepo.Get(sess.ID); ok {
		return wf
	}
	return m.workflowRepo.Add(sess.ID, m.newWorkflow(sess))
}

// OpenWorkflow returns the session's workflow reset to file selection
func (m *Manager) OpenWorkflow(sess *store.Session) *workflow.Workflow {
	wf := m.Workflow(sess)
	wf.Reset()
	return wf
}
