package memory

import (
	"kb-assistant/pkg/rag/workflow"

	"github.com/patrickmn/go-cache"
)

// WorkflowRepository holds the one workflow a session may own. Entries never expire
// on their own; they are dropped together with their session.
type WorkflowRepository struct {
	cache *cache.Cache
}

func NewWorkflowRepository() *WorkflowRepository {
	return &WorkflowRepository{
		cache: cache.New(cache.NoExpiration, 0),
	}
}

func (r *WorkflowRepository) Get(sessionID string) (*workflow.Workflow, bool) {
	if x, found := r.cache.Get(sessionID); found {
		return x.(*workflow.Workflow), true
	}
	return nil, false
}

// Add stores wf unless the session already owns one, in which case the existing
// instance is returned.
func (r *WorkflowRepository) Add(sessionID string, wf *workflow.Workflow) *workflow.Workflow {
	if err := r.cache.Add(sessionID, wf, cache.NoExpiration); err != nil {
		if existing, ok := r.Get(sessionID); ok {
			return existing
		}
		r.cache.Set(sessionID, wf, cache.NoExpiration)
	}
	return wf
}

// Delete removes and closes the session's workflow
func (r *WorkflowRepository) Delete(sessionID string) {
	if wf, ok := r.Get(sessionID); ok {
		wf.Close()
	}
	r.cache.Delete(sessionID)
}
