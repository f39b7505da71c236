package memory

import (
	"time"

	"kb-assistant/pkg/store"

	"github.com/patrickmn/go-cache"
)

const DefaultSessionTTL = time.Hour

// SessionRepository keeps sessions in memory with a sliding expiry: every Save
// restarts the clock.
type SessionRepository struct {
	cache *cache.Cache
}

func NewSessionRepository(ttl time.Duration) *SessionRepository {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	// Purge expired sessions every 10 minutes at most
	cleanup := 10 * time.Minute
	if ttl < cleanup {
		cleanup = ttl
	}
	return &SessionRepository{
		cache: cache.New(ttl, cleanup),
	}
}

func (r *SessionRepository) Save(session *store.Session) {
	r.cache.Set(session.ID, session, cache.DefaultExpiration)
}

func (r *SessionRepository) Get(sessionID string) (*store.Session, bool) {
	if x, found := r.cache.Get(sessionID); found {
		return x.(*store.Session), true
	}
	return nil, false
}

func (r *SessionRepository) Delete(sessionID string) {
	r.cache.Delete(sessionID)
}

func (r *SessionRepository) Count() int {
	return r.cache.ItemCount()
}

// OnEvicted registers fn for sessions that expire or are deleted
func (r *SessionRepository) OnEvicted(fn func(sessionID string, session *store.Session)) {
	r.cache.OnEvicted(func(key string, value interface{}) {
		if s, ok := value.(*store.Session); ok {
			fn(key, s)
		}
	})
}
