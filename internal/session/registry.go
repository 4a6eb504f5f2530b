package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/mjpeg-streamer/internal/metrics"
)

// Registry tracks live sessions. All mutations share one lock.
type Registry struct {
	sessions map[uuid.UUID]*Session
	mu       sync.Mutex
	metrics  *metrics.Metrics
}

// NewRegistry creates an empty registry
func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*Session),
		metrics:  m,
	}
}

// Add registers s. It returns false if a session with the same ID is already present.
func (r *Registry) Add(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.ID]; exists {
		return false
	}
	r.sessions[s.ID] = s

	r.metrics.RecordSessionOpened()
	r.metrics.SetActiveSessions(len(r.sessions))
	return true
}

// Remove deregisters s. Only the first call for a given session returns true.
func (r *Registry) Remove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.sessions[s.ID]
	if !exists || current != s {
		return false
	}
	delete(r.sessions, s.ID)

	r.metrics.RecordSessionClosed(time.Since(s.StartedAt).Seconds())
	r.metrics.SetActiveSessions(len(r.sessions))
	return true
}

// Get looks up a session by ID
func (r *Registry) Get(id uuid.UUID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[id]
	return s, exists
}

// Len returns the number of registered sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshot returns the registered sessions ordered by start time.
// The slice is detached from the registry and safe to iterate while sessions come and go.
func (r *Registry) Snapshot() []*Session {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.Before(sessions[j].StartedAt)
	})
	return sessions
}

// Clear removes every session and returns the ones it removed
func (r *Registry) Clear() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		delete(r.sessions, id)
		r.metrics.RecordSessionClosed(time.Since(s.StartedAt).Seconds())
		removed = append(removed, s)
	}
	r.metrics.SetActiveSessions(0)
	return removed
}
