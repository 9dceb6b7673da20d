package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository defines the interface for session storage.
type Repository interface {
	// Get retrieves a session by ID.
	Get(ctx context.Context, id string) (*Session, error)

	// GetByOwnerAndID retrieves a session by owner and ID.
	// Returns ErrSessionNotFound if the session doesn't exist or belongs to someone else.
	GetByOwnerAndID(ctx context.Context, owner, id string) (*Session, error)

	// List retrieves the sessions of an owner, oldest first.
	List(ctx context.Context, owner string) ([]*Session, error)

	// Create stores a new session.
	Create(ctx context.Context, s *Session) error

	// Touch records activity on a session.
	Touch(ctx context.Context, id string, at time.Time) error

	// Delete removes a session. Deleting an unknown ID is not an error.
	Delete(ctx context.Context, id string) error

	// IdleSince returns the sessions whose last activity is before t.
	IdleSince(ctx context.Context, t time.Time) ([]*Session, error)

	// Count returns the number of stored sessions.
	Count(ctx context.Context) (int, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewInMemoryRepository creates a new in-memory session repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		sessions: make(map[string]*Session),
	}
}

// Get retrieves a session by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	cpy := *s
	return &cpy, nil
}

// GetByOwnerAndID retrieves a session by owner and ID.
func (r *InMemoryRepository) GetByOwnerAndID(_ context.Context, owner, id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok || s.Owner != owner {
		return nil, ErrSessionNotFound
	}

	cpy := *s
	return &cpy, nil
}

// List retrieves the sessions of an owner, oldest first.
func (r *InMemoryRepository) List(_ context.Context, owner string) ([]*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0)
	for _, s := range r.sessions {
		if s.Owner == owner {
			cpy := *s
			sessions = append(sessions, &cpy)
		}
	}
	sortByCreation(sessions)
	return sessions, nil
}

// Create stores a new session.
func (r *InMemoryRepository) Create(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *s
	r.sessions[s.ID] = &cpy
	return nil
}

// Touch records activity on a session.
func (r *InMemoryRepository) Touch(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if at.After(s.LastActive) {
		s.LastActive = at
	}
	return nil
}

// Delete removes a session.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	return nil
}

// IdleSince returns the sessions whose last activity is before t.
func (r *InMemoryRepository) IdleSince(_ context.Context, t time.Time) ([]*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var idle []*Session
	for _, s := range r.sessions {
		if s.LastActive.Before(t) {
			cpy := *s
			idle = append(idle, &cpy)
		}
	}
	sortByCreation(idle)
	return idle, nil
}

// Count returns the number of stored sessions.
func (r *InMemoryRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions), nil
}

func sortByCreation(sessions []*Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
