// Package session provides session-store backends for questionnaire traversal
// state: an in-memory store for tests and development, and a Redis-backed
// store for deployments.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/kiore73/telegram-ConsultOS-bot/internal/models"
)

// InMemoryStore keeps session state in a process-local map. Values are deep
// copied on the way in and out, so callers never alias stored state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.SessionState
}

// NewInMemoryStore creates an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*models.SessionState)}
}

// LoadSession returns a copy of the stored state for a session id.
func (s *InMemoryStore) LoadSession(ctx context.Context, sessionID string) (*models.SessionState, error) {
	s.mu.RLock()
	state, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, models.ErrSessionNotFound)
	}
	return state.Clone(), nil
}

// SaveSession stores a copy of the state keyed by its session id.
func (s *InMemoryStore) SaveSession(ctx context.Context, state *models.SessionState) error {
	if state == nil || state.SessionID == "" {
		return fmt.Errorf("session state must carry a session id")
	}
	s.mu.Lock()
	s.sessions[state.SessionID] = state.Clone()
	s.mu.Unlock()
	return nil
}

// DeleteSession removes the state for a session id. Deleting a missing
// session is a no-op.
func (s *InMemoryStore) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}
