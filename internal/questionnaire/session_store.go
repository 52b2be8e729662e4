package questionnaire

import (
	"context"
	"sync"

	"github.com/kiore73/telegram-ConsultOS-bot/internal/models"
)

// SessionStore is the persistence contract for session traversal state. The
// engine never touches storage directly, so any key-value or relational store
// can back it. LoadSession returns models.ErrSessionNotFound (possibly
// wrapped) when no state exists for the id.
type SessionStore interface {
	LoadSession(ctx context.Context, sessionID string) (*models.SessionState, error)
	SaveSession(ctx context.Context, state *models.SessionState) error
	DeleteSession(ctx context.Context, sessionID string) error
}

// AnswerRecorder is the optional durable sink for submitted answers.
type AnswerRecorder interface {
	RecordAnswer(ctx context.Context, answer models.Answer) error
}

// keyedMutex serializes operations per session id so no two events for one
// session interleave, while events for different sessions run concurrently.
// Entries are reference counted and evicted when the last holder releases,
// so the map only holds sessions with an operation in flight.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sessionLock)}
}

// acquire blocks until the key's lock is held and returns the release func.
func (k *keyedMutex) acquire(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sessionLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
