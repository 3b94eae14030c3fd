package repository

import (
	"context"
	"sync"

	"github.com/rollsix/ludo-backend/internal/entity"
)

type memorySessionState struct {
	mu     sync.RWMutex
	states map[string]entity.SessionState
}

// NewMemorySessionStateRepository - in-memory store; state dies with the
// process, which keeps reconnection tokens meaningless across restarts.
func NewMemorySessionStateRepository() SessionStateRepository {
	return &memorySessionState{
		states: make(map[string]entity.SessionState),
	}
}

func (that *memorySessionState) Save(_ context.Context, state *entity.SessionState) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.states[state.Token] = *state

	return nil
}

func (that *memorySessionState) GetByToken(_ context.Context, token string) (*entity.SessionState, error) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	state, ok := that.states[token]
	if !ok {
		return nil, ErrSessionStateNotFound
	}

	return &state, nil
}

func (that *memorySessionState) DeleteByToken(_ context.Context, token string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	delete(that.states, token)

	return nil
}
