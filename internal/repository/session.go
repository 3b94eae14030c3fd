package repository

import (
	"context"
	"errors"

	"github.com/rollsix/ludo-backend/internal/entity"
)

var ErrSessionStateNotFound = errors.New("session state not found")

// SessionStateRepository stores the per-token {score, queue position}
// snapshot used by the reconnection handshake. The default implementation is
// in-memory; a redis-backed one can be enabled in config.
type SessionStateRepository interface {
	Save(ctx context.Context, state *entity.SessionState) error
	GetByToken(ctx context.Context, token string) (*entity.SessionState, error)
	DeleteByToken(ctx context.Context, token string) error
}
