package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rollsix/ludo-backend/internal/entity"
)

type redisSessionState struct {
	client *redis.Client
}

func NewRedisSessionStateRepository(client *redis.Client) SessionStateRepository {
	return &redisSessionState{
		client: client,
	}
}

func (that *redisSessionState) Save(ctx context.Context, state *entity.SessionState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}

	stateKey := "session:" + state.Token
	err = that.client.Set(ctx, stateKey, stateJSON, 0).Err()
	if err != nil {
		return fmt.Errorf("failed to set session state: %w", err)
	}

	return nil
}

func (that *redisSessionState) GetByToken(ctx context.Context, token string) (*entity.SessionState, error) {
	stateKey := "session:" + token

	response, err := that.client.Get(ctx, stateKey).Result()

	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionStateNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get session state by token: %w", err)
	}

	var state entity.SessionState
	if err = json.Unmarshal([]byte(response), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session state: %w", err)
	}

	return &state, nil
}

func (that *redisSessionState) DeleteByToken(ctx context.Context, token string) error {
	stateKey := "session:" + token

	err := that.client.Del(ctx, stateKey).Err()
	if err != nil {
		return fmt.Errorf("failed to delete session state by token: %w", err)
	}

	return nil
}
