package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/rollsix/ludo-backend/internal/apperror"
	"github.com/rollsix/ludo-backend/internal/entity"
	"github.com/rollsix/ludo-backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// acceptAllChecker approves any username whose secret matches "secret".
type acceptAllChecker struct{}

func (acceptAllChecker) Check(_, secret string) bool {
	return secret == "secret"
}

type recordingMessenger struct {
	mu    sync.Mutex
	lines []string
}

func (that *recordingMessenger) SendLine(line string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.lines = append(that.lines, line)

	return nil
}

func (that *recordingMessenger) Lines() []string {
	that.mu.Lock()
	defer that.mu.Unlock()

	lines := make([]string, len(that.lines))
	copy(lines, that.lines)

	return lines
}

func newTestRegistry(t *testing.T, minPlayers, maxPlayers int) *Registry {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	return New(logger, acceptAllChecker{}, repository.NewMemorySessionStateRepository(), minPlayers, maxPlayers)
}

func TestRegistry_Authenticate(t *testing.T) {
	t.Run("Assigns unique strictly increasing queue positions", func(t *testing.T) {
		// Given: a registry and four registered sessions
		reg := newTestRegistry(t, 2, 4)

		// When: the sessions authenticate one after another
		for i := 0; i < 4; i++ {
			session := &entity.Session{}
			reg.Register(session)
			require.NoError(t, reg.Authenticate(session, fmt.Sprintf("user%d", i), "secret"))

			// Then: each session gets the next position
			assert.Equal(t, i, session.QueuePosition)
			assert.True(t, session.Authenticated)
		}
	})

	t.Run("Failure does not mutate queue state", func(t *testing.T) {
		// Given: a registry
		reg := newTestRegistry(t, 2, 4)
		session := &entity.Session{}
		reg.Register(session)

		// When: authentication fails
		err := reg.Authenticate(session, "user1", "wrong")

		// Then: the session is not queued and holds no position
		require.ErrorIs(t, err, apperror.ErrAuthFailed)
		assert.False(t, session.Authenticated)
		assert.Equal(t, 0, reg.QueueLength())

		// And: the next successful authentication still gets position 0
		require.NoError(t, reg.Authenticate(session, "user1", "secret"))
		assert.Equal(t, 0, session.QueuePosition)
	})

	t.Run("Rejects players beyond the seat cap", func(t *testing.T) {
		// Given: a registry with two seats, both taken
		reg := newTestRegistry(t, 2, 2)
		for i := 0; i < 2; i++ {
			session := &entity.Session{}
			reg.Register(session)
			require.NoError(t, reg.Authenticate(session, "user", "secret"))
		}

		// When: a third player authenticates
		extra := &entity.Session{}
		reg.Register(extra)
		err := reg.Authenticate(extra, "user", "secret")

		// Then: the match is full
		assert.ErrorIs(t, err, apperror.ErrMatchFull)
	})

	t.Run("Concurrent authentication never reuses a position", func(t *testing.T) {
		// Given: many sessions racing to authenticate
		reg := newTestRegistry(t, 2, 4)

		var wg sync.WaitGroup
		sessions := make([]*entity.Session, 4)
		for i := range sessions {
			sessions[i] = &entity.Session{}
			reg.Register(sessions[i])

			wg.Add(1)
			go func(session *entity.Session) {
				defer wg.Done()
				_ = reg.Authenticate(session, "user", "secret")
			}(sessions[i])
		}
		wg.Wait()

		// Then: all assigned positions are distinct
		seen := make(map[int]bool)
		for _, session := range sessions {
			require.True(t, session.Authenticated)
			assert.False(t, seen[session.QueuePosition], "position %d assigned twice", session.QueuePosition)
			seen[session.QueuePosition] = true
		}
	})
}

func TestRegistry_IssueToken(t *testing.T) {
	// Given: two authenticated sessions
	reg := newTestRegistry(t, 2, 4)
	ctx := context.Background()

	first := &entity.Session{}
	second := &entity.Session{}
	reg.Register(first)
	reg.Register(second)
	require.NoError(t, reg.Authenticate(first, "user1", "secret"))
	require.NoError(t, reg.Authenticate(second, "user2", "secret"))

	// When: tokens are issued
	firstToken, err := reg.IssueToken(ctx, first)
	require.NoError(t, err)
	secondToken, err := reg.IssueToken(ctx, second)
	require.NoError(t, err)

	// Then: the tokens are distinct and attached to the sessions
	assert.NotEmpty(t, firstToken)
	assert.NotEqual(t, firstToken, secondToken)
	assert.Equal(t, firstToken, first.Token)
}

func TestRegistry_Reconnect(t *testing.T) {
	t.Run("Preserves score and queue position exactly", func(t *testing.T) {
		// Given: an authenticated session with a token and some score
		reg := newTestRegistry(t, 2, 4)
		ctx := context.Background()

		original := &entity.Session{}
		reg.Register(original)
		require.NoError(t, reg.Authenticate(original, "user1", "secret"))
		token, err := reg.IssueToken(ctx, original)
		require.NoError(t, err)
		reg.AddScore(ctx, original, 12)

		// When: the connection drops and a new session presents the token
		reg.Remove(original)
		replacement := &entity.Session{}
		reg.Register(replacement)
		require.NoError(t, reg.Reconnect(ctx, replacement, token))

		// Then: score and queue position carried over and the session is queued
		assert.Equal(t, 12, replacement.Score)
		assert.Equal(t, original.QueuePosition, replacement.QueuePosition)
		assert.True(t, replacement.Authenticated)
		assert.Equal(t, 1, reg.QueueLength())
	})

	t.Run("Supersedes a live session holding the same token", func(t *testing.T) {
		// Given: a live session with a token
		reg := newTestRegistry(t, 2, 4)
		ctx := context.Background()

		original := &entity.Session{}
		reg.Register(original)
		require.NoError(t, reg.Authenticate(original, "user1", "secret"))
		token, err := reg.IssueToken(ctx, original)
		require.NoError(t, err)

		// When: a second connection reconnects with the same token
		replacement := &entity.Session{}
		reg.Register(replacement)
		require.NoError(t, reg.Reconnect(ctx, replacement, token))

		// Then: only the replacement remains queued under that position
		assert.Equal(t, 1, reg.QueueLength())
		assert.Same(t, replacement, reg.ByQueuePosition(original.QueuePosition))
	})

	t.Run("Unknown token is not fatal", func(t *testing.T) {
		// Given: a registry with no tokens
		reg := newTestRegistry(t, 2, 4)
		session := &entity.Session{}
		reg.Register(session)

		// When: reconnecting with a token nobody issued
		err := reg.Reconnect(context.Background(), session, "bogus")

		// Then: the caller can fall back to normal authentication
		require.ErrorIs(t, err, apperror.ErrTokenNotFound)
		assert.False(t, session.Authenticated)
	})
}

func TestRegistry_MarkReady(t *testing.T) {
	t.Run("Reports progress and starts once the queue is full", func(t *testing.T) {
		// Given: two authenticated sessions, minimum two
		reg := newTestRegistry(t, 2, 4)

		first := &entity.Session{}
		second := &entity.Session{}
		reg.Register(first)
		reg.Register(second)
		require.NoError(t, reg.Authenticate(first, "user1", "secret"))
		require.NoError(t, reg.Authenticate(second, "user2", "secret"))

		// When: the first player readies up
		ready, total, start := reg.MarkReady(first)

		// Then: progress is 1/2 and no start yet
		assert.Equal(t, 1, ready)
		assert.Equal(t, 2, total)
		assert.False(t, start)

		// When: the second player readies up
		ready, total, start = reg.MarkReady(second)

		// Then: progress is 2/2 and the match starts
		assert.Equal(t, 2, ready)
		assert.Equal(t, 2, total)
		assert.True(t, start)
	})

	t.Run("The match starts exactly once even under a ready race", func(t *testing.T) {
		// Given: four authenticated sessions racing to be the last ready
		reg := newTestRegistry(t, 2, 4)

		sessions := make([]*entity.Session, 4)
		for i := range sessions {
			sessions[i] = &entity.Session{}
			reg.Register(sessions[i])
			require.NoError(t, reg.Authenticate(sessions[i], "user", "secret"))
		}

		var wg sync.WaitGroup
		starts := make(chan bool, len(sessions))
		for _, session := range sessions {
			wg.Add(1)
			go func(session *entity.Session) {
				defer wg.Done()
				_, _, start := reg.MarkReady(session)
				starts <- start
			}(session)
		}
		wg.Wait()
		close(starts)

		// Then: exactly one caller is told to start
		started := 0
		for start := range starts {
			if start {
				started++
			}
		}
		assert.Equal(t, 1, started)
	})

	t.Run("A single ready player below the minimum does not start", func(t *testing.T) {
		// Given: one authenticated session, minimum two
		reg := newTestRegistry(t, 2, 4)
		session := &entity.Session{}
		reg.Register(session)
		require.NoError(t, reg.Authenticate(session, "user1", "secret"))

		// When: the lone player readies up
		_, _, start := reg.MarkReady(session)

		// Then: no match starts
		assert.False(t, start)
		assert.False(t, reg.MinimumPlayersReady())
	})
}

func TestRegistry_Remove(t *testing.T) {
	// Given: an authenticated session with a token
	reg := newTestRegistry(t, 2, 4)
	ctx := context.Background()

	session := &entity.Session{}
	reg.Register(session)
	require.NoError(t, reg.Authenticate(session, "user1", "secret"))
	_, err := reg.IssueToken(ctx, session)
	require.NoError(t, err)

	// When: the session is removed twice
	reg.Remove(session)
	reg.Remove(session)

	// Then: removal is idempotent and the queue is empty
	assert.Equal(t, 0, reg.QueueLength())
	assert.Nil(t, reg.ByQueuePosition(session.QueuePosition))
}

func TestRegistry_Broadcast(t *testing.T) {
	// Given: two queued sessions with recording messengers
	reg := newTestRegistry(t, 2, 4)

	first := &entity.Session{Messenger: &recordingMessenger{}}
	second := &entity.Session{Messenger: &recordingMessenger{}}
	reg.Register(first)
	reg.Register(second)
	require.NoError(t, reg.Authenticate(first, "user1", "secret"))
	require.NoError(t, reg.Authenticate(second, "user2", "secret"))

	// When: broadcasting a line
	reg.Broadcast("hello")

	// Then: both sessions received it
	assert.Equal(t, []string{"hello"}, first.Messenger.(*recordingMessenger).Lines())
	assert.Equal(t, []string{"hello"}, second.Messenger.(*recordingMessenger).Lines())
}

func TestRegistry_ResetMatchmaking(t *testing.T) {
	// Given: a full ready queue that started a match
	reg := newTestRegistry(t, 2, 2)

	first := &entity.Session{}
	second := &entity.Session{}
	reg.Register(first)
	reg.Register(second)
	require.NoError(t, reg.Authenticate(first, "user1", "secret"))
	require.NoError(t, reg.Authenticate(second, "user2", "secret"))
	reg.MarkReady(first)
	_, _, start := reg.MarkReady(second)
	require.True(t, start)
	require.True(t, reg.MatchActive())

	// When: matchmaking is reset
	reg.ResetMatchmaking()

	// Then: ready flags are cleared and a fresh round can start
	assert.False(t, reg.MatchActive())
	assert.False(t, first.Ready)
	assert.False(t, second.Ready)

	reg.MarkReady(first)
	_, _, start = reg.MarkReady(second)
	assert.True(t, start)
}
