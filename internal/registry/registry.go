package registry

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rollsix/ludo-backend/internal/apperror"
	"github.com/rollsix/ludo-backend/internal/auth"
	"github.com/rollsix/ludo-backend/internal/entity"
	"github.com/rollsix/ludo-backend/internal/repository"
)

// Registry tracks every live session, the authenticated queue and the
// token map. One mutex guards all three so the ready-count check that
// triggers a match start is atomic with the insertion that caused it.
type Registry struct {
	logger  *slog.Logger
	checker auth.Checker
	states  repository.SessionStateRepository

	minPlayers int
	maxPlayers int

	mu          sync.Mutex
	sessions    map[string]*entity.Session // by session ID, every live connection
	queue       []*entity.Session          // authenticated, ordered by queue position
	tokens      map[string]*entity.Session // reconnection token -> live session
	nextQueue   int
	matchActive bool
}

func New(logger *slog.Logger, checker auth.Checker, states repository.SessionStateRepository, minPlayers, maxPlayers int) *Registry {
	return &Registry{
		logger:     logger.With("component", "registry"),
		checker:    checker,
		states:     states,
		minPlayers: minPlayers,
		maxPlayers: maxPlayers,
		sessions:   make(map[string]*entity.Session),
		tokens:     make(map[string]*entity.Session),
	}
}

// Register - adds a newly connected session. No ordering guarantee.
func (that *Registry) Register(session *entity.Session) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if session.ID == "" {
		session.ID = newOpaqueID()
	}

	that.sessions[session.ID] = session
}

// Authenticate - delegates to the credential checker; on success marks the
// session authenticated and assigns the next queue position. Failure does not
// mutate queue state.
func (that *Registry) Authenticate(session *entity.Session, username, secret string) error {
	if !that.checker.Check(username, secret) {
		return apperror.ErrAuthFailed
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	if len(that.queue) >= that.maxPlayers {
		return apperror.ErrMatchFull
	}

	session.Authenticated = true
	session.QueuePosition = that.nextQueue
	that.nextQueue++

	that.enqueueLocked(session)

	that.logger.Info("session authenticated", "username", username, "queue_position", session.QueuePosition)

	return nil
}

// IssueToken - generates a token distinct from all live tokens, stores the
// mapping and persists the session snapshot.
func (that *Registry) IssueToken(ctx context.Context, session *entity.Session) (string, error) {
	that.mu.Lock()

	token := newOpaqueID()
	for _, taken := that.tokens[token]; taken; _, taken = that.tokens[token] {
		token = newOpaqueID()
	}

	session.Token = token
	that.tokens[token] = session

	that.mu.Unlock()

	if err := that.states.Save(ctx, session.State()); err != nil {
		return "", fmt.Errorf("failed to persist session state: %w", err)
	}

	return token, nil
}

// Reconnect - re-attaches a new connection to the state behind a token. The
// new session inherits score and queue position and supersedes any live
// session still holding the token.
func (that *Registry) Reconnect(ctx context.Context, session *entity.Session, token string) error {
	state, err := that.states.GetByToken(ctx, token)
	if errors.Is(err, repository.ErrSessionStateNotFound) {
		return apperror.ErrTokenNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up session state: %w", err)
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	if previous, ok := that.tokens[token]; ok && previous != session {
		that.removeLocked(previous)
	}

	session.Token = token
	session.Authenticated = true
	session.Score = state.Score
	session.QueuePosition = state.QueuePosition
	that.tokens[token] = session

	that.enqueueLocked(session)

	that.logger.Info("session reconnected", "queue_position", session.QueuePosition)

	return nil
}

// MarkReady - flags the session ready and reports progress. start is true for
// exactly one caller: the one whose ready flag completes the full queue while
// the minimum seat count is met and no match is running.
func (that *Registry) MarkReady(session *entity.Session) (ready, total int, start bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	session.Ready = true

	total = len(that.queue)
	for _, queued := range that.queue {
		if queued.Ready {
			ready++
		}
	}

	if ready == total && total >= that.minPlayers && !that.matchActive {
		that.matchActive = true
		start = true
	}

	return ready, total, start
}

// MinimumPlayersReady - true when enough authenticated sessions are queued.
func (that *Registry) MinimumPlayersReady() bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	return len(that.queue) >= that.minPlayers
}

// Remove - drops the session from the live set, the queue and the token map.
// Idempotent. The persisted snapshot survives so the token can still
// reconnect.
func (that *Registry) Remove(session *entity.Session) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.removeLocked(session)
}

// AddScore - credits points to the session and refreshes its snapshot.
func (that *Registry) AddScore(ctx context.Context, session *entity.Session, points int) {
	that.mu.Lock()
	session.Score += points
	state := session.State()
	that.mu.Unlock()

	if session.Token == "" {
		return
	}

	if err := that.states.Save(ctx, state); err != nil {
		that.logger.Error("failed to persist score", "error", err)
	}
}

// QueuedSessions - snapshot of the authenticated queue in queue-position order.
func (that *Registry) QueuedSessions() []*entity.Session {
	that.mu.Lock()
	defer that.mu.Unlock()

	queued := make([]*entity.Session, len(that.queue))
	copy(queued, that.queue)

	return queued
}

// ByQueuePosition - the live session holding a queue position, or nil. Used
// by the match lifecycle to find the connection behind a seat, including a
// reconnected one.
func (that *Registry) ByQueuePosition(position int) *entity.Session {
	that.mu.Lock()
	defer that.mu.Unlock()

	for _, session := range that.queue {
		if session.QueuePosition == position {
			return session
		}
	}

	return nil
}

// Broadcast - sends a line to every queued session. Write failures are logged
// and left to each connection's own read loop to detect and tear down.
func (that *Registry) Broadcast(line string) {
	for _, session := range that.QueuedSessions() {
		if session.Messenger == nil {
			continue
		}

		if err := session.Messenger.SendLine(line); err != nil {
			that.logger.Error("broadcast write failed", "session", session.ID, "error", err)
		}
	}
}

// ResetMatchmaking - clears ready flags after a match so the queue can fill
// up for a fresh round.
func (that *Registry) ResetMatchmaking() {
	that.mu.Lock()
	defer that.mu.Unlock()

	for _, session := range that.queue {
		session.Ready = false
	}

	that.matchActive = false
}

func (that *Registry) QueueLength() int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return len(that.queue)
}

func (that *Registry) MatchActive() bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.matchActive
}

// enqueueLocked - inserts in queue-position order. A queue position collision
// is a programming error and fails loudly.
func (that *Registry) enqueueLocked(session *entity.Session) {
	for _, queued := range that.queue {
		if queued == session {
			return
		}
		if queued.QueuePosition == session.QueuePosition {
			panic(fmt.Sprintf("queue position collision: %d", session.QueuePosition))
		}
	}

	inserted := false
	for i, queued := range that.queue {
		if session.QueuePosition < queued.QueuePosition {
			that.queue = append(that.queue[:i], append([]*entity.Session{session}, that.queue[i:]...)...)
			inserted = true
			break
		}
	}

	if !inserted {
		that.queue = append(that.queue, session)
	}
}

func (that *Registry) removeLocked(session *entity.Session) {
	delete(that.sessions, session.ID)

	for i, queued := range that.queue {
		if queued == session {
			that.queue = append(that.queue[:i], that.queue[i+1:]...)
			break
		}
	}

	if session.Token != "" && that.tokens[session.Token] == session {
		delete(that.tokens, session.Token)
	}
}

// newOpaqueID - random URL-safe identifier for sessions and reconnection
// tokens.
func newOpaqueID() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Errorf("failed to read random bytes: %w", err))
	}

	return base64.RawURLEncoding.EncodeToString(b)
}
