package match

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rollsix/ludo-backend/internal/apperror"
	"github.com/rollsix/ludo-backend/internal/entity"
	"github.com/rollsix/ludo-backend/internal/registry"
	"github.com/rollsix/ludo-backend/internal/turn"
)

const (
	scorePerCapture       = 2
	scorePerFinishedToken = 10
)

// Lifecycle bridges the registry, the turn coordinator and the board engine.
// Turns are driven by a server-side round loop: one runner goroutine per seat
// waits for its grant, runs the turn window, applies the move and hands the
// turn on. A seat whose session dropped is skipped, never waited on forever.
type Lifecycle struct {
	logger   *slog.Logger
	registry *registry.Registry

	roundCap    int
	turnTimeout time.Duration
	roll        func() int

	mu          sync.Mutex
	game        *entity.Game
	coordinator *turn.Coordinator
	seats       []int // seat index -> queue position
	rolls       []chan struct{}
	gone        []chan struct{}
	cancel      context.CancelFunc
	turnsTaken  int
	ended       bool
}

func New(logger *slog.Logger, reg *registry.Registry, roundCap int, turnTimeout time.Duration) *Lifecycle {
	return &Lifecycle{
		logger:      logger.With("component", "match"),
		registry:    reg,
		roundCap:    roundCap,
		turnTimeout: turnTimeout,
		roll:        entity.RollDice,
	}
}

// Start - seats the current queue, transitions the board engine to ongoing
// and launches the per-seat runners. The registry guarantees Start is invoked
// exactly once per filled queue.
func (that *Lifecycle) Start(ctx context.Context) error {
	queued := that.registry.QueuedSessions()

	that.mu.Lock()
	if that.game != nil && !that.ended && !that.game.IsFinished() {
		that.mu.Unlock()
		return fmt.Errorf("%w: match already running", apperror.ErrMatchFull)
	}

	game := entity.NewGame(len(queued))
	if err := game.Start(); err != nil {
		that.mu.Unlock()
		return fmt.Errorf("failed to start game: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)

	that.game = game
	that.coordinator = turn.New(len(queued))
	that.seats = make([]int, len(queued))
	that.rolls = make([]chan struct{}, len(queued))
	that.gone = make([]chan struct{}, len(queued))
	that.cancel = cancel
	that.turnsTaken = 0
	that.ended = false

	for i, session := range queued {
		that.seats[i] = session.QueuePosition
		that.rolls[i] = make(chan struct{}, 1)
		that.gone[i] = make(chan struct{}, 1)
	}

	coordinator := that.coordinator
	that.mu.Unlock()

	that.logger.Info("match starting", "players", len(queued))

	that.registry.Broadcast("All players are ready. The game is starting!")
	that.registry.Broadcast("The game has started! Type 'roll' to roll the dice.")

	for seat := range queued {
		go that.runSeat(runCtx, seat)
	}

	coordinator.Advance(0)

	return nil
}

// SubmitRoll - consumes the session's pending roll command. Rejected when no
// match is running, the match is already over or the session does not hold
// the turn.
func (that *Lifecycle) SubmitRoll(session *entity.Session) error {
	that.mu.Lock()
	coordinator := that.coordinator
	game := that.game
	ended := that.ended
	that.mu.Unlock()

	if game == nil || game.IsWaiting() {
		return apperror.ErrGameIsNotStarted
	}

	if ended || game.IsFinished() {
		return apperror.ErrGameFinished
	}

	seat, ok := that.seatOf(session)
	if !ok || coordinator.Current() != seat {
		return apperror.ErrNotYourTurn
	}

	that.mu.Lock()
	rollCh := that.rolls[seat]
	that.mu.Unlock()

	select {
	case rollCh <- struct{}{}:
	default:
	}

	return nil
}

// NotifyDisconnect - called by the transport on teardown. If the session
// occupied a seat, its turn window is released immediately so the match never
// stalls on a dead connection. Connections that never authenticated carry a
// zero-value queue position, and a superseded connection unwinds after its
// replacement took over the seat; neither owns the seat, so neither may
// release it.
func (that *Lifecycle) NotifyDisconnect(session *entity.Session) {
	if !session.Authenticated {
		return
	}

	seat, ok := that.seatOf(session)
	if !ok {
		return
	}

	if live := that.registry.ByQueuePosition(session.QueuePosition); live != nil && live != session {
		return
	}

	that.mu.Lock()
	goneCh := that.gone[seat]
	that.mu.Unlock()

	select {
	case goneCh <- struct{}{}:
	default:
	}
}

// Status - plain-data summary for the status endpoint.
func (that *Lifecycle) Status() (status string, currentSeat int) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.game == nil {
		return entity.StatusWaiting, -1
	}

	if that.ended || that.game.IsFinished() {
		return entity.StatusFinished, -1
	}

	return entity.StatusOngoing, that.coordinator.Current()
}

func (that *Lifecycle) runSeat(ctx context.Context, seat int) {
	for {
		if err := that.coordinator.WaitForTurn(ctx, seat); err != nil {
			return
		}

		if that.matchOver() {
			that.finish(ctx)
			return
		}

		that.playTurn(ctx, seat)
	}
}

// playTurn - runs one turn window for the seat: prompt, wait for roll /
// timeout / disconnect, apply the move and advance the turn.
func (that *Lifecycle) playTurn(ctx context.Context, seat int) {
	log := that.logger.With("method", "playTurn", "seat", seat)

	that.mu.Lock()
	game := that.game
	position := that.seats[seat]
	rollCh := that.rolls[seat]
	goneCh := that.gone[seat]
	that.mu.Unlock()

	session := that.registry.ByQueuePosition(position)
	if session == nil {
		that.skipSeat(ctx, seat, game)
		return
	}

	// The seat is occupied by a live session, so a gone signal still buffered
	// from before a reconnection is stale.
	select {
	case <-goneCh:
	default:
	}

	that.sendLine(session, fmt.Sprintf("Your turn. Type 'roll' to roll the dice (auto-roll in %s).", that.turnTimeout))

	timer := time.NewTimer(that.turnTimeout)
	defer timer.Stop()

	var steps int

	select {
	case <-rollCh:
		steps = that.roll()
		that.sendLine(session, fmt.Sprintf("You rolled a %d", steps))
	case <-timer.C:
		steps = that.roll()
		that.sendLine(session, fmt.Sprintf("Turn window expired, the server rolled a %d for you.", steps))
	case <-goneCh:
		that.skipSeat(ctx, seat, game)
		return
	case <-ctx.Done():
		return
	}

	result, err := game.MoveToken(seat, steps)
	if err != nil {
		log.Error("move rejected by board engine", "error", err)
		that.advance(ctx, game)
		return
	}

	that.awardPoints(ctx, session, result)
	that.broadcastMove(result)
	that.registry.Broadcast(game.BoardState())

	if result.Ended {
		that.finish(ctx)
		return
	}

	that.advance(ctx, game)
}

// skipSeat - known gap in turn order: the seat has no live session, so the
// board advances without a move.
func (that *Lifecycle) skipSeat(ctx context.Context, seat int, game *entity.Game) {
	if err := game.SkipTurn(seat); err != nil {
		that.logger.Error("failed to skip turn", "seat", seat, "error", err)
		return
	}

	that.registry.Broadcast(fmt.Sprintf("Player %d is disconnected, turn skipped.", seat))
	that.advance(ctx, game)
}

func (that *Lifecycle) advance(ctx context.Context, game *entity.Game) {
	that.mu.Lock()
	that.turnsTaken++
	coordinator := that.coordinator
	that.mu.Unlock()

	if that.matchOver() {
		that.finish(ctx)
		return
	}

	coordinator.Advance(game.CurrentTurn())
}

// matchOver - the engine reached its end or the round cap is exhausted.
func (that *Lifecycle) matchOver() bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.game == nil || that.ended {
		return true
	}

	return that.game.IsFinished() || that.turnsTaken >= that.roundCap*len(that.seats)
}

// finish - broadcasts the final standings exactly once and reopens
// matchmaking.
func (that *Lifecycle) finish(_ context.Context) {
	that.mu.Lock()
	if that.ended || that.game == nil {
		that.mu.Unlock()
		return
	}
	that.ended = true
	game := that.game
	seats := that.seats
	cancel := that.cancel
	that.mu.Unlock()

	that.registry.Broadcast("Game over! Thank you for playing.")
	that.registry.Broadcast(game.BoardState())
	that.registry.Broadcast(that.standings(game, seats))

	that.registry.ResetMatchmaking()
	cancel()

	that.logger.Info("match finished")
}

// standings - final ranking: finished tokens, then score, then seat order.
func (that *Lifecycle) standings(game *entity.Game, seats []int) string {
	type standing struct {
		seat     int
		finished int
		score    int
	}

	snapshot := game.Snapshot()
	ranked := make([]standing, 0, len(snapshot))

	for seat, player := range snapshot {
		score := 0
		if session := that.registry.ByQueuePosition(seats[seat]); session != nil {
			score = session.Score
		}
		ranked = append(ranked, standing{seat: seat, finished: player.FinishedTokens, score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].finished != ranked[j].finished {
			return ranked[i].finished > ranked[j].finished
		}
		return ranked[i].score > ranked[j].score
	})

	result := fmt.Sprintf("Winner: Player %d", ranked[0].seat)
	for _, entry := range ranked {
		result += fmt.Sprintf("\nPlayer %d: %d finished tokens, %d points", entry.seat, entry.finished, entry.score)
	}

	return result
}

func (that *Lifecycle) awardPoints(ctx context.Context, session *entity.Session, result *entity.MoveResult) {
	points := len(result.Captures) * scorePerCapture
	if result.Finished {
		points += scorePerFinishedToken
	}

	if points > 0 {
		that.registry.AddScore(ctx, session, points)
	}
}

func (that *Lifecycle) broadcastMove(result *entity.MoveResult) {
	if !result.Moved {
		that.registry.Broadcast(fmt.Sprintf("Player %d rolled a %d but has no movable token.", result.PlayerID, result.Steps))
		return
	}

	line := fmt.Sprintf("Player %d moved token %d from %d to %d.", result.PlayerID, result.TokenIndex, result.From, result.To)
	if result.Finished {
		line = fmt.Sprintf("Player %d finished token %d!", result.PlayerID, result.TokenIndex)
	}
	for _, capture := range result.Captures {
		line += fmt.Sprintf(" Captured player %d token %d.", capture.PlayerID, capture.TokenIndex)
	}

	that.registry.Broadcast(line)
}

func (that *Lifecycle) seatOf(session *entity.Session) (int, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	for seat, position := range that.seats {
		if position == session.QueuePosition {
			return seat, true
		}
	}

	return 0, false
}

func (that *Lifecycle) sendLine(session *entity.Session, line string) {
	if session.Messenger == nil {
		return
	}

	if err := session.Messenger.SendLine(line); err != nil {
		that.logger.Error("failed to write to session", "session", session.ID, "error", err)
	}
}
