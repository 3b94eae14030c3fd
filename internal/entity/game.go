package entity

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/rollsix/ludo-backend/internal/apperror"
)

const (
	StatusFinished = "finished"
	StatusOngoing  = "ongoing"
	StatusWaiting  = "waiting"

	// BoardSize is the final square; a token that reaches it never moves again.
	BoardSize       = 52
	TokensPerPlayer = 4

	DiceSides = 6
)

var ErrUnknownGameStatus = errors.New("unknown game status")

// Token is one movable piece. Position 0 is home, BoardSize is finished.
type Token struct {
	Position int `json:"position"`
}

// Player is one seat on the board. ID doubles as the seat index in turn order.
type Player struct {
	ID             int                    `json:"id"`
	Tokens         [TokensPerPlayer]Token `json:"tokens"`
	FinishedTokens int                    `json:"finished_tokens"`
}

// Capture records an opposing token sent back home by a move.
type Capture struct {
	PlayerID   int `json:"player_id"`
	TokenIndex int `json:"token_index"`
}

// MoveResult describes what a single dice application did to the board.
type MoveResult struct {
	PlayerID   int       `json:"player_id"`
	Steps      int       `json:"steps"`
	Moved      bool      `json:"moved"`
	TokenIndex int       `json:"token_index"`
	From       int       `json:"from"`
	To         int       `json:"to"`
	Finished   bool      `json:"finished"`
	Captures   []Capture `json:"captures,omitempty"`
	Ended      bool      `json:"ended"`
}

// Game is the board state machine. All mutation goes through MoveToken,
// SkipTurn and Start under the internal lock; the turn coordinator gates
// callers as well, the engine re-checks the turn on its own.
type Game struct {
	mu      sync.Mutex
	players []*Player
	turn    int
	status  string
}

func NewGame(playerCount int) *Game {
	game := &Game{
		players: make([]*Player, 0, playerCount),
		status:  StatusWaiting,
	}

	for i := 0; i < playerCount; i++ {
		game.players = append(game.players, &Player{ID: i})
	}

	return game
}

// Start - transitions the game from waiting to ongoing.
func (that *Game) Start() error {
	that.mu.Lock()
	defer that.mu.Unlock()

	switch that.status {
	case StatusWaiting:
		that.status = StatusOngoing
		return nil
	case StatusOngoing:
		return fmt.Errorf("%w: game already ongoing", ErrUnknownGameStatus)
	case StatusFinished:
		return apperror.ErrGameFinished
	default:
		return fmt.Errorf("%w: %s", ErrUnknownGameStatus, that.status)
	}
}

// MoveToken - applies a dice roll for playerID. The first token that can
// advance without overshooting BoardSize moves; landing exactly on BoardSize
// finishes the token; any other landing square captures every opposing token
// already on it. A player with no movable token makes a null move. The turn
// always advances by one seat.
func (that *Game) MoveToken(playerID, steps int) (*MoveResult, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.status == StatusWaiting {
		return nil, apperror.ErrGameIsNotStarted
	}

	if that.status == StatusFinished {
		return nil, apperror.ErrGameFinished
	}

	if that.turn != playerID {
		return nil, apperror.ErrNotYourTurn
	}

	result := &MoveResult{PlayerID: playerID, Steps: steps}
	player := that.players[playerID]

	for i := range player.Tokens {
		token := &player.Tokens[i]
		if token.Position+steps > BoardSize {
			continue
		}

		result.Moved = true
		result.TokenIndex = i
		result.From = token.Position
		result.To = token.Position + steps
		token.Position = result.To

		if token.Position == BoardSize {
			result.Finished = true
			player.FinishedTokens++
			if player.FinishedTokens == TokensPerPlayer {
				that.status = StatusFinished
				result.Ended = true
			}
		} else {
			result.Captures = that.captureAt(playerID, token.Position)
		}

		break
	}

	that.turn = (that.turn + 1) % len(that.players)

	return result, nil
}

// SkipTurn - advances the turn without touching the board. Used when the seat
// holding the turn has no connected session.
func (that *Game) SkipTurn(playerID int) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.status == StatusWaiting {
		return apperror.ErrGameIsNotStarted
	}

	if that.status == StatusFinished {
		return apperror.ErrGameFinished
	}

	if that.turn != playerID {
		return apperror.ErrNotYourTurn
	}

	that.turn = (that.turn + 1) % len(that.players)

	return nil
}

// captureAt - sends home every opposing token on the given square.
// Caller must hold the lock.
func (that *Game) captureAt(playerID, position int) []Capture {
	var captures []Capture

	for _, player := range that.players {
		if player.ID == playerID {
			continue
		}

		for i := range player.Tokens {
			if player.Tokens[i].Position == position {
				player.Tokens[i].Position = 0
				captures = append(captures, Capture{PlayerID: player.ID, TokenIndex: i})
			}
		}
	}

	return captures
}

// Snapshot - plain-data copy of every player's tokens and finish count.
func (that *Game) Snapshot() []Player {
	that.mu.Lock()
	defer that.mu.Unlock()

	snapshot := make([]Player, 0, len(that.players))
	for _, player := range that.players {
		snapshot = append(snapshot, *player)
	}

	return snapshot
}

// BoardState - deterministic human-readable rendering used for broadcasts.
func (that *Game) BoardState() string {
	var builder strings.Builder

	builder.WriteString("Board positions:\n")
	for _, player := range that.Snapshot() {
		builder.WriteString(fmt.Sprintf("Player %d:", player.ID))
		for _, token := range player.Tokens {
			builder.WriteString(fmt.Sprintf(" %d", token.Position))
		}
		builder.WriteString("\n")
	}

	return builder.String()
}

func (that *Game) CurrentTurn() int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.turn
}

func (that *Game) PlayerCount() int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return len(that.players)
}

func (that *Game) Status() string {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.status
}

func (that *Game) IsFinished() bool {
	return that.Status() == StatusFinished
}

func (that *Game) IsOngoing() bool {
	return that.Status() == StatusOngoing
}

func (that *Game) IsWaiting() bool {
	return that.Status() == StatusWaiting
}

// RollDice - uniform roll in [1, DiceSides].
func RollDice() int {
	return rand.Intn(DiceSides) + 1 //nolint: gosec // game dice, not a secret
}
