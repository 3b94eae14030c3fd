package apperror

import "errors"

var (
	ErrGameFinished     = errors.New("game is already finished")
	ErrGameIsNotStarted = errors.New("game is not started")
	ErrNotYourTurn      = errors.New("it's not your turn")
	ErrAuthFailed       = errors.New("authentication failed")
	ErrTokenNotFound    = errors.New("reconnection token not found")
	ErrMatchFull        = errors.New("match already has the maximum number of players")
	ErrNotAuthenticated = errors.New("session is not authenticated")
)
