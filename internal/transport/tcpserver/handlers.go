package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rollsix/ludo-backend/internal/apperror"
	"github.com/rollsix/ludo-backend/internal/entity"
)

// handshake - reconnection token prompt first, then username/secret
// authentication for a miss. A valid token restores score and queue position
// and skips authentication entirely.
func (that *Server) handshake(ctx context.Context, session *entity.Session, client *client) error {
	if err := client.SendLine("Do you have a token? (yes/no)"); err != nil {
		return err
	}

	answer, err := client.ReadLine()
	if err != nil {
		return err
	}

	if strings.EqualFold(answer, "yes") {
		reconnected, err := that.tryReconnect(ctx, session, client)
		if err != nil {
			return err
		}
		if reconnected {
			return nil
		}
	}

	return that.authenticate(ctx, session, client)
}

func (that *Server) tryReconnect(ctx context.Context, session *entity.Session, client *client) (bool, error) {
	log := that.logger.With("method", "tryReconnect")

	if err := client.SendLine("Enter your token:"); err != nil {
		return false, err
	}

	token, err := client.ReadLine()
	if err != nil {
		return false, err
	}

	err = that.registry.Reconnect(ctx, session, token)
	if errors.Is(err, apperror.ErrTokenNotFound) {
		log.Info("unknown reconnection token, falling back to authentication")
		return false, client.SendLine("Invalid token. Proceeding with normal authentication...")
	}
	if err != nil {
		return false, fmt.Errorf("failed to reconnect: %w", err)
	}

	log.Info("client reconnected", "queue_position", session.QueuePosition)

	return true, client.SendLine("Reconnection successful. Type 'exit' to disconnect, or type anything else to echo:")
}

func (that *Server) authenticate(ctx context.Context, session *entity.Session, client *client) error {
	log := that.logger.With("method", "authenticate")

	if err := client.SendLine("Enter username:"); err != nil {
		return err
	}
	username, err := client.ReadLine()
	if err != nil {
		return err
	}

	if err = client.SendLine("Enter password:"); err != nil {
		return err
	}
	secret, err := client.ReadLine()
	if err != nil {
		return err
	}

	if err = that.registry.Authenticate(session, username, secret); err != nil {
		log.Warn("authentication failed", "username", username, "error", err)

		if errors.Is(err, apperror.ErrMatchFull) {
			_ = client.SendLine("The match is full. Disconnecting...")
		} else {
			_ = client.SendLine("Authentication failed. Disconnecting...")
		}

		return fmt.Errorf("authentication rejected: %w", err)
	}

	token, err := that.registry.IssueToken(ctx, session)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	if err = client.SendLine("Your reconnection token: " + token); err != nil {
		return err
	}
	if err = client.SendLine("Authentication successful. Type 'exit' to disconnect, or type anything else to echo:"); err != nil {
		return err
	}
	if err = client.SendLine(fmt.Sprintf("You are player %d", session.QueuePosition)); err != nil {
		return err
	}

	log.Info("client authenticated", "username", username, "queue_position", session.QueuePosition)

	if that.registry.MinimumPlayersReady() && !that.registry.MatchActive() {
		that.registry.Broadcast("Minimum players connected. Type 'ready' to start the game.")
	}

	return nil
}

// interact - the command loop: exit, ready, roll; anything else is echoed.
func (that *Server) interact(ctx context.Context, session *entity.Session, client *client) error {
	for {
		line, err := client.ReadLine()
		if err != nil {
			return err
		}

		switch strings.ToLower(line) {
		case "exit":
			return nil
		case "ready":
			if err = that.handleReady(ctx, session, client); err != nil {
				return err
			}
		case "roll":
			if err = that.handleRoll(session, client); err != nil {
				return err
			}
		default:
			if err = client.SendLine("Echo: " + line); err != nil {
				return err
			}
		}
	}
}

func (that *Server) handleReady(ctx context.Context, session *entity.Session, client *client) error {
	log := that.logger.With("method", "handleReady")

	if !session.Authenticated {
		return client.SendLine("You must authenticate first.")
	}

	if session.Ready {
		return client.SendLine("You are already ready.")
	}

	ready, total, start := that.registry.MarkReady(session)
	that.registry.Broadcast(fmt.Sprintf("Player %d is ready (%d/%d).", session.QueuePosition, ready, total))

	if !start {
		return nil
	}

	if err := that.lifecycle.Start(ctx); err != nil {
		log.Error("failed to start match", "error", err)
		return client.SendLine("Failed to start the game.")
	}

	return nil
}

func (that *Server) handleRoll(session *entity.Session, client *client) error {
	err := that.lifecycle.SubmitRoll(session)

	switch {
	case errors.Is(err, apperror.ErrGameIsNotStarted):
		return client.SendLine("The game has not started yet.")
	case errors.Is(err, apperror.ErrGameFinished):
		return client.SendLine("The game is already over.")
	case errors.Is(err, apperror.ErrNotYourTurn):
		return client.SendLine("It's not your turn.")
	case err != nil:
		return fmt.Errorf("failed to submit roll: %w", err)
	}

	return nil
}
