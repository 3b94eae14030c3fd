package application

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rollsix/ludo-backend/internal/auth"
	"github.com/rollsix/ludo-backend/internal/config"
	"github.com/rollsix/ludo-backend/internal/match"
	"github.com/rollsix/ludo-backend/internal/registry"
	"github.com/rollsix/ludo-backend/internal/repository"
	"github.com/rollsix/ludo-backend/internal/repository/storage"
	"github.com/rollsix/ludo-backend/internal/transport/rest"
	"github.com/rollsix/ludo-backend/internal/transport/tcpserver"
)

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	checker, err := auth.NewStaticChecker(auth.DefaultCredentials())
	if err != nil {
		return fmt.Errorf("failed to build credential checker: %w", err)
	}

	states, err := buildSessionStateRepository(ctx, logger, conf)
	if err != nil {
		return err
	}

	sessionRegistry := registry.New(logger, checker, states, conf.Game.MinPlayers, conf.Game.MaxPlayers)
	lifecycle := match.New(logger, sessionRegistry, conf.Game.RoundCap, conf.Game.TurnTimeout())

	// run game TCP server
	tcpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting TCP server", "port", conf.TCPPort)
		tcpServer := tcpserver.New(logger, sessionRegistry, lifecycle)
		if tcpErr := tcpServer.Start(ctx, conf.TCPPort); tcpErr != nil {
			log.Error("TCP server error", "error", tcpErr)
			tcpErrCh <- tcpErr
		}
	}()

	// run status HTTP server
	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		restServer := rest.New(logger, lifecycle, sessionRegistry)
		if httpErr := restServer.Start(ctx, conf.HTTPPort); httpErr != nil {
			log.Error("HTTP server error", "error", httpErr)
			httpErrCh <- httpErr
		}
	}()

	select {
	case err = <-tcpErrCh:
		return fmt.Errorf("TCP server error: %w", err)
	case err = <-httpErrCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		return nil
	}
}

// buildSessionStateRepository - in-memory store by default, redis when
// enabled in config.
func buildSessionStateRepository(ctx context.Context, logger *slog.Logger, conf *config.Config) (repository.SessionStateRepository, error) {
	if !conf.Redis.Enabled {
		return repository.NewMemorySessionStateRepository(), nil
	}

	redisClient, err := storage.New(ctx, conf.Redis.GetRedisAddr())
	if err != nil {
		return nil, fmt.Errorf("could not connect to redis storage: %w", err)
	}

	go func() {
		<-ctx.Done()
		if err := redisClient.Close(); err != nil {
			logger.Error("could not close redis storage", "error", err)
		}
	}()

	return repository.NewRedisSessionStateRepository(redisClient), nil
}
