package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// matchStatus is what the lifecycle exposes to the outside world.
type matchStatus interface {
	Status() (status string, currentSeat int)
}

type queueInfo interface {
	QueueLength() int
}

type Server struct {
	logger    *slog.Logger
	lifecycle matchStatus
	registry  queueInfo
}

func New(logger *slog.Logger, lifecycle matchStatus, registry queueInfo) *Server {
	return &Server{
		logger:    logger.With("component", "rest"),
		lifecycle: lifecycle,
		registry:  registry,
	}
}

// Router - the status endpoints.
func (that *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/ping", that.handlePing).Methods(http.MethodGet)
	router.HandleFunc("/status", that.handleStatus).Methods(http.MethodGet)

	return router
}

// Start - serves the status endpoints until the context is canceled.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      that.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func (that *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("pong")); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
}

func (that *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status, currentSeat := that.lifecycle.Status()

	response := struct {
		Match         string `json:"match"`
		CurrentSeat   int    `json:"current_seat"`
		QueuedPlayers int    `json:"queued_players"`
	}{
		Match:         status,
		CurrentSeat:   currentSeat,
		QueuedPlayers: that.registry.QueueLength(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		that.logger.Error("failed to encode status response", "error", err)
	}
}
