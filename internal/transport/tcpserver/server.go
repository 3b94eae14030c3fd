package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/rollsix/ludo-backend/internal/entity"
	"github.com/rollsix/ludo-backend/internal/match"
	"github.com/rollsix/ludo-backend/internal/registry"
)

// Server accepts persistent TCP connections and speaks the line-oriented
// protocol: one request line in, one or more response lines out.
type Server struct {
	logger    *slog.Logger
	registry  *registry.Registry
	lifecycle *match.Lifecycle
}

func New(logger *slog.Logger, reg *registry.Registry, lifecycle *match.Lifecycle) *Server {
	return &Server{
		logger:    logger.With("component", "tcpserver"),
		registry:  reg,
		lifecycle: lifecycle,
	}
}

// Start - listens on the port and serves until the context is canceled.
func (that *Server) Start(ctx context.Context, port string) error {
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", port, err)
	}

	return that.Serve(ctx, listener)
}

// Serve - accept loop over an existing listener. Exported so tests can serve
// on an ephemeral port.
func (that *Server) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	that.logger.Info("TCP server listening", "addr", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("failed to accept connection: %w", err)
		}

		go that.handleConnection(ctx, conn)
	}
}

// handleConnection - one goroutine per client: handshake, then the command
// loop. Any read failure unwinds here to teardown only, never crashes the
// process.
func (that *Server) handleConnection(ctx context.Context, conn net.Conn) {
	log := that.logger.With("remote", conn.RemoteAddr().String())

	client := newClient(conn)
	session := &entity.Session{Messenger: client}
	that.registry.Register(session)

	defer func() {
		that.registry.Remove(session)
		that.lifecycle.NotifyDisconnect(session)
		_ = conn.Close()
		log.Info("client disconnected")
	}()

	log.Info("client connected")

	if err := that.handshake(ctx, session, client); err != nil {
		log.Warn("handshake failed", "error", err)
		return
	}

	if err := that.interact(ctx, session, client); err != nil {
		log.Error("client interaction ended with error", "error", err)
	}
}
