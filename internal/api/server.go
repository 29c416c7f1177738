//
//
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/media-admin/livefeed/internal/auth"
)

// Server represents the HTTP API server.
type Server struct {
	httpServer     *http.Server
	feed           FeedPort
	orchestrator   OrchestratorPort
	folders        FolderReadPort
	authMiddleware *auth.Middleware
	syncLimiter    *rate.Limiter
	logger         *slog.Logger
	startTime      time.Time
	readTimeout    time.Duration
	idleTimeout    time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithAuth protects every route except health with m.
func WithAuth(m *auth.Middleware) Option {
	return func(s *Server) { s.authMiddleware = m }
}

// WithSyncLimit throttles sync requests to perSec with the given burst.
func WithSyncLimit(perSec float64, burst int) Option {
	return func(s *Server) { s.syncLimiter = rate.NewLimiter(rate.Limit(perSec), burst) }
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithTimeouts sets the header read and keep-alive idle timeouts. There is
// no write timeout; update streams stay open indefinitely.
func WithTimeouts(read, idle time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = read
		s.idleTimeout = idle
	}
}

// NewServer creates a new API server.
func NewServer(feed FeedPort, orchestrator OrchestratorPort, folders FolderReadPort, opts ...Option) *Server {
	s := &Server{
		feed:         feed,
		orchestrator: orchestrator,
		folders:      folders,
		syncLimiter:  rate.NewLimiter(rate.Limit(1), 3),
		logger:       slog.Default(),
		startTime:    time.Now(),
		readTimeout:  30 * time.Second,
		idleTimeout:  120 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "api")
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.readTimeout,
		IdleTimeout:       s.idleTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// Start listens on addr and serves until Stop. It returns nil after a
// graceful stop.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("http server listening", "addr", ln.Addr().String())
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server. Open update streams must already
// be closed (feed.Hub.Stop) or Shutdown waits for ctx.
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}
