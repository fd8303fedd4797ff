// ABOUTME: HTTP status API for the visualization daemon
// ABOUTME: Serves health, output statistics, connected clients and Prometheus metrics
package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Sendspin/sendspin-vis/internal/metrics"
	"github.com/Sendspin/sendspin-vis/internal/version"
	"github.com/Sendspin/sendspin-vis/internal/visualization"
)

const shutdownTimeout = 5 * time.Second

// StatsProvider is satisfied by *visualization.Output
type StatsProvider interface {
	Stats() visualization.Stats
}

// Response is the body of GET /status
type Response struct {
	Product string              `json:"product"`
	Version string              `json:"version"`
	Uptime  string              `json:"uptime"`
	Output  visualization.Stats `json:"output"`
}

// Server is the status HTTP server
type Server struct {
	echo      *echo.Echo
	provider  StatsProvider
	logger    *slog.Logger
	startTime time.Time
}

// New builds the routes. m may be nil, in which case /metrics is not served.
func New(provider StatsProvider, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		provider:  provider,
		logger:    logger,
		startTime: time.Now(),
	}

	e.GET("/healthz", s.handleHealth)
	e.GET("/status", s.handleStatus)
	e.GET("/clients", s.handleClients)
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler(logger)))
	}
	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Serve runs on ln until ctx is cancelled, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.echo.Listener = ln
	s.logger.Info("status API listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start("")
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status API failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("status API shutdown failed", "error", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status API failed: %w", err)
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, Response{
		Product: version.Product,
		Version: version.Version,
		Uptime:  time.Since(s.startTime).Truncate(time.Second).String(),
		Output:  s.provider.Stats(),
	})
}

func (s *Server) handleClients(c echo.Context) error {
	clients := s.provider.Stats().Clients
	if clients == nil {
		clients = []visualization.ClientInfo{}
	}
	return c.JSON(http.StatusOK, clients)
}
