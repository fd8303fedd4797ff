// ABOUTME: Listening server that admits visualization clients
// ABOUTME: Owns every client and reaps closed ones on a timer
package visualization

import (
	"fmt"
	"log/slog"
	"net"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Sendspin/sendspin-vis/internal/event"
	"github.com/Sendspin/sendspin-vis/internal/metrics"
)

const (
	// DefaultPort is the listening port when none is configured
	DefaultPort = 8001

	// DefaultReapInterval is how often closed clients are swept
	DefaultReapInterval = 3 * time.Second
)

// Config holds the output's settings
type Config struct {
	// MaxClients caps retained clients; 0 means unlimited
	MaxClients int `mapstructure:"max_clients" yaml:"max_clients" json:"max_clients"`
	// BindAddress is an interface address, "any", or a unix socket path
	BindAddress  string        `mapstructure:"bind_to_address" yaml:"bind_to_address" json:"bind_to_address"`
	Port         int           `mapstructure:"port" yaml:"port" json:"port"`
	ReapInterval time.Duration `mapstructure:"reap_interval" yaml:"reap_interval" json:"reap_interval"`
}

// DefaultConfig returns the built-in settings
func DefaultConfig() Config {
	return Config{
		Port:         DefaultPort,
		ReapInterval: DefaultReapInterval,
	}
}

// withDefaults fills the reap interval. Port 0 is left alone and asks the
// kernel for an ephemeral port.
func (c Config) withDefaults() Config {
	if c.ReapInterval <= 0 {
		c.ReapInterval = DefaultReapInterval
	}
	return c
}

// Server accepts connections and owns the resulting clients. Apart from
// construction, every method must run on the event loop.
type Server struct {
	loop    *event.Loop
	config  Config
	shared  *SharedState
	logger  *slog.Logger
	metrics *metrics.Metrics

	listener  *event.Listener
	clients   map[uuid.UUID]*Client
	reaper    *event.Timer
	rejectLog *rate.Limiter
	open      bool
	destroyed bool
}

// NewServer creates a closed server
func NewServer(loop *event.Loop, cfg Config, shared *SharedState, logger *slog.Logger, m *metrics.Metrics) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		loop:      loop,
		config:    cfg.withDefaults(),
		shared:    shared,
		logger:    logger,
		metrics:   m,
		clients:   make(map[uuid.UUID]*Client),
		rejectLog: rate.NewLimiter(rate.Every(time.Second), 3),
	}
	s.listener = event.NewListener(loop, s, logger)
	s.reaper = event.NewTimer(loop, s.ReapClients)
	return s
}

// Open starts listening on the configured address
func (s *Server) Open() error {
	if s.destroyed {
		return ErrDestroyed
	}
	if s.open {
		return nil
	}

	network, address := event.ListenAddress(s.config.BindAddress, s.config.Port)
	if err := s.listener.Open(network, address); err != nil {
		return fmt.Errorf("failed to open visualization server: %w", err)
	}
	s.open = true
	s.metrics.SetServerOpen(true)

	s.logger.Info("visualization server listening",
		"addr", s.listener.Addr().String(),
		"max_clients", s.config.MaxClients,
		"tid", threadID())
	return nil
}

// Close stops accepting, then destroys every client. All client sockets
// are released when it returns.
func (s *Server) Close() {
	if !s.open && len(s.clients) == 0 {
		return
	}

	s.logger.Info("shutting down visualization server",
		"clients", len(s.clients),
		"tid", threadID())

	s.open = false
	if err := s.listener.Close(); err != nil {
		s.logger.Debug("error closing listener", "error", err)
	}
	s.reaper.Cancel()

	for id, c := range s.clients {
		c.destroy()
		delete(s.clients, id)
	}
	s.metrics.SetClientsConnected(0)
	s.metrics.SetServerOpen(false)
}

// Destroy releases everything the server holds. The server cannot be
// reopened afterwards.
func (s *Server) Destroy() {
	s.Close()
	s.destroyed = true
}

// OnAccept admits or rejects a new connection
func (s *Server) OnAccept(conn net.Conn, peer net.Addr) {
	s.logger.Debug("accepting connection", "peer", addrString(peer), "tid", threadID())

	if !s.open {
		conn.Close()
		return
	}

	// closed clients keep their slot until reaped
	if s.config.MaxClients > 0 && len(s.clients) >= s.config.MaxClients {
		s.metrics.IncrementRejected()
		if s.rejectLog.Allow() {
			s.logger.Error("rejecting connection, maximum number of clients reached",
				"max_clients", s.config.MaxClients,
				"peer", addrString(peer))
		}
		conn.Close()
		return
	}

	c := newClient(s.loop, conn, peer, s.shared.attach(), s.logger, s.metrics)
	s.clients[c.ID()] = c
	s.metrics.IncrementAccepted()
	s.metrics.SetClientsConnected(len(s.clients))

	if !s.reaper.IsPending() {
		s.reaper.Schedule(s.config.ReapInterval)
	}
}

// ReapClients removes closed clients and re-arms itself while any remain
func (s *Server) ReapClients() {
	s.logger.Debug("reaping clients", "clients", len(s.clients), "tid", threadID())

	reaped := 0
	for id, c := range s.clients {
		if c.IsClosed() {
			c.destroy()
			delete(s.clients, id)
			reaped++
		}
	}
	if reaped > 0 {
		s.logger.Info("reaped closed clients", "reaped", reaped, "remaining", len(s.clients))
	}
	s.metrics.AddReaped(reaped)
	s.metrics.SetClientsConnected(len(s.clients))

	if len(s.clients) > 0 {
		s.reaper.Schedule(s.config.ReapInterval)
	}
}

// IsOpen reports whether the server is listening
func (s *Server) IsOpen() bool {
	return s.open
}

// Addr returns the listening address, or nil when closed
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Len returns the number of clients held, closed or not
func (s *Server) Len() int {
	return len(s.clients)
}

// ReaperPending reports whether a reaping pass is scheduled
func (s *Server) ReaperPending() bool {
	return s.reaper.IsPending()
}

// Snapshot describes every client, oldest first
func (s *Server) Snapshot() []ClientInfo {
	out := make([]ClientInfo, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c.Info())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}
