// ABOUTME: Per-connection state machine for a visualization client
// ABOUTME: Currently echoes whatever the client sends back to it
package visualization

import (
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/Sendspin/sendspin-vis/internal/event"
	"github.com/Sendspin/sendspin-vis/internal/metrics"
)

type clientState int

const (
	clientReading clientState = iota
	clientWriting
	clientClosed
)

func (s clientState) String() string {
	switch s {
	case clientReading:
		return "reading"
	case clientWriting:
		return "writing"
	case clientClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// clientSocket is the part of event.BufferedSocket a Client drives
type clientSocket interface {
	Start()
	ConsumeInput(n int)
	Write(p []byte) (int, error)
	ScheduleRead()
	CancelRead()
	ScheduleWrite()
	CancelWrite()
	Close() error
}

// ClientInfo describes a client for status reporting
type ClientInfo struct {
	ID          string    `json:"id"`
	Peer        string    `json:"peer"`
	State       string    `json:"state"`
	ConnectedAt time.Time `json:"connected_at"`
	BytesEchoed uint64    `json:"bytes_echoed"`
}

// Client owns one connection. It lives on the event loop, and failures
// never escape it: every error ends with the client flagged closed for
// the reaper to collect.
type Client struct {
	id          uuid.UUID
	peer        net.Addr
	connectedAt time.Time

	socket  clientSocket
	shared  *stateHandle
	logger  *slog.Logger
	metrics *metrics.Metrics

	inbound     []byte
	state       clientState
	bytesEchoed uint64
}

func newClient(loop *event.Loop, conn net.Conn, peer net.Addr, shared *stateHandle, logger *slog.Logger, m *metrics.Metrics) *Client {
	c := newClientWithSocket(nil, peer, shared, logger, m)
	c.socket = event.NewBufferedSocket(loop, conn, c, logger)
	c.socket.Start()
	return c
}

func newClientWithSocket(socket clientSocket, peer net.Addr, shared *stateHandle, logger *slog.Logger, m *metrics.Metrics) *Client {
	id := uuid.New()
	c := &Client{
		id:          id,
		peer:        peer,
		connectedAt: time.Now(),
		socket:      socket,
		shared:      shared,
		logger:      logger.With("client", id.String()),
		metrics:     m,
	}
	c.logger.Info("client connected",
		"peer", addrString(peer),
		"tid", threadID(),
		"playing", shared.IsOpen())
	return c
}

// ID returns the connection id
func (c *Client) ID() uuid.UUID {
	return c.id
}

// IsClosed reports whether the client is finished. It has no side effects.
func (c *Client) IsClosed() bool {
	return c.state == clientClosed
}

// Info returns a status snapshot
func (c *Client) Info() ClientInfo {
	return ClientInfo{
		ID:          c.id.String(),
		Peer:        addrString(c.peer),
		State:       c.state.String(),
		ConnectedAt: c.connectedAt,
		BytesEchoed: c.bytesEchoed,
	}
}

// OnSocketInput buffers the input and switches to writing it back
func (c *Client) OnSocketInput(data []byte) event.InputResult {
	if c.state == clientClosed {
		return event.InputClosed
	}

	c.logger.Debug("client input", "buffered", len(c.inbound), "bytes", len(data))

	c.inbound = append(c.inbound, data...)
	c.socket.ConsumeInput(len(data))
	c.socket.ScheduleWrite()
	c.state = clientWriting
	return event.InputPause
}

// OnSocketReady handles write readiness and hangups
func (c *Client) OnSocketReady(flags event.Flags) {
	if c.state == clientClosed {
		return
	}

	switch {
	case flags&event.FlagHangup != 0:
		c.logger.Info("client went away")
		c.close()
	case flags&event.FlagWrite != 0:
		c.flush()
	default:
		c.logger.Debug("unexpected socket flags", "flags", flags)
	}
}

func (c *Client) flush() {
	if c.state != clientWriting {
		c.socket.CancelWrite()
		return
	}

	n, err := c.socket.Write(c.inbound)
	switch {
	case err == nil:
	case errors.Is(err, event.ErrWouldBlock):
		c.logger.Debug("write would block, retrying")
		c.socket.ScheduleWrite()
		return
	case errors.Is(err, event.ErrPeerClosed), errors.Is(err, net.ErrClosed):
		c.close()
		return
	default:
		c.logger.Warn("failed to write to client", "error", err)
		c.close()
		return
	}

	c.bytesEchoed += uint64(n)
	c.metrics.AddEchoed(n)

	if n < len(c.inbound) {
		rest := copy(c.inbound, c.inbound[n:])
		c.inbound = c.inbound[:rest]
		return
	}

	c.inbound = c.inbound[:0]
	c.socket.CancelWrite()
	c.socket.ScheduleRead()
	c.state = clientReading
}

// OnSocketClosed handles an orderly shutdown by the peer
func (c *Client) OnSocketClosed() {
	c.logger.Debug("client closed connection")
	c.close()
}

// OnSocketError handles a read failure
func (c *Client) OnSocketError(err error) {
	c.logger.Warn("client socket error", "error", err)
	c.close()
}

// close withdraws all interest and releases the socket. The client stays
// in the server's table until the reaper removes it.
func (c *Client) close() {
	if c.state == clientClosed {
		return
	}
	c.state = clientClosed
	c.inbound = nil
	c.socket.CancelRead()
	c.socket.CancelWrite()
	if err := c.socket.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		c.logger.Debug("error closing client socket", "error", err)
	}
}

// destroy closes the client if needed and drops its shared state handle
func (c *Client) destroy() {
	c.close()
	c.shared.release()
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
