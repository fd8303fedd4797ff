// ABOUTME: Accepting socket that delivers new connections on the event loop
// ABOUTME: Supports TCP and unix domain addresses
package event

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// AcceptHandler receives connections accepted by a Listener, on the loop
type AcceptHandler interface {
	OnAccept(conn net.Conn, peer net.Addr)
}

// ListenAddress maps a bind address and port to a network and address for
// net.Listen. An empty bind or "any" means every interface; a bind starting
// with "/" or "@" names a unix socket and the port is ignored.
func ListenAddress(bind string, port int) (network, address string) {
	switch {
	case bind == "" || bind == "any":
		return "tcp", ":" + strconv.Itoa(port)
	case strings.HasPrefix(bind, "/") || strings.HasPrefix(bind, "@"):
		return "unix", bind
	default:
		return "tcp", net.JoinHostPort(bind, strconv.Itoa(port))
	}
}

// Listener accepts connections on a helper goroutine and posts each one to
// the loop. Open and Close must be called from the loop.
type Listener struct {
	loop    *Loop
	handler AcceptHandler
	logger  *slog.Logger

	ln   net.Listener
	quit chan struct{}
	wg   sync.WaitGroup
}

// NewListener creates a closed listener
func NewListener(loop *Loop, handler AcceptHandler, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{loop: loop, handler: handler, logger: logger}
}

// Open starts listening on the given address
func (l *Listener) Open(network, address string) error {
	if l.ln != nil {
		return fmt.Errorf("listener already open on %s", l.ln.Addr())
	}

	if network == "unix" {
		removeStaleSocket(address)
	}

	ln, err := net.Listen(network, address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s %s: %w", network, address, err)
	}

	l.ln = ln
	l.quit = make(chan struct{})
	l.wg.Add(1)
	go l.acceptLoop(ln, l.quit)

	l.logger.Debug("listening", "network", network, "addr", ln.Addr().String())
	return nil
}

// Close stops accepting and waits for the accept goroutine to exit.
// Connections still queued on the loop are closed when delivered.
func (l *Listener) Close() error {
	if l.ln == nil {
		return nil
	}
	ln := l.ln
	l.ln = nil
	close(l.quit)
	err := ln.Close()
	l.wg.Wait()
	return err
}

// Addr returns the bound address, or nil when closed
func (l *Listener) Addr() net.Addr {
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// IsOpen reports whether the listener is accepting
func (l *Listener) IsOpen() bool {
	return l.ln != nil
}

func (l *Listener) acceptLoop(ln net.Listener, quit chan struct{}) {
	defer l.wg.Done()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}

			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			l.logger.Warn("accept failed", "error", err, "retry_in", backoff)

			select {
			case <-quit:
				return
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0

		delivered := l.loop.post(task{
			run:    func() { l.deliver(ln, conn) },
			cancel: func() { conn.Close() },
		})
		if !delivered {
			conn.Close()
			return
		}
	}
}

func (l *Listener) deliver(ln net.Listener, conn net.Conn) {
	if l.ln != ln {
		// closed or reopened since this connection was accepted
		conn.Close()
		return
	}
	l.handler.OnAccept(conn, conn.RemoteAddr())
}

func removeStaleSocket(path string) {
	if strings.HasPrefix(path, "@") {
		return
	}
	if fi, err := os.Lstat(path); err == nil && fi.Mode()&os.ModeSocket != 0 {
		os.Remove(path)
	}
}
