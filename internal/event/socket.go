// ABOUTME: Buffered, event-driven wrapper around a stream connection
// ABOUTME: Delivers input and write readiness to a handler on the loop
package event

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"syscall"
	"time"
)

var (
	// ErrWouldBlock is returned by Write when the kernel send buffer is full.
	ErrWouldBlock = errors.New("socket write would block")

	// ErrPeerClosed is returned by Write when the remote end has gone away.
	ErrPeerClosed = errors.New("socket closed by peer")
)

// readChunk is the most a single read hands to the handler
const readChunk = 8192

// InputResult tells the socket what to do after OnSocketInput
type InputResult int

const (
	// InputMore keeps reading
	InputMore InputResult = iota
	// InputPause stops reading until ScheduleRead
	InputPause
	// InputClosed means the handler closed the socket
	InputClosed
)

// Flags describe a readiness event
type Flags uint8

const (
	FlagWrite Flags = 1 << iota
	FlagHangup
)

// SocketHandler receives socket events. Every method runs on the loop.
type SocketHandler interface {
	// OnSocketInput is called with all unconsumed input
	OnSocketInput(data []byte) InputResult
	// OnSocketReady is called when write interest is satisfied or the peer hung up
	OnSocketReady(flags Flags)
	// OnSocketClosed is called when the peer closed its end cleanly
	OnSocketClosed()
	// OnSocketError is called for any other read failure
	OnSocketError(err error)
}

// BufferedSocket owns a connection. A reader goroutine delivers input to
// the loop one chunk at a time and waits for the loop before reading more.
// All methods except construction must be called from the loop.
type BufferedSocket struct {
	loop    *Loop
	conn    net.Conn
	raw     syscall.RawConn
	handler SocketHandler
	logger  *slog.Logger

	input        []byte
	readPaused   bool
	writeWanted  bool
	writeBlocked bool
	readyPosted  bool
	waiting      bool
	started      bool
	closed       bool

	resume chan struct{}
	quit   chan struct{}
	wg     sync.WaitGroup
}

// NewBufferedSocket wraps conn. Call Start to begin reading.
func NewBufferedSocket(loop *Loop, conn net.Conn, handler SocketHandler, logger *slog.Logger) *BufferedSocket {
	if logger == nil {
		logger = slog.Default()
	}

	s := &BufferedSocket{
		loop:    loop,
		conn:    conn,
		handler: handler,
		logger:  logger,
		resume:  make(chan struct{}, 1),
		quit:    make(chan struct{}),
	}

	if sc, ok := conn.(syscall.Conn); ok {
		if raw, err := sc.SyscallConn(); err == nil {
			s.raw = raw
		}
	}
	return s
}

// Start launches the reader goroutine
func (s *BufferedSocket) Start() {
	if s.started || s.closed {
		return
	}
	s.started = true
	s.wg.Add(1)
	go s.readLoop()
}

// RemoteAddr returns the peer address
func (s *BufferedSocket) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// ConsumeInput discards the first n bytes of buffered input
func (s *BufferedSocket) ConsumeInput(n int) {
	if n >= len(s.input) {
		s.input = s.input[:0]
		return
	}
	rest := copy(s.input, s.input[n:])
	s.input = s.input[:rest]
}

// Write sends as much of p as the kernel accepts without blocking.
// It returns ErrWouldBlock when nothing could be sent and wraps
// ErrPeerClosed when the connection was reset.
func (s *BufferedSocket) Write(p []byte) (int, error) {
	if s.closed {
		return 0, net.ErrClosed
	}
	n, err := s.write(p)
	if errors.Is(err, ErrWouldBlock) {
		s.writeBlocked = true
	}
	return n, err
}

// ScheduleRead resumes input delivery after InputPause or CancelRead
func (s *BufferedSocket) ScheduleRead() {
	if s.closed || !s.readPaused {
		return
	}
	s.readPaused = false

	if len(s.input) > 0 {
		s.loop.Post(s.dispatchInput)
		return
	}
	s.resumeReader()
}

// CancelRead stops input delivery; data read meanwhile stays buffered
func (s *BufferedSocket) CancelRead() {
	s.readPaused = true
}

// ScheduleWrite asks for OnSocketReady(FlagWrite) once the socket can accept data
func (s *BufferedSocket) ScheduleWrite() {
	if s.closed {
		return
	}
	s.writeWanted = true
	s.armWrite()
}

// CancelWrite withdraws write interest
func (s *BufferedSocket) CancelWrite() {
	s.writeWanted = false
}

// IsClosed reports whether Close has been called
func (s *BufferedSocket) IsClosed() bool {
	return s.closed
}

// Close releases the connection and waits for the helper goroutines
func (s *BufferedSocket) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.writeWanted = false
	close(s.quit)
	err := s.conn.Close()
	s.wg.Wait()
	return err
}

func (s *BufferedSocket) readLoop() {
	defer s.wg.Done()

	buf := make([]byte, readChunk)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			if !s.loop.Post(func() { s.onRead(data) }) {
				return
			}
			select {
			case <-s.resume:
			case <-s.quit:
				return
			}
		}
		if err != nil {
			s.loop.Post(func() { s.onReadError(err) })
			return
		}
	}
}

func (s *BufferedSocket) resumeReader() {
	select {
	case s.resume <- struct{}{}:
	default:
	}
}

func (s *BufferedSocket) onRead(data []byte) {
	if s.closed {
		return
	}
	s.input = append(s.input, data...)
	if s.readPaused {
		return
	}
	s.dispatchInput()
}

func (s *BufferedSocket) dispatchInput() {
	if s.closed || s.readPaused {
		return
	}

	switch s.handler.OnSocketInput(s.input) {
	case InputMore:
		if !s.closed && !s.readPaused {
			s.resumeReader()
		}
	case InputPause:
		s.readPaused = true
	case InputClosed:
	}
}

func (s *BufferedSocket) onReadError(err error) {
	if s.closed {
		return
	}

	switch {
	case errors.Is(err, io.EOF):
		s.handler.OnSocketClosed()
	case errors.Is(err, net.ErrClosed):
	case isHangup(err):
		s.handler.OnSocketReady(FlagHangup)
	default:
		s.handler.OnSocketError(err)
	}
}

func (s *BufferedSocket) armWrite() {
	if s.writeBlocked {
		s.startWriteWaiter()
		return
	}
	if s.readyPosted {
		return
	}
	s.readyPosted = true
	s.loop.Post(func() {
		s.readyPosted = false
		s.dispatchReady()
	})
}

func (s *BufferedSocket) dispatchReady() {
	if s.closed || !s.writeWanted {
		return
	}

	s.handler.OnSocketReady(FlagWrite)

	// level triggered: keep firing while interest remains
	if !s.closed && s.writeWanted {
		s.armWrite()
	}
}

func (s *BufferedSocket) startWriteWaiter() {
	if s.waiting {
		return
	}
	s.waiting = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.awaitWritable()
		s.loop.Post(func() {
			s.waiting = false
			if s.closed {
				return
			}
			s.writeBlocked = false
			if err != nil && !errors.Is(err, net.ErrClosed) {
				s.handler.OnSocketError(err)
				return
			}
			s.dispatchReady()
		})
	}()
}

// writeWithDeadline is the portable non-blocking write: a write that
// cannot complete within a short window counts as would-block.
func (s *BufferedSocket) writeWithDeadline(p []byte) (int, error) {
	if err := s.conn.SetWriteDeadline(time.Now().Add(fallbackWriteWindow)); err != nil {
		return 0, err
	}
	n, err := s.conn.Write(p)
	_ = s.conn.SetWriteDeadline(time.Time{})

	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, os.ErrDeadlineExceeded):
		if n > 0 {
			return n, nil
		}
		return 0, ErrWouldBlock
	case errors.Is(err, io.ErrClosedPipe), isHangup(err):
		return n, errors.Join(ErrPeerClosed, err)
	default:
		return n, err
	}
}

// awaitWritableSleep polls by sleeping, for connections without a file descriptor
func (s *BufferedSocket) awaitWritableSleep() error {
	select {
	case <-s.quit:
		return net.ErrClosed
	case <-time.After(fallbackWriteWindow):
		return nil
	}
}

const fallbackWriteWindow = 2 * time.Millisecond

func isHangup(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNABORTED)
}
