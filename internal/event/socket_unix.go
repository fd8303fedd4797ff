//go:build linux || darwin || freebsd || netbsd || openbsd

// ABOUTME: Non-blocking socket writes on unix using the raw file descriptor
// ABOUTME: Waits for writability through the runtime poller
package event

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

func (s *BufferedSocket) write(p []byte) (int, error) {
	if s.raw == nil {
		return s.writeWithDeadline(p)
	}

	var (
		n    int
		werr error
	)
	err := s.raw.Write(func(fd uintptr) bool {
		for {
			n, werr = unix.Write(int(fd), p)
			if werr != unix.EINTR {
				return true
			}
		}
	})
	if err != nil {
		return 0, err
	}

	switch {
	case werr == nil:
		return n, nil
	case errors.Is(werr, unix.EAGAIN):
		return 0, ErrWouldBlock
	case errors.Is(werr, unix.EPIPE), errors.Is(werr, unix.ECONNRESET):
		return 0, fmt.Errorf("%w: %w", ErrPeerClosed, werr)
	default:
		return 0, werr
	}
}

// awaitWritable blocks until the descriptor accepts data or is closed.
// The zero-timeout poll runs after the poller has been re-armed, so an
// edge between the check and the wait is not lost.
func (s *BufferedSocket) awaitWritable() error {
	if s.raw == nil {
		return s.awaitWritableSleep()
	}

	return s.raw.Write(func(fd uintptr) bool {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
		n, err := unix.Poll(fds, 0)
		return err == nil && n > 0
	})
}
