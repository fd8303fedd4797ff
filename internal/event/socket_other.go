//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

// ABOUTME: Portable socket writes for platforms without unix.Poll
// ABOUTME: Falls back to short write deadlines
package event

func (s *BufferedSocket) write(p []byte) (int, error) {
	return s.writeWithDeadline(p)
}

func (s *BufferedSocket) awaitWritable() error {
	return s.awaitWritableSleep()
}
