package visualization

import (
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sendspin/sendspin-vis/internal/event"
	"github.com/Sendspin/sendspin-vis/internal/logging"
)

// fakeSocket records calls and replays scripted write results
type fakeSocket struct {
	consumed     int
	written      []byte
	writes       []writeResult
	readWanted   bool
	writeWanted  bool
	closed       bool
	scheduleRead int
}

type writeResult struct {
	n   int // -1 writes everything
	err error
}

func (f *fakeSocket) Start()             {}
func (f *fakeSocket) ConsumeInput(n int) { f.consumed += n }
func (f *fakeSocket) ScheduleRead()      { f.readWanted = true; f.scheduleRead++ }
func (f *fakeSocket) CancelRead()        { f.readWanted = false }
func (f *fakeSocket) ScheduleWrite()     { f.writeWanted = true }
func (f *fakeSocket) CancelWrite()       { f.writeWanted = false }
func (f *fakeSocket) Close() error       { f.closed = true; return nil }

func (f *fakeSocket) Write(p []byte) (int, error) {
	r := writeResult{n: -1}
	if len(f.writes) > 0 {
		r = f.writes[0]
		f.writes = f.writes[1:]
	}
	if r.err != nil {
		return 0, r.err
	}
	n := r.n
	if n < 0 || n > len(p) {
		n = len(p)
	}
	f.written = append(f.written, p[:n]...)
	return n, nil
}

func newTestClient(t *testing.T, sock *fakeSocket) (*Client, *SharedState) {
	t.Helper()
	shared := NewSharedState(logging.Discard(), nil)
	c := newClientWithSocket(sock, &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5555}, shared.attach(), logging.Discard(), nil)
	return c, shared
}

func TestClientEchoesInput(t *testing.T) {
	sock := &fakeSocket{readWanted: true}
	c, _ := newTestClient(t, sock)

	result := c.OnSocketInput([]byte("hello"))
	assert.Equal(t, event.InputPause, result)
	assert.Equal(t, 5, sock.consumed)
	assert.True(t, sock.writeWanted)
	assert.Equal(t, clientWriting, c.state)

	c.OnSocketReady(event.FlagWrite)
	assert.Equal(t, "hello", string(sock.written))
	assert.False(t, sock.writeWanted)
	assert.True(t, sock.readWanted)
	assert.Equal(t, clientReading, c.state)
	assert.Empty(t, c.inbound)
	assert.Equal(t, uint64(5), c.Info().BytesEchoed)
}

func TestClientPartialWriteKeepsRemainder(t *testing.T) {
	sock := &fakeSocket{writes: []writeResult{{n: 2}, {n: -1}}}
	c, _ := newTestClient(t, sock)

	c.OnSocketInput([]byte("abcdef"))

	c.OnSocketReady(event.FlagWrite)
	assert.Equal(t, "ab", string(sock.written))
	assert.Equal(t, "cdef", string(c.inbound))
	assert.Equal(t, clientWriting, c.state)
	assert.True(t, sock.writeWanted)

	c.OnSocketReady(event.FlagWrite)
	assert.Equal(t, "abcdef", string(sock.written))
	assert.Equal(t, clientReading, c.state)
}

func TestClientWouldBlockRetries(t *testing.T) {
	sock := &fakeSocket{writes: []writeResult{{err: event.ErrWouldBlock}, {err: event.ErrWouldBlock}, {n: -1}}}
	c, _ := newTestClient(t, sock)

	c.OnSocketInput([]byte("xyz"))

	c.OnSocketReady(event.FlagWrite)
	c.OnSocketReady(event.FlagWrite)
	assert.Empty(t, sock.written)
	assert.Equal(t, clientWriting, c.state)
	assert.True(t, sock.writeWanted)
	assert.False(t, c.IsClosed())

	c.OnSocketReady(event.FlagWrite)
	assert.Equal(t, "xyz", string(sock.written))
	assert.Equal(t, clientReading, c.state)
}

func TestClientInputAccumulatesWhileWriting(t *testing.T) {
	sock := &fakeSocket{writes: []writeResult{{err: event.ErrWouldBlock}}}
	c, _ := newTestClient(t, sock)

	c.OnSocketInput([]byte("one"))
	c.OnSocketReady(event.FlagWrite)
	c.OnSocketInput([]byte("two"))
	c.OnSocketReady(event.FlagWrite)

	assert.Equal(t, "onetwo", string(sock.written))
}

func TestClientWriteErrorsClose(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"peer closed", fmt.Errorf("%w: reset", event.ErrPeerClosed)},
		{"socket closed", net.ErrClosed},
		{"other", errors.New("no route to host")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sock := &fakeSocket{writes: []writeResult{{err: tt.err}}}
			c, _ := newTestClient(t, sock)

			c.OnSocketInput([]byte("data"))
			c.OnSocketReady(event.FlagWrite)

			assert.True(t, c.IsClosed())
			assert.True(t, sock.closed)
			assert.False(t, sock.writeWanted)
			assert.False(t, sock.readWanted)
		})
	}
}

func TestClientHangupAndEOF(t *testing.T) {
	events := map[string]func(c *Client){
		"hangup": func(c *Client) { c.OnSocketReady(event.FlagHangup) },
		"eof":    func(c *Client) { c.OnSocketClosed() },
		"error":  func(c *Client) { c.OnSocketError(errors.New("boom")) },
	}

	for name, fire := range events {
		t.Run(name, func(t *testing.T) {
			sock := &fakeSocket{readWanted: true}
			c, _ := newTestClient(t, sock)

			fire(c)
			assert.True(t, c.IsClosed())
			assert.True(t, sock.closed)

			// later events are ignored
			assert.Equal(t, event.InputClosed, c.OnSocketInput([]byte("late")))
			c.OnSocketReady(event.FlagWrite)
			assert.Empty(t, sock.written)
		})
	}
}

func TestClientIsClosedIsPure(t *testing.T) {
	sock := &fakeSocket{}
	c, _ := newTestClient(t, sock)

	for i := 0; i < 3; i++ {
		assert.False(t, c.IsClosed())
	}
	assert.False(t, sock.closed)
}

func TestClientDestroyReleasesHandle(t *testing.T) {
	sock := &fakeSocket{}
	c, shared := newTestClient(t, sock)
	require.Equal(t, 1, shared.Handles())

	c.destroy()
	assert.True(t, sock.closed)
	assert.Equal(t, 0, shared.Handles())

	c.destroy()
	assert.Equal(t, 0, shared.Handles())
}
