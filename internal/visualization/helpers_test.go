package visualization

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Sendspin/sendspin-vis/internal/event"
	"github.com/Sendspin/sendspin-vis/internal/logging"
)

func startTestLoop(t *testing.T) *event.Loop {
	t.Helper()
	loop := event.NewLoop(logging.Discard())
	go loop.Run()
	t.Cleanup(loop.Stop)
	return loop
}

// newTestOutput builds an output on loopback with an ephemeral port. It is
// destroyed before its loop stops.
func newTestOutput(t *testing.T, cfg Config) (*Output, *event.Loop) {
	t.Helper()
	loop := startTestLoop(t)
	cfg.BindAddress = "127.0.0.1"
	out, err := NewOutput(loop, cfg, logging.Discard(), nil)
	require.NoError(t, err)
	t.Cleanup(out.Destroy)
	return out, loop
}

func serverLen(t *testing.T, out *Output) int {
	t.Helper()
	var n int
	// no require here: this also runs inside Eventually's goroutine
	_ = out.loop.Call(func() { n = out.server.Len() })
	return n
}

func reaperPending(t *testing.T, out *Output) bool {
	t.Helper()
	var pending bool
	require.NoError(t, out.loop.Call(func() { pending = out.server.ReaperPending() }))
	return pending
}

func waitForClients(t *testing.T, out *Output, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return serverLen(t, out) == n },
		2*time.Second, 5*time.Millisecond, "expected %d clients", n)
}

func dial(t *testing.T, out *Output) net.Conn {
	t.Helper()
	addr := out.Stats().Addr
	require.NotEmpty(t, addr, "output is not listening")
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// expectClosedByServer waits for the server side of conn to go away
func expectClosedByServer(t *testing.T, conn net.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1)
	_, err := conn.Read(buf)
	require.Error(t, err)
	if ne, ok := err.(net.Error); ok {
		require.False(t, ne.Timeout(), "server did not close the connection")
	}
}
