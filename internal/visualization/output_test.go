package visualization

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sendspin/sendspin-vis/internal/event"
	"github.com/Sendspin/sendspin-vis/internal/logging"
	"github.com/Sendspin/sendspin-vis/pkg/audio"
)

func TestOutputLifecycleRepeats(t *testing.T) {
	out, _ := newTestOutput(t, Config{})

	for round := 0; round < 2; round++ {
		require.NoError(t, out.Enable())
		addr := out.Stats().Addr
		require.NotEmpty(t, addr)

		require.NoError(t, out.Open(cdFormat))
		for i := 0; i < 10; i++ {
			assert.Equal(t, 1024, out.Play(make([]byte, 1024)))
		}
		assert.Equal(t, uint64(10*1024), out.Stats().Playback.Bytes)
		out.Close()

		out.Disable()
		stats := out.Stats()
		assert.False(t, stats.Listening)
		assert.Empty(t, stats.Addr)

		_, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		assert.Error(t, err, "listener should be closed after Disable")
	}
}

func TestOutputEnableTwiceIsHarmless(t *testing.T) {
	out, _ := newTestOutput(t, Config{})
	require.NoError(t, out.Enable())
	addr := out.Stats().Addr

	require.NoError(t, out.Enable())
	assert.Equal(t, addr, out.Stats().Addr)
}

func TestOutputEnableBadAddress(t *testing.T) {
	loop := startTestLoop(t)
	out, err := NewOutput(loop, Config{BindAddress: "192.0.2.1", Port: 0}, logging.Discard(), nil)
	require.NoError(t, err)
	defer out.Destroy()

	assert.Error(t, out.Enable())
	assert.False(t, out.Stats().Listening)
}

func TestOutputRejectsNegativeMaxClients(t *testing.T) {
	loop := startTestLoop(t)
	_, err := NewOutput(loop, Config{MaxClients: -1}, logging.Discard(), nil)
	assert.Error(t, err)
}

func TestOutputStats(t *testing.T) {
	out, _ := newTestOutput(t, Config{})
	require.NoError(t, out.Enable())
	require.NoError(t, out.Open(cdFormat))
	out.Play(make([]byte, 4))

	dial(t, out)
	waitForClients(t, out, 1)

	stats := out.Stats()
	assert.True(t, stats.Listening)
	assert.True(t, stats.Playback.Open)
	assert.Equal(t, cdFormat, stats.Playback.Format)
	require.Len(t, stats.Clients, 1)
	assert.Equal(t, "reading", stats.Clients[0].State)
	assert.NotEmpty(t, stats.Clients[0].ID)
}

func TestOutputPlayWhileClosedPanics(t *testing.T) {
	out, _ := newTestOutput(t, Config{})
	assert.Panics(t, func() { out.Play([]byte{1}) })
}

func TestOutputOpenInvalidFormat(t *testing.T) {
	out, _ := newTestOutput(t, Config{})
	assert.ErrorIs(t, out.Open(audio.Format{}), audio.ErrInvalidFormat)
}

func TestOutputDestroyWithConnectionsInFlight(t *testing.T) {
	loop := startTestLoop(t)
	out, err := NewOutput(loop, Config{BindAddress: "127.0.0.1"}, logging.Discard(), nil)
	require.NoError(t, err)
	require.NoError(t, out.Enable())

	addr := out.Stats().Addr
	var conns []net.Conn
	for i := 0; i < 5; i++ {
		conn, err := net.Dial("tcp", addr)
		require.NoError(t, err)
		conns = append(conns, conn)
		_, _ = conn.Write([]byte("mid-flight"))
	}
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()

	// no waiting for accepts: some connections may still be queued
	assert.NotPanics(t, out.Destroy)
	assert.Equal(t, 0, out.state.Handles())
	assert.Equal(t, 0, serverLen(t, out))

	for _, c := range conns {
		expectClosedByServer(t, c)
	}

	assert.NotPanics(t, out.Destroy)
	assert.ErrorIs(t, out.Enable(), ErrDestroyed)
}

func TestOutputTeardownAfterLoopStopped(t *testing.T) {
	loop := event.NewLoop(logging.Discard())
	go loop.Run()

	out, err := NewOutput(loop, Config{BindAddress: "127.0.0.1"}, logging.Discard(), nil)
	require.NoError(t, err)
	require.NoError(t, out.Enable())

	conn := dial(t, out)
	waitForClients(t, out, 1)

	loop.Stop()

	assert.ErrorIs(t, out.Enable(), event.ErrLoopStopped)

	// teardown runs on the caller once the loop is gone
	out.Disable()
	assert.Equal(t, 0, out.state.Handles())
	expectClosedByServer(t, conn)

	assert.NotPanics(t, out.Destroy)
}

func TestOutputConcurrentCallsAfterLoopStopped(t *testing.T) {
	loop := event.NewLoop(logging.Discard())
	go loop.Run()

	out, err := NewOutput(loop, Config{BindAddress: "127.0.0.1"}, logging.Discard(), nil)
	require.NoError(t, err)
	require.NoError(t, out.Enable())

	for i := 0; i < 3; i++ {
		dial(t, out)
	}
	waitForClients(t, out, 3)

	loop.Stop()

	// status readers keep polling while the host tears down
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = out.Stats()
			}
		}()
	}
	wg.Add(2)
	go func() {
		defer wg.Done()
		out.Disable()
	}()
	go func() {
		defer wg.Done()
		out.Destroy()
	}()
	wg.Wait()

	stats := out.Stats()
	assert.False(t, stats.Listening)
	assert.Empty(t, stats.Clients)
	assert.Equal(t, 0, out.state.Handles())
}

func TestPluginLookup(t *testing.T) {
	p, ok := Lookup("visualization")
	require.True(t, ok)
	assert.Equal(t, "visualization", p.Name)
	assert.False(t, p.CanBeDefault)

	_, ok = Lookup("httpd")
	assert.False(t, ok)

	loop := startTestLoop(t)
	out, err := p.Create(loop, DefaultConfig(), logging.Discard(), nil)
	require.NoError(t, err)
	out.Destroy()
}
