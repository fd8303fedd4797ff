package host

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sendspin/sendspin-vis/internal/event"
	"github.com/Sendspin/sendspin-vis/internal/logging"
	"github.com/Sendspin/sendspin-vis/internal/source"
	"github.com/Sendspin/sendspin-vis/internal/visualization"
	"github.com/Sendspin/sendspin-vis/pkg/audio"
)

// recordingOutput logs the lifecycle calls it receives
type recordingOutput struct {
	mu        sync.Mutex
	calls     []string
	format    audio.Format
	played    int
	enableErr error
	maxPlay   int
}

func (r *recordingOutput) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.calls); n > 0 && r.calls[n-1] == call && call == "play" {
		return
	}
	r.calls = append(r.calls, call)
}

func (r *recordingOutput) Enable() error {
	r.record("enable")
	return r.enableErr
}
func (r *recordingOutput) Disable() { r.record("disable") }
func (r *recordingOutput) Open(format audio.Format) error {
	r.record("open")
	r.format = format
	return nil
}
func (r *recordingOutput) Close() { r.record("close") }
func (r *recordingOutput) Play(data []byte) int {
	r.record("play")
	n := len(data)
	if r.maxPlay > 0 && n > r.maxPlay {
		n = r.maxPlay
	}
	r.mu.Lock()
	r.played += n
	r.mu.Unlock()
	return n
}

func TestPipelineLifecycleOrder(t *testing.T) {
	out := &recordingOutput{}
	p, err := New(out, source.NewTestTone(48000, 2), Config{BitDepth: 16, ChunkDuration: 5 * time.Millisecond}, logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	require.NoError(t, p.Run(ctx))

	assert.Equal(t, []string{"enable", "open", "play", "close", "disable"}, out.calls)
	assert.Equal(t, audio.Format{SampleRate: 48000, Channels: 2, BitDepth: 16}, out.format)

	// every chunk is 5ms of 16-bit stereo
	assert.Greater(t, p.Chunks(), uint64(0))
	assert.Equal(t, p.Chunks()*240*4, p.Bytes())
	assert.Equal(t, int(p.Bytes()), out.played)
}

func TestPipelineRetriesShortPlays(t *testing.T) {
	out := &recordingOutput{maxPlay: 100}
	p, err := New(out, source.NewTestTone(44100, 1), Config{BitDepth: 24, ChunkDuration: 10 * time.Millisecond}, logging.Discard())
	require.NoError(t, err)

	require.NoError(t, p.playChunk())
	assert.Equal(t, uint64(441*3), p.Bytes())
	assert.Equal(t, uint64(1), p.Chunks())
}

func TestPipelineEnableFailure(t *testing.T) {
	out := &recordingOutput{enableErr: errors.New("address in use")}
	p, err := New(out, source.NewTestTone(48000, 2), Config{BitDepth: 16}, logging.Discard())
	require.NoError(t, err)

	err = p.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"enable"}, out.calls)
}

func TestPipelineRejectsBadFormat(t *testing.T) {
	_, err := New(&recordingOutput{}, source.NewTestTone(48000, 2), Config{BitDepth: 12}, logging.Discard())
	assert.ErrorIs(t, err, audio.ErrInvalidFormat)
}

func TestPipelineDrivesVisualizationOutput(t *testing.T) {
	loop := event.NewLoop(logging.Discard())
	go loop.Run()
	defer loop.Stop()

	out, err := visualization.NewOutput(loop, visualization.Config{BindAddress: "127.0.0.1"}, logging.Discard(), nil)
	require.NoError(t, err)
	defer out.Destroy()

	p, err := New(out, source.NewTestTone(44100, 2), Config{BitDepth: 16, ChunkDuration: 5 * time.Millisecond}, logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	var addr string
	require.Eventually(t, func() bool {
		addr = out.Stats().Addr
		return addr != ""
	}, 2*time.Second, 5*time.Millisecond)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))

	require.Eventually(t, func() bool {
		return out.Stats().Playback.Bytes > 0
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	stats := out.Stats()
	assert.False(t, stats.Listening)
	assert.False(t, stats.Playback.Open)
}

func TestPipelineResamplesToConfiguredRate(t *testing.T) {
	out := &recordingOutput{}
	p, err := New(out, source.NewTestTone(44100, 1), Config{BitDepth: 16, SampleRate: 48000, ChunkDuration: 10 * time.Millisecond}, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, 48000, p.Format().SampleRate)

	for i := 0; i < 10; i++ {
		require.NoError(t, p.playChunk())
	}

	// 100ms of 48kHz mono 16-bit, less the frame held for interpolation
	frames := int(p.Bytes() / 2)
	assert.InDelta(t, 4800, frames, 3)
}
