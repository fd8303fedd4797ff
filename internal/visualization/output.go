// ABOUTME: Host-facing visualization output
// ABOUTME: Dispatches server lifecycle onto the event loop and enforces teardown order
package visualization

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Sendspin/sendspin-vis/internal/event"
	"github.com/Sendspin/sendspin-vis/internal/logging"
	"github.com/Sendspin/sendspin-vis/internal/metrics"
	"github.com/Sendspin/sendspin-vis/pkg/audio"
)

// AudioOutput is the lifecycle a host drives. The supported sequence is
// Enable, Open, any number of Play calls, Close, Disable, and it may be
// repeated.
type AudioOutput interface {
	Enable() error
	Disable()
	Open(format audio.Format) error
	Close()
	Play(data []byte) int
}

// Stats combines producer-side timing with the loop-side client table
type Stats struct {
	Listening bool          `json:"listening"`
	Addr      string        `json:"addr,omitempty"`
	Playback  PlaybackStats `json:"playback"`
	Clients   []ClientInfo  `json:"clients"`
}

// Output owns the shared state and the server. Its methods are called
// from the producer side and must not be called from the event loop.
type Output struct {
	loop   *event.Loop
	state  *SharedState
	server *Server
	logger *slog.Logger

	destroyOnce sync.Once

	// inlineMu serializes loop work run on callers after the loop exits
	inlineMu sync.Mutex
}

var _ AudioOutput = (*Output)(nil)

// NewOutput builds an output whose server runs on loop
func NewOutput(loop *event.Loop, cfg Config, logger *slog.Logger, m *metrics.Metrics) (*Output, error) {
	if cfg.MaxClients < 0 {
		return nil, fmt.Errorf("max_clients must not be negative: %d", cfg.MaxClients)
	}

	state := NewSharedState(logging.Module(logger, "vis_state"), m)
	return &Output{
		loop:   loop,
		state:  state,
		server: NewServer(loop, cfg, state, logging.Module(logger, "vis_server"), m),
		logger: logging.Module(logger, "vis_output"),
	}, nil
}

// Enable starts the server on the event loop and waits for it
func (o *Output) Enable() error {
	o.logger.Info("enabling visualization output", "tid", threadID())

	var openErr error
	if err := o.loop.Call(func() { openErr = o.server.Open() }); err != nil {
		return fmt.Errorf("failed to enable visualization output: %w", err)
	}
	return openErr
}

// Disable stops the server and waits until every client socket is released
func (o *Output) Disable() {
	o.logger.Info("disabling visualization output", "tid", threadID())
	o.onLoop("disable", o.server.Close)
}

// Open starts a new timing baseline
func (o *Output) Open(format audio.Format) error {
	o.logger.Info("opening visualization output", "format", format.String(), "tid", threadID())
	return o.state.Open(format)
}

// Close ends the timing baseline
func (o *Output) Close() {
	o.logger.Info("closing visualization output", "tid", threadID())
	o.state.Close()
}

// Play accounts for a chunk of audio and returns its length
func (o *Output) Play(data []byte) int {
	return o.state.Play(data)
}

// Stats gathers playback timing and a client snapshot
func (o *Output) Stats() Stats {
	stats := Stats{Playback: o.state.Stats()}
	o.onLoop("stats", func() {
		stats.Listening = o.server.IsOpen()
		if addr := o.server.Addr(); addr != nil {
			stats.Addr = addr.String()
		}
		stats.Clients = o.server.Snapshot()
	})
	return stats
}

// Destroy tears down the server and every client, then the shared state.
// It is safe to call more than once.
func (o *Output) Destroy() {
	o.destroyOnce.Do(func() {
		o.onLoop("destroy", o.server.Destroy)
		o.state.Destroy()
		o.logger.Debug("visualization output destroyed")
	})
}

// onLoop runs fn on the event loop. If the loop has already exited fn
// runs on the caller, one caller at a time.
func (o *Output) onLoop(op string, fn func()) {
	err := o.loop.Call(fn)
	switch {
	case err == nil:
	case errors.Is(err, event.ErrLoopStopped):
		o.logger.Debug("event loop stopped, running inline", "op", op)
		o.inlineMu.Lock()
		defer o.inlineMu.Unlock()
		fn()
	default:
		o.logger.Error("visualization output dispatch failed", "op", op, "error", err)
	}
}
