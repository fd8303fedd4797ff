// ABOUTME: Playback bookkeeping shared by the producer and the event loop
// ABOUTME: Tracks bytes played against wall time while the output is open
package visualization

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sendspin/sendspin-vis/internal/metrics"
	"github.com/Sendspin/sendspin-vis/pkg/audio"
)

// playLogInterval is how many Play calls pass between throughput reports
const playLogInterval = 500

// ErrDestroyed is returned by operations on a destroyed output.
var ErrDestroyed = errors.New("visualization output destroyed")

// PlaybackStats is a point-in-time view of the shared state
type PlaybackStats struct {
	Open    bool          `json:"open"`
	Format  audio.Format  `json:"format"`
	Started bool          `json:"started"`
	Bytes   uint64        `json:"bytes"`
	Calls   uint64        `json:"calls"`
	Lead    time.Duration `json:"lead"`
}

// SharedState holds the timing baseline derived from the audio stream.
// The producer calls Open, Play and Close; the event loop may read it
// through Stats. Clients hold a handle to it, and it refuses to be
// destroyed while any handle is outstanding.
type SharedState struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu     sync.Mutex
	format audio.Format
	clock  *playClock // nil while closed
	calls  uint64

	refs      atomic.Int32
	destroyed atomic.Bool
}

// NewSharedState creates closed state
func NewSharedState(logger *slog.Logger, m *metrics.Metrics) *SharedState {
	if logger == nil {
		logger = slog.Default()
	}
	return &SharedState{
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Open establishes a fresh timing baseline for format. Opening while
// already open discards the old baseline.
func (s *SharedState) Open(format audio.Format) error {
	if err := format.Validate(); err != nil {
		return fmt.Errorf("failed to open shared state: %w", err)
	}

	s.mu.Lock()
	reopened := s.clock != nil
	s.format = format
	s.clock = newPlayClock(format, s.now)
	s.calls = 0
	s.mu.Unlock()

	if reopened {
		s.logger.Warn("shared state reopened without close, timing reset", "format", format.String())
	} else {
		s.logger.Debug("shared state opened", "format", format.String())
	}
	return nil
}

// Close drops the timing baseline. Closing twice is harmless.
func (s *SharedState) Close() {
	s.mu.Lock()
	s.clock = nil
	s.mu.Unlock()
	s.metrics.SetPlayLead(0)
}

// IsOpen reports whether Open has been called without a matching Close
func (s *SharedState) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock != nil
}

// Play accounts for data and returns its length. It never blocks on I/O
// and never drops data. Calling Play while closed is a programming error
// and panics.
func (s *SharedState) Play(data []byte) int {
	size := len(data)

	s.mu.Lock()
	if s.clock == nil {
		s.mu.Unlock()
		panic("visualization: Play called on closed shared state")
	}
	if !s.clock.IsStarted() {
		s.clock.Start()
	}
	s.clock.Add(size)
	s.calls++
	report := s.calls%playLogInterval == 0
	var lead time.Duration
	if report {
		lead = s.clock.Delay()
	}
	s.mu.Unlock()

	s.metrics.ObservePlay(size)
	if report {
		s.metrics.SetPlayLead(lead.Seconds())
		s.logger.Info("play throughput",
			"tid", threadID(),
			"lead_sec", lead.Seconds())
	}
	return size
}

// Stats returns a snapshot of the timing state
func (s *SharedState) Stats() PlaybackStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := PlaybackStats{Format: s.format, Calls: s.calls}
	if s.clock != nil {
		stats.Open = true
		stats.Started = s.clock.IsStarted()
		stats.Bytes = s.clock.bytes
		stats.Lead = s.clock.Delay()
	}
	return stats
}

// Destroy marks the state unusable. Every client handle must have been
// released first; anything else is a teardown ordering bug.
func (s *SharedState) Destroy() {
	if n := s.refs.Load(); n != 0 {
		panic(fmt.Sprintf("visualization: shared state destroyed with %d client handles outstanding", n))
	}
	s.destroyed.Store(true)
}

// attach hands out a counted handle
func (s *SharedState) attach() *stateHandle {
	if s.destroyed.Load() {
		panic("visualization: client attached to destroyed shared state")
	}
	s.refs.Add(1)
	return &stateHandle{state: s}
}

// Handles returns the number of outstanding client handles
func (s *SharedState) Handles() int {
	return int(s.refs.Load())
}

// stateHandle is a client's non-owning reference to the shared state
type stateHandle struct {
	state    *SharedState
	released bool
}

func (h *stateHandle) IsOpen() bool {
	return h.state.IsOpen()
}

func (h *stateHandle) release() {
	if h.released {
		return
	}
	h.released = true
	h.state.refs.Add(-1)
}
