// ABOUTME: Playback clock comparing audio time delivered against wall time
// ABOUTME: Starts on the first Play after Open
package visualization

import (
	"time"

	"github.com/Sendspin/sendspin-vis/pkg/audio"
)

// playClock tracks how much audio has been delivered since it started
type playClock struct {
	format  audio.Format
	now     func() time.Time
	start   time.Time
	bytes   uint64
	started bool
}

func newPlayClock(format audio.Format, now func() time.Time) *playClock {
	if now == nil {
		now = time.Now
	}
	return &playClock{format: format, now: now}
}

// Start marks the wall-clock origin
func (c *playClock) Start() {
	c.start = c.now()
	c.started = true
}

// IsStarted reports whether Start has been called
func (c *playClock) IsStarted() bool {
	return c.started
}

// Add records n more bytes of audio
func (c *playClock) Add(n int) {
	c.bytes += uint64(n)
}

// Delay returns audio time delivered minus wall time elapsed. Positive
// means the producer is ahead of real time.
func (c *playClock) Delay() time.Duration {
	if !c.started {
		return 0
	}
	return c.format.Duration(c.bytes) - c.now().Sub(c.start)
}
