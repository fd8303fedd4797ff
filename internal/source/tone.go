// ABOUTME: Test tone generator for audio source
// ABOUTME: Generates a 440Hz sine wave at any rate and channel count
package source

import (
	"math"

	"github.com/Sendspin/sendspin-vis/pkg/audio"
)

// TestTone generates a 440Hz test tone
type TestTone struct {
	frameIndex uint64
	frequency  float64
	sampleRate int
	channels   int
}

// NewTestTone creates a new test tone generator
func NewTestTone(sampleRate, channels int) *TestTone {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	if channels <= 0 {
		channels = 2
	}
	return &TestTone{
		frequency:  440.0, // A4 note
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// Read fills whole frames; a trailing partial frame is left untouched
func (s *TestTone) Read(samples []int32) (int, error) {
	frames := len(samples) / s.channels

	for i := 0; i < frames; i++ {
		t := float64(s.frameIndex+uint64(i)) / float64(s.sampleRate)
		v := int32(math.Sin(2*math.Pi*s.frequency*t) * audio.Max24Bit * 0.5) // 50% volume

		for ch := 0; ch < s.channels; ch++ {
			samples[i*s.channels+ch] = v
		}
	}

	s.frameIndex += uint64(frames)
	return frames * s.channels, nil
}

func (s *TestTone) SampleRate() int { return s.sampleRate }
func (s *TestTone) Channels() int   { return s.channels }
func (s *TestTone) Metadata() (string, string, string) {
	return "Test Tone", "visd", ""
}
func (s *TestTone) Close() error { return nil }
