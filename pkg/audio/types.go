// ABOUTME: Audio format definitions shared by the output and its sources
// ABOUTME: Defines Format, its validation and byte/time conversions
package audio

import (
	"errors"
	"fmt"
	"time"
)

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23

	// Upper bounds accepted by Validate
	MaxSampleRate = 768000
	MaxChannels   = 8
)

// ErrInvalidFormat is returned by Validate for formats the output cannot time.
var ErrInvalidFormat = errors.New("invalid audio format")

// Format describes an interleaved PCM stream
type Format struct {
	SampleRate int `json:"sample_rate" yaml:"sample_rate" mapstructure:"sample_rate"`
	Channels   int `json:"channels" yaml:"channels" mapstructure:"channels"`
	BitDepth   int `json:"bit_depth" yaml:"bit_depth" mapstructure:"bit_depth"`
}

// Validate reports whether the format is usable for PCM timing
func (f Format) Validate() error {
	if f.SampleRate <= 0 || f.SampleRate > MaxSampleRate {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidFormat, f.SampleRate)
	}
	if f.Channels <= 0 || f.Channels > MaxChannels {
		return fmt.Errorf("%w: %d channels", ErrInvalidFormat, f.Channels)
	}
	switch f.BitDepth {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("%w: bit depth %d", ErrInvalidFormat, f.BitDepth)
	}
	return nil
}

// SampleSize returns the number of bytes used by one sample of one channel
func (f Format) SampleSize() int {
	return f.BitDepth / 8
}

// FrameSize returns the number of bytes used by one sample of every channel
func (f Format) FrameSize() int {
	return f.SampleSize() * f.Channels
}

// BytesPerSecond returns the data rate of the stream
func (f Format) BytesPerSecond() int {
	return f.FrameSize() * f.SampleRate
}

// Duration converts a byte count into playback time
func (f Format) Duration(bytes uint64) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(float64(bytes) / float64(bps) * float64(time.Second))
}

func (f Format) String() string {
	return fmt.Sprintf("%d:%d:%d", f.SampleRate, f.BitDepth, f.Channels)
}

// SampleToInt16 converts int32 sample to int16 (for 16-bit playback)
func SampleToInt16(sample int32) int16 {
	// Right-shift to convert 24-bit (or 16-bit) to 16-bit range
	return int16(sample >> 8)
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// SampleTo24Bit converts int32 to 24-bit packed bytes (little-endian)
func SampleTo24Bit(sample int32) [3]byte {
	return [3]byte{
		byte(sample),
		byte(sample >> 8),
		byte(sample >> 16),
	}
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}
