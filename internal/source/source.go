// ABOUTME: Audio sources that feed the demo host pipeline
// ABOUTME: Opens MP3, FLAC and WAV files or falls back to a test tone
package source

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned for files no decoder handles.
var ErrUnsupported = errors.New("unsupported audio source")

// Source provides interleaved PCM samples
type Source interface {
	// Read fills samples (24-bit range, left-justified in int32) and
	// returns how many were written
	Read(samples []int32) (int, error)
	// SampleRate returns the sample rate of the audio
	SampleRate() int
	// Channels returns the number of channels
	Channels() int
	// Metadata returns title, artist, album
	Metadata() (title, artist, album string)
	// Close closes the audio source
	Close() error
}

// Open creates a source from a file path. An empty path yields a test
// tone at the given rate and channel count. File sources loop at EOF.
func Open(path string, toneRate, toneChannels int, logger *slog.Logger) (Source, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if path == "" {
		return NewTestTone(toneRate, toneChannels), nil
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("audio file not found: %w", err)
	}

	var (
		src Source
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".mp3":
		src, err = NewMP3(path)
	case ".flac":
		src, err = NewFLAC(path)
	case ".wav":
		src, err = NewWAV(path)
	default:
		return nil, fmt.Errorf("%w: %s (supported: .mp3, .flac, .wav)", ErrUnsupported, ext)
	}
	if err != nil {
		return nil, err
	}

	title, _, _ := src.Metadata()
	logger.Info("loaded audio source",
		"title", title,
		"sample_rate", src.SampleRate(),
		"channels", src.Channels())
	return src, nil
}

// titleFromPath uses the file name without extension as a title
func titleFromPath(path string) string {
	filename := filepath.Base(path)
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

// scaleTo24 moves a sample of the given bit depth into the 24-bit range
func scaleTo24(sample int32, bitDepth int) int32 {
	switch {
	case bitDepth == 24:
		return sample
	case bitDepth < 24:
		return sample << (24 - bitDepth)
	default:
		return sample >> (bitDepth - 24)
	}
}
