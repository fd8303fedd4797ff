// ABOUTME: FLAC file source
// ABOUTME: Decodes frame by frame with mewkiz/flac and loops at end of file
package source

import (
	"fmt"
	"io"
	"os"

	"github.com/mewkiz/flac"
)

// FLAC reads from a FLAC file
type FLAC struct {
	file       *os.File
	stream     *flac.Stream
	sampleRate int
	channels   int
	bitDepth   int
	title      string

	// samples decoded but not yet returned
	pending []int32
}

// NewFLAC opens a FLAC file
func NewFLAC(path string) (*FLAC, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC file: %w", err)
	}

	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	info := stream.Info
	return &FLAC{
		file:       f,
		stream:     stream,
		sampleRate: int(info.SampleRate),
		channels:   int(info.NChannels),
		bitDepth:   int(info.BitsPerSample),
		title:      titleFromPath(path),
	}, nil
}

func (s *FLAC) Read(samples []int32) (int, error) {
	n := copy(samples, s.pending)
	s.pending = s.pending[n:]

	for n < len(samples) {
		frame, err := s.stream.ParseNext()
		if err != nil {
			if err != io.EOF {
				return n, err
			}
			if err := s.rewind(); err != nil {
				return n, err
			}
			continue
		}

		// interleave the frame, carrying over what does not fit
		for i := 0; i < int(frame.BlockSize); i++ {
			for ch := 0; ch < s.channels; ch++ {
				v := scaleTo24(frame.Subframes[ch].Samples[i], s.bitDepth)
				if n < len(samples) {
					samples[n] = v
					n++
				} else {
					s.pending = append(s.pending, v)
				}
			}
		}
	}

	return n, nil
}

func (s *FLAC) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to start: %w", err)
	}
	stream, err := flac.New(s.file)
	if err != nil {
		return fmt.Errorf("failed to create new stream: %w", err)
	}
	s.stream = stream
	return nil
}

func (s *FLAC) SampleRate() int { return s.sampleRate }
func (s *FLAC) Channels() int   { return s.channels }
func (s *FLAC) Metadata() (string, string, string) {
	return s.title, "Unknown Artist", "Unknown Album"
}
func (s *FLAC) Close() error {
	return s.file.Close()
}
