// ABOUTME: WAV file source
// ABOUTME: Decodes PCM with go-audio/wav and loops at end of file
package source

import (
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAV reads from a PCM WAV file
type WAV struct {
	file     *os.File
	decoder  *wav.Decoder
	buf      *goaudio.IntBuffer
	bitDepth int
	title    string
}

// NewWAV opens a WAV file
func NewWAV(path string) (*WAV, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV file: %w", err)
	}

	decoder := wav.NewDecoder(f)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		f.Close()
		return nil, errors.New("input is not a valid WAV audio file")
	}

	switch decoder.BitDepth {
	case 16, 24, 32:
	default:
		f.Close()
		return nil, fmt.Errorf("unsupported WAV bit depth: %d", decoder.BitDepth)
	}

	return &WAV{
		file:    f,
		decoder: decoder,
		buf: &goaudio.IntBuffer{
			Format: &goaudio.Format{SampleRate: int(decoder.SampleRate), NumChannels: int(decoder.NumChans)},
		},
		bitDepth: int(decoder.BitDepth),
		title:    titleFromPath(path),
	}, nil
}

func (s *WAV) Read(samples []int32) (int, error) {
	if cap(s.buf.Data) < len(samples) {
		s.buf.Data = make([]int, len(samples))
	}
	s.buf.Data = s.buf.Data[:len(samples)]

	n, err := s.decoder.PCMBuffer(s.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("failed to read WAV data: %w", err)
	}

	if n == 0 {
		if err := s.decoder.Rewind(); err != nil {
			return 0, fmt.Errorf("failed to rewind WAV: %w", err)
		}
		return 0, nil
	}

	for i, v := range s.buf.Data[:n] {
		samples[i] = scaleTo24(int32(v), s.bitDepth)
	}
	return n, nil
}

func (s *WAV) SampleRate() int { return int(s.decoder.SampleRate) }
func (s *WAV) Channels() int   { return int(s.decoder.NumChans) }
func (s *WAV) Metadata() (string, string, string) {
	return s.title, "Unknown Artist", "Unknown Album"
}
func (s *WAV) Close() error {
	return s.file.Close()
}
