// ABOUTME: Minimal host that drives an audio output in real time
// ABOUTME: Paces a source through Enable, Open, Play, Close, Disable
package host

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Sendspin/sendspin-vis/internal/source"
	"github.com/Sendspin/sendspin-vis/internal/visualization"
	"github.com/Sendspin/sendspin-vis/pkg/audio"
	"github.com/Sendspin/sendspin-vis/pkg/audio/encode"
	"github.com/Sendspin/sendspin-vis/pkg/audio/resample"
)

// DefaultChunkDuration is how much audio each Play call carries
const DefaultChunkDuration = 20 * time.Millisecond

// Config controls pacing and the PCM format handed to the output
type Config struct {
	BitDepth int
	// SampleRate is the output rate; 0 keeps the source rate. A source at
	// another rate is resampled.
	SampleRate    int
	ChunkDuration time.Duration
}

// Pipeline plays one source into one output
type Pipeline struct {
	out     visualization.AudioOutput
	src     source.Source
	logger  *slog.Logger
	format  audio.Format
	encoder *encode.PCMEncoder
	chunk   time.Duration

	resampler *resample.Resampler
	samples   []int32
	resampled []int32
	pcm       []byte

	chunks atomic.Uint64
	bytes  atomic.Uint64
}

// New prepares a pipeline. The output format takes its channels from the
// source and its rate and sample width from cfg.
func New(out visualization.AudioOutput, src source.Source, cfg Config, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ChunkDuration <= 0 {
		cfg.ChunkDuration = DefaultChunkDuration
	}

	rate := cfg.SampleRate
	if rate == 0 {
		rate = src.SampleRate()
	}
	format := audio.Format{
		SampleRate: rate,
		Channels:   src.Channels(),
		BitDepth:   cfg.BitDepth,
	}
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	encoder, err := encode.NewPCM(format)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	// one chunk of source audio
	frames := int(int64(src.SampleRate()) * int64(cfg.ChunkDuration) / int64(time.Second))
	if frames < 1 {
		frames = 1
	}

	p := &Pipeline{
		out:     out,
		src:     src,
		logger:  logger,
		format:  format,
		encoder: encoder,
		chunk:   cfg.ChunkDuration,
		samples: make([]int32, frames*format.Channels),
	}

	outSamples := len(p.samples)
	if src.SampleRate() != format.SampleRate {
		p.resampler, err = resample.New(src.SampleRate(), format.SampleRate, format.Channels)
		if err != nil {
			return nil, fmt.Errorf("failed to create pipeline: %w", err)
		}
		outSamples = p.resampler.MaxOutput(len(p.samples))
		p.resampled = make([]int32, outSamples)
		logger.Info("resampling source",
			"from", src.SampleRate(),
			"to", format.SampleRate)
	}
	p.pcm = make([]byte, encoder.EncodedSize(outSamples))

	return p, nil
}

// Format returns the PCM format handed to the output
func (p *Pipeline) Format() audio.Format {
	return p.format
}

// Chunks returns how many Play calls have been made
func (p *Pipeline) Chunks() uint64 {
	return p.chunks.Load()
}

// Bytes returns how many bytes the output has accepted
func (p *Pipeline) Bytes() uint64 {
	return p.bytes.Load()
}

// Run enables and opens the output, plays until ctx is done, then closes
// and disables it
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.out.Enable(); err != nil {
		return fmt.Errorf("failed to enable output: %w", err)
	}
	defer p.out.Disable()

	if err := p.out.Open(p.format); err != nil {
		return fmt.Errorf("failed to open output: %w", err)
	}
	defer p.out.Close()

	title, artist, _ := p.src.Metadata()
	p.logger.Info("playback starting",
		"title", title,
		"artist", artist,
		"format", p.format.String(),
		"chunk", p.chunk)

	ticker := time.NewTicker(p.chunk)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("playback stopping", "chunks", p.Chunks(), "bytes", p.Bytes())
			return nil
		case <-ticker.C:
			if err := p.playChunk(); err != nil {
				return err
			}
		}
	}
}

func (p *Pipeline) playChunk() error {
	n, err := p.src.Read(p.samples)
	if err != nil {
		return fmt.Errorf("failed to read audio: %w", err)
	}
	// keep whole frames only
	n -= n % p.format.Channels
	if n == 0 {
		return nil
	}

	samples := p.samples[:n]
	if p.resampler != nil {
		n = p.resampler.Resample(samples, p.resampled)
		if n == 0 {
			return nil
		}
		samples = p.resampled[:n]
	}

	data := p.pcm[:p.encoder.EncodedSize(n)]
	p.encoder.EncodeInto(data, samples)

	for len(data) > 0 {
		played := p.out.Play(data)
		if played <= 0 {
			return fmt.Errorf("output accepted no data")
		}
		p.bytes.Add(uint64(played))
		data = data[played:]
	}
	p.chunks.Add(1)
	return nil
}
