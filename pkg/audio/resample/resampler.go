// ABOUTME: Streaming linear resampler for interleaved int32 audio
// ABOUTME: Carries the last frame between calls so chunk boundaries are seamless
package resample

import "fmt"

// Resampler converts between sample rates by linear interpolation.
// It keeps state between calls and is not safe for concurrent use.
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	step       float64 // input frames advanced per output frame

	// pos is the next output position measured from prev, which sits at
	// index 0 ahead of the current input
	pos    float64
	prev   []int32
	primed bool
}

// New creates a resampler. Rates and channels must be positive.
func New(inputRate, outputRate, channels int) (*Resampler, error) {
	if inputRate <= 0 || outputRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid resampler parameters: %d -> %d Hz, %d channels", inputRate, outputRate, channels)
	}
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		step:       float64(inputRate) / float64(outputRate),
		prev:       make([]int32, channels),
	}, nil
}

// InputRate returns the rate Resample expects
func (r *Resampler) InputRate() int { return r.inputRate }

// OutputRate returns the rate Resample produces
func (r *Resampler) OutputRate() int { return r.outputRate }

// MaxOutput returns how many samples dst must hold for an input of n samples
func (r *Resampler) MaxOutput(n int) int {
	frames := int(float64(n/r.channels)/r.step) + 2
	return frames * r.channels
}

// Resample converts whole frames of src into dst and returns the number of
// samples written. dst should hold MaxOutput(len(src)) samples; output that
// does not fit is dropped.
func (r *Resampler) Resample(src, dst []int32) int {
	ch := r.channels
	frames := len(src) / ch
	if frames == 0 {
		return 0
	}

	if !r.primed {
		copy(r.prev, src[:ch])
		r.pos = 1
		r.primed = true
	}

	// frame i of the virtual stream is prev for i == 0, src[i-1] otherwise
	frame := func(i, c int) int32 {
		if i == 0 {
			return r.prev[c]
		}
		return src[(i-1)*ch+c]
	}

	out := 0
	maxOut := len(dst) / ch
	for out < maxOut {
		i := int(r.pos)
		if i >= frames {
			break
		}
		frac := r.pos - float64(i)
		for c := 0; c < ch; c++ {
			a := float64(frame(i, c))
			b := float64(frame(i+1, c))
			dst[out*ch+c] = int32(a + (b-a)*frac)
		}
		out++
		r.pos += r.step
	}

	r.pos -= float64(frames)
	if r.pos < 0 {
		r.pos = 0
	}
	copy(r.prev, src[(frames-1)*ch:frames*ch])

	return out * ch
}

// Reset forgets carried state, as after a seek
func (r *Resampler) Reset() {
	r.pos = 0
	r.primed = false
	clear(r.prev)
}
