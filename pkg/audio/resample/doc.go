// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts audio between different sample rates
// Package resample provides streaming sample rate conversion.
//
// Uses linear interpolation and keeps one frame of history so a stream
// can be converted chunk by chunk.
//
// Example:
//
//	r, err := resample.New(44100, 48000, 2)
//	out := make([]int32, r.MaxOutput(len(in)))
//	n := r.Resample(in, out)
package resample
