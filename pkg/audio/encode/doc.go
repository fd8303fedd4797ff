// ABOUTME: PCM packing package for turning decoded samples into wire bytes
// ABOUTME: Provides the PCM encoder used by the audio sources
// Package encode packs int32 samples (24-bit range, as produced by the
// decoders in internal/source) into interleaved little-endian PCM bytes.
//
// Supports 16, 24 and 32 bit output.
//
// Example:
//
//	encoder, err := encode.NewPCM(format)
//	data, err := encoder.Encode(samples)
package encode
