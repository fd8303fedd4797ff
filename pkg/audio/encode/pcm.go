// ABOUTME: PCM audio encoder
// ABOUTME: Packs int32 samples into 16, 24 or 32-bit little-endian PCM bytes
package encode

import (
	"encoding/binary"
	"fmt"

	"github.com/Sendspin/sendspin-vis/pkg/audio"
)

// PCMEncoder encodes PCM audio
type PCMEncoder struct {
	bitDepth int
}

// NewPCM creates a new PCM encoder for the given output format
func NewPCM(format audio.Format) (*PCMEncoder, error) {
	switch format.BitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16, 24, 32)", format.BitDepth)
	}

	return &PCMEncoder{
		bitDepth: format.BitDepth,
	}, nil
}

// EncodedSize returns the number of bytes Encode produces for n samples
func (e *PCMEncoder) EncodedSize(n int) int {
	return n * e.bitDepth / 8
}

// Encode converts int32 samples to PCM bytes
func (e *PCMEncoder) Encode(samples []int32) []byte {
	output := make([]byte, e.EncodedSize(len(samples)))
	e.EncodeInto(output, samples)
	return output
}

// EncodeInto packs samples into dst, which must hold EncodedSize(len(samples)) bytes
func (e *PCMEncoder) EncodeInto(dst []byte, samples []int32) {
	switch e.bitDepth {
	case 24:
		for i, sample := range samples {
			b := audio.SampleTo24Bit(sample)
			dst[i*3] = b[0]
			dst[i*3+1] = b[1]
			dst[i*3+2] = b[2]
		}
	case 32:
		// 24-bit range left-justified into 32 bits
		for i, sample := range samples {
			binary.LittleEndian.PutUint32(dst[i*4:], uint32(sample<<8))
		}
	default:
		for i, sample := range samples {
			binary.LittleEndian.PutUint16(dst[i*2:], uint16(audio.SampleToInt16(sample)))
		}
	}
}
