package audio

import (
	"fmt"
	"math"
)

// DecodePCM converts little-endian PCM bytes to float samples in [-1, 1].
// Trailing bytes that do not fill a sample are ignored.
func DecodePCM(data []byte, format SampleFormat) ([]float32, error) {
	width := format.BytesPerSample()
	if width == 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFormat, format)
	}

	out := make([]float32, len(data)/width)
	switch format {
	case FormatS16:
		for i := range out {
			sample := int16(data[2*i]) | int16(data[2*i+1])<<8
			out[i] = float32(sample) / 32768.0
		}
	case FormatF32:
		for i := range out {
			j := 4 * i
			bits := uint32(data[j]) | uint32(data[j+1])<<8 | uint32(data[j+2])<<16 | uint32(data[j+3])<<24
			out[i] = math.Float32frombits(bits)
		}
	case FormatU8:
		for i, b := range data {
			out[i] = (float32(b) - 128.0) / 128.0
		}
	}
	return out, nil
}
