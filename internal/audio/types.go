// Package audio decodes PCM input and paces it into the lip-sync audio path.
package audio

import "errors"

// Common errors
var (
	ErrInvalidFormat = errors.New("invalid audio format")
	ErrNotWAV        = errors.New("not a RIFF/WAVE file")
	ErrMissingChunk  = errors.New("missing WAV chunk")
)

// SampleFormat is the encoding of raw PCM bytes.
type SampleFormat int

const (
	FormatU8 SampleFormat = iota // 8-bit unsigned
	FormatS16                    // 16-bit signed little-endian
	FormatF32                    // 32-bit IEEE float little-endian
)

// BytesPerSample returns the width of one sample, or 0 for unknown formats.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatU8:
		return 1
	case FormatS16:
		return 2
	case FormatF32:
		return 4
	default:
		return 0
	}
}

func (f SampleFormat) String() string {
	switch f {
	case FormatU8:
		return "u8"
	case FormatS16:
		return "s16le"
	case FormatF32:
		return "f32le"
	default:
		return "unknown"
	}
}

// Clip is decoded interleaved audio.
type Clip struct {
	Samples    []float32
	Channels   int
	SampleRate int
}

// Frames returns the number of sample frames.
func (c *Clip) Frames() int {
	if c.Channels <= 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// Duration returns the clip length in seconds.
func (c *Clip) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(c.Frames()) / float64(c.SampleRate)
}
