// Package analyzer provides reference lip-sync analyzers: an energy heuristic over
// raw PCM and a playback analyzer for precomputed viseme timelines.
package analyzer

import "errors"

// Common errors
var (
	ErrInvalidChannels = errors.New("channel count must be positive")
	ErrEmptyBuffer     = errors.New("audio buffer is empty")
	ErrClosed          = errors.New("analyzer closed")
	ErrNoTimeline      = errors.New("no timeline loaded")
	ErrInvalidTimeline = errors.New("invalid timeline")
)

// downmix averages interleaved channels into mono.
func downmix(samples []float32, channels int) []float32 {
	if channels == 1 {
		return samples
	}
	n := len(samples) / channels
	mono := make([]float32, n)
	for i := 0; i < n; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
