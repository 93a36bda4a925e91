package audio

import (
	"context"
	"time"
)

// PushFunc receives one interleaved buffer. The slice is only valid for the
// duration of the call.
type PushFunc func(ctx context.Context, samples []float32, channels int)

// Feeder slices a clip into fixed-size buffers and hands them out at the
// clip's real-time rate, standing in for a device callback.
type Feeder struct {
	clip         *Clip
	bufferFrames int
	loop         bool
	pos          int // sample offset
}

// NewFeeder creates a feeder over clip. loop restarts the clip at its end.
func NewFeeder(clip *Clip, bufferFrames int, loop bool) *Feeder {
	if bufferFrames <= 0 {
		bufferFrames = 1024
	}
	return &Feeder{clip: clip, bufferFrames: bufferFrames, loop: loop}
}

// NewSilenceFeeder returns an endless feeder of silent buffers.
func NewSilenceFeeder(channels, sampleRate, bufferFrames int) *Feeder {
	if channels <= 0 {
		channels = 1
	}
	if bufferFrames <= 0 {
		bufferFrames = 1024
	}
	clip := &Clip{
		Samples:    make([]float32, bufferFrames*channels),
		Channels:   channels,
		SampleRate: sampleRate,
	}
	return NewFeeder(clip, bufferFrames, true)
}

// Interval is the real-time length of one full buffer.
func (f *Feeder) Interval() time.Duration {
	if f.clip.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.bufferFrames) * time.Second / time.Duration(f.clip.SampleRate)
}

// Next returns the next buffer; the last one may be short. ok is false once a
// non-looping clip is exhausted.
func (f *Feeder) Next() (samples []float32, ok bool) {
	total := len(f.clip.Samples)
	if total == 0 {
		return nil, false
	}
	if f.pos >= total {
		if !f.loop {
			return nil, false
		}
		f.pos = 0
	}

	end := f.pos + f.bufferFrames*f.clip.Channels
	if end > total {
		end = total
	}
	samples = f.clip.Samples[f.pos:end]
	f.pos = end
	return samples, true
}

// Run pushes buffers at real-time pace until the clip ends or ctx is done.
// It returns nil when the clip ends.
func (f *Feeder) Run(ctx context.Context, push PushFunc) error {
	interval := f.Interval()
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			samples, ok := f.Next()
			if !ok {
				return nil
			}
			push(ctx, samples, f.clip.Channels)
		}
	}
}
