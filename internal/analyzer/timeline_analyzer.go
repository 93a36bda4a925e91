package analyzer

import (
	"math"
	"sync"

	"github.com/normanking/cortexlipsync/internal/bus"
	"github.com/normanking/cortexlipsync/internal/viseme"
)

// TimelineConfig configures timeline playback.
type TimelineConfig struct {
	SampleRate int     `json:"sample_rate"`
	BlendMs    float64 `json:"blend_ms"` // Cross-fade window before each keyframe
	Loop       bool    `json:"loop"`
}

// DefaultTimelineConfig returns 48 kHz playback with a 40ms cross-fade.
func DefaultTimelineConfig() TimelineConfig {
	return TimelineConfig{
		SampleRate: 48000,
		BlendMs:    40,
	}
}

// TimelineAnalyzer plays a precomputed timeline in step with the audio it is
// fed. The clock only advances by the sample frames pushed, so playback stays
// locked to the audio callback rather than wall time.
type TimelineAnalyzer struct {
	config   TimelineConfig
	eventBus *bus.EventBus

	mu       sync.Mutex
	timeline *Timeline
	position float64 // ms
	finished bool
}

// NewTimelineAnalyzer creates an analyzer with nothing loaded. eventBus may be nil.
func NewTimelineAnalyzer(config TimelineConfig, eventBus *bus.EventBus) *TimelineAnalyzer {
	if config.SampleRate <= 0 {
		config.SampleRate = DefaultTimelineConfig().SampleRate
	}
	return &TimelineAnalyzer{
		config:   config,
		eventBus: eventBus,
	}
}

func (t *TimelineAnalyzer) Name() string { return "timeline" }

// Ready reports whether a timeline is loaded and still playing.
func (t *TimelineAnalyzer) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeline != nil && !t.finished
}

// Load replaces the timeline and rewinds. A nil timeline unloads.
func (t *TimelineAnalyzer) Load(tl *Timeline) error {
	if tl != nil {
		if err := tl.Validate(); err != nil {
			return err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeline = tl
	t.position = 0
	t.finished = false
	return nil
}

// Rewind restarts playback of the loaded timeline.
func (t *TimelineAnalyzer) Rewind() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.position = 0
	t.finished = false
}

// Position returns the playback clock in milliseconds.
func (t *TimelineAnalyzer) Position() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.position
}

// Analyze advances the clock by the buffer's length and samples the timeline at
// the new position.
func (t *TimelineAnalyzer) Analyze(samples []float32, channels int) (viseme.Frame, error) {
	var frame viseme.Frame
	if channels <= 0 {
		return frame, ErrInvalidChannels
	}

	t.mu.Lock()
	if t.timeline == nil {
		t.mu.Unlock()
		return frame, ErrNoTimeline
	}
	if t.finished {
		t.mu.Unlock()
		frame[viseme.Sil] = 1
		return frame, nil
	}

	frames := len(samples) / channels
	t.position += float64(frames) * 1000 / float64(t.config.SampleRate)

	duration := t.timeline.Duration
	justFinished := false
	if t.position >= duration {
		if t.config.Loop && duration > 0 {
			t.position = math.Mod(t.position, duration)
		} else {
			t.position = duration
			t.finished = true
			justFinished = true
		}
	}

	if justFinished {
		frame[viseme.Sil] = 1
	} else {
		frame = t.timeline.FrameAt(t.position, t.config.BlendMs)
	}
	position := t.position
	t.mu.Unlock()

	if justFinished {
		t.eventBus.Publish(bus.Event{
			Type: bus.EventTypeTimelineFinished,
			Data: map[string]any{"duration_ms": duration, "position_ms": position},
		})
	}
	return frame, nil
}
