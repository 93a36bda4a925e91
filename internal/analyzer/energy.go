package analyzer

import (
	"math"
	"sync"

	"github.com/normanking/cortexlipsync/internal/viseme"
)

// EnergyConfig tunes the energy analyzer.
type EnergyConfig struct {
	Threshold       float64 `json:"threshold"`        // RMS at or below which the buffer is silence
	Ceiling         float64 `json:"ceiling"`          // RMS mapped to full amplitude
	SmoothingFrames int     `json:"smoothing_frames"` // Buffers averaged for the level
	SibilantZCR     float64 `json:"sibilant_zcr"`     // Zero-crossing rate treated as s/z
	FrontVowelZCR   float64 `json:"front_vowel_zcr"`  // Zero-crossing rate treated as e/i
}

// DefaultEnergyConfig returns defaults tuned for speech at 16-48 kHz.
func DefaultEnergyConfig() *EnergyConfig {
	return &EnergyConfig{
		Threshold:       0.01,
		Ceiling:         0.3,
		SmoothingFrames: 3,
		SibilantZCR:     0.3,
		FrontVowelZCR:   0.12,
	}
}

// EnergyAnalyzer estimates visemes from loudness and zero-crossing rate. It only
// separates silence, open vowels, front vowels and sibilants, which is enough to
// animate a jaw from arbitrary audio.
type EnergyAnalyzer struct {
	config *EnergyConfig
	mu     sync.Mutex

	open bool

	energyHistory []float64
	historyIndex  int
	filled        int
}

// NewEnergyAnalyzer creates an analyzer that is ready immediately. The caller's
// config is copied, not modified.
func NewEnergyAnalyzer(cfg *EnergyConfig) *EnergyAnalyzer {
	if cfg == nil {
		cfg = DefaultEnergyConfig()
	}
	c := *cfg
	config := &c
	if config.SmoothingFrames <= 0 {
		config.SmoothingFrames = 1
	}
	if config.Ceiling <= config.Threshold {
		config.Ceiling = config.Threshold + 0.1
	}

	return &EnergyAnalyzer{
		config:        config,
		open:          true,
		energyHistory: make([]float64, config.SmoothingFrames),
	}
}

func (e *EnergyAnalyzer) Name() string { return "energy" }

func (e *EnergyAnalyzer) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open
}

// Close makes the analyzer unavailable; later pushes become no-ops upstream.
func (e *EnergyAnalyzer) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.open = false
}

// Reset clears the smoothing history.
func (e *EnergyAnalyzer) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.energyHistory {
		e.energyHistory[i] = 0
	}
	e.historyIndex = 0
	e.filled = 0
}

func (e *EnergyAnalyzer) Analyze(samples []float32, channels int) (viseme.Frame, error) {
	var frame viseme.Frame
	if channels <= 0 {
		return frame, ErrInvalidChannels
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.open {
		return frame, ErrClosed
	}

	mono := downmix(samples, channels)
	if len(mono) == 0 {
		return frame, ErrEmptyBuffer
	}

	rms := calculateRMS(mono)
	zcr := zeroCrossingRate(mono)

	e.energyHistory[e.historyIndex] = rms
	e.historyIndex = (e.historyIndex + 1) % len(e.energyHistory)
	if e.filled < len(e.energyHistory) {
		e.filled++
	}

	var sum float64
	for i := 0; i < e.filled; i++ {
		sum += e.energyHistory[i]
	}
	smoothed := sum / float64(e.filled)

	level := float32(clamp01((smoothed - e.config.Threshold) / (e.config.Ceiling - e.config.Threshold)))
	frame[viseme.Sil] = 1 - level
	if level == 0 {
		return frame, nil
	}

	switch {
	case zcr >= e.config.SibilantZCR:
		frame[viseme.SS] = level
	case zcr >= e.config.FrontVowelZCR:
		frame[viseme.E] = level * 0.6
		frame[viseme.IH] = level * 0.4
	default:
		frame[viseme.AA] = level * 0.7
		frame[viseme.OH] = level * 0.3
	}
	return frame, nil
}

func calculateRMS(samples []float32) float64 {
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// zeroCrossingRate returns sign changes per sample pair.
func zeroCrossingRate(samples []float32) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}
