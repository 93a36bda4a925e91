package analyzer

import (
	"math"
	"testing"

	"github.com/normanking/cortexlipsync/internal/viseme"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constant(v float32, n int) []float32 {
	buf := make([]float32, n)
	for i := range buf {
		buf[i] = v
	}
	return buf
}

func sine(freq, sampleRate float64, amp float32, n int) []float32 {
	buf := make([]float32, n)
	for i := range buf {
		buf[i] = amp * float32(math.Sin(2*math.Pi*freq*float64(i)/sampleRate))
	}
	return buf
}

func TestEnergyAnalyzerSilence(t *testing.T) {
	a := NewEnergyAnalyzer(nil)

	frame, err := a.Analyze(make([]float32, 480), 1)
	require.NoError(t, err)
	assert.Equal(t, float32(1), frame[viseme.Sil])
	for id := viseme.PP; id < viseme.Count; id++ {
		assert.Zero(t, frame[id], id.String())
	}
}

func TestEnergyAnalyzerBuckets(t *testing.T) {
	t.Run("low frequency is an open vowel", func(t *testing.T) {
		a := NewEnergyAnalyzer(nil)
		frame, err := a.Analyze(sine(200, 16000, 0.5, 1600), 1)
		require.NoError(t, err)
		assert.InDelta(t, 0.7, frame[viseme.AA], 1e-6)
		assert.InDelta(t, 0.3, frame[viseme.OH], 1e-6)
		assert.InDelta(t, 0, frame[viseme.Sil], 1e-6)
	})

	t.Run("alternating samples are sibilant", func(t *testing.T) {
		a := NewEnergyAnalyzer(nil)
		buf := make([]float32, 512)
		for i := range buf {
			buf[i] = 0.5
			if i%2 == 1 {
				buf[i] = -0.5
			}
		}
		frame, err := a.Analyze(buf, 1)
		require.NoError(t, err)
		assert.InDelta(t, 1, frame[viseme.SS], 1e-6)
		assert.Zero(t, frame[viseme.AA])
	})

	t.Run("level scales between threshold and ceiling", func(t *testing.T) {
		a := NewEnergyAnalyzer(nil)
		frame, err := a.Analyze(constant(0.155, 256), 1)
		require.NoError(t, err)
		assert.InDelta(t, 0.5, frame[viseme.Sil], 1e-4)
		assert.InDelta(t, 0.35, frame[viseme.AA], 1e-4)
	})
}

func TestEnergyAnalyzerSmoothing(t *testing.T) {
	cfg := DefaultEnergyConfig()
	cfg.SmoothingFrames = 2
	a := NewEnergyAnalyzer(cfg)

	_, err := a.Analyze(constant(0.31, 256), 1)
	require.NoError(t, err)

	// Half of the window is still loud.
	frame, err := a.Analyze(make([]float32, 256), 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, frame[viseme.Sil], 1e-4)

	a.Reset()
	frame, err = a.Analyze(make([]float32, 256), 1)
	require.NoError(t, err)
	assert.Equal(t, float32(1), frame[viseme.Sil])
}

func TestEnergyAnalyzerDownmix(t *testing.T) {
	a := NewEnergyAnalyzer(nil)

	stereo := make([]float32, 512)
	for i := 0; i < len(stereo); i += 2 {
		stereo[i] = 0.31
	}
	frame, err := a.Analyze(stereo, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, frame[viseme.Sil], 1e-4)
}

func TestEnergyAnalyzerErrors(t *testing.T) {
	a := NewEnergyAnalyzer(nil)

	_, err := a.Analyze([]float32{0.1}, 0)
	assert.ErrorIs(t, err, ErrInvalidChannels)

	_, err = a.Analyze(nil, 1)
	assert.ErrorIs(t, err, ErrEmptyBuffer)

	assert.True(t, a.Ready())
	a.Close()
	assert.False(t, a.Ready())
	_, err = a.Analyze([]float32{0.1}, 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewEnergyAnalyzerLeavesConfigUntouched(t *testing.T) {
	cfg := &EnergyConfig{Threshold: 0.2, Ceiling: 0.1, SmoothingFrames: 0}
	e := NewEnergyAnalyzer(cfg)

	assert.Equal(t, 0, cfg.SmoothingFrames)
	assert.Equal(t, 0.1, cfg.Ceiling)
	assert.Len(t, e.energyHistory, 1)
	assert.Greater(t, e.config.Ceiling, e.config.Threshold)
}
