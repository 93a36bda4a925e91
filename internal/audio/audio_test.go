package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePCM(t *testing.T) {
	t.Run("s16", func(t *testing.T) {
		data := []byte{0x00, 0x40, 0x00, 0xC0, 0xFF, 0x7F, 0x01}
		out, err := DecodePCM(data, FormatS16)
		require.NoError(t, err)
		require.Len(t, out, 3)
		assert.InDelta(t, 0.5, out[0], 1e-6)
		assert.InDelta(t, -0.5, out[1], 1e-6)
		assert.InDelta(t, 1, out[2], 1e-4)
	})

	t.Run("f32", func(t *testing.T) {
		data := make([]byte, 8)
		binary.LittleEndian.PutUint32(data, math.Float32bits(0.25))
		binary.LittleEndian.PutUint32(data[4:], math.Float32bits(-1))
		out, err := DecodePCM(data, FormatF32)
		require.NoError(t, err)
		assert.Equal(t, []float32{0.25, -1}, out)
	})

	t.Run("u8", func(t *testing.T) {
		out, err := DecodePCM([]byte{128, 0, 192}, FormatU8)
		require.NoError(t, err)
		assert.Equal(t, []float32{0, -1, 0.5}, out)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := DecodePCM([]byte{1, 2}, SampleFormat(9))
		assert.ErrorIs(t, err, ErrInvalidFormat)
	})
}

func TestWAVStereo(t *testing.T) {
	clip := &Clip{
		Samples:    []float32{0.5, -0.5, 0.25, -0.25, 0, 0},
		Channels:   2,
		SampleRate: 22050,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteWAV(&buf, clip))

	got, header, err := ReadWAV(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, uint16(16), header.BitsPerSample)
	assert.Equal(t, 2, got.Channels)
	assert.Equal(t, 22050, got.SampleRate)
	assert.Equal(t, 3, got.Frames())
	require.Len(t, got.Samples, len(clip.Samples))
	for i := range clip.Samples {
		assert.InDelta(t, clip.Samples[i], got.Samples[i], 1e-3)
	}
}

func TestReadWAVSkipsUnknownChunks(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteWAV(&buf, &Clip{Samples: []float32{0.5}, Channels: 1, SampleRate: 16000}))
	raw := buf.Bytes()

	// Splice an odd-sized LIST chunk between fmt and data.
	var spliced bytes.Buffer
	spliced.Write(raw[:36])
	spliced.WriteString("LIST")
	binary.Write(&spliced, binary.LittleEndian, uint32(3))
	spliced.Write([]byte{1, 2, 3, 0})
	spliced.Write(raw[36:])

	clip, _, err := ReadWAV(bytes.NewReader(spliced.Bytes()))
	require.NoError(t, err)
	require.Len(t, clip.Samples, 1)
	assert.InDelta(t, 0.5, clip.Samples[0], 1e-3)
}

func TestReadWAVErrors(t *testing.T) {
	_, _, err := ReadWAV(bytes.NewReader([]byte("RIFX\x00\x00\x00\x00WAVE")))
	assert.ErrorIs(t, err, ErrNotWAV)

	header := []byte("RIFF\x04\x00\x00\x00WAVE")
	_, _, err = ReadWAV(bytes.NewReader(header))
	assert.ErrorIs(t, err, ErrMissingChunk)

	path := filepath.Join(t.TempDir(), "missing.wav")
	_, err = ReadWAVFile(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFeederNext(t *testing.T) {
	clip := &Clip{Samples: []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, Channels: 2, SampleRate: 1000}

	f := NewFeeder(clip, 2, false)
	assert.Equal(t, 2*time.Millisecond, f.Interval())

	var got [][]float32
	for {
		buf, ok := f.Next()
		if !ok {
			break
		}
		got = append(got, buf)
	}
	assert.Equal(t, [][]float32{{1, 2, 3, 4}, {5, 6, 7, 8}, {9, 10}}, got)

	looping := NewFeeder(clip, 4, true)
	looping.Next()
	looping.Next()
	buf, ok := looping.Next()
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6, 7, 8}, buf)
}

func TestFeederRun(t *testing.T) {
	clip := &Clip{Samples: make([]float32, 30), Channels: 1, SampleRate: 10000}
	f := NewFeeder(clip, 10, false)

	var (
		mu     sync.Mutex
		pushes int
	)
	err := f.Run(context.Background(), func(_ context.Context, samples []float32, channels int) {
		mu.Lock()
		defer mu.Unlock()
		pushes++
		assert.Equal(t, 1, channels)
		assert.Len(t, samples, 10)
	})
	require.NoError(t, err)
	assert.Equal(t, 3, pushes)

	silence := NewSilenceFeeder(2, 48000, 480)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = silence.Run(ctx, func(context.Context, []float32, int) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
