package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	wavePCM   = 1
	waveFloat = 3
)

// WAVHeader holds the parsed fmt chunk.
type WAVHeader struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	BitsPerSample uint16
}

// SampleFormat maps the header onto a PCM sample format.
func (h WAVHeader) SampleFormat() (SampleFormat, error) {
	switch {
	case h.AudioFormat == wavePCM && h.BitsPerSample == 8:
		return FormatU8, nil
	case h.AudioFormat == wavePCM && h.BitsPerSample == 16:
		return FormatS16, nil
	case h.AudioFormat == waveFloat && h.BitsPerSample == 32:
		return FormatF32, nil
	default:
		return 0, fmt.Errorf("%w: wav format %d with %d bits", ErrInvalidFormat, h.AudioFormat, h.BitsPerSample)
	}
}

// ReadWAV decodes a RIFF/WAVE stream holding 8/16-bit PCM or 32-bit float audio.
func ReadWAV(r io.ReadSeeker) (*Clip, WAVHeader, error) {
	var header WAVHeader

	var riff struct {
		ID   [4]byte
		Size uint32
		Wave [4]byte
	}
	if err := binary.Read(r, binary.LittleEndian, &riff); err != nil {
		return nil, header, fmt.Errorf("read RIFF header: %w", err)
	}
	if string(riff.ID[:]) != "RIFF" || string(riff.Wave[:]) != "WAVE" {
		return nil, header, ErrNotWAV
	}

	var fmtFound bool
	for {
		var chunk struct {
			ID   [4]byte
			Size uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &chunk); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, header, fmt.Errorf("read chunk header: %w", err)
		}

		switch string(chunk.ID[:]) {
		case "fmt ":
			if err := readFmtChunk(r, chunk.Size, &header); err != nil {
				return nil, header, err
			}
			fmtFound = true

		case "data":
			if !fmtFound {
				return nil, header, fmt.Errorf("%w: data chunk before fmt chunk", ErrMissingChunk)
			}
			format, err := header.SampleFormat()
			if err != nil {
				return nil, header, err
			}
			raw := make([]byte, chunk.Size)
			if _, err := io.ReadFull(r, raw); err != nil {
				return nil, header, fmt.Errorf("read PCM data: %w", err)
			}
			samples, err := DecodePCM(raw, format)
			if err != nil {
				return nil, header, err
			}
			return &Clip{
				Samples:    samples,
				Channels:   int(header.NumChannels),
				SampleRate: int(header.SampleRate),
			}, header, nil

		default:
			// Chunks are word aligned.
			skip := int64(chunk.Size)
			if chunk.Size%2 != 0 {
				skip++
			}
			if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
				return nil, header, fmt.Errorf("skip chunk %q: %w", chunk.ID, err)
			}
		}
	}

	if !fmtFound {
		return nil, header, fmt.Errorf("%w: fmt", ErrMissingChunk)
	}
	return nil, header, fmt.Errorf("%w: data", ErrMissingChunk)
}

// ReadWAVFile opens and decodes a WAV file.
func ReadWAVFile(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	clip, _, err := ReadWAV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return clip, nil
}

func readFmtChunk(r io.ReadSeeker, size uint32, h *WAVHeader) error {
	var raw struct {
		AudioFormat   uint16
		NumChannels   uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
	}
	if size < 16 {
		return fmt.Errorf("%w: fmt chunk of %d bytes", ErrInvalidFormat, size)
	}
	if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
		return fmt.Errorf("read fmt chunk: %w", err)
	}
	if raw.NumChannels == 0 || raw.SampleRate == 0 {
		return fmt.Errorf("%w: %d channels at %d Hz", ErrInvalidFormat, raw.NumChannels, raw.SampleRate)
	}

	h.AudioFormat = raw.AudioFormat
	h.NumChannels = raw.NumChannels
	h.SampleRate = raw.SampleRate
	h.BitsPerSample = raw.BitsPerSample

	extra := int64(size) - 16
	if size%2 != 0 {
		extra++
	}
	if extra > 0 {
		if _, err := r.Seek(extra, io.SeekCurrent); err != nil {
			return fmt.Errorf("skip extra fmt bytes: %w", err)
		}
	}
	return nil
}

// WriteWAV encodes a clip as 16-bit PCM.
func WriteWAV(w io.Writer, clip *Clip) error {
	dataSize := uint32(len(clip.Samples) * 2)
	header := struct {
		ID       [4]byte
		Size     uint32
		Wave     [4]byte
		FmtID    [4]byte
		FmtSize  uint32
		Format   uint16
		Channels uint16
		Rate     uint32
		ByteRate uint32
		Align    uint16
		Bits     uint16
		DataID   [4]byte
		DataSize uint32
	}{
		ID:       [4]byte{'R', 'I', 'F', 'F'},
		Size:     36 + dataSize,
		Wave:     [4]byte{'W', 'A', 'V', 'E'},
		FmtID:    [4]byte{'f', 'm', 't', ' '},
		FmtSize:  16,
		Format:   wavePCM,
		Channels: uint16(clip.Channels),
		Rate:     uint32(clip.SampleRate),
		ByteRate: uint32(clip.SampleRate * clip.Channels * 2),
		Align:    uint16(clip.Channels * 2),
		Bits:     16,
		DataID:   [4]byte{'d', 'a', 't', 'a'},
		DataSize: dataSize,
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return err
	}

	pcm := make([]int16, len(clip.Samples))
	for i, s := range clip.Samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		pcm[i] = int16(s * 32767)
	}
	return binary.Write(w, binary.LittleEndian, pcm)
}
