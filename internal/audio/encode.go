package audio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/cwbudde/wav"
	goaudio "github.com/go-audio/audio"
)

// DefaultBitDepth is the PCM depth written by EncodeWAV.
const DefaultBitDepth = 16

// EncodeWAV encodes mono samples in [-1, 1] as 16-bit PCM WAV.
func EncodeWAV(samples []float64, sampleRate int) ([]byte, error) {
	return EncodeWAVChannels(samples, sampleRate, 1)
}

// EncodeWAVChannels encodes interleaved samples with the given channel count.
func EncodeWAVChannels(samples []float64, sampleRate, channels int) ([]byte, error) {
	if sampleRate < 1 {
		return nil, fmt.Errorf("audio: invalid sample rate %d", sampleRate)
	}

	if channels < 1 || len(samples)%channels != 0 {
		return nil, fmt.Errorf("audio: %d samples do not split into %d channels", len(samples), channels)
	}

	var buf bytes.Buffer

	// wav.NewEncoder requires an io.WriteSeeker; bytes.Buffer is not one.
	sw := &seekBuffer{buf: &buf}

	enc := wav.NewEncoder(sw, sampleRate, DefaultBitDepth, channels, 1) // 1 = PCM

	data := make([]float32, len(samples))
	for i, v := range samples {
		data[i] = float32(max(-1, min(1, v)))
	}

	pcmBuf := &goaudio.Float32Buffer{
		Data:           data,
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: channels},
		SourceBitDepth: DefaultBitDepth,
	}

	if err := enc.Write(pcmBuf); err != nil {
		return nil, fmt.Errorf("audio: writing PCM: %w", err)
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("audio: closing encoder: %w", err)
	}

	return buf.Bytes(), nil
}

// seekBuffer wraps a bytes.Buffer to satisfy io.WriteSeeker.
type seekBuffer struct {
	buf *bytes.Buffer
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	if s.pos == s.buf.Len() {
		n, err := s.buf.Write(p)
		s.pos += n

		return n, err
	}

	// Overwrite in place, extending past the end if needed.
	data := s.buf.Bytes()

	n := copy(data[s.pos:], p)
	if n < len(p) {
		data = append(data, p[n:]...)
		s.buf.Reset()
		s.buf.Write(data)

		n = len(p)
	}

	s.pos += n

	return n, nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var newPos int

	switch whence {
	case io.SeekStart:
		newPos = int(offset)
	case io.SeekCurrent:
		newPos = s.pos + int(offset)
	case io.SeekEnd:
		newPos = s.buf.Len() + int(offset)
	default:
		return 0, fmt.Errorf("audio: invalid whence %d", whence)
	}

	if newPos < 0 {
		return 0, fmt.Errorf("audio: seek before start")
	}

	s.pos = newPos

	return int64(newPos), nil
}
