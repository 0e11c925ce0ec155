// Package audio reads and writes PCM WAV for the f0 extraction path.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/cwbudde/wav"
)

var (
	ErrEmptyWAV   = errors.New("audio: empty WAV input")
	ErrInvalidWAV = errors.New("audio: invalid WAV file")
)

// Clip is a decoded mono waveform with samples in [-1, 1].
type Clip struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the clip length in seconds.
func (c Clip) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}

	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// DecodeWAV decodes PCM WAV bytes at any sample rate. Multi-channel audio
// is mixed down to mono by averaging the channels of each frame.
func DecodeWAV(data []byte) (Clip, error) {
	if len(data) == 0 {
		return Clip{}, ErrEmptyWAV
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Clip{}, ErrInvalidWAV
	}

	if dec.SampleRate == 0 || dec.NumChans == 0 {
		return Clip{}, fmt.Errorf("%w: sample rate %d, channels %d", ErrInvalidWAV, dec.SampleRate, dec.NumChans)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("audio: reading PCM data: %w", err)
	}

	return Clip{
		Samples:    MixDown(buf.Data, int(dec.NumChans)),
		SampleRate: int(dec.SampleRate),
	}, nil
}

// ReadWAVFile decodes the WAV file at path.
func ReadWAVFile(path string) (Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Clip{}, fmt.Errorf("audio: read %s: %w", path, err)
	}

	clip, err := DecodeWAV(data)
	if err != nil {
		return Clip{}, fmt.Errorf("%s: %w", path, err)
	}

	return clip, nil
}

// MixDown averages interleaved frames of the given channel count into a mono
// float64 signal. A trailing partial frame is dropped.
func MixDown(interleaved []float32, channels int) []float64 {
	if channels <= 1 {
		out := make([]float64, len(interleaved))
		for i, v := range interleaved {
			out[i] = float64(v)
		}

		return out
	}

	frames := len(interleaved) / channels
	out := make([]float64, frames)

	for f := range frames {
		var sum float64
		for c := range channels {
			sum += float64(interleaved[f*channels+c])
		}

		out[f] = sum / float64(channels)
	}

	return out
}
