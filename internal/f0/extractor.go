package f0

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	dio "github.com/but80/go-dio"
)

// Default extraction parameters. DefaultFramePeriodMs matches a 256-sample
// hop at 22050 Hz.
const (
	DefaultFramePeriodMs = 11.6
	DefaultF0Floor       = 71.0
	DefaultF0Ceil        = 800.0
	DefaultSpeed         = 1
)

var (
	// ErrEmptySignal is returned when there are no samples to analyse.
	ErrEmptySignal = errors.New("f0: empty signal")
	// ErrInvalidSignal is returned for non-finite samples or a bad sample rate.
	ErrInvalidSignal = errors.New("f0: invalid signal")
)

// Extractor turns a mono waveform into a per-frame f0 contour in Hz.
type Extractor interface {
	Extract(ctx context.Context, samples []float64, sampleRate int) ([]float64, error)
}

// DIOConfig holds the knobs passed to the DIO estimator.
type DIOConfig struct {
	FramePeriodMs float64
	F0Floor       float64
	F0Ceil        float64
	Speed         int
}

// DefaultDIOConfig returns the configuration used for training targets.
func DefaultDIOConfig() DIOConfig {
	return DIOConfig{
		FramePeriodMs: DefaultFramePeriodMs,
		F0Floor:       DefaultF0Floor,
		F0Ceil:        DefaultF0Ceil,
		Speed:         DefaultSpeed,
	}
}

func (c DIOConfig) Validate() error {
	if !(c.FramePeriodMs > 0) || math.IsInf(c.FramePeriodMs, 0) {
		return fmt.Errorf("f0: frame period must be > 0 ms, got %v", c.FramePeriodMs)
	}

	if !(c.F0Floor > 0) || !(c.F0Ceil > c.F0Floor) || math.IsInf(c.F0Ceil, 0) {
		return fmt.Errorf("f0: need 0 < f0 floor < f0 ceil, got %v and %v", c.F0Floor, c.F0Ceil)
	}

	if c.Speed < 1 || c.Speed > 12 {
		return fmt.Errorf("f0: dio speed must be in [1, 12], got %d", c.Speed)
	}

	return nil
}

// DIOExtractor estimates f0 with WORLD's DIO algorithm.
type DIOExtractor struct {
	cfg DIOConfig
}

func NewDIOExtractor(cfg DIOConfig) (*DIOExtractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &DIOExtractor{cfg: cfg}, nil
}

func (e *DIOExtractor) Config() DIOConfig { return e.cfg }

// Extract runs DIO over the whole waveform. The estimate itself is not
// interruptible; ctx is checked before and after it.
func (e *DIOExtractor) Extract(ctx context.Context, samples []float64, sampleRate int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(samples) == 0 {
		return nil, ErrEmptySignal
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrInvalidSignal, sampleRate)
	}

	for i, v := range samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: sample %d is %v", ErrInvalidSignal, i, v)
		}
	}

	opt := dio.NewOption()
	opt.FramePeriod = e.cfg.FramePeriodMs
	opt.F0Floor = e.cfg.F0Floor
	opt.F0Ceil = e.cfg.F0Ceil
	opt.Speed = e.cfg.Speed

	x := append([]float64(nil), samples...)
	_, contour := dio.NewSession(x, float64(sampleRate), opt).Estimate()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slog.Debug("dio f0 estimate", "samples", len(samples), "sample_rate", sampleRate, "frames", len(contour))

	return contour, nil
}

// FramePeriodForHop converts a hop size in samples to a frame period in
// milliseconds.
func FramePeriodForHop(hop, sampleRate int) (float64, error) {
	if hop <= 0 || sampleRate <= 0 {
		return 0, fmt.Errorf("f0: hop %d and sample rate %d must be > 0", hop, sampleRate)
	}

	return 1000 * float64(hop) / float64(sampleRate), nil
}

// FrameCount returns the number of frames DIO produces for n samples.
func FrameCount(n, sampleRate int, framePeriodMs float64) int {
	if n <= 0 || sampleRate <= 0 || framePeriodMs <= 0 {
		return 0
	}

	return int(1000*float64(n)/float64(sampleRate)/framePeriodMs) + 1
}
