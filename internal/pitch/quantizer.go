package pitch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/go-pitchpred/internal/f0"
	"github.com/example/go-pitchpred/internal/runtime/tensor"
)

// LoadFunc reads a precomputed f0 contour from disk.
type LoadFunc func(path string) ([]float64, error)

// Quantizer turns f0 contours into one-hot pitch targets.
type Quantizer struct {
	table     *BinTable
	extractor f0.Extractor
	load      LoadFunc
}

// QuantizerOption customises a Quantizer.
type QuantizerOption func(*Quantizer)

// WithExtractor sets the extractor used by ExtractAndQuantize.
func WithExtractor(e f0.Extractor) QuantizerOption {
	return func(q *Quantizer) { q.extractor = e }
}

// WithLoader replaces the contour loader used by LoadAndQuantize. The
// default is f0.Load.
func WithLoader(fn LoadFunc) QuantizerOption {
	return func(q *Quantizer) { q.load = fn }
}

func NewQuantizer(table *BinTable, opts ...QuantizerOption) (*Quantizer, error) {
	if table == nil {
		return nil, fmt.Errorf("pitch: quantizer requires a bin table")
	}

	q := &Quantizer{table: table, load: f0.Load}
	for _, opt := range opts {
		opt(q)
	}

	return q, nil
}

func (q *Quantizer) Table() *BinTable { return q.table }

// BinsForTraining bins a contour in Hz: values below 1 are floored to 1,
// the log is taken, then the table's range policy applies.
func (q *Quantizer) BinsForTraining(contour []float64) ([]int, error) {
	out := make([]int, len(contour))
	for i, v := range contour {
		idx, err := q.table.IndexHz(v)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}

		out[i] = idx
	}

	return out, nil
}

// BinsForInference bins values already in the table's log domain.
func (q *Quantizer) BinsForInference(values []float64) ([]int, error) {
	out := make([]int, len(values))
	for i, v := range values {
		idx, err := q.table.IndexLog(v)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}

		out[i] = idx
	}

	return out, nil
}

// QuantizeForTraining returns a [frames, n_bins] one-hot tensor.
func (q *Quantizer) QuantizeForTraining(contour []float64) (*tensor.Tensor, error) {
	bins, err := q.BinsForTraining(contour)
	if err != nil {
		return nil, err
	}

	return OneHot(bins, q.table.NBins())
}

// QuantizeForInference returns a [frames, n_bins] one-hot tensor for
// log-domain values.
func (q *Quantizer) QuantizeForInference(values []float64) (*tensor.Tensor, error) {
	bins, err := q.BinsForInference(values)
	if err != nil {
		return nil, err
	}

	return OneHot(bins, q.table.NBins())
}

// ExtractAndQuantize runs the configured extractor over a mono waveform and
// quantizes the resulting contour. It also returns the raw contour.
func (q *Quantizer) ExtractAndQuantize(ctx context.Context, samples []float64, sampleRate int) (*tensor.Tensor, []float64, error) {
	if q.extractor == nil {
		return nil, nil, fmt.Errorf("pitch: quantizer has no f0 extractor")
	}

	contour, err := q.extractor.Extract(ctx, samples, sampleRate)
	if err != nil {
		return nil, nil, fmt.Errorf("pitch: extract f0: %w", err)
	}

	if len(contour) == 0 {
		return nil, nil, ErrEmptyContour
	}

	onehot, err := q.QuantizeForTraining(contour)
	if err != nil {
		return nil, nil, err
	}

	slog.Debug("quantized extracted f0", "frames", len(contour), "n_bins", q.table.NBins())

	return onehot, contour, nil
}

// LoadAndQuantize reads a precomputed contour and quantizes it.
func (q *Quantizer) LoadAndQuantize(path string) (*tensor.Tensor, []float64, error) {
	contour, err := q.load(path)
	if err != nil {
		return nil, nil, err
	}

	if len(contour) == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrEmptyContour, path)
	}

	onehot, err := q.QuantizeForTraining(contour)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	return onehot, contour, nil
}
