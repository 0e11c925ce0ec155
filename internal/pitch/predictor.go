package pitch

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/go-pitchpred/internal/runtime/tensor"
)

// SequencePredictor maps [B, T, D] features to one scalar per frame.
type SequencePredictor interface {
	// Forward returns [B, T] raw predictions with padded frames zeroed.
	Forward(ctx context.Context, xs *tensor.Tensor, mask *tensor.Mask) (*tensor.Tensor, error)
	// Inference returns [B, T] predictions scaled by alpha.
	Inference(ctx context.Context, xs *tensor.Tensor, alpha float32) (*tensor.Tensor, error)
}

// Predictor wraps a SequencePredictor and buckets its inference output into
// one-hot pitch bins.
type Predictor struct {
	seq    SequencePredictor
	table  *BinTable
	domain Domain
}

func NewPredictor(seq SequencePredictor, table *BinTable, domain Domain) (*Predictor, error) {
	if seq == nil {
		return nil, errors.New("pitch: predictor requires a sequence predictor")
	}

	if table == nil {
		return nil, errors.New("pitch: predictor requires a bin table")
	}

	if _, err := ParseDomain(string(domain)); err != nil {
		return nil, err
	}

	if domain == "" {
		domain = DomainLog
	}

	return &Predictor{seq: seq, table: table, domain: domain}, nil
}

func (p *Predictor) Table() *BinTable { return p.table }

func (p *Predictor) Domain() Domain { return p.domain }

func (p *Predictor) Sequence() SequencePredictor { return p.seq }

// Forward returns raw, unquantized [B, T] predictions for the loss.
func (p *Predictor) Forward(ctx context.Context, xs *tensor.Tensor, mask *tensor.Mask) (*tensor.Tensor, error) {
	return p.seq.Forward(ctx, xs, mask)
}

// InferenceBins runs the sequence predictor in inference mode and returns
// the [B][T] bin index of every frame.
func (p *Predictor) InferenceBins(ctx context.Context, xs *tensor.Tensor, alpha float32) ([][]int, error) {
	out, err := p.seq.Inference(ctx, xs, alpha)
	if err != nil {
		return nil, err
	}

	shape := out.Shape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("%w: sequence predictor returned %v, want [B T]", ErrShapeMismatch, shape)
	}

	batch, frames := int(shape[0]), int(shape[1])
	values := out.RawData()
	bins := make([][]int, batch)

	for b := range batch {
		row := make([]int, frames)

		for t := range frames {
			idx, err := p.domain.index(p.table, float64(values[b*frames+t]))
			if err != nil {
				return nil, fmt.Errorf("batch %d frame %d: %w", b, t, err)
			}

			row[t] = idx
		}

		bins[b] = row
	}

	return bins, nil
}

// Inference returns a [B, T, n_bins] one-hot tensor.
func (p *Predictor) Inference(ctx context.Context, xs *tensor.Tensor, alpha float32) (*tensor.Tensor, error) {
	bins, err := p.InferenceBins(ctx, xs, alpha)
	if err != nil {
		return nil, err
	}

	if len(bins) == 0 {
		return tensor.Zeros([]int64{0, 0, int64(p.table.NBins())})
	}

	return OneHotBatch(bins, p.table.NBins())
}
