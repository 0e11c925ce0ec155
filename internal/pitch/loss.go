package pitch

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/example/go-pitchpred/internal/runtime/tensor"
)

// DefaultLogOffset is added before the log when Loss.LogDomain is set.
const DefaultLogOffset = 1.0

// Loss is the mean squared error between predicted and target per-frame
// scalars, averaged over valid frames only.
type Loss struct {
	// LogDomain compares log(x + Offset) instead of x.
	LogDomain bool
	Offset    float64
}

func DefaultLoss() Loss {
	return Loss{Offset: DefaultLogOffset}
}

// Compute returns the masked MSE. pred and target must both be [B, T] and
// match the mask; a nil mask means every frame is valid.
func (l Loss) Compute(pred, target *tensor.Tensor, mask *tensor.Mask) (float64, error) {
	p, tv, valid, err := l.prepare(pred, target, mask)
	if err != nil {
		return 0, err
	}

	sq := make([]float64, 0, len(valid))
	for _, i := range valid {
		d := p[i] - tv[i]
		sq = append(sq, d*d)
	}

	return stat.Mean(sq, nil), nil
}

// Gradient returns d(loss)/d(pred) with the same shape as pred. Padded
// frames get a zero gradient.
func (l Loss) Gradient(pred, target *tensor.Tensor, mask *tensor.Mask) (*tensor.Tensor, error) {
	p, tv, valid, err := l.prepare(pred, target, mask)
	if err != nil {
		return nil, err
	}

	raw := pred.RawData()
	grad := make([]float64, len(raw))
	n := float64(len(valid))

	for _, i := range valid {
		g := 2 * (p[i] - tv[i]) / n
		if l.LogDomain {
			g /= float64(raw[i]) + l.Offset
		}

		grad[i] = g
	}

	return tensor.FromFloat64(grad, pred.Shape())
}

// prepare validates shapes, applies the optional log transform, and returns
// the flat indices of valid frames.
func (l Loss) prepare(pred, target *tensor.Tensor, mask *tensor.Mask) ([]float64, []float64, []int, error) {
	if pred == nil || target == nil {
		return nil, nil, nil, errors.New("pitch: loss requires pred and target")
	}

	if pred.Rank() != 2 || !equalShape(pred.Shape(), target.Shape()) {
		return nil, nil, nil, fmt.Errorf("%w: pred %v, target %v (want matching [B T])", ErrShapeMismatch, pred.Shape(), target.Shape())
	}

	if err := mask.CheckShape(pred); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}

	p := pred.Float64s()
	tv := target.Float64s()

	frames := int(pred.Shape()[1])
	valid := make([]int, 0, len(p))

	for i := range p {
		if !mask.Valid(i/max(frames, 1), i%max(frames, 1)) {
			continue
		}

		if l.LogDomain {
			lp, err := l.logValue(p[i])
			if err != nil {
				return nil, nil, nil, fmt.Errorf("pred frame %d: %w", i, err)
			}

			lt, err := l.logValue(tv[i])
			if err != nil {
				return nil, nil, nil, fmt.Errorf("target frame %d: %w", i, err)
			}

			p[i], tv[i] = lp, lt
		}

		valid = append(valid, i)
	}

	if len(valid) == 0 {
		return nil, nil, nil, ErrEmptyMask
	}

	return p, tv, valid, nil
}

func (l Loss) logValue(v float64) (float64, error) {
	if v+l.Offset <= 0 {
		return 0, fmt.Errorf("%w: log(%v + %v) undefined", ErrNonFinite, v, l.Offset)
	}

	return math.Log(v + l.Offset), nil
}

func equalShape(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
