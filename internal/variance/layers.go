package variance

import (
	"errors"
	"fmt"

	"github.com/example/go-pitchpred/internal/runtime/ops"
	"github.com/example/go-pitchpred/internal/runtime/tensor"
)

// layerNormEps matches the channel LayerNorm used by FastSpeech-style
// variance predictors.
const layerNormEps = 1e-12

type linear struct {
	weight *tensor.Tensor // [out, in]
	bias   *tensor.Tensor // [out]
}

func loadLinear(vb *VarBuilder, in int64) (*linear, error) {
	w, err := vb.Tensor("weight")
	if err != nil {
		return nil, err
	}

	if w.Rank() != 2 || w.Shape()[1] != in {
		return nil, fmt.Errorf("variance: linear %q weight shape %v, want [out %d]", vb.prefix, w.Shape(), in)
	}

	b, err := vb.Tensor("bias", w.Shape()[0])
	if err != nil {
		return nil, err
	}

	return &linear{weight: w, bias: b}, nil
}

func (l *linear) forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if l == nil || l.weight == nil {
		return nil, errors.New("variance: linear is not initialized")
	}

	return tensor.Linear(x, l.weight, l.bias)
}

type layerNorm struct {
	weight *tensor.Tensor
	bias   *tensor.Tensor
}

func loadLayerNorm(vb *VarBuilder, dim int64) (*layerNorm, error) {
	w, err := vb.Tensor("weight", dim)
	if err != nil {
		return nil, err
	}

	b, err := vb.Tensor("bias", dim)
	if err != nil {
		return nil, err
	}

	return &layerNorm{weight: w, bias: b}, nil
}

func (ln *layerNorm) forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.LayerNorm(x, ln.weight, ln.bias, layerNormEps)
}

// convBlock is Conv1d(same) -> ReLU -> LayerNorm(channels) -> Dropout.
// Dropout is the identity outside training.
type convBlock struct {
	weight *tensor.Tensor // [out, in, k]
	bias   *tensor.Tensor // [out]
	norm   *layerNorm
}

func loadConvBlock(vb *VarBuilder, in int64) (*convBlock, error) {
	conv := vb.Path("0")

	w, err := conv.Tensor("weight")
	if err != nil {
		return nil, err
	}

	shape := w.Shape()
	if len(shape) != 3 || shape[1] != in || shape[2]%2 == 0 {
		return nil, fmt.Errorf("variance: conv %q weight shape %v, want [out %d odd_k]", conv.prefix, shape, in)
	}

	b, err := conv.Tensor("bias", shape[0])
	if err != nil {
		return nil, err
	}

	norm, err := loadLayerNorm(vb.Path("2"), shape[0])
	if err != nil {
		return nil, err
	}

	return &convBlock{weight: w, bias: b, norm: norm}, nil
}

// forward maps [B, T, in] to [B, T, out].
func (c *convBlock) forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	channelsFirst, err := x.Transpose(1, 2)
	if err != nil {
		return nil, err
	}

	y, err := ops.Conv1DSame(channelsFirst, c.weight, c.bias)
	if err != nil {
		return nil, err
	}

	y, err = tensor.ReLU(y)
	if err != nil {
		return nil, err
	}

	y, err = y.Transpose(1, 2)
	if err != nil {
		return nil, err
	}

	return c.norm.forward(y)
}

func (c *convBlock) outChannels() int64 { return c.weight.Shape()[0] }

func (c *convBlock) kernelSize() int64 { return c.weight.Shape()[2] }
