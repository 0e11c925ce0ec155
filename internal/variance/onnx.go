package variance

import (
	"context"
	"fmt"

	"github.com/example/go-pitchpred/internal/onnx"
	"github.com/example/go-pitchpred/internal/runtime/tensor"
)

// Graph I/O names of an exported predictor.
const (
	ONNXInputFeatures = "xs"
	ONNXInputMask     = "x_masks"
	ONNXOutput        = "ys"
)

// GraphRunner executes one ONNX graph. *onnx.Runner satisfies it.
type GraphRunner interface {
	Run(ctx context.Context, inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error)
	Close()
}

// ONNX runs an exported variance predictor graph. The graph takes xs
// [B, T, D] and x_masks [B, T] (1 = valid) and returns ys [B, T] or
// [B, T, 1].
type ONNX struct {
	runner GraphRunner
}

// OpenONNX loads the graph at path with ONNX Runtime.
func OpenONNX(path string, cfg onnx.RunnerConfig) (*ONNX, error) {
	r, err := onnx.NewRunner(path, cfg)
	if err != nil {
		return nil, err
	}

	return NewONNX(r), nil
}

func NewONNX(r GraphRunner) *ONNX {
	return &ONNX{runner: r}
}

func (o *ONNX) Forward(ctx context.Context, xs *tensor.Tensor, mask *tensor.Mask) (*tensor.Tensor, error) {
	if xs == nil || xs.Rank() != 3 {
		return nil, fmt.Errorf("%w: xs must be [B T D], got %v", ErrShapeMismatch, xs.Shape())
	}

	if err := mask.CheckShape(xs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrShapeMismatch, err)
	}

	shape := xs.Shape()

	var (
		maskTensor *tensor.Tensor
		err        error
	)

	if mask == nil {
		maskTensor, err = tensor.Full(shape[:2], 1)
	} else {
		maskTensor, err = tensor.New(mask.Float32(), shape[:2])
	}

	if err != nil {
		return nil, err
	}

	outputs, err := o.runner.Run(ctx, map[string]*tensor.Tensor{
		ONNXInputFeatures: xs,
		ONNXInputMask:     maskTensor,
	})
	if err != nil {
		return nil, err
	}

	ys, ok := outputs[ONNXOutput]
	if !ok {
		return nil, fmt.Errorf("variance: onnx graph has no %q output", ONNXOutput)
	}

	if ys.Rank() == 3 {
		if ys, err = ys.Squeeze(-1); err != nil {
			return nil, err
		}
	}

	got := ys.Shape()
	if len(got) != 2 || got[0] != shape[0] || got[1] != shape[1] {
		return nil, fmt.Errorf("variance: onnx output shape %v, want [%d %d]", got, shape[0], shape[1])
	}

	return tensor.MaskedFill(ys, mask, 0)
}

// Inference runs the graph with every frame valid and rescales each
// utterance about its mean by alpha.
func (o *ONNX) Inference(ctx context.Context, xs *tensor.Tensor, alpha float32) (*tensor.Tensor, error) {
	out, err := o.Forward(ctx, xs, nil)
	if err != nil {
		return nil, err
	}

	return tensor.ScaleAroundMean(out, alpha)
}

func (o *ONNX) Close() {
	if o.runner != nil {
		o.runner.Close()
	}
}
