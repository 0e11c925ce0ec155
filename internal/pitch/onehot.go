package pitch

import (
	"errors"
	"fmt"

	"github.com/example/go-pitchpred/internal/runtime/tensor"
)

// OneHot encodes indices as a [frames, width] tensor with exactly one 1.0
// per row.
func OneHot(indices []int, width int) (*tensor.Tensor, error) {
	if width < 1 {
		return nil, fmt.Errorf("%w: one-hot width %d", ErrInvalidBins, width)
	}

	data := make([]float32, len(indices)*width)
	if err := fillOneHot(data, indices, width); err != nil {
		return nil, err
	}

	return tensor.New(data, []int64{int64(len(indices)), int64(width)})
}

// OneHotBatch encodes [B][T] indices as a [B, T, width] tensor. Every row
// must have the same length.
func OneHotBatch(indices [][]int, width int) (*tensor.Tensor, error) {
	if width < 1 {
		return nil, fmt.Errorf("%w: one-hot width %d", ErrInvalidBins, width)
	}

	frames := 0
	if len(indices) > 0 {
		frames = len(indices[0])
	}

	data := make([]float32, len(indices)*frames*width)
	for b, row := range indices {
		if len(row) != frames {
			return nil, fmt.Errorf("%w: row %d has %d frames, want %d", ErrShapeMismatch, b, len(row), frames)
		}

		if err := fillOneHot(data[b*frames*width:(b+1)*frames*width], row, width); err != nil {
			return nil, fmt.Errorf("row %d: %w", b, err)
		}
	}

	return tensor.New(data, []int64{int64(len(indices)), int64(frames), int64(width)})
}

func fillOneHot(dst []float32, indices []int, width int) error {
	for t, idx := range indices {
		if idx < 0 || idx >= width {
			return fmt.Errorf("%w: frame %d has index %d, want [0, %d)", ErrOutOfRange, t, idx, width)
		}

		dst[t*width+idx] = 1
	}

	return nil
}

// Argmax returns the index of the largest value along the last dimension,
// flattened over the leading dimensions. Ties resolve to the lowest index.
func Argmax(x *tensor.Tensor) ([]int, error) {
	if x == nil || x.Rank() < 1 {
		return nil, errors.New("pitch: argmax needs a tensor of rank >= 1")
	}

	width, err := x.Dim(-1)
	if err != nil {
		return nil, err
	}

	if width == 0 {
		return nil, fmt.Errorf("%w: argmax over empty last dimension", ErrShapeMismatch)
	}

	w := int(width)
	data := x.RawData()

	out := make([]int, len(data)/w)
	for r := range out {
		row := data[r*w : (r+1)*w]
		best := 0

		for i, v := range row {
			if v > row[best] {
				best = i
			}
		}

		out[r] = best
	}

	return out, nil
}
