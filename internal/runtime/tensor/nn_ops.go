package tensor

import (
	"errors"
	"fmt"
	"math"
)

// LayerNorm normalizes the last dimension and applies optional weight/bias.
func LayerNorm(x, weight, bias *Tensor, eps float32) (*Tensor, error) {
	if x == nil {
		return nil, errors.New("tensor: layernorm input is nil")
	}

	if x.Rank() < 1 {
		return nil, errors.New("tensor: layernorm requires rank >= 1")
	}

	if eps <= 0 {
		return nil, errors.New("tensor: layernorm eps must be > 0")
	}

	d := x.shape[len(x.shape)-1]
	if d <= 0 {
		return nil, errors.New("tensor: layernorm last dimension must be > 0")
	}

	if weight != nil {
		if weight.Rank() != 1 || weight.shape[0] != d {
			return nil, fmt.Errorf("tensor: layernorm weight shape %v does not match last dimension %d", weight.shape, d)
		}
	}

	if bias != nil {
		if bias.Rank() != 1 || bias.shape[0] != d {
			return nil, fmt.Errorf("tensor: layernorm bias shape %v does not match last dimension %d", bias.shape, d)
		}
	}

	out := x.Clone()
	dd := int(d)

	outer := len(x.data) / dd
	for o := range outer {
		start := o * dd
		slice := out.data[start : start+dd]

		var mean float64
		for _, v := range slice {
			mean += float64(v)
		}

		mean /= float64(dd)

		var variance float64

		for _, v := range slice {
			delta := float64(v) - mean
			variance += delta * delta
		}

		variance /= float64(dd)

		invStd := float32(1.0 / math.Sqrt(variance+float64(eps)))
		for i := range dd {
			n := (slice[i] - float32(mean)) * invStd
			if weight != nil {
				n *= weight.data[i]
			}

			if bias != nil {
				n += bias.data[i]
			}

			slice[i] = n
		}
	}

	return out, nil
}

// Linear applies y = x * W^T + b where weight shape is [out, in].
func Linear(x, weight, bias *Tensor) (*Tensor, error) {
	if x == nil || weight == nil {
		return nil, errors.New("tensor: linear requires non-nil x and weight")
	}

	if x.Rank() < 1 {
		return nil, errors.New("tensor: linear requires x rank >= 1")
	}

	if weight.Rank() != 2 {
		return nil, fmt.Errorf("tensor: linear weight must be rank 2, got %d", weight.Rank())
	}

	in := x.shape[x.Rank()-1]

	out := weight.shape[0]
	if weight.shape[1] != in {
		return nil, fmt.Errorf("tensor: linear mismatch: x last dim %d, weight in dim %d", in, weight.shape[1])
	}

	if bias != nil {
		if bias.Rank() != 1 || bias.shape[0] != out {
			return nil, fmt.Errorf("tensor: linear bias shape %v does not match out dim %d", bias.shape, out)
		}
	}

	batch := len(x.data) / int(in)
	outData := make([]float32, batch*int(out))
	inI := int(in)
	outI := int(out)

	wData := weight.data
	ParallelFor(batch, Workers(), func(lo, hi int) {
		for bIdx := lo; bIdx < hi; bIdx++ {
			xSlice := x.data[bIdx*inI : bIdx*inI+inI]

			yBase := bIdx * outI
			for o := range outI {
				sum := DotProduct(xSlice, wData[o*inI:(o+1)*inI])
				if bias != nil {
					sum += bias.data[o]
				}

				outData[yBase+o] = sum
			}
		}
	})

	outShape := make([]int64, x.Rank())
	copy(outShape, x.shape[:x.Rank()-1])
	outShape[x.Rank()-1] = out

	return newOwned(outData, outShape), nil
}

// ReLU returns max(x, 0) element-wise.
func ReLU(x *Tensor) (*Tensor, error) {
	if x == nil {
		return nil, errors.New("tensor: relu input is nil")
	}

	out := x.Clone()
	for i, v := range out.data {
		if v < 0 {
			out.data[i] = 0
		}
	}

	return out, nil
}

// ScaleAroundMean rescales every row along the last dimension about the
// row's own mean: mean + alpha*(x - mean). alpha < 1 compresses variation
// toward the mean, alpha > 1 expands it; the row mean is unchanged.
func ScaleAroundMean(x *Tensor, alpha float32) (*Tensor, error) {
	if x == nil {
		return nil, errors.New("tensor: scale input is nil")
	}

	if x.Rank() < 1 {
		return nil, errors.New("tensor: scale around mean requires rank >= 1")
	}

	out := x.Clone()

	n := int(x.shape[len(x.shape)-1])
	if n == 0 || alpha == 1 {
		return out, nil
	}

	a := float64(alpha)

	for start := 0; start < len(out.data); start += n {
		row := out.data[start : start+n]

		var mean float64
		for _, v := range row {
			mean += float64(v)
		}

		mean /= float64(n)

		for i, v := range row {
			row[i] = float32(mean + a*(float64(v)-mean))
		}
	}

	return out, nil
}
