package ops

import (
	"errors"
	"fmt"

	"github.com/example/go-pitchpred/internal/runtime/tensor"
)

// Conv1DSame runs a stride-1 Conv1d with (kernel_size-1)/2 zero padding on
// both sides, so odd kernels keep the sequence length.
// input: [batch, in_channels, length]
// kernel: [out_channels, in_channels, kernel_size]
func Conv1DSame(input, kernel, bias *tensor.Tensor) (*tensor.Tensor, error) {
	p, out, biasData, err := prepareConv1D(input, kernel, bias)
	if err != nil {
		return nil, err
	}

	conv1DIm2col(input.RawData(), kernel.RawData(), biasData, out.RawData(), p)

	return out, nil
}

type conv1DParams struct {
	batch       int64
	inChannels  int64
	length      int64
	outChannels int64
	kernelSize  int64
	padding     int64
}

func prepareConv1D(input, kernel, bias *tensor.Tensor) (conv1DParams, *tensor.Tensor, []float32, error) {
	if input == nil || kernel == nil {
		return conv1DParams{}, nil, nil, errors.New("ops: conv1d requires non-nil input/kernel")
	}

	inShape := input.Shape()
	kShape := kernel.Shape()

	if len(inShape) != 3 || len(kShape) != 3 {
		return conv1DParams{}, nil, nil, fmt.Errorf("ops: conv1d expects input/kernel rank 3, got %v and %v", inShape, kShape)
	}

	p := conv1DParams{
		batch:       inShape[0],
		inChannels:  inShape[1],
		length:      inShape[2],
		outChannels: kShape[0],
		kernelSize:  kShape[2],
	}

	if p.kernelSize%2 == 0 {
		return conv1DParams{}, nil, nil, fmt.Errorf("ops: same-length conv1d needs an odd kernel size, got %d", p.kernelSize)
	}

	if kShape[1] != p.inChannels {
		return conv1DParams{}, nil, nil, fmt.Errorf("ops: conv1d kernel in_channels %d, input has %d", kShape[1], p.inChannels)
	}

	if bias != nil {
		bShape := bias.Shape()
		if len(bShape) != 1 || bShape[0] != p.outChannels {
			return conv1DParams{}, nil, nil, fmt.Errorf("ops: conv1d bias shape %v does not match out_channels %d", bShape, p.outChannels)
		}
	}

	p.padding = (p.kernelSize - 1) / 2

	out, err := tensor.Zeros([]int64{p.batch, p.outChannels, p.length})
	if err != nil {
		return conv1DParams{}, nil, nil, err
	}

	var biasData []float32
	if bias != nil {
		biasData = bias.RawData()
	}

	return p, out, biasData, nil
}

// conv1DIm2col rearranges the convolution into a GEMM over a patch matrix
// of shape [length, inChannels*kernelSize]:
//
//	out[oc, ox] = dot(kernel[oc, :], imcol[ox, :]) + bias[oc]
func conv1DIm2col(inputData, kernelData, biasData, outData []float32, p conv1DParams) {
	patchLen := int(p.inChannels * p.kernelSize)
	imcol := make([]float32, int(p.length)*patchLen)

	kSizeI := int(p.kernelSize)
	outChI := int(p.outChannels)
	lenI := int(p.length)

	for b := range p.batch {
		if b > 0 {
			clear(imcol)
		}

		for ic := range p.inChannels {
			inBase := int(b*p.inChannels+ic) * lenI
			for kx := range p.kernelSize {
				col := int(ic)*kSizeI + int(kx)
				for ox := range p.length {
					inPos := ox - p.padding + kx
					if inPos >= 0 && inPos < p.length {
						imcol[int(ox)*patchLen+col] = inputData[inBase+int(inPos)]
					}
				}
			}
		}

		outBase := int(b) * outChI * lenI
		tensor.ParallelFor(outChI, ConvWorkers(), func(ocLo, ocHi int) {
			for oc := ocLo; oc < ocHi; oc++ {
				kernelRow := kernelData[oc*patchLen : (oc+1)*patchLen]

				biasVal := float32(0)
				if biasData != nil {
					biasVal = biasData[oc]
				}

				outOC := outData[outBase+oc*lenI : outBase+(oc+1)*lenI]
				for ox := range lenI {
					outOC[ox] = tensor.DotProduct(kernelRow, imcol[ox*patchLen:(ox+1)*patchLen]) + biasVal
				}
			}
		})
	}
}
