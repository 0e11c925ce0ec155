package main

import (
	"errors"
	"fmt"

	"github.com/example/go-pitchpred/internal/pitch"
	"github.com/example/go-pitchpred/internal/runtime/tensor"
	"github.com/example/go-pitchpred/internal/safetensors"
	"github.com/spf13/cobra"
)

func newLossCmd() *cobra.Command {
	var (
		predPath   string
		targetPath string
		predName   string
		targetName string
		lengths    []int
		logDomain  bool
		offset     float64
		f0Targets  bool
		gradOutput string
	)

	cmd := &cobra.Command{
		Use:   "loss",
		Short: "Compute the masked MSE between predictor outputs and targets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if predPath == "" || targetPath == "" {
				return errors.New("--pred and --target are required")
			}

			pred, err := readBatch(predPath, predName)
			if err != nil {
				return err
			}

			target, err := readBatch(targetPath, targetName)
			if err != nil {
				return err
			}

			if f0Targets {
				domain, err := pitch.ParseDomain(cfg.Predictor.Domain)
				if err != nil {
					return err
				}

				values, err := pitch.Targets(target.Float64s(), domain)
				if err != nil {
					return err
				}

				target, err = tensor.FromFloat64(values, target.Shape())
				if err != nil {
					return err
				}
			}

			var mask *tensor.Mask
			if len(lengths) > 0 {
				mask, err = tensor.MaskFromLengths(lengths, int(pred.Shape()[1]))
				if err != nil {
					return err
				}
			}

			l := pitch.Loss{LogDomain: logDomain, Offset: offset}

			value, err := l.Compute(pred, target, mask)
			if err != nil {
				return err
			}

			if gradOutput != "" {
				grad, err := l.Gradient(pred, target, mask)
				if err != nil {
					return err
				}

				err = safetensors.WriteFile(gradOutput, []safetensors.Tensor{{Name: "grad", Shape: grad.Shape(), Data: grad.RawData()}})
				if err != nil {
					return err
				}
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "loss: %.6f\n", value)

			return nil
		},
	}

	cmd.Flags().StringVar(&predPath, "pred", "", "Predictions .safetensors ([B, T] or [T])")
	cmd.Flags().StringVar(&targetPath, "target", "", "Targets .safetensors ([B, T] or [T])")
	cmd.Flags().StringVar(&predName, "pred-tensor", "", "Prediction tensor name (defaults to the first tensor)")
	cmd.Flags().StringVar(&targetName, "target-tensor", "", "Target tensor name (defaults to the first tensor)")
	cmd.Flags().IntSliceVar(&lengths, "lengths", nil, "Valid frames per batch row; omitted means all frames count")
	cmd.Flags().BoolVar(&logDomain, "log-domain", false, "Compare log(x + offset) instead of x")
	cmd.Flags().Float64Var(&offset, "offset", pitch.DefaultLogOffset, "Offset added before the log with --log-domain")
	cmd.Flags().BoolVar(&f0Targets, "f0-targets", false, "Targets are f0 in Hz; convert them to the predictor domain first")
	cmd.Flags().StringVar(&gradOutput, "grad-output", "", "Optional .safetensors file for d(loss)/d(pred)")

	return cmd
}

// readBatch loads a [B, T] tensor; rank-1 input becomes a single row.
func readBatch(path, name string) (*tensor.Tensor, error) {
	x, err := readTensor(path, name)
	if err != nil {
		return nil, err
	}

	switch x.Rank() {
	case 1:
		return x.Reshape([]int64{1, x.Shape()[0]})
	case 2:
		return x, nil
	default:
		return nil, fmt.Errorf("%s: %w: got shape %v, want [B T] or [T]", path, pitch.ErrShapeMismatch, x.Shape())
	}
}
