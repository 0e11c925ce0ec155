package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/go-pitchpred/internal/pitch"
	"github.com/example/go-pitchpred/internal/safetensors"
	"github.com/spf13/cobra"
)

func newPredictCmd() *cobra.Command {
	var (
		features   string
		tensorName string
		output     string
		alpha      float64
		printBins  bool
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Run the pitch predictor over hidden features and bucketize the output",
		Long: "Predict reads a [B, T, D] (or [T, D]) float tensor from a safetensors file, runs the\n" +
			"configured sequence predictor in inference mode and writes the [B, T, n_bins] one-hot\n" +
			"tensor plus the [B, T] bin indices.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if features == "" {
				return errors.New("--features is required")
			}

			xs, err := readTensor(features, tensorName)
			if err != nil {
				return err
			}

			if xs.Rank() == 2 {
				xs, err = xs.Reshape(append([]int64{1}, xs.Shape()...))
				if err != nil {
					return err
				}
			}

			p, closePredictor, err := openPredictor(cfg, activeCompute)
			if err != nil {
				return err
			}
			defer closePredictor()

			if !cmd.Flags().Changed("alpha") {
				alpha = cfg.Predictor.Alpha
			}

			bins, err := p.InferenceBins(cmd.Context(), xs, float32(alpha))
			if err != nil {
				return err
			}

			onehot, err := pitch.OneHotBatch(bins, p.Table().NBins())
			if err != nil {
				return err
			}

			frames := int64(0)
			if len(bins) > 0 {
				frames = int64(len(bins[0]))
			}

			if output != "" {
				err := safetensors.Write(output, safetensors.File{
					Tensors: []safetensors.Tensor{{Name: "onehot", Shape: onehot.Shape(), Data: onehot.RawData()}},
					Float64: []safetensors.Tensor64{{
						Name:  "bins",
						Shape: []int64{int64(len(bins)), frames},
						Data:  intsToFloat64(bins...),
					}},
					Metadata: p.Metadata(),
				})
				if err != nil {
					return err
				}

				slog.Info("wrote pitch predictions", "output", output, "batch", len(bins), "frames", frames)
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "predicted %d x %d frames into %d bins\n", len(bins), frames, p.Table().NBins())

			if printBins {
				for _, row := range bins {
					_, _ = fmt.Fprintln(out, joinInts(row))
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&features, "features", "", "Input .safetensors with hidden features")
	cmd.Flags().StringVar(&tensorName, "tensor", "", "Feature tensor name (defaults to the first tensor)")
	cmd.Flags().StringVar(&output, "output", "", "Output .safetensors file (onehot, bins)")
	cmd.Flags().Float64Var(&alpha, "alpha", 1, "Inference scale factor (defaults to predictor.alpha)")
	cmd.Flags().BoolVar(&printBins, "print", false, "Print bin indices to stdout")

	return cmd
}

