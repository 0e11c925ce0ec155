package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/example/go-pitchpred/internal/audio"
	"github.com/example/go-pitchpred/internal/f0"
	"github.com/example/go-pitchpred/internal/pitch"
	"github.com/example/go-pitchpred/internal/runtime/tensor"
	"github.com/example/go-pitchpred/internal/safetensors"
	"github.com/spf13/cobra"
)

func newQuantizeCmd() *cobra.Command {
	var (
		input     string
		output    string
		inference bool
		printBins bool
	)

	cmd := &cobra.Command{
		Use:   "quantize",
		Short: "Quantize f0 (from WAV, .npy or .safetensors) into one-hot pitch bins",
		Long: "Quantize reads a WAV file (f0 is extracted first) or a stored f0 contour and writes\n" +
			"the one-hot [frames, n_bins] tensor, the bin indices and the source values to a\n" +
			"safetensors file. With --inference the stored values are treated as log-domain\n" +
			"predictor outputs and are not floored or logged again.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if input == "" {
				return errors.New("--input is required")
			}

			q, err := newQuantizer(cfg)
			if err != nil {
				return err
			}

			onehot, values, err := quantizeInput(cmd, q, input, inference)
			if err != nil {
				return err
			}

			bins, err := pitch.Argmax(onehot)
			if err != nil {
				return err
			}

			if output != "" {
				if err := writeQuantized(output, onehot, bins, values, q.Table(), inference); err != nil {
					return err
				}

				slog.Info("quantized f0", "input", input, "output", output, "frames", len(bins))
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "%d frames into %d bins\n", len(bins), q.Table().NBins())

			if printBins {
				_, _ = fmt.Fprintln(out, joinInts(bins))
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Input WAV, .npy or .safetensors f0 file")
	cmd.Flags().StringVar(&output, "output", "", "Output .safetensors file (onehot, bins, values)")
	cmd.Flags().BoolVar(&inference, "inference", false, "Treat stored values as log-domain predictions")
	cmd.Flags().BoolVar(&printBins, "print", false, "Print bin indices to stdout")

	return cmd
}

func quantizeInput(cmd *cobra.Command, q *pitch.Quantizer, input string, inference bool) (*tensor.Tensor, []float64, error) {
	if strings.EqualFold(filepath.Ext(input), ".wav") {
		if inference {
			return nil, nil, errors.New("--inference needs stored predictor values, not a WAV file")
		}

		clip, err := audio.ReadWAVFile(input)
		if err != nil {
			return nil, nil, err
		}

		return q.ExtractAndQuantize(cmd.Context(), clip.Samples, clip.SampleRate)
	}

	if !inference {
		return q.LoadAndQuantize(input)
	}

	values, err := f0.Load(input)
	if err != nil {
		return nil, nil, err
	}

	onehot, err := q.QuantizeForInference(values)

	return onehot, values, err
}

func writeQuantized(path string, onehot *tensor.Tensor, bins []int, values []float64, table *pitch.BinTable, inference bool) error {
	valuesName := "f0"
	if inference {
		valuesName = "values"
	}

	frames := int64(len(bins))
	cfg := table.Config()

	return safetensors.Write(path, safetensors.File{
		Tensors: []safetensors.Tensor{{Name: "onehot", Shape: onehot.Shape(), Data: onehot.RawData()}},
		Float64: []safetensors.Tensor64{
			{Name: "bins", Shape: []int64{frames}, Data: intsToFloat64(bins)},
			{Name: valuesName, Shape: []int64{int64(len(values))}, Data: values},
		},
		Metadata: map[string]string{
			pitch.MetaPMin:  fmt.Sprint(cfg.PMin),
			pitch.MetaPMax:  fmt.Sprint(cfg.PMax),
			pitch.MetaNBins: fmt.Sprint(cfg.NBins),
		},
	})
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprint(x)
	}

	return strings.Join(parts, " ")
}
