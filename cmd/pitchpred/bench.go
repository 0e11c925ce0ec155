package main

import (
	"context"
	"errors"
	"math/rand/v2"

	"github.com/example/go-pitchpred/internal/bench"
	"github.com/example/go-pitchpred/internal/pitch"
	"github.com/example/go-pitchpred/internal/runtime/tensor"
	"github.com/example/go-pitchpred/internal/variance"
	"github.com/spf13/cobra"
)

func newBenchCmd() *cobra.Command {
	var (
		runs         int
		warmup       int
		frames       int
		batch        int
		format       string
		rtfThreshold float64
		randomModel  bool
		seed         uint64
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark pitch predictor inference latency and realtime factor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if runs < 1 {
				return errors.New("--runs must be at least 1")
			}

			if frames < 1 || batch < 1 {
				return errors.New("--frames and --batch must be at least 1")
			}

			if format != "table" && format != "json" {
				return errors.New("--format must be 'table' or 'json'")
			}

			var p *pitch.Predictor

			if randomModel {
				seq, err := variance.Init(varianceConfig(cfg.Predictor), int64(seed))
				if err != nil {
					return err
				}

				p, err = newPredictor(cfg, seq)
				if err != nil {
					return err
				}
			} else {
				var closePredictor func()

				p, closePredictor, err = openPredictor(cfg, activeCompute)
				if err != nil {
					return err
				}
				defer closePredictor()
			}

			xs, err := randomFeatures(batch, frames, cfg.Predictor.InputDim, seed)
			if err != nil {
				return err
			}

			period, err := framePeriod(cfg.F0)
			if err != nil {
				return err
			}

			alpha := float32(cfg.Predictor.Alpha)
			results, err := bench.Run(cmd.Context(), func(ctx context.Context) (int, error) {
				bins, err := p.InferenceBins(ctx, xs, alpha)
				if err != nil {
					return 0, err
				}

				return len(bins) * frames, nil
			}, runs, warmup, period)
			if err != nil {
				return err
			}

			stats := bench.ComputeStats(bench.Durations(results))
			out := cmd.OutOrStdout()

			if format == "json" {
				if err := bench.FormatJSON(results, stats, out); err != nil {
					return err
				}
			} else {
				bench.FormatTable(results, stats, out)
			}

			return bench.CheckRTFThreshold(bench.MeanRTF(results), rtfThreshold)
		},
	}

	cmd.Flags().IntVar(&runs, "runs", 5, "Number of measured runs")
	cmd.Flags().IntVar(&warmup, "warmup", 1, "Unmeasured warmup runs")
	cmd.Flags().IntVar(&frames, "frames", 500, "Frames per batch row")
	cmd.Flags().IntVar(&batch, "batch", 1, "Batch size")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&rtfThreshold, "rtf-threshold", 0, "Exit non-zero if mean RTF exceeds this value (0 = disabled)")
	cmd.Flags().BoolVar(&randomModel, "random-model", false, "Benchmark a randomly initialised native model instead of loading one")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "Seed for random features and weights")

	return cmd
}

func randomFeatures(batch, frames, dim int, seed uint64) (*tensor.Tensor, error) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	data := make([]float32, batch*frames*dim)
	for i := range data {
		data[i] = float32(rng.NormFloat64())
	}

	return tensor.New(data, []int64{int64(batch), int64(frames), int64(dim)})
}
