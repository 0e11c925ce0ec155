package main

import (
	"errors"
	"fmt"

	"github.com/example/go-pitchpred/internal/variance"
	"github.com/spf13/cobra"
)

func newInitModelCmd() *cobra.Command {
	var (
		output string
		seed   int64
	)

	cmd := &cobra.Command{
		Use:   "init-model",
		Short: "Write a randomly initialised native predictor checkpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if output == "" {
				output = cfg.Predictor.Checkpoint
			}

			if output == "" {
				return errors.New("--output or predictor.checkpoint is required")
			}

			vcfg := varianceConfig(cfg.Predictor)

			seq, err := variance.Init(vcfg, seed)
			if err != nil {
				return err
			}

			p, err := newPredictor(cfg, seq)
			if err != nil {
				return err
			}

			if err := p.Save(output); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d-layer predictor (idim %d, %d channels, kernel %d) to %s\n",
				vcfg.Layers, vcfg.InputDim, vcfg.Channels, vcfg.KernelSize, output)

			return nil
		},
	}

	cmd.Flags().StringVar(&output, "output", "", "Checkpoint path (defaults to predictor.checkpoint)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Weight initialisation seed")

	return cmd
}
