package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/go-pitchpred/internal/audio"
	"github.com/example/go-pitchpred/internal/f0"
	"github.com/spf13/cobra"
)

func newExtractCmd() *cobra.Command {
	var (
		input  string
		output string
	)

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract an f0 contour from a WAV file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if input == "" || output == "" {
				return errors.New("--input and --output are required")
			}

			clip, err := audio.ReadWAVFile(input)
			if err != nil {
				return err
			}

			ext, err := newExtractor(cfg.F0)
			if err != nil {
				return err
			}

			contour, err := ext.Extract(cmd.Context(), clip.Samples, clip.SampleRate)
			if err != nil {
				return fmt.Errorf("extract %s: %w", input, err)
			}

			if err := f0.Save(output, contour); err != nil {
				return err
			}

			voiced := 0
			for _, v := range contour {
				if v > 0 {
					voiced++
				}
			}

			slog.Info("extracted f0", "input", input, "frames", len(contour), "voiced", voiced, "sample_rate", clip.SampleRate)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d frames (%d voiced) to %s\n", len(contour), voiced, output)

			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Input WAV file")
	cmd.Flags().StringVar(&output, "output", "", "Output f0 file (.npy or .safetensors)")

	return cmd
}
