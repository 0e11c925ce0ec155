package main

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/example/go-pitchpred/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var noPredictor bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve pitch quantization and prediction over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			q, err := newQuantizer(cfg)
			if err != nil {
				return err
			}

			var pred server.Predictor

			if !noPredictor {
				p, closePredictor, err := openPredictor(cfg, activeCompute)
				if err != nil {
					return err
				}
				defer closePredictor()

				pred = p
			} else {
				slog.Info("predictor disabled, /predict will answer 503")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return server.New(cfg.Server, q, pred).Start(ctx)
		},
	}

	cmd.Flags().BoolVar(&noPredictor, "no-predictor", false, "Serve /quantize and /bins only, without loading a predictor")

	return cmd
}
