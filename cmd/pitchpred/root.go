package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/example/go-pitchpred/internal/compute"
	"github.com/example/go-pitchpred/internal/config"
	"github.com/spf13/cobra"
)

var (
	cfgFile       string
	activeCfg     config.Config
	activeCompute *compute.Context
)

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "pitchpred",
		Short:         "Pitch quantization and pitch predictor tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}

			setupLogger(loaded.LogLevel)

			if err := loaded.Validate(); err != nil {
				return err
			}

			cc, err := compute.New(loaded)
			if err != nil {
				return err
			}

			activeCfg = loaded
			activeCompute = cc

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newExtractCmd())
	cmd.AddCommand(newQuantizeCmd())
	cmd.AddCommand(newBinsCmd())
	cmd.AddCommand(newInitModelCmd())
	cmd.AddCommand(newPredictCmd())
	cmd.AddCommand(newLossCmd())
	cmd.AddCommand(newBenchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDoctorCmd())

	return cmd
}

// setupLogger configures the process-wide slog default logger.
func setupLogger(levelStr string) {
	lvl, err := config.ParseLogLevel(levelStr)
	if err != nil {
		lvl = slog.LevelInfo
	}

	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}

func requireConfig() (config.Config, error) {
	if activeCfg.Pitch.NBins == 0 {
		return config.Config{}, errors.New("configuration not loaded")
	}

	return activeCfg, nil
}
