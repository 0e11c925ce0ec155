package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/example/go-pitchpred/internal/config"
)

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())

	return out.String(), err
}

func TestNewRootCmd_HasExpectedSubcommands(t *testing.T) {
	root := NewRootCmd()

	want := []string{"extract", "quantize", "bins", "init-model", "predict", "loss", "bench", "serve", "doctor"}
	for _, name := range want {
		found := false

		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}

		if !found {
			t.Errorf("expected subcommand %q not found in root", name)
		}
	}
}

func TestNewRootCmd_HasPersistentConfigFlag(t *testing.T) {
	root := NewRootCmd()
	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("expected --config persistent flag to be registered")
	}

	if root.PersistentFlags().Lookup("pitch-n-bins") == nil {
		t.Error("expected config flags to be registered as persistent flags")
	}
}

func TestSetupLogger_DoesNotPanic(_ *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "not-a-level"} {
		setupLogger(level)
	}
}

func TestRequireConfig(t *testing.T) {
	orig := activeCfg

	t.Cleanup(func() { activeCfg = orig })

	activeCfg = config.Config{}
	if _, err := requireConfig(); err == nil {
		t.Fatal("expected error when config is not loaded")
	}

	activeCfg = config.DefaultConfig()

	got, err := requireConfig()
	if err != nil {
		t.Fatalf("requireConfig: %v", err)
	}

	if got.Pitch.NBins != 256 {
		t.Fatalf("NBins = %d, want 256", got.Pitch.NBins)
	}
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"p_min above p_max", []string{"bins", "--pitch-p-min", "500"}},
		{"single bin", []string{"bins", "--pitch-n-bins", "1"}},
		{"unknown backend", []string{"bins", "--predictor-backend", "tpu"}},
		{"bad log level", []string{"bins", "--log-level", "loud"}},
		{"negative threads", []string{"bins", "--runtime-threads", "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := runCLI(t, tt.args...); err == nil {
				t.Fatalf("expected error for %v", tt.args)
			}
		})
	}
}

func TestRootConfiguresCompute(t *testing.T) {
	if _, err := runCLI(t, "bins", "--runtime-threads", "2", "--runtime-ngpu", "1"); err != nil {
		t.Fatalf("bins: %v", err)
	}

	if activeCompute == nil || activeCompute.Threads != 2 || activeCompute.Device != "cpu" {
		t.Fatalf("compute context = %+v", activeCompute)
	}
}
