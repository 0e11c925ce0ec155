package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

// fakeBinder wraps a pflag.FlagSet to satisfy the flagBinder interface.
type fakeBinder struct {
	fs *pflag.FlagSet
}

func (f *fakeBinder) Flags() *pflag.FlagSet { return f.fs }

func newFlagBinder(t *testing.T, defaults Config, args ...string) *fakeBinder {
	t.Helper()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)

	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse(%v): %v", args, err)
	}

	return &fakeBinder{fs: fs}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Pitch.PMin != 80 || cfg.Pitch.PMax != 400 || cfg.Pitch.NBins != 256 {
		t.Errorf("Pitch = %+v; want 80/400/256", cfg.Pitch)
	}

	if cfg.Pitch.RangePolicy != "clamp" {
		t.Errorf("RangePolicy = %q; want clamp", cfg.Pitch.RangePolicy)
	}

	if cfg.F0.FramePeriodMs != 11.6 {
		t.Errorf("F0.FramePeriodMs = %v; want 11.6", cfg.F0.FramePeriodMs)
	}

	if cfg.Predictor.Backend != BackendNative {
		t.Errorf("Predictor.Backend = %q; want %q", cfg.Predictor.Backend, BackendNative)
	}

	if cfg.Predictor.Layers != 2 || cfg.Predictor.Channels != 384 || cfg.Predictor.KernelSize != 3 {
		t.Errorf("Predictor arch = %d/%d/%d; want 2/384/3", cfg.Predictor.Layers, cfg.Predictor.Channels, cfg.Predictor.KernelSize)
	}

	if cfg.Server.ListenAddr == "" || cfg.Server.Workers != 2 || cfg.Server.RequestTimeout != 30 {
		t.Errorf("Server = %+v", cfg.Server)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q; want info", cfg.LogLevel)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestNormalizeBackend(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"native", "native", BackendNative, false},
		{"onnx", "onnx", BackendONNX, false},
		{"uppercase", "ONNX", BackendONNX, false},
		{"spaces", "  native  ", BackendNative, false},
		{"legacy safetensors name", "native-safetensors", BackendNative, false},
		{"legacy onnx name", "native-onnx", BackendONNX, false},
		{"empty defaults to native", "", BackendNative, false},
		{"invalid", "cuda", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeBackend(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("NormalizeBackend(%q) = %q, nil; want error", tt.input, got)
				}

				return
			}

			if err != nil {
				t.Fatalf("NormalizeBackend(%q) unexpected error: %v", tt.input, err)
			}

			if got != tt.want {
				t.Errorf("NormalizeBackend(%q) = %q; want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) err = %v; wantErr %v", tt.in, err, tt.wantErr)
		}

		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

func TestRegisterFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, DefaultConfig())

	checks := []struct {
		flag string
		want string
	}{
		{"pitch-p-min", "80"},
		{"pitch-n-bins", "256"},
		{"predictor-backend", "native"},
		{"predictor-domain", "log"},
		{"log-level", "info"},
	}

	for _, c := range checks {
		f := fs.Lookup(c.flag)
		if f == nil {
			t.Errorf("flag %q not registered", c.flag)
			continue
		}

		if f.DefValue != c.want {
			t.Errorf("flag %q default = %q; want %q", c.flag, f.DefValue, c.want)
		}
	}

	for key, name := range flagKeys {
		if fs.Lookup(name) == nil {
			t.Errorf("config key %q bound to unregistered flag %q", key, name)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{Cmd: newFlagBinder(t, defaults), Defaults: defaults})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Pitch != defaults.Pitch {
		t.Errorf("Pitch = %+v; want %+v", cfg.Pitch, defaults.Pitch)
	}

	if cfg.Predictor != defaults.Predictor {
		t.Errorf("Predictor = %+v; want %+v", cfg.Predictor, defaults.Predictor)
	}
}

func TestLoad_FlagOverride(t *testing.T) {
	defaults := DefaultConfig()
	binder := newFlagBinder(t, defaults,
		"--pitch-p-min=60",
		"--predictor-backend=onnx",
		"--runtime-threads=8",
		"--ort-lib=/opt/ort/libonnxruntime.so",
		"--server-workers=4",
		"--log-level=debug",
	)

	cfg, err := Load(LoadOptions{Cmd: binder, Defaults: defaults})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Pitch.PMin != 60 {
		t.Errorf("Pitch.PMin = %v; want 60", cfg.Pitch.PMin)
	}

	if cfg.Predictor.Backend != "onnx" {
		t.Errorf("Predictor.Backend = %q; want onnx", cfg.Predictor.Backend)
	}

	if cfg.Runtime.Threads != 8 {
		t.Errorf("Runtime.Threads = %d; want 8", cfg.Runtime.Threads)
	}

	if cfg.Runtime.ORTLibraryPath != "/opt/ort/libonnxruntime.so" {
		t.Errorf("Runtime.ORTLibraryPath = %q", cfg.Runtime.ORTLibraryPath)
	}

	if cfg.Server.Workers != 4 {
		t.Errorf("Server.Workers = %d; want 4", cfg.Server.Workers)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q; want debug", cfg.LogLevel)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PITCHPRED_LOG_LEVEL", "warn")
	t.Setenv("PITCHPRED_PITCH_N_BINS", "128")
	t.Setenv("ORT_LIBRARY_PATH", "/tmp/libonnxruntime.so")

	cfg, err := Load(LoadOptions{Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q; want warn", cfg.LogLevel)
	}

	if cfg.Pitch.NBins != 128 {
		t.Errorf("Pitch.NBins = %d; want 128", cfg.Pitch.NBins)
	}

	if cfg.Runtime.ORTLibraryPath != "/tmp/libonnxruntime.so" {
		t.Errorf("Runtime.ORTLibraryPath = %q", cfg.Runtime.ORTLibraryPath)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "pitchpred.yaml")

	content := `
log_level: error
pitch:
  p_min: 65
  range_policy: strict
predictor:
  domain: linear
`
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	defaults := DefaultConfig()
	binder := newFlagBinder(t, defaults, "--pitch-p-max=500")

	cfg, err := Load(LoadOptions{Cmd: binder, ConfigFile: cfgFile, Defaults: defaults})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q; want error", cfg.LogLevel)
	}

	if cfg.Pitch.PMin != 65 || cfg.Pitch.PMax != 500 {
		t.Errorf("Pitch bounds = %v/%v; want 65/500", cfg.Pitch.PMin, cfg.Pitch.PMax)
	}

	if cfg.Pitch.RangePolicy != "strict" {
		t.Errorf("RangePolicy = %q; want strict", cfg.Pitch.RangePolicy)
	}

	if cfg.Predictor.Domain != "linear" {
		t.Errorf("Predictor.Domain = %q; want linear", cfg.Predictor.Domain)
	}

	if cfg.Pitch.NBins != 256 {
		t.Errorf("Pitch.NBins = %d; want default 256", cfg.Pitch.NBins)
	}
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(cfgFile, []byte(":\t:bad yaml:::"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Load(LoadOptions{ConfigFile: cfgFile, Defaults: DefaultConfig()}); err == nil {
		t.Error("Load() = nil; want error for invalid config file")
	}
}

func TestLoad_MissingExplicitConfigFile(t *testing.T) {
	_, err := Load(LoadOptions{ConfigFile: "/nonexistent/path/pitchpred.yaml", Defaults: DefaultConfig()})
	if err == nil {
		t.Error("Load() = nil; want error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Config)
	}{
		{"zero p_min", func(c *Config) { c.Pitch.PMin = 0 }},
		{"inverted bounds", func(c *Config) { c.Pitch.PMin, c.Pitch.PMax = 400, 80 }},
		{"one bin", func(c *Config) { c.Pitch.NBins = 1 }},
		{"negative hop", func(c *Config) { c.F0.HopLength = -1 }},
		{"hop without rate", func(c *Config) { c.F0.HopLength, c.F0.SampleRate = 256, 0 }},
		{"bad backend", func(c *Config) { c.Predictor.Backend = "tpu" }},
		{"negative ngpu", func(c *Config) { c.Runtime.NGPU = -1 }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"negative server workers", func(c *Config) { c.Server.Workers = -1 }},
		{"zero max frames", func(c *Config) { c.Server.MaxFrames = 0 }},
		{"zero request timeout", func(c *Config) { c.Server.RequestTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mod(&cfg)

			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil; want error")
			}
		})
	}
}
