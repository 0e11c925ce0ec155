package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Pitch     PitchConfig     `mapstructure:"pitch"`
	F0        F0Config        `mapstructure:"f0"`
	Predictor PredictorConfig `mapstructure:"predictor"`
	Runtime   RuntimeConfig   `mapstructure:"runtime"`
	Server    ServerConfig    `mapstructure:"server"`
	LogLevel  string          `mapstructure:"log_level"`
}

// PitchConfig describes the shared bin table.
type PitchConfig struct {
	PMin        float64 `mapstructure:"p_min"`
	PMax        float64 `mapstructure:"p_max"`
	NBins       int     `mapstructure:"n_bins"`
	RangePolicy string  `mapstructure:"range_policy"`
}

// F0Config configures the DIO extractor. When HopLength is set, the frame
// period is derived from it and SampleRate instead of FramePeriodMs.
type F0Config struct {
	FramePeriodMs float64 `mapstructure:"frame_period_ms"`
	HopLength     int     `mapstructure:"hop_length"`
	SampleRate    int     `mapstructure:"sample_rate"`
	Floor         float64 `mapstructure:"floor"`
	Ceil          float64 `mapstructure:"ceil"`
	Speed         int     `mapstructure:"speed"`
}

type PredictorConfig struct {
	Backend    string  `mapstructure:"backend"`
	Checkpoint string  `mapstructure:"checkpoint"`
	ONNXPath   string  `mapstructure:"onnx_path"`
	Domain     string  `mapstructure:"domain"`
	InputDim   int     `mapstructure:"idim"`
	Layers     int     `mapstructure:"n_layers"`
	Channels   int     `mapstructure:"n_chans"`
	KernelSize int     `mapstructure:"kernel_size"`
	Dropout    float64 `mapstructure:"dropout"`
	Alpha      float64 `mapstructure:"alpha"`
}

type RuntimeConfig struct {
	Threads        int    `mapstructure:"threads"`
	NGPU           int    `mapstructure:"ngpu"`
	ORTLibraryPath string `mapstructure:"ort_library_path"`
	ORTVersion     string `mapstructure:"ort_version"`
}

type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	Workers    int    `mapstructure:"workers"`
	MaxFrames  int    `mapstructure:"max_frames"`
	// RequestTimeout is in seconds.
	RequestTimeout int `mapstructure:"request_timeout"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Pitch: PitchConfig{
			PMin:        80,
			PMax:        400,
			NBins:       256,
			RangePolicy: "clamp",
		},
		F0: F0Config{
			FramePeriodMs: 11.6,
			HopLength:     0,
			SampleRate:    22050,
			Floor:         71,
			Ceil:          800,
			Speed:         1,
		},
		Predictor: PredictorConfig{
			Backend:    BackendNative,
			Checkpoint: "models/pitch_predictor.safetensors",
			ONNXPath:   "models/pitch_predictor.onnx",
			Domain:     "log",
			InputDim:   384,
			Layers:     2,
			Channels:   384,
			KernelSize: 3,
			Dropout:    0.1,
			Alpha:      1,
		},
		Runtime: RuntimeConfig{
			Threads: 4,
			NGPU:    0,
		},
		Server: ServerConfig{
			ListenAddr:     "127.0.0.1:8090",
			Workers:        2,
			MaxFrames:      20000,
			RequestTimeout: 30,
		},
		LogLevel: "info",
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.Float64("pitch-p-min", defaults.Pitch.PMin, "Lowest pitch bin edge in Hz")
	fs.Float64("pitch-p-max", defaults.Pitch.PMax, "Highest pitch bin edge in Hz")
	fs.Int("pitch-n-bins", defaults.Pitch.NBins, "Number of pitch bins")
	fs.String("pitch-range-policy", defaults.Pitch.RangePolicy, "Out-of-range bin handling (clamp|strict)")
	fs.Float64("f0-frame-period-ms", defaults.F0.FramePeriodMs, "DIO frame period in milliseconds")
	fs.Int("f0-hop-length", defaults.F0.HopLength, "Derive the frame period from this hop (samples at --f0-sample-rate)")
	fs.Int("f0-sample-rate", defaults.F0.SampleRate, "Sample rate the hop length refers to")
	fs.Float64("f0-floor", defaults.F0.Floor, "DIO lower f0 search bound in Hz")
	fs.Float64("f0-ceil", defaults.F0.Ceil, "DIO upper f0 search bound in Hz")
	fs.Int("f0-speed", defaults.F0.Speed, "DIO decimation speed (1-12)")
	fs.String("predictor-backend", defaults.Predictor.Backend, "Sequence predictor backend (native|onnx)")
	fs.String("predictor-checkpoint", defaults.Predictor.Checkpoint, "Native predictor .safetensors checkpoint")
	fs.String("predictor-onnx-path", defaults.Predictor.ONNXPath, "Exported predictor .onnx graph")
	fs.String("predictor-domain", defaults.Predictor.Domain, "Predictor output domain (log|linear)")
	fs.Int("predictor-idim", defaults.Predictor.InputDim, "Hidden feature dimension")
	fs.Int("predictor-n-layers", defaults.Predictor.Layers, "Number of conv layers")
	fs.Int("predictor-n-chans", defaults.Predictor.Channels, "Conv channel count")
	fs.Int("predictor-kernel-size", defaults.Predictor.KernelSize, "Conv kernel size (odd)")
	fs.Float64("predictor-dropout", defaults.Predictor.Dropout, "Dropout rate recorded for training")
	fs.Float64("predictor-alpha", defaults.Predictor.Alpha, "Inference scale factor")
	fs.Int("runtime-threads", defaults.Runtime.Threads, "Worker goroutines for tensor kernels")
	fs.Int("runtime-ngpu", defaults.Runtime.NGPU, "Requested GPU count (native backend runs on CPU)")
	fs.String("runtime-ort-library-path", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library")
	fs.String("ort-lib", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library (alias for --runtime-ort-library-path)")
	fs.String("runtime-ort-version", defaults.Runtime.ORTVersion, "Expected ONNX Runtime version")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address for serve")
	fs.Int("server-workers", defaults.Server.Workers, "Concurrent predictions served (0 = unlimited)")
	fs.Int("server-max-frames", defaults.Server.MaxFrames, "Maximum frames accepted per request")
	fs.Int("server-request-timeout", defaults.Server.RequestTimeout, "Per-request timeout in seconds")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)

	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("PITCHPRED")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)

	if err := v.BindEnv("runtime.ort_library_path", "PITCHPRED_ORT_LIB", "ORT_LIBRARY_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind ort env vars: %w", err)
	}

	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)

		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("pitchpred")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

// Validate checks the settings every command depends on.
func (c Config) Validate() error {
	if c.Pitch.PMin <= 0 || c.Pitch.PMax <= c.Pitch.PMin {
		return fmt.Errorf("pitch: need 0 < p_min < p_max, got %v and %v", c.Pitch.PMin, c.Pitch.PMax)
	}

	if c.Pitch.NBins < 2 {
		return fmt.Errorf("pitch: n_bins must be >= 2, got %d", c.Pitch.NBins)
	}

	if c.F0.HopLength < 0 {
		return fmt.Errorf("f0: hop_length must be >= 0, got %d", c.F0.HopLength)
	}

	if c.F0.HopLength > 0 && c.F0.SampleRate <= 0 {
		return fmt.Errorf("f0: sample_rate must be > 0 when hop_length is set, got %d", c.F0.SampleRate)
	}

	if _, err := NormalizeBackend(c.Predictor.Backend); err != nil {
		return err
	}

	if c.Runtime.Threads < 0 || c.Runtime.NGPU < 0 {
		return fmt.Errorf("runtime: threads and ngpu must be >= 0, got %d and %d", c.Runtime.Threads, c.Runtime.NGPU)
	}

	if c.Server.Workers < 0 || c.Server.MaxFrames < 1 || c.Server.RequestTimeout < 1 {
		return fmt.Errorf("server: need workers >= 0, max_frames >= 1 and request_timeout >= 1, got %d, %d, %d",
			c.Server.Workers, c.Server.MaxFrames, c.Server.RequestTimeout)
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("pitch.p_min", c.Pitch.PMin)
	v.SetDefault("pitch.p_max", c.Pitch.PMax)
	v.SetDefault("pitch.n_bins", c.Pitch.NBins)
	v.SetDefault("pitch.range_policy", c.Pitch.RangePolicy)
	v.SetDefault("f0.frame_period_ms", c.F0.FramePeriodMs)
	v.SetDefault("f0.hop_length", c.F0.HopLength)
	v.SetDefault("f0.sample_rate", c.F0.SampleRate)
	v.SetDefault("f0.floor", c.F0.Floor)
	v.SetDefault("f0.ceil", c.F0.Ceil)
	v.SetDefault("f0.speed", c.F0.Speed)
	v.SetDefault("predictor.backend", c.Predictor.Backend)
	v.SetDefault("predictor.checkpoint", c.Predictor.Checkpoint)
	v.SetDefault("predictor.onnx_path", c.Predictor.ONNXPath)
	v.SetDefault("predictor.domain", c.Predictor.Domain)
	v.SetDefault("predictor.idim", c.Predictor.InputDim)
	v.SetDefault("predictor.n_layers", c.Predictor.Layers)
	v.SetDefault("predictor.n_chans", c.Predictor.Channels)
	v.SetDefault("predictor.kernel_size", c.Predictor.KernelSize)
	v.SetDefault("predictor.dropout", c.Predictor.Dropout)
	v.SetDefault("predictor.alpha", c.Predictor.Alpha)
	v.SetDefault("runtime.threads", c.Runtime.Threads)
	v.SetDefault("runtime.ngpu", c.Runtime.NGPU)
	v.SetDefault("runtime.ort_library_path", c.Runtime.ORTLibraryPath)
	v.SetDefault("runtime.ort_version", c.Runtime.ORTVersion)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.max_frames", c.Server.MaxFrames)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("log_level", c.LogLevel)
}

// flagKeys maps config keys to the flag registered for them.
var flagKeys = map[string]string{
	"pitch.p_min":              "pitch-p-min",
	"pitch.p_max":              "pitch-p-max",
	"pitch.n_bins":             "pitch-n-bins",
	"pitch.range_policy":       "pitch-range-policy",
	"f0.frame_period_ms":       "f0-frame-period-ms",
	"f0.hop_length":            "f0-hop-length",
	"f0.sample_rate":           "f0-sample-rate",
	"f0.floor":                 "f0-floor",
	"f0.ceil":                  "f0-ceil",
	"f0.speed":                 "f0-speed",
	"predictor.backend":        "predictor-backend",
	"predictor.checkpoint":     "predictor-checkpoint",
	"predictor.onnx_path":      "predictor-onnx-path",
	"predictor.domain":         "predictor-domain",
	"predictor.idim":           "predictor-idim",
	"predictor.n_layers":       "predictor-n-layers",
	"predictor.n_chans":        "predictor-n-chans",
	"predictor.kernel_size":    "predictor-kernel-size",
	"predictor.dropout":        "predictor-dropout",
	"predictor.alpha":          "predictor-alpha",
	"runtime.threads":          "runtime-threads",
	"runtime.ngpu":             "runtime-ngpu",
	"runtime.ort_library_path": "runtime-ort-library-path",
	"runtime.ort_version":      "runtime-ort-version",
	"server.listen_addr":       "server-listen-addr",
	"server.workers":           "server-workers",
	"server.max_frames":        "server-max-frames",
	"server.request_timeout":   "server-request-timeout",
	"log_level":                "log-level",
}

// bindFlags binds each registered flag to its nested key so that flags,
// env vars, and config files all address the same setting.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for key, name := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}

		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	if alias := fs.Lookup("ort-lib"); alias != nil && alias.Changed {
		v.Set("runtime.ort_library_path", alias.Value.String())
	}

	return nil
}
