// Package doctor provides environment preflight checks for pitchpred.
package doctor

import (
	"fmt"
	"io"
	"os"

	"github.com/example/go-pitchpred/internal/config"
	"github.com/example/go-pitchpred/internal/onnx"
	"github.com/example/go-pitchpred/internal/pitch"
	"github.com/example/go-pitchpred/internal/safetensors"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// RuntimeFunc locates the ONNX Runtime shared library.
type RuntimeFunc func() (onnx.RuntimeInfo, error)

// MetadataFunc reads the string metadata of a checkpoint.
type MetadataFunc func(path string) (map[string]string, error)

// Config holds the settings under test and injectable probes.
type Config struct {
	Pitch   config.PitchConfig
	Domain  pitch.Domain
	Backend string
	// Checkpoint is the native safetensors checkpoint. Empty skips the check.
	Checkpoint string
	// ONNXModel is the exported predictor graph, checked for the onnx backend.
	ONNXModel string
	// Runtime defaults to onnx.DetectRuntime with a zero RuntimeConfig.
	Runtime RuntimeFunc
	// Metadata defaults to reading the safetensors header.
	Metadata MetadataFunc
}

// FromConfig builds a doctor Config from the loaded application config.
func FromConfig(cfg config.Config) Config {
	return Config{
		Pitch:      cfg.Pitch,
		Domain:     pitch.Domain(cfg.Predictor.Domain),
		Backend:    cfg.Predictor.Backend,
		Checkpoint: cfg.Predictor.Checkpoint,
		ONNXModel:  cfg.Predictor.ONNXPath,
		Runtime: func() (onnx.RuntimeInfo, error) {
			return onnx.DetectRuntime(cfg.Runtime)
		},
	}
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(w io.Writer, check string, err error) {
	r.failures = append(r.failures, fmt.Sprintf("%s: %v", check, err))
	fmt.Fprintf(w, "%s %s: %v\n", FailMark, check, err)
}

func pass(w io.Writer, check, detail string) {
	fmt.Fprintf(w, "%s %s: %s\n", PassMark, check, detail)
}

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	table, err := binTable(cfg.Pitch)
	if err != nil {
		res.fail(w, "pitch bins", err)
	} else {
		pass(w, "pitch bins", fmt.Sprintf("%d log bins over [%g, %g] Hz, %s", table.NBins(), cfg.Pitch.PMin, cfg.Pitch.PMax, table.Config().Policy))
	}

	domain, err := pitch.ParseDomain(string(cfg.Domain))
	if err != nil {
		res.fail(w, "predictor domain", err)
	}

	backend, err := config.NormalizeBackend(cfg.Backend)
	if err != nil {
		res.fail(w, "backend", err)
		return res
	}

	pass(w, "backend", backend)

	switch backend {
	case config.BackendNative:
		res.checkCheckpoint(cfg, table, domain, w)
	case config.BackendONNX:
		res.checkONNX(cfg, w)
	}

	return res
}

func (r *Result) checkCheckpoint(cfg Config, table *pitch.BinTable, domain pitch.Domain, w io.Writer) {
	if cfg.Checkpoint == "" {
		pass(w, "checkpoint", "skipped")
		return
	}

	if _, err := os.Stat(cfg.Checkpoint); err != nil {
		r.fail(w, "checkpoint", err)
		return
	}

	if table == nil || domain == "" {
		pass(w, "checkpoint", cfg.Checkpoint+" (metadata not verified)")
		return
	}

	read := cfg.Metadata
	if read == nil {
		read = readMetadata
	}

	meta, err := read(cfg.Checkpoint)
	if err != nil {
		r.fail(w, "checkpoint", err)
		return
	}

	if err := pitch.VerifyMetadata(meta, table, domain); err != nil {
		r.fail(w, "checkpoint bins", err)
		return
	}

	pass(w, "checkpoint", cfg.Checkpoint)
}

func (r *Result) checkONNX(cfg Config, w io.Writer) {
	detect := cfg.Runtime
	if detect == nil {
		detect = func() (onnx.RuntimeInfo, error) { return onnx.DetectRuntime(config.RuntimeConfig{}) }
	}

	info, err := detect()
	if err != nil {
		r.fail(w, "onnx runtime", err)
	} else {
		detail := info.LibraryPath
		if info.Version != "" {
			detail += " (" + info.Version + ")"
		}

		pass(w, "onnx runtime", detail)
	}

	if cfg.ONNXModel == "" {
		r.fail(w, "onnx model", fmt.Errorf("no model path configured"))
		return
	}

	if _, err := os.Stat(cfg.ONNXModel); err != nil {
		r.fail(w, "onnx model", err)
		return
	}

	pass(w, "onnx model", cfg.ONNXModel)
}

func binTable(pc config.PitchConfig) (*pitch.BinTable, error) {
	policy, err := pitch.ParseRangePolicy(pc.RangePolicy)
	if err != nil {
		return nil, err
	}

	return pitch.NewBinTable(pitch.Config{PMin: pc.PMin, PMax: pc.PMax, NBins: pc.NBins, Policy: policy})
}

func readMetadata(path string) (map[string]string, error) {
	store, err := safetensors.OpenStore(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return store.Metadata(), nil
}
