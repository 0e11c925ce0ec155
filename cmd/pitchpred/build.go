package main

import (
	"fmt"
	"log/slog"

	"github.com/example/go-pitchpred/internal/compute"
	"github.com/example/go-pitchpred/internal/config"
	"github.com/example/go-pitchpred/internal/f0"
	"github.com/example/go-pitchpred/internal/onnx"
	"github.com/example/go-pitchpred/internal/pitch"
	"github.com/example/go-pitchpred/internal/runtime/tensor"
	"github.com/example/go-pitchpred/internal/safetensors"
	"github.com/example/go-pitchpred/internal/variance"
)

func binTable(pc config.PitchConfig) (*pitch.BinTable, error) {
	policy, err := pitch.ParseRangePolicy(pc.RangePolicy)
	if err != nil {
		return nil, err
	}

	return pitch.NewBinTable(pitch.Config{PMin: pc.PMin, PMax: pc.PMax, NBins: pc.NBins, Policy: policy})
}

// framePeriod returns the configured frame period, derived from the hop
// length when one is set.
func framePeriod(fc config.F0Config) (float64, error) {
	if fc.HopLength > 0 {
		return f0.FramePeriodForHop(fc.HopLength, fc.SampleRate)
	}

	return fc.FramePeriodMs, nil
}

func newExtractor(fc config.F0Config) (*f0.DIOExtractor, error) {
	period, err := framePeriod(fc)
	if err != nil {
		return nil, err
	}

	return f0.NewDIOExtractor(f0.DIOConfig{
		FramePeriodMs: period,
		F0Floor:       fc.Floor,
		F0Ceil:        fc.Ceil,
		Speed:         fc.Speed,
	})
}

func newQuantizer(cfg config.Config) (*pitch.Quantizer, error) {
	table, err := binTable(cfg.Pitch)
	if err != nil {
		return nil, err
	}

	ext, err := newExtractor(cfg.F0)
	if err != nil {
		return nil, err
	}

	return pitch.NewQuantizer(table, pitch.WithExtractor(ext))
}

func varianceConfig(pc config.PredictorConfig) variance.Config {
	return variance.Config{
		InputDim:   pc.InputDim,
		Layers:     pc.Layers,
		Channels:   pc.Channels,
		KernelSize: pc.KernelSize,
		Dropout:    pc.Dropout,
	}
}

// newPredictor wraps seq with the configured bin table and output domain.
func newPredictor(cfg config.Config, seq pitch.SequencePredictor) (*pitch.Predictor, error) {
	table, err := binTable(cfg.Pitch)
	if err != nil {
		return nil, err
	}

	domain, err := pitch.ParseDomain(cfg.Predictor.Domain)
	if err != nil {
		return nil, err
	}

	return pitch.NewPredictor(seq, table, domain)
}

// openPredictor builds the pitch predictor for the selected backend. The
// returned close func releases backend resources and is never nil.
func openPredictor(cfg config.Config, cc *compute.Context) (*pitch.Predictor, func(), error) {
	nop := func() {}

	table, err := binTable(cfg.Pitch)
	if err != nil {
		return nil, nop, err
	}

	domain, err := pitch.ParseDomain(cfg.Predictor.Domain)
	if err != nil {
		return nil, nop, err
	}

	backend := config.BackendNative
	if cc != nil {
		backend = cc.Backend
	}

	switch backend {
	case config.BackendONNX:
		info, err := onnx.DetectRuntime(cfg.Runtime)
		if err != nil {
			return nil, nop, err
		}

		seq, err := variance.OpenONNX(cfg.Predictor.ONNXPath, onnx.RunnerConfig{LibraryPath: info.LibraryPath})
		if err != nil {
			return nil, nop, err
		}

		slog.Debug("using onnx predictor", "model", cfg.Predictor.ONNXPath, "ort", info.LibraryPath, "ort_version", info.Version)

		p, err := pitch.NewPredictor(seq, table, domain)
		if err != nil {
			seq.Close()
			return nil, nop, err
		}

		return p, seq.Close, nil
	default:
		p, err := pitch.LoadCheckpoint(cfg.Predictor.Checkpoint, table, domain)
		if err != nil {
			return nil, nop, err
		}

		slog.Debug("using native predictor", "checkpoint", cfg.Predictor.Checkpoint)

		return p, nop, nil
	}
}

// readTensor returns the named tensor, or the first tensor when name is empty.
func readTensor(path, name string) (*tensor.Tensor, error) {
	store, err := safetensors.OpenStore(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if name == "" {
		name = store.Names()[0]
	}

	st, err := store.Tensor(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return tensor.New(st.Data, st.Shape)
}

func intsToFloat64(rows ...[]int) []float64 {
	var out []float64
	for _, row := range rows {
		for _, v := range row {
			out = append(out, float64(v))
		}
	}

	return out
}
