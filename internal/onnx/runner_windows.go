//go:build windows

package onnx

import (
	"context"
	"fmt"

	"github.com/example/go-pitchpred/internal/runtime/tensor"
)

const DefaultAPIVersion = 23

// RunnerConfig holds ORT library settings for creating runners.
// In windows builds, native ORT runner support is currently unavailable.
type RunnerConfig struct {
	LibraryPath string
	APIVersion  uint32
}

// Runner is unavailable in windows builds.
type Runner struct {
	path string
}

// NewRunner always returns an error in windows builds.
func NewRunner(modelPath string, _ RunnerConfig) (*Runner, error) {
	return nil, fmt.Errorf("onnx: runner is unavailable on windows (%s)", modelPath)
}

// Run always returns an error in windows builds.
func (r *Runner) Run(_ context.Context, _ map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
	return nil, fmt.Errorf("onnx: runner is unavailable on windows (%s)", r.path)
}

// Close is a no-op in windows builds.
func (r *Runner) Close() {}

