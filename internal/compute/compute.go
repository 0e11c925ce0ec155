// Package compute resolves the process-wide execution settings once at
// start-up and hands them to predictor construction.
package compute

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/example/go-pitchpred/internal/config"
	"github.com/example/go-pitchpred/internal/runtime/ops"
	"github.com/example/go-pitchpred/internal/runtime/tensor"
)

// Device names where predictor math runs.
const (
	DeviceCPU = "cpu"
)

// Context is the resolved execution environment.
type Context struct {
	Backend string
	Device  string
	Threads int
	// RequestedGPUs records the ngpu setting even when it could not be honoured.
	RequestedGPUs int
	ORTLibrary    string
}

// New resolves cfg into a Context and applies worker counts to the tensor
// and conv kernels. Call it once per process.
func New(cfg config.Config) (*Context, error) {
	backend, err := config.NormalizeBackend(cfg.Predictor.Backend)
	if err != nil {
		return nil, err
	}

	if cfg.Runtime.Threads < 0 {
		return nil, fmt.Errorf("compute: threads must be >= 0, got %d", cfg.Runtime.Threads)
	}

	threads := cfg.Runtime.Threads
	if threads == 0 {
		threads = runtime.NumCPU()
	}

	c := &Context{
		Backend:       backend,
		Device:        DeviceCPU,
		Threads:       threads,
		RequestedGPUs: cfg.Runtime.NGPU,
		ORTLibrary:    cfg.Runtime.ORTLibraryPath,
	}

	if cfg.Runtime.NGPU > 0 {
		slog.Warn("gpu requested but predictor runs on cpu; falling back",
			"ngpu", cfg.Runtime.NGPU,
			"backend", backend,
		)
	}

	tensor.SetWorkers(threads)
	ops.SetConvWorkers(threads)

	slog.Debug("compute context ready", "backend", backend, "device", c.Device, "threads", threads)

	return c, nil
}
