package ops

import "sync/atomic"

// convWorkers controls the number of goroutines used by the Conv1D output
// channel loop. 0 or 1 means sequential.
var convWorkers atomic.Int32

// SetConvWorkers sets the maximum number of goroutines used for parallel
// Conv1D execution. n <= 1 disables parallelism.
func SetConvWorkers(n int) {
	const maxInt32 = int(^uint32(0) >> 1)

	if n < 0 {
		n = 0
	}

	if n > maxInt32 {
		n = maxInt32
	}

	convWorkers.Store(int32(n))
}

// ConvWorkers returns the current worker count (0 or 1 -> sequential).
func ConvWorkers() int { return int(convWorkers.Load()) }
