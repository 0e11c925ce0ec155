// Package testutil provides shared skip helpers and signal fixtures for
// tests.
//
// Each Require helper calls t.Skip with a clear human-readable reason when
// the named prerequisite is absent, so integration tests remain runnable in
// partial environments without failing noisily.
package testutil

import (
	"math"
	"os"
	"strconv"
	"testing"
)

// ortLibraryCandidates are probed when no env var names the library.
var ortLibraryCandidates = []string{
	"/usr/lib/libonnxruntime.so",
	"/usr/local/lib/libonnxruntime.so",
	"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
}

// RequireONNXRuntime skips the test if no ONNX Runtime shared library can be
// located. It checks (in order): the ORT_LIBRARY_PATH env var, then the
// PITCHPRED_ORT_LIB env var, then common system library paths.
func RequireONNXRuntime(tb testing.TB) {
	tb.Helper()

	for _, env := range []string{"ORT_LIBRARY_PATH", "PITCHPRED_ORT_LIB"} {
		if p := os.Getenv(env); p != "" {
			if _, err := os.Stat(p); err == nil {
				return
			}

			tb.Skipf("ONNX Runtime library not found at %s=%q", env, p)
		}
	}

	for _, p := range ortLibraryCandidates {
		if _, err := os.Stat(p); err == nil {
			return
		}
	}

	tb.Skip("ONNX Runtime shared library not found; set ORT_LIBRARY_PATH or PITCHPRED_ORT_LIB")
}

// EnvInt reads an integer env var, returning def when unset. A malformed
// value fails the test.
func EnvInt(tb testing.TB, name string, def int) int {
	tb.Helper()

	raw := os.Getenv(name)
	if raw == "" {
		return def
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		tb.Fatalf("%s=%q is not an integer: %v", name, raw, err)
	}

	return v
}

// Sine returns n samples of amp*sin(2*pi*freq*t) at sampleRate.
func Sine(freq, amp float64, sampleRate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}

	return out
}

