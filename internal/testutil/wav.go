package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/example/go-pitchpred/internal/audio"
)

// WriteWAV encodes mono samples into dir/name and returns the path.
func WriteWAV(tb testing.TB, dir, name string, samples []float64, sampleRate int) string {
	tb.Helper()

	data, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		tb.Fatalf("encode %s: %v", name, err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}

	return path
}
