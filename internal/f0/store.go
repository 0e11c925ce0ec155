package f0

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sbinet/npyio"

	"github.com/example/go-pitchpred/internal/safetensors"
)

// ErrUnsupportedFormat is returned for contour files that are neither .npy
// nor .safetensors.
var ErrUnsupportedFormat = errors.New("f0: unsupported contour file format")

// TensorName is the tensor key used when a contour is stored as safetensors.
const TensorName = "f0"

// Load reads a precomputed contour. The array is flattened; one value per
// frame.
func Load(path string) ([]float64, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".npy":
		return loadNPY(path)
	case ".safetensors":
		return loadSafetensors(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Save writes a contour in the format implied by the file extension.
func Save(path string, contour []float64) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".npy":
		return saveNPY(path, contour)
	case ".safetensors":
		return safetensors.Write(path, safetensors.File{
			Float64: []safetensors.Tensor64{{
				Name:  TensorName,
				Shape: []int64{int64(len(contour))},
				Data:  contour,
			}},
		})
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

func loadNPY(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("f0: open %s: %w", path, err)
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("f0: read npy header %s: %w", path, err)
	}

	switch dtype := r.Header.Descr.Type; dtype {
	case "<f8", "f8":
		var out []float64
		if err := r.Read(&out); err != nil {
			return nil, fmt.Errorf("f0: read %s: %w", path, err)
		}

		return out, nil
	case "<f4", "f4":
		var narrow []float32
		if err := r.Read(&narrow); err != nil {
			return nil, fmt.Errorf("f0: read %s: %w", path, err)
		}

		out := make([]float64, len(narrow))
		for i, v := range narrow {
			out[i] = float64(v)
		}

		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s has dtype %q, want float32 or float64", ErrUnsupportedFormat, path, dtype)
	}
}

func saveNPY(path string, contour []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("f0: create %s: %w", path, err)
	}

	if err := npyio.Write(f, contour); err != nil {
		_ = f.Close()
		return fmt.Errorf("f0: write %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("f0: close %s: %w", path, err)
	}

	return nil
}

func loadSafetensors(path string) ([]float64, error) {
	store, err := safetensors.OpenStore(path)
	if err != nil {
		return nil, fmt.Errorf("f0: %w", err)
	}
	defer store.Close()

	name := TensorName
	if !store.Has(name) {
		names := store.Names()
		if len(names) == 0 {
			return nil, fmt.Errorf("f0: %s contains no tensors", path)
		}

		name = names[0]
	}

	out, _, err := store.Float64s(name)
	if err != nil {
		return nil, fmt.Errorf("f0: %s: %w", path, err)
	}

	return out, nil
}
