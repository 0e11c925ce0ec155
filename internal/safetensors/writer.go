package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
)

// File is an encodable safetensors payload: float32 tensors, optional
// float64 tensors, and free-form string metadata.
type File struct {
	Tensors  []Tensor
	Float64  []Tensor64
	Metadata map[string]string
}

// Tensor64 is a named tensor kept at float64 precision on disk.
type Tensor64 struct {
	Name  string
	Shape []int64
	Data  []float64
}

// EncodeTensors serializes float32 tensors into safetensors format.
func EncodeTensors(tensors []Tensor) ([]byte, error) {
	return Encode(File{Tensors: tensors})
}

// Encode serializes f. Tensors are laid out in name order.
func Encode(f File) ([]byte, error) {
	type pending struct {
		name  string
		dtype string
		shape []int64
		bytes []byte
	}

	items := make([]pending, 0, len(f.Tensors)+len(f.Float64))

	for _, t := range f.Tensors {
		if err := checkElements(t.Name, t.Shape, len(t.Data)); err != nil {
			return nil, err
		}

		buf := make([]byte, len(t.Data)*4)
		for i, v := range t.Data {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
		}

		items = append(items, pending{name: strings.TrimSpace(t.Name), dtype: dtypeF32, shape: t.Shape, bytes: buf})
	}

	for _, t := range f.Float64 {
		if err := checkElements(t.Name, t.Shape, len(t.Data)); err != nil {
			return nil, err
		}

		buf := make([]byte, len(t.Data)*8)
		for i, v := range t.Data {
			binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
		}

		items = append(items, pending{name: strings.TrimSpace(t.Name), dtype: dtypeF64, shape: t.Shape, bytes: buf})
	}

	if len(items) == 0 {
		return nil, errors.New("safetensors: no tensors to encode")
	}

	sort.Slice(items, func(i, j int) bool { return items[i].name < items[j].name })

	header := make(map[string]any, len(items)+1)
	raw := make([]byte, 0)

	for _, it := range items {
		if _, exists := header[it.name]; exists {
			return nil, fmt.Errorf("safetensors: duplicate tensor name %q", it.name)
		}

		start := len(raw)
		raw = append(raw, it.bytes...)

		header[it.name] = storeHeaderEntry{
			DType:   it.dtype,
			Shape:   append([]int64(nil), it.shape...),
			Offsets: [2]int{start, len(raw)},
		}
	}

	if len(f.Metadata) > 0 {
		header[metadataKey] = f.Metadata
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("safetensors: encode header: %w", err)
	}

	out := make([]byte, 8, 8+len(headerJSON)+len(raw))
	binary.LittleEndian.PutUint64(out, uint64(len(headerJSON)))
	out = append(out, headerJSON...)
	out = append(out, raw...)

	return out, nil
}

// WriteFile writes float32 tensors into a .safetensors file.
func WriteFile(path string, tensors []Tensor) error {
	return Write(path, File{Tensors: tensors})
}

// Write encodes f and writes it to path.
func Write(path string, f File) error {
	data, err := Encode(f)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("safetensors: write %s: %w", path, err)
	}

	return nil
}

func checkElements(name string, shape []int64, n int) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("safetensors: tensor name must not be empty")
	}

	if strings.TrimSpace(name) == metadataKey {
		return fmt.Errorf("safetensors: tensor name %q is reserved", metadataKey)
	}

	elemCount, err := shapeElementCount(shape)
	if err != nil {
		return fmt.Errorf("safetensors: tensor %q: %w", name, err)
	}

	if int64(n) != elemCount {
		return fmt.Errorf("safetensors: tensor %q shape %v expects %d elements, got %d", name, shape, elemCount, n)
	}

	return nil
}
