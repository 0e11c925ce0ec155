package safetensors

import (
	"path/filepath"
	"testing"
)

func TestWriteFile_RoundTripSingleTensor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "predictor.safetensors")

	want := Tensor{
		Name:  "linear.weight",
		Shape: []int64{1, 2, 4},
		Data:  []float32{1.5, -0.25, 3.25, 4.0, -1.0, 0.5, 2.5, 9.0},
	}

	if err := WriteFile(path, []Tensor{want}); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := LoadFirstTensor(path)
	if err != nil {
		t.Fatalf("LoadFirstTensor: %v", err)
	}

	if got.Name != want.Name {
		t.Fatalf("tensor name = %q, want %q", got.Name, want.Name)
	}

	if !equalShape(got.Shape, want.Shape) {
		t.Fatalf("tensor shape = %v, want %v", got.Shape, want.Shape)
	}

	for i := range got.Data {
		if got.Data[i] != want.Data[i] {
			t.Fatalf("data[%d] = %v, want %v", i, got.Data[i], want.Data[i])
		}
	}
}

func TestEncode_MetadataAndFloat64RoundTrip(t *testing.T) {
	blob, err := Encode(File{
		Tensors: []Tensor{{Name: "b", Shape: []int64{2}, Data: []float32{3, 4}}},
		Float64: []Tensor64{{Name: "a", Shape: []int64{3}, Data: []float64{0, 80.125, 1e-9}}},
		Metadata: map[string]string{
			"p_min": "80",
			"p_max": "400",
		},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	store, err := OpenStoreFromBytes(blob)
	if err != nil {
		t.Fatalf("OpenStoreFromBytes: %v", err)
	}
	defer store.Close()

	if names := store.Names(); len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("names = %v, want [a b]", names)
	}

	md := store.Metadata()
	if md["p_min"] != "80" || md["p_max"] != "400" {
		t.Fatalf("metadata = %v", md)
	}

	wide, shape, err := store.Float64s("a")
	if err != nil {
		t.Fatalf("Float64s: %v", err)
	}
	if !equalShape(shape, []int64{3}) || wide[1] != 80.125 || wide[2] != 1e-9 {
		t.Fatalf("Float64s = %v %v", wide, shape)
	}

	narrow, err := store.Tensor("b")
	if err != nil {
		t.Fatalf("Tensor: %v", err)
	}
	if narrow.Data[0] != 3 || narrow.Data[1] != 4 {
		t.Fatalf("b = %v", narrow.Data)
	}
}

func TestEncode_Rejects(t *testing.T) {
	tests := []struct {
		name string
		file File
	}{
		{"empty", File{}},
		{"blank name", File{Tensors: []Tensor{{Name: " ", Shape: []int64{1}, Data: []float32{1}}}}},
		{"reserved name", File{Tensors: []Tensor{{Name: "__metadata__", Shape: []int64{1}, Data: []float32{1}}}}},
		{"shape mismatch", File{Tensors: []Tensor{{Name: "x", Shape: []int64{2}, Data: []float32{1}}}}},
		{"duplicate", File{
			Tensors: []Tensor{{Name: "x", Shape: []int64{1}, Data: []float32{1}}},
			Float64: []Tensor64{{Name: "x", Shape: []int64{1}, Data: []float64{1}}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Encode(tt.file); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func equalShape(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
