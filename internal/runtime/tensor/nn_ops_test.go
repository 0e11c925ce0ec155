package tensor

import (
	"math"
	"testing"
)

func TestLinearWithBias(t *testing.T) {
	x, _ := New([]float32{1, 2, 3, 4}, []int64{2, 2})
	w, _ := New([]float32{1, 0, 0, 1, 1, 1}, []int64{3, 2})
	b, _ := New([]float32{0.5, -0.5, 0}, []int64{3})

	y, err := Linear(x, w, b)
	if err != nil {
		t.Fatalf("linear: %v", err)
	}
	if got := y.Shape(); !equalI64(got, []int64{2, 3}) {
		t.Fatalf("shape = %v, want [2 3]", got)
	}
	want := []float32{1.5, 1.5, 3, 3.5, 3.5, 7}
	if got := y.Data(); !equalF32(got, want, 1e-6) {
		t.Fatalf("data = %v, want %v", got, want)
	}
}

func TestLinearParallelMatchesSequential(t *testing.T) {
	orig := Workers()
	t.Cleanup(func() { SetWorkers(orig) })

	data := make([]float32, 64*8)
	for i := range data {
		data[i] = float32((i%13)-6) / 7
	}
	wData := make([]float32, 8*5)
	for i := range wData {
		wData[i] = float32((i%5)-2) / 3
	}
	x, _ := New(data, []int64{4, 16, 8})
	w, _ := New(wData, []int64{5, 8})

	SetWorkers(1)
	seq, err := Linear(x, w, nil)
	if err != nil {
		t.Fatalf("linear: %v", err)
	}
	SetWorkers(4)
	par, err := Linear(x, w, nil)
	if err != nil {
		t.Fatalf("linear: %v", err)
	}
	if !equalF32(seq.RawData(), par.RawData(), 0) {
		t.Fatal("parallel linear differs from sequential")
	}
}

func TestLinearShapeMismatch(t *testing.T) {
	x, _ := New([]float32{1, 2, 3}, []int64{1, 3})
	w, _ := New([]float32{1, 2}, []int64{1, 2})
	if _, err := Linear(x, w, nil); err == nil {
		t.Fatal("expected mismatch error")
	}
}

func TestLayerNormZeroMeanUnitVariance(t *testing.T) {
	x, _ := New([]float32{1, 2, 3, 4, 10, 10, 10, 10}, []int64{2, 4})
	y, err := LayerNorm(x, nil, nil, 1e-5)
	if err != nil {
		t.Fatalf("layernorm: %v", err)
	}
	row := y.RawData()[:4]
	var mean, sq float64
	for _, v := range row {
		mean += float64(v)
	}
	mean /= 4
	for _, v := range row {
		sq += (float64(v) - mean) * (float64(v) - mean)
	}
	if math.Abs(mean) > 1e-5 || math.Abs(sq/4-1) > 1e-3 {
		t.Fatalf("row stats mean=%f var=%f", mean, sq/4)
	}
	for _, v := range y.RawData()[4:] {
		if v != 0 {
			t.Fatalf("constant row should normalize to 0, got %v", y.RawData()[4:])
		}
	}
}

func TestLayerNormAffine(t *testing.T) {
	x, _ := New([]float32{-1, 1}, []int64{1, 2})
	w, _ := New([]float32{2, 2}, []int64{2})
	b, _ := New([]float32{1, 1}, []int64{2})
	y, err := LayerNorm(x, w, b, 1e-12)
	if err != nil {
		t.Fatalf("layernorm: %v", err)
	}
	if got := y.Data(); !equalF32(got, []float32{-1, 3}, 1e-4) {
		t.Fatalf("data = %v, want [-1 3]", got)
	}
}

func TestLayerNormRejectsBadEps(t *testing.T) {
	x, _ := New([]float32{1}, []int64{1})
	if _, err := LayerNorm(x, nil, nil, 0); err == nil {
		t.Fatal("expected eps error")
	}
}

func TestReLU(t *testing.T) {
	x, _ := New([]float32{-2, 0, 3}, []int64{3})
	r, err := ReLU(x)
	if err != nil {
		t.Fatalf("relu: %v", err)
	}
	if got := r.Data(); !equalF32(got, []float32{0, 0, 3}, 0) {
		t.Fatalf("relu = %v", got)
	}
}

func TestScaleAroundMean(t *testing.T) {
	// Two rows with means 2 and 20.
	x, _ := New([]float32{1, 2, 3, 10, 20, 30}, []int64{2, 3})

	tests := []struct {
		alpha float32
		want  []float32
	}{
		{1, []float32{1, 2, 3, 10, 20, 30}},
		{0.5, []float32{1.5, 2, 2.5, 15, 20, 25}},
		{2, []float32{0, 2, 4, 0, 20, 40}},
		{0, []float32{2, 2, 2, 20, 20, 20}},
	}

	for _, tt := range tests {
		got, err := ScaleAroundMean(x, tt.alpha)
		if err != nil {
			t.Fatalf("alpha %v: %v", tt.alpha, err)
		}

		if !equalF32(got.Data(), tt.want, 1e-5) {
			t.Errorf("alpha %v = %v, want %v", tt.alpha, got.Data(), tt.want)
		}
	}

	if got := x.Data(); !equalF32(got, []float32{1, 2, 3, 10, 20, 30}, 0) {
		t.Fatalf("input modified: %v", got)
	}

	if _, err := ScaleAroundMean(nil, 1); err == nil {
		t.Fatal("expected nil input error")
	}
}
