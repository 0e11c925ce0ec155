package pitch

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/go-pitchpred/internal/f0"
)

type fakeExtractor struct {
	contour []float64
	err     error
	calls   int
}

func (f *fakeExtractor) Extract(_ context.Context, _ []float64, _ int) ([]float64, error) {
	f.calls++
	return f.contour, f.err
}

func newQuantizer(t *testing.T, opts ...QuantizerOption) *Quantizer {
	t.Helper()

	q, err := NewQuantizer(mustTable(t, DefaultConfig()), opts...)
	if err != nil {
		t.Fatalf("NewQuantizer: %v", err)
	}

	return q
}

func TestQuantizeForTrainingReferenceContour(t *testing.T) {
	q := newQuantizer(t)

	onehot, err := q.QuantizeForTraining([]float64{0, 80, 200, 400, 500})
	if err != nil {
		t.Fatalf("QuantizeForTraining: %v", err)
	}

	if got := onehot.Shape(); len(got) != 2 || got[0] != 5 || got[1] != 256 {
		t.Fatalf("shape = %v, want [5 256]", got)
	}

	bins, err := Argmax(onehot)
	if err != nil {
		t.Fatalf("Argmax: %v", err)
	}

	want := []int{0, 0, 145, 255, 255}
	for i := range want {
		if bins[i] != want[i] {
			t.Fatalf("bins = %v, want %v", bins, want)
		}
	}
}

func TestTrainingAndInferencePathsAgree(t *testing.T) {
	q := newQuantizer(t)

	var (
		hz  []float64
		log []float64
	)

	for f := 1.0; f < 700; f *= 1.013 {
		hz = append(hz, f)
		log = append(log, math.Log(f))
	}

	train, err := q.BinsForTraining(hz)
	if err != nil {
		t.Fatalf("BinsForTraining: %v", err)
	}

	infer, err := q.BinsForInference(log)
	if err != nil {
		t.Fatalf("BinsForInference: %v", err)
	}

	for i := range train {
		if train[i] != infer[i] {
			t.Fatalf("f0 %v: training bin %d, inference bin %d", hz[i], train[i], infer[i])
		}
	}
}

func TestQuantizeForInferenceUsesValuesAsIs(t *testing.T) {
	q := newQuantizer(t)

	// 0 in the log domain is 1 Hz: below the table, so bin 0 under clamp.
	// A negative log value must not be floored the way raw f0 is.
	bins, err := q.BinsForInference([]float64{0, -3, math.Log(200), 10})
	if err != nil {
		t.Fatalf("BinsForInference: %v", err)
	}

	want := []int{0, 0, 145, 255}
	for i := range want {
		if bins[i] != want[i] {
			t.Fatalf("bins = %v, want %v", bins, want)
		}
	}

	if _, err := q.QuantizeForInference([]float64{math.NaN()}); !errors.Is(err, ErrNonFinite) {
		t.Fatalf("NaN error = %v, want ErrNonFinite", err)
	}
}

func TestQuantizeEmptyContour(t *testing.T) {
	onehot, err := newQuantizer(t).QuantizeForTraining(nil)
	if err != nil {
		t.Fatalf("QuantizeForTraining(nil): %v", err)
	}

	if got := onehot.Shape(); got[0] != 0 || got[1] != 256 {
		t.Fatalf("shape = %v, want [0 256]", got)
	}
}

func TestExtractAndQuantize(t *testing.T) {
	ext := &fakeExtractor{contour: []float64{0, 200, 0}}
	q := newQuantizer(t, WithExtractor(ext))

	onehot, contour, err := q.ExtractAndQuantize(context.Background(), make([]float64, 1000), 22050)
	if err != nil {
		t.Fatalf("ExtractAndQuantize: %v", err)
	}

	if ext.calls != 1 || len(contour) != 3 {
		t.Fatalf("calls = %d, contour = %v", ext.calls, contour)
	}

	bins, _ := Argmax(onehot)
	if bins[0] != 0 || bins[1] != 145 || bins[2] != 0 {
		t.Fatalf("bins = %v", bins)
	}
}

func TestExtractAndQuantizeErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("tracker failed")

	tests := []struct {
		name string
		ext  *fakeExtractor
		want error
	}{
		{"extractor error", &fakeExtractor{err: boom}, boom},
		{"empty contour", &fakeExtractor{contour: []float64{}}, ErrEmptyContour},
		{"nan in contour", &fakeExtractor{contour: []float64{100, math.NaN()}}, ErrNonFinite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newQuantizer(t, WithExtractor(tt.ext))
			if _, _, err := q.ExtractAndQuantize(ctx, []float64{0}, 16000); !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}

			if tt.ext.calls != 1 {
				t.Fatalf("extractor called %d times, want exactly once", tt.ext.calls)
			}
		})
	}

	if _, _, err := newQuantizer(t).ExtractAndQuantize(ctx, []float64{0}, 16000); err == nil {
		t.Fatal("expected error without extractor")
	}
}

func TestLoadAndQuantize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "utt.npy")

	if err := f0.Save(path, []float64{0, 80, 200, 400, 500}); err != nil {
		t.Fatalf("f0.Save: %v", err)
	}

	onehot, contour, err := newQuantizer(t).LoadAndQuantize(path)
	if err != nil {
		t.Fatalf("LoadAndQuantize: %v", err)
	}

	if len(contour) != 5 {
		t.Fatalf("contour = %v", contour)
	}

	bins, _ := Argmax(onehot)
	if bins[2] != 145 || bins[4] != 255 {
		t.Fatalf("bins = %v", bins)
	}

	if _, _, err := newQuantizer(t).LoadAndQuantize(filepath.Join(dir, "missing.npy")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file error = %v, want os.ErrNotExist", err)
	}
}

func TestLoadAndQuantizeCustomLoader(t *testing.T) {
	q := newQuantizer(t, WithLoader(func(string) ([]float64, error) { return nil, nil }))

	if _, _, err := q.LoadAndQuantize("anything.npy"); !errors.Is(err, ErrEmptyContour) {
		t.Fatalf("error = %v, want ErrEmptyContour", err)
	}
}
