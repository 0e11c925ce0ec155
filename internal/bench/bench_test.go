package bench_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/example/go-pitchpred/internal/bench"
)

func TestStats_MinMaxMean(t *testing.T) {
	durations := []time.Duration{
		300 * time.Millisecond,
		100 * time.Millisecond,
		200 * time.Millisecond,
	}
	s := bench.ComputeStats(durations)

	if s.Min != 100*time.Millisecond {
		t.Errorf("want min=100ms, got %v", s.Min)
	}

	if s.Max != 300*time.Millisecond {
		t.Errorf("want max=300ms, got %v", s.Max)
	}

	if s.Mean != 200*time.Millisecond {
		t.Errorf("want mean=200ms, got %v", s.Mean)
	}

	if s.P50 != 200*time.Millisecond {
		t.Errorf("want p50=200ms, got %v", s.P50)
	}

	if s.P95 != 300*time.Millisecond {
		t.Errorf("want p95=300ms, got %v", s.P95)
	}
}

func TestStats_SingleAndEmpty(t *testing.T) {
	s := bench.ComputeStats([]time.Duration{150 * time.Millisecond})
	if s.Min != s.Max || s.Min != s.Mean || s.Min != s.P95 {
		t.Errorf("single run: stats should all be equal, got %+v", s)
	}

	if got := bench.ComputeStats(nil); got != (bench.Stats{}) {
		t.Errorf("empty stats = %+v, want zero", got)
	}
}

func TestRTF(t *testing.T) {
	if rtf := bench.CalcRTF(500*time.Millisecond, time.Second); rtf < 0.499 || rtf > 0.501 {
		t.Errorf("want RTF≈0.5, got %.4f", rtf)
	}

	if rtf := bench.CalcRTF(500*time.Millisecond, 0); rtf != 0 {
		t.Errorf("want RTF=0 for zero audio duration, got %.4f", rtf)
	}
}

func TestAudioDuration(t *testing.T) {
	// 100 frames of 11.6 ms.
	got := bench.AudioDuration(100, 11.6)
	if diff := got - 1160*time.Millisecond; diff > time.Microsecond || diff < -time.Microsecond {
		t.Errorf("AudioDuration = %v, want 1.16s", got)
	}

	if bench.AudioDuration(0, 11.6) != 0 || bench.AudioDuration(10, 0) != 0 {
		t.Error("degenerate inputs should give zero duration")
	}
}

func TestRun(t *testing.T) {
	calls := 0
	fn := func(context.Context) (int, error) {
		calls++
		return 50, nil
	}

	runs, err := bench.Run(context.Background(), fn, 3, 2, 10)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if calls != 5 {
		t.Errorf("calls = %d, want 2 warmup + 3 measured", calls)
	}

	if len(runs) != 3 {
		t.Fatalf("len(runs) = %d, want 3", len(runs))
	}

	for i, r := range runs {
		if r.Index != i || r.Cold || r.Frames != 50 || r.AudioDuration != 500*time.Millisecond {
			t.Errorf("run %d = %+v", i, r)
		}
	}

	cold, err := bench.Run(context.Background(), fn, 1, 0, 10)
	if err != nil || !cold[0].Cold {
		t.Errorf("first run without warmup should be cold: %+v, %v", cold, err)
	}
}

func TestRunErrors(t *testing.T) {
	boom := errors.New("boom")
	fail := func(context.Context) (int, error) { return 0, boom }

	if _, err := bench.Run(context.Background(), fail, 0, 0, 10); err == nil {
		t.Error("runs=0 should fail")
	}

	if _, err := bench.Run(context.Background(), fail, 1, 1, 10); !errors.Is(err, boom) {
		t.Errorf("warmup error = %v, want boom", err)
	}

	if _, err := bench.Run(context.Background(), fail, 1, 0, 10); !errors.Is(err, boom) {
		t.Errorf("run error = %v, want boom", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok := func(context.Context) (int, error) { return 1, nil }
	if _, err := bench.Run(ctx, ok, 1, 0, 10); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled run error = %v, want context.Canceled", err)
	}
}

func TestMeanRTFAndDurations(t *testing.T) {
	runs := []bench.RunResult{{Duration: time.Second, RTF: 0.2}, {Duration: 2 * time.Second, RTF: 0.4}}

	if got := bench.MeanRTF(runs); got < 0.2999 || got > 0.3001 {
		t.Errorf("MeanRTF = %v, want 0.3", got)
	}

	if bench.MeanRTF(nil) != 0 {
		t.Error("MeanRTF(nil) should be 0")
	}

	if d := bench.Durations(runs); len(d) != 2 || d[1] != 2*time.Second {
		t.Errorf("Durations = %v", d)
	}
}

func TestRTFThreshold(t *testing.T) {
	tests := []struct {
		name      string
		mean      float64
		threshold float64
		wantErr   bool
	}{
		{"exceeds", 1.5, 1.0, true},
		{"below", 0.8, 1.0, false},
		{"exactly at", 1.0, 1.0, false},
		{"disabled", 9999, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := bench.CheckRTFThreshold(tt.mean, tt.threshold)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckRTFThreshold(%v, %v) = %v; wantErr=%v", tt.mean, tt.threshold, err, tt.wantErr)
			}
		})
	}
}

func TestFormatTable_ContainsHeaders(t *testing.T) {
	runs := []bench.RunResult{
		{Index: 0, Cold: true, Duration: 8 * time.Millisecond, Frames: 100, AudioDuration: time.Second, RTF: 0.008},
		{Index: 1, Duration: 5 * time.Millisecond, Frames: 100, AudioDuration: time.Second, RTF: 0.005},
	}
	stats := bench.ComputeStats(bench.Durations(runs))

	var buf strings.Builder
	bench.FormatTable(runs, stats, &buf)
	out := strings.ToLower(buf.String())

	for _, want := range []string{"run", "cold", "ms", "frames", "rtf", "p95"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatJSON_IsValidJSON(t *testing.T) {
	runs := []bench.RunResult{
		{Index: 0, Cold: true, Duration: 800 * time.Microsecond, Frames: 10, AudioDuration: 116 * time.Millisecond},
	}

	var buf bytes.Buffer
	if err := bench.FormatJSON(runs, bench.ComputeStats(bench.Durations(runs)), &buf); err != nil {
		t.Fatalf("FormatJSON: %v", err)
	}

	var out struct {
		Runs []struct {
			DurationMS float64 `json:"duration_ms"`
			Frames     int     `json:"frames"`
		} `json:"runs"`
	}

	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("FormatJSON produced invalid JSON: %v\n%s", err, buf.String())
	}

	if len(out.Runs) != 1 || out.Runs[0].DurationMS != 0.8 || out.Runs[0].Frames != 10 {
		t.Errorf("decoded runs = %+v", out.Runs)
	}
}
