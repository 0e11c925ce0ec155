// Package bench provides timing primitives for the pitchpred bench command.
package bench

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"
)

// RunResult holds the timing of a single predictor run.
type RunResult struct {
	Index    int
	Cold     bool // true for the first run (cold-start)
	Duration time.Duration
	Frames   int
	// AudioDuration is the span of speech the frames cover.
	AudioDuration time.Duration
	RTF           float64
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration
	P50  time.Duration
	P95  time.Duration
}

// ComputeStats calculates min, max, mean and empirical quantiles over a
// slice of durations. An empty slice yields zero Stats.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}

	xs := make([]float64, len(durations))
	for i, d := range durations {
		xs[i] = float64(d)
	}

	slices.Sort(xs)

	return Stats{
		Min:  time.Duration(xs[0]),
		Max:  time.Duration(xs[len(xs)-1]),
		Mean: time.Duration(stat.Mean(xs, nil)),
		P50:  time.Duration(stat.Quantile(0.5, stat.Empirical, xs, nil)),
		P95:  time.Duration(stat.Quantile(0.95, stat.Empirical, xs, nil)),
	}
}

// CalcRTF returns compute_duration / audio_duration.
// Returns 0 if audioDur is zero to avoid division by zero.
func CalcRTF(computeDur, audioDur time.Duration) float64 {
	if audioDur <= 0 {
		return 0
	}

	return float64(computeDur) / float64(audioDur)
}

// AudioDuration returns the time covered by frames at the given frame period.
func AudioDuration(frames int, framePeriodMs float64) time.Duration {
	if frames <= 0 || framePeriodMs <= 0 {
		return 0
	}

	return time.Duration(float64(frames) * framePeriodMs * float64(time.Millisecond))
}

// RunFunc performs one measured operation and reports the frames it covered.
type RunFunc func(ctx context.Context) (frames int, err error)

// Run calls fn warmup times unmeasured, then runs times measured. The first
// measured run is marked cold when warmup is zero.
func Run(ctx context.Context, fn RunFunc, runs, warmup int, framePeriodMs float64) ([]RunResult, error) {
	if runs < 1 {
		return nil, errors.New("bench: runs must be at least 1")
	}

	for i := range warmup {
		if _, err := fn(ctx); err != nil {
			return nil, fmt.Errorf("warmup %d failed: %w", i+1, err)
		}
	}

	results := make([]RunResult, 0, runs)

	for i := range runs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()

		frames, err := fn(ctx)
		if err != nil {
			return nil, fmt.Errorf("run %d failed: %w", i+1, err)
		}

		dur := time.Since(start)
		audioDur := AudioDuration(frames, framePeriodMs)

		results = append(results, RunResult{
			Index:         i,
			Cold:          i == 0 && warmup == 0,
			Duration:      dur,
			Frames:        frames,
			AudioDuration: audioDur,
			RTF:           CalcRTF(dur, audioDur),
		})
	}

	return results, nil
}

// MeanRTF averages the RTF of all runs.
func MeanRTF(runs []RunResult) float64 {
	if len(runs) == 0 {
		return 0
	}

	rtf := make([]float64, len(runs))
	for i, r := range runs {
		rtf[i] = r.RTF
	}

	return stat.Mean(rtf, nil)
}

// Durations extracts the measured durations of runs.
func Durations(runs []RunResult) []time.Duration {
	out := make([]time.Duration, len(runs))
	for i, r := range runs {
		out[i] = r.Duration
	}

	return out
}

// CheckRTFThreshold returns an error if meanRTF > threshold.
// A threshold of 0 disables the gate.
func CheckRTFThreshold(meanRTF, threshold float64) error {
	if threshold <= 0 {
		return nil
	}

	if meanRTF > threshold {
		return fmt.Errorf("mean RTF %.4f exceeds threshold %.4f", meanRTF, threshold)
	}

	return nil
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// FormatTable writes a human-readable ASCII table of bench results to w.
func FormatTable(runs []RunResult, stats Stats, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-5s  %-5s  %10s  %8s  %12s  %8s\n", "Run", "Cold", "MS", "Frames", "Audio(ms)", "RTF")
	fmt.Fprintln(sb, strings.Repeat("-", 58))

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}

		fmt.Fprintf(sb, "%-5d  %-5s  %10.3f  %8d  %12.1f  %8.4f\n",
			r.Index+1,
			cold,
			ms(r.Duration),
			r.Frames,
			ms(r.AudioDuration),
			r.RTF,
		)
	}

	fmt.Fprintln(sb, strings.Repeat("-", 58))

	for _, row := range []struct {
		label string
		d     time.Duration
	}{{"min", stats.Min}, {"p50", stats.P50}, {"mean", stats.Mean}, {"p95", stats.P95}, {"max", stats.Max}} {
		fmt.Fprintf(sb, "%-5s  %-5s  %10.3f  (%s)\n", "", "", ms(row.d), row.label)
	}

	fmt.Fprint(w, sb.String())
}

type jsonReport struct {
	Runs  []jsonRun `json:"runs"`
	Stats jsonStats `json:"stats"`
}

type jsonRun struct {
	Index      int     `json:"index"`
	Cold       bool    `json:"cold"`
	DurationMS float64 `json:"duration_ms"`
	Frames     int     `json:"frames"`
	AudioMS    float64 `json:"audio_ms"`
	RTF        float64 `json:"rtf"`
}

type jsonStats struct {
	MinMS  float64 `json:"min_ms"`
	P50MS  float64 `json:"p50_ms"`
	MeanMS float64 `json:"mean_ms"`
	P95MS  float64 `json:"p95_ms"`
	MaxMS  float64 `json:"max_ms"`
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(runs []RunResult, stats Stats, w io.Writer) error {
	jr := jsonReport{
		Runs: make([]jsonRun, len(runs)),
		Stats: jsonStats{
			MinMS:  ms(stats.Min),
			P50MS:  ms(stats.P50),
			MeanMS: ms(stats.Mean),
			P95MS:  ms(stats.P95),
			MaxMS:  ms(stats.Max),
		},
	}

	for i, r := range runs {
		jr.Runs[i] = jsonRun{
			Index:      r.Index,
			Cold:       r.Cold,
			DurationMS: ms(r.Duration),
			Frames:     r.Frames,
			AudioMS:    ms(r.AudioDuration),
			RTF:        r.RTF,
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(jr)
}
