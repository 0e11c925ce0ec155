package pitch

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/floats"
)

// Default table parameters.
const (
	DefaultPMin  = 80.0
	DefaultPMax  = 400.0
	DefaultNBins = 256
)

// RangePolicy decides what happens to values whose raw bin index falls
// outside [0, n_bins-1].
type RangePolicy int

const (
	// RangeClamp pins out-of-range indices to the nearest valid bin.
	RangeClamp RangePolicy = iota
	// RangeStrict rejects them with ErrOutOfRange.
	RangeStrict
)

func (p RangePolicy) String() string {
	switch p {
	case RangeClamp:
		return "clamp"
	case RangeStrict:
		return "strict"
	default:
		return "RangePolicy(" + strconv.Itoa(int(p)) + ")"
	}
}

// ParseRangePolicy accepts "clamp" (or empty) and "strict".
func ParseRangePolicy(s string) (RangePolicy, error) {
	switch s {
	case "", "clamp":
		return RangeClamp, nil
	case "strict":
		return RangeStrict, nil
	default:
		return 0, fmt.Errorf("pitch: unknown range policy %q (want clamp or strict)", s)
	}
}

// Config describes a bin table.
type Config struct {
	PMin   float64
	PMax   float64
	NBins  int
	Policy RangePolicy
}

func DefaultConfig() Config {
	return Config{PMin: DefaultPMin, PMax: DefaultPMax, NBins: DefaultNBins, Policy: RangeClamp}
}

func (c Config) Validate() error {
	if !isFinite(c.PMin) || !isFinite(c.PMax) || c.PMin <= 0 || c.PMax <= c.PMin {
		return fmt.Errorf("%w: need 0 < p_min < p_max, got p_min=%v p_max=%v", ErrInvalidBounds, c.PMin, c.PMax)
	}

	if c.NBins < 2 {
		return fmt.Errorf("%w: need n_bins >= 2, got %d", ErrInvalidBins, c.NBins)
	}

	if c.Policy != RangeClamp && c.Policy != RangeStrict {
		return fmt.Errorf("pitch: invalid range policy %v", c.Policy)
	}

	return nil
}

// BinTable holds n_bins log-domain edges evenly spaced between log(p_min)
// and log(p_max). It is immutable once built.
type BinTable struct {
	cfg   Config
	edges []float64
}

func NewBinTable(cfg Config) (*BinTable, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	edges := make([]float64, cfg.NBins)
	floats.Span(edges, math.Log(cfg.PMin), math.Log(cfg.PMax))
	edges[len(edges)-1] = math.Log(cfg.PMax)

	return &BinTable{cfg: cfg, edges: edges}, nil
}

func (b *BinTable) Config() Config { return b.cfg }

func (b *BinTable) NBins() int { return b.cfg.NBins }

// Edges returns a copy of the log-domain edges.
func (b *BinTable) Edges() []float64 {
	return append([]float64(nil), b.edges...)
}

// EdgesHz returns the edges converted back to Hz.
func (b *BinTable) EdgesHz() []float64 {
	out := make([]float64, len(b.edges))
	for i, e := range b.edges {
		out[i] = math.Exp(e)
	}

	return out
}

// Center returns the geometric centre of bin i in Hz. Bins are one log
// step wide; the open-ended last bin is given the same width.
func (b *BinTable) Center(i int) (float64, error) {
	if i < 0 || i >= b.cfg.NBins {
		return 0, fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, i, b.cfg.NBins)
	}

	step := b.edges[1] - b.edges[0]

	return math.Exp(b.edges[i] + step/2), nil
}

// Digitize returns the index of the first edge strictly greater than v, or
// len(edges) when there is none.
func (b *BinTable) Digitize(v float64) int {
	return sort.Search(len(b.edges), func(i int) bool { return b.edges[i] > v })
}

// IndexLog bins a value already in the table's log domain.
func (b *BinTable) IndexLog(v float64) (int, error) {
	if !isFinite(v) {
		return 0, fmt.Errorf("%w: %v", ErrNonFinite, v)
	}

	// The top edge is log(p_max) and still belongs to the last bin; only
	// values strictly above it overflow.
	idx := b.Digitize(v) - 1
	if idx >= 0 && v <= b.edges[len(b.edges)-1] {
		return idx, nil
	}

	if b.cfg.Policy == RangeStrict {
		return 0, fmt.Errorf("%w: value %v maps to %d, want [0, %d)", ErrOutOfRange, v, idx, b.cfg.NBins)
	}

	return min(max(idx, 0), b.cfg.NBins-1), nil
}

// IndexHz bins an f0 value in Hz. Values below 1 Hz (unvoiced frames are
// reported as 0) are floored to 1 before taking the log.
func (b *BinTable) IndexHz(f0 float64) (int, error) {
	if !isFinite(f0) {
		return 0, fmt.Errorf("%w: %v", ErrNonFinite, f0)
	}

	return b.IndexLog(LogF0(f0))
}

// LogF0 floors f0 to 1 Hz and returns its natural log.
func LogF0(f0 float64) float64 {
	if f0 < 1 {
		f0 = 1
	}

	return math.Log(f0)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
