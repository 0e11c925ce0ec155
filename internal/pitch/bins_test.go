package pitch

import (
	"errors"
	"math"
	"testing"
)

func mustTable(t *testing.T, cfg Config) *BinTable {
	t.Helper()

	table, err := NewBinTable(cfg)
	if err != nil {
		t.Fatalf("NewBinTable(%+v): %v", cfg, err)
	}

	return table
}

func TestBinTableEdges(t *testing.T) {
	table := mustTable(t, DefaultConfig())

	edges := table.Edges()
	if len(edges) != DefaultNBins {
		t.Fatalf("len(edges) = %d, want %d", len(edges), DefaultNBins)
	}

	if edges[0] != math.Log(80) || edges[len(edges)-1] != math.Log(400) {
		t.Fatalf("edge bounds = %v .. %v, want log(80) .. log(400)", edges[0], edges[len(edges)-1])
	}

	for i := 1; i < len(edges); i++ {
		if edges[i] <= edges[i-1] {
			t.Fatalf("edges not strictly increasing at %d", i)
		}
	}

	hz := table.EdgesHz()
	if math.Abs(hz[0]-80) > 1e-9 || math.Abs(hz[len(hz)-1]-400) > 1e-9 {
		t.Fatalf("EdgesHz bounds = %v .. %v", hz[0], hz[len(hz)-1])
	}

	edges[0] = 0
	if table.Edges()[0] == 0 {
		t.Fatal("Edges must return a copy")
	}
}

func TestIndexHzReferenceContour(t *testing.T) {
	table := mustTable(t, DefaultConfig())

	tests := []struct {
		f0   float64
		want int
	}{
		{0, 0},
		{-5, 0},
		{0.5, 0},
		{80, 0},
		{200, 145},
		{400, 255},
		{500, 255},
	}

	for _, tt := range tests {
		got, err := table.IndexHz(tt.f0)
		if err != nil {
			t.Fatalf("IndexHz(%v): %v", tt.f0, err)
		}

		if got != tt.want {
			t.Errorf("IndexHz(%v) = %d, want %d", tt.f0, got, tt.want)
		}
	}
}

func TestEdgeValuesLandInBinAbove(t *testing.T) {
	table := mustTable(t, Config{PMin: 50, PMax: 800, NBins: 16})

	for i, e := range table.Edges() {
		got, err := table.IndexLog(e)
		if err != nil {
			t.Fatalf("IndexLog(edge %d): %v", i, err)
		}

		if got != i {
			t.Errorf("IndexLog(edge %d) = %d, want %d", i, got, i)
		}
	}
}

func TestIndexIsMonotonic(t *testing.T) {
	table := mustTable(t, DefaultConfig())

	prev := -1
	for f := 0.0; f <= 600; f += 0.37 {
		got, err := table.IndexHz(f)
		if err != nil {
			t.Fatalf("IndexHz(%v): %v", f, err)
		}

		if got < prev {
			t.Fatalf("IndexHz(%v) = %d < previous %d", f, got, prev)
		}

		if got < 0 || got >= table.NBins() {
			t.Fatalf("IndexHz(%v) = %d outside [0, %d)", f, got, table.NBins())
		}

		prev = got
	}
}

func TestClampIsIdempotent(t *testing.T) {
	table := mustTable(t, DefaultConfig())

	for _, f := range []float64{0, 10, 79.9, 401, 5000} {
		first, err := table.IndexHz(f)
		if err != nil {
			t.Fatalf("IndexHz(%v): %v", f, err)
		}

		center, err := table.Center(first)
		if err != nil {
			t.Fatalf("Center(%d): %v", first, err)
		}

		second, err := table.IndexHz(center)
		if err != nil {
			t.Fatalf("IndexHz(center %v): %v", center, err)
		}

		if first != second {
			t.Errorf("f0 %v: bin %d, re-binned centre %v gives %d", f, first, center, second)
		}
	}
}

func TestStrictPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy = RangeStrict
	table := mustTable(t, cfg)

	if _, err := table.IndexHz(0); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("IndexHz(0) error = %v, want ErrOutOfRange", err)
	}

	for _, f0 := range []float64{400.5, 500, 5000} {
		if _, err := table.IndexHz(f0); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("IndexHz(%v) error = %v, want ErrOutOfRange", f0, err)
		}
	}

	if _, err := table.IndexLog(math.Log(400) + 1e-9); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("IndexLog just above log(p_max) error = %v, want ErrOutOfRange", err)
	}

	// p_max itself is the top edge and stays in range.
	if got, err := table.IndexHz(400); err != nil || got != 255 {
		t.Errorf("IndexHz(400) = %d, %v; want 255", got, err)
	}

	if got, err := table.IndexHz(80); err != nil || got != 0 {
		t.Errorf("IndexHz(80) = %d, %v; want 0", got, err)
	}

	if got, err := table.IndexHz(200); err != nil || got != 145 {
		t.Errorf("IndexHz(200) = %d, %v; want 145", got, err)
	}
}

func TestNonFiniteAlwaysFails(t *testing.T) {
	table := mustTable(t, DefaultConfig())

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := table.IndexHz(v); !errors.Is(err, ErrNonFinite) {
			t.Errorf("IndexHz(%v) error = %v, want ErrNonFinite", v, err)
		}

		if _, err := table.IndexLog(v); !errors.Is(err, ErrNonFinite) {
			t.Errorf("IndexLog(%v) error = %v, want ErrNonFinite", v, err)
		}
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{"zero p_min", Config{PMin: 0, PMax: 400, NBins: 256}, ErrInvalidBounds},
		{"negative p_min", Config{PMin: -1, PMax: 400, NBins: 256}, ErrInvalidBounds},
		{"equal bounds", Config{PMin: 200, PMax: 200, NBins: 256}, ErrInvalidBounds},
		{"inverted bounds", Config{PMin: 400, PMax: 80, NBins: 256}, ErrInvalidBounds},
		{"infinite max", Config{PMin: 80, PMax: math.Inf(1), NBins: 256}, ErrInvalidBounds},
		{"one bin", Config{PMin: 80, PMax: 400, NBins: 1}, ErrInvalidBins},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewBinTable(tt.cfg); !errors.Is(err, tt.want) {
				t.Fatalf("NewBinTable error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCenterBounds(t *testing.T) {
	table := mustTable(t, DefaultConfig())

	if _, err := table.Center(-1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Center(-1) error = %v", err)
	}

	if _, err := table.Center(256); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Center(256) error = %v", err)
	}

	c, err := table.Center(145)
	if err != nil {
		t.Fatalf("Center(145): %v", err)
	}

	hz := table.EdgesHz()
	if c <= hz[145] || c >= hz[146] {
		t.Errorf("Center(145) = %v, want inside (%v, %v)", c, hz[145], hz[146])
	}
}

func TestParseRangePolicy(t *testing.T) {
	for in, want := range map[string]RangePolicy{"": RangeClamp, "clamp": RangeClamp, "strict": RangeStrict} {
		got, err := ParseRangePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseRangePolicy(%q) = %v, %v; want %v", in, got, err, want)
		}
	}

	if _, err := ParseRangePolicy("wrap"); err == nil {
		t.Error("ParseRangePolicy(wrap) should fail")
	}

	if RangeStrict.String() != "strict" || RangePolicy(9).String() != "RangePolicy(9)" {
		t.Error("unexpected RangePolicy strings")
	}
}
