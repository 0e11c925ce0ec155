package pitch

import "fmt"

// Domain is the unit of the scalar a sequence predictor emits per frame.
type Domain string

const (
	// DomainLog means the predictor outputs natural-log f0, matching the
	// bin table edges directly.
	DomainLog Domain = "log"
	// DomainLinear means the predictor outputs f0 in Hz.
	DomainLinear Domain = "linear"
)

func ParseDomain(s string) (Domain, error) {
	switch Domain(s) {
	case "", DomainLog:
		return DomainLog, nil
	case DomainLinear:
		return DomainLinear, nil
	default:
		return "", fmt.Errorf("pitch: unknown predictor domain %q (want log or linear)", s)
	}
}

// index bins one predictor output according to the domain.
func (d Domain) index(table *BinTable, v float64) (int, error) {
	if d == DomainLinear {
		return table.IndexHz(v)
	}

	return table.IndexLog(v)
}

// Targets converts an f0 contour in Hz into regression targets in domain d.
// Log targets use the same 1 Hz floor as training-target quantization.
func Targets(f0 []float64, d Domain) ([]float64, error) {
	out := make([]float64, len(f0))
	for i, v := range f0 {
		if !isFinite(v) {
			return nil, fmt.Errorf("%w: f0[%d] = %v", ErrNonFinite, i, v)
		}

		if d == DomainLinear {
			out[i] = v
			continue
		}

		out[i] = LogF0(v)
	}

	return out, nil
}
