package tensor

import (
	"errors"
	"fmt"
)

// Mask marks the valid (non-padded) frames of a [batch, time] sequence
// batch. A nil *Mask means every frame is valid.
type Mask struct {
	batch int
	time  int
	valid []bool
}

// NewMask builds a mask from row-major valid flags of shape [batch, time].
func NewMask(valid []bool, batch, time int) (*Mask, error) {
	if batch < 0 || time < 0 {
		return nil, fmt.Errorf("tensor: mask shape [%d %d] has negative dimension", batch, time)
	}

	if len(valid) != batch*time {
		return nil, fmt.Errorf("tensor: mask has %d flags, want %d for shape [%d %d]", len(valid), batch*time, batch, time)
	}

	return &Mask{batch: batch, time: time, valid: append([]bool(nil), valid...)}, nil
}

// MaskFromLengths marks the first lengths[b] frames of every row as valid.
func MaskFromLengths(lengths []int, maxLen int) (*Mask, error) {
	if maxLen < 0 {
		return nil, fmt.Errorf("tensor: mask max length %d is negative", maxLen)
	}

	valid := make([]bool, len(lengths)*maxLen)
	for b, n := range lengths {
		if n < 0 || n > maxLen {
			return nil, fmt.Errorf("tensor: length %d at row %d outside [0, %d]", n, b, maxLen)
		}

		for t := range n {
			valid[b*maxLen+t] = true
		}
	}

	return &Mask{batch: len(lengths), time: maxLen, valid: valid}, nil
}

func (m *Mask) Batch() int { return m.batch }

func (m *Mask) Time() int { return m.time }

// Valid reports whether frame t of row b is a real frame. A nil mask treats
// every frame as valid.
func (m *Mask) Valid(b, t int) bool {
	if m == nil {
		return true
	}

	return m.valid[b*m.time+t]
}

// ValidCount returns the number of valid frames.
func (m *Mask) ValidCount() int {
	n := 0
	for _, v := range m.valid {
		if v {
			n++
		}
	}

	return n
}

// Lengths returns the number of valid frames per row.
func (m *Mask) Lengths() []int {
	out := make([]int, m.batch)
	for b := range m.batch {
		for t := range m.time {
			if m.valid[b*m.time+t] {
				out[b]++
			}
		}
	}

	return out
}

// Float32 returns the mask as 1 (valid) / 0 (padded) values.
func (m *Mask) Float32() []float32 {
	out := make([]float32, len(m.valid))
	for i, v := range m.valid {
		if v {
			out[i] = 1
		}
	}

	return out
}

// CheckShape verifies that x starts with the mask's [batch, time] dims.
func (m *Mask) CheckShape(x *Tensor) error {
	if m == nil {
		return nil
	}

	if x == nil {
		return errors.New("tensor: mask check on nil tensor")
	}

	if x.Rank() < 2 || x.shape[0] != int64(m.batch) || x.shape[1] != int64(m.time) {
		return fmt.Errorf("tensor: mask shape [%d %d] does not match tensor shape %v", m.batch, m.time, x.shape)
	}

	return nil
}

// MaskedFill returns a copy of x, shaped [batch, time, ...], with every
// element of an invalid frame set to value.
func MaskedFill(x *Tensor, m *Mask, value float32) (*Tensor, error) {
	if x == nil {
		return nil, errors.New("tensor: masked fill input is nil")
	}

	if m == nil {
		return x.Clone(), nil
	}

	if err := m.CheckShape(x); err != nil {
		return nil, err
	}

	out := x.Clone()

	inner := len(out.data) / max(m.batch*m.time, 1)
	for i, ok := range m.valid {
		if ok {
			continue
		}

		frame := out.data[i*inner : (i+1)*inner]
		for j := range frame {
			frame[j] = value
		}
	}

	return out, nil
}
