package pitch

import "errors"

var (
	ErrInvalidBounds    = errors.New("pitch: invalid pitch bounds")
	ErrInvalidBins      = errors.New("pitch: invalid bin count")
	ErrOutOfRange       = errors.New("pitch: bin index out of range")
	ErrNonFinite        = errors.New("pitch: non-finite value")
	ErrEmptyMask        = errors.New("pitch: mask has no valid frames")
	ErrShapeMismatch    = errors.New("pitch: shape mismatch")
	ErrBinTableMismatch = errors.New("pitch: checkpoint bin table does not match configuration")
	ErrEmptyContour     = errors.New("pitch: empty f0 contour")
)
