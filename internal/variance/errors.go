package variance

import "errors"

// ErrShapeMismatch is returned when input features or masks do not match
// the predictor's expected [B, T, D] layout.
var ErrShapeMismatch = errors.New("variance: input shape mismatch")
