// Package pitch quantizes f0 contours into log-spaced one-hot bins and wraps
// a per-frame sequence predictor so that its outputs are bucketed against the
// same bin table used for training targets.
//
// A BinTable is built once from (p_min, p_max, n_bins) and shared by the
// Quantizer (training targets) and the Predictor (inference). Values are
// binned with right-open intervals: a value equal to an edge lands in the
// bin above it.
package pitch
