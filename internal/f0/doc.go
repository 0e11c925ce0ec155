// Package f0 extracts fundamental-frequency contours from waveforms and
// persists precomputed contours.
//
// A contour holds one value per analysis frame in Hz. Zero marks an
// unvoiced frame. The frame period must match the hop size of the acoustic
// front-end so that contours line up 1:1 with feature frames; see
// [FramePeriodForHop].
package f0
