// Package imaging implements the image-space stages of the recognition
// pipeline: letterboxing, tensor encoding, region cropping and overlay
// rendering, plus a small cache of decoded photos.
//
// # Coordinate System
//
// Boxes are float64 corner-form rectangles (see Box) in pixels with the
// origin at the top-left, X growing rightward and Y growing downward. Boxes
// produced for a bottom-left surface are tagged with OriginBottomLeft and
// flipped with Box.FlipVertical before they touch pixels.
//
// Three spaces appear in the pipeline:
//   - original: the decoded photo's pixel grid
//   - canvas: the fixed detector input produced by Letterbox
//   - logical: the space a caller computed boxes in, described by
//     CoordinateSpace, which may be scaled relative to the pixels
//
// Transform maps between original and canvas; CoordinateSpace.ToPixels maps
// logical boxes onto a buffer.
//
// # Thread Safety
//
// Every function here is pure with respect to its inputs; source images are
// never written. PhotoCache is safe for concurrent use.
//
// # Errors
//
// Failures wrap the sentinels in the failure package so callers can test
// them with errors.Is.
package imaging
