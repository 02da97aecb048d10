// Package detection runs the first stage of the pipeline: it prepares the
// detector input and turns raw engine output back into regions of the
// original photo.
//
// # Raw Output Contract
//
// Engines return one box and one score per detection (RawOutput). The box
// layout is declared by BoxFormat; the default is normalized center form,
// (cx, cy, w, h) as fractions of the square canvas.
//
// # Restoration
//
// A retained box is converted to canvas pixels, mapped through the inverse
// letterbox transform and clamped into the original image:
//
//	x' = (x - offsetX) / scale
//	y' = (y - offsetY) / scale
//
// so that every region satisfies 0 <= x <= W-1, 0 <= y <= H-1, x+w <= W and
// y+h <= H. Regions keep the engine's emission order.
package detection
