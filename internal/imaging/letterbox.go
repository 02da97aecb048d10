package imaging

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/region-lens/internal/failure"
)

// LetterboxFill is the background value of the letterbox border: mid gray
// (114,114,114), the value YOLO-family detectors are trained with.
var LetterboxFill = color.NRGBA{R: 114, G: 114, B: 114, A: 255}

// Transform maps between an original image and a fixed canvas that holds the
// image scaled without distortion and centered, with the remaining border
// filled by LetterboxFill.
//
// Invariant: Scale = min(CanvasWidth/origWidth, CanvasHeight/origHeight) and
// the content rectangle is centered in the canvas.
type Transform struct {
	Scale         float64 `json:"scale"`
	CanvasWidth   float64 `json:"canvas_width"`
	CanvasHeight  float64 `json:"canvas_height"`
	OffsetX       float64 `json:"offset_x"`
	OffsetY       float64 `json:"offset_y"`
	ContentWidth  float64 `json:"content_width"`
	ContentHeight float64 `json:"content_height"`
}

// ComputeLetterbox returns the transform that fits original into canvas.
//
// Both sizes must have positive dimensions; otherwise the error wraps
// failure.ErrInvalidInput.
func ComputeLetterbox(original, canvas Size) (Transform, error) {
	if !original.Valid() {
		return Transform{}, failure.Wrapf(failure.ErrInvalidInput,
			"letterbox: source size %.0fx%.0f", original.Width, original.Height)
	}
	if !canvas.Valid() {
		return Transform{}, failure.Wrapf(failure.ErrInvalidInput,
			"letterbox: canvas size %.0fx%.0f", canvas.Width, canvas.Height)
	}

	scale := math.Min(canvas.Width/original.Width, canvas.Height/original.Height)
	contentW := original.Width * scale
	contentH := original.Height * scale

	return Transform{
		Scale:         scale,
		CanvasWidth:   canvas.Width,
		CanvasHeight:  canvas.Height,
		OffsetX:       (canvas.Width - contentW) / 2,
		OffsetY:       (canvas.Height - contentH) / 2,
		ContentWidth:  contentW,
		ContentHeight: contentH,
	}, nil
}

// Validate reports failure.ErrInvalidState for a transform that cannot be
// inverted.
func (t Transform) Validate() error {
	if !(t.Scale > 0) || math.IsInf(t.Scale, 0) {
		return failure.Wrapf(failure.ErrInvalidState, "letterbox: scale %v", t.Scale)
	}
	return nil
}

// ContentRect returns the padded content rectangle in canvas pixels.
func (t Transform) ContentRect() Box {
	return Box{X: t.OffsetX, Y: t.OffsetY, W: t.ContentWidth, H: t.ContentHeight}
}

// ToCanvas maps a box from original-image pixels to canvas pixels.
func (t Transform) ToCanvas(b Box) Box {
	return Box{
		X: b.X*t.Scale + t.OffsetX,
		Y: b.Y*t.Scale + t.OffsetY,
		W: b.W * t.Scale,
		H: b.H * t.Scale,
	}
}

// ToOriginal maps a box from canvas pixels back to original-image pixels:
// subtract the content offset, then divide by the scale.
func (t Transform) ToOriginal(b Box) Box {
	return Box{
		X: (b.X - t.OffsetX) / t.Scale,
		Y: (b.Y - t.OffsetY) / t.Scale,
		W: b.W / t.Scale,
		H: b.H / t.Scale,
	}
}

// Letterbox renders img onto a canvas described by t.
//
// The content is resized with Lanczos to the rounded content size and pasted
// at the rounded offset, so the rendered placement may differ from the exact
// float transform by at most half a pixel.
func Letterbox(img image.Image, t Transform) (*image.NRGBA, error) {
	if img == nil {
		return nil, failure.Wrapf(failure.ErrInvalidInput, "letterbox: nil image")
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	cw := int(math.Round(t.CanvasWidth))
	ch := int(math.Round(t.CanvasHeight))
	contentW := max(1, int(math.Round(t.ContentWidth)))
	contentH := max(1, int(math.Round(t.ContentHeight)))

	canvas := imaging.New(cw, ch, LetterboxFill)
	resized := imaging.Resize(img, contentW, contentH, imaging.Lanczos)
	if resized.Bounds().Empty() {
		return nil, failure.Wrapf(failure.ErrDecodeFailure, "letterbox: resize to %dx%d", contentW, contentH)
	}

	pos := image.Pt(int(math.Round(t.OffsetX)), int(math.Round(t.OffsetY)))
	return imaging.Paste(canvas, resized, pos), nil
}
