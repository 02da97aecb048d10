package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/png"
	"math"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/ironsheep/region-lens/internal/failure"
)

// CoordinateSpace describes the logical space a box was computed in.
//
// Width and Height are the dimensions the box assumes. They may differ from
// the pixel buffer being cropped, for example when boxes come from a
// display-scaled preview of a full-resolution decode. A zero Width or Height
// means the box already uses the buffer's pixel dimensions.
type CoordinateSpace struct {
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
	Origin Origin  `json:"-"`
}

// PixelSpace is the identity space: buffer pixels, top-left origin.
var PixelSpace = CoordinateSpace{}

// ToPixels maps a box from this space into the pixel space of a buffer of
// the given size. The box is first rescaled by actual/assumed per axis and
// then, for a bottom-left space, flipped into top-left pixels.
func (s CoordinateSpace) ToPixels(b Box, actual Size) Box {
	assumedW, assumedH := s.Width, s.Height
	if assumedW <= 0 {
		assumedW = actual.Width
	}
	if assumedH <= 0 {
		assumedH = actual.Height
	}
	sx := actual.Width / assumedW
	sy := actual.Height / assumedH

	out := Box{X: b.X * sx, Y: b.Y * sy, W: b.W * sx, H: b.H * sy}
	if s.Origin == OriginBottomLeft {
		out = out.FlipVertical(actual.Height)
	}
	return out
}

// PixelRect rounds a pixel-space box outward to whole pixels and clips it to
// an image of the given bounds.
func PixelRect(b Box, bounds image.Rectangle) image.Rectangle {
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	x0 := int(math.Floor(clampFloat(b.X, -1, w+1)))
	y0 := int(math.Floor(clampFloat(b.Y, -1, h+1)))
	x1 := int(math.Ceil(clampFloat(b.Right(), -1, w+1)))
	y1 := int(math.Ceil(clampFloat(b.Bottom(), -1, h+1)))
	return image.Rect(x0, y0, x1, y1).Add(bounds.Min).Intersect(bounds)
}

// CropRegion extracts box from img and resizes it to width x height.
//
// The box is interpreted in space and reconciled to img's pixels before
// cropping; see CoordinateSpace.ToPixels. Resizing uses Lanczos.
//
// # Errors
//
//   - failure.ErrInvalidInput for a nil image or non-positive target size
//   - failure.ErrEmptyRegion when the box is degenerate or lies entirely
//     outside the image
func CropRegion(img image.Image, box Box, space CoordinateSpace, width, height int) (*image.NRGBA, error) {
	if img == nil {
		return nil, failure.Wrapf(failure.ErrInvalidInput, "crop: nil image")
	}
	if width <= 0 || height <= 0 {
		return nil, failure.Wrapf(failure.ErrInvalidInput, "crop: target size %dx%d", width, height)
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, failure.Wrapf(failure.ErrInvalidInput, "crop: empty source image")
	}

	px := space.ToPixels(box, SizeOf(img))
	if px.Empty() {
		return nil, failure.Wrapf(failure.ErrEmptyRegion, "crop: degenerate box %v", px)
	}

	rect := PixelRect(px, bounds)
	if rect.Empty() {
		return nil, failure.Wrapf(failure.ErrEmptyRegion, "crop: box %v outside image bounds %v", px, bounds)
	}

	cropped := imaging.Crop(img, rect)
	return imaging.Resize(cropped, width, height, imaging.Lanczos), nil
}

// EncodedImage is a PNG returned to MCP clients.
type EncodedImage struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// EncodePNG encodes img as a base64 PNG.
func EncodePNG(img image.Image) (*EncodedImage, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.Wrap(err, "failed to encode png")
	}

	return &EncodedImage{
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}

func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
