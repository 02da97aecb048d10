package imaging

import (
	"fmt"
	"image"
	"math"
	"strings"
)

// Size is a width and height in pixels or logical points.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// SizeOf returns the pixel dimensions of img.
func SizeOf(img image.Image) Size {
	b := img.Bounds()
	return Size{Width: float64(b.Dx()), Height: float64(b.Dy())}
}

// Valid reports whether both dimensions are finite and positive.
func (s Size) Valid() bool {
	return s.Width > 0 && s.Height > 0 && !math.IsInf(s.Width, 0) && !math.IsInf(s.Height, 0)
}

// Box is an axis-aligned rectangle in corner form: (X, Y) is the corner
// nearest the origin and W, H extend away from it. Unless stated otherwise a
// Box uses the top-left origin convention of image.Image.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"width"`
	H float64 `json:"height"`
}

// Right returns X+W.
func (b Box) Right() float64 { return b.X + b.W }

// Bottom returns Y+H.
func (b Box) Bottom() float64 { return b.Y + b.H }

// Empty reports whether the box has no area or a non-finite coordinate.
func (b Box) Empty() bool {
	for _, v := range []float64{b.X, b.Y, b.W, b.H} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return b.W <= 0 || b.H <= 0
}

// FlipVertical mirrors the box between the top-left and bottom-left origin
// conventions inside a surface of the given height. The operation is its own
// inverse.
func (b Box) FlipVertical(height float64) Box {
	b.Y = height - b.Y - b.H
	return b
}

func (b Box) String() string {
	return fmt.Sprintf("(x=%.2f, y=%.2f, w=%.2f, h=%.2f)", b.X, b.Y, b.W, b.H)
}

// Origin names the vertical-origin convention of a coordinate space.
type Origin int

const (
	// OriginTopLeft has Y growing downward, as in image.Image.
	OriginTopLeft Origin = iota
	// OriginBottomLeft has Y growing upward, as in Core Graphics surfaces.
	OriginBottomLeft
)

func (o Origin) String() string {
	if o == OriginBottomLeft {
		return "bottom-left"
	}
	return "top-left"
}

// ParseOrigin accepts "top-left" or "bottom-left". An empty string means top-left.
func ParseOrigin(s string) (Origin, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "top-left", "topleft":
		return OriginTopLeft, nil
	case "bottom-left", "bottomleft":
		return OriginBottomLeft, nil
	default:
		return OriginTopLeft, fmt.Errorf("unknown origin %q", s)
	}
}
