package imaging

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"

	"github.com/anthonynsimon/bild/clone"
	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Annotation is one box to draw with its caption.
type Annotation struct {
	Box        Box
	Label      string
	Confidence float64
}

// OverlayOptions controls RenderOverlay.
type OverlayOptions struct {
	// StrokeWidth is the box outline width in pixels. Zero means 3.
	StrokeWidth int

	// Origin is the vertical convention of the annotation boxes. Bottom-left
	// boxes get the same flip CropRegion applies before they are drawn.
	Origin Origin

	// Color fixes the box color. When nil each region gets its own color
	// from RegionColor.
	Color color.Color
}

const (
	defaultStroke = 3
	captionGap    = 20
	captionMinY   = 5
	captionPad    = 2
)

var captionFace = basicfont.Face7x13

// Caption formats the text drawn next to a box, e.g. "apple (0.83)".
func Caption(label string, confidence float64) string {
	if label == "" {
		label = "Unknown"
	}
	return fmt.Sprintf("%s (%.2f)", label, confidence)
}

// RegionColor returns a distinct, saturated color for the i-th region. Hues
// are spread by the golden angle so neighbouring indices never collide.
func RegionColor(i int) color.RGBA {
	hue := math.Mod(float64(i)*137.508, 360)
	r, g, b := colorful.Hsv(hue, 0.85, 0.95).RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// RenderOverlay draws every annotation onto a copy of img. The source image
// is never modified.
//
// Each box is stroked inside its bounds; its caption sits 20 pixels above the
// box top, clamped to stay at least 5 pixels from the top edge.
func RenderOverlay(img image.Image, annotations []Annotation, opts OverlayOptions) *image.RGBA {
	dst := clone.AsRGBA(img)
	bounds := dst.Bounds()
	height := float64(bounds.Dy())

	stroke := opts.StrokeWidth
	if stroke <= 0 {
		stroke = defaultStroke
	}

	for i, a := range annotations {
		box := a.Box
		if opts.Origin == OriginBottomLeft {
			box = box.FlipVertical(height)
		}
		rect := PixelRect(box, bounds)
		if rect.Empty() {
			continue
		}

		c := RegionColor(i)
		if opts.Color != nil {
			c = color.RGBAModel.Convert(opts.Color).(color.RGBA)
		}

		strokeRect(dst, rect, stroke, c)
		drawCaption(dst, rect.Min.X, rect.Min.Y, Caption(a.Label, a.Confidence), c)
	}

	return dst
}

func strokeRect(dst *image.RGBA, r image.Rectangle, width int, c color.RGBA) {
	for i := 0; i < width; i++ {
		inner := r.Inset(i)
		if inner.Empty() {
			return
		}
		for x := inner.Min.X; x < inner.Max.X; x++ {
			dst.SetRGBA(x, inner.Min.Y, c)
			dst.SetRGBA(x, inner.Max.Y-1, c)
		}
		for y := inner.Min.Y; y < inner.Max.Y; y++ {
			dst.SetRGBA(inner.Min.X, y, c)
			dst.SetRGBA(inner.Max.X-1, y, c)
		}
	}
}

// drawCaption draws text on a filled background whose top edge is derived
// from the box top. SetRGBA ignores points outside dst, so captions near the
// right edge are clipped rather than wrapped.
func drawCaption(dst *image.RGBA, boxX, boxY int, text string, bg color.RGBA) {
	metrics := captionFace.Metrics()
	textW := font.MeasureString(captionFace, text).Ceil()
	textH := (metrics.Ascent + metrics.Descent).Ceil()

	top := max(boxY-captionGap, dst.Bounds().Min.Y+captionMinY)
	back := image.Rect(boxX, top, boxX+textW+2*captionPad, top+textH+2*captionPad)
	for y := back.Min.Y; y < back.Max.Y; y++ {
		for x := back.Min.X; x < back.Max.X; x++ {
			dst.SetRGBA(x, y, bg)
		}
	}

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: captionFace,
		Dot:  fixed.P(boxX+captionPad, top+captionPad+metrics.Ascent.Ceil()),
	}
	d.DrawString(text)
}

// ParseHexColor parses a hex color string like "#FF0000" or "#FF000080".
func ParseHexColor(hex string) (color.RGBA, error) {
	if len(hex) == 0 {
		return color.RGBA{}, fmt.Errorf("empty color string")
	}
	if hex[0] == '#' {
		hex = hex[1:]
	}

	var r, g, b, a uint8 = 0, 0, 0, 255

	switch len(hex) {
	case 6:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, err
		}
		r = uint8(val >> 16)
		g = uint8(val >> 8)
		b = uint8(val)
	case 8:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, err
		}
		r = uint8(val >> 24)
		g = uint8(val >> 16)
		b = uint8(val >> 8)
		a = uint8(val)
	default:
		return color.RGBA{}, fmt.Errorf("invalid hex color length")
	}

	return color.RGBA{R: r, G: g, B: b, A: a}, nil
}
