package detection

import (
	"fmt"
	"math"
	"strings"

	"github.com/ironsheep/region-lens/internal/failure"
	"github.com/ironsheep/region-lens/internal/imaging"
)

// DefaultThreshold is the confidence a raw detection must strictly exceed to
// be retained.
const DefaultThreshold = 0.25

// Units says what the raw box coordinates are measured in.
type Units int

const (
	// UnitsNormalized coordinates are fractions (0..1) of the canvas.
	UnitsNormalized Units = iota
	// UnitsCanvasPixels coordinates are canvas pixels.
	UnitsCanvasPixels
)

// Form says how the four raw box values are arranged.
type Form int

const (
	// FormCenter is (cx, cy, w, h).
	FormCenter Form = iota
	// FormCorner is (x, y, w, h) with (x, y) the top-left corner.
	FormCorner
)

// BoxFormat is the raw output contract of a detector. The zero value is
// normalized center form.
type BoxFormat struct {
	Units Units
	Form  Form
}

func (f BoxFormat) String() string {
	u, fm := "normalized", "center"
	if f.Units == UnitsCanvasPixels {
		u = "pixels"
	}
	if f.Form == FormCorner {
		fm = "corner"
	}
	return u + "/" + fm
}

// ParseUnits accepts "normalized" or "pixels".
func ParseUnits(s string) (Units, error) {
	switch strings.ToLower(s) {
	case "", "normalized":
		return UnitsNormalized, nil
	case "pixels", "canvas", "canvas_pixels":
		return UnitsCanvasPixels, nil
	}
	return UnitsNormalized, fmt.Errorf("unknown box units %q", s)
}

// ParseForm accepts "center" or "corner".
func ParseForm(s string) (Form, error) {
	switch strings.ToLower(s) {
	case "", "center":
		return FormCenter, nil
	case "corner":
		return FormCorner, nil
	}
	return FormCenter, fmt.Errorf("unknown box form %q", s)
}

// RawOutput is what a detector engine returns: one box and one score per
// detection, in emission order.
type RawOutput struct {
	Boxes  [][4]float32
	Scores []float32
}

// Len returns the number of raw detections.
func (r RawOutput) Len() int { return len(r.Boxes) }

// Region is a retained detection in original-image pixels.
type Region struct {
	// Index is the position in the retained list, in emission order.
	Index      int         `json:"index"`
	Box        imaging.Box `json:"box"`
	Confidence float64     `json:"confidence"`
}

// DecodeOptions controls Decode.
type DecodeOptions struct {
	// Threshold is the exclusive lower bound on the score.
	Threshold float64
	Format    BoxFormat
}

// DefaultDecodeOptions returns the threshold and format of the bundled detector.
func DefaultDecodeOptions() DecodeOptions {
	return DecodeOptions{Threshold: DefaultThreshold}
}

// Decode turns raw detector output into regions in the original image.
//
// A detection is kept iff its score is strictly above opts.Threshold. Kept
// boxes are converted to canvas-pixel corner form, mapped back through t and
// clamped into the original image with ClampToImage. Emission order is
// preserved; regions are never re-sorted by confidence.
func Decode(raw RawOutput, t imaging.Transform, original imaging.Size, opts DecodeOptions) ([]Region, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if !original.Valid() {
		return nil, failure.Wrapf(failure.ErrInvalidInput,
			"decode: original size %.0fx%.0f", original.Width, original.Height)
	}
	if len(raw.Boxes) != len(raw.Scores) {
		return nil, failure.Wrapf(failure.ErrInvalidInput,
			"decode: %d boxes but %d scores", len(raw.Boxes), len(raw.Scores))
	}

	regions := make([]Region, 0, len(raw.Boxes))
	for i, rb := range raw.Boxes {
		score := float64(raw.Scores[i])
		if !(score > opts.Threshold) {
			continue
		}
		canvasBox := toCanvasCorner(rb, t, opts.Format)
		regions = append(regions, Region{
			Index:      len(regions),
			Box:        ClampToImage(t.ToOriginal(canvasBox), original),
			Confidence: math.Max(0, math.Min(1, score)),
		})
	}
	return regions, nil
}

func toCanvasCorner(rb [4]float32, t imaging.Transform, f BoxFormat) imaging.Box {
	var v [4]float64
	for i, x := range rb {
		v[i] = finite(float64(x))
	}
	if f.Units == UnitsNormalized {
		v[0] *= t.CanvasWidth
		v[1] *= t.CanvasHeight
		v[2] *= t.CanvasWidth
		v[3] *= t.CanvasHeight
	}
	if f.Form == FormCenter {
		v[0] -= v[2] / 2
		v[1] -= v[3] / 2
	}
	return imaging.Box{X: v[0], Y: v[1], W: v[2], H: v[3]}
}

// ClampToImage clips b to an image of the given size. X and Y land in
// [0, W-1] and [0, H-1]; width and height are clipped so the box ends inside
// the image. A box with no extent left inside the image, on any side, is
// pinned to one pixel at the nearest edge. Non-finite values become 0.
// Applying it twice gives the same box.
func ClampToImage(b imaging.Box, size imaging.Size) imaging.Box {
	x, y := finite(b.X), finite(b.Y)
	left := math.Max(x, 0)
	top := math.Max(y, 0)
	right := math.Min(x+finite(b.W), size.Width)
	bottom := math.Min(y+finite(b.H), size.Height)

	left = math.Min(left, size.Width-1)
	top = math.Min(top, size.Height-1)

	return imaging.Box{
		X: left,
		Y: top,
		W: extent(left, right, size.Width),
		H: extent(top, bottom, size.Height),
	}
}

func extent(lo, hi, limit float64) float64 {
	if hi <= lo {
		return math.Min(1, limit-lo)
	}
	return hi - lo
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// ParseFlat adapts the flat arrays many engines emit: 4 coordinates per box
// followed by classes scores per box. The score of a box is its largest
// class score.
func ParseFlat(coords []float32, scores []float32, classes int) (RawOutput, error) {
	if classes <= 0 {
		return RawOutput{}, failure.Wrapf(failure.ErrInvalidInput, "parse: %d classes", classes)
	}
	if len(coords)%4 != 0 {
		return RawOutput{}, failure.Wrapf(failure.ErrInvalidInput,
			"parse: %d coordinates is not a multiple of 4", len(coords))
	}
	n := len(coords) / 4
	if len(scores) != n*classes {
		return RawOutput{}, failure.Wrapf(failure.ErrInvalidInput,
			"parse: %d scores for %d boxes of %d classes", len(scores), n, classes)
	}

	out := RawOutput{
		Boxes:  make([][4]float32, n),
		Scores: make([]float32, n),
	}
	for i := 0; i < n; i++ {
		copy(out.Boxes[i][:], coords[i*4:i*4+4])
		best := float32(math.NaN())
		for _, s := range scores[i*classes : (i+1)*classes] {
			if s == s && (best != best || s > best) {
				best = s
			}
		}
		out.Scores[i] = best
	}
	return out, nil
}
