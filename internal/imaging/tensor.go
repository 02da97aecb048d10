package imaging

import (
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/region-lens/internal/failure"
)

// Channels is the number of color channels in every tensor. Alpha is dropped.
const Channels = 3

// Layout is the memory order of a tensor.
type Layout int

const (
	// LayoutNHWC stores pixels row by row with interleaved channels.
	LayoutNHWC Layout = iota
	// LayoutNCHW stores one full plane per channel.
	LayoutNCHW
)

// ChannelOrder is the order of the color channels within a pixel or plane.
type ChannelOrder int

const (
	// OrderRGB places red first.
	OrderRGB ChannelOrder = iota
	// OrderBGR places blue first, as BGRA pixel buffers do.
	OrderBGR
)

// ValueRange is the numeric range 8-bit samples are mapped into.
type ValueRange int

const (
	// RangeZeroToOne maps 0..255 to 0..1.
	RangeZeroToOne ValueRange = iota
	// RangeMinusOneToOne maps 0..255 to -1..1.
	RangeMinusOneToOne
)

// TensorSpec declares the input an inference engine expects.
type TensorSpec struct {
	Width  int
	Height int
	Layout Layout
	Order  ChannelOrder
	Range  ValueRange
}

// Tensor is an encoded image. Data holds Width*Height*Channels values in the
// spec's layout; the batch dimension is always 1.
type Tensor struct {
	Spec TensorSpec
	Data []float32
}

// Shape returns the 4-D shape of the tensor for the spec's layout.
func (t *Tensor) Shape() []int {
	if t.Spec.Layout == LayoutNCHW {
		return []int{1, Channels, t.Spec.Height, t.Spec.Width}
	}
	return []int{1, t.Spec.Height, t.Spec.Width, Channels}
}

// Encode converts img into the tensor layout described by spec.
//
// When the image size differs from the spec, it is resized with Lanczos first.
// Samples are straight (non-premultiplied) 8-bit values mapped into
// spec.Range; alpha is ignored.
func Encode(img image.Image, spec TensorSpec) (*Tensor, error) {
	if img == nil {
		return nil, failure.Wrapf(failure.ErrInvalidInput, "encode: nil image")
	}
	if spec.Width <= 0 || spec.Height <= 0 {
		return nil, failure.Wrapf(failure.ErrInvalidInput, "encode: target size %dx%d", spec.Width, spec.Height)
	}
	if img.Bounds().Empty() {
		return nil, failure.Wrapf(failure.ErrDecodeFailure, "encode: empty source image")
	}

	var src *image.NRGBA
	if b := img.Bounds(); b.Dx() == spec.Width && b.Dy() == spec.Height {
		src = imaging.Clone(img)
	} else {
		src = imaging.Resize(img, spec.Width, spec.Height, imaging.Lanczos)
	}
	if src.Bounds().Dx() != spec.Width || src.Bounds().Dy() != spec.Height {
		return nil, failure.Wrapf(failure.ErrDecodeFailure, "encode: resized to %v, want %dx%d",
			src.Bounds().Size(), spec.Width, spec.Height)
	}

	data := make([]float32, spec.Width*spec.Height*Channels)
	order := channelIndexes(spec.Order)
	for y := 0; y < spec.Height; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < spec.Width; x++ {
			px := row[x*4 : x*4+3]
			for c := 0; c < Channels; c++ {
				data[spec.index(x, y, c)] = spec.Range.normalize(px[order[c]])
			}
		}
	}

	return &Tensor{Spec: spec, Data: data}, nil
}

// Decode applies the inverse of Encode and returns an opaque image.
func Decode(t *Tensor) (*image.NRGBA, error) {
	if t == nil {
		return nil, failure.Wrapf(failure.ErrInvalidInput, "decode: nil tensor")
	}
	spec := t.Spec
	if spec.Width <= 0 || spec.Height <= 0 {
		return nil, failure.Wrapf(failure.ErrInvalidInput, "decode: tensor size %dx%d", spec.Width, spec.Height)
	}
	if want := spec.Width * spec.Height * Channels; len(t.Data) != want {
		return nil, failure.Wrapf(failure.ErrDecodeFailure, "decode: %d values, want %d", len(t.Data), want)
	}

	img := image.NewNRGBA(image.Rect(0, 0, spec.Width, spec.Height))
	order := channelIndexes(spec.Order)
	for y := 0; y < spec.Height; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < spec.Width; x++ {
			px := row[x*4 : x*4+4]
			for c := 0; c < Channels; c++ {
				px[order[c]] = spec.Range.denormalize(t.Data[spec.index(x, y, c)])
			}
			px[3] = 0xff
		}
	}
	return img, nil
}

func (s TensorSpec) index(x, y, c int) int {
	if s.Layout == LayoutNCHW {
		return c*s.Width*s.Height + y*s.Width + x
	}
	return (y*s.Width+x)*Channels + c
}

// channelIndexes maps tensor channel position to the NRGBA byte offset.
func channelIndexes(o ChannelOrder) [Channels]int {
	if o == OrderBGR {
		return [Channels]int{2, 1, 0}
	}
	return [Channels]int{0, 1, 2}
}

func (r ValueRange) normalize(v uint8) float32 {
	if r == RangeMinusOneToOne {
		return float32(v)/127.5 - 1
	}
	return float32(v) / 255
}

func (r ValueRange) denormalize(f float32) uint8 {
	var v float64
	if r == RangeMinusOneToOne {
		v = (float64(f) + 1) * 127.5
	} else {
		v = float64(f) * 255
	}
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.Round(v))
}

// ParseLayout accepts "nhwc" or "nchw".
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(s) {
	case "", "nhwc":
		return LayoutNHWC, nil
	case "nchw":
		return LayoutNCHW, nil
	}
	return LayoutNHWC, fmt.Errorf("unknown tensor layout %q", s)
}

// ParseChannelOrder accepts "rgb" or "bgr".
func ParseChannelOrder(s string) (ChannelOrder, error) {
	switch strings.ToLower(s) {
	case "", "rgb":
		return OrderRGB, nil
	case "bgr":
		return OrderBGR, nil
	}
	return OrderRGB, fmt.Errorf("unknown channel order %q", s)
}

// ParseValueRange accepts "zeroone" (0..1) or "minusone" (-1..1).
func ParseValueRange(s string) (ValueRange, error) {
	switch strings.ToLower(s) {
	case "zeroone", "0..1":
		return RangeZeroToOne, nil
	case "", "minusone", "-1..1":
		return RangeMinusOneToOne, nil
	}
	return RangeMinusOneToOne, fmt.Errorf("unknown value range %q", s)
}
