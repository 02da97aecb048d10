package imaging

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/ironsheep/region-lens/internal/failure"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	src := createGradientImage(16, 12)

	for _, layout := range []Layout{LayoutNHWC, LayoutNCHW} {
		for _, order := range []ChannelOrder{OrderRGB, OrderBGR} {
			for _, rng := range []ValueRange{RangeZeroToOne, RangeMinusOneToOne} {
				spec := TensorSpec{Width: 16, Height: 12, Layout: layout, Order: order, Range: rng}
				t.Run(fmt.Sprintf("%d/%d/%d", layout, order, rng), func(t *testing.T) {
					tensor, err := Encode(src, spec)
					if err != nil {
						t.Fatalf("Encode failed: %v", err)
					}
					out, err := Decode(tensor)
					if err != nil {
						t.Fatalf("Decode failed: %v", err)
					}
					for i := 0; i < len(src.Pix); i += 4 {
						for c := 0; c < 3; c++ {
							d := int(src.Pix[i+c]) - int(out.Pix[i+c])
							if d < -1 || d > 1 {
								t.Fatalf("byte %d channel %d: got %d, want %d", i/4, c, out.Pix[i+c], src.Pix[i+c])
							}
						}
					}
				})
			}
		}
	}
}

func TestEncode_LayoutAndRange(t *testing.T) {
	img := createInMemoryImage(2, 1, red)

	nhwc, err := Encode(img, TensorSpec{Width: 2, Height: 1, Layout: LayoutNHWC, Order: OrderRGB, Range: RangeMinusOneToOne})
	if err != nil {
		t.Fatal(err)
	}
	want := []float32{1, -1, -1, 1, -1, -1}
	for i, v := range want {
		if nhwc.Data[i] != v {
			t.Errorf("NHWC[%d]: got %v, want %v", i, nhwc.Data[i], v)
		}
	}

	nchw, err := Encode(img, TensorSpec{Width: 2, Height: 1, Layout: LayoutNCHW, Order: OrderBGR, Range: RangeZeroToOne})
	if err != nil {
		t.Fatal(err)
	}
	// Blue plane, green plane, red plane.
	want = []float32{0, 0, 0, 0, 1, 1}
	for i, v := range want {
		if nchw.Data[i] != v {
			t.Errorf("NCHW[%d]: got %v, want %v", i, nchw.Data[i], v)
		}
	}

	if got := nchw.Shape(); got[1] != 3 || got[2] != 1 || got[3] != 2 {
		t.Errorf("NCHW shape: got %v", got)
	}
	if got := nhwc.Shape(); got[1] != 1 || got[2] != 2 || got[3] != 3 {
		t.Errorf("NHWC shape: got %v", got)
	}
}

func TestEncode_Resizes(t *testing.T) {
	img := createInMemoryImage(100, 50, blue)
	tensor, err := Encode(img, TensorSpec{Width: 8, Height: 8})
	if err != nil {
		t.Fatal(err)
	}
	if len(tensor.Data) != 8*8*Channels {
		t.Errorf("data length: got %d, want %d", len(tensor.Data), 8*8*Channels)
	}
}

func TestEncode_Errors(t *testing.T) {
	if _, err := Encode(nil, TensorSpec{Width: 1, Height: 1}); !errors.Is(err, failure.ErrInvalidInput) {
		t.Errorf("nil image: got %v", err)
	}
	img := createInMemoryImage(4, 4, red)
	if _, err := Encode(img, TensorSpec{Width: 0, Height: 4}); !errors.Is(err, failure.ErrInvalidInput) {
		t.Errorf("zero width: got %v", err)
	}
}

func TestDecode_Errors(t *testing.T) {
	if _, err := Decode(nil); !errors.Is(err, failure.ErrInvalidInput) {
		t.Errorf("nil tensor: got %v", err)
	}
	bad := &Tensor{Spec: TensorSpec{Width: 2, Height: 2}, Data: make([]float32, 5)}
	if _, err := Decode(bad); !errors.Is(err, failure.ErrDecodeFailure) {
		t.Errorf("short data: got %v", err)
	}
}

func TestDecode_ClampsOutOfRange(t *testing.T) {
	nan := float32(math.NaN())
	tensor := &Tensor{
		Spec: TensorSpec{Width: 1, Height: 1, Range: RangeZeroToOne},
		Data: []float32{2, -3, nan},
	}
	img, err := Decode(tensor)
	if err != nil {
		t.Fatal(err)
	}
	if got := img.Pix[:4]; got[0] != 255 || got[1] != 0 || got[2] != 0 || got[3] != 255 {
		t.Errorf("got %v, want [255 0 0 255]", got)
	}
}

func TestParseTensorOptions(t *testing.T) {
	if l, err := ParseLayout("NCHW"); err != nil || l != LayoutNCHW {
		t.Errorf("ParseLayout(NCHW) = %v, %v", l, err)
	}
	if o, err := ParseChannelOrder("bgr"); err != nil || o != OrderBGR {
		t.Errorf("ParseChannelOrder(bgr) = %v, %v", o, err)
	}
	if r, err := ParseValueRange(""); err != nil || r != RangeMinusOneToOne {
		t.Errorf("ParseValueRange(\"\") = %v, %v", r, err)
	}
	if _, err := ParseLayout("chw"); err == nil {
		t.Error("ParseLayout should reject unknown layout")
	}
	if _, err := ParseValueRange("0..2"); err == nil {
		t.Error("ParseValueRange should reject unknown range")
	}
}
