package imaging

import (
	"errors"
	"math"
	"testing"

	"github.com/ironsheep/region-lens/internal/failure"
)

const eps = 1e-9

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestComputeLetterbox(t *testing.T) {
	tests := []struct {
		name             string
		original, canvas Size
		scale, ox, oy    float64
	}{
		{"landscape", Size{1000, 800}, Size{640, 640}, 0.64, 0, 64},
		{"portrait", Size{800, 1600}, Size{640, 640}, 0.4, 160, 0},
		{"square", Size{320, 320}, Size{640, 640}, 2, 0, 0},
		{"non-square canvas", Size{100, 100}, Size{480, 240}, 2.4, 120, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := ComputeLetterbox(tt.original, tt.canvas)
			if err != nil {
				t.Fatalf("ComputeLetterbox failed: %v", err)
			}
			if !approx(tr.Scale, tt.scale) {
				t.Errorf("Scale: got %v, want %v", tr.Scale, tt.scale)
			}
			if !approx(tr.OffsetX, tt.ox) || !approx(tr.OffsetY, tt.oy) {
				t.Errorf("offset: got (%v,%v), want (%v,%v)", tr.OffsetX, tr.OffsetY, tt.ox, tt.oy)
			}
			if tr.ContentWidth > tr.CanvasWidth+eps || tr.ContentHeight > tr.CanvasHeight+eps {
				t.Errorf("content %vx%v exceeds canvas", tr.ContentWidth, tr.ContentHeight)
			}
			// Content is centered.
			if !approx(tr.OffsetX*2+tr.ContentWidth, tr.CanvasWidth) {
				t.Errorf("content not centered horizontally: %+v", tr)
			}
			if !approx(tr.OffsetY*2+tr.ContentHeight, tr.CanvasHeight) {
				t.Errorf("content not centered vertically: %+v", tr)
			}
		})
	}
}

func TestComputeLetterbox_InvalidSize(t *testing.T) {
	tests := []struct {
		name             string
		original, canvas Size
	}{
		{"zero width", Size{0, 100}, Size{640, 640}},
		{"negative height", Size{100, -1}, Size{640, 640}},
		{"zero canvas", Size{100, 100}, Size{0, 0}},
		{"infinite", Size{math.Inf(1), 100}, Size{640, 640}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeLetterbox(tt.original, tt.canvas)
			if !errors.Is(err, failure.ErrInvalidInput) {
				t.Errorf("got %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestTransform_RoundTrip(t *testing.T) {
	tr, err := ComputeLetterbox(Size{1000, 800}, Size{640, 640})
	if err != nil {
		t.Fatal(err)
	}

	// Content corners map to original corners.
	full := tr.ToOriginal(tr.ContentRect())
	if !approx(full.X, 0) || !approx(full.Y, 0) || !approx(full.W, 1000) || !approx(full.H, 800) {
		t.Errorf("content rect maps to %v, want full image", full)
	}

	b := Box{X: 450, Y: 350, W: 100, H: 100}
	back := tr.ToOriginal(tr.ToCanvas(b))
	if !approx(back.X, b.X) || !approx(back.Y, b.Y) || !approx(back.W, b.W) || !approx(back.H, b.H) {
		t.Errorf("round trip: got %v, want %v", back, b)
	}

	// Canvas box (288,288,64,64) is the center 10% of the canvas.
	got := tr.ToOriginal(Box{X: 288, Y: 288, W: 64, H: 64})
	want := Box{X: 450, Y: 350, W: 100, H: 100}
	if !approx(got.X, want.X) || !approx(got.Y, want.Y) || !approx(got.W, want.W) || !approx(got.H, want.H) {
		t.Errorf("ToOriginal: got %v, want %v", got, want)
	}
}

func TestTransform_Validate(t *testing.T) {
	for _, s := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if err := (Transform{Scale: s}).Validate(); !errors.Is(err, failure.ErrInvalidState) {
			t.Errorf("scale %v: got %v, want ErrInvalidState", s, err)
		}
	}
	if err := (Transform{Scale: 0.5}).Validate(); err != nil {
		t.Errorf("valid transform rejected: %v", err)
	}
}

func TestLetterbox(t *testing.T) {
	img := createInMemoryImage(200, 100, red)
	tr, err := ComputeLetterbox(SizeOf(img), Size{64, 64})
	if err != nil {
		t.Fatal(err)
	}

	canvas, err := Letterbox(img, tr)
	if err != nil {
		t.Fatalf("Letterbox failed: %v", err)
	}
	if canvas.Bounds().Dx() != 64 || canvas.Bounds().Dy() != 64 {
		t.Fatalf("canvas size: got %v, want 64x64", canvas.Bounds().Size())
	}

	// Content occupies rows 16..47; the rest is fill.
	if c := canvas.NRGBAAt(32, 2); c != LetterboxFill {
		t.Errorf("border pixel: got %v, want %v", c, LetterboxFill)
	}
	if c := canvas.NRGBAAt(32, 61); c != LetterboxFill {
		t.Errorf("bottom border pixel: got %v, want %v", c, LetterboxFill)
	}
	if !sameColor(canvas.NRGBAAt(32, 32), red) {
		t.Errorf("content pixel: got %v, want red", canvas.NRGBAAt(32, 32))
	}
}

func TestLetterbox_Errors(t *testing.T) {
	if _, err := Letterbox(nil, Transform{Scale: 1, CanvasWidth: 10, CanvasHeight: 10}); !errors.Is(err, failure.ErrInvalidInput) {
		t.Errorf("nil image: got %v, want ErrInvalidInput", err)
	}
	img := createInMemoryImage(10, 10, red)
	if _, err := Letterbox(img, Transform{}); !errors.Is(err, failure.ErrInvalidState) {
		t.Errorf("zero transform: got %v, want ErrInvalidState", err)
	}
}
