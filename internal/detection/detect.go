package detection

import (
	"context"
	"image"
	"time"

	"github.com/ironsheep/region-lens/internal/failure"
	"github.com/ironsheep/region-lens/internal/imaging"
)

// Hyperparameters are passed to the detector engine on every call.
type Hyperparameters struct {
	// IoU is the overlap threshold for the engine's non-maximum suppression.
	IoU float64 `json:"iou"`
	// Confidence is the engine-side score threshold. Decode applies it again.
	Confidence float64 `json:"confidence"`
}

// Detector is a detection engine. Implementations must be safe for
// concurrent use and should return once ctx is done. A call still running
// when its deadline passes is abandoned and its output discarded.
type Detector interface {
	Detect(ctx context.Context, input *imaging.Tensor, hp Hyperparameters) (RawOutput, error)
}

// Namer is implemented by engines that want their name in error messages.
type Namer interface {
	Name() string
}

// Config configures the detection stage.
type Config struct {
	// Canvas is the side of the square detector input.
	Canvas  int
	Hyper   Hyperparameters
	Format  BoxFormat
	Layout  imaging.Layout
	Order   imaging.ChannelOrder
	Range   imaging.ValueRange
	Timeout time.Duration
}

// DefaultConfig returns a 640 canvas, IoU 0.5, confidence 0.25 and a 5s
// engine timeout.
func DefaultConfig() Config {
	return Config{
		Canvas:  640,
		Hyper:   Hyperparameters{IoU: 0.5, Confidence: DefaultThreshold},
		Range:   imaging.RangeMinusOneToOne,
		Timeout: 5 * time.Second,
	}
}

// TensorSpec returns the engine input declared by c.
func (c Config) TensorSpec() imaging.TensorSpec {
	return imaging.TensorSpec{
		Width:  c.Canvas,
		Height: c.Canvas,
		Layout: c.Layout,
		Order:  c.Order,
		Range:  c.Range,
	}
}

// Detection is the output of one detection stage.
type Detection struct {
	Transform imaging.Transform `json:"transform"`
	Regions   []Region          `json:"regions"`
	Duration  time.Duration     `json:"-"`
}

// Detect letterboxes img onto the configured canvas, encodes it, runs the
// engine under cfg.Timeout and decodes the raw output into regions of img.
//
// An engine error aborts the stage and is reported as
// failure.ErrInferenceFailure. If ctx itself is done, ctx.Err() is returned
// instead.
func Detect(ctx context.Context, d Detector, img image.Image, cfg Config) (*Detection, error) {
	start := time.Now()
	if d == nil {
		return nil, failure.Wrapf(failure.ErrInvalidInput, "detect: nil detector")
	}
	if img == nil {
		return nil, failure.Wrapf(failure.ErrInvalidInput, "detect: nil image")
	}

	original := imaging.SizeOf(img)
	canvas := imaging.Size{Width: float64(cfg.Canvas), Height: float64(cfg.Canvas)}
	t, err := imaging.ComputeLetterbox(original, canvas)
	if err != nil {
		return nil, err
	}
	boxed, err := imaging.Letterbox(img, t)
	if err != nil {
		return nil, err
	}
	input, err := imaging.Encode(boxed, cfg.TensorSpec())
	if err != nil {
		return nil, err
	}

	callCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	raw, err := callDetector(callCtx, d, input, cfg.Hyper)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, failure.Inference(err, engineName(d, "detector"))
	}

	regions, err := Decode(raw, t, original, DecodeOptions{Threshold: cfg.Hyper.Confidence, Format: cfg.Format})
	if err != nil {
		return nil, err
	}

	return &Detection{Transform: t, Regions: regions, Duration: time.Since(start)}, nil
}

// callDetector runs d in its own goroutine so that an engine ignoring ctx
// cannot hold the stage past its deadline.
func callDetector(ctx context.Context, d Detector, input *imaging.Tensor, hp Hyperparameters) (RawOutput, error) {
	type reply struct {
		raw RawOutput
		err error
	}
	done := make(chan reply, 1)
	go func() {
		raw, err := d.Detect(ctx, input, hp)
		done <- reply{raw, err}
	}()

	select {
	case r := <-done:
		return r.raw, r.err
	case <-ctx.Done():
		return RawOutput{}, ctx.Err()
	}
}

func engineName(v interface{}, fallback string) string {
	if n, ok := v.(Namer); ok && n.Name() != "" {
		return n.Name()
	}
	return fallback
}
