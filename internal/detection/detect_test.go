package detection

import (
	"context"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/region-lens/internal/failure"
	"github.com/ironsheep/region-lens/internal/imaging"
)

type stubDetector struct {
	mu    sync.Mutex
	raw   RawOutput
	err   error
	block bool
	stuck chan struct{}
	input *imaging.Tensor
	hp    Hyperparameters
}

func (s *stubDetector) Name() string { return "stub" }

func (s *stubDetector) Detect(ctx context.Context, input *imaging.Tensor, hp Hyperparameters) (RawOutput, error) {
	s.mu.Lock()
	s.input, s.hp = input, hp
	s.mu.Unlock()
	if s.stuck != nil {
		<-s.stuck
		return s.raw, nil
	}
	if s.block {
		<-ctx.Done()
		return RawOutput{}, ctx.Err()
	}
	return s.raw, s.err
}

func solidImage(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+3] = 200, 255
	}
	return img
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Canvas = 64
	return cfg
}

func TestDetect(t *testing.T) {
	d := &stubDetector{raw: RawOutput{
		Boxes:  [][4]float32{{0.5, 0.5, 0.1, 0.1}, {0.1, 0.1, 0.1, 0.1}},
		Scores: []float32{0.9, 0.2},
	}}

	det, err := Detect(context.Background(), d, solidImage(100, 80), smallConfig())
	require.NoError(t, err)
	require.Len(t, det.Regions, 1)

	assertBox(t, imaging.Box{X: 45, Y: 35, W: 10, H: 10}, det.Regions[0].Box)
	assert.InDelta(t, 0.64, det.Transform.Scale, 1e-9)
	assert.Equal(t, []int{1, 64, 64, 3}, d.input.Shape())
	assert.Equal(t, Hyperparameters{IoU: 0.5, Confidence: 0.25}, d.hp)
	assert.Greater(t, det.Duration, time.Duration(0))
}

func TestDetect_PaddingIsFill(t *testing.T) {
	d := &stubDetector{}
	_, err := Detect(context.Background(), d, solidImage(100, 50), smallConfig())
	require.NoError(t, err)

	// First pixel lies in the top padding band: (114/127.5)-1 in every channel.
	want := float32(114)/127.5 - 1
	assert.InDelta(t, want, d.input.Data[0], 1e-6)
	assert.InDelta(t, want, d.input.Data[2], 1e-6)
}

func TestDetect_EngineFailure(t *testing.T) {
	d := &stubDetector{err: errors.New("model not loaded")}

	det, err := Detect(context.Background(), d, solidImage(32, 32), smallConfig())
	assert.Nil(t, det)
	require.ErrorIs(t, err, failure.ErrInferenceFailure)
	assert.Contains(t, err.Error(), "stub")
	assert.Contains(t, err.Error(), "model not loaded")
	assert.Equal(t, failure.KindInferenceFailure, failure.KindOf(err))
}

func TestDetect_Timeout(t *testing.T) {
	cfg := smallConfig()
	cfg.Timeout = 20 * time.Millisecond

	_, err := Detect(context.Background(), &stubDetector{block: true}, solidImage(32, 32), cfg)
	require.ErrorIs(t, err, failure.ErrInferenceFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDetect_TimeoutIgnoredByEngine(t *testing.T) {
	cfg := smallConfig()
	cfg.Timeout = 20 * time.Millisecond
	stuck := make(chan struct{})
	defer close(stuck)

	start := time.Now()
	_, err := Detect(context.Background(), &stubDetector{stuck: stuck}, solidImage(32, 32), cfg)
	require.ErrorIs(t, err, failure.ErrInferenceFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDetect_ParentCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Detect(ctx, &stubDetector{block: true}, solidImage(32, 32), smallConfig())
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, failure.ErrInferenceFailure)
}

func TestDetect_InvalidInput(t *testing.T) {
	_, err := Detect(context.Background(), nil, solidImage(8, 8), smallConfig())
	assert.ErrorIs(t, err, failure.ErrInvalidInput)

	_, err = Detect(context.Background(), &stubDetector{}, nil, smallConfig())
	assert.ErrorIs(t, err, failure.ErrInvalidInput)

	cfg := smallConfig()
	cfg.Canvas = 0
	_, err = Detect(context.Background(), &stubDetector{}, solidImage(8, 8), cfg)
	assert.ErrorIs(t, err, failure.ErrInvalidInput)

	empty := image.NewNRGBA(image.Rect(0, 0, 0, 0))
	_, err = Detect(context.Background(), &stubDetector{}, empty, smallConfig())
	assert.ErrorIs(t, err, failure.ErrInvalidInput)
}
