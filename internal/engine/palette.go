package engine

import (
	"context"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/ironsheep/region-lens/internal/classify"
	"github.com/ironsheep/region-lens/internal/imaging"
)

// Swatch is one named palette color.
type Swatch struct {
	Label string
	Color colorful.Color
}

// DefaultPalette returns the basic color terms used by PaletteClassifier
// when no palette is configured.
func DefaultPalette() []Swatch {
	hex := []struct{ label, hex string }{
		{"red", "#d62728"},
		{"orange", "#ff7f0e"},
		{"yellow", "#f5d60a"},
		{"green", "#2ca02c"},
		{"blue", "#1f77b4"},
		{"purple", "#9467bd"},
		{"brown", "#8c564b"},
		{"white", "#f5f5f5"},
		{"gray", "#7f7f7f"},
		{"black", "#111111"},
	}
	out := make([]Swatch, len(hex))
	for i, h := range hex {
		c, _ := colorful.Hex(h.hex)
		out[i] = Swatch{Label: h.label, Color: c}
	}
	return out
}

// PaletteClassifier names the dominant color of a region. It averages the
// region in CIE-Lab and turns the CIEDE2000 distance to every swatch into a
// probability with a softmax.
type PaletteClassifier struct {
	Palette []Swatch
	// Temperature scales distances before the softmax. Zero means 0.05;
	// smaller values make the distribution sharper.
	Temperature float64
}

const (
	defaultTemperature = 0.05
	sampleStride       = 2
)

// Name implements detection.Namer.
func (p *PaletteClassifier) Name() string { return "palette" }

// Classify implements classify.Classifier.
func (p *PaletteClassifier) Classify(ctx context.Context, input *imaging.Tensor) (classify.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return classify.Prediction{}, err
	}
	palette := p.Palette
	if len(palette) == 0 {
		palette = DefaultPalette()
	}
	img, err := imaging.Decode(input)
	if err != nil {
		return classify.Prediction{}, err
	}

	var l, a, b, n float64
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y += sampleStride {
		for x := bounds.Min.X; x < bounds.Max.X; x += sampleStride {
			c, ok := colorful.MakeColor(img.NRGBAAt(x, y))
			if !ok {
				continue
			}
			cl, ca, cb := c.Lab()
			l, a, b, n = l+cl, a+ca, b+cb, n+1
		}
	}
	if n == 0 {
		return classify.Prediction{}, errors.New("palette: no opaque pixels")
	}
	mean := colorful.Lab(l/n, a/n, b/n)

	temp := p.Temperature
	if temp <= 0 {
		temp = defaultTemperature
	}
	logits := make([]float64, len(palette))
	for i, s := range palette {
		logits[i] = -mean.DistanceCIEDE2000(s.Color) / temp
	}
	norm := floats.LogSumExp(logits)

	probs := make([]classify.LabelProbability, len(palette))
	for i, s := range palette {
		probs[i] = classify.LabelProbability{Label: s.Label, Probability: math.Exp(logits[i] - norm)}
	}
	return classify.Prediction{Probabilities: probs}, nil
}
