// Package classify runs the second pipeline stage: every detected region is
// cropped, encoded and classified concurrently, and the per-region results
// are aggregated into a deterministic report.
package classify

import (
	"context"
	"fmt"
	"image"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/region-lens/internal/detection"
	"github.com/ironsheep/region-lens/internal/failure"
	"github.com/ironsheep/region-lens/internal/imaging"
)

// LabelProbability is one class score.
type LabelProbability struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// Prediction is a classifier's answer for one region. Probabilities are in
// the classifier's class order. Label, when set, is the engine's own top
// label.
type Prediction struct {
	Label         string
	Probabilities []LabelProbability
}

// Classifier is a classification engine. Implementations must be safe for
// concurrent use and should return once ctx is done. A call still running
// when its deadline passes is abandoned and its prediction discarded.
type Classifier interface {
	Classify(ctx context.Context, input *imaging.Tensor) (Prediction, error)
}

// Config configures a Coordinator.
type Config struct {
	// InputSize is the side of the square classifier input.
	InputSize      int
	TopK           int
	MaxConcurrency int
	Timeout        time.Duration
	Layout         imaging.Layout
	Order          imaging.ChannelOrder
	Range          imaging.ValueRange

	// Space is the coordinate space region boxes are expressed in. The zero
	// value means pixels of the image passed to ClassifyAll.
	Space imaging.CoordinateSpace
}

// DefaultConfig returns a 480 input, top 5, four concurrent calls and a 2s
// per-call timeout.
func DefaultConfig() Config {
	return Config{
		InputSize:      480,
		TopK:           5,
		MaxConcurrency: 4,
		Timeout:        2 * time.Second,
		Range:          imaging.RangeMinusOneToOne,
	}
}

// Outcome is the classification of one region.
type Outcome struct {
	Key        string             `json:"key"`
	Region     detection.Region   `json:"region"`
	Label      string             `json:"label"`
	Confidence float64            `json:"confidence"`
	TopK       []LabelProbability `json:"top_k"`
	Duration   time.Duration      `json:"-"`
}

// RegionFailure records a region that produced no outcome.
type RegionFailure struct {
	Key    string `json:"key"`
	Index  int    `json:"index"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// Report is the aggregated result of ClassifyAll.
type Report struct {
	// Outcomes are in detection order.
	Outcomes []Outcome       `json:"outcomes"`
	Failures []RegionFailure `json:"failures,omitempty"`

	// AvgClassificationMs is the mean duration of successful units, or 0 if
	// none succeeded.
	AvgClassificationMs float64 `json:"avg_classification_ms"`
	NoObjects           bool    `json:"no_objects"`
}

// ByKey returns the outcomes keyed by display key.
func (r *Report) ByKey() map[string]Outcome {
	m := make(map[string]Outcome, len(r.Outcomes))
	for _, o := range r.Outcomes {
		m[o.Key] = o
	}
	return m
}

// DisplayKey returns the label for the region at the 0-based detection
// index i, e.g. "Object 01".
func DisplayKey(i int) string {
	return fmt.Sprintf("Object %02d", i+1)
}

// Coordinator fans classification out over regions.
type Coordinator struct {
	classifier Classifier
	cfg        Config
	logger     *zap.Logger
}

// NewCoordinator returns a coordinator for classifier. A nil logger is
// replaced with a no-op logger.
func NewCoordinator(classifier Classifier, cfg Config, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	return &Coordinator{classifier: classifier, cfg: cfg, logger: logger}
}

type slot struct {
	pred     Prediction
	err      error
	duration time.Duration
}

// ClassifyAll classifies every region of img.
//
// Each region runs as its own unit on a group bounded by MaxConcurrency. A
// unit only writes its own slot and never fails the group, so one bad region
// leaves its siblings untouched; its error is reported in Report.Failures.
// Slots are read only after every unit has finished.
//
// If ctx is done when the units finish, ClassifyAll returns ctx.Err() and no
// report.
func (c *Coordinator) ClassifyAll(ctx context.Context, img image.Image, regions []detection.Region) (*Report, error) {
	if len(regions) == 0 {
		return &Report{Outcomes: []Outcome{}, NoObjects: true}, nil
	}
	if img == nil {
		return nil, failure.Wrapf(failure.ErrInvalidInput, "classify: nil image")
	}
	if c.classifier == nil {
		return nil, failure.Wrapf(failure.ErrInvalidInput, "classify: nil classifier")
	}

	slots := make([]slot, len(regions))

	var g errgroup.Group
	g.SetLimit(c.cfg.MaxConcurrency)
	for i := range regions {
		i := i
		g.Go(func() error {
			slots[i] = c.classifyOne(ctx, img, regions[i])
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.aggregate(regions, slots), nil
}

func (c *Coordinator) classifyOne(ctx context.Context, img image.Image, r detection.Region) slot {
	if err := ctx.Err(); err != nil {
		return slot{err: err}
	}
	start := time.Now()

	size := c.cfg.InputSize
	crop, err := imaging.CropRegion(img, r.Box, c.cfg.Space, size, size)
	if err != nil {
		return slot{err: err}
	}
	input, err := imaging.Encode(crop, imaging.TensorSpec{
		Width:  size,
		Height: size,
		Layout: c.cfg.Layout,
		Order:  c.cfg.Order,
		Range:  c.cfg.Range,
	})
	if err != nil {
		return slot{err: err}
	}

	callCtx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	pred, err := callClassifier(callCtx, c.classifier, input)
	if err != nil {
		return slot{err: failure.Inference(err, classifierName(c.classifier))}
	}
	return slot{pred: pred, duration: time.Since(start)}
}

// callClassifier bounds a classifier call by ctx even when the engine does
// not watch it.
func callClassifier(ctx context.Context, cl Classifier, input *imaging.Tensor) (Prediction, error) {
	type reply struct {
		pred Prediction
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		pred, err := cl.Classify(ctx, input)
		done <- reply{pred, err}
	}()

	select {
	case r := <-done:
		return r.pred, r.err
	case <-ctx.Done():
		return Prediction{}, ctx.Err()
	}
}

func (c *Coordinator) aggregate(regions []detection.Region, slots []slot) *Report {
	report := &Report{Outcomes: make([]Outcome, 0, len(regions))}
	var ms []float64

	for i, s := range slots {
		key := DisplayKey(i)
		if s.err != nil {
			kind := failure.KindOf(s.err)
			report.Failures = append(report.Failures, RegionFailure{
				Key:    key,
				Index:  i,
				Kind:   kind,
				Reason: s.err.Error(),
				Err:    s.err,
			})
			c.logger.Warn("region classification failed",
				zap.String("key", key),
				zap.String("kind", kind),
				zap.Stringer("box", regions[i].Box),
				zap.Error(s.err))
			continue
		}

		top := TopK(s.pred.Probabilities, c.cfg.TopK)
		label, conf := topLabel(s.pred, top)
		report.Outcomes = append(report.Outcomes, Outcome{
			Key:        key,
			Region:     regions[i],
			Label:      label,
			Confidence: conf,
			TopK:       top,
			Duration:   s.duration,
		})
		ms = append(ms, float64(s.duration)/float64(time.Millisecond))
	}

	if len(ms) > 0 {
		report.AvgClassificationMs = stat.Mean(ms, nil)
	}
	c.logger.Debug("classification finished",
		zap.Int("regions", len(regions)),
		zap.Int("failures", len(report.Failures)),
		zap.Float64("avg_ms", report.AvgClassificationMs))
	return report
}

// TopK returns the k most probable entries, strictly descending by
// probability with ties kept in class order. NaN entries are dropped.
// k <= 0 keeps every entry.
func TopK(probs []LabelProbability, k int) []LabelProbability {
	out := make([]LabelProbability, 0, len(probs))
	for _, p := range probs {
		if !math.IsNaN(p.Probability) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Probability > out[j].Probability
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

func topLabel(pred Prediction, top []LabelProbability) (string, float64) {
	if pred.Label == "" {
		if len(top) == 0 {
			return "", 0
		}
		return top[0].Label, top[0].Probability
	}
	for _, p := range pred.Probabilities {
		if p.Label == pred.Label && !math.IsNaN(p.Probability) {
			return pred.Label, p.Probability
		}
	}
	return pred.Label, 0
}

func classifierName(c Classifier) string {
	if n, ok := c.(detection.Namer); ok && n.Name() != "" {
		return n.Name()
	}
	return "classifier"
}
