// Package pipeline composes detection, classification and overlay rendering
// into one run and keeps per-session state for superseding runs.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ironsheep/region-lens/internal/classify"
	"github.com/ironsheep/region-lens/internal/detection"
	"github.com/ironsheep/region-lens/internal/failure"
	"github.com/ironsheep/region-lens/internal/imaging"
)

// Status summarizes how a run ended.
type Status string

const (
	// StatusOK means every region was attempted; some may still have failed.
	StatusOK Status = "ok"
	// StatusNoObjects means detection succeeded and retained nothing.
	StatusNoObjects Status = "no_objects"
	// StatusDetectionFailed means no region was attempted.
	StatusDetectionFailed Status = "detection_failed"
)

// Config bundles the stage configurations.
type Config struct {
	Detection      detection.Config
	Classification classify.Config
	Overlay        imaging.OverlayOptions
}

// DefaultConfig returns the default configuration of every stage.
func DefaultConfig() Config {
	return Config{
		Detection:      detection.DefaultConfig(),
		Classification: classify.DefaultConfig(),
	}
}

// TimingReport holds per-stage latencies in milliseconds.
type TimingReport struct {
	DetectionMs         float64 `json:"detection_ms"`
	AvgClassificationMs float64 `json:"avg_classification_ms"`
	// EndToEndMs spans from the start of detection to the end of the
	// classification join.
	EndToEndMs float64 `json:"end_to_end_ms"`
	NoObjects  bool    `json:"no_objects"`
}

func (t TimingReport) String() string {
	if t.NoObjects {
		return fmt.Sprintf("Detection Time: %.2f ms\n"+
			"Classification Time (Avg per Object): -- ms\n"+
			"End-to-End Inference Time: No Objects detected", t.DetectionMs)
	}
	return fmt.Sprintf("Detection Time: %.2f ms\n"+
		"Classification Time (Avg per Object): %.2f ms\n"+
		"End-to-End Inference Time: %.2f ms", t.DetectionMs, t.AvgClassificationMs, t.EndToEndMs)
}

// Result is the outcome of one pipeline run. A result is never partial:
// either every region was attempted or, for StatusDetectionFailed, none was.
type Result struct {
	RunID     string                   `json:"run_id"`
	Status    Status                   `json:"status"`
	Transform imaging.Transform        `json:"transform"`
	Regions   []detection.Region       `json:"regions"`
	Outcomes  []classify.Outcome       `json:"outcomes"`
	Failures  []classify.RegionFailure `json:"failures,omitempty"`
	Timing    TimingReport             `json:"timing"`
	Error     string                   `json:"error,omitempty"`

	// Annotated is the source photo with every region drawn on it.
	Annotated *image.RGBA `json:"-"`
	Err       error       `json:"-"`
}

// Pipeline runs detection then classification then overlay rendering.
type Pipeline struct {
	detector    detection.Detector
	coordinator *classify.Coordinator
	cfg         Config
	logger      *zap.Logger
	stats       *Stats
}

// New builds a pipeline over the given engines. A nil logger is replaced
// with a no-op logger.
func New(detector detection.Detector, classifier classify.Classifier, cfg Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		detector:    detector,
		coordinator: classify.NewCoordinator(classifier, cfg.Classification, logger.Named("classify")),
		cfg:         cfg,
		logger:      logger,
		stats:       NewStats(),
	}
}

// Stats returns the pipeline's counters.
func (p *Pipeline) Stats() *Stats { return p.stats }

// Config returns the configuration the pipeline was built with.
func (p *Pipeline) Config() Config { return p.cfg }

// Detect runs only the detection stage with the pipeline's detector and the
// given stage configuration.
func (p *Pipeline) Detect(ctx context.Context, img image.Image, cfg detection.Config) (*detection.Detection, error) {
	return detection.Detect(ctx, p.detector, img, cfg)
}

// Run processes img.
//
// A detector failure is not returned as an error; the result carries
// StatusDetectionFailed and the error instead. Run returns an error only for
// a nil image or when ctx is done, in which case no result is produced.
func (p *Pipeline) Run(ctx context.Context, img image.Image) (*Result, error) {
	if img == nil {
		return nil, failure.Wrapf(failure.ErrInvalidInput, "run: nil image")
	}
	p.stats.runs.Add(1)
	res := &Result{RunID: uuid.NewString()}
	log := p.logger.With(zap.String("run_id", res.RunID))
	start := time.Now()

	det, err := detection.Detect(ctx, p.detector, img, p.cfg.Detection)
	if err != nil {
		if ctx.Err() != nil {
			p.stats.canceled.Add(1)
			return nil, ctx.Err()
		}
		p.failed(res, img, err)
		log.Error("detection failed", zap.String("kind", failure.KindOf(err)), zap.Error(err))
		return res, nil
	}
	res.Transform = det.Transform
	res.Regions = det.Regions
	p.stats.regions.Add(int64(len(det.Regions)))

	report, err := p.coordinator.ClassifyAll(ctx, img, det.Regions)
	if err != nil {
		if ctx.Err() != nil {
			p.stats.canceled.Add(1)
			return nil, ctx.Err()
		}
		// Only malformed inputs reach here; treat them like a failed detection.
		p.failed(res, img, err)
		log.Error("classification rejected", zap.String("kind", failure.KindOf(err)), zap.Error(err))
		return res, nil
	}
	end := time.Since(start)

	res.Outcomes = report.Outcomes
	res.Failures = report.Failures
	for _, f := range report.Failures {
		p.stats.regionFailed(f.Kind)
	}
	res.Timing = TimingReport{
		DetectionMs:         ms(det.Duration),
		AvgClassificationMs: report.AvgClassificationMs,
		EndToEndMs:          ms(end),
		NoObjects:           report.NoObjects,
	}
	res.Status = StatusOK
	if report.NoObjects {
		res.Status = StatusNoObjects
		p.stats.noObjects.Add(1)
	}
	res.Annotated = imaging.RenderOverlay(img, Annotations(res), p.cfg.Overlay)
	p.stats.completed.Add(1)

	log.Info("pipeline run finished",
		zap.String("status", string(res.Status)),
		zap.Int("regions", len(res.Regions)),
		zap.Int("failures", len(res.Failures)),
		zap.Float64("detection_ms", res.Timing.DetectionMs),
		zap.Float64("avg_classification_ms", res.Timing.AvgClassificationMs),
		zap.Float64("end_to_end_ms", res.Timing.EndToEndMs))
	return res, nil
}

// failed turns res into a detection_failed result: no regions, no outcomes
// and the bare photo as overlay.
func (p *Pipeline) failed(res *Result, img image.Image, err error) {
	p.stats.detectionFailures.Add(1)
	res.Status = StatusDetectionFailed
	res.Err = err
	res.Error = err.Error()
	res.Transform = imaging.Transform{}
	res.Regions = []detection.Region{}
	res.Outcomes = []classify.Outcome{}
	res.Failures = nil
	res.Annotated = imaging.RenderOverlay(img, nil, p.cfg.Overlay)
}

// Annotations pairs every region of res with its outcome. Regions that failed
// classification get an empty label and zero confidence.
func Annotations(res *Result) []imaging.Annotation {
	byIndex := make(map[int]classify.Outcome, len(res.Outcomes))
	for _, o := range res.Outcomes {
		byIndex[o.Region.Index] = o
	}
	out := make([]imaging.Annotation, len(res.Regions))
	for i, r := range res.Regions {
		a := imaging.Annotation{Box: r.Box}
		if o, ok := byIndex[r.Index]; ok {
			a.Label, a.Confidence = o.Label, o.Confidence
		}
		out[i] = a
	}
	return out
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
