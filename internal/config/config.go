// Package config loads region-lens settings from defaults, an optional YAML
// file and REGION_LENS_* environment variables, in that order.
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"

	"github.com/ironsheep/region-lens/internal/classify"
	"github.com/ironsheep/region-lens/internal/detection"
	"github.com/ironsheep/region-lens/internal/failure"
	"github.com/ironsheep/region-lens/internal/imaging"
	"github.com/ironsheep/region-lens/internal/logger"
	"github.com/ironsheep/region-lens/internal/pipeline"
)

// EnvPrefix selects the environment variables read by Load.
// REGION_LENS_CLASSIFIER_TOPK=3 sets classifier.topk.
const EnvPrefix = "REGION_LENS_"

// AppConfig defines the application configuration.
type AppConfig struct {
	Detector   DetectorConfig   `koanf:"detector"`
	Classifier ClassifierConfig `koanf:"classifier"`
	Tensor     TensorConfig     `koanf:"tensor"`
	Engine     EngineConfig     `koanf:"engine"`
	Overlay    OverlayConfig    `koanf:"overlay"`
	Cache      CacheConfig      `koanf:"cache"`
	Log        LogConfig        `koanf:"log"`
}

// DetectorConfig configures the detection stage.
type DetectorConfig struct {
	Canvas     int           `koanf:"canvas"`
	IoU        float64       `koanf:"iou"`
	Confidence float64       `koanf:"confidence"`
	Units      string        `koanf:"units"`
	Form       string        `koanf:"form"`
	Timeout    time.Duration `koanf:"timeout"`
}

// ClassifierConfig configures the classification fan-out.
type ClassifierConfig struct {
	InputSize      int           `koanf:"inputsize"`
	TopK           int           `koanf:"topk"`
	MaxConcurrency int           `koanf:"maxconcurrency"`
	Timeout        time.Duration `koanf:"timeout"`
}

// TensorConfig is the input layout shared by both engines.
type TensorConfig struct {
	Layout string `koanf:"layout"`
	Order  string `koanf:"order"`
	Range  string `koanf:"range"`
}

// EngineConfig tunes the built-in engines.
type EngineConfig struct {
	EdgeThreshold float64 `koanf:"edgethreshold"`
	MinArea       int     `koanf:"minarea"`
	MaxDetections int     `koanf:"maxdetections"`
	Temperature   float64 `koanf:"temperature"`
}

// OverlayConfig configures annotation drawing.
type OverlayConfig struct {
	Stroke int    `koanf:"stroke"`
	Color  string `koanf:"color"`
}

// CacheConfig bounds the decoded photo cache of the MCP server.
type CacheConfig struct {
	Entries int `koanf:"entries"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level string `koanf:"level"`
}

func defaults() map[string]any {
	return map[string]any{
		"detector.canvas":           640,
		"detector.iou":              0.5,
		"detector.confidence":       detection.DefaultThreshold,
		"detector.units":            "normalized",
		"detector.form":             "center",
		"detector.timeout":          "5s",
		"classifier.inputsize":      480,
		"classifier.topk":           5,
		"classifier.maxconcurrency": 4,
		"classifier.timeout":        "2s",
		"tensor.layout":             "nhwc",
		"tensor.order":              "rgb",
		"tensor.range":              "minusone",
		"engine.edgethreshold":      30,
		"engine.minarea":            64,
		"engine.maxdetections":      100,
		"engine.temperature":        0.05,
		"overlay.stroke":            3,
		"overlay.color":             "",
		"cache.entries":             imaging.DefaultCacheEntries,
		"log.level":                 "info",
	}
}

// Load builds the configuration. filePath may be empty, in which case only
// defaults and the environment are used.
func Load(filePath string) (*AppConfig, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, err
	}

	if filePath != "" {
		if err := k.Load(file.Provider(filePath), yaml.Parser()); err != nil {
			return nil, failure.Wrapf(failure.ErrInvalidInput, "config file %s: %v", filePath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
	}), nil); err != nil {
		return nil, err
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, failure.Wrapf(failure.ErrInvalidInput, "config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no stage can work with.
func (c *AppConfig) Validate() error {
	switch {
	case c.Detector.Canvas <= 0:
		return invalid("detector.canvas must be positive, got %d", c.Detector.Canvas)
	case c.Detector.IoU < 0 || c.Detector.IoU > 1:
		return invalid("detector.iou must be within [0,1], got %v", c.Detector.IoU)
	case c.Detector.Confidence < 0 || c.Detector.Confidence >= 1:
		return invalid("detector.confidence must be within [0,1), got %v", c.Detector.Confidence)
	case c.Detector.Timeout < 0:
		return invalid("detector.timeout must not be negative")
	case c.Classifier.InputSize <= 0:
		return invalid("classifier.inputsize must be positive, got %d", c.Classifier.InputSize)
	case c.Classifier.TopK <= 0:
		return invalid("classifier.topk must be positive, got %d", c.Classifier.TopK)
	case c.Classifier.MaxConcurrency <= 0:
		return invalid("classifier.maxconcurrency must be positive, got %d", c.Classifier.MaxConcurrency)
	case c.Classifier.Timeout < 0:
		return invalid("classifier.timeout must not be negative")
	case c.Overlay.Stroke < 0:
		return invalid("overlay.stroke must not be negative, got %d", c.Overlay.Stroke)
	}

	if _, err := c.Pipeline(); err != nil {
		return err
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level: %v", err)
	}
	return nil
}

// Pipeline converts the settings into stage configurations.
func (c *AppConfig) Pipeline() (pipeline.Config, error) {
	units, err := detection.ParseUnits(c.Detector.Units)
	if err != nil {
		return pipeline.Config{}, invalid("detector.units: %v", err)
	}
	form, err := detection.ParseForm(c.Detector.Form)
	if err != nil {
		return pipeline.Config{}, invalid("detector.form: %v", err)
	}
	layout, err := imaging.ParseLayout(c.Tensor.Layout)
	if err != nil {
		return pipeline.Config{}, invalid("tensor.layout: %v", err)
	}
	order, err := imaging.ParseChannelOrder(c.Tensor.Order)
	if err != nil {
		return pipeline.Config{}, invalid("tensor.order: %v", err)
	}
	rng, err := imaging.ParseValueRange(c.Tensor.Range)
	if err != nil {
		return pipeline.Config{}, invalid("tensor.range: %v", err)
	}

	overlay := imaging.OverlayOptions{StrokeWidth: c.Overlay.Stroke}
	if c.Overlay.Color != "" {
		col, err := imaging.ParseHexColor(c.Overlay.Color)
		if err != nil {
			return pipeline.Config{}, invalid("overlay.color: %v", err)
		}
		overlay.Color = col
	}

	return pipeline.Config{
		Detection: detection.Config{
			Canvas:  c.Detector.Canvas,
			Hyper:   detection.Hyperparameters{IoU: c.Detector.IoU, Confidence: c.Detector.Confidence},
			Format:  detection.BoxFormat{Units: units, Form: form},
			Layout:  layout,
			Order:   order,
			Range:   rng,
			Timeout: c.Detector.Timeout,
		},
		Classification: classify.Config{
			InputSize:      c.Classifier.InputSize,
			TopK:           c.Classifier.TopK,
			MaxConcurrency: c.Classifier.MaxConcurrency,
			Timeout:        c.Classifier.Timeout,
			Layout:         layout,
			Order:          order,
			Range:          rng,
		},
		Overlay: overlay,
	}, nil
}

func invalid(format string, args ...interface{}) error {
	return failure.Wrapf(failure.ErrInvalidInput, format, args...)
}
