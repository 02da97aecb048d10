package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/anthonynsimon/bild/imgio"
	"go.uber.org/zap"

	"github.com/ironsheep/region-lens/internal/config"
	"github.com/ironsheep/region-lens/internal/engine"
	"github.com/ironsheep/region-lens/internal/imaging"
	"github.com/ironsheep/region-lens/internal/logger"
	"github.com/ironsheep/region-lens/internal/pipeline"
	"github.com/ironsheep/region-lens/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func usage() {
	fmt.Println("region-lens - detect regions in a photo and classify each one")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  region-lens [--config file.yaml]                     Serve MCP over stdin/stdout")
	fmt.Println("  region-lens [--config file.yaml] run <image> [out]   Process one image")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config, -c     YAML configuration file")
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  REGION_LENS_LOG_LEVEL=debug         Enable debug logging")
	fmt.Println("  REGION_LENS_DETECTOR_CONFIDENCE=0.4 Override any configuration key")
}

func main() {
	args := os.Args[1:]
	configPath := ""

	for len(args) > 0 {
		switch args[0] {
		case "--version", "-v", "version":
			fmt.Printf("region-lens %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			usage()
			return
		case "--config", "-c":
			if len(args) < 2 {
				fmt.Fprintln(os.Stderr, "--config needs a file path")
				os.Exit(2)
			}
			configPath = args[1]
			args = args[2:]
			continue
		}
		break
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := newPipeline(cfg, log)
	if err != nil {
		log.Fatal("pipeline setup failed", zap.Error(err))
	}
	cache := imaging.NewPhotoCache(cfg.Cache.Entries)

	if len(args) > 0 && args[0] == "run" {
		if len(args) < 2 {
			usage()
			os.Exit(2)
		}
		out := ""
		if len(args) > 2 {
			out = args[2]
		}
		if err := runOnce(ctx, p, cache, args[1], out); err != nil {
			log.Fatal("run failed", zap.Error(err))
		}
		return
	}
	if len(args) > 0 {
		fmt.Fprintf(os.Stderr, "unknown argument %q\n", args[0])
		os.Exit(2)
	}

	log.Debug("starting MCP server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("commit", GitCommit))

	srv := server.New(p, cache, log.Named("server"))
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("server error", zap.Error(err))
	}
}

func newPipeline(cfg *config.AppConfig, log *zap.Logger) (*pipeline.Pipeline, error) {
	pc, err := cfg.Pipeline()
	if err != nil {
		return nil, err
	}
	detector := &engine.ContourDetector{
		EdgeThreshold: cfg.Engine.EdgeThreshold,
		MinArea:       cfg.Engine.MinArea,
		MaxDetections: cfg.Engine.MaxDetections,
	}
	classifier := &engine.PaletteClassifier{Temperature: cfg.Engine.Temperature}
	return pipeline.New(detector, classifier, pc, log.Named("pipeline")), nil
}

// runOnce processes one image, prints the timing report and per-region
// labels, and optionally saves the annotated photo as PNG.
func runOnce(ctx context.Context, p *pipeline.Pipeline, cache *imaging.PhotoCache, path, out string) error {
	photo, err := cache.Load(path)
	if err != nil {
		return err
	}
	res, err := p.Run(ctx, photo.Image)
	if err != nil {
		return err
	}

	if res.Status == pipeline.StatusDetectionFailed {
		fmt.Printf("Detection failed: %s\n", res.Error)
	} else {
		fmt.Println(res.Timing.String())
	}
	for _, o := range res.Outcomes {
		fmt.Printf("%s  %-10s %.2f  %s\n", o.Key, o.Label, o.Confidence, o.Region.Box)
	}
	for _, f := range res.Failures {
		fmt.Printf("%s  failed (%s): %s\n", f.Key, f.Kind, f.Reason)
	}

	if out == "" || res.Annotated == nil {
		return nil
	}
	return imgio.Save(out, res.Annotated, imgio.PNGEncoder())
}
