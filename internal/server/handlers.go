package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/ironsheep/region-lens/internal/detection"
	"github.com/ironsheep/region-lens/internal/failure"
	"github.com/ironsheep/region-lens/internal/imaging"
	"github.com/ironsheep/region-lens/internal/pipeline"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_load", "image_classify_regions").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000
// whose data carries the failure kind and message.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.logger.Warn("tool failed",
			zap.String("tool", params.Name),
			zap.String("kind", failure.KindOf(err)),
			zap.Error(err))
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Basic Image Information
	case "image_load":
		return s.handleImageLoad(args)
	case "image_dimensions":
		return s.handleImageDimensions(args)

	// Transform Operations
	case "image_letterbox":
		return s.handleImageLetterbox(args)
	case "image_crop_region":
		return s.handleImageCropRegion(args)

	// Pipeline Operations
	case "image_detect_regions":
		return s.handleImageDetectRegions(ctx, args)
	case "image_classify_regions":
		return s.handleImageClassifyRegions(ctx, args)
	case "pipeline_latest":
		return s.handlePipelineLatest()
	case "pipeline_stats":
		return s.handlePipelineStats()

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func unmarshalArgs(args json.RawMessage, v interface{}) error {
	if len(bytes.TrimSpace(args)) == 0 || string(args) == "null" {
		return failure.Wrapf(failure.ErrInvalidInput, "missing arguments")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return failure.Wrapf(failure.ErrInvalidInput, "arguments: %v", err)
	}
	return nil
}

// === Basic Image Information Handlers ===

type imageLoadArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	return s.cache.Info(a.Path)
}

func (s *Server) handleImageDimensions(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	p, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	b := p.Image.Bounds()
	return map[string]int{"width": b.Dx(), "height": b.Dy()}, nil
}

// === Transform Handlers ===

type imageLetterboxArgs struct {
	Path         string `json:"path"`
	Canvas       int    `json:"canvas"`
	IncludeImage bool   `json:"include_image"`
}

type letterboxResult struct {
	Transform imaging.Transform     `json:"transform"`
	Canvas    *imaging.EncodedImage `json:"canvas,omitempty"`
}

func (s *Server) handleImageLetterbox(args json.RawMessage) (interface{}, error) {
	var a imageLetterboxArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Canvas == 0 {
		a.Canvas = s.pipeline.Config().Detection.Canvas
	}
	p, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	side := float64(a.Canvas)
	t, err := imaging.ComputeLetterbox(p.Size(), imaging.Size{Width: side, Height: side})
	if err != nil {
		return nil, err
	}
	res := &letterboxResult{Transform: t}
	if a.IncludeImage {
		canvas, err := imaging.Letterbox(p.Image, t)
		if err != nil {
			return nil, err
		}
		if res.Canvas, err = imaging.EncodePNG(canvas); err != nil {
			return nil, err
		}
	}
	return res, nil
}

type imageCropRegionArgs struct {
	Path         string  `json:"path"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	SpaceWidth   float64 `json:"space_width"`
	SpaceHeight  float64 `json:"space_height"`
	Origin       string  `json:"origin"`
	TargetWidth  int     `json:"target_width"`
	TargetHeight int     `json:"target_height"`
}

func (s *Server) handleImageCropRegion(args json.RawMessage) (interface{}, error) {
	var a imageCropRegionArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	origin, err := imaging.ParseOrigin(a.Origin)
	if err != nil {
		return nil, failure.Wrapf(failure.ErrInvalidInput, "%v", err)
	}
	size := s.pipeline.Config().Classification.InputSize
	if a.TargetWidth == 0 {
		a.TargetWidth = size
	}
	if a.TargetHeight == 0 {
		a.TargetHeight = size
	}

	p, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	space := imaging.CoordinateSpace{Width: a.SpaceWidth, Height: a.SpaceHeight, Origin: origin}
	box := imaging.Box{X: a.X, Y: a.Y, W: a.Width, H: a.Height}
	crop, err := imaging.CropRegion(p.Image, box, space, a.TargetWidth, a.TargetHeight)
	if err != nil {
		return nil, err
	}
	return imaging.EncodePNG(crop)
}

// === Pipeline Handlers ===

type imageDetectRegionsArgs struct {
	Path       string   `json:"path"`
	Confidence *float64 `json:"confidence"`
}

type detectRegionsResult struct {
	Transform   imaging.Transform  `json:"transform"`
	Regions     []detection.Region `json:"regions"`
	Count       int                `json:"count"`
	DetectionMs float64            `json:"detection_ms"`
}

func (s *Server) handleImageDetectRegions(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a imageDetectRegionsArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	cfg := s.pipeline.Config().Detection
	if a.Confidence != nil {
		if *a.Confidence < 0 || *a.Confidence >= 1 {
			return nil, failure.Wrapf(failure.ErrInvalidInput, "confidence %v outside [0,1)", *a.Confidence)
		}
		cfg.Hyper.Confidence = *a.Confidence
	}

	p, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	det, err := s.pipeline.Detect(ctx, p.Image, cfg)
	if err != nil {
		return nil, err
	}
	return &detectRegionsResult{
		Transform:   det.Transform,
		Regions:     det.Regions,
		Count:       len(det.Regions),
		DetectionMs: float64(det.Duration.Microseconds()) / 1000,
	}, nil
}

type imageClassifyRegionsArgs struct {
	Path         string `json:"path"`
	IncludeImage *bool  `json:"include_image"`
}

type classifyRegionsResult struct {
	*pipeline.Result
	Summary   string                `json:"summary"`
	Annotated *imaging.EncodedImage `json:"annotated,omitempty"`
}

func (s *Server) handleImageClassifyRegions(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a imageClassifyRegionsArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	p, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	var res *pipeline.Result
	select {
	case r, ok := <-s.session.Submit(ctx, p.Image):
		if !ok {
			return nil, failure.Wrapf(failure.ErrInvalidState, "run for %s was superseded", a.Path)
		}
		res = r
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	out := &classifyRegionsResult{Result: res, Summary: res.Timing.String()}
	if res.Status == pipeline.StatusDetectionFailed {
		out.Summary = "Detection failed: " + res.Error
	}
	if (a.IncludeImage == nil || *a.IncludeImage) && res.Annotated != nil {
		if out.Annotated, err = imaging.EncodePNG(res.Annotated); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Server) handlePipelineLatest() (interface{}, error) {
	res := s.session.Latest()
	if res == nil {
		return map[string]interface{}{"status": "none"}, nil
	}
	return res, nil
}

type statsResult struct {
	pipeline.StatsSnapshot
	CachedPhotos int `json:"cached_photos"`
}

func (s *Server) handlePipelineStats() (interface{}, error) {
	return &statsResult{
		StatsSnapshot: s.pipeline.Stats().Snapshot(),
		CachedPhotos:  s.cache.Len(),
	}, nil
}
