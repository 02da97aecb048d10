// Package server implements the MCP (Model Context Protocol) server that
// exposes the region-lens pipeline as tools.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// tools/call requests run concurrently and their responses may arrive out of
// order; every other method is answered in order.
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Basic Image Information:
//   - image_load: Load image and get metadata
//   - image_dimensions: Get width and height
//
// Transform Operations:
//   - image_letterbox: Fit the image into the detector canvas
//   - image_crop_region: Crop a box and resize it for the classifier
//
// Pipeline Operations:
//   - image_detect_regions: Run detection only
//   - image_classify_regions: Run detection, per-region classification and
//     overlay rendering
//   - pipeline_latest: Return the most recent completed run
//   - pipeline_stats: Return run and failure counters
//
// image_classify_regions runs through a single session: a call arriving while
// another is still running supersedes it, and the superseded call reports an
// invalid state error instead of a stale result.
//
// # Image Caching
//
// Decoded photos are cached by path in a bounded imaging.PhotoCache and
// reused across tool calls.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: The Go error string
//
// # Usage
//
//	p := pipeline.New(detector, classifier, cfg, logger)
//	srv := server.New(p, imaging.NewPhotoCache(0), logger)
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
