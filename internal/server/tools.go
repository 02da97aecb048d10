package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the image file",
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Basic Image Information
		{
			Name:        "image_load",
			Description: "Load an image file and return its dimensions, format and size. The decoded image is cached for subsequent operations.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_dimensions",
			Description: "Get the width and height of an image file.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},

		// Transform Operations
		{
			Name:        "image_letterbox",
			Description: "Compute the letterbox transform that fits the image into the detector's square canvas without distortion. Optionally returns the padded canvas as base64 PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"canvas": map[string]interface{}{
						"type":        "integer",
						"description": "Canvas side in pixels (default: configured detector canvas)",
					},
					"include_image": map[string]interface{}{
						"type":        "boolean",
						"description": "Return the letterboxed canvas as base64 PNG",
						"default":     false,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_crop_region",
			Description: "Crop a box from the image and resize it to the target size. The box may be expressed in a scaled logical space and with a bottom-left origin.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"x": map[string]interface{}{
						"type":        "number",
						"description": "Left edge of the box",
					},
					"y": map[string]interface{}{
						"type":        "number",
						"description": "Edge of the box nearest the origin",
					},
					"width": map[string]interface{}{
						"type":        "number",
						"description": "Box width",
					},
					"height": map[string]interface{}{
						"type":        "number",
						"description": "Box height",
					},
					"space_width": map[string]interface{}{
						"type":        "number",
						"description": "Width of the space the box was computed in (default: image width)",
					},
					"space_height": map[string]interface{}{
						"type":        "number",
						"description": "Height of the space the box was computed in (default: image height)",
					},
					"origin": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"top-left", "bottom-left"},
						"description": "Vertical origin of the box coordinates",
						"default":     "top-left",
					},
					"target_width": map[string]interface{}{
						"type":        "integer",
						"description": "Output width (default: configured classifier input size)",
					},
					"target_height": map[string]interface{}{
						"type":        "integer",
						"description": "Output height (default: configured classifier input size)",
					},
				},
				"required": []string{"path", "x", "y", "width", "height"},
			},
		},

		// Pipeline Operations
		{
			Name:        "image_detect_regions",
			Description: "Run the detection stage only. Returns candidate regions in original-image pixels, in detection order.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"confidence": map[string]interface{}{
						"type":        "number",
						"description": "Score a detection must exceed (default 0.25)",
						"default":     0.25,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_classify_regions",
			Description: "Run the full pipeline: detect regions, classify each one, and return labels, top-k probabilities, per-stage timing and an annotated PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"include_image": map[string]interface{}{
						"type":        "boolean",
						"description": "Return the annotated image as base64 PNG",
						"default":     true,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "pipeline_latest",
			Description: "Return the result of the most recent completed pipeline run, without the annotated image.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "pipeline_stats",
			Description: "Return run, failure and cache counters.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
