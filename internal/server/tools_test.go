package server

import (
	"context"
	"testing"
)

func TestGetToolDefinitions(t *testing.T) {
	tools := GetToolDefinitions()

	if len(tools) == 0 {
		t.Fatal("GetToolDefinitions returned empty slice")
	}

	expectedTools := []string{
		"image_load",
		"image_dimensions",
		"image_letterbox",
		"image_crop_region",
		"image_detect_regions",
		"image_classify_regions",
		"pipeline_latest",
		"pipeline_stats",
	}

	toolMap := make(map[string]Tool)
	for _, tool := range tools {
		if _, dup := toolMap[tool.Name]; dup {
			t.Errorf("duplicate tool %s", tool.Name)
		}
		toolMap[tool.Name] = tool
	}

	for _, name := range expectedTools {
		if _, ok := toolMap[name]; !ok {
			t.Errorf("Expected tool %s not found", name)
		}
	}
	if len(tools) != len(expectedTools) {
		t.Errorf("tool count: got %d, want %d", len(tools), len(expectedTools))
	}
}

func TestToolDefinitions_Structure(t *testing.T) {
	for _, tool := range GetToolDefinitions() {
		t.Run(tool.Name, func(t *testing.T) {
			if tool.Description == "" {
				t.Error("Tool description is empty")
			}
			if tool.InputSchema["type"] != "object" {
				t.Errorf("InputSchema type: got %v, want 'object'", tool.InputSchema["type"])
			}
			if _, ok := tool.InputSchema["properties"].(map[string]interface{}); !ok {
				t.Error("InputSchema properties missing")
			}
		})
	}
}

func TestToolDefinitions_RequiredPath(t *testing.T) {
	toolsRequiringPath := map[string]bool{
		"image_load":             true,
		"image_dimensions":       true,
		"image_letterbox":        true,
		"image_crop_region":      true,
		"image_detect_regions":   true,
		"image_classify_regions": true,
	}

	for _, tool := range GetToolDefinitions() {
		if !toolsRequiringPath[tool.Name] {
			continue
		}
		t.Run(tool.Name, func(t *testing.T) {
			required, ok := tool.InputSchema["required"].([]string)
			if !ok {
				t.Fatal("'required' should be a string slice")
			}
			if !contains(required, "path") {
				t.Error("Tool should require 'path' parameter")
			}
		})
	}
}

func TestToolDefinitions_CropRegionRequired(t *testing.T) {
	var crop Tool
	for _, tool := range GetToolDefinitions() {
		if tool.Name == "image_crop_region" {
			crop = tool
		}
	}
	if crop.Name == "" {
		t.Fatal("image_crop_region tool not found")
	}

	required, _ := crop.InputSchema["required"].([]string)
	for _, want := range []string{"path", "x", "y", "width", "height"} {
		if !contains(required, want) {
			t.Errorf("image_crop_region should require '%s'", want)
		}
	}
	for _, optional := range []string{"space_width", "origin", "target_width"} {
		if contains(required, optional) {
			t.Errorf("'%s' should be optional", optional)
		}
	}
}

func TestHandleToolsList(t *testing.T) {
	s := newTestServer(t)
	resp := s.handleRequest(context.Background(), &MCPRequest{JSONRPC: "2.0", ID: 1, Method: "tools/list"})

	if resp == nil || resp.Error != nil {
		t.Fatalf("tools/list failed: %+v", resp)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("Result type: got %T", resp.Result)
	}
	tools, ok := result["tools"].([]Tool)
	if !ok {
		t.Fatalf("tools type: got %T", result["tools"])
	}
	if len(tools) != len(GetToolDefinitions()) {
		t.Errorf("tools/list returned %d tools, want %d", len(tools), len(GetToolDefinitions()))
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
