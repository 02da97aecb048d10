package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ironsheep/region-lens/internal/imaging"
	"github.com/ironsheep/region-lens/internal/pipeline"
)

// Name and Version are reported in the initialize handshake.
const (
	Name    = "region-lens"
	Version = "0.1.0"
)

// Server handles MCP protocol communication
type Server struct {
	cache    *imaging.PhotoCache
	pipeline *pipeline.Pipeline
	session  *pipeline.Session
	logger   *zap.Logger
}

// MCPRequest represents an incoming JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// MCPNotification represents an outgoing notification (no ID)
type MCPNotification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// New creates a server that runs p over photos held in cache. A nil cache
// gets a default-sized one and a nil logger a no-op logger.
func New(p *pipeline.Pipeline, cache *imaging.PhotoCache, logger *zap.Logger) *Server {
	if cache == nil {
		cache = imaging.NewPhotoCache(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cache:    cache,
		pipeline: p,
		session:  p.NewSession(),
		logger:   logger,
	}
}

// Run serves MCP over stdin and stdout until stdin closes or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve reads one JSON-RPC request per line from in and writes responses to
// out.
//
// tools/call requests run concurrently and may be answered out of order;
// clients match responses by id. Every other method is answered in order.
// Serve returns once in is exhausted and every tool call has answered.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	var calls sync.WaitGroup
	defer s.session.Close()
	defer calls.Wait()

	scanner := bufio.NewScanner(in)
	// Increase buffer size for large requests
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var mu sync.Mutex
	encoder := json.NewEncoder(out)
	respond := func(req *MCPRequest) {
		resp := s.handleRequest(ctx, req)
		if resp == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if err := encoder.Encode(resp); err != nil {
			s.logger.Error("failed to encode response", zap.Error(err))
		}
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn("failed to parse request", zap.Error(err))
			continue
		}

		if req.Method == "tools/call" {
			calls.Add(1)
			go func() {
				defer calls.Done()
				respond(&req)
			}()
			continue
		}
		respond(&req)
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "scanner error")
	}

	return nil
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(ctx context.Context, req *MCPRequest) *MCPResponse {
	s.logger.Debug("request", zap.String("method", req.Method), zap.Any("id", req.ID))

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		// Client acknowledgment, no response needed
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "ping":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32601,
				Message: fmt.Sprintf("Method not found: %s", req.Method),
			},
		}
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    Name,
				"version": Version,
			},
		},
	}
}
