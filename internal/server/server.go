package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ironsheep/image-gen-mcp/internal/gemini"
	"github.com/ironsheep/image-gen-mcp/internal/metrics"
	"go.uber.org/zap"
)

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

const protocolVersion = "2024-11-05"

// maxLineBytes bounds one stdio message: ten images at the base64 cap plus
// room for the envelope.
const maxLineBytes = 10*maxBase64Length + 1<<20

// Generator runs one provider call. *gemini.Client satisfies it.
type Generator interface {
	Execute(ctx context.Context, prompt string, images []gemini.ImageInput) ([]gemini.Image, error)
}

// Saver persists one image. *storage.Resolver satisfies it.
type Saver interface {
	Save(data []byte, mimeType, hint, toolName string) (string, error)
}

// Server handles MCP protocol communication.
type Server struct {
	generator Generator
	saver     Saver
	logger    *zap.Logger
	metrics   *metrics.Collector
	version   string
	workDir   string
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

// Option customizes a Server.
type Option func(*Server)

// WithVersion sets the version reported in serverInfo.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithWorkDir sets the directory that path arguments must stay inside.
// It defaults to the process working directory.
func WithWorkDir(dir string) Option {
	return func(s *Server) { s.workDir = dir }
}

// WithMetrics records tool outcomes on m and mounts GET /metrics on the HTTP
// transport.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates a new MCP server instance.
func New(generator Generator, saver Saver, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		generator: generator,
		saver:     saver,
		logger:    logger.Named("server"),
		version:   "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.workDir == "" {
		if wd, err := os.Getwd(); err == nil {
			s.workDir = wd
		}
	}
	return s
}

// Run serves newline-delimited JSON-RPC from in to out until in is exhausted.
// Each request runs on its own goroutine; responses may be written out of
// order and are matched by ID.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var mu sync.Mutex
	encoder := json.NewEncoder(out)
	write := func(resp *MCPResponse) {
		mu.Lock()
		defer mu.Unlock()
		if err := encoder.Encode(resp); err != nil {
			s.logger.Error("failed to encode response", zap.Error(err))
		}
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn("failed to parse request", zap.Error(err))
			write(errorResponse(nil, codeParseError, "Parse error", err.Error()))
			continue
		}

		wg.Add(1)
		go func(req MCPRequest) {
			defer wg.Done()
			if resp := s.handleRequest(ctx, &req); resp != nil {
				write(resp)
			}
		}(req)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}
	return nil
}

// handleRequest routes requests to appropriate handlers. A nil response means
// the message was a notification.
func (s *Server) handleRequest(ctx context.Context, req *MCPRequest) *MCPResponse {
	if req.JSONRPC != "2.0" {
		return errorResponse(req.ID, codeInvalidRequest, "Invalid Request", "jsonrpc must be \"2.0\"")
	}

	switch {
	case req.Method == "initialize":
		return s.handleInitialize(req)
	case strings.HasPrefix(req.Method, "notifications/"):
		return nil
	case req.Method == "tools/list":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{"tools": GetToolDefinitions()},
		}
	case req.Method == "tools/call":
		return s.handleToolsCall(ctx, req)
	case req.Method == "ping":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		return errorResponse(req.ID, codeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), "")
	}
}

func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": protocolVersion,
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    "image-gen-mcp",
				"version": s.version,
			},
		},
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	e := &MCPError{Code: code, Message: message}
	if data != "" {
		e.Data = data
	}
	return &MCPResponse{JSONRPC: "2.0", ID: id, Error: e}
}
