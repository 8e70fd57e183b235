package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"dynetl/internal/service"
)

// Server is the MCP server for dynetl.
// It exposes ingestion, query and schema tools so AI agents can load data and
// read it back through the strict query language.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger

	// Services (injected from app layer)
	ingest  *service.IngestService
	queries *service.QueryService
	schemas *service.SchemaService
}

// Deps holds all dependencies passed from the App layer to the MCP server.
type Deps struct {
	Ingest  *service.IngestService
	Queries *service.QueryService
	Schemas *service.SchemaService
	Logger  *zap.Logger
	Version string
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{
		logger:  logger.Named("mcp"),
		ingest:  deps.Ingest,
		queries: deps.Queries,
		schemas: deps.Schemas,
	}

	s.mcp = server.NewMCPServer(
		"dynetl",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerIngestTools()
	s.registerQueryTools()
	s.registerSchemaTools()
	s.registerJobTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.logger.Info("starting stdio server")
	return server.ServeStdio(s.mcp)
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

func boolPtr(v bool) *bool { return &v }

// call wraps a service call: caller mistakes come back as an error result
// the agent can read and fix, everything else as a Go error.
func (s *Server) call(ctx context.Context, tool string, fn func(ctx context.Context) (any, error)) (*mcp.CallToolResult, error) {
	out, err := fn(ctx)
	if err != nil {
		if res, ok := errorResult(err); ok {
			return res, nil
		}
		s.logger.Error("tool failed", zap.String("tool", tool), zap.Error(err))
		return nil, fmt.Errorf("%s: %w", tool, err)
	}
	return jsonResult(out)
}
